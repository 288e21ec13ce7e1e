// Package tree holds the generic document tree shared by the loader, the
// template resolver and the response validator: scalars, []any sequences and
// ordered string-keyed maps.
package tree
