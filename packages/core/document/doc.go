// Package document loads hitchain request documents.
//
// A document is YAML or JSON. Loading happens in two steps: the file is
// parsed into a generic ordered tree (scalars, []any and *tree.Map), then
// Decode builds the typed model, merging defaults from the document level
// down to each collection and request.
//
// Structural problems, such as a request that is not a mapping, fail the
// whole load. Value problems that concern a single request or collection,
// such as a negative retry count or an invalid expectation pattern, are
// recorded on that request or collection instead so the rest of the
// document can still run.
package document
