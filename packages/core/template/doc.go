// Package template expands ${...} expressions against a variable scope.
//
// Supported forms:
//   - ${NAME}                      plain substitution
//   - ${NAME:default}              default when NAME is not defined
//   - ${NAME:upper}, ${NAME:lower} case transforms
//   - ${COND:match:then:else}      equality conditional on COND
//   - ${UUID}, ${DATE:YYYY-MM-DD}, ${RANDOM:1-10}, ...  generators (see package builtin)
//
// Expansion repeats until no expression is left or the pass limit is hit,
// so values may reference other variables and defaults may nest.
package template
