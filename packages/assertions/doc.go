// Package assertions validates HTTP responses against expectations.
//
// An expectation checks:
//   - the status code, against a single code or a set of acceptable codes
//   - headers, matched by case-insensitive name and exact value
//   - the body, as a partial structural match of a JSON tree
//   - optionally, the body against a JSON Schema
//
// Body expectation leaves are classified once, when the expectation is
// compiled: "*" is a wildcard, "/source/" or "^..." strings are regular
// expressions, everything else is compared literally. Objects match
// partially (extra keys in the response are ignored); arrays match exactly
// and in order.
//
// Validation never stops at the first problem: every mismatch is reported
// with its path, the expected value and the actual value.
package assertions
