// Package capture extracts values from HTTP responses for use in subsequent requests.
//
// Selectors name where a value comes from:
//   - "$" or "$.path[0].to.field" for the JSON response body
//   - "header:Name" for a response header
//   - "status" for the response status code
//   - "duration" for the response time in milliseconds
//
// Extracted values are written to the variable store under the rule's name,
// so later requests can reference them as ${NAME}.
package capture
