// Package builtin provides the generator tokens available inside ${...}
// expressions.
//
// Available generators:
//   - UUID: random UUID v4; UUID:short yields 8 hex characters
//   - DATE[:FMT], TIME[:FMT]: current date/time using YYYY, MM, DD, HH, mm, ss tokens
//   - RANDOM:a-b: uniform integer in [a, b]
//   - RANDOM:string:N, RANDOM:hex:N: N alphanumeric or hex characters
//   - TIMESTAMP, TIMESTAMP:ms: Unix time in seconds or milliseconds
//
// Generators never consult the variable store and produce a fresh value on
// every invocation.
package builtin
