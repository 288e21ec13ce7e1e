// Package env implements the layered variable store used while running a
// document.
//
// Lookups scan, in order:
//   - the request scope
//   - the session scope (values extracted from earlier responses)
//   - the collection scope
//   - the global scope (variable files, .env files, declared variables)
//   - the process environment
//
// Workers materialize requests against a Snapshot so that concurrent
// extraction writes are never observed half-applied.
package env
