// Package runner executes hitchain documents.
//
// It provides functionality for:
//   - Materializing requests from the variable store through the template resolver
//   - Bounded retries of failed dispatch attempts
//   - Sequential and parallel scheduling with continue-on-error policy
//   - Extracting response values back into the variable store
//   - Streaming one Outcome per request and aggregating a run Summary
//
// Extraction-based chaining requires sequential mode: requests running
// concurrently have no ordering guarantee among themselves.
package runner
