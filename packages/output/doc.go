// Package output renders request outcomes.
//
// Supported output formats:
//   - Console: human-readable colored terminal output, streamed as each
//     request finishes
//   - JSON: one machine-readable document written when the run ends
//
// JSONFormatter accumulates results and implements Flush.
package output
