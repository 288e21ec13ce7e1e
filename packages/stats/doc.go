// Package stats aggregates dispatch latencies for the run summary.
//
// Every dispatch attempt, including retries and attempts that failed at the
// transport, is recorded into an HDR histogram so percentiles stay accurate
// without keeping individual samples.
package stats
