package runner

import (
	"time"

	"github.com/abdul-hamid-achik/hitchain/packages/assertions"
	"github.com/abdul-hamid-achik/hitchain/packages/http"
	"github.com/abdul-hamid-achik/hitchain/packages/stats"
)

type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusError   Status = "error"
	StatusSkipped Status = "skipped"
)

// Kind classifies why an Outcome did not pass.
type Kind string

const (
	KindNone                Kind = ""
	KindUnresolvedReference Kind = "unresolved-reference"
	KindTransport           Kind = "transport-error"
	KindValidation          Kind = "validation-mismatch"
	KindConfiguration       Kind = "configuration-error"
	KindCanceled            Kind = "canceled"
)

// Outcome is the final result of one request. It is never modified after
// it has been reported.
type Outcome struct {
	Collection string
	Name       string
	Status     Status
	Kind       Kind
	// Reason is a human-readable explanation for any status but passed.
	Reason   string
	Attempts int
	Elapsed  time.Duration
	// Request is the materialized request of the last attempt.
	Request  *http.Request
	Response *http.Response
	Err      error
	// Mismatches are those of the final attempt only.
	Mismatches []assertions.Mismatch
	// Extracted holds the variables actually written to the store.
	Extracted map[string]any
	Warnings  []string
}

// Failed reports whether the outcome counts against continue-on-error.
func (o *Outcome) Failed() bool {
	return o.Status == StatusFailed || o.Status == StatusError
}

type Summary struct {
	Total   int           `json:"total"`
	Passed  int           `json:"passed"`
	Failed  int           `json:"failed"`
	Errors  int           `json:"errors"`
	Skipped int           `json:"skipped"`
	Elapsed time.Duration `json:"elapsed"`
	// Attempts counts every dispatch, retries included.
	Attempts int           `json:"attempts"`
	Latency  stats.Latency `json:"latency"`
}

// OK reports whether nothing failed or errored.
func (s Summary) OK() bool {
	return s.Failed == 0 && s.Errors == 0
}

type RunResult struct {
	// Outcomes are in completion order.
	Outcomes []*Outcome
	Summary  Summary
	// Breakdown is the per-request latency summary.
	Breakdown []stats.RequestLatency
}

func summarize(outcomes []*Outcome, elapsed time.Duration, rec *stats.Recorder) Summary {
	s := Summary{Total: len(outcomes), Elapsed: elapsed, Latency: rec.Summary()}
	for _, o := range outcomes {
		s.Attempts += o.Attempts
		switch o.Status {
		case StatusPassed:
			s.Passed++
		case StatusFailed:
			s.Failed++
		case StatusError:
			s.Errors++
		case StatusSkipped:
			s.Skipped++
		}
	}
	return s
}
