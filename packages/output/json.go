package output

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/abdul-hamid-achik/hitchain/packages/assertions"
	"github.com/abdul-hamid-achik/hitchain/packages/core/runner"
	"github.com/abdul-hamid-achik/hitchain/packages/stats"
)

// JSONOutput represents the complete JSON output structure
type JSONOutput struct {
	Summary   JSONSummary    `json:"summary"`
	Documents []JSONDocument `json:"documents"`
	Duration  float64        `json:"duration"`
	Time      string         `json:"time"`
}

type JSONSummary struct {
	Total    int `json:"total"`
	Passed   int `json:"passed"`
	Failed   int `json:"failed"`
	Errors   int `json:"errors"`
	Skipped  int `json:"skipped"`
	Attempts int `json:"attempts"`
}

// JSONDocument holds the outcomes of one document file.
type JSONDocument struct {
	File      string                 `json:"file"`
	Summary   JSONSummary            `json:"summary"`
	Latency   stats.Latency          `json:"latency"`
	Breakdown []stats.RequestLatency `json:"breakdown,omitempty"`
	Outcomes  []JSONOutcome          `json:"outcomes"`
}

// JSONOutcome represents a single request outcome
type JSONOutcome struct {
	Collection string                `json:"collection,omitempty"`
	Name       string                `json:"name"`
	Status     runner.Status         `json:"status"`
	Kind       runner.Kind           `json:"kind,omitempty"`
	Reason     string                `json:"reason,omitempty"`
	Attempts   int                   `json:"attempts"`
	Duration   float64               `json:"duration"`
	Request    *JSONRequest          `json:"request,omitempty"`
	Response   *JSONResponse         `json:"response,omitempty"`
	Mismatches []assertions.Mismatch `json:"mismatches,omitempty"`
	Extracted  map[string]any        `json:"extracted,omitempty"`
	Warnings   []string              `json:"warnings,omitempty"`
}

// JSONRequest represents request details
type JSONRequest struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
}

// JSONResponse represents response details
type JSONResponse struct {
	StatusCode int               `json:"statusCode"`
	Status     string            `json:"status"`
	Headers    map[string]string `json:"headers,omitempty"`
	Duration   float64           `json:"duration"`
}

// JSONFormatter accumulates outcomes and writes them as one document on
// Flush.
type JSONFormatter struct {
	writer    io.Writer
	documents []JSONDocument
}

type JSONOption func(*JSONFormatter)

func NewJSONFormatter(opts ...JSONOption) *JSONFormatter {
	f := &JSONFormatter{
		writer:    os.Stdout,
		documents: make([]JSONDocument, 0),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JSONWithWriter(w io.Writer) JSONOption {
	return func(f *JSONFormatter) {
		f.writer = w
	}
}

func (f *JSONFormatter) FormatDocument(path string) {}

// FormatOutcome is a no-op; outcomes are taken from the result.
func (f *JSONFormatter) FormatOutcome(o *runner.Outcome) {}

func (f *JSONFormatter) FormatResult(path string, result *runner.RunResult) {
	doc := JSONDocument{
		File:      path,
		Summary:   summaryOf(result.Summary),
		Latency:   result.Summary.Latency,
		Breakdown: result.Breakdown,
		Outcomes:  make([]JSONOutcome, 0, len(result.Outcomes)),
	}
	for _, o := range result.Outcomes {
		doc.Outcomes = append(doc.Outcomes, outcomeOf(o))
	}
	f.documents = append(f.documents, doc)
}

func outcomeOf(o *runner.Outcome) JSONOutcome {
	out := JSONOutcome{
		Collection: o.Collection,
		Name:       o.Name,
		Status:     o.Status,
		Kind:       o.Kind,
		Reason:     o.Reason,
		Attempts:   o.Attempts,
		Duration:   float64(o.Elapsed.Milliseconds()),
		Mismatches: o.Mismatches,
		Warnings:   o.Warnings,
	}
	if len(o.Extracted) > 0 {
		out.Extracted = o.Extracted
	}
	if o.Request != nil {
		out.Request = &JSONRequest{
			Method:  o.Request.Method,
			URL:     o.Request.BuildURL(),
			Headers: o.Request.Headers,
		}
	}
	if o.Response != nil {
		out.Response = &JSONResponse{
			StatusCode: o.Response.StatusCode,
			Status:     o.Response.Status,
			Headers:    o.Response.Headers,
			Duration:   float64(o.Response.Duration.Milliseconds()),
		}
	}
	return out
}

func summaryOf(s runner.Summary) JSONSummary {
	return JSONSummary{
		Total:    s.Total,
		Passed:   s.Passed,
		Failed:   s.Failed,
		Errors:   s.Errors,
		Skipped:  s.Skipped,
		Attempts: s.Attempts,
	}
}

func (f *JSONFormatter) FormatError(err error) {
	// Errors are included in individual outcomes
}

func (f *JSONFormatter) FormatHeader(version string) {
	// No header needed for JSON output
}

// Flush writes the accumulated JSON output
func (f *JSONFormatter) Flush(totalDuration time.Duration) error {
	var total JSONSummary
	for _, d := range f.documents {
		total.Total += d.Summary.Total
		total.Passed += d.Summary.Passed
		total.Failed += d.Summary.Failed
		total.Errors += d.Summary.Errors
		total.Skipped += d.Summary.Skipped
		total.Attempts += d.Summary.Attempts
	}

	output := JSONOutput{
		Summary:   total,
		Documents: f.documents,
		Duration:  float64(totalDuration.Milliseconds()),
		Time:      time.Now().Format(time.RFC3339),
	}

	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}
