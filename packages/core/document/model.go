package document

import (
	"time"

	"github.com/abdul-hamid-achik/hitchain/packages/assertions"
	"github.com/abdul-hamid-achik/hitchain/packages/capture"
	"github.com/abdul-hamid-achik/hitchain/packages/core/tree"
)

type Mode string

const (
	ModeSequential Mode = "sequential"
	ModeParallel   Mode = "parallel"
)

// DefaultParallelism is maxConcurrent for parallel mode when unset.
const DefaultParallelism = 5

// DefaultRetryDelay applies when retry.delay is unset.
const DefaultRetryDelay = time.Second

type Document struct {
	Name string
	// Path and Dir are empty for documents decoded from memory.
	Path string
	Dir  string

	// Variables are the declared global variables, in declaration order.
	Variables *tree.Map
	// VariableFiles are loaded into the global scope before Variables.
	VariableFiles []string

	// Execution schedules the collections themselves.
	Execution   Execution
	Collections []*Collection

	// Warnings are non-fatal observations such as unknown keys.
	Warnings []string
}

// Requests returns every request of every collection in document order.
func (d *Document) Requests() []*Request {
	var all []*Request
	for _, c := range d.Collections {
		all = append(all, c.Requests...)
	}
	return all
}

type Collection struct {
	Name      string
	Variables map[string]any
	Execution Execution
	Requests  []*Request
	// Err is set when the collection's own settings are invalid. Every
	// request of the collection is then reported as an error.
	Err error
}

type Execution struct {
	Mode            Mode
	MaxConcurrent   int
	ContinueOnError bool
	// RateLimit caps dispatches per second. Zero means unlimited.
	RateLimit float64
}

type Retry struct {
	Count int
	Delay time.Duration
	// On restricts retries of validation failures to these statuses.
	// Empty retries every failure.
	On []int
}

// Attempts is the total number of dispatches allowed.
func (r Retry) Attempts() int {
	return r.Count + 1
}

type Request struct {
	Name       string
	Collection string
	Method     string
	URL        string
	Headers    map[string]string
	Params     map[string]string
	// Body is a string or a structured tree. HasBody is false when the
	// request declares no body.
	Body    any
	HasBody bool
	// Timeout of zero leaves the transport default in place.
	Timeout   time.Duration
	Retry     Retry
	Variables map[string]any
	Expect    *assertions.Expectation
	Extract   []capture.Rule
	Skip      string
	// Err is set when the request cannot run as declared.
	Err error
}
