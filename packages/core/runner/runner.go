package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/abdul-hamid-achik/hitchain/packages/assertions"
	"github.com/abdul-hamid-achik/hitchain/packages/capture"
	"github.com/abdul-hamid-achik/hitchain/packages/core/document"
	"github.com/abdul-hamid-achik/hitchain/packages/core/env"
	"github.com/abdul-hamid-achik/hitchain/packages/core/template"
	"github.com/abdul-hamid-achik/hitchain/packages/http"
	"github.com/abdul-hamid-achik/hitchain/packages/stats"
	"golang.org/x/time/rate"
)

// WarnFunc is a function type for handling warnings
type WarnFunc func(format string, args ...any)

// Runner schedules the requests of a document against one variable store.
type Runner struct {
	store      *env.Store
	resolver   *template.Resolver
	dispatcher Dispatcher
	nameFilter string
	overrides  map[string]any
	onOutcome  func(*Outcome)
	warnFunc   WarnFunc

	// guards outcomes and serializes onOutcome
	mu       sync.Mutex
	outcomes []*Outcome
	recorder *stats.Recorder
}

type Option func(*Runner)

// WithDispatcher replaces the default HTTP client.
func WithDispatcher(d Dispatcher) Option {
	return func(r *Runner) {
		r.dispatcher = d
	}
}

func WithResolver(res *template.Resolver) Option {
	return func(r *Runner) {
		r.resolver = res
	}
}

// WithNameFilter runs only requests whose name matches pattern. A leading
// or trailing * matches any suffix or prefix. Other requests are reported
// skipped.
func WithNameFilter(pattern string) Option {
	return func(r *Runner) {
		r.nameFilter = pattern
	}
}

// WithOverrides sets global variables applied after the document's own.
func WithOverrides(vars map[string]any) Option {
	return func(r *Runner) {
		r.overrides = vars
	}
}

// WithOnOutcome receives every Outcome as soon as it is final. Calls are
// serialized.
func WithOnOutcome(fn func(*Outcome)) Option {
	return func(r *Runner) {
		r.onOutcome = fn
	}
}

func WithWarnFunc(fn WarnFunc) Option {
	return func(r *Runner) {
		r.warnFunc = fn
	}
}

func NewRunner(store *env.Store, opts ...Option) *Runner {
	r := &Runner{
		store: store,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.store == nil {
		r.store = env.NewStore()
	}
	if r.resolver == nil {
		r.resolver = template.NewResolver()
	}
	if r.dispatcher == nil {
		r.dispatcher = http.NewClient()
	}
	return r
}

// Seed loads the document's variable files into the global scope, then
// its declared variables, then the runner's overrides.
func (r *Runner) Seed(doc *document.Document) error {
	for _, path := range doc.VariableFiles {
		if err := r.store.LoadFile(path); err != nil {
			return err
		}
	}
	doc.Variables.Range(func(k string, v any) bool {
		r.store.SetGlobal(k, v)
		return true
	})
	r.store.SetGlobals(r.overrides)
	return nil
}

// Run seeds the store and executes every collection of doc. The returned
// error is reserved for problems that prevent the run from starting;
// request failures are reported as Outcomes.
func (r *Runner) Run(ctx context.Context, doc *document.Document) (*RunResult, error) {
	if err := r.Seed(doc); err != nil {
		return nil, fmt.Errorf("loading variables: %w", err)
	}

	start := time.Now()
	r.mu.Lock()
	r.outcomes = nil
	r.recorder = stats.NewRecorder()
	r.mu.Unlock()

	if doc.Execution.Mode == document.ModeParallel {
		r.runCollectionsParallel(ctx, doc)
	} else {
		r.runCollectionsSequential(ctx, doc)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return &RunResult{
		Outcomes:  r.outcomes,
		Summary:   summarize(r.outcomes, time.Since(start), r.recorder),
		Breakdown: r.recorder.Breakdown(),
	}, nil
}

func (r *Runner) runCollectionsSequential(ctx context.Context, doc *document.Document) {
	stopped := ""
	for _, c := range doc.Collections {
		if stopped != "" {
			r.skipCollection(c, stopped)
			continue
		}
		if ctx.Err() != nil {
			r.skipCollection(c, "run canceled")
			continue
		}
		if r.runCollection(ctx, c) && !doc.Execution.ContinueOnError {
			stopped = fmt.Sprintf("not run: collection %q failed", c.Name)
		}
	}
}

// runCollectionsParallel treats each collection as one unit of work in a
// bounded pool.
func (r *Runner) runCollectionsParallel(ctx context.Context, doc *document.Document) {
	var wg sync.WaitGroup
	var stop stopSignal
	sem := make(chan struct{}, max(doc.Execution.MaxConcurrent, 1))

	for _, c := range doc.Collections {
		if !acquire(ctx, sem) {
			r.skipCollection(c, "run canceled")
			continue
		}
		if reason := stop.get(); reason != "" {
			<-sem
			r.skipCollection(c, reason)
			continue
		}

		wg.Add(1)
		go func(c *document.Collection) {
			defer wg.Done()
			defer func() { <-sem }()

			if r.runCollection(ctx, c) && !doc.Execution.ContinueOnError {
				stop.set(fmt.Sprintf("not run: collection %q failed", c.Name))
			}
		}(c)
	}

	wg.Wait()
}

// stopSignal records the first reason to stop submitting work.
type stopSignal struct {
	mu     sync.Mutex
	reason string
}

func (s *stopSignal) set(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reason == "" {
		s.reason = reason
	}
}

func (s *stopSignal) get() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

func acquire(ctx context.Context, sem chan struct{}) bool {
	select {
	case sem <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (r *Runner) skipCollection(c *document.Collection, reason string) {
	for _, req := range c.Requests {
		r.emit(skipped(c, req, reason))
	}
}

// runCollection executes the requests of c and reports whether any of them
// failed.
func (r *Runner) runCollection(ctx context.Context, c *document.Collection) bool {
	if c.Err != nil {
		for _, req := range c.Requests {
			r.emit(&Outcome{
				Collection: c.Name,
				Name:       req.Name,
				Status:     StatusError,
				Kind:       KindConfiguration,
				Reason:     c.Err.Error(),
				Err:        c.Err,
			})
		}
		return len(c.Requests) > 0
	}

	var limiter *rate.Limiter
	if c.Execution.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(c.Execution.RateLimit), 1)
	}

	if c.Execution.Mode == document.ModeParallel {
		return r.runParallel(ctx, c, limiter)
	}
	return r.runSequential(ctx, c, limiter)
}

func (r *Runner) runSequential(ctx context.Context, c *document.Collection, limiter *rate.Limiter) bool {
	failed := false
	stopped := ""

	for _, req := range c.Requests {
		if reason := r.skipReason(req); reason != "" {
			r.emit(skipped(c, req, reason))
			continue
		}
		if stopped != "" {
			r.emit(skipped(c, req, stopped))
			continue
		}
		if ctx.Err() != nil {
			r.emit(skipped(c, req, "run canceled"))
			continue
		}

		o := r.execute(ctx, c, req, limiter)
		r.emit(o)
		if o.Failed() {
			failed = true
			if !c.Execution.ContinueOnError {
				stopped = fmt.Sprintf("not run: %q failed", req.Name)
			}
		}
	}

	return failed
}

// runParallel keeps at most MaxConcurrent requests in flight. Once a
// request fails without continue-on-error, nothing new is started, but
// requests already in flight finish.
func (r *Runner) runParallel(ctx context.Context, c *document.Collection, limiter *rate.Limiter) bool {
	var wg sync.WaitGroup
	var failed atomic.Bool
	var stop stopSignal
	sem := make(chan struct{}, max(c.Execution.MaxConcurrent, 1))

	for _, req := range c.Requests {
		if reason := r.skipReason(req); reason != "" {
			r.emit(skipped(c, req, reason))
			continue
		}
		if !acquire(ctx, sem) {
			r.emit(skipped(c, req, "run canceled"))
			continue
		}
		if reason := stop.get(); reason != "" {
			<-sem
			r.emit(skipped(c, req, reason))
			continue
		}

		wg.Add(1)
		go func(req *document.Request) {
			defer wg.Done()
			defer func() { <-sem }()

			o := r.execute(ctx, c, req, limiter)
			r.emit(o)
			if o.Failed() {
				failed.Store(true)
				if !c.Execution.ContinueOnError {
					stop.set(fmt.Sprintf("not run: %q failed", req.Name))
				}
			}
		}(req)
	}

	wg.Wait()
	return failed.Load()
}

func (r *Runner) skipReason(req *document.Request) string {
	if r.nameFilter != "" && !matchesPattern(req.Name, r.nameFilter) {
		return "filtered out"
	}
	return req.Skip
}

// execute materializes, dispatches, validates and extracts one request.
func (r *Runner) execute(ctx context.Context, c *document.Collection, req *document.Request, limiter *rate.Limiter) *Outcome {
	start := time.Now()
	o := &Outcome{Collection: c.Name, Name: req.Name}
	defer func() { o.Elapsed = time.Since(start) }()

	if req.Err != nil {
		return o.fail(StatusError, KindConfiguration, req.Err)
	}

	resolver := r.resolver.WithWarnFunc(func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		o.Warnings = append(o.Warnings, msg)
		r.warn("%s: %s", req.Name, msg)
	})

	snapshot := r.store.Snapshot(c.Variables, req.Variables)
	httpReq, err := materialize(req, snapshot, resolver)
	if err != nil {
		if errors.Is(err, template.ErrUnresolvedReference) || errors.Is(err, template.ErrInvalidExpression) {
			return o.fail(StatusError, KindUnresolvedReference, err)
		}
		return o.fail(StatusError, KindConfiguration, err)
	}
	o.Request = httpReq

	rc := &retryController{
		dispatcher: r.dispatcher,
		limiter:    limiter,
		recorder:   r.recorder,
		name:       req.Name,
	}
	res := rc.run(ctx, httpReq, req.Retry, req.Expect)
	o.Attempts = res.attempts
	o.Response = res.response
	o.Mismatches = res.mismatches

	switch res.state {
	case StatePassed:
		o.Status = StatusPassed
		o.Extracted = r.extract(req, res.response, o)
		return o
	case StateCanceled:
		return o.fail(StatusError, KindCanceled, res.err)
	}

	if res.err != nil {
		o.fail(StatusFailed, KindTransport, res.err)
	} else {
		result := &assertions.Result{Mismatches: res.mismatches}
		o.fail(StatusFailed, KindValidation, result.Err())
	}
	if o.Attempts > 1 {
		o.Reason = fmt.Sprintf("%s (after %d attempts)", o.Reason, o.Attempts)
	}
	return o
}

// extract writes the request's extraction rules into the store and
// returns what was written.
func (r *Runner) extract(req *document.Request, resp *http.Response, o *Outcome) map[string]any {
	if len(req.Extract) == 0 {
		return nil
	}

	values, missing := capture.ExtractAll(resp, req.Extract)
	for _, rule := range req.Extract {
		if v, ok := values[rule.Name]; ok {
			r.store.Write(rule.Name, v)
		}
	}
	for _, name := range missing {
		msg := fmt.Sprintf("extract %s: nothing matched %s", name, selectorOf(req.Extract, name))
		o.Warnings = append(o.Warnings, msg)
		r.warn("%s: %s", req.Name, msg)
	}
	return values
}

func selectorOf(rules []capture.Rule, name string) string {
	for _, rule := range rules {
		if rule.Name == name {
			return rule.Selector.String()
		}
	}
	return ""
}

func (o *Outcome) fail(status Status, kind Kind, err error) *Outcome {
	o.Status = status
	o.Kind = kind
	o.Err = err
	if err != nil {
		o.Reason = err.Error()
	}
	if kind == KindCanceled {
		o.Reason = "canceled"
	}
	return o
}

func skipped(c *document.Collection, req *document.Request, reason string) *Outcome {
	return &Outcome{
		Collection: c.Name,
		Name:       req.Name,
		Status:     StatusSkipped,
		Reason:     reason,
	}
}

func (r *Runner) emit(o *Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
	if r.onOutcome != nil {
		r.onOutcome(o)
	}
}

func (r *Runner) warn(format string, args ...any) {
	if r.warnFunc != nil {
		r.warnFunc(format, args...)
	}
}

func matchesPattern(name, pattern string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}

	prefix := strings.HasSuffix(pattern, "*")
	suffix := strings.HasPrefix(pattern, "*")
	core := strings.TrimSuffix(strings.TrimPrefix(pattern, "*"), "*")

	switch {
	case prefix && suffix:
		return strings.Contains(name, core)
	case suffix:
		return strings.HasSuffix(name, core)
	case prefix:
		return strings.HasPrefix(name, core)
	default:
		return name == pattern
	}
}
