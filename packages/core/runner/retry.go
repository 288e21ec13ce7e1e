package runner

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/abdul-hamid-achik/hitchain/packages/assertions"
	"github.com/abdul-hamid-achik/hitchain/packages/core/document"
	"github.com/abdul-hamid-achik/hitchain/packages/http"
	"github.com/abdul-hamid-achik/hitchain/packages/stats"
	"golang.org/x/time/rate"
)

// Dispatcher sends one request. *http.Client implements it.
type Dispatcher interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// State is a step of the retry state machine.
type State int

const (
	StatePending State = iota
	StateDispatching
	StateValidating
	StatePassed
	StateFailedAttempt
	StateExhausted
	StateCanceled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateDispatching:
		return "dispatching"
	case StateValidating:
		return "validating"
	case StatePassed:
		return "passed"
	case StateFailedAttempt:
		return "failed-attempt"
	case StateExhausted:
		return "exhausted"
	case StateCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// attemptResult is the final state of a retry controller run.
type attemptResult struct {
	state      State
	attempts   int
	response   *http.Response
	err        error
	mismatches []assertions.Mismatch
}

// retryController dispatches one materialized request until it passes
// validation or the attempt budget is spent.
type retryController struct {
	dispatcher Dispatcher
	limiter    *rate.Limiter
	recorder   *stats.Recorder
	name       string
	// trace, when set, observes every state transition.
	trace func(from, to State)
}

func (rc *retryController) run(ctx context.Context, req *http.Request, policy document.Retry, exp *assertions.Expectation) attemptResult {
	var res attemptResult
	budget := policy.Attempts()

	state := StatePending
	move := func(to State) {
		if rc.trace != nil {
			rc.trace(state, to)
		}
		state = to
	}

	for {
		switch state {
		case StatePending:
			move(StateDispatching)

		case StateDispatching:
			if rc.limiter != nil {
				if err := rc.limiter.Wait(ctx); err != nil {
					res.err = ctxErr(ctx, err)
					move(StateCanceled)
					continue
				}
			}

			res.attempts++
			start := time.Now()
			resp, err := rc.dispatcher.Do(ctx, req)
			elapsed := time.Since(start)

			if err != nil {
				rc.record(elapsed, err)
				res.response = nil
				res.mismatches = nil
				res.err = err
				if ctx.Err() != nil {
					res.err = ctx.Err()
					move(StateCanceled)
					continue
				}
				move(StateFailedAttempt)
				continue
			}

			if resp.Duration > 0 {
				elapsed = resp.Duration
			}
			rc.record(elapsed, nil)
			res.response = resp
			res.err = nil
			move(StateValidating)

		case StateValidating:
			result := assertions.Validate(res.response, exp)
			res.mismatches = result.Mismatches
			if result.Passed {
				move(StatePassed)
			} else {
				move(StateFailedAttempt)
			}

		case StateFailedAttempt:
			if res.attempts >= budget || !retryable(res, policy) {
				move(StateExhausted)
				continue
			}
			if err := sleep(ctx, policy.Delay); err != nil {
				res.err = err
				move(StateCanceled)
				continue
			}
			move(StateDispatching)

		case StatePassed, StateExhausted, StateCanceled:
			res.state = state
			return res
		}
	}
}

func (rc *retryController) record(d time.Duration, err error) {
	if rc.recorder == nil {
		return
	}
	var te *http.TransportError
	timedOut := errors.As(err, &te) && te.Timeout()
	rc.recorder.Record(rc.name, d, err != nil, timedOut)
}

// retryable decides whether a failed attempt may be repeated. Transport
// errors always are; validation failures only when the status is listed in
// policy.On, or when policy.On is empty.
func retryable(res attemptResult, policy document.Retry) bool {
	if res.err != nil || res.response == nil {
		return true
	}
	if len(policy.On) == 0 {
		return true
	}
	return slices.Contains(policy.On, res.response.StatusCode)
}

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
