package runner

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/hitchain/packages/core/document"
	"github.com/abdul-hamid-achik/hitchain/packages/core/env"
	"github.com/abdul-hamid-achik/hitchain/packages/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDispatcher answers requests without a network and tracks how many
// are in flight at once.
type fakeDispatcher struct {
	mu          sync.Mutex
	calls       []*http.Request
	inFlight    int
	maxInFlight int
	delay       time.Duration
	handle      func(req *http.Request, call int) (*http.Response, error)
}

func (f *fakeDispatcher) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	call := len(f.calls)
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, &http.TransportError{Op: req.Method, URL: req.URL, Err: ctx.Err()}
		}
	}

	if f.handle == nil {
		return respond(200, `{}`), nil
	}
	return f.handle(req, call)
}

func (f *fakeDispatcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func respond(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       []byte(body),
	}
}

func loadDoc(t *testing.T, src string) *document.Document {
	t.Helper()
	root, err := document.Parse([]byte(src))
	require.NoError(t, err)
	doc, err := document.Decode(root)
	require.NoError(t, err)
	return doc
}

func newTestRunner(d Dispatcher, opts ...Option) *Runner {
	store := env.NewStore(env.WithEnviron(nil))
	return NewRunner(store, append([]Option{WithDispatcher(d)}, opts...)...)
}

func statuses(res *RunResult) []Status {
	out := make([]Status, len(res.Outcomes))
	for i, o := range res.Outcomes {
		out[i] = o.Status
	}
	return out
}

func TestRun_RetryBudget(t *testing.T) {
	fake := &fakeDispatcher{handle: func(*http.Request, int) (*http.Response, error) {
		return respond(500, `{"error":"boom"}`), nil
	}}
	doc := loadDoc(t, `
requests:
  - name: flaky
    url: http://fake/flaky
    retry: {count: 2, delay: 1}
    expect: {status: 200}
`)

	res, err := newTestRunner(fake).Run(context.Background(), doc)
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 1)

	o := res.Outcomes[0]
	assert.Equal(t, StatusFailed, o.Status)
	assert.Equal(t, KindValidation, o.Kind)
	assert.Equal(t, 3, o.Attempts)
	assert.Equal(t, 3, fake.callCount())
	require.Len(t, o.Mismatches, 1)
	assert.Equal(t, 500, o.Response.StatusCode)
	assert.Contains(t, o.Reason, "after 3 attempts")
	assert.Equal(t, 3, res.Summary.Attempts)
	assert.Equal(t, int64(3), res.Summary.Latency.Count)
}

func TestRun_RetryRecovers(t *testing.T) {
	fake := &fakeDispatcher{handle: func(req *http.Request, call int) (*http.Response, error) {
		if call == 1 {
			return nil, &http.TransportError{Op: "GET", URL: req.URL, Err: errors.New("connection reset")}
		}
		return respond(200, `{"ok":true}`), nil
	}}
	doc := loadDoc(t, `
requests:
  - url: http://fake/x
    retry: {count: 3, delay: 1}
    expect: {status: 200, body: {ok: true}}
`)

	res, err := newTestRunner(fake).Run(context.Background(), doc)
	require.NoError(t, err)
	o := res.Outcomes[0]
	assert.Equal(t, StatusPassed, o.Status)
	assert.Equal(t, 2, o.Attempts)
	assert.Empty(t, o.Mismatches)
	assert.NoError(t, o.Err)
}

func TestRun_RetryOnStatuses(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		attempts int
	}{
		{"listed status is retried", 503, 3},
		{"other status is final", 500, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeDispatcher{handle: func(*http.Request, int) (*http.Response, error) {
				return respond(tt.status, `{}`), nil
			}}
			doc := loadDoc(t, `
requests:
  - url: http://fake/x
    retry: {count: 2, delay: 1, on: [502, 503]}
    expect: 200
`)
			res, err := newTestRunner(fake).Run(context.Background(), doc)
			require.NoError(t, err)
			assert.Equal(t, tt.attempts, res.Outcomes[0].Attempts)
		})
	}
}

func TestRun_TransportErrorExhausted(t *testing.T) {
	fake := &fakeDispatcher{handle: func(req *http.Request, _ int) (*http.Response, error) {
		return nil, &http.TransportError{Op: "GET", URL: req.URL, Err: errors.New("connection refused")}
	}}
	doc := loadDoc(t, `
requests:
  - url: http://fake/down
    retry: {count: 1, delay: 1}
`)

	res, err := newTestRunner(fake).Run(context.Background(), doc)
	require.NoError(t, err)
	o := res.Outcomes[0]
	assert.Equal(t, StatusFailed, o.Status)
	assert.Equal(t, KindTransport, o.Kind)
	assert.Equal(t, 2, o.Attempts)
	assert.Nil(t, o.Response)
	assert.ErrorIs(t, o.Err, http.ErrTransport)
	assert.Contains(t, o.Reason, "connection refused")
	assert.Equal(t, int64(2), res.Summary.Latency.Errors)
}

func TestRun_TransportErrorAttemptBudget(t *testing.T) {
	fake := &fakeDispatcher{handle: func(req *http.Request, call int) (*http.Response, error) {
		return nil, &http.TransportError{Op: "GET", URL: req.URL, Err: fmt.Errorf("dial failure %d", call)}
	}}
	doc := loadDoc(t, `
requests:
  - url: http://fake/down
    retry: {count: 2, delay: 100}
`)

	start := time.Now()
	res, err := newTestRunner(fake).Run(context.Background(), doc)
	require.NoError(t, err)

	o := res.Outcomes[0]
	assert.Equal(t, 3, fake.callCount())
	assert.Equal(t, 3, o.Attempts)
	assert.Equal(t, StatusFailed, o.Status)
	assert.Contains(t, o.Reason, "dial failure 3")
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}

func TestRun_CanceledDuringRetryDelay(t *testing.T) {
	fake := &fakeDispatcher{handle: func(*http.Request, int) (*http.Response, error) {
		return respond(500, `{}`), nil
	}}
	doc := loadDoc(t, `
requests:
  - url: http://fake/x
    retry: {count: 5, delay: 3600000}
    expect: 200
  - url: http://fake/never
`)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	start := time.Now()
	res, err := newTestRunner(fake).Run(ctx, doc)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	require.Len(t, res.Outcomes, 2)
	assert.Equal(t, StatusError, res.Outcomes[0].Status)
	assert.Equal(t, KindCanceled, res.Outcomes[0].Kind)
	assert.Equal(t, 1, res.Outcomes[0].Attempts)
	assert.Equal(t, StatusSkipped, res.Outcomes[1].Status)
	assert.Equal(t, 1, fake.callCount())
}

func TestRetryController_States(t *testing.T) {
	fake := &fakeDispatcher{handle: func(_ *http.Request, call int) (*http.Response, error) {
		if call == 1 {
			return respond(500, `{}`), nil
		}
		return respond(200, `{}`), nil
	}}
	exp := loadDoc(t, "requests: [{url: http://x, expect: 200}]").Requests()[0].Expect

	var trace []string
	rc := &retryController{
		dispatcher: fake,
		trace: func(from, to State) {
			trace = append(trace, from.String()+">"+to.String())
		},
	}
	res := rc.run(context.Background(), http.NewRequest("GET", "http://x"), document.Retry{Count: 1}, exp)

	assert.Equal(t, StatePassed, res.state)
	assert.Equal(t, []string{
		"pending>dispatching",
		"dispatching>validating",
		"validating>failed-attempt",
		"failed-attempt>dispatching",
		"dispatching>validating",
		"validating>passed",
	}, trace)
}

func TestRun_SequentialStopsOnFailure(t *testing.T) {
	fake := &fakeDispatcher{handle: func(*http.Request, int) (*http.Response, error) {
		return respond(404, `{}`), nil
	}}
	doc := loadDoc(t, `
defaults:
  execution: {continueOnError: false}
requests:
  - {name: one, url: "http://fake/1", expect: 200}
  - {name: two, url: "http://fake/2"}
  - {name: three, url: "http://fake/3"}
`)

	res, err := newTestRunner(fake).Run(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, []Status{StatusFailed, StatusSkipped, StatusSkipped}, statuses(res))
	assert.Equal(t, 1, fake.callCount())
	assert.Contains(t, res.Outcomes[1].Reason, `"one" failed`)
	assert.Equal(t, 3, res.Summary.Total)
	assert.Equal(t, 1, res.Summary.Failed)
	assert.Equal(t, 2, res.Summary.Skipped)
	assert.False(t, res.Summary.OK())
}

func TestRun_ContinueOnErrorByDefault(t *testing.T) {
	fake := &fakeDispatcher{handle: func(req *http.Request, _ int) (*http.Response, error) {
		if strings.HasSuffix(req.URL, "/1") {
			return respond(500, `{}`), nil
		}
		return respond(200, `{}`), nil
	}}
	doc := loadDoc(t, `
requests:
  - {url: "http://fake/1", expect: 200}
  - {url: "http://fake/2", expect: 200}
  - {url: "http://fake/3", expect: 200}
`)

	res, err := newTestRunner(fake).Run(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, []Status{StatusFailed, StatusPassed, StatusPassed}, statuses(res))
	assert.Equal(t, 3, fake.callCount())
}

func TestRun_ParallelRespectsMaxConcurrent(t *testing.T) {
	fake := &fakeDispatcher{delay: 30 * time.Millisecond}

	var b strings.Builder
	b.WriteString("defaults:\n  execution: {mode: parallel, maxConcurrent: 3}\nrequests:\n")
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&b, "  - {name: r%d, url: \"http://fake/%d\", expect: 200}\n", i, i)
	}

	res, err := newTestRunner(fake).Run(context.Background(), loadDoc(t, b.String()))
	require.NoError(t, err)

	assert.Equal(t, 10, res.Summary.Passed)
	assert.Equal(t, 10, fake.callCount())
	assert.LessOrEqual(t, fake.maxInFlight, 3)
	assert.Greater(t, fake.maxInFlight, 1)
}

func TestRun_ParallelStopsSubmittingAfterFailure(t *testing.T) {
	fake := &fakeDispatcher{delay: 10 * time.Millisecond, handle: func(*http.Request, int) (*http.Response, error) {
		return respond(500, `{}`), nil
	}}

	var b strings.Builder
	b.WriteString("defaults:\n  execution: {mode: parallel, maxConcurrent: 2, continueOnError: false}\nrequests:\n")
	for i := 0; i < 8; i++ {
		fmt.Fprintf(&b, "  - {url: \"http://fake/%d\", expect: 200}\n", i)
	}

	res, err := newTestRunner(fake).Run(context.Background(), loadDoc(t, b.String()))
	require.NoError(t, err)

	require.Len(t, res.Outcomes, 8)
	assert.Equal(t, res.Summary.Failed, fake.callCount(), "every dispatched request finishes and is reported")
	assert.LessOrEqual(t, fake.callCount(), 3)
	assert.Equal(t, 8-fake.callCount(), res.Summary.Skipped)
}

func TestRun_ExtractionRoundTrip(t *testing.T) {
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/login":
			w.Header().Set("X-Request-Id", "req-42")
			_, _ = w.Write([]byte(`{"token":"s3cr3t","user":{"id":7}}`))
		case "/me":
			if r.Header.Get("Authorization") != "Bearer s3cr3t" {
				w.WriteHeader(nethttp.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(fmt.Sprintf(`{"id":%s}`, r.URL.Query().Get("id"))))
		}
	}))
	defer server.Close()

	doc := loadDoc(t, fmt.Sprintf(`
variables:
  BASE: %s
  TOKEN: placeholder
requests:
  - name: login
    method: POST
    url: ${BASE}/login
    body: {user: bret}
    expect: {status: 200}
    extract:
      TOKEN: $.token
      USER_ID: $.user.id
      REQ: header:X-Request-Id
  - name: me
    url: ${BASE}/me
    params: {id: "${USER_ID}"}
    headers: {Authorization: "Bearer ${TOKEN}"}
    expect:
      status: 200
      body: {id: 7}
`, server.URL))

	store := env.NewStore(env.WithEnviron(nil))
	res, err := NewRunner(store).Run(context.Background(), doc)
	require.NoError(t, err)

	require.Equal(t, []Status{StatusPassed, StatusPassed}, statuses(res), "%+v", res.Outcomes[len(res.Outcomes)-1])
	assert.Equal(t, map[string]any{"TOKEN": "s3cr3t", "USER_ID": float64(7), "REQ": "req-42"}, res.Outcomes[0].Extracted)
	assert.Equal(t, "Bearer s3cr3t", res.Outcomes[1].Request.Headers["Authorization"])

	v, ok := store.Lookup("TOKEN")
	require.True(t, ok)
	assert.Equal(t, "s3cr3t", v)
}

func TestRun_NoExtractionOnFailure(t *testing.T) {
	fake := &fakeDispatcher{handle: func(*http.Request, int) (*http.Response, error) {
		return respond(500, `{"token":"nope"}`), nil
	}}
	doc := loadDoc(t, `
requests:
  - url: http://fake/x
    expect: 200
    extract: {TOKEN: $.token}
`)
	store := env.NewStore(env.WithEnviron(nil))
	res, err := NewRunner(store, WithDispatcher(fake)).Run(context.Background(), doc)
	require.NoError(t, err)

	assert.Nil(t, res.Outcomes[0].Extracted)
	_, ok := store.Lookup("TOKEN")
	assert.False(t, ok)
}

func TestRun_MissingExtractionWarns(t *testing.T) {
	var warnings []string
	fake := &fakeDispatcher{}
	doc := loadDoc(t, `
requests:
  - name: grab
    url: http://fake/x
    extract: {ID: $.id}
`)
	res, err := newTestRunner(fake, WithWarnFunc(func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	})).Run(context.Background(), doc)
	require.NoError(t, err)

	o := res.Outcomes[0]
	assert.Equal(t, StatusPassed, o.Status)
	assert.Empty(t, o.Extracted)
	assert.Equal(t, []string{"extract ID: nothing matched $.id"}, o.Warnings)
	assert.Equal(t, []string{"grab: extract ID: nothing matched $.id"}, warnings)
}

func TestRun_PerRequestErrorsDoNotAbort(t *testing.T) {
	fake := &fakeDispatcher{}
	doc := loadDoc(t, `
defaults:
  execution: {continueOnError: true}
requests:
  - {name: unresolved, url: "${MISSING}/x"}
  - {name: misconfigured, url: "http://fake/x", retry: {count: -1}}
  - {name: fine, url: "http://fake/ok"}
`)

	res, err := newTestRunner(fake).Run(context.Background(), doc)
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 3)

	assert.Equal(t, StatusError, res.Outcomes[0].Status)
	assert.Equal(t, KindUnresolvedReference, res.Outcomes[0].Kind)
	assert.Contains(t, res.Outcomes[0].Reason, "${MISSING}")
	assert.Equal(t, 0, res.Outcomes[0].Attempts)

	assert.Equal(t, StatusError, res.Outcomes[1].Status)
	assert.Equal(t, KindConfiguration, res.Outcomes[1].Kind)
	assert.ErrorIs(t, res.Outcomes[1].Err, document.ErrConfiguration)

	assert.Equal(t, StatusPassed, res.Outcomes[2].Status)
	assert.Equal(t, 1, fake.callCount())
	assert.Equal(t, 2, res.Summary.Errors)
}

func TestRun_UnresolvedHeaderWarns(t *testing.T) {
	fake := &fakeDispatcher{}
	doc := loadDoc(t, `
requests:
  - url: http://fake/x
    headers: {X-Trace: "${TRACE}"}
`)

	res, err := newTestRunner(fake).Run(context.Background(), doc)
	require.NoError(t, err)
	o := res.Outcomes[0]
	assert.Equal(t, StatusPassed, o.Status)
	assert.Equal(t, []string{"unresolved variable: ${TRACE}"}, o.Warnings)
	assert.Equal(t, "", o.Request.Headers["X-Trace"])
}

func TestRun_CollectionErrorsReportEveryRequest(t *testing.T) {
	fake := &fakeDispatcher{}
	doc := loadDoc(t, `
collections:
  - name: broken
    execution: {mode: sideways}
    requests: [{url: "http://fake/a"}, {url: "http://fake/b"}]
  - name: ok
    requests: [{url: "http://fake/c"}]
`)

	res, err := newTestRunner(fake).Run(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, []Status{StatusError, StatusError, StatusPassed}, statuses(res))
	assert.Equal(t, KindConfiguration, res.Outcomes[0].Kind)
	assert.Equal(t, 1, fake.callCount())
}

func TestRun_CollectionsStopWithoutContinueOnError(t *testing.T) {
	fake := &fakeDispatcher{handle: func(*http.Request, int) (*http.Response, error) {
		return respond(500, `{}`), nil
	}}
	doc := loadDoc(t, `
execution: {continueOnError: false}
collections:
  - name: first
    requests: [{url: "http://fake/a", expect: 200}, {url: "http://fake/b", expect: 200}]
  - name: second
    requests: [{url: "http://fake/c"}]
`)

	res, err := newTestRunner(fake).Run(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, []Status{StatusFailed, StatusFailed, StatusSkipped}, statuses(res))
	assert.Equal(t, "second", res.Outcomes[2].Collection)
	assert.Contains(t, res.Outcomes[2].Reason, `collection "first" failed`)
}

func TestRun_ParallelCollections(t *testing.T) {
	fake := &fakeDispatcher{delay: 40 * time.Millisecond}
	doc := loadDoc(t, `
execution: {mode: parallel, maxConcurrent: 2}
collections:
  - name: a
    requests: [{url: "http://fake/a"}]
  - name: b
    requests: [{url: "http://fake/b"}]
`)

	res, err := newTestRunner(fake).Run(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Summary.Passed)
	assert.Equal(t, 2, fake.maxInFlight)
}

func TestRun_SkipAndNameFilter(t *testing.T) {
	fake := &fakeDispatcher{}
	doc := loadDoc(t, `
requests:
  - {name: users-list, url: "http://fake/1"}
  - {name: users-get, url: "http://fake/2", skip: "flaky upstream"}
  - {name: orders-list, url: "http://fake/3"}
`)

	res, err := newTestRunner(fake, WithNameFilter("users-*")).Run(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, []Status{StatusPassed, StatusSkipped, StatusSkipped}, statuses(res))
	assert.Equal(t, "flaky upstream", res.Outcomes[1].Reason)
	assert.Equal(t, "filtered out", res.Outcomes[2].Reason)
	assert.True(t, res.Summary.OK())
}

func TestRun_OnOutcomeStream(t *testing.T) {
	fake := &fakeDispatcher{delay: 5 * time.Millisecond}
	doc := loadDoc(t, `
defaults:
  execution: {mode: parallel, maxConcurrent: 4}
requests:
  - {url: "http://fake/1"}
  - {url: "http://fake/2"}
  - {url: "http://fake/3"}
  - {url: "http://fake/4"}
`)

	var streamed []*Outcome
	res, err := newTestRunner(fake, WithOnOutcome(func(o *Outcome) {
		streamed = append(streamed, o)
	})).Run(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, res.Outcomes, streamed)
}

func TestRun_RateLimit(t *testing.T) {
	fake := &fakeDispatcher{}
	doc := loadDoc(t, `
defaults:
  execution: {rateLimit: 20}
requests:
  - {url: "http://fake/1"}
  - {url: "http://fake/2"}
  - {url: "http://fake/3"}
`)

	start := time.Now()
	_, err := newTestRunner(fake).Run(context.Background(), doc)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestRunner_SeedOrder(t *testing.T) {
	dir := t.TempDir()
	varsFile := filepath.Join(dir, "vars.json")
	require.NoError(t, os.WriteFile(varsFile, []byte(`{"HOST":"file","PORT":"1","db":{"name":"app"}}`), 0o644))

	doc := loadDoc(t, `
variables:
  HOST: declared
  PORT: "2"
`)
	doc.VariableFiles = []string{varsFile}

	store := env.NewStore(env.WithEnviron(nil))
	r := NewRunner(store, WithOverrides(map[string]any{"PORT": "3"}))
	require.NoError(t, r.Seed(doc))

	for name, want := range map[string]any{"HOST": "declared", "PORT": "3", "db.name": "app"} {
		got, ok := store.Lookup(name)
		require.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}

	doc.VariableFiles = []string{filepath.Join(dir, "missing.json")}
	_, err := r.Run(context.Background(), doc)
	assert.Error(t, err)
}

func TestMatchesPattern(t *testing.T) {
	tests := []struct {
		name, pattern string
		want          bool
	}{
		{"login", "", true},
		{"login", "*", true},
		{"login", "login", true},
		{"login", "log*", true},
		{"login", "*gin", true},
		{"login", "*ogi*", true},
		{"login", "logout", false},
		{"login", "out*", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchesPattern(tt.name, tt.pattern), "%s ~ %s", tt.name, tt.pattern)
	}
}
