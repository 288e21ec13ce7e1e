package stats

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	minLatencyUs = 1
	// 10 minutes covers any per-request timeout a document can sensibly set
	maxLatencyUs = 600_000_000
	sigFigs      = 3
)

// Recorder collects dispatch attempts. It is safe for concurrent use.
type Recorder struct {
	mu sync.Mutex

	total    atomic.Int64
	errors   atomic.Int64
	timeouts atomic.Int64

	// Latency histogram (in microseconds for precision)
	histogram *hdrhistogram.Histogram

	perRequest map[string]*requestStats
}

type requestStats struct {
	attempts  int64
	errors    int64
	histogram *hdrhistogram.Histogram
}

func NewRecorder() *Recorder {
	return &Recorder{
		histogram:  newHistogram(),
		perRequest: make(map[string]*requestStats),
	}
}

func newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(minLatencyUs, maxLatencyUs, sigFigs)
}

func clampUs(d time.Duration) int64 {
	us := d.Microseconds()
	if us < minLatencyUs {
		us = minLatencyUs
	}
	if us > maxLatencyUs {
		us = maxLatencyUs
	}
	return us
}

// Record adds one dispatch attempt. failed marks attempts that produced no
// response; timedOut additionally marks transport timeouts.
func (r *Recorder) Record(name string, d time.Duration, failed, timedOut bool) {
	r.total.Add(1)
	if failed {
		r.errors.Add(1)
	}
	if timedOut {
		r.timeouts.Add(1)
	}

	us := clampUs(d)

	r.mu.Lock()
	defer r.mu.Unlock()

	_ = r.histogram.RecordValue(us)

	if name == "" {
		return
	}
	rs, ok := r.perRequest[name]
	if !ok {
		rs = &requestStats{histogram: newHistogram()}
		r.perRequest[name] = rs
	}
	rs.attempts++
	if failed {
		rs.errors++
	}
	_ = rs.histogram.RecordValue(us)
}

// Latency is a percentile summary over recorded attempts.
type Latency struct {
	Count    int64         `json:"count"`
	Errors   int64         `json:"errors"`
	Timeouts int64         `json:"timeouts"`
	Min      time.Duration `json:"min"`
	Mean     time.Duration `json:"mean"`
	P50      time.Duration `json:"p50"`
	P95      time.Duration `json:"p95"`
	P99      time.Duration `json:"p99"`
	Max      time.Duration `json:"max"`
	StdDev   time.Duration `json:"stdDev"`
}

// RequestLatency is the latency summary of one request name.
type RequestLatency struct {
	Name     string        `json:"name"`
	Attempts int64         `json:"attempts"`
	Errors   int64         `json:"errors"`
	P50      time.Duration `json:"p50"`
	P95      time.Duration `json:"p95"`
	Mean     time.Duration `json:"mean"`
	Max      time.Duration `json:"max"`
}

// Summary returns the overall latency summary. It is zero when nothing has
// been recorded.
func (r *Recorder) Summary() Latency {
	r.mu.Lock()
	defer r.mu.Unlock()

	l := Latency{
		Count:    r.total.Load(),
		Errors:   r.errors.Load(),
		Timeouts: r.timeouts.Load(),
	}
	if l.Count == 0 {
		return l
	}

	h := r.histogram
	l.Min = us(h.Min())
	l.Mean = us(int64(h.Mean()))
	l.P50 = us(h.ValueAtQuantile(50))
	l.P95 = us(h.ValueAtQuantile(95))
	l.P99 = us(h.ValueAtQuantile(99))
	l.Max = us(h.Max())
	l.StdDev = us(int64(h.StdDev()))
	return l
}

// Breakdown returns per-request summaries sorted by name.
func (r *Recorder) Breakdown() []RequestLatency {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]RequestLatency, 0, len(r.perRequest))
	for name, rs := range r.perRequest {
		out = append(out, RequestLatency{
			Name:     name,
			Attempts: rs.attempts,
			Errors:   rs.errors,
			P50:      us(rs.histogram.ValueAtQuantile(50)),
			P95:      us(rs.histogram.ValueAtQuantile(95)),
			Mean:     us(int64(rs.histogram.Mean())),
			Max:      us(rs.histogram.Max()),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func us(v int64) time.Duration {
	return time.Duration(v) * time.Microsecond
}
