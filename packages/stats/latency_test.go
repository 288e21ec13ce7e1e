package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Summary(t *testing.T) {
	r := NewRecorder()

	r.Record("login", 100*time.Millisecond, false, false)
	r.Record("login", 150*time.Millisecond, false, false)
	r.Record("users", 200*time.Millisecond, false, false)
	r.Record("users", 5*time.Second, true, true)

	s := r.Summary()
	assert.Equal(t, int64(4), s.Count)
	assert.Equal(t, int64(1), s.Errors)
	assert.Equal(t, int64(1), s.Timeouts)
	assert.InDelta(t, float64(100*time.Millisecond), float64(s.Min), float64(time.Millisecond))
	assert.InDelta(t, float64(5*time.Second), float64(s.Max), float64(10*time.Millisecond))
	assert.True(t, s.P50 >= s.Min && s.P50 <= s.P95 && s.P95 <= s.Max)
}

func TestRecorder_Empty(t *testing.T) {
	assert.Equal(t, Latency{}, NewRecorder().Summary())
	assert.Empty(t, NewRecorder().Breakdown())
}

func TestRecorder_Breakdown(t *testing.T) {
	r := NewRecorder()
	r.Record("b", time.Millisecond, false, false)
	r.Record("a", time.Millisecond, true, false)
	r.Record("a", 2*time.Millisecond, false, false)
	r.Record("", time.Millisecond, false, false)

	got := r.Breakdown()
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Name)
	assert.Equal(t, int64(2), got[0].Attempts)
	assert.Equal(t, int64(1), got[0].Errors)
	assert.Equal(t, "b", got[1].Name)
	assert.Equal(t, int64(4), r.Summary().Count)
}

func TestRecorder_Concurrent(t *testing.T) {
	r := NewRecorder()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Record("same", time.Millisecond, false, false)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), r.Summary().Count)
	assert.Equal(t, int64(50), r.Breakdown()[0].Attempts)
}

func TestRecorder_ClampsOutOfRange(t *testing.T) {
	r := NewRecorder()
	r.Record("x", 0, false, false)
	r.Record("x", time.Hour, false, false)

	s := r.Summary()
	assert.Equal(t, time.Microsecond, s.Min)
	assert.InDelta(t, float64(10*time.Minute), float64(s.Max), float64(time.Second))
}
