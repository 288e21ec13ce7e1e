package builtin

import (
	"math"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() time.Time {
	return time.Date(2024, time.March, 5, 7, 8, 9, 0, time.UTC)
}

func TestRegistry_UUID(t *testing.T) {
	r := NewRegistry()

	v, ok, err := r.Call("UUID", "")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Regexp(t, `^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`, v)

	other, _, _ := r.Call("UUID", "")
	assert.NotEqual(t, v, other, "every invocation produces a fresh value")

	short, _, err := r.Call("UUID", "short")
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9a-f]{8}$`, short)

	_, _, err = r.Call("UUID", "long")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestRegistry_DateTime(t *testing.T) {
	r := NewRegistry(WithClock(fixedClock))

	tests := []struct {
		name string
		gen  string
		arg  string
		want string
	}{
		{"default date", "DATE", "", "2024-03-05"},
		{"custom date", "DATE", "DD/MM/YYYY", "05/03/2024"},
		{"default time", "TIME", "", "07:08:09"},
		{"custom time", "TIME", "HH-mm", "07-08"},
		{"literal digits kept", "DATE", "YYYY-MM-DD v1", "2024-03-05 v1"},
		{"literal month name kept", "DATE", "Jan YYYY", "Jan 2024"},
		{"literal layout words kept", "TIME", "HH:mm 3PM MST 2006", "07:08 3PM MST 2006"},
		{"seconds", "TIME", "ss", "09"},
		{"timestamp", "TIMESTAMP", "", strconv.FormatInt(fixedClock().Unix(), 10)},
		{"timestamp ms", "TIMESTAMP", "ms", strconv.FormatInt(fixedClock().UnixMilli(), 10)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := r.Call(tt.gen, tt.arg)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegistry_RandomRange(t *testing.T) {
	r := NewRegistry()

	for i := 0; i < 200; i++ {
		v, _, err := r.Call("RANDOM", "3-5")
		require.NoError(t, err)
		n, err := strconv.Atoi(v)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 3)
		assert.LessOrEqual(t, n, 5)
	}

	v, _, err := r.Call("RANDOM", "-2--2")
	require.NoError(t, err)
	assert.Equal(t, "-2", v)

	v, _, err = r.Call("RANDOM", "7-7")
	require.NoError(t, err)
	assert.Equal(t, "7", v)
}

func TestRegistry_RandomWideRange(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name   string
		arg    string
		lo, hi int64
	}{
		{"zero to max", "0-9223372036854775807", 0, math.MaxInt64},
		{"min to max", "-9223372036854775808-9223372036854775807", math.MinInt64, math.MaxInt64},
		{"min to zero", "-9223372036854775808-0", math.MinInt64, 0},
		{"max only", "9223372036854775807-9223372036854775807", math.MaxInt64, math.MaxInt64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 50; i++ {
				var v string
				var err error
				require.NotPanics(t, func() { v, _, err = r.Call("RANDOM", tt.arg) })
				require.NoError(t, err)
				n, err := strconv.ParseInt(v, 10, 64)
				require.NoError(t, err)
				assert.GreaterOrEqual(t, n, tt.lo)
				assert.LessOrEqual(t, n, tt.hi)
			}
		})
	}
}

func TestRegistry_RandomStrings(t *testing.T) {
	r := NewRegistry()

	s, _, err := r.Call("RANDOM", "string:12")
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[a-zA-Z0-9]{12}$`), s)

	h, _, err := r.Call("RANDOM", "hex:6")
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{6}$`), h)
}

func TestRegistry_InvalidArguments(t *testing.T) {
	r := NewRegistry()

	for _, arg := range []string{"", "abc", "9-1", "1-x", "string:-1", "hex:many"} {
		t.Run(arg, func(t *testing.T) {
			_, ok, err := r.Call("RANDOM", arg)
			assert.True(t, ok)
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
}

func TestRegistry_Unknown(t *testing.T) {
	r := NewRegistry()
	_, ok, err := r.Call("NOPE", "")
	assert.False(t, ok)
	assert.NoError(t, err)
	assert.False(t, r.Has("NOPE"))

	r.Register("NOPE", func(arg string) (string, error) { return "yes", nil })
	v, ok, err := r.Call("NOPE", "")
	assert.True(t, ok)
	assert.NoError(t, err)
	assert.Equal(t, "yes", v)
}
