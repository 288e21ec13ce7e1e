package builtin

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidArgument is returned when a generator cannot make sense of its
// argument, e.g. RANDOM:9-1.
var ErrInvalidArgument = errors.New("invalid generator argument")

// Generator computes a value from the text following the first colon of an
// expression. arg is empty when the expression has no colon.
type Generator func(arg string) (string, error)

type Registry struct {
	generators map[string]Generator
	now        func() time.Time
}

type RegistryOption func(*Registry)

// WithClock fixes the clock used by the DATE, TIME and TIMESTAMP generators.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.now = now
	}
}

func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		generators: make(map[string]Generator),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.registerDefaults()
	return r
}

func (r *Registry) registerDefaults() {
	r.generators["UUID"] = genUUID
	r.generators["DATE"] = r.genDate
	r.generators["TIME"] = r.genTime
	r.generators["RANDOM"] = genRandom
	r.generators["TIMESTAMP"] = r.genTimestamp
}

// Register adds or replaces a generator. Names are matched exactly.
func (r *Registry) Register(name string, fn Generator) {
	r.generators[name] = fn
}

func (r *Registry) Has(name string) bool {
	_, ok := r.generators[name]
	return ok
}

// Call runs the generator registered under name.
func (r *Registry) Call(name, arg string) (string, bool, error) {
	fn, ok := r.generators[name]
	if !ok {
		return "", false, nil
	}
	v, err := fn(arg)
	if err != nil {
		return "", true, fmt.Errorf("%s: %w", name, err)
	}
	return v, true, nil
}

func genUUID(arg string) (string, error) {
	id := uuid.New()
	switch arg {
	case "":
		return id.String(), nil
	case "short":
		return strings.ReplaceAll(id.String(), "-", "")[:8], nil
	default:
		return "", fmt.Errorf("%w: unknown UUID variant %q", ErrInvalidArgument, arg)
	}
}

func (r *Registry) genDate(arg string) (string, error) {
	if arg == "" {
		arg = "YYYY-MM-DD"
	}
	return formatTime(r.now(), arg), nil
}

func (r *Registry) genTime(arg string) (string, error) {
	if arg == "" {
		arg = "HH:mm:ss"
	}
	return formatTime(r.now(), arg), nil
}

func (r *Registry) genTimestamp(arg string) (string, error) {
	switch arg {
	case "":
		return strconv.FormatInt(r.now().Unix(), 10), nil
	case "ms":
		return strconv.FormatInt(r.now().UnixMilli(), 10), nil
	default:
		return "", fmt.Errorf("%w: unknown TIMESTAMP unit %q", ErrInvalidArgument, arg)
	}
}

// formatTime expands the YYYY, MM, DD, HH, mm and ss tokens of format.
// Everything else is copied verbatim.
func formatTime(t time.Time, format string) string {
	var b strings.Builder
	for i := 0; i < len(format); {
		rest := format[i:]
		switch {
		case strings.HasPrefix(rest, "YYYY"):
			fmt.Fprintf(&b, "%04d", t.Year())
			i += 4
			continue
		case strings.HasPrefix(rest, "MM"):
			fmt.Fprintf(&b, "%02d", int(t.Month()))
		case strings.HasPrefix(rest, "DD"):
			fmt.Fprintf(&b, "%02d", t.Day())
		case strings.HasPrefix(rest, "HH"):
			fmt.Fprintf(&b, "%02d", t.Hour())
		case strings.HasPrefix(rest, "mm"):
			fmt.Fprintf(&b, "%02d", t.Minute())
		case strings.HasPrefix(rest, "ss"):
			fmt.Fprintf(&b, "%02d", t.Second())
		default:
			b.WriteByte(format[i])
			i++
			continue
		}
		i += 2
	}
	return b.String()
}

const (
	alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	hexDigits    = "0123456789abcdef"
)

func genRandom(arg string) (string, error) {
	kind, rest, hasRest := strings.Cut(arg, ":")
	switch {
	case kind == "string" && hasRest:
		n, err := parseLength(rest)
		if err != nil {
			return "", err
		}
		return randomString(n, alphanumeric), nil
	case kind == "hex" && hasRest:
		n, err := parseLength(rest)
		if err != nil {
			return "", err
		}
		return randomString(n, hexDigits), nil
	}

	lo, hi, err := parseRange(arg)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(randomInRange(lo, hi), 10), nil
}

// randomInRange draws uniformly from [lo, hi]. The span is computed in
// uint64 so MinInt64-MaxInt64 does not overflow.
func randomInRange(lo, hi int64) int64 {
	span := uint64(hi) - uint64(lo)
	if span == math.MaxUint64 {
		return int64(rand.Uint64())
	}
	n := span + 1
	// Values below 2^64 mod n would bias the low end.
	threshold := -n % n
	v := rand.Uint64()
	for v < threshold {
		v = rand.Uint64()
	}
	return int64(uint64(lo) + v%n)
}

func parseLength(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: length %q is not a non-negative integer", ErrInvalidArgument, s)
	}
	return n, nil
}

// parseRange parses "a-b". A leading minus belongs to the lower bound.
func parseRange(s string) (int64, int64, error) {
	s = strings.TrimSpace(s)
	idx := strings.Index(s[min(1, len(s)):], "-")
	if idx < 0 {
		return 0, 0, fmt.Errorf("%w: range %q must look like min-max", ErrInvalidArgument, s)
	}
	idx += min(1, len(s))

	lo, err := strconv.ParseInt(strings.TrimSpace(s[:idx]), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: range minimum %q is not an integer", ErrInvalidArgument, s[:idx])
	}
	hi, err := strconv.ParseInt(strings.TrimSpace(s[idx+1:]), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: range maximum %q is not an integer", ErrInvalidArgument, s[idx+1:])
	}
	if lo > hi {
		return 0, 0, fmt.Errorf("%w: range %d-%d is empty", ErrInvalidArgument, lo, hi)
	}
	return lo, hi, nil
}

func randomString(length int, charset string) string {
	result := make([]byte, length)
	for i := 0; i < length; i++ {
		result[i] = charset[rand.Intn(len(charset))]
	}
	return string(result)
}
