package template

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/abdul-hamid-achik/hitchain/packages/builtin"
	"github.com/abdul-hamid-achik/hitchain/packages/core/env"
	"github.com/abdul-hamid-achik/hitchain/packages/core/tree"
)

// DefaultMaxPasses bounds fixpoint expansion. Reference cycles hit it.
const DefaultMaxPasses = 10

// Policy decides what happens to a ${NAME} whose NAME is not defined.
type Policy struct {
	MaxPasses int
	// Strict turns every unresolved reference into an error.
	Strict bool
	// StrictURL turns unresolved references inside URLs into errors.
	StrictURL bool
}

func DefaultPolicy() Policy {
	return Policy{
		MaxPasses: DefaultMaxPasses,
		StrictURL: true,
	}
}

// WarnFunc is a function type for handling warnings
type WarnFunc func(format string, args ...any)

// Resolver expands expressions. It holds no variables itself: every call
// receives the scope to resolve against, so one Resolver serves concurrent
// workers.
type Resolver struct {
	funcs    *builtin.Registry
	policy   Policy
	warnFunc WarnFunc
}

type Option func(*Resolver)

func WithPolicy(p Policy) Option {
	return func(r *Resolver) {
		r.policy = p
	}
}

func WithRegistry(reg *builtin.Registry) Option {
	return func(r *Resolver) {
		r.funcs = reg
	}
}

// WithWarnFunc sets a function to be called when a reference is left unresolved.
func WithWarnFunc(fn WarnFunc) Option {
	return func(r *Resolver) {
		r.warnFunc = fn
	}
}

func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		funcs:  builtin.NewRegistry(),
		policy: DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.policy.MaxPasses <= 0 {
		r.policy.MaxPasses = DefaultMaxPasses
	}
	return r
}

func (r *Resolver) Policy() Policy {
	return r.policy
}

// WithWarnFunc returns a copy of r reporting warnings to fn.
func (r *Resolver) WithWarnFunc(fn WarnFunc) *Resolver {
	clone := *r
	clone.warnFunc = fn
	return &clone
}

func (r *Resolver) warn(format string, args ...any) {
	if r.warnFunc != nil {
		r.warnFunc(format, args...)
	}
}

// Resolve expands every expression in input. Unresolved references become
// empty strings with a warning unless the policy is strict.
func (r *Resolver) Resolve(input string, vars env.Lookuper) (string, error) {
	return r.expand(input, vars, r.policy.Strict)
}

// ResolveURL expands input that participates in a URL, where an unresolved
// reference is an error under the default policy.
func (r *Resolver) ResolveURL(input string, vars env.Lookuper) (string, error) {
	return r.expand(input, vars, r.policy.Strict || r.policy.StrictURL)
}

// ResolveMap expands every value of m.
func (r *Resolver) ResolveMap(m map[string]string, vars env.Lookuper) (map[string]string, error) {
	result := make(map[string]string, len(m))
	for k, v := range m {
		resolved, err := r.Resolve(v, vars)
		if err != nil {
			return nil, err
		}
		result[k] = resolved
	}
	return result, nil
}

// ResolveValue expands a structured value leaf by leaf. A string leaf that
// is exactly one ${NAME} referencing a non-string value is replaced by that
// value, keeping its type.
func (r *Resolver) ResolveValue(v any, vars env.Lookuper) (any, error) {
	switch val := v.(type) {
	case string:
		if typed, ok := r.typedLookup(val, vars); ok {
			return typed, nil
		}
		return r.Resolve(val, vars)
	case *tree.Map:
		out := tree.NewMap()
		var err error
		val.Range(func(k string, item any) bool {
			var resolved any
			resolved, err = r.ResolveValue(item, vars)
			if err != nil {
				return false
			}
			out.Set(k, resolved)
			return true
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			resolved, err := r.ResolveValue(item, vars)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			resolved, err := r.ResolveValue(item, vars)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

func (r *Resolver) typedLookup(s string, vars env.Lookuper) (any, bool) {
	start, end := findExpression(s, 0)
	if start != 0 || end != len(s) {
		return nil, false
	}
	parts := splitParts(s[2 : len(s)-1])
	name := strings.TrimSpace(parts[0])
	if HasExpression(name) || r.funcs.Has(name) {
		return nil, false
	}
	if (len(parts) == 2 && isTransform(parts[1])) || len(parts) == 4 {
		return nil, false
	}
	v, found := vars.Lookup(name)
	if !found {
		return nil, false
	}
	if _, isString := v.(string); isString || v == nil {
		return nil, false
	}
	return v, true
}

func (r *Resolver) expand(input string, vars env.Lookuper, strict bool) (string, error) {
	if !HasExpression(input) {
		return input, nil
	}

	current := input
	for pass := 0; pass < r.policy.MaxPasses; pass++ {
		next, err := r.pass(current, vars, strict)
		if err != nil {
			return "", err
		}
		current = next
		if !HasExpression(current) {
			return current, nil
		}
	}

	return "", unresolved(Expressions(current)[0], "expansion did not settle after %d passes", r.policy.MaxPasses)
}

func (r *Resolver) pass(s string, vars env.Lookuper, strict bool) (string, error) {
	var b strings.Builder
	i := 0
	for {
		start, end := findExpression(s, i)
		if start < 0 {
			b.WriteString(s[i:])
			return b.String(), nil
		}
		b.WriteString(s[i:start])
		val, err := r.evaluate(s[start+2:end-1], vars, strict)
		if err != nil {
			return "", err
		}
		b.WriteString(val)
		i = end
	}
}

func (r *Resolver) evaluate(body string, vars env.Lookuper, strict bool) (string, error) {
	expr := "${" + body + "}"
	parts := splitParts(body)

	name := strings.TrimSpace(parts[0])
	if HasExpression(name) {
		var err error
		if name, err = r.expand(name, vars, strict); err != nil {
			return "", err
		}
	}

	if r.funcs.Has(name) {
		return r.generate(expr, name, strings.Join(parts[1:], ":"), vars, strict)
	}

	value, found := vars.Lookup(name)

	switch {
	case len(parts) == 1:
		if !found {
			return r.missing(expr, name, strict)
		}
		return Stringify(value), nil

	case len(parts) == 2 && isTransform(parts[1]):
		if !found {
			return r.missing(expr, name, strict)
		}
		if strings.TrimSpace(parts[1]) == "upper" {
			return strings.ToUpper(Stringify(value)), nil
		}
		return strings.ToLower(Stringify(value)), nil

	case len(parts) == 4:
		match := parts[1]
		if HasExpression(match) {
			var err error
			if match, err = r.expand(match, vars, strict); err != nil {
				return "", err
			}
		}
		if found && Stringify(value) == match {
			return parts[2], nil
		}
		return parts[3], nil

	default:
		if found {
			return Stringify(value), nil
		}
		return strings.Join(parts[1:], ":"), nil
	}
}

func (r *Resolver) generate(expr, name, arg string, vars env.Lookuper, strict bool) (string, error) {
	if HasExpression(arg) {
		var err error
		if arg, err = r.expand(arg, vars, strict); err != nil {
			return "", err
		}
	}
	v, _, err := r.funcs.Call(name, arg)
	if err != nil {
		return "", &ReferenceError{Kind: ErrInvalidExpression, Expr: expr, Reason: err.Error()}
	}
	return v, nil
}

func (r *Resolver) missing(expr, name string, strict bool) (string, error) {
	if strict {
		return "", unresolved(expr, "variable %q is not defined", name)
	}
	r.warn("unresolved variable: %s", expr)
	return "", nil
}

func isTransform(s string) bool {
	s = strings.TrimSpace(s)
	return s == "upper" || s == "lower"
}

// Stringify renders a variable value the way it is substituted into text.
// Whole numbers print without a fraction; structured values print as JSON.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1e15 {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return Stringify(float64(val))
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", val)
	case json.Number:
		return val.String()
	case *tree.Map, map[string]any, []any:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	default:
		return fmt.Sprintf("%v", val)
	}
}
