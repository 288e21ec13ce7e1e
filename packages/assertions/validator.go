package assertions

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/abdul-hamid-achik/hitchain/packages/http"
	"github.com/tidwall/gjson"
	"github.com/xeipuuv/gojsonschema"
)

// ErrValidationMismatch matches the error of a failed validation.
var ErrValidationMismatch = errors.New("validation mismatch")

// Source names the part of the response a mismatch was found in.
type Source string

const (
	SourceStatus Source = "status"
	SourceHeader Source = "header"
	SourceBody   Source = "body"
	SourceSchema Source = "schema"
)

// Mismatch is a single failed check. Actual is nil when the value is
// missing from the response.
type Mismatch struct {
	Source   Source `json:"source"`
	Path     string `json:"path,omitempty"`
	Expected any    `json:"expected,omitempty"`
	Actual   any    `json:"actual,omitempty"`
	Message  string `json:"message"`
}

func (m Mismatch) String() string {
	if m.Path == "" {
		return fmt.Sprintf("%s: %s", m.Source, m.Message)
	}
	return fmt.Sprintf("%s %s: %s", m.Source, m.Path, m.Message)
}

type Result struct {
	Passed     bool
	Mismatches []Mismatch
}

// Err returns nil for a passing result and a *MismatchError otherwise.
func (r *Result) Err() error {
	if r == nil || r.Passed {
		return nil
	}
	return &MismatchError{Mismatches: r.Mismatches}
}

type MismatchError struct {
	Mismatches []Mismatch
}

func (e *MismatchError) Error() string {
	if len(e.Mismatches) == 1 {
		return e.Mismatches[0].String()
	}
	return fmt.Sprintf("%d mismatches; first: %s", len(e.Mismatches), e.Mismatches[0])
}

func (e *MismatchError) Unwrap() error {
	return ErrValidationMismatch
}

// Validate checks resp against exp and reports every mismatch found.
func Validate(resp *http.Response, exp *Expectation) *Result {
	v := &validator{}

	if exp != nil {
		v.status(resp, exp.Status)
		v.headers(resp, exp.Headers)
		if exp.Body != nil {
			v.body(resp, exp.Body)
		}
		if exp.Schema != nil {
			v.schema(resp, exp.Schema)
		}
	}

	return &Result{Passed: len(v.mismatches) == 0, Mismatches: v.mismatches}
}

type validator struct {
	mismatches []Mismatch
}

func (v *validator) add(m Mismatch) {
	v.mismatches = append(v.mismatches, m)
}

func (v *validator) status(resp *http.Response, accepted []int) {
	if len(accepted) == 0 || slices.Contains(accepted, resp.StatusCode) {
		return
	}

	var expected any = accepted
	msg := fmt.Sprintf("expected one of %v, got %d", accepted, resp.StatusCode)
	if len(accepted) == 1 {
		expected = accepted[0]
		msg = fmt.Sprintf("expected %d, got %d", accepted[0], resp.StatusCode)
	}
	v.add(Mismatch{Source: SourceStatus, Expected: expected, Actual: resp.StatusCode, Message: msg})
}

func (v *validator) headers(resp *http.Response, headers []HeaderExpectation) {
	for _, h := range headers {
		actual, ok := resp.LookupHeader(h.Name)
		if !ok {
			v.add(Mismatch{
				Source:   SourceHeader,
				Path:     h.Name,
				Expected: h.Value,
				Message:  "header is missing",
			})
			continue
		}
		if actual != h.Value {
			v.add(Mismatch{
				Source:   SourceHeader,
				Path:     h.Name,
				Expected: h.Value,
				Actual:   actual,
				Message:  fmt.Sprintf("expected %q, got %q", h.Value, actual),
			})
		}
	}
}

func (v *validator) body(resp *http.Response, m *Matcher) {
	if gjson.ValidBytes(resp.Body) && len(strings.TrimSpace(string(resp.Body))) > 0 {
		v.match(m, gjson.ParseBytes(resp.Body).Value(), true, "")
		return
	}

	// Not JSON: only scalar expectations can apply, against the raw text.
	raw := string(resp.Body)
	switch m.Kind {
	case KindObject, KindArray:
		v.add(Mismatch{
			Source:   SourceBody,
			Path:     "$",
			Expected: m.Kind.String(),
			Actual:   truncate(raw, 200),
			Message:  fmt.Sprintf("expected a JSON %s, body is not valid JSON", m.Kind),
		})
	case KindWildcard:
		if len(resp.Body) == 0 {
			v.add(Mismatch{Source: SourceBody, Path: "$", Expected: Wildcard, Message: "body is empty"})
		}
	default:
		v.match(m, raw, true, "")
	}
}

func (v *validator) match(m *Matcher, actual any, present bool, path string) {
	if !present {
		v.add(Mismatch{
			Source:   SourceBody,
			Path:     displayPath(path),
			Expected: describe(m),
			Message:  "value is missing",
		})
		return
	}

	switch m.Kind {
	case KindWildcard:
		return

	case KindPattern:
		s := stringify(actual)
		if !m.Pattern.MatchString(s) {
			v.add(Mismatch{
				Source:   SourceBody,
				Path:     displayPath(path),
				Expected: m.Value,
				Actual:   actual,
				Message:  fmt.Sprintf("%q does not match %s", s, m.Value),
			})
		}

	case KindLiteral:
		if !literalEqual(m.Value, actual) {
			v.add(Mismatch{
				Source:   SourceBody,
				Path:     displayPath(path),
				Expected: m.Value,
				Actual:   actual,
				Message:  fmt.Sprintf("expected %s, got %s", render(m.Value), render(actual)),
			})
		}

	case KindObject:
		obj, ok := actual.(map[string]any)
		if !ok {
			v.typeMismatch(m, actual, path)
			return
		}
		for _, f := range m.Fields {
			item, found := obj[f.Key]
			v.match(f.Matcher, item, found, childPath(path, f.Key))
		}

	case KindArray:
		arr, ok := actual.([]any)
		if !ok {
			v.typeMismatch(m, actual, path)
			return
		}
		if len(arr) != len(m.Elems) {
			v.add(Mismatch{
				Source:   SourceBody,
				Path:     displayPath(path),
				Expected: len(m.Elems),
				Actual:   len(arr),
				Message:  fmt.Sprintf("expected %d elements, got %d", len(m.Elems), len(arr)),
			})
		}
		for i, elem := range m.Elems {
			if i < len(arr) {
				v.match(elem, arr[i], true, indexPath(path, i))
			}
		}
	}
}

func (v *validator) typeMismatch(m *Matcher, actual any, path string) {
	v.add(Mismatch{
		Source:   SourceBody,
		Path:     displayPath(path),
		Expected: m.Kind.String(),
		Actual:   actual,
		Message:  fmt.Sprintf("expected %s, got %s", m.Kind, jsonType(actual)),
	})
}

func (v *validator) schema(resp *http.Response, schema *gojsonschema.Schema) {
	if !gjson.ValidBytes(resp.Body) || len(resp.Body) == 0 {
		v.add(Mismatch{Source: SourceSchema, Path: "$", Message: "body is not valid JSON"})
		return
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(resp.Body))
	if err != nil {
		v.add(Mismatch{Source: SourceSchema, Path: "$", Message: fmt.Sprintf("schema validation error: %v", err)})
		return
	}

	for _, desc := range result.Errors() {
		path := desc.Field()
		if path == "(root)" {
			path = "$"
		}
		v.add(Mismatch{
			Source:  SourceSchema,
			Path:    path,
			Actual:  desc.Value(),
			Message: desc.Description(),
		})
	}
}

// literalEqual compares type and value. All numbers compare as float64.
func literalEqual(expected, actual any) bool {
	if en, ok := toFloat64(expected); ok {
		an, ok := toFloat64(actual)
		return ok && en == an
	}
	return reflect.DeepEqual(expected, actual)
}

func describe(m *Matcher) any {
	switch m.Kind {
	case KindObject, KindArray:
		return m.Kind.String()
	default:
		return m.Value
	}
}

func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		if _, ok := toFloat64(v); ok {
			return "number"
		}
		return fmt.Sprintf("%T", v)
	}
}

// stringify renders an actual value for pattern matching.
func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1e15 {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		if n, ok := toFloat64(val); ok {
			return stringify(n)
		}
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	}
}

func render(v any) string {
	if s, ok := v.(string); ok {
		return strconv.Quote(s)
	}
	return stringify(v)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
