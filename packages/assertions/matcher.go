package assertions

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/abdul-hamid-achik/hitchain/packages/core/tree"
)

// Kind tags a classified expectation node.
type Kind int

const (
	KindLiteral Kind = iota
	KindWildcard
	KindPattern
	KindObject
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindLiteral:
		return "literal"
	case KindWildcard:
		return "wildcard"
	case KindPattern:
		return "pattern"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	default:
		return "unknown"
	}
}

// Wildcard matches any present value.
const Wildcard = "*"

// Matcher is one node of a classified body expectation.
type Matcher struct {
	Kind Kind
	// Value holds the literal (numbers normalized to float64) or, for
	// patterns, the source as written.
	Value   any
	Pattern *regexp.Regexp
	Fields  []Field
	Elems   []*Matcher
}

// Field is one key of an object matcher. Order follows the expectation.
type Field struct {
	Key     string
	Matcher *Matcher
}

// Classify turns a raw expectation tree into matchers. It fails only on
// regular expressions that do not compile.
func Classify(raw any) (*Matcher, error) {
	return classify(raw, "")
}

func classify(raw any, path string) (*Matcher, error) {
	switch v := raw.(type) {
	case string:
		return classifyString(v, path)
	case *tree.Map:
		m := &Matcher{Kind: KindObject}
		var err error
		v.Range(func(key string, item any) bool {
			var child *Matcher
			child, err = classify(item, childPath(path, key))
			if err != nil {
				return false
			}
			m.Fields = append(m.Fields, Field{Key: key, Matcher: child})
			return true
		})
		if err != nil {
			return nil, err
		}
		return m, nil
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := &Matcher{Kind: KindObject}
		for _, k := range keys {
			child, err := classify(v[k], childPath(path, k))
			if err != nil {
				return nil, err
			}
			m.Fields = append(m.Fields, Field{Key: k, Matcher: child})
		}
		return m, nil
	case []any:
		m := &Matcher{Kind: KindArray}
		for i, item := range v {
			child, err := classify(item, indexPath(path, i))
			if err != nil {
				return nil, err
			}
			m.Elems = append(m.Elems, child)
		}
		return m, nil
	default:
		if n, ok := toFloat64(v); ok {
			return &Matcher{Kind: KindLiteral, Value: n}, nil
		}
		return &Matcher{Kind: KindLiteral, Value: v}, nil
	}
}

func classifyString(s, path string) (*Matcher, error) {
	if s == Wildcard {
		return &Matcher{Kind: KindWildcard, Value: s}, nil
	}

	source, ok := patternSource(s)
	if !ok {
		return &Matcher{Kind: KindLiteral, Value: s}, nil
	}

	re, err := regexp.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q at %s: %w", s, displayPath(path), err)
	}
	return &Matcher{Kind: KindPattern, Value: s, Pattern: re}, nil
}

// patternSource reports whether s is written as a regular expression:
// delimited by slashes (optionally followed by the i flag) or anchored
// with a leading caret.
func patternSource(s string) (string, bool) {
	if len(s) >= 3 && s[0] == '/' {
		if strings.HasSuffix(s, "/i") && len(s) >= 4 {
			return "(?i)" + s[1:len(s)-2], true
		}
		if s[len(s)-1] == '/' {
			return s[1 : len(s)-1], true
		}
	}
	if strings.HasPrefix(s, "^") {
		return s, true
	}
	return "", false
}

func childPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}

func indexPath(parent string, i int) string {
	return fmt.Sprintf("%s[%d]", parent, i)
}

func displayPath(path string) string {
	if path == "" {
		return "$"
	}
	return path
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
