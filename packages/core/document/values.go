package document

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/abdul-hamid-achik/hitchain/packages/core/tree"
)

// asMap accepts the ordered maps produced by Parse as well as plain maps
// built in code. Plain maps are ordered by key.
func asMap(v any) (*tree.Map, bool) {
	switch m := v.(type) {
	case *tree.Map:
		return m, true
	case map[string]any:
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := tree.NewMap()
		for _, k := range keys {
			out.Set(k, m[k])
		}
		return out, true
	default:
		return nil, false
	}
}

func getString(m *tree.Map, key, path string) (string, bool, error) {
	v, ok := m.Get(key)
	if !ok || v == nil {
		return "", false, nil
	}
	s, ok := scalarString(v)
	if !ok {
		return "", true, configErr(join(path, key), "expected a string, got %s", kindOf(v))
	}
	return s, true, nil
}

// getInt reads a non-negative integer. Whole floats are accepted.
func getInt(m *tree.Map, key, path string) (*int, error) {
	v, ok := m.Get(key)
	if !ok || v == nil {
		return nil, nil
	}
	n, ok := toInt(v)
	if !ok {
		return nil, configErr(join(path, key), "expected an integer, got %s", kindOf(v))
	}
	if n < 0 {
		return nil, configErr(join(path, key), "must not be negative, got %d", n)
	}
	return &n, nil
}

func getFloat(m *tree.Map, key, path string) (*float64, error) {
	v, ok := m.Get(key)
	if !ok || v == nil {
		return nil, nil
	}
	var f float64
	switch n := v.(type) {
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint64:
		f = float64(n)
	case float64:
		f = n
	default:
		return nil, configErr(join(path, key), "expected a number, got %s", kindOf(v))
	}
	if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, configErr(join(path, key), "must be a finite non-negative number")
	}
	return &f, nil
}

func getBool(m *tree.Map, key, path string) (*bool, error) {
	v, ok := m.Get(key)
	if !ok || v == nil {
		return nil, nil
	}
	b, ok := v.(bool)
	if !ok {
		return nil, configErr(join(path, key), "expected a boolean, got %s", kindOf(v))
	}
	return &b, nil
}

// getStringMap reads a mapping of scalars. Numbers and booleans are
// rendered as text.
func getStringMap(m *tree.Map, key, path string) (map[string]string, error) {
	v, ok := m.Get(key)
	if !ok || v == nil {
		return nil, nil
	}
	src, ok := asMap(v)
	if !ok {
		return nil, configErr(join(path, key), "expected a mapping, got %s", kindOf(v))
	}
	out := make(map[string]string, src.Len())
	var err error
	src.Range(func(k string, item any) bool {
		s, ok := scalarString(item)
		if !ok {
			err = configErr(join(join(path, key), k), "expected a scalar, got %s", kindOf(item))
			return false
		}
		out[k] = s
		return true
	})
	return out, err
}

func getVariables(m *tree.Map, key, path string) (*tree.Map, error) {
	v, ok := m.Get(key)
	if !ok || v == nil {
		return tree.NewMap(), nil
	}
	vars, ok := asMap(v)
	if !ok {
		return nil, configErr(join(path, key), "expected a mapping, got %s", kindOf(v))
	}
	return vars, nil
}

// statusList reads a single status code or a list of codes.
func statusList(v any, path string) ([]int, error) {
	if v == nil {
		return nil, nil
	}
	items, isList := v.([]any)
	if !isList {
		items = []any{v}
	}
	out := make([]int, 0, len(items))
	for _, item := range items {
		n, ok := toInt(item)
		if !ok {
			if s, isStr := item.(string); isStr {
				n, ok = atoi(s)
			}
		}
		if !ok || n < 100 || n > 599 {
			return nil, configErr(path, "invalid status %v", item)
		}
		out = append(out, n)
	}
	return out, nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		if n > math.MaxInt {
			return 0, false
		}
		return int(n), true
	case float64:
		if n != math.Trunc(n) || math.Abs(n) > math.MaxInt32 {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

func atoi(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	return n, err == nil
}

func scalarString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case bool:
		return strconv.FormatBool(s), true
	case int:
		return strconv.Itoa(s), true
	case int64:
		return strconv.FormatInt(s, 10), true
	case uint64:
		return strconv.FormatUint(s, 10), true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	default:
		return "", false
	}
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case int, int64, uint64, float64:
		return "number"
	case *tree.Map, map[string]any:
		return "mapping"
	case []any:
		return "sequence"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func index(path string, i int) string {
	return fmt.Sprintf("%s[%d]", path, i)
}
