package env

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// LoadFile merges a flat or nested JSON object into the global scope.
// Nested objects are kept as structured values under their top-level key and
// also flattened into dotted keys, so both ${db} and ${db.host} resolve.
// Load files before applying declared variables: the last write wins.
func (s *Store) LoadFile(path string) error {
	vars, err := ReadVariableFile(path)
	if err != nil {
		return err
	}
	s.SetGlobals(vars)
	return nil
}

// ReadVariableFile parses a JSON variable file without touching any store.
func ReadVariableFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open variable file: %w", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing variable file %s: %w", path, err)
	}

	result := make(map[string]any, len(doc))
	for k, v := range doc {
		result[k] = v
		if nested, ok := v.(map[string]any); ok {
			flatten(k, nested, result)
		}
	}
	return result, nil
}

func flatten(prefix string, src map[string]any, dst map[string]any) {
	for k, v := range src {
		key := prefix + "." + k
		dst[key] = v
		if nested, ok := v.(map[string]any); ok {
			flatten(key, nested, dst)
		}
	}
}

// LoadSystemEnv returns OS environment variables. With a prefix, only
// matching variables are returned and the prefix is stripped.
func LoadSystemEnv(prefix string) map[string]any {
	result := make(map[string]any)
	for _, e := range os.Environ() {
		key, value, found := strings.Cut(e, "=")
		if !found {
			continue
		}
		if prefix == "" {
			result[key] = value
		} else if len(key) > len(prefix) && strings.HasPrefix(key, prefix) {
			result[key[len(prefix):]] = value
		}
	}
	return result
}
