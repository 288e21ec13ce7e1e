package env

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeEnviron(vars map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

func TestSnapshot_Precedence(t *testing.T) {
	s := NewStore(WithEnviron(fakeEnviron(map[string]string{
		"NAME":     "from-env",
		"ENV_ONLY": "env",
	})))
	s.SetGlobal("NAME", "global")
	s.SetGlobal("GLOBAL_ONLY", "g")

	collection := map[string]any{"NAME": "collection", "COLL_ONLY": "c"}
	request := map[string]any{"NAME": "request"}

	tests := []struct {
		name       string
		collection map[string]any
		request    map[string]any
		lookup     string
		want       any
		found      bool
	}{
		{"request shadows everything", collection, request, "NAME", "request", true},
		{"collection shadows global", collection, nil, "NAME", "collection", true},
		{"global shadows environment", nil, nil, "NAME", "global", true},
		{"collection only", collection, request, "COLL_ONLY", "c", true},
		{"global only", collection, request, "GLOBAL_ONLY", "g", true},
		{"environment fallback", collection, request, "ENV_ONLY", "env", true},
		{"not found", collection, request, "MISSING", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := s.Snapshot(tt.collection, tt.request).Lookup(tt.lookup)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStore_WriteIsVisibleToLaterSnapshots(t *testing.T) {
	s := NewStore(WithEnviron(nil))
	s.SetGlobal("TOKEN", "placeholder")

	before := s.Snapshot(nil, nil)
	s.Write("TOKEN", "abc123")
	after := s.Snapshot(map[string]any{"TOKEN": "collection"}, nil)

	v, _ := before.Lookup("TOKEN")
	assert.Equal(t, "placeholder", v, "snapshots taken earlier must not observe later writes")

	v, _ = after.Lookup("TOKEN")
	assert.Equal(t, "abc123", v, "extracted values override declared collection and global values")

	v, _ = s.Snapshot(nil, map[string]any{"TOKEN": "mine"}).Lookup("TOKEN")
	assert.Equal(t, "mine", v, "request scope still wins")

	assert.Equal(t, map[string]any{"TOKEN": "abc123"}, s.Session())
}

func TestStore_ConcurrentWrites(t *testing.T) {
	s := NewStore(WithEnviron(nil))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Write(fmt.Sprintf("VAR_%d", i), i)
			_ = s.Snapshot(nil, nil)
		}(i)
	}
	wg.Wait()

	assert.Len(t, s.Session(), 50)
}

func TestStore_LoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vars.json")
	content := `{"BASE_URL": "http://file", "PORT": 8080, "db": {"host": "localhost", "opts": {"ssl": true}}}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	s := NewStore(WithEnviron(nil))
	require.NoError(t, s.LoadFile(path))
	s.SetGlobal("BASE_URL", "http://declared")

	tests := []struct {
		name string
		want any
	}{
		{"BASE_URL", "http://declared"},
		{"PORT", float64(8080)},
		{"db.host", "localhost"},
		{"db.opts.ssl", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := s.Lookup(tt.name)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	db, ok := s.Lookup("db")
	require.True(t, ok)
	assert.IsType(t, map[string]any{}, db)
}

func TestStore_LoadFileErrors(t *testing.T) {
	s := NewStore()
	assert.Error(t, s.LoadFile("/nonexistent/vars.json"))

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`[1, 2]`), 0644))
	assert.Error(t, s.LoadFile(path))
}

func TestSnapshot_With(t *testing.T) {
	s := NewStore(WithEnviron(nil))
	s.SetGlobal("A", "global")
	sn := s.Snapshot(nil, nil).With(map[string]any{"A": "local"})

	v, _ := sn.Lookup("A")
	assert.Equal(t, "local", v)
}

func TestLoadSystemEnv(t *testing.T) {
	t.Setenv("HITCHAIN_TEST_TOKEN", "secret")

	all := LoadSystemEnv("")
	assert.Equal(t, "secret", all["HITCHAIN_TEST_TOKEN"])

	prefixed := LoadSystemEnv("HITCHAIN_TEST_")
	assert.Equal(t, "secret", prefixed["TOKEN"])
	_, ok := prefixed["HITCHAIN_TEST_TOKEN"]
	assert.False(t, ok)
}
