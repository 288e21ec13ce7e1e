package env

import (
	"os"
	"sync"
)

// Lookuper answers variable lookups. NotFound is reported through the
// boolean, never as an error.
type Lookuper interface {
	Lookup(name string) (any, bool)
}

// Store holds the global scope and the run-wide session scope that receives
// extraction writes. Collection and request scopes are supplied per
// snapshot since they are immutable after load.
type Store struct {
	mu      sync.RWMutex
	global  map[string]any
	session map[string]any
	environ func(string) (string, bool)
}

type StoreOption func(*Store)

// WithEnviron replaces the process environment lookup. Passing nil disables
// the environment fallback entirely.
func WithEnviron(fn func(string) (string, bool)) StoreOption {
	return func(s *Store) {
		s.environ = fn
	}
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		global:  make(map[string]any),
		session: make(map[string]any),
		environ: os.LookupEnv,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetGlobal defines name in the global scope. Later calls win.
func (s *Store) SetGlobal(name string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.global[name] = value
}

// SetGlobals merges vars into the global scope.
func (s *Store) SetGlobals(vars map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range vars {
		s.global[k] = v
	}
}

// Write stores an extracted value in the session scope, where every request
// materialized afterwards can see it.
func (s *Store) Write(name string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session[name] = value
}

// Lookup resolves name against session, global and environment only.
func (s *Store) Lookup(name string) (any, bool) {
	return s.Snapshot(nil, nil).Lookup(name)
}

// Session returns a copy of every value written by extraction so far.
func (s *Store) Session() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyVars(s.session)
}

// Snapshot takes a point-in-time copy of the shared scopes layered under the
// given collection and request scopes.
func (s *Store) Snapshot(collection, request map[string]any) *Snapshot {
	s.mu.RLock()
	session := copyVars(s.session)
	global := copyVars(s.global)
	s.mu.RUnlock()

	return &Snapshot{
		layers:  []map[string]any{request, session, collection, global},
		environ: s.environ,
	}
}

// Snapshot is an immutable view over every scope at the moment it was taken.
type Snapshot struct {
	layers  []map[string]any
	environ func(string) (string, bool)
}

func (sn *Snapshot) Lookup(name string) (any, bool) {
	for _, layer := range sn.layers {
		if v, ok := layer[name]; ok {
			return v, true
		}
	}
	if sn.environ != nil {
		if v, ok := sn.environ(name); ok {
			return v, true
		}
	}
	return nil, false
}

// With returns a snapshot with vars layered on top, used for values that are
// only meaningful to a single expansion.
func (sn *Snapshot) With(vars map[string]any) *Snapshot {
	layers := make([]map[string]any, 0, len(sn.layers)+1)
	layers = append(layers, vars)
	layers = append(layers, sn.layers...)
	return &Snapshot{layers: layers, environ: sn.environ}
}

func copyVars(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
