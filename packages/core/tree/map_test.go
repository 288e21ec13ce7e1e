package tree

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap_PreservesOrder(t *testing.T) {
	m := NewMap()
	m.Set("zeta", 1)
	m.Set("alpha", 2)
	m.Set("mid", 3)
	m.Set("zeta", 4)

	assert.Equal(t, []string{"zeta", "alpha", "mid"}, m.Keys())
	v, ok := m.Get("zeta")
	require.True(t, ok)
	assert.Equal(t, 4, v)
	assert.Equal(t, 3, m.Len())
}

func TestMap_MarshalJSON(t *testing.T) {
	inner := NewMap()
	inner.Set("b", true)
	inner.Set("a", nil)

	m := NewMap()
	m.Set("name", "Bret")
	m.Set("nested", inner)
	m.Set("list", []any{1, "two"})

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"Bret","nested":{"b":true,"a":null},"list":[1,"two"]}`, string(data))
}

func TestPlain(t *testing.T) {
	inner := NewMap()
	inner.Set("id", 1)
	m := NewMap()
	m.Set("user", inner)
	m.Set("tags", []any{inner})

	plain := Plain(m)
	assert.Equal(t, map[string]any{
		"user": map[string]any{"id": 1},
		"tags": []any{map[string]any{"id": 1}},
	}, plain)
}

func TestMap_NilReceiver(t *testing.T) {
	var m *Map
	assert.Equal(t, 0, m.Len())
	assert.Nil(t, m.Keys())
	_, ok := m.Get("x")
	assert.False(t, ok)
}
