package capture

import (
	"testing"
	"time"

	"github.com/abdul-hamid-achik/hitchain/packages/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSelector(t *testing.T) {
	tests := []struct {
		in     string
		source Source
		path   string
	}{
		{"$", SourceBody, ""},
		{"$.token", SourceBody, "token"},
		{"$.data.items[0].id", SourceBody, "data.items.0.id"},
		{"$.items[*].id", SourceBody, "items.#.id"},
		{"$['a.b'].c", SourceBody, `a\.b.c`},
		{`$["x"][2]`, SourceBody, "x.2"},
		{"body.user.id", SourceBody, "user.id"},
		{"body", SourceBody, ""},
		{"data.token", SourceBody, "data.token"},
		{"header:X-Request-Id", SourceHeader, "X-Request-Id"},
		{"status", SourceStatus, ""},
		{"duration", SourceDuration, ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			sel, err := ParseSelector(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.source, sel.Source)
			assert.Equal(t, tt.path, sel.Path)
			assert.Equal(t, tt.in, sel.String())
		})
	}
}

func TestParseSelector_Errors(t *testing.T) {
	for _, in := range []string{"", "header:", "$.a..b", "$.a[", "$.a[-1]", "$x"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseSelector(in)
			assert.Error(t, err)
		})
	}
}

func TestExtractor(t *testing.T) {
	resp := &http.Response{
		StatusCode: 201,
		Headers:    map[string]string{"X-Request-Id": "req-1", "Content-Type": "application/json"},
		Body:       []byte(`{"token":"abc","user":{"id":7,"roles":["admin"]},"items":[{"id":1},{"id":2}]}`),
		Duration:   150 * time.Millisecond,
	}
	e := NewExtractor(resp)

	tests := []struct {
		selector string
		want     any
		found    bool
	}{
		{"$.token", "abc", true},
		{"$.user.id", float64(7), true},
		{"$.user.roles[0]", "admin", true},
		{"$.user", map[string]any{"id": float64(7), "roles": []any{"admin"}}, true},
		{"$.items[*].id", []any{float64(1), float64(2)}, true},
		{"$.missing", nil, false},
		{"header:x-request-id", "req-1", true},
		{"header:X-Other", nil, false},
		{"status", 201, true},
		{"duration", int64(150), true},
	}

	for _, tt := range tests {
		t.Run(tt.selector, func(t *testing.T) {
			sel, err := ParseSelector(tt.selector)
			require.NoError(t, err)
			got, ok := e.Extract(sel)
			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestExtractor_NonJSONBody(t *testing.T) {
	resp := &http.Response{StatusCode: 200, Body: []byte("plain text")}
	e := NewExtractor(resp)

	whole, _ := ParseSelector("$")
	got, ok := e.Extract(whole)
	assert.True(t, ok)
	assert.Equal(t, "plain text", got)

	field, _ := ParseSelector("$.id")
	_, ok = e.Extract(field)
	assert.False(t, ok)
}

func TestExtractAll(t *testing.T) {
	resp := &http.Response{StatusCode: 200, Body: []byte(`{"token":"t-1"}`)}

	token, _ := ParseSelector("$.token")
	id, _ := ParseSelector("$.id")
	code, _ := ParseSelector("status")

	values, missing := ExtractAll(resp, []Rule{
		{Name: "TOKEN", Selector: token},
		{Name: "ID", Selector: id},
		{Name: "CODE", Selector: code},
	})

	assert.Equal(t, map[string]any{"TOKEN": "t-1", "CODE": 200}, values)
	assert.Equal(t, []string{"ID"}, missing)
}
