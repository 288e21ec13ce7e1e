package capture

import (
	"fmt"
	"strconv"
	"strings"
)

type Source int

const (
	SourceBody Source = iota
	SourceHeader
	SourceStatus
	SourceDuration
)

func (s Source) String() string {
	switch s {
	case SourceBody:
		return "body"
	case SourceHeader:
		return "header"
	case SourceStatus:
		return "status"
	case SourceDuration:
		return "duration"
	default:
		return "unknown"
	}
}

// Selector is a parsed extraction source. For body selectors Path is a
// gjson path; an empty Path selects the whole body.
type Selector struct {
	Raw    string
	Source Source
	Path   string
}

func (s Selector) String() string {
	return s.Raw
}

// ParseSelector parses a selector string.
func ParseSelector(raw string) (Selector, error) {
	s := strings.TrimSpace(raw)
	sel := Selector{Raw: raw}

	switch {
	case s == "":
		return sel, fmt.Errorf("empty selector")
	case s == "status":
		sel.Source = SourceStatus
		return sel, nil
	case s == "duration":
		sel.Source = SourceDuration
		return sel, nil
	case strings.HasPrefix(s, "header:"):
		name := strings.TrimSpace(strings.TrimPrefix(s, "header:"))
		if name == "" {
			return sel, fmt.Errorf("selector %q: missing header name", raw)
		}
		sel.Source = SourceHeader
		sel.Path = name
		return sel, nil
	case strings.HasPrefix(s, "$"):
		path, err := jsonPathToGJSON(s)
		if err != nil {
			return sel, fmt.Errorf("selector %q: %w", raw, err)
		}
		sel.Source = SourceBody
		sel.Path = path
		return sel, nil
	case strings.HasPrefix(s, "body"):
		rest := strings.TrimPrefix(s, "body")
		if rest != "" && rest[0] != '.' && rest[0] != '[' {
			break
		}
		path, err := jsonPathToGJSON("$" + rest)
		if err != nil {
			return sel, fmt.Errorf("selector %q: %w", raw, err)
		}
		sel.Source = SourceBody
		sel.Path = path
		return sel, nil
	}

	// A bare path is read as a gjson path into the body.
	sel.Source = SourceBody
	sel.Path = s
	return sel, nil
}

// jsonPathToGJSON converts the dotted JSONPath subset used in documents
// ($.a.b[0]['c.d'][*].e) to the equivalent gjson path (a.b.0.c\.d.#.e).
func jsonPathToGJSON(p string) (string, error) {
	if !strings.HasPrefix(p, "$") {
		return "", fmt.Errorf("path must start with $")
	}

	var segs []string
	i := 1
	for i < len(p) {
		switch p[i] {
		case '.':
			i++
			start := i
			for i < len(p) && p[i] != '.' && p[i] != '[' {
				i++
			}
			if start == i {
				return "", fmt.Errorf("empty segment at offset %d", start)
			}
			segs = append(segs, escapeKey(p[start:i]))

		case '[':
			end := strings.IndexByte(p[i:], ']')
			if end < 0 {
				return "", fmt.Errorf("unclosed [ at offset %d", i)
			}
			inner := strings.TrimSpace(p[i+1 : i+end])
			i += end + 1

			switch {
			case inner == "*":
				segs = append(segs, "#")
			case len(inner) >= 2 && (inner[0] == '\'' || inner[0] == '"') && inner[len(inner)-1] == inner[0]:
				segs = append(segs, escapeKey(inner[1:len(inner)-1]))
			default:
				n, err := strconv.Atoi(inner)
				if err != nil || n < 0 {
					return "", fmt.Errorf("invalid index %q", inner)
				}
				segs = append(segs, strconv.Itoa(n))
			}

		default:
			return "", fmt.Errorf("unexpected %q at offset %d", p[i], i)
		}
	}

	return strings.Join(segs, "."), nil
}

func escapeKey(k string) string {
	var b strings.Builder
	for _, r := range k {
		switch r {
		case '.', '*', '?', '|', '#', '@', '!', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
