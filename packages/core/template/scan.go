package template

import "strings"

// findExpression locates the first complete ${...} at or after from and
// returns the index of "$" and the index just past the matching "}".
// Braces of nested expressions are balanced. An opening "${" that is never
// closed is skipped and scanning continues after it.
func findExpression(s string, from int) (int, int) {
	for from < len(s) {
		idx := strings.Index(s[from:], "${")
		if idx < 0 {
			return -1, -1
		}
		start := from + idx
		if end := matchClose(s, start+2); end > 0 {
			return start, end
		}
		from = start + 2
	}
	return -1, -1
}

func matchClose(s string, i int) int {
	depth := 1
	for ; i < len(s); i++ {
		switch {
		case s[i] == '$' && i+1 < len(s) && s[i+1] == '{':
			depth++
			i++
		case s[i] == '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}

// HasExpression reports whether s contains at least one complete ${...}.
func HasExpression(s string) bool {
	start, _ := findExpression(s, 0)
	return start >= 0
}

// Expressions returns every top-level ${...} in s, in order.
func Expressions(s string) []string {
	var out []string
	for i := 0; ; {
		start, end := findExpression(s, i)
		if start < 0 {
			return out
		}
		out = append(out, s[start:end])
		i = end
	}
}

// splitParts splits an expression body on colons that are not inside a
// nested expression. A part starting with "//" is glued back onto the part
// before it so URL schemes survive: "http://host" stays one part. A port
// following such a URL's host is glued too: "http://host:8080/v1".
func splitParts(body string) []string {
	var parts []string
	depth := 0
	last := 0
	for i := 0; i < len(body); i++ {
		switch {
		case body[i] == '$' && i+1 < len(body) && body[i+1] == '{':
			depth++
			i++
		case body[i] == '}' && depth > 0:
			depth--
		case body[i] == ':' && depth == 0:
			parts = append(parts, body[last:i])
			last = i + 1
		}
	}
	parts = append(parts, body[last:])

	merged := []string{parts[0]}
	for _, p := range parts[1:] {
		prev := merged[len(merged)-1]
		if len(merged) > 1 && (strings.HasPrefix(p, "//") || (awaitsPort(prev) && isPort(p))) {
			merged[len(merged)-1] += ":" + p
			continue
		}
		merged = append(merged, p)
	}
	return merged
}

// awaitsPort reports whether s is a URL whose authority has no port or
// path yet.
func awaitsPort(s string) bool {
	_, authority, ok := strings.Cut(s, "://")
	return ok && authority != "" && !strings.ContainsAny(authority, ":/")
}

// isPort reports whether s is a run of digits, optionally followed by a path.
func isPort(s string) bool {
	digits := 0
	for digits < len(s) && s[digits] >= '0' && s[digits] <= '9' {
		digits++
	}
	return digits > 0 && (digits == len(s) || s[digits] == '/')
}
