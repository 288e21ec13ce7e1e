package document

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/hitchain/packages/assertions"
	"github.com/abdul-hamid-achik/hitchain/packages/capture"
	"github.com/abdul-hamid-achik/hitchain/packages/core/tree"
)

// Defaults are settings inherited from the document, to each collection,
// to each request. Nil fields are unset and fall through to the outer
// level.
type Defaults struct {
	Timeout         *int // milliseconds
	Headers         map[string]string
	Params          map[string]string
	RetryCount      *int
	RetryDelay      *int // milliseconds
	RetryOn         []int
	Mode            *Mode
	MaxConcurrent   *int
	ContinueOnError *bool
	RateLimit       *float64
}

// Merge returns d overlaid with other. Set fields of other win; header
// and param maps merge key by key.
func (d Defaults) Merge(other Defaults) Defaults {
	out := d
	if other.Timeout != nil {
		out.Timeout = other.Timeout
	}
	out.Headers = mergeHeaders(d.Headers, other.Headers)
	out.Params = mergeStrings(d.Params, other.Params)
	if other.RetryCount != nil {
		out.RetryCount = other.RetryCount
	}
	if other.RetryDelay != nil {
		out.RetryDelay = other.RetryDelay
	}
	if other.RetryOn != nil {
		out.RetryOn = other.RetryOn
	}
	if other.Mode != nil {
		out.Mode = other.Mode
	}
	if other.MaxConcurrent != nil {
		out.MaxConcurrent = other.MaxConcurrent
	}
	if other.ContinueOnError != nil {
		out.ContinueOnError = other.ContinueOnError
	}
	if other.RateLimit != nil {
		out.RateLimit = other.RateLimit
	}
	return out
}

// Execution resolves the scheduling fields to concrete values.
func (d Defaults) Execution() Execution {
	exec := Execution{
		Mode:            ModeSequential,
		MaxConcurrent:   1,
		ContinueOnError: true,
	}
	if d.Mode != nil {
		exec.Mode = *d.Mode
	}
	if exec.Mode == ModeParallel {
		exec.MaxConcurrent = DefaultParallelism
		if d.MaxConcurrent != nil {
			exec.MaxConcurrent = *d.MaxConcurrent
		}
	}
	if d.ContinueOnError != nil {
		exec.ContinueOnError = *d.ContinueOnError
	}
	if d.RateLimit != nil {
		exec.RateLimit = *d.RateLimit
	}
	return exec
}

// Retry resolves the retry fields to concrete values.
func (d Defaults) Retry() Retry {
	r := Retry{Delay: DefaultRetryDelay, On: d.RetryOn}
	if d.RetryCount != nil {
		r.Count = *d.RetryCount
	}
	if d.RetryDelay != nil {
		r.Delay = time.Duration(*d.RetryDelay) * time.Millisecond
	}
	return r
}

type Option func(*decoder)

// WithBaseDir resolves relative variable files and schema paths against dir.
func WithBaseDir(dir string) Option {
	return func(d *decoder) {
		d.baseDir = dir
	}
}

// WithDefaults sets the outermost defaults layer, below the document's own
// defaults. The CLI passes tool configuration through it.
func WithDefaults(defaults Defaults) Option {
	return func(d *decoder) {
		d.base = defaults
	}
}

// withName names documents that declare no name.
func withName(name string) Option {
	return func(d *decoder) {
		d.name = name
	}
}

type decoder struct {
	name     string
	baseDir  string
	base     Defaults
	warnings []string
}

func (d *decoder) warn(format string, args ...any) {
	d.warnings = append(d.warnings, fmt.Sprintf(format, args...))
}

func (d *decoder) checkKeys(m *tree.Map, path string, known ...string) {
	m.Range(func(k string, _ any) bool {
		for _, name := range known {
			if k == name {
				return true
			}
		}
		d.warn("%s: unknown key %q", displayPath(path), k)
		return true
	})
}

func displayPath(path string) string {
	if path == "" {
		return "document"
	}
	return path
}

// Decode builds a Document from a tree produced by Parse.
func Decode(root any, opts ...Option) (*Document, error) {
	d := &decoder{}
	for _, opt := range opts {
		opt(d)
	}

	m, ok := asMap(root)
	if !ok {
		return nil, configErr("", "document must be a mapping, got %s", kindOf(root))
	}
	d.checkKeys(m, "", "name", "description", "variables", "variableFiles", "defaults", "execution", "collections", "requests")

	doc := &Document{Dir: d.baseDir}

	var err error
	if doc.Name, _, err = getString(m, "name", ""); err != nil {
		return nil, err
	}
	if doc.Name == "" {
		doc.Name = d.name
	}
	if doc.Variables, err = getVariables(m, "variables", ""); err != nil {
		return nil, err
	}
	if doc.VariableFiles, err = d.variableFiles(m); err != nil {
		return nil, err
	}

	defaults, err := d.defaults(m, "defaults")
	if err != nil {
		return nil, err
	}
	inherited := d.base.Merge(defaults)

	top, err := d.execution(m, "execution")
	if err != nil {
		return nil, err
	}
	doc.Execution = Defaults{MaxConcurrent: d.base.MaxConcurrent}.Merge(top).Execution()

	if raw, ok := m.Get("requests"); ok && raw != nil {
		name := doc.Name
		if name == "" {
			name = "default"
		}
		c, err := d.collection(raw, name, "requests", inherited, tree.NewMap())
		if err != nil {
			return nil, err
		}
		doc.Collections = append(doc.Collections, c)
	}

	if raw, ok := m.Get("collections"); ok && raw != nil {
		if err := d.collections(doc, raw, inherited); err != nil {
			return nil, err
		}
	}

	if len(doc.Collections) == 0 {
		d.warn("document declares no requests")
	}

	doc.Warnings = d.warnings
	return doc, nil
}

func (d *decoder) variableFiles(m *tree.Map) ([]string, error) {
	v, ok := m.Get("variableFiles")
	if !ok || v == nil {
		return nil, nil
	}

	var names []string
	switch files := v.(type) {
	case string:
		names = []string{files}
	case []any:
		for i, f := range files {
			s, ok := f.(string)
			if !ok || strings.TrimSpace(s) == "" {
				return nil, configErr(index("variableFiles", i), "expected a file path")
			}
			names = append(names, s)
		}
	default:
		return nil, configErr("variableFiles", "expected a path or a list of paths, got %s", kindOf(v))
	}

	out := make([]string, len(names))
	for i, name := range names {
		out[i] = d.resolvePath(name)
	}
	return out, nil
}

func (d *decoder) resolvePath(p string) string {
	if filepath.IsAbs(p) || d.baseDir == "" {
		return p
	}
	return filepath.Join(d.baseDir, p)
}

func (d *decoder) collections(doc *Document, raw any, inherited Defaults) error {
	switch v := raw.(type) {
	case []any:
		for i, item := range v {
			path := index("collections", i)
			cm, ok := asMap(item)
			if !ok {
				return configErr(path, "collection must be a mapping, got %s", kindOf(item))
			}
			name, _, err := getString(cm, "name", path)
			if err != nil {
				return err
			}
			if name == "" {
				name = fmt.Sprintf("collection %d", len(doc.Collections)+1)
			}
			c, err := d.collectionMap(cm, name, path, inherited)
			if err != nil {
				return err
			}
			doc.Collections = append(doc.Collections, c)
		}
		return nil

	case *tree.Map, map[string]any:
		named, _ := asMap(v)
		var err error
		named.Range(func(name string, item any) bool {
			path := join("collections", name)
			cm, ok := asMap(item)
			if !ok {
				err = configErr(path, "collection must be a mapping, got %s", kindOf(item))
				return false
			}
			var c *Collection
			if c, err = d.collectionMap(cm, name, path, inherited); err != nil {
				return false
			}
			doc.Collections = append(doc.Collections, c)
			return true
		})
		return err

	default:
		return configErr("collections", "expected a sequence or a mapping, got %s", kindOf(raw))
	}
}

func (d *decoder) collectionMap(m *tree.Map, name, path string, inherited Defaults) (*Collection, error) {
	d.checkKeys(m, path, "name", "description", "variables", "defaults", "execution", "requests")
	raw, _ := m.Get("requests")
	return d.collection(raw, name, join(path, "requests"), inherited, m)
}

// entry is one request as declared, before decoding.
type entry struct {
	name string
	raw  any
	path string
}

// collection decodes the requests in raw. settings holds the collection's
// own variables, defaults and execution; it is empty for the top-level
// requests shorthand.
func (d *decoder) collection(raw any, name, requestsPath string, inherited Defaults, settings *tree.Map) (*Collection, error) {
	c := &Collection{Name: name}
	basePath := strings.TrimSuffix(requestsPath, ".requests")
	if requestsPath == "requests" {
		basePath = ""
	}

	vars, err := getVariables(settings, "variables", basePath)
	if err != nil {
		c.Err = err
		vars = tree.NewMap()
	}
	c.Variables = plainVars(vars)

	own, err := d.defaults(settings, join(basePath, "defaults"))
	if err != nil && c.Err == nil {
		c.Err = err
	}
	merged := inherited.Merge(own)

	exec, err := d.execution(settings, join(basePath, "execution"))
	if err != nil && c.Err == nil {
		c.Err = err
	}
	c.Execution = merged.Merge(exec).Execution()

	var items []entry
	switch v := raw.(type) {
	case nil:
	case []any:
		for i, item := range v {
			items = append(items, entry{raw: item, path: index(requestsPath, i)})
		}
	case *tree.Map, map[string]any:
		named, _ := asMap(v)
		named.Range(func(k string, item any) bool {
			items = append(items, entry{name: k, raw: item, path: join(requestsPath, k)})
			return true
		})
	default:
		return nil, configErr(requestsPath, "expected a sequence or a mapping, got %s", kindOf(raw))
	}

	for i, item := range items {
		rm, ok := asMap(item.raw)
		if !ok {
			return nil, configErr(item.path, "request must be a mapping, got %s", kindOf(item.raw))
		}
		req := d.request(rm, item.path, merged)
		if req.Name == "" {
			req.Name = item.name
		}
		if req.Name == "" {
			req.Name = fmt.Sprintf("request %d", i+1)
		}
		req.Collection = c.Name
		c.Requests = append(c.Requests, req)
	}

	return c, nil
}

func (d *decoder) defaults(m *tree.Map, path string) (Defaults, error) {
	var out Defaults
	raw, ok := m.Get(lastKey(path))
	if !ok || raw == nil {
		return out, nil
	}
	dm, ok := asMap(raw)
	if !ok {
		return out, configErr(path, "expected a mapping, got %s", kindOf(raw))
	}
	d.checkKeys(dm, path, "timeout", "headers", "params", "retry", "execution")

	var err error
	if out.Timeout, err = getInt(dm, "timeout", path); err != nil {
		return out, err
	}
	if out.Headers, err = getStringMap(dm, "headers", path); err != nil {
		return out, err
	}
	if out.Params, err = getStringMap(dm, "params", path); err != nil {
		return out, err
	}
	retry, err := d.retry(dm, path)
	if err != nil {
		return out, err
	}
	out = out.Merge(retry)

	exec, err := d.execution(dm, join(path, "execution"))
	if err != nil {
		return out, err
	}
	return out.Merge(exec), nil
}

func (d *decoder) retry(m *tree.Map, path string) (Defaults, error) {
	var out Defaults
	raw, ok := m.Get("retry")
	if !ok || raw == nil {
		return out, nil
	}
	path = join(path, "retry")

	// retry: 3 is shorthand for retry: {count: 3}
	if n, isNum := toInt(raw); isNum {
		if n < 0 {
			return out, configErr(path, "must not be negative, got %d", n)
		}
		out.RetryCount = &n
		return out, nil
	}

	rm, ok := asMap(raw)
	if !ok {
		return out, configErr(path, "expected a count or a mapping, got %s", kindOf(raw))
	}
	d.checkKeys(rm, path, "count", "delay", "on")

	var err error
	if out.RetryCount, err = getInt(rm, "count", path); err != nil {
		return out, err
	}
	if out.RetryDelay, err = getInt(rm, "delay", path); err != nil {
		return out, err
	}
	if on, ok := rm.Get("on"); ok && on != nil {
		if out.RetryOn, err = statusList(on, join(path, "on")); err != nil {
			return out, err
		}
	}
	return out, nil
}

func (d *decoder) execution(m *tree.Map, path string) (Defaults, error) {
	var out Defaults
	raw, ok := m.Get(lastKey(path))
	if !ok || raw == nil {
		return out, nil
	}
	em, ok := asMap(raw)
	if !ok {
		return out, configErr(path, "expected a mapping, got %s", kindOf(raw))
	}
	d.checkKeys(em, path, "mode", "maxConcurrent", "continueOnError", "rateLimit")

	mode, set, err := getString(em, "mode", path)
	if err != nil {
		return out, err
	}
	if set {
		md := Mode(strings.ToLower(strings.TrimSpace(mode)))
		if md != ModeSequential && md != ModeParallel {
			return out, configErr(join(path, "mode"), "unknown mode %q (expected sequential or parallel)", mode)
		}
		out.Mode = &md
	}

	if out.MaxConcurrent, err = getInt(em, "maxConcurrent", path); err != nil {
		return out, err
	}
	if out.MaxConcurrent != nil && *out.MaxConcurrent == 0 {
		return out, configErr(join(path, "maxConcurrent"), "must be at least 1")
	}
	if out.ContinueOnError, err = getBool(em, "continueOnError", path); err != nil {
		return out, err
	}
	if out.RateLimit, err = getFloat(em, "rateLimit", path); err != nil {
		return out, err
	}
	return out, nil
}

func (d *decoder) request(m *tree.Map, path string, inherited Defaults) *Request {
	d.checkKeys(m, path, "name", "description", "method", "url", "headers", "params", "body",
		"timeout", "retry", "variables", "expect", "extract", "skip")

	r := &Request{Method: "GET"}
	fail := func(err error) {
		if err != nil && r.Err == nil {
			r.Err = err
		}
	}

	name, _, err := getString(m, "name", path)
	fail(err)
	r.Name = name

	method, set, err := getString(m, "method", path)
	fail(err)
	if set && strings.TrimSpace(method) != "" {
		r.Method = strings.ToUpper(strings.TrimSpace(method))
	}

	url, set, err := getString(m, "url", path)
	fail(err)
	if !set || strings.TrimSpace(url) == "" {
		fail(configErr(join(path, "url"), "url is required"))
	}
	r.URL = strings.TrimSpace(url)

	own := Defaults{}
	own.Timeout, err = getInt(m, "timeout", path)
	fail(err)
	own.Headers, err = getStringMap(m, "headers", path)
	fail(err)
	own.Params, err = getStringMap(m, "params", path)
	fail(err)
	retry, err := d.retry(m, path)
	fail(err)
	own = own.Merge(retry)

	merged := inherited.Merge(own)
	r.Headers = merged.Headers
	r.Params = merged.Params
	r.Retry = merged.Retry()
	if merged.Timeout != nil {
		r.Timeout = time.Duration(*merged.Timeout) * time.Millisecond
	}

	if body, ok := m.Get("body"); ok && body != nil {
		r.Body = body
		r.HasBody = true
	}

	vars, err := getVariables(m, "variables", path)
	fail(err)
	r.Variables = plainVars(vars)

	if raw, ok := m.Get("expect"); ok && raw != nil {
		r.Expect, err = d.expect(raw, join(path, "expect"))
		fail(err)
	}

	if raw, ok := m.Get("extract"); ok && raw != nil {
		r.Extract, err = extractRules(raw, join(path, "extract"))
		fail(err)
	}

	if raw, ok := m.Get("skip"); ok && raw != nil {
		switch v := raw.(type) {
		case bool:
			if v {
				r.Skip = "skipped"
			}
		case string:
			r.Skip = v
			if strings.TrimSpace(v) == "" {
				r.Skip = "skipped"
			}
		default:
			fail(configErr(join(path, "skip"), "expected a reason or a boolean, got %s", kindOf(raw)))
		}
	}

	return r
}

func (d *decoder) expect(raw any, path string) (*assertions.Expectation, error) {
	spec := assertions.Spec{BaseDir: d.baseDir}

	em, ok := asMap(raw)
	if !ok {
		// expect: 200 and expect: [200, 201] are status shorthands
		status, err := statusList(raw, join(path, "status"))
		if err != nil {
			return nil, err
		}
		spec.Status = status
		return assertions.Compile(spec)
	}
	d.checkKeys(em, path, "status", "headers", "body", "schema")

	var err error
	if v, ok := em.Get("status"); ok {
		if spec.Status, err = statusList(v, join(path, "status")); err != nil {
			return nil, err
		}
	}
	if spec.Headers, err = getStringMap(em, "headers", path); err != nil {
		return nil, err
	}
	if body, ok := em.Get("body"); ok {
		spec.Body = body
		spec.HasBody = true
	}
	if schema, ok := em.Get("schema"); ok && schema != nil {
		spec.Schema = schema
	}

	exp, err := assertions.Compile(spec)
	if err != nil {
		return nil, configErr(path, "%v", err)
	}
	return exp, nil
}

func extractRules(raw any, path string) ([]capture.Rule, error) {
	em, ok := asMap(raw)
	if !ok {
		return nil, configErr(path, "expected a mapping of variable name to selector, got %s", kindOf(raw))
	}

	var rules []capture.Rule
	var err error
	em.Range(func(name string, v any) bool {
		s, ok := v.(string)
		if !ok {
			err = configErr(join(path, name), "selector must be a string, got %s", kindOf(v))
			return false
		}
		var sel capture.Selector
		if sel, err = capture.ParseSelector(s); err != nil {
			err = configErr(join(path, name), "%v", err)
			return false
		}
		rules = append(rules, capture.Rule{Name: name, Selector: sel})
		return true
	})
	return rules, err
}

func mergeStrings(base, over map[string]string) map[string]string {
	if base == nil && over == nil {
		return nil
	}
	out := make(map[string]string, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}

// mergeHeaders is mergeStrings with case-insensitive names.
func mergeHeaders(base, over map[string]string) map[string]string {
	out := mergeStrings(base, nil)
	if out == nil && over != nil {
		out = make(map[string]string, len(over))
	}
	for k, v := range over {
		for existing := range out {
			if strings.EqualFold(existing, k) {
				delete(out, existing)
			}
		}
		out[k] = v
	}
	return out
}

func plainVars(m *tree.Map) map[string]any {
	out := make(map[string]any, m.Len())
	m.Range(func(k string, v any) bool {
		out[k] = v
		return true
	})
	return out
}

func lastKey(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return path[i+1:]
	}
	return path
}
