package assertions

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/abdul-hamid-achik/hitchain/packages/core/tree"
	"github.com/xeipuuv/gojsonschema"
)

// Spec is the raw form of an expectation as it appears in a document.
type Spec struct {
	// Status is a single code or a set of acceptable codes. Empty accepts
	// any status.
	Status  []int
	Headers map[string]string
	// Body is the raw expected tree. HasBody distinguishes an expected
	// null body from no body expectation.
	Body    any
	HasBody bool
	// Schema is an inline JSON Schema tree or a path to a schema file.
	Schema any
	// BaseDir resolves relative schema paths.
	BaseDir string
}

// Expectation is a compiled, reusable set of response checks.
type Expectation struct {
	Status  []int
	Headers []HeaderExpectation
	Body    *Matcher
	Schema  *gojsonschema.Schema
	// SchemaRef names the schema source for reporting.
	SchemaRef string
}

type HeaderExpectation struct {
	Name  string
	Value string
}

// Compile classifies every leaf of the expectation once so that later
// validations only walk matchers.
func Compile(spec Spec) (*Expectation, error) {
	exp := &Expectation{Status: spec.Status}

	names := make([]string, 0, len(spec.Headers))
	for name := range spec.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		exp.Headers = append(exp.Headers, HeaderExpectation{Name: name, Value: spec.Headers[name]})
	}

	if spec.HasBody {
		m, err := Classify(spec.Body)
		if err != nil {
			return nil, fmt.Errorf("expect.body: %w", err)
		}
		exp.Body = m
	}

	if spec.Schema != nil {
		schema, ref, err := loadSchema(spec.Schema, spec.BaseDir)
		if err != nil {
			return nil, fmt.Errorf("expect.schema: %w", err)
		}
		exp.Schema = schema
		exp.SchemaRef = ref
	}

	return exp, nil
}

// IsEmpty reports whether the expectation accepts every response.
func (e *Expectation) IsEmpty() bool {
	return e == nil || (len(e.Status) == 0 && len(e.Headers) == 0 && e.Body == nil && e.Schema == nil)
}

func loadSchema(raw any, baseDir string) (*gojsonschema.Schema, string, error) {
	var loader gojsonschema.JSONLoader
	ref := "inline"

	switch v := raw.(type) {
	case string:
		path := strings.TrimSpace(v)
		if path == "" {
			return nil, "", fmt.Errorf("empty schema path")
		}
		if !filepath.IsAbs(path) && baseDir != "" {
			path = filepath.Join(baseDir, path)
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, "", err
		}
		loader = gojsonschema.NewReferenceLoader("file://" + filepath.ToSlash(abs))
		ref = v
	case *tree.Map, map[string]any:
		loader = gojsonschema.NewGoLoader(tree.Plain(v))
	default:
		return nil, "", fmt.Errorf("schema must be an object or a file path, got %T", raw)
	}

	schema, err := gojsonschema.NewSchema(loader)
	if err != nil {
		return nil, "", fmt.Errorf("invalid schema %s: %w", ref, err)
	}
	return schema, ref, nil
}
