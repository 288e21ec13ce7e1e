package capture

import (
	"github.com/abdul-hamid-achik/hitchain/packages/http"
	"github.com/tidwall/gjson"
)

// Rule binds a variable name to the selector whose value it receives.
type Rule struct {
	Name     string
	Selector Selector
}

type Extractor struct {
	response *http.Response
	bodyJSON gjson.Result
	isJSON   bool
}

func NewExtractor(resp *http.Response) *Extractor {
	e := &Extractor{
		response: resp,
	}
	if len(resp.Body) > 0 && gjson.ValidBytes(resp.Body) {
		e.bodyJSON = gjson.ParseBytes(resp.Body)
		e.isJSON = true
	}
	return e
}

// Extract returns the selected value and whether it exists in the response.
func (e *Extractor) Extract(sel Selector) (any, bool) {
	switch sel.Source {
	case SourceBody:
		return e.extractFromBody(sel.Path)
	case SourceHeader:
		return e.response.LookupHeader(sel.Path)
	case SourceStatus:
		return e.response.StatusCode, true
	case SourceDuration:
		return e.response.DurationMs(), true
	default:
		return nil, false
	}
}

func (e *Extractor) extractFromBody(path string) (any, bool) {
	if !e.isJSON {
		if path == "" {
			return e.response.BodyString(), true
		}
		return nil, false
	}

	if path == "" {
		return e.bodyJSON.Value(), true
	}

	result := e.bodyJSON.Get(path)
	if !result.Exists() {
		return nil, false
	}
	return result.Value(), true
}

// ExtractAll applies rules in order. Values are returned by name; rules
// whose selector found nothing are listed in missing.
func ExtractAll(resp *http.Response, rules []Rule) (values map[string]any, missing []string) {
	extractor := NewExtractor(resp)
	values = make(map[string]any, len(rules))

	for _, r := range rules {
		if value, ok := extractor.Extract(r.Selector); ok {
			values[r.Name] = value
		} else {
			missing = append(missing, r.Name)
		}
	}

	return values, missing
}
