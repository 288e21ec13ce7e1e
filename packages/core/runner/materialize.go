package runner

import (
	"encoding/json"
	"fmt"

	"github.com/abdul-hamid-achik/hitchain/packages/core/document"
	"github.com/abdul-hamid-achik/hitchain/packages/core/env"
	"github.com/abdul-hamid-achik/hitchain/packages/core/template"
	"github.com/abdul-hamid-achik/hitchain/packages/http"
)

// materialize turns a declared request into a concrete one. The URL and
// query parameters resolve under the URL policy; headers and body resolve
// under the general policy.
func materialize(req *document.Request, vars env.Lookuper, resolver *template.Resolver) (*http.Request, error) {
	url, err := resolver.ResolveURL(req.URL, vars)
	if err != nil {
		return nil, fmt.Errorf("url: %w", err)
	}

	out := http.NewRequest(req.Method, url)
	out.Timeout = req.Timeout

	for k, v := range req.Params {
		resolved, err := resolver.ResolveURL(v, vars)
		if err != nil {
			return nil, fmt.Errorf("params.%s: %w", k, err)
		}
		out.SetQueryParam(k, resolved)
	}

	for k, v := range req.Headers {
		resolved, err := resolver.Resolve(v, vars)
		if err != nil {
			return nil, fmt.Errorf("headers.%s: %w", k, err)
		}
		out.SetHeader(k, resolved)
	}

	if !req.HasBody {
		return out, nil
	}

	switch body := req.Body.(type) {
	case string:
		resolved, err := resolver.Resolve(body, vars)
		if err != nil {
			return nil, fmt.Errorf("body: %w", err)
		}
		out.SetBody(resolved)
	default:
		resolved, err := resolver.ResolveValue(body, vars)
		if err != nil {
			return nil, fmt.Errorf("body: %w", err)
		}
		data, err := json.Marshal(resolved)
		if err != nil {
			return nil, fmt.Errorf("body: %w", err)
		}
		out.SetBody(string(data))
		if !out.HasHeader("Content-Type") {
			out.SetHeader("Content-Type", "application/json")
		}
	}

	return out, nil
}
