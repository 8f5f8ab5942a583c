package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// httpExecutor performs an outbound HTTP request.
//
// Config:
//   - url: template, required
//   - method: GET/POST/PUT/PATCH/DELETE/HEAD, defaults to GET
//   - headers: map of header templates
//   - body: template string or JSON-shaped value sent as the request body
//   - fail_on_error: bool; when true a 4xx or 5xx status fails the node
//     instead of flowing downstream as data; informational and redirect
//     statuses always flow as data
//
// Output: {"status": N, "headers": {...}, "body": ...}. A JSON response
// body is decoded so downstream templates can path into it; anything
// else stays a string.
//
// Network-level failures are transient. With fail_on_error, 5xx is
// transient and 4xx is fatal.
type httpExecutor struct{}

func (x *httpExecutor) Execute(ctx context.Context, in Inputs, h *RunHandle) (any, error) {
	urlTemplate, _ := in.Node.Config.String("url")
	url, err := in.ResolveString(urlTemplate)
	if err != nil {
		return nil, fatalErr("TEMPLATE", "resolve url template", err)
	}

	method := http.MethodGet
	if m, ok := in.Node.Config.String("method"); ok && m != "" {
		method = m
	}

	var bodyReader io.Reader
	if raw, present := in.Node.Config["body"]; present {
		resolved, err := in.Resolve(raw)
		if err != nil {
			return nil, fatalErr("TEMPLATE", "resolve body template", err)
		}
		switch b := resolved.(type) {
		case string:
			bodyReader = strings.NewReader(b)
		default:
			data, err := json.Marshal(b)
			if err != nil {
				return nil, fatalErr("INVALID_CONFIG", "encode request body", err)
			}
			bodyReader = strings.NewReader(string(data))
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fatalErr("HTTP_REQUEST", "build request", err)
	}
	if headers, ok := in.Node.Config.Map("headers"); ok {
		for key, raw := range headers {
			value, ok := raw.(string)
			if !ok {
				return nil, fatalErr("INVALID_CONFIG", fmt.Sprintf("header %q is not a string", key), nil)
			}
			rendered, err := in.ResolveString(value)
			if err != nil {
				return nil, fatalErr("TEMPLATE", fmt.Sprintf("resolve header %q", key), err)
			}
			req.Header.Set(key, rendered)
		}
	}

	resp, err := h.HTTPClient().Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, transientErr("HTTP_REQUEST", "execute request", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transientErr("HTTP_REQUEST", "read response body", err)
	}

	if failOnError, _ := in.Node.Config.Bool("fail_on_error"); failOnError && resp.StatusCode >= 400 {
		msg := fmt.Sprintf("request returned status %d", resp.StatusCode)
		if resp.StatusCode >= 500 {
			return nil, transientErr("HTTP_STATUS", msg, nil)
		}
		return nil, fatalErr("HTTP_STATUS", msg, nil)
	}

	headers := make(map[string]any, len(resp.Header))
	for key, values := range resp.Header {
		if len(values) == 1 {
			headers[key] = values[0]
		} else {
			headers[key] = jsonShape(values)
		}
	}

	return map[string]any{
		"status":  resp.StatusCode,
		"headers": headers,
		"body":    decodeBody(resp.Header.Get("Content-Type"), respBody),
	}, nil
}

// decodeBody parses JSON responses into structured values; everything
// else passes through as a string.
func decodeBody(contentType string, body []byte) any {
	if strings.Contains(contentType, "json") {
		var v any
		if err := json.Unmarshal(body, &v); err == nil {
			return v
		}
	}
	return string(body)
}
