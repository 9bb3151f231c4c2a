package tools

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"
)

// WebFetchTool retrieves a URL and returns a bounded slice of the body.
type WebFetchTool struct {
	client   *http.Client
	maxBytes int64
}

func NewWebFetchTool(maxBytes int64) *WebFetchTool {
	if maxBytes <= 0 {
		maxBytes = 50_000
	}
	return &WebFetchTool{
		client:   &http.Client{Timeout: 30 * time.Second},
		maxBytes: maxBytes,
	}
}

func (t *WebFetchTool) Name() string { return "web_fetch" }
func (t *WebFetchTool) Description() string {
	return "Fetches a URL over HTTP(S) and returns the response body, truncated to a size limit."
}

func (t *WebFetchTool) Parameters() []ParameterSpec {
	return []ParameterSpec{
		{Name: "url", Type: "string", Description: "The http(s) URL to fetch", Required: true},
	}
}

func (t *WebFetchTool) Execute(ctx context.Context, args map[string]interface{}) ToolResult {
	args, err := CheckParams(t.Parameters(), args)
	if err != nil {
		return Fail("%v", err)
	}
	url := StringParam(args, "url")
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return Fail("url must start with http:// or https://")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Fail("invalid request: %v", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return Fail("fetch failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBytes))
	if err != nil {
		return Fail("reading response failed: %v", err)
	}
	res := Ok(string(body))
	res.Metadata = map[string]interface{}{
		"url":    url,
		"status": resp.StatusCode,
		"bytes":  len(body),
	}
	if resp.StatusCode >= 400 {
		return Fail("server returned %s:\n%s", resp.Status, string(body))
	}
	return res
}
