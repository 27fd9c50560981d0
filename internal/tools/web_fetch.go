package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/bashclaw/bashclaw/internal/util"
)

const (
	defaultFetchMaxChars = 50_000
	fetchTimeout         = 30 * time.Second
	fetchUserAgent       = "Mozilla/5.0 (compatible; bashclaw/1.0)"
)

// WebFetchTool retrieves a URL with an SSRF guard: the target host (and every
// redirect hop) must not resolve to loopback, link-local or private ranges.
type WebFetchTool struct {
	client *http.Client
}

func NewWebFetchTool() *WebFetchTool {
	t := &WebFetchTool{}
	t.client = &http.Client{
		Timeout: fetchTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects")
			}
			return checkFetchURL(req.URL)
		},
	}
	return t
}

func (t *WebFetchTool) Name() string { return "web_fetch" }

func (t *WebFetchTool) Description() string {
	return "Fetch the contents of an http(s) URL."
}

func (t *WebFetchTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url":      map[string]any{"type": "string", "description": "URL to fetch (http or https)"},
			"maxChars": map[string]any{"type": "number", "description": "Truncate the body to this many characters"},
		},
		"required": []any{"url"},
	}
}

func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsPrivate() || ip.IsUnspecified()
}

// checkFetchURL validates scheme and resolves the host, rejecting internal
// ranges. Re-run on every redirect hop so a public host cannot bounce the
// request inside.
func checkFetchURL(u *url.URL) error {
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme %q not allowed: %w", u.Scheme, util.ErrValidation)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("missing host: %w", util.ErrValidation)
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", host, err)
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return fmt.Errorf("host %s resolves to %s: %w", host, ip, util.ErrSSRFBlocked)
		}
	}
	return nil
}

func (t *WebFetchTool) Execute(ctx context.Context, args map[string]any) *Result {
	rawURL, _ := args["url"].(string)
	if rawURL == "" {
		return ErrorResult("url is required")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ErrorResult(fmt.Sprintf("invalid url: %v", err))
	}
	if err := checkFetchURL(u); err != nil {
		return ErrorResult(err.Error()).WithError(err)
	}

	maxChars := defaultFetchMaxChars
	if v, ok := args["maxChars"].(float64); ok && v > 0 {
		maxChars = int(v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return ErrorResult(fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("User-Agent", fetchUserAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return ErrorResult(fmt.Sprintf("fetch failed: %v", err)).WithError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(maxChars)+1))
	if err != nil {
		return ErrorResult(fmt.Sprintf("read body: %v", err)).WithError(err)
	}
	text := string(body)
	truncated := false
	if len(text) > maxChars {
		text = text[:maxChars]
		truncated = true
	}

	payload, _ := json.Marshal(map[string]any{
		"url":       u.String(),
		"status":    resp.StatusCode,
		"content":   text,
		"truncated": truncated,
	})
	res := NewResult(string(payload))
	res.IsError = resp.StatusCode >= 400
	return res
}
