package tools

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
	"testing"

	"github.com/bashclaw/bashclaw/internal/util"
)

func TestCheckFetchURLSchemes(t *testing.T) {
	for _, raw := range []string{"ftp://example.com/x", "file:///etc/passwd", "gopher://x"} {
		u, _ := url.Parse(raw)
		if err := checkFetchURL(u); !errors.Is(err, util.ErrValidation) {
			t.Errorf("scheme %q should be rejected, got %v", u.Scheme, err)
		}
	}
}

func TestCheckFetchURLBlocksInternalHosts(t *testing.T) {
	blocked := []string{
		"http://127.0.0.1/admin",
		"http://localhost:8080/",
		"http://[::1]/",
		"http://169.254.169.254/latest/meta-data/",
	}
	for _, raw := range blocked {
		u, _ := url.Parse(raw)
		err := checkFetchURL(u)
		if !errors.Is(err, util.ErrSSRFBlocked) {
			t.Errorf("%s: err = %v, want ErrSSRFBlocked", raw, err)
		}
	}
}

func TestIsPrivateIP(t *testing.T) {
	private := []string{"127.0.0.1", "10.1.2.3", "172.16.0.1", "172.31.255.255", "192.168.1.1", "169.254.0.1", "::1", "0.0.0.0"}
	for _, s := range private {
		if !isPrivateIP(net.ParseIP(s)) {
			t.Errorf("%s should be private", s)
		}
	}
	public := []string{"8.8.8.8", "1.1.1.1", "172.32.0.1", "2606:4700:4700::1111"}
	for _, s := range public {
		if isPrivateIP(net.ParseIP(s)) {
			t.Errorf("%s should be public", s)
		}
	}
}

func TestWebFetchRejectsBadInput(t *testing.T) {
	tool := NewWebFetchTool()

	res := tool.Execute(context.Background(), map[string]any{})
	if !res.IsError {
		t.Error("missing url should error")
	}

	res = tool.Execute(context.Background(), map[string]any{"url": "http://127.0.0.1/x"})
	if !res.IsError || !strings.Contains(res.ForLLM, "127.0.0.1") {
		t.Errorf("loopback fetch = %+v, want SSRF error", res)
	}
}

func TestWebFetchPrivateAddressResultMentionsSSRF(t *testing.T) {
	tool := NewWebFetchTool()

	res := tool.Execute(context.Background(), map[string]any{"url": "http://10.0.0.1/"})
	if !res.IsError {
		t.Fatal("private address fetch should error")
	}
	if !strings.Contains(res.ForLLM, "SSRF") {
		t.Errorf("result = %q, want the literal SSRF in the model-facing text", res.ForLLM)
	}
	if !errors.Is(res.Err, util.ErrSSRFBlocked) {
		t.Errorf("err = %v, want ErrSSRFBlocked", res.Err)
	}
}

func TestExtractSearchResults(t *testing.T) {
	page := `
<a rel="nofollow" class="result__a" href="/l/?uddg=https%3A%2F%2Fexample.com%2Fdocs">Example <b>Docs</b></a>
<a class="result__snippet" href="#">The official &amp; complete docs.</a>
<a rel="nofollow" class="result__a" href="https://other.org/page">Other Page</a>
`
	results := extractResults(page, 5)
	if len(results) != 2 {
		t.Fatalf("got %d results: %+v", len(results), results)
	}
	if results[0].URL != "https://example.com/docs" {
		t.Errorf("uddg redirect not unwrapped: %q", results[0].URL)
	}
	if results[0].Title != "Example Docs" {
		t.Errorf("tags not stripped: %q", results[0].Title)
	}
	if results[0].Description != "The official & complete docs." {
		t.Errorf("snippet = %q", results[0].Description)
	}
}
