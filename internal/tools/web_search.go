package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	defaultSearchCount = 5
	maxSearchCount     = 10
	searchTimeout      = 30 * time.Second
)

type searchResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

// WebSearchTool scrapes DuckDuckGo's HTML endpoint. No API key required.
type WebSearchTool struct {
	client *http.Client
}

func NewWebSearchTool() *WebSearchTool {
	return &WebSearchTool{client: &http.Client{Timeout: searchTimeout}}
}

func (t *WebSearchTool) Name() string { return "web_search" }

func (t *WebSearchTool) Description() string {
	return "Search the web and return titles, URLs and snippets."
}

func (t *WebSearchTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string", "description": "Search query"},
			"count": map[string]any{"type": "number", "description": "Max results (default 5, cap 10)"},
		},
		"required": []any{"query"},
	}
}

var (
	ddgLinkRe    = regexp.MustCompile(`<a[^>]*class="[^"]*result__a[^"]*"[^>]*href="([^"]+)"[^>]*>([\s\S]*?)</a>`)
	ddgSnippetRe = regexp.MustCompile(`<a class="result__snippet[^"]*".*?>([\s\S]*?)</a>`)
	htmlTagRe    = regexp.MustCompile(`<[^>]+>`)
)

func stripTags(s string) string {
	return strings.TrimSpace(html.UnescapeString(htmlTagRe.ReplaceAllString(s, "")))
}

// resolveDDGLink unwraps DuckDuckGo's /l/?uddg= redirect wrapper.
func resolveDDGLink(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		if decoded, err := url.QueryUnescape(target); err == nil {
			return decoded
		}
	}
	return href
}

func extractResults(page string, count int) []searchResult {
	links := ddgLinkRe.FindAllStringSubmatch(page, count+5)
	snippets := ddgSnippetRe.FindAllStringSubmatch(page, count+5)

	var results []searchResult
	for i, m := range links {
		if len(results) >= count {
			break
		}
		r := searchResult{
			URL:   resolveDDGLink(m[1]),
			Title: stripTags(m[2]),
		}
		if i < len(snippets) {
			r.Description = stripTags(snippets[i][1])
		}
		if r.Title == "" || r.URL == "" {
			continue
		}
		results = append(results, r)
	}
	return results
}

func (t *WebSearchTool) Execute(ctx context.Context, args map[string]any) *Result {
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return ErrorResult("query is required")
	}
	count := defaultSearchCount
	if v, ok := args["count"].(float64); ok && v > 0 {
		count = int(v)
	}
	if count > maxSearchCount {
		count = maxSearchCount
	}

	searchURL := "https://html.duckduckgo.com/html/?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return ErrorResult(fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("User-Agent", fetchUserAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return ErrorResult(fmt.Sprintf("search failed: %v", err)).WithError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ErrorResult(fmt.Sprintf("search returned %d", resp.StatusCode))
	}
	page, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return ErrorResult(fmt.Sprintf("read results: %v", err)).WithError(err)
	}

	results := extractResults(string(page), count)
	payload, _ := json.Marshal(map[string]any{
		"query":   query,
		"results": results,
	})
	return NewResult(string(payload))
}
