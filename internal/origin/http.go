// Package origin adapts authoritative slug stores to resolver.Origin.
package origin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/muandane/slugcache/internal/resolver"
)

// HTTP resolves slugs against the url-service REST API:
// GET {base}/urls/{slug} answers {"longUrl": "...", "slug": "..."}.
type HTTP struct {
	baseURL string
	client  *http.Client
}

type urlRecord struct {
	LongURL string `json:"longUrl"`
	Slug    string `json:"slug"`
}

func NewHTTP(baseURL string, client *http.Client) (*HTTP, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid origin url %q: %w", baseURL, err)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTP{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}, nil
}

func (h *HTTP) Lookup(ctx context.Context, slug string) (string, error) {
	endpoint := h.baseURL + "/urls/" + url.PathEscape(slug)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build origin request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("origin request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", fmt.Errorf("origin %s: %w", slug, resolver.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("origin responded %s", resp.Status)
	}

	var rec urlRecord
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&rec); err != nil {
		return "", fmt.Errorf("decode origin response: %w", err)
	}
	if rec.LongURL == "" {
		return "", fmt.Errorf("origin response for %q has no longUrl", slug)
	}
	return rec.LongURL, nil
}
