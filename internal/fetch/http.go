package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"stockwatch/internal/config"
)

// maxBodyBytes caps one retrieved document to keep a hostile or broken
// response from exhausting memory.
const maxBodyBytes = 8 << 20

// httpStrategy retrieves the storefront page with one direct GET request.
// Params: shared client identity (URL, user agent, auth cookie) and timeout.
// Returns: fast low-cost acquisition strategy.
type httpStrategy struct {
	client      *http.Client
	url         string
	userAgent   string
	cookieName  string
	cookieValue string
}

// newHTTPStrategy creates the direct-request strategy.
// Params: source config.
// Returns: initialized strategy.
func newHTTPStrategy(cfg config.SourceConfig) *httpStrategy {
	return &httpStrategy{
		client:      &http.Client{Timeout: cfg.Timeout()},
		url:         cfg.URL,
		userAgent:   cfg.UserAgent,
		cookieName:  cfg.CookieName,
		cookieValue: cfg.CookieValue,
	}
}

// Name returns the strategy identifier used in logs and page archives.
// Params: none.
// Returns: static strategy key.
func (s *httpStrategy) Name() string {
	return "http"
}

// Fetch performs one GET against the storefront with the configured identity.
// Params: context bounding the request.
// Returns: response body or transport/status error.
func (s *httpStrategy) Fetch(ctx context.Context) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	request.Header.Set("User-Agent", s.userAgent)
	request.AddCookie(&http.Cookie{Name: s.cookieName, Value: s.cookieValue})

	response, err := s.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", s.url, err)
	}
	defer func() { _ = response.Body.Close() }()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return nil, fmt.Errorf("get %s: unexpected status %d", s.url, response.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(response.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
