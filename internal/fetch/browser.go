package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"stockwatch/internal/config"
	"stockwatch/internal/extract"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// Mobile viewport matching the storefront's mobile layout.
const (
	viewportWidth  = 375
	viewportHeight = 812
	viewportScale  = 3.0
)

// browserStrategy retrieves the storefront page through a headless browser,
// picking up content the direct request misses when the page is script-built.
// Params: shared client identity and render wait budget.
// Returns: slow high-fidelity fallback strategy.
type browserStrategy struct {
	url         string
	userAgent   string
	cookieName  string
	cookieValue string
	timeout     time.Duration
	wait        time.Duration
	logger      *slog.Logger
}

// newBrowserStrategy creates the browser-rendering strategy.
// Params: source config and logger.
// Returns: initialized strategy.
func newBrowserStrategy(cfg config.SourceConfig, logger *slog.Logger) *browserStrategy {
	return &browserStrategy{
		url:         cfg.URL,
		userAgent:   cfg.UserAgent,
		cookieName:  cfg.CookieName,
		cookieValue: cfg.CookieValue,
		timeout:     cfg.Timeout(),
		wait:        time.Duration(cfg.Browser.WaitSec) * time.Second,
		logger:      logger,
	}
}

// Name returns the strategy identifier used in logs and page archives.
// Params: none.
// Returns: static strategy key.
func (s *browserStrategy) Name() string {
	return "browser"
}

// Fetch renders the storefront in a headless browser and returns the final
// document. A timed-out wait for product items is logged and tolerated: the
// rendered content is still returned and judged by the chain's checks.
// Params: context bounding the whole browser session.
// Returns: rendered document body or navigation error.
func (s *browserStrategy) Fetch(ctx context.Context) ([]byte, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.UserAgent(s.userAgent))
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	sessionCtx, cancelSession := context.WithTimeout(browserCtx, s.timeout+s.wait)
	defer cancelSession()

	err := chromedp.Run(sessionCtx,
		network.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if err := emulation.SetDeviceMetricsOverride(viewportWidth, viewportHeight, viewportScale, true).Do(ctx); err != nil {
				return fmt.Errorf("set mobile viewport: %w", err)
			}
			return nil
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if err := network.SetCookie(s.cookieName, s.cookieValue).WithURL(s.url).Do(ctx); err != nil {
				return fmt.Errorf("set auth cookie: %w", err)
			}
			return nil
		}),
		chromedp.Navigate(s.url),
	)
	if err != nil {
		return nil, fmt.Errorf("navigate %s: %w", s.url, err)
	}

	waitCtx, cancelWait := context.WithTimeout(sessionCtx, s.wait)
	if err := chromedp.Run(waitCtx, chromedp.WaitReady(extract.ItemSelector, chromedp.ByQuery)); err != nil {
		s.logger.Warn("product items not detected before wait budget", "error", err.Error())
	}
	cancelWait()

	var html string
	if err := chromedp.Run(sessionCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("read rendered document: %w", err)
	}
	return []byte(html), nil
}
