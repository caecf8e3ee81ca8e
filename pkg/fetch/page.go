package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/media-scraper/pkg/config"
	"github.com/Sriram-PR/media-scraper/pkg/utils"
)

// maxPageBytes bounds how much of a page body is read into memory
const maxPageBytes = 16 << 20

// PageFetcher retrieves the text of a page. When authenticated is true the
// request carries the logged-in session.
type PageFetcher interface {
	FetchPage(ctx context.Context, rawURL string, authenticated bool) (string, error)
}

// HTTPPageFetcher is the PageFetcher used outside tests. It applies the per-host
// politeness delay, sends the configured User-Agent and, for authenticated
// requests, the Instagram session cookie.
type HTTPPageFetcher struct {
	fetcher *Fetcher
	limiter *RateLimiter
	cfg     *config.AppConfig
	log     *logrus.Entry
}

// NewHTTPPageFetcher wires a Fetcher and RateLimiter into a PageFetcher
func NewHTTPPageFetcher(fetcher *Fetcher, limiter *RateLimiter, cfg *config.AppConfig, log *logrus.Entry) *HTTPPageFetcher {
	return &HTTPPageFetcher{fetcher: fetcher, limiter: limiter, cfg: cfg, log: log}
}

// SingleAttempt returns a copy of p that sends each request once. Network
// errors and 5xx are not retried, so the downloader's own retry setting is
// the only one that applies to media.
func (p *HTTPPageFetcher) SingleAttempt() *HTTPPageFetcher {
	cfg := *p.cfg
	cfg.MaxRetries = 0
	return &HTTPPageFetcher{
		fetcher: NewFetcher(p.fetcher.Client(), &cfg, p.fetcher.log),
		limiter: p.limiter,
		cfg:     &cfg,
		log:     p.log,
	}
}

// FetchPage GETs rawURL and returns the body as text. Any non-2xx outcome is
// reported as ErrFetchFailure wrapping the underlying HTTP or network error.
// The whole fetch, body included, is bounded by HTTPClientSettings.Timeout.
func (p *HTTPPageFetcher) FetchPage(ctx context.Context, rawURL string, authenticated bool) (string, error) {
	if d := p.cfg.HTTPClientSettings.Timeout; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	resp, err := p.Get(ctx, rawURL, authenticated)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("%w: %w: %s: %w", utils.ErrFetchFailure, utils.ErrResponseBodyRead, rawURL, err)
	}
	return string(body), nil
}

// Get performs a politeness-delayed GET and returns the open response on
// success. The caller closes the body. No deadline beyond ctx is applied, so
// long media streams are not cut off.
func (p *HTTPPageFetcher) Get(ctx context.Context, rawURL string, authenticated bool) (*http.Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %w", utils.ErrFetchFailure, utils.ErrParsing, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %w", utils.ErrFetchFailure, utils.ErrRequestCreation, err)
	}
	if p.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", p.cfg.UserAgent)
	}
	if authenticated && p.cfg.InstagramSessionID != "" {
		req.AddCookie(&http.Cookie{Name: "sessionid", Value: p.cfg.InstagramSessionID})
	}

	host := u.Hostname()
	if p.limiter != nil {
		p.limiter.ApplyDelay(ctx, host, p.cfg.DelayPerHost)
	}

	p.log.WithFields(logrus.Fields{"url": rawURL, "authenticated": authenticated}).Debug("Fetching page")
	resp, err := p.fetcher.FetchWithRetry(ctx, req)
	if p.limiter != nil {
		p.limiter.UpdateLastRequestTime(host)
	}
	if err != nil {
		drain(resp)
		return nil, fmt.Errorf("%w: %w", utils.ErrFetchFailure, err)
	}
	return resp, nil
}
