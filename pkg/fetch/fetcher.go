package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/media-scraper/pkg/config"
	"github.com/Sriram-PR/media-scraper/pkg/utils"
)

// Fetcher handles making HTTP requests with configured retry logic, using an underlying http.Client
type Fetcher struct {
	client *http.Client      // The configured HTTP client to use for requests
	cfg    *config.AppConfig // Application config, needed primarily for retry settings
	log    *logrus.Entry
}

// NewFetcher creates a new Fetcher instance
func NewFetcher(client *http.Client, cfg *config.AppConfig, log *logrus.Entry) *Fetcher {
	return &Fetcher{
		client: client,
		cfg:    cfg,
		log:    log,
	}
}

// Client returns the underlying http.Client, for callers that stream bodies themselves
func (f *Fetcher) Client() *http.Client {
	return f.client
}

// backoff builds the exponential backoff policy (+/- 10% jitter, capped) from config
func (f *Fetcher) backoff() retry.Backoff {
	initial := f.cfg.InitialRetryDelay
	if initial <= 0 {
		initial = time.Millisecond
	}
	b := retry.NewExponential(initial)
	if f.cfg.MaxRetryDelay > 0 {
		b = retry.WithCappedDuration(f.cfg.MaxRetryDelay, b)
	}
	b = retry.WithJitterPercent(10, b)
	maxRetries := f.cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return retry.WithMaxRetries(uint64(maxRetries), b)
}

// FetchWithRetry performs an HTTP request associated with the provided context
// Transient network errors, 5xx and 429 are retried with exponential backoff and jitter
// Other 4xx and unexpected statuses are returned immediately together with the response;
// the caller MUST close the body in that case
func (f *Fetcher) FetchWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	reqLog := f.log.WithField("url", req.URL.String())

	var (
		final   *http.Response
		lastErr error
		attempt int
	)

	err := retry.Do(ctx, f.backoff(), func(ctx context.Context) error {
		defer func() { attempt++ }()
		if attempt > 0 {
			reqLog.WithFields(logrus.Fields{"attempt": attempt, "max_retries": f.cfg.MaxRetries}).Warn("Retrying request...")
		}

		resp, err := f.client.Do(req.WithContext(ctx))
		if err != nil {
			drain(resp)
			// Context errors are never retried
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				reqLog.Warnf("Context cancelled/timed out during HTTP request execution: %v", err)
				return err
			}
			reqLog.WithField("attempt", attempt).Errorf("Network error: %v", err)
			lastErr = err
			return retry.RetryableError(err)
		}

		statusCode := resp.StatusCode
		resLog := reqLog.WithFields(logrus.Fields{"status_code": statusCode, "attempt": attempt})

		switch {
		case statusCode >= 200 && statusCode < 300:
			resLog.Debug("Successfully fetched")
			final = resp
			return nil

		case statusCode >= 500:
			resLog.Warn("Server error, retrying...")
			drain(resp)
			lastErr = fmt.Errorf("%w: status %d %s", utils.ErrServerHTTPError, statusCode, resp.Status)
			return retry.RetryableError(lastErr)

		case statusCode == http.StatusTooManyRequests:
			resLog.Warn("Received 429 Too Many Requests, retrying...")
			drain(resp)
			lastErr = fmt.Errorf("%w: status %d %s", utils.ErrClientHTTPError, statusCode, resp.Status)
			return retry.RetryableError(lastErr)

		case statusCode >= 400:
			resLog.Warn("Client error (4xx), not retrying")
			final = resp
			return fmt.Errorf("%w: status %d %s", utils.ErrClientHTTPError, statusCode, resp.Status)

		default:
			resLog.Warnf("Non-retryable/unexpected status: %d", statusCode)
			final = resp
			return fmt.Errorf("%w: status %d %s", utils.ErrOtherHTTPError, statusCode, resp.Status)
		}
	})

	switch {
	case err == nil:
		return final, nil
	case final != nil:
		// Non-retryable status: hand back the response alongside the error
		return final, err
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		if lastErr != nil {
			return nil, fmt.Errorf("context cancelled (%v) during retry backoff after error: %w", err, lastErr)
		}
		return nil, err
	default:
		reqLog.Errorf("All %d fetch attempts failed. Last error: %v", attempt, err)
		return nil, fmt.Errorf("%w: %w", utils.ErrRetryFailed, err)
	}
}

// drain discards and closes a response body so the connection can be reused
func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
