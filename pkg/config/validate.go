package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/Sriram-PR/media-scraper/pkg/utils"
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}

	if c.DownloadDir == "" {
		c.DownloadDir = "downloads"
	}

	if c.StateDir == "" {
		if c.PersistHistory {
			warnings = append(warnings, "state_dir is empty, defaulting to './scraper_state'")
		}
		c.StateDir = "./scraper_state"
	}

	// ItemDelay / SubmitDelay
	if c.ItemDelay < 0 {
		warnings = append(warnings, "item_delay cannot be negative, disabling delay")
		c.ItemDelay = 0
	} else if c.ItemDelay == 0 {
		c.ItemDelay = 500 * time.Millisecond
	}
	if c.SubmitDelay < 0 {
		warnings = append(warnings, "submit_delay cannot be negative, disabling delay")
		c.SubmitDelay = 0
	} else if c.SubmitDelay == 0 {
		c.SubmitDelay = 500 * time.Millisecond
	}
	if c.DelayPerHost < 0 {
		warnings = append(warnings, "delay_per_host cannot be negative, disabling delay")
		c.DelayPerHost = 0
	}

	// MaxRetries
	if c.MaxRetries < 0 {
		warnings = append(warnings, "max_retries cannot be negative, setting to 0")
		c.MaxRetries = 0
	}
	if c.MaxRetries == 0 && c.InitialRetryDelay == 0 {
		c.MaxRetries = 2
	}
	if c.MaxRetries > 0 {
		if c.InitialRetryDelay <= 0 {
			c.InitialRetryDelay = 1 * time.Second
		}
		if c.MaxRetryDelay <= 0 {
			c.MaxRetryDelay = 10 * time.Second
		}
	}
	if c.InitialRetryDelay > c.MaxRetryDelay && c.MaxRetryDelay > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"initial_retry_delay (%v) > max_retry_delay (%v), using max_retry_delay for initial",
			c.InitialRetryDelay, c.MaxRetryDelay))
		c.InitialRetryDelay = c.MaxRetryDelay
	}

	// DownloadRetries
	if c.DownloadRetries < 0 {
		warnings = append(warnings, "download_retries cannot be negative, setting to 0")
		c.DownloadRetries = 0
	}
	if c.DownloadRetries > 0 && c.DownloadRetryDelay <= 0 {
		c.DownloadRetryDelay = 1 * time.Second
	}

	// Tumblr consent wall polling must stay bounded
	if c.TumblrGateMaxPolls <= 0 {
		c.TumblrGateMaxPolls = 50
	}
	if c.TumblrGatePollInterval <= 0 {
		c.TumblrGatePollInterval = 200 * time.Millisecond
	}

	c.validateHTTPClientSettings()

	if c.ProxyURL != "" {
		u, parseErr := url.Parse(c.ProxyURL)
		if parseErr != nil {
			return warnings, fmt.Errorf("%w: invalid proxy_url '%s': %v", utils.ErrConfigValidation, c.ProxyURL, parseErr)
		}
		switch u.Scheme {
		case "http", "https", "socks5", "socks5h":
		default:
			return warnings, fmt.Errorf("%w: unsupported proxy_url scheme '%s'", utils.ErrConfigValidation, u.Scheme)
		}
	}

	return warnings, nil
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.Timeout <= 0 {
		h.Timeout = 45 * time.Second
	}
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 2
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
}
