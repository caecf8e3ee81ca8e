package config

import "time"

// AppConfig holds the global application configuration
type AppConfig struct {
	UserAgent              string           `yaml:"user_agent"`
	DownloadDir            string           `yaml:"download_dir"`                         // Relative to the working directory unless absolute
	StateDir               string           `yaml:"state_dir"`                            // Location of the history DB
	PersistHistory         bool             `yaml:"persist_history,omitempty"`            // Keep tracking links across runs
	ItemDelay              time.Duration    `yaml:"item_delay,omitempty"`                 // Pause between downloaded items
	SubmitDelay            time.Duration    `yaml:"submit_delay,omitempty"`               // Pause between URLs of a pasted batch
	DelayPerHost           time.Duration    `yaml:"delay_per_host,omitempty"`             // Minimum gap between page fetches to one host
	MaxRetries             int              `yaml:"max_retries,omitempty"`                // Page fetch retries
	InitialRetryDelay      time.Duration    `yaml:"initial_retry_delay,omitempty"`        // Page fetch backoff start
	MaxRetryDelay          time.Duration    `yaml:"max_retry_delay,omitempty"`            // Page fetch backoff cap
	DownloadRetries        int              `yaml:"download_retries,omitempty"`           // 0 = a failed item is dropped
	DownloadRetryDelay     time.Duration    `yaml:"download_retry_delay,omitempty"`       // Backoff start for download retries
	TumblrGateMaxPolls     int              `yaml:"tumblr_gate_max_polls,omitempty"`      // Upper bound for consent-wall polling
	TumblrGatePollInterval time.Duration    `yaml:"tumblr_gate_poll_interval,omitempty"`  // Pause between consent-wall polls
	InstagramSessionID     string           `yaml:"instagram_session_id,omitempty"`       // sessionid cookie for authenticated fetches
	ProxyURL               string           `yaml:"proxy_url,omitempty"`                  // http(s):// or socks5:// proxy
	HTTPClientSettings     HTTPClientConfig `yaml:"http_client_settings,omitempty"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`                 // Page fetch deadline and response header wait
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`       // Timeout for idle connections
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`   // Timeout for TLS handshake
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"` // Timeout for 100-continue
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"`     // nil=default, true=force, false=disable
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`          // Connection dial timeout
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`       // TCP keep-alive interval
}

// DefaultUserAgent mimics a desktop browser; several hosts serve stripped pages to unknown agents
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:128.0) Gecko/20100101 Firefox/128.0"

// Default returns a validated configuration with every default applied
func Default() *AppConfig {
	cfg := &AppConfig{}
	cfg.Validate()
	return cfg
}
