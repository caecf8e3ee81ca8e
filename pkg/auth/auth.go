// Package auth is the boundary to the login subsystem. The extraction pipeline
// only ever asks whether a session is logged in; mutating that state is left
// to a Session implementation driven through a Gate.
package auth

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// LoginResult is the outcome of submitting username and password
type LoginResult int

const (
	LoginInvalidCredentials LoginResult = iota
	LoginTwoFactorRequired
	LoginSuccess
)

func (r LoginResult) String() string {
	switch r {
	case LoginTwoFactorRequired:
		return "two_factor_required"
	case LoginSuccess:
		return "success"
	default:
		return "invalid_credentials"
	}
}

// TwoFactorResult is the outcome of submitting a two-factor code
type TwoFactorResult int

const (
	TwoFactorInvalid TwoFactorResult = iota
	TwoFactorSuccess
)

// ErrLoginUnsupported is returned by sessions that cannot perform an interactive login
var ErrLoginUnsupported = errors.New("interactive login not supported by this session")

// Session is the login state machine owned by the page-fetching side
type Session interface {
	IsLoggedIn() bool
	Login(ctx context.Context, username, password string) (LoginResult, error)
	SubmitTwoFactor(ctx context.Context, code string) (TwoFactorResult, error)
}

// Prompter asks the user for login input. ok=false means the user abandoned the prompt.
type Prompter interface {
	Credentials(ctx context.Context) (username, password string, ok bool)
	TwoFactorCode(ctx context.Context) (code string, ok bool)
}

// CookieSession is logged in when a session cookie is configured. It cannot
// log in interactively; the cookie is taken from a browser and put in config.
type CookieSession struct {
	mu        sync.RWMutex
	sessionID string
}

// NewCookieSession creates a session from a (possibly empty) sessionid cookie value
func NewCookieSession(sessionID string) *CookieSession {
	return &CookieSession{sessionID: sessionID}
}

func (s *CookieSession) IsLoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID != ""
}

// SessionID returns the cookie value sent on authenticated requests
func (s *CookieSession) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

func (s *CookieSession) Login(context.Context, string, string) (LoginResult, error) {
	return LoginInvalidCredentials, ErrLoginUnsupported
}

func (s *CookieSession) SubmitTwoFactor(context.Context, string) (TwoFactorResult, error) {
	return TwoFactorInvalid, ErrLoginUnsupported
}

const defaultMaxAttempts = 3

// Gate blocks gated extraction until the session is logged in or the user gives up
type Gate struct {
	session     Session
	prompter    Prompter // nil means never prompt
	maxAttempts int
	log         *logrus.Entry
}

// NewGate creates a Gate. prompter may be nil for headless runs.
func NewGate(session Session, prompter Prompter, log *logrus.Entry) *Gate {
	return &Gate{session: session, prompter: prompter, maxAttempts: defaultMaxAttempts, log: log}
}

// IsLoggedIn reports the current session state
func (g *Gate) IsLoggedIn() bool {
	return g.session != nil && g.session.IsLoggedIn()
}

// Require returns true once the session is logged in. It prompts for
// credentials (and a two-factor code when asked for one) up to a fixed number
// of attempts, and returns false when the prompt is abandoned, attempts run
// out, the session cannot log in, or ctx is done.
func (g *Gate) Require(ctx context.Context) bool {
	if g.IsLoggedIn() {
		return true
	}
	if g.session == nil || g.prompter == nil {
		g.log.Warn("Login required but no login prompt is available")
		return false
	}

	g.log.Info("Login initiated")
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return false
		}
		username, password, ok := g.prompter.Credentials(ctx)
		if !ok {
			g.log.Info("Login abandoned")
			return false
		}

		result, err := g.session.Login(ctx, username, password)
		if err != nil {
			g.log.Warnf("Login failed: %v", err)
			return false
		}

		switch result {
		case LoginSuccess:
			g.log.Info("Login complete")
			return true
		case LoginTwoFactorRequired:
			g.log.Info("Login credentials valid but 2FA is enabled")
			return g.twoFactor(ctx, username, password)
		default:
			g.log.WithField("attempt", attempt).Warn("Login credentials invalid")
		}
	}
	return false
}

// twoFactor prompts for codes. After an invalid code the cached credentials
// are submitted again so the site issues a fresh code.
func (g *Gate) twoFactor(ctx context.Context, username, password string) bool {
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		code, ok := g.prompter.TwoFactorCode(ctx)
		if !ok {
			g.log.Info("Two-factor prompt abandoned")
			return false
		}
		result, err := g.session.SubmitTwoFactor(ctx, code)
		if err != nil {
			g.log.Warnf("Two-factor submission failed: %v", err)
			return false
		}
		if result == TwoFactorSuccess {
			g.log.Info("Login complete")
			return true
		}

		g.log.WithField("attempt", attempt).Warn("2FA code is invalid")
		if attempt == g.maxAttempts {
			break
		}
		if _, err := g.session.Login(ctx, username, password); err != nil {
			g.log.Warnf("Re-issuing two-factor code failed: %v", err)
			return false
		}
	}
	return false
}
