package music

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const defaultPollInterval = 5 * time.Second

type AuthState int

const (
	AuthUnstarted AuthState = iota
	AuthCodeIssued
	AuthPolling
	AuthAuthorized
)

func (s AuthState) String() string {
	switch s {
	case AuthUnstarted:
		return "unstarted"
	case AuthCodeIssued:
		return "code_issued"
	case AuthPolling:
		return "polling"
	case AuthAuthorized:
		return "authorized"
	default:
		return "unknown"
	}
}

type DeviceCode struct {
	UserCode        string
	DeviceCode      string
	VerificationURL string
	Interval        time.Duration
}

// DeviceAuthorizer performs the two halves of a device-code handshake.
// PollToken returns ErrAuthPending while the user has not finished linking.
type DeviceAuthorizer interface {
	FetchDeviceCode(ctx context.Context) (DeviceCode, error)
	PollToken(ctx context.Context, deviceCode string) (*oauth2.Token, error)
}

// TokenRefresher is implemented by authorizers that can mint access tokens
// from a stored credential.
type TokenRefresher interface {
	Refresh(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error)
}

// AuthPrompt is what a user needs to finish linking an account.
type AuthPrompt struct {
	UserCode        string
	VerificationURL string
}

type AuthObserver interface {
	AuthPolled(source, outcome string)
}

// AuthPoller drives the device-code handshake for one gated source. It never
// blocks a caller on another caller's in-flight network call.
type AuthPoller struct {
	name       string
	authorizer DeviceAuthorizer
	logger     *zap.Logger
	now        func() time.Time
	observer   AuthObserver

	mu       sync.Mutex
	state    AuthState
	code     DeviceCode
	lastPoll time.Time
	token    *oauth2.Token
	inFlight bool

	authorized atomic.Bool
}

func NewAuthPoller(name string, authorizer DeviceAuthorizer, logger *zap.Logger) *AuthPoller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthPoller{
		name:       name,
		authorizer: authorizer,
		logger:     logger.Named("auth").With(zap.String("source", name)),
		now:        time.Now,
	}
}

func (p *AuthPoller) WithClock(now func() time.Time) *AuthPoller {
	p.now = now
	return p
}

func (p *AuthPoller) WithObserver(o AuthObserver) *AuthPoller {
	p.observer = o
	return p
}

func (p *AuthPoller) Authorized() bool {
	return p.authorized.Load()
}

func (p *AuthPoller) State() AuthState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Token returns the long-lived credential once authorized.
func (p *AuthPoller) Token() *oauth2.Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token
}

// AccessToken returns a bearer token for requests against the source.
func (p *AuthPoller) AccessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	tok := p.token
	p.mu.Unlock()

	if tok == nil {
		return "", ErrAuthMissing
	}

	refresher, ok := p.authorizer.(TokenRefresher)
	if !ok || tok.Valid() {
		return tok.AccessToken, nil
	}

	fresh, err := refresher.Refresh(ctx, tok)
	if err != nil {
		return "", fmt.Errorf("refresh %s token: %w", p.name, err)
	}

	p.mu.Lock()
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = tok.RefreshToken
	}
	p.token = fresh
	p.mu.Unlock()
	return fresh.AccessToken, nil
}

// Revoke forgets the stored credential so the next Check starts a new
// handshake. Used when the source rejects a token it previously accepted.
func (p *AuthPoller) Revoke() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != AuthAuthorized {
		return
	}
	p.logger.Warn("Stored credential rejected, relinking required")
	p.state = AuthUnstarted
	p.token = nil
	p.code = DeviceCode{}
	p.authorized.Store(false)
	p.observe("revoked")
}

// Check advances the handshake as far as it can without waiting. It returns
// ok when the source is usable, otherwise the prompt to show the user.
func (p *AuthPoller) Check(ctx context.Context) (AuthPrompt, bool, error) {
	if p.Authorized() {
		return AuthPrompt{}, true, nil
	}

	p.mu.Lock()
	switch {
	case p.state == AuthAuthorized:
		p.mu.Unlock()
		return AuthPrompt{}, true, nil
	case p.inFlight:
		prompt := p.promptLocked()
		p.mu.Unlock()
		if prompt.UserCode == "" {
			return AuthPrompt{}, false, ErrAuthPending
		}
		return prompt, false, nil
	case p.state == AuthUnstarted:
		p.inFlight = true
		p.mu.Unlock()
		return p.issue(ctx)
	case p.now().Sub(p.lastPoll) < p.code.Interval:
		prompt := p.promptLocked()
		p.mu.Unlock()
		return prompt, false, nil
	default:
		p.inFlight = true
		p.lastPoll = p.now()
		deviceCode := p.code.DeviceCode
		p.mu.Unlock()
		return p.poll(ctx, deviceCode)
	}
}

// Tick polls in the background once a code has been issued and the poll
// interval has elapsed. It never starts a handshake on its own.
func (p *AuthPoller) Tick(ctx context.Context) {
	p.mu.Lock()
	if p.inFlight || (p.state != AuthCodeIssued && p.state != AuthPolling) {
		p.mu.Unlock()
		return
	}
	if p.now().Sub(p.lastPoll) < p.code.Interval {
		p.mu.Unlock()
		return
	}
	p.inFlight = true
	p.lastPoll = p.now()
	deviceCode := p.code.DeviceCode
	p.mu.Unlock()

	if _, _, err := p.poll(ctx, deviceCode); err != nil {
		p.logger.Debug("Background poll failed", zap.Error(err))
	}
}

func (p *AuthPoller) issue(ctx context.Context) (AuthPrompt, bool, error) {
	p.logger.Info("Starting device authorization")
	code, err := p.authorizer.FetchDeviceCode(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.inFlight = false

	if err != nil {
		p.observe("fetch_failed")
		return AuthPrompt{}, false, fmt.Errorf("fetch %s device code: %w", p.name, err)
	}

	if code.Interval <= 0 {
		code.Interval = defaultPollInterval
	}
	p.code = code
	p.lastPoll = time.Time{}
	p.state = AuthCodeIssued
	p.observe("code_issued")
	return p.promptLocked(), false, nil
}

func (p *AuthPoller) poll(ctx context.Context, deviceCode string) (AuthPrompt, bool, error) {
	tok, err := p.authorizer.PollToken(ctx, deviceCode)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.inFlight = false

	switch {
	case errors.Is(err, ErrAuthPending):
		p.state = AuthPolling
		p.observe("pending")
		return p.promptLocked(), false, nil
	case err != nil:
		p.logger.Warn("Device authorization failed, restarting handshake", zap.Error(err))
		p.state = AuthUnstarted
		p.code = DeviceCode{}
		p.observe("failed")
		return AuthPrompt{}, false, fmt.Errorf("poll %s token: %w", p.name, err)
	case tok == nil || tok.RefreshToken == "":
		p.logger.Warn("Token response carried no refresh token, restarting handshake")
		p.state = AuthUnstarted
		p.code = DeviceCode{}
		p.observe("failed")
		return AuthPrompt{}, false, fmt.Errorf("poll %s token: %w", p.name, ErrAuthMissing)
	}

	p.logger.Info("Device authorization completed")
	p.token = tok
	p.state = AuthAuthorized
	p.code = DeviceCode{}
	p.authorized.Store(true)
	p.observe("authorized")
	return AuthPrompt{}, true, nil
}

func (p *AuthPoller) promptLocked() AuthPrompt {
	return AuthPrompt{
		UserCode:        p.code.UserCode,
		VerificationURL: p.code.VerificationURL,
	}
}

func (p *AuthPoller) observe(outcome string) {
	if p.observer != nil {
		p.observer.AuthPolled(p.name, outcome)
	}
}
