// Package client is the HTTP SDK for the identity backend. A Client
// implements auth.IdentityProvider and auth.ProfileStore, persists the
// session in a CredentialStore and publishes session changes to
// subscribers.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/diewo77/studio-console/auth"
	"github.com/diewo77/studio-console/gate"
	"github.com/diewo77/studio-console/httpx"
)

// ErrSessionExpired is returned by Refresh when the backend no longer
// accepts the refresh token.
var ErrSessionExpired = errors.New("session expired")

// DefaultRefreshMargin is how long before expiry an access token is
// refreshed.
const DefaultRefreshMargin = time.Minute

const subscriberBuffer = 16

// Client talks to the identity backend.
type Client struct {
	base          string
	http          *http.Client
	store         CredentialStore
	log           *slog.Logger
	now           func() time.Time
	refreshMargin time.Duration

	mu      sync.Mutex
	subs    map[int]*subscriber
	nextSub int

	// refreshMu serializes token refreshes so a rotated refresh token is
	// never presented twice.
	refreshMu sync.Mutex
}

type subscriber struct {
	ch   chan auth.Event
	done chan struct{}
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithRefreshMargin sets how long before expiry tokens are refreshed.
func WithRefreshMargin(d time.Duration) Option {
	return func(c *Client) { c.refreshMargin = d }
}

// New creates a client for the backend at baseURL.
func New(baseURL string, store CredentialStore, opts ...Option) *Client {
	c := &Client{
		base:          strings.TrimRight(baseURL, "/"),
		http:          &http.Client{Timeout: 10 * time.Second},
		store:         store,
		log:           slog.New(slog.DiscardHandler),
		now:           time.Now,
		refreshMargin: DefaultRefreshMargin,
		subs:          make(map[int]*subscriber),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var (
	_ auth.IdentityProvider = (*Client)(nil)
	_ auth.ProfileStore     = (*Client)(nil)
)

// SignInWithPassword exchanges credentials for a session, stores it and
// publishes EventSignedIn.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*auth.Session, error) {
	var s auth.Session
	status, apiErr, err := c.call(ctx, http.MethodPost, "/auth/v1/token", "", map[string]string{
		"email": email, "password": password,
	}, &s)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusOK:
	case status == http.StatusUnauthorized || apiErr.Error == "invalid_credentials":
		return nil, auth.ErrInvalidCredentials
	default:
		return nil, unexpected("sign in", status, apiErr)
	}
	if err := c.saveSession(&s); err != nil {
		return nil, err
	}
	c.emit(auth.Event{Kind: auth.EventSignedIn, Session: copySession(&s)})
	return &s, nil
}

// SignUp registers an account. The backend creates the profile row and
// does not sign the user in, so the returned session is always nil.
func (c *Client) SignUp(ctx context.Context, email, password string, meta auth.SignupMetadata) (*auth.Session, error) {
	body := map[string]string{
		"email":        email,
		"password":     password,
		"display_name": meta.DisplayName,
	}
	if meta.Role.Valid() {
		body["role"] = meta.Role.String()
	}
	status, apiErr, err := c.call(ctx, http.MethodPost, "/auth/v1/signup", "", body, nil)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusCreated:
		return nil, nil
	case apiErr.Error == "email_in_use":
		return nil, auth.ErrEmailAlreadyInUse
	case apiErr.Error == "weak_password":
		return nil, auth.ErrWeakPassword
	case status >= 400 && status < 500:
		return nil, fmt.Errorf("%w: %s", auth.ErrSignupFailed, apiErr.Error)
	default:
		return nil, unexpected("sign up", status, apiErr)
	}
}

// SignOut revokes the session. The stored session is only cleared, and
// EventSignedOut only published, once the backend confirmed or the session
// was already gone.
func (c *Client) SignOut(ctx context.Context) error {
	s, err := c.storedSession()
	if err != nil {
		return err
	}
	if s != nil {
		status, apiErr, err := c.call(ctx, http.MethodPost, "/auth/v1/logout", s.AccessToken, nil, nil)
		if err != nil {
			return err
		}
		if status != http.StatusNoContent && status != http.StatusUnauthorized {
			return unexpected("sign out", status, apiErr)
		}
	}
	if err := c.saveSession(nil); err != nil {
		return err
	}
	c.emit(auth.Event{Kind: auth.EventSignedOut})
	return nil
}

// GetSession returns the stored session after checking it with the backend,
// refreshing it when needed. It returns (nil, nil) when there is no usable
// session.
func (c *Client) GetSession(ctx context.Context) (*auth.Session, error) {
	s, err := c.storedSession()
	if err != nil || s == nil {
		return nil, err
	}
	if c.expiring(s) {
		return c.refreshOrForget(ctx)
	}
	status, apiErr, err := c.call(ctx, http.MethodGet, "/auth/v1/session", s.AccessToken, nil, nil)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
		return s, nil
	case http.StatusUnauthorized:
		return c.refreshOrForget(ctx)
	default:
		return nil, unexpected("get session", status, apiErr)
	}
}

// FindUserByID reads a profile row. (nil, nil) when the row does not exist.
func (c *Client) FindUserByID(ctx context.Context, id string) (*auth.ProfileRow, error) {
	s, err := c.storedSession()
	if err != nil {
		return nil, err
	}
	token := ""
	if s != nil {
		token = s.AccessToken
	}
	var row auth.ProfileRow
	status, apiErr, err := c.call(ctx, http.MethodGet, "/rest/v1/profiles/"+url.PathEscape(id), token, nil, &row)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
		return &row, nil
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, unexpected("find profile", status, apiErr)
	}
}

// Navigation returns the menu entries the signed-in user may open.
func (c *Client) Navigation(ctx context.Context) ([]gate.NavItem, error) {
	s, err := c.storedSession()
	if err != nil {
		return nil, err
	}
	token := ""
	if s != nil {
		token = s.AccessToken
	}
	var items []gate.NavItem
	status, apiErr, err := c.call(ctx, http.MethodGet, "/rest/v1/navigation", token, nil, &items)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, unexpected("navigation", status, apiErr)
	}
	return items, nil
}

// Refresh rotates the token pair and publishes EventTokenRefreshed. When
// the backend rejects the refresh token the stored session is dropped,
// EventSignedOut is published and ErrSessionExpired returned.
func (c *Client) Refresh(ctx context.Context) (*auth.Session, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	s, err := c.storedSession()
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrSessionExpired
	}
	var next auth.Session
	status, apiErr, err := c.call(ctx, http.MethodPost, "/auth/v1/refresh", "", map[string]string{
		"refresh_token": s.RefreshToken,
	}, &next)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
	case http.StatusUnauthorized:
		c.log.Info("refresh rejected; dropping session", "user_id", s.UserID, "code", apiErr.Error)
		if err := c.saveSession(nil); err != nil {
			return nil, err
		}
		c.emit(auth.Event{Kind: auth.EventSignedOut})
		return nil, ErrSessionExpired
	default:
		return nil, unexpected("refresh", status, apiErr)
	}
	if err := c.saveSession(&next); err != nil {
		return nil, err
	}
	c.emit(auth.Event{Kind: auth.EventTokenRefreshed, Session: copySession(&next)})
	return &next, nil
}

func (c *Client) refreshOrForget(ctx context.Context) (*auth.Session, error) {
	s, err := c.Refresh(ctx)
	if errors.Is(err, ErrSessionExpired) {
		return nil, nil
	}
	return s, err
}

// OnSessionChange subscribes to session events. Events are dropped for a
// subscriber that falls more than a few events behind.
func (c *Client) OnSessionChange() (<-chan auth.Event, func()) {
	sub := &subscriber{ch: make(chan auth.Event, subscriberBuffer), done: make(chan struct{})}
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = sub
	c.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
			close(sub.done)
		})
	}
}

func (c *Client) emit(ev auth.Event) {
	c.mu.Lock()
	subs := make([]*subscriber, 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	c.mu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- ev:
		case <-s.done:
		default:
			c.log.Warn("session event dropped; subscriber is not keeping up", "event", ev.Kind.String())
		}
	}
}

// Credentials returns what the store currently holds.
func (c *Client) Credentials() (Credentials, error) {
	return c.store.Load()
}

// SetReturnTo records the location to go back to after the next login.
func (c *Client) SetReturnTo(location string) error {
	creds, err := c.store.Load()
	if err != nil {
		return err
	}
	creds.ReturnTo = location
	return c.store.Save(creds)
}

func (c *Client) storedSession() (*auth.Session, error) {
	creds, err := c.store.Load()
	if err != nil {
		return nil, err
	}
	return creds.Session, nil
}

func (c *Client) saveSession(s *auth.Session) error {
	creds, err := c.store.Load()
	if err != nil {
		return err
	}
	creds.Session = copySession(s)
	return c.store.Save(creds)
}

func (c *Client) expiring(s *auth.Session) bool {
	return !s.ExpiresAt.IsZero() && c.now().Add(c.refreshMargin).After(s.ExpiresAt)
}

// call performs one JSON request. A non-nil error means the backend could
// not be reached or answered garbage; HTTP error statuses are returned with
// the decoded error body.
func (c *Client) call(ctx context.Context, method, path, token string, body, out any) (int, httpx.ErrorResponse, error) {
	var apiErr httpx.ErrorResponse
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, apiErr, err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return 0, apiErr, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, apiErr, fmt.Errorf("%w: %s %s: %w", auth.ErrTransport, method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, httpx.MaxBodyBytes))
	if err != nil {
		return 0, apiErr, fmt.Errorf("%w: read %s: %w", auth.ErrTransport, path, err)
	}

	if resp.StatusCode >= 400 {
		_ = json.Unmarshal(data, &apiErr)
		return resp.StatusCode, apiErr, nil
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return 0, apiErr, fmt.Errorf("%w: decode %s: %w", auth.ErrTransport, path, err)
		}
	}
	return resp.StatusCode, apiErr, nil
}

func unexpected(op string, status int, apiErr httpx.ErrorResponse) error {
	code := apiErr.Error
	if code == "" {
		code = http.StatusText(status)
	}
	return fmt.Errorf("%w: %s: status %d (%s)", auth.ErrTransport, op, status, code)
}

func copySession(s *auth.Session) *auth.Session {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}
