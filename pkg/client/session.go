package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/tanjh/roombook/pkg/cache"
	"github.com/tanjh/roombook/pkg/decode"
)

// ErrTokenNotFound is returned when the served page carries no verification
// token field. Callers must treat it as "cannot proceed": every mutating
// request requires the token.
var ErrTokenNotFound = errors.New("verification token not found on served page")

// ErrSessionExpired is returned when a response carries the server's
// session-expiry marker. The oracle check is point-in-time, so any later
// response can be the first to report expiry.
var ErrSessionExpired = errors.New("session has expired")

// SessionExpired reports whether the response carries the session-expiry
// marker. The server answers requests on a dead session with 200 and this
// marker instead of a status code, so every caller must check.
func (r *Response) SessionExpired() bool {
	return bytes.Contains(r.Body, []byte(sessionExpiredMarker))
}

// IsExpired checks whether the server still accepts the current session.
// This is a point-in-time check: the session can expire between this call
// and any subsequent request, so callers must also treat a later response
// carrying the expiry marker as an expiry signal.
func (c *Client) IsExpired(ctx context.Context) (bool, error) {
	resp, err := c.Get(ctx, c.entryURL())
	if err != nil {
		return false, fmt.Errorf("checking session validity: %w", err)
	}
	return bytes.Contains(resp.Body, []byte(sessionExpiredMarker)), nil
}

// FetchToken retrieves the per-session anti-forgery token from the entry
// page. The token is bound to the current session and becomes invalid the
// moment the session is renewed.
func (c *Client) FetchToken(ctx context.Context) (string, error) {
	resp, err := c.Get(ctx, c.entryURL())
	if err != nil {
		return "", fmt.Errorf("fetching entry page for token: %w", err)
	}
	token, ok := decode.ParseVerificationToken(bytes.NewReader(resp.Body))
	if !ok {
		return "", ErrTokenNotFound
	}
	return token, nil
}

// Credentials is the username/password pair for the identity provider.
type Credentials struct {
	Username string
	Password string
}

// Manager ties the Client to the persistent cache: it reuses a cached
// session when the server still accepts it, performs a fresh login
// otherwise, and keeps the verification token's lifetime coupled to the
// session that minted it.
type Manager struct {
	client *Client
	store  *cache.Store
	creds  Credentials
	log    *zap.Logger
}

// NewManager creates a session manager.
func NewManager(client *Client, store *cache.Store, creds Credentials, log *zap.Logger) *Manager {
	return &Manager{client: client, store: store, creds: creds, log: log}
}

// EnsureSession makes the Client's session usable: a cached session is
// restored and validated against the live server; on cache miss or expiry a
// fresh login runs and the new session is persisted. The returned flag
// reports whether the cached session was reused, which decides whether the
// cached token is still trustworthy.
func (m *Manager) EnsureSession(ctx context.Context) (reused bool, err error) {
	var state State
	if err := m.store.GetJSON(cache.KeySession, &state); err == nil {
		m.client.RestoreState(state)
		switch expired, err := m.client.IsExpired(ctx); {
		case err != nil:
			// A failed check proves nothing about the session; a fresh
			// login settles it either way.
			m.log.Warn("session validity check failed, logging in again", zap.Error(err))
		case !expired:
			m.log.Info("reusing cached session")
			return true, nil
		default:
			m.log.Info("cached session has expired, logging in again")
		}
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		return false, err
	}

	if err := m.client.Login(ctx, m.creds.Username, m.creds.Password); err != nil {
		return false, err
	}
	if err := m.store.PutJSON(cache.KeySession, m.client.ExportState()); err != nil {
		// The session works; failing to persist it only costs a login next run.
		m.log.Warn("failed to persist session", zap.Error(err))
	}
	return false, nil
}

// EnsureToken returns a verification token for the current session. The
// cached token is reused only when the session itself was reused; a renewed
// session always discards it and mints a fresh one.
func (m *Manager) EnsureToken(ctx context.Context, sessionReused bool) (string, error) {
	if sessionReused {
		if token, err := m.store.GetToken(); err == nil {
			m.log.Info("reusing cached verification token")
			return token, nil
		}
	}
	token, err := m.client.FetchToken(ctx)
	if err != nil {
		return "", err
	}
	if err := m.store.PutToken(token); err != nil {
		m.log.Warn("failed to persist verification token", zap.Error(err))
	}
	m.log.Info("verification token extracted")
	return token, nil
}

// Invalidate drops the persisted session and token, forcing a fresh login
// on the next EnsureSession.
func (m *Manager) Invalidate() error {
	if err := m.store.Delete(cache.KeySession); err != nil {
		return err
	}
	return m.store.Delete(cache.KeyToken)
}
