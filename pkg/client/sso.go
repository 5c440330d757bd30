package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/tanjh/roombook/pkg/decode"
)

var (
	// ErrEntryPointUnavailable is returned when the application's entry page
	// does not lead to a sign-in page, so the handshake cannot start.
	ErrEntryPointUnavailable = errors.New("entry page did not present a sign-in page")
	// ErrInvalidCredentials is returned when the identity provider rejects
	// the username/password pair.
	ErrInvalidCredentials = errors.New("incorrect username or password")
	// ErrLoginLoop is returned when the handshake ends back at the sign-in
	// page: the federation exchange did not produce an application session.
	// Typically a credential, MFA, or policy rejection the identity provider
	// does not report explicitly.
	ErrLoginLoop = errors.New("login loop detected: handshake did not complete")
)

// Markers the server embeds in its responses. Taken verbatim from observed
// behavior; the protocol has no structured signal for any of these states.
const (
	signInMarker         = "Sign In"
	idpLoginPathMarker   = "adfs/ls"
	badCredentialsMarker = "Incorrect user ID or password"
	sessionExpiredMarker = "Your session may have expired"
)

// Login drives the full WS-Federation handshake: entry page, credential POST
// to the identity provider, and resubmission of the federation token to the
// application. On success the Client's jar holds the application session.
// Nothing is retried; the caller decides whether to rerun the whole
// handshake after a failure.
func (c *Client) Login(ctx context.Context, username, password string) error {
	entry, err := c.Get(ctx, c.entryURL())
	if err != nil {
		return fmt.Errorf("fetching entry page: %w", err)
	}
	if !isSignInPage(entry) {
		return ErrEntryPointUnavailable
	}

	// The redirect chain lands on the identity provider's login page; its
	// final URL is where the credential form is submitted.
	idpURL := entry.URL
	c.log.Debug("submitting credentials to identity provider", zap.String("idp_url", idpURL.String()))

	form := url.Values{
		"UserName":   {username},
		"Password":   {password},
		"AuthMethod": {"FormsAuthentication"},
		"Kmsi":       {"true"},
	}
	login, err := c.postTo(ctx, idpURL.String(), form, nil)
	if err != nil {
		return fmt.Errorf("submitting login form: %w", err)
	}
	if bytes.Contains(login.Body, []byte(badCredentialsMarker)) {
		return ErrInvalidCredentials
	}

	action, fields, err := decode.ParseAutoSubmitForm(bytes.NewReader(login.Body))
	if err != nil {
		// No federation form on the page means the IdP kept us at the login
		// surface without saying why.
		return fmt.Errorf("%w: %v", ErrLoginLoop, err)
	}
	action = resolveAction(action, idpURL)

	origin := idpURL.Scheme + "://" + idpURL.Host
	payload := url.Values{}
	for name, value := range fields {
		payload.Set(name, value)
	}
	final, err := c.postTo(ctx, action, payload, map[string]string{
		"Referer": idpURL.String(),
		"Origin":  origin,
	})
	if err != nil {
		return fmt.Errorf("posting federation token: %w", err)
	}
	if final.StatusCode != 200 {
		return fmt.Errorf("unexpected status %d after federation callback", final.StatusCode)
	}
	if isSignInPage(final) {
		return ErrLoginLoop
	}

	c.log.Info("authenticated session established")
	return nil
}

// isSignInPage reports whether a response is the identity provider's sign-in
// surface, either by body content or by having landed on the IdP login path.
func isSignInPage(resp *Response) bool {
	return bytes.Contains(resp.Body, []byte(signInMarker)) ||
		strings.Contains(resp.URL.String(), idpLoginPathMarker)
}

// resolveAction makes a relative form action absolute against the identity
// provider's scheme and host.
func resolveAction(action string, idpURL *url.URL) string {
	if strings.HasPrefix(action, "/") {
		return idpURL.Scheme + "://" + idpURL.Host + action
	}
	return action
}
