// Package client maintains the authenticated HTTP session against the
// booking application: the SSO login handshake, session expiry detection,
// and verification-token retrieval. One Client drives a strictly sequential
// chain of requests; it is not safe for concurrent use because the server's
// session cookie and anti-forgery token are not proven safe for concurrent
// mutation.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Application endpoint paths.
const (
	PathEntry            = "/SRB001/SRB001Page"
	PathSearch           = "/SRB001/SearchSRB001List"
	PathSlotList         = "/SRB001/GetTimeSlotListByresidNdatetime"
	PathBulkAvailability = "/MRB002/ResourceReload"
	PathConfirm          = "/SRB001/NormalBookingConfirmation"
	PathFinalize         = "/SRB001/BookingSaving"
)

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/142.0.0.0 Safari/537.36"

// Client is an HTTP session against the booking application: cookie jar,
// browser-like base headers, and a request timeout.
type Client struct {
	http    *http.Client
	jar     *cookiejar.Jar
	baseURL *url.URL
	log     *zap.Logger
}

// Response is the outcome of one request: the final status, the full body,
// and the URL the request ended up at after redirects.
type Response struct {
	StatusCode int
	Body       []byte
	URL        *url.URL
}

// New creates a Client for the application at baseURL.
func New(baseURL string, timeout time.Duration, log *zap.Logger) (*Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &Client{
		http:    &http.Client{Jar: jar, Timeout: timeout},
		jar:     jar,
		baseURL: parsed,
		log:     log,
	}, nil
}

// BaseURL returns the application's base URL.
func (c *Client) BaseURL() *url.URL {
	return c.baseURL
}

func (c *Client) entryURL() string {
	return c.baseURL.JoinPath(PathEntry).String()
}

// Get issues a GET to an absolute URL and reads the full response.
func (c *Client) Get(ctx context.Context, rawURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	return c.do(req)
}

// PostForm issues a form-encoded POST to path on the application host,
// with the browser-like headers the server expects from its own pages.
func (c *Client) PostForm(ctx context.Context, path string, form url.Values) (*Response, error) {
	target := c.baseURL.JoinPath(path).String()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Origin", c.baseURL.Scheme+"://"+c.baseURL.Host)
	req.Header.Set("Referer", c.entryURL())
	return c.do(req)
}

// postTo issues a form-encoded POST to an absolute URL with extra headers,
// used during the SSO handshake against the identity provider.
func (c *Client) postTo(ctx context.Context, rawURL string, form url.Values, headers map[string]string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.log.Warn("failed to close response body", zap.Error(err))
		}
	}()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", req.URL, err)
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Body:       body,
		URL:        resp.Request.URL,
	}, nil
}

// State is the serializable snapshot of a session: the cookies the
// application host has set. Restoring it into a fresh Client resumes the
// session without a new login, if the server still accepts it.
type State struct {
	Cookies []StateCookie `json:"cookies"`
}

// StateCookie is one persisted session cookie.
type StateCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ExportState snapshots the session cookies for persistence.
func (c *Client) ExportState() State {
	var state State
	for _, ck := range c.jar.Cookies(c.baseURL) {
		state.Cookies = append(state.Cookies, StateCookie{Name: ck.Name, Value: ck.Value})
	}
	return state
}

// RestoreState loads a persisted snapshot into the cookie jar. The restored
// session may still be expired server-side; check with IsExpired.
func (c *Client) RestoreState(state State) {
	cookies := make([]*http.Cookie, 0, len(state.Cookies))
	for _, ck := range state.Cookies {
		cookies = append(cookies, &http.Cookie{Name: ck.Name, Value: ck.Value})
	}
	c.jar.SetCookies(c.baseURL, cookies)
}
