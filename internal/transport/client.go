// Package transport wraps every call to the wiki API. It attaches the fixed
// request options the server uses to tell programmatic requests from browser
// navigation, and detects authentication-session expiry.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
)

// DefaultLoginPath is where an expired session is sent to log in again.
const DefaultLoginPath = "/api/v1/authc"

// Redirector performs the page-level navigation triggered by a session
// expiry.
type Redirector interface {
	Redirect(ctx context.Context, target string)
}

// RedirectFunc adapts a function to the Redirector interface.
type RedirectFunc func(ctx context.Context, target string)

func (f RedirectFunc) Redirect(ctx context.Context, target string) {
	f(ctx, target)
}

type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	loginPath  string
	redirector Redirector
}

type Option func(*Client)

// WithHTTPClient replaces the underlying client. A cookie jar is added when
// the supplied client has none.
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

func WithLoginPath(loginPath string) Option {
	return func(client *Client) {
		client.loginPath = loginPath
	}
}

func WithRedirector(r Redirector) Option {
	return func(client *Client) {
		client.redirector = r
	}
}

// New creates a client for the API rooted at baseURL. Request paths passed
// to Call are resolved relative to the base URL's path.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL %q: %w", baseURL, err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("API URL must be absolute: %s", baseURL)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")

	client := &Client{
		baseURL:   u,
		loginPath: DefaultLoginPath,
		redirector: RedirectFunc(func(ctx context.Context, target string) {
			log.Warn().Str("target", target).Msg("session expired; no redirector configured")
		}),
	}
	for _, opt := range opts {
		opt(client)
	}

	if client.httpClient == nil {
		client.httpClient = &http.Client{Transport: http.DefaultTransport}
	}
	if client.httpClient.Jar == nil {
		// session cookies stay with the API origin, as a same-origin fetch
		// would keep them
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("cookie jar creation failed: %w", err)
		}
		withJar := *client.httpClient
		withJar.Jar = jar
		client.httpClient = &withJar
	}

	return client, nil
}

// URL resolves an API-relative path (optionally carrying a query) against
// the base URL.
func (c *Client) URL(path string) string {
	return c.baseURL.String() + path
}

// Call issues a request to the API. A non-nil body is sent as JSON. The
// response is returned whatever its status, including after a session
// expiry redirect was triggered: the caller owns the body.
func (c *Client) Call(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.Do(req)
}

// Do sends a prepared request with the fixed options attached.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Int("status", resp.StatusCode).
		Msg("api call")

	if IsAuthenticationRedirect(resp) {
		ctx := req.Context()
		target := CreateRedirectURL(c.loginPath, LocationFromContext(ctx))
		log.Info().Str("target", target).Msg("session expired: redirecting to login")
		c.redirector.Redirect(ctx, target)
	}

	return resp, nil
}

// IsAuthenticationRedirect reports whether the response signals an expired
// session: a 401 that names a redirect target.
func IsAuthenticationRedirect(resp *http.Response) bool {
	return resp.StatusCode == http.StatusUnauthorized && resp.Header.Get("Location") != ""
}

// CreateRedirectURL builds the login URL that returns the user to location
// once the session is re-established.
func CreateRedirectURL(loginPath, location string) string {
	return loginPath + "?location=" + url.QueryEscape(location)
}
