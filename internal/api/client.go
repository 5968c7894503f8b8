// Package api is the client for the chat backend's REST surface.
//
// Every call returns either the decoded data of a successful envelope or
// an *apperr.Error: NetworkUnreachable when no response arrived,
// AuthExpired on 401 and ServerRejected for anything else the server
// refused, carrying the server's message verbatim.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cchat/internal/apperr"
	"cchat/internal/logger"
)

// TokenSource supplies the bearer credential for each request. An empty
// token sends no Authorization header.
type TokenSource interface {
	Token() string
}

// StaticToken is a fixed TokenSource.
type StaticToken string

func (t StaticToken) Token() string { return string(t) }

// UserSource names the signed-in user for the endpoints that carry a
// userId next to the credential.
type UserSource interface {
	UserID() string
}

// envelope is the response body shape of every endpoint.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

func (e envelope) text() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}

// Client talks to the backend under a base URL such as http://host/v1/.
type Client struct {
	base   *url.URL
	http   *http.Client
	users  UserSource
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client. Its transport is
// wrapped with the bearer interceptor.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithUser sets where the userId of list and delete calls comes from.
func WithUser(u UserSource) Option {
	return func(c *Client) { c.users = u }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for baseURL authenticating with tokens.
func New(baseURL string, tokens TokenSource, opts ...Option) (*Client, error) {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	c := &Client{base: base, http: &http.Client{Timeout: 30 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logger.Or(c.logger).With("component", "api")

	hc := *c.http
	hc.Transport = &bearerTransport{base: hc.Transport, tokens: tokens}
	c.http = &hc
	return c, nil
}

func (c *Client) userID() string {
	if c.users == nil {
		return ""
	}
	return c.users.UserID()
}

// bearerTransport adds "Authorization: Bearer <token>" to every request.
type bearerTransport struct {
	base   http.RoundTripper
	tokens TokenSource
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	if t.tokens == nil {
		return base.RoundTrip(req)
	}
	token := t.tokens.Token()
	if token == "" || req.Header.Get("Authorization") != "" {
		return base.RoundTrip(req)
	}
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+token)
	return base.RoundTrip(r)
}

// do performs one request and decodes the envelope's data into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	ref, err := url.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	if query != nil {
		ref.RawQuery = query.Encode()
	}
	u := c.base.ResolveReference(ref)

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("request failed", "method", method, "path", path, "error", err)
		return apperr.Network(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.Network(err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode == http.StatusUnauthorized {
		return &apperr.Error{Kind: apperr.KindAuthExpired, Status: resp.StatusCode, Message: env.text()}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := env.text()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return apperr.Rejected(resp.StatusCode, msg)
	}
	if decodeErr != nil {
		return &apperr.Error{Kind: apperr.KindServerRejected, Status: resp.StatusCode, Message: "malformed response", Err: decodeErr}
	}
	if !env.Success {
		return apperr.Rejected(resp.StatusCode, env.text())
	}
	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return &apperr.Error{Kind: apperr.KindServerRejected, Status: resp.StatusCode, Message: "malformed response", Err: err}
		}
	}
	return nil
}
