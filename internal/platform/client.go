package platform

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
)

// SessionTokenHeader carries the session token on requests and login
// responses.
const SessionTokenHeader = "X-Tidepool-Session-Token"

// DefaultUserAgent identifies the client when Options.UserAgent is empty.
const DefaultUserAgent = "healthsync/dev"

// readChunkSize bounds each incremental delivery of response bytes.
const readChunkSize = 32 * 1024

// sessionGuard is implemented by SessionManager. The client asks it whether
// a token is still the current one and tells it when the server rejected a
// token.
type sessionGuard interface {
	holds(token string) bool
	invalidate(token string)
	Current() *Session
}

// Options configures a Client.
type Options struct {
	// HTTPClient performs requests; its Timeout is the only deadline applied.
	HTTPClient *http.Client
	// Reachability gates every request. Nil means always reachable.
	Reachability ReachabilitySource
	// UserAgent identifies the embedding application.
	UserAgent string
	Logger    *slog.Logger
}

// Client is the single chokepoint for every call to the service. It applies
// the reachability and authentication preconditions, attaches headers, sends
// exactly one attempt, and classifies the outcome. It never retries.
type Client struct {
	httpClient *http.Client
	gate       *Gate
	userAgent  string
	logger     *slog.Logger

	sessions sessionGuard
}

// NewClient creates a Client.
func NewClient(opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}

	return &Client{
		httpClient: opts.HTTPClient,
		gate:       NewGate(opts.Reachability),
		userAgent:  opts.UserAgent,
		logger:     opts.Logger,
	}
}

// Gate returns the reachability gate shared by every component built on c.
func (c *Client) Gate() *Gate {
	return c.gate
}

// attach binds the session manager that owns the current session.
func (c *Client) attach(g sessionGuard) {
	c.sessions = g
	c.gate.current = g.Current
}

// Request describes one call to the service.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte

	// Session authenticates the request. Requests without a session must
	// set Environment instead.
	Session     *Session
	Environment Environment

	// Authenticated requires a live session and attaches its token.
	Authenticated bool

	// revoking lets logout send a token the manager has already dropped.
	revoking bool
}

// Response is a successful (2xx) response with its body fully read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Do sends req and returns the response, or a taxonomy error.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	return c.do(ctx, req, nil)
}

// do is Do with an optional sink that observes response bytes as they
// arrive, before classification.
func (c *Client) do(ctx context.Context, req *Request, sink func([]byte)) (*Response, error) {
	if err := c.gate.Offline(); err != nil {
		c.logger.Debug("request skipped, offline",
			slog.String("method", req.Method),
			slog.String("path", req.Path),
		)

		return nil, err
	}

	if req.Authenticated {
		if err := c.checkSession(req); err != nil {
			return nil, err
		}
	}

	httpReq, err := c.build(ctx, req)
	if err != nil {
		return nil, &APIError{Err: ErrInternal, Cause: err}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Warn("request failed",
			slog.String("method", req.Method),
			slog.String("path", req.Path),
			slog.String("error", err.Error()),
		)

		return nil, &APIError{Err: ErrNetwork, Cause: err}
	}
	defer resp.Body.Close()

	body, readErr := readBody(resp.Body, sink)
	if readErr != nil {
		c.logger.Warn("reading response body failed",
			slog.String("method", req.Method),
			slog.String("path", req.Path),
			slog.Int("status", resp.StatusCode),
			slog.String("error", readErr.Error()),
		)

		return nil, &APIError{StatusCode: resp.StatusCode, Err: ErrNetwork, Cause: readErr}
	}

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		c.logger.Debug("request succeeded",
			slog.String("method", req.Method),
			slog.String("path", req.Path),
			slog.Int("status", resp.StatusCode),
		)

		return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
	}

	classified := classifyStatus(resp.StatusCode, body)

	c.logger.Warn("request rejected",
		slog.String("method", req.Method),
		slog.String("path", req.Path),
		slog.Int("status", resp.StatusCode),
	)

	if errors.Is(classified, ErrUnauthorized) && req.Session != nil && c.sessions != nil {
		c.sessions.invalidate(req.Session.Token)
	}

	return nil, classified
}

// checkSession enforces the authentication precondition. A session the
// manager no longer holds is treated as absent, so a 401-triggered clear is
// visible to the very next call.
func (c *Client) checkSession(req *Request) error {
	if req.Session == nil || req.Session.Token == "" {
		return ErrNotLoggedIn
	}

	if c.sessions != nil && !req.revoking && !c.sessions.holds(req.Session.Token) {
		return ErrNotLoggedIn
	}

	return nil
}

func (c *Client) build(ctx context.Context, req *Request) (*http.Request, error) {
	env := req.Environment
	if req.Session != nil && env == "" {
		env = req.Session.Environment
	}

	if env == "" {
		return nil, fmt.Errorf("no environment for %s %s", req.Method, req.Path)
	}

	u := env.BaseURL() + req.Path
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}

	var body io.Reader = http.NoBody
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	if req.Authenticated && req.Session != nil {
		httpReq.Header.Set(SessionTokenHeader, req.Session.Token)
	}

	httpReq.Header.Set("User-Agent", c.userAgent)

	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	return httpReq, nil
}

// readBody reads r to EOF in chunks, handing each chunk to sink.
func readBody(r io.Reader, sink func([]byte)) ([]byte, error) {
	var buf bytes.Buffer

	chunk := make([]byte, readChunkSize)

	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])

			if sink != nil {
				sink(bytes.Clone(chunk[:n]))
			}
		}

		if errors.Is(err, io.EOF) {
			return buf.Bytes(), nil
		}

		if err != nil {
			return buf.Bytes(), err
		}
	}
}

// decodeJSON unmarshals a response body that is required to carry data.
func decodeJSON(body []byte, v any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return ErrNoDataInResponse
	}

	if err := json.Unmarshal(body, v); err != nil {
		return &APIError{Err: ErrBadJSONInResponse, Cause: err}
	}

	return nil
}
