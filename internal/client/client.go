// ABOUTME: HTTP client for the sanctum API that retries when the server is unavailable
// ABOUTME: Only 503 responses are retried, with exponential backoff and a bounded try count

package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// DefaultMaxRetries bounds retries after the first attempt.
const DefaultMaxRetries = 3

// ErrUnauthenticated is returned for 401 responses.
var ErrUnauthenticated = errors.New("unauthenticated")

// ErrForbidden is returned for 403 responses.
var ErrForbidden = errors.New("forbidden")

// ErrUnavailable is returned when the server kept answering 503.
var ErrUnavailable = errors.New("service unavailable")

// StatusError is any other non-success response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Message)
}

// User is the public view of an account.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Client talks to a sanctum server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries uint
	newBackOff func() backoff.BackOff
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMaxRetries sets how many times a 503 is retried.
func WithMaxRetries(n uint) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithBackOff sets the retry schedule. f is called once per request.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(c *Client) { c.newBackOff = f }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxRetries: DefaultMaxRetries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return b
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "client")
	return c
}

// request describes one API call. The body is rebuilt on every attempt.
type request struct {
	method string
	path   string
	token  string
	body   func() (io.Reader, string, error)
}

// do runs req, retrying the whole request while the server answers 503.
func (c *Client) do(ctx context.Context, req request) ([]byte, error) {
	attempt := 0
	op := func() ([]byte, error) {
		attempt++
		body, status, retryAfter, err := c.send(ctx, req)
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		switch {
		case status >= 200 && status < 300:
			return body, nil
		case status == http.StatusServiceUnavailable:
			c.logger.Debug("server unavailable, retrying", "path", req.path, "attempt", attempt)
			if retryAfter > 0 {
				return nil, backoff.RetryAfter(retryAfter)
			}
			return nil, ErrUnavailable
		case status == http.StatusUnauthorized:
			return nil, backoff.Permanent(ErrUnauthenticated)
		case status == http.StatusForbidden:
			return nil, backoff.Permanent(ErrForbidden)
		default:
			return nil, backoff.Permanent(&StatusError{StatusCode: status, Message: errorMessage(body)})
		}
	}

	body, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(c.maxRetries+1),
	)
	if err != nil {
		var retryAfter *backoff.RetryAfterError
		if errors.As(err, &retryAfter) {
			return nil, ErrUnavailable
		}
		return nil, err
	}
	return body, nil
}

// send performs a single attempt and returns the body, status and any
// Retry-After seconds.
func (c *Client) send(ctx context.Context, req request) ([]byte, int, int, error) {
	var body io.Reader
	var contentType string
	if req.body != nil {
		var err error
		body, contentType, err = req.body()
		if err != nil {
			return nil, 0, 0, err
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, body)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if req.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%s %s: %w", req.method, req.path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("reading response: %w", err)
	}

	retryAfter, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
	return data, resp.StatusCode, retryAfter, nil
}

func jsonBody(v any) func() (io.Reader, string, error) {
	return func() (io.Reader, string, error) {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, "", fmt.Errorf("encoding request: %w", err)
		}
		return strings.NewReader(string(data)), "application/json", nil
	}
}

func errorMessage(body []byte) string {
	var resp struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &resp) == nil {
		return resp.Error
	}
	return ""
}

// IssueToken exchanges credentials for a plaintext API token named device.
func (c *Client) IssueToken(ctx context.Context, email, password, device string, abilities ...string) (string, error) {
	body, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/sanctum/token",
		body: jsonBody(map[string]any{
			"email":       email,
			"password":    password,
			"device_name": device,
			"abilities":   abilities,
		}),
	})
	if err != nil {
		return "", fmt.Errorf("issuing token: %w", err)
	}
	return string(body), nil
}

// CurrentUser returns the user owning token.
func (c *Client) CurrentUser(ctx context.Context, token string) (*User, error) {
	body, err := c.do(ctx, request{method: http.MethodGet, path: "/api/user", token: token})
	if err != nil {
		return nil, fmt.Errorf("fetching current user: %w", err)
	}

	var u User
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, fmt.Errorf("decoding user: %w", err)
	}
	return &u, nil
}

// CreateUser creates an account using a token holding the users:create ability.
func (c *Client) CreateUser(ctx context.Context, token, name, email, password string) (*User, error) {
	body, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/user",
		token:  token,
		body:   jsonBody(map[string]string{"name": name, "email": email, "password": password}),
	})
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	var u User
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, fmt.Errorf("decoding user: %w", err)
	}
	return &u, nil
}

// RevokeToken revokes one of the caller's tokens by id.
func (c *Client) RevokeToken(ctx context.Context, token, id string) error {
	_, err := c.do(ctx, request{method: http.MethodDelete, path: "/api/tokens/" + id, token: token})
	if err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	return nil
}
