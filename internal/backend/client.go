package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"dealsync/internal/config"
	"dealsync/internal/services"
)

const userAgent = "dealsync/0.1.0"

// Client provides access to the deal backend: the REST surface for entity
// writes and the edge-function surface for media uploads.
type Client struct {
	restURL      string
	functionsURL string
	anonKey      string
	auth         AuthProvider
	httpClient   *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// New creates a backend client from configuration.
func New(cfg *config.Config, auth AuthProvider, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("backend client requires config")
	}
	if auth == nil {
		return nil, errors.New("backend client requires an auth provider")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.Backend.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("backend base url required")
	}
	functionsURL := strings.TrimRight(strings.TrimSpace(cfg.Backend.FunctionsURL), "/")
	if functionsURL == "" {
		functionsURL = baseURL + "/functions/v1"
	}

	timeout := time.Duration(cfg.Backend.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := &Client{
		restURL:      baseURL + "/rest/v1",
		functionsURL: functionsURL,
		anonKey:      strings.TrimSpace(cfg.Backend.AnonKey),
		auth:         auth,
		httpClient:   &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// doJSON issues an authenticated request with a JSON body and decodes a JSON
// response into out (when out is non-nil). A 401 triggers one session
// refresh and retry before surfacing an auth error.
func (c *Client) doJSON(ctx context.Context, method, rawURL string, headers map[string]string, body any, out any) error {
	session, err := c.auth.Session(ctx)
	if err != nil {
		return services.Wrap(services.ErrAuth, "backend", "session", "no active session", err)
	}

	status, data, err := c.roundTrip(ctx, method, rawURL, headers, body, session.AccessToken)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		session, err = c.auth.Refresh(ctx)
		if err != nil {
			return services.Wrap(services.ErrAuth, "backend", "refresh session", "", err)
		}
		status, data, err = c.roundTrip(ctx, method, rawURL, headers, body, session.AccessToken)
		if err != nil {
			return err
		}
	}

	if err := classifyStatus(status, data); err != nil {
		return err
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return services.Wrap(services.ErrTransient, "backend", "decode response", "", err)
		}
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, rawURL string, headers map[string]string, body any, token string) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, nil, services.Wrap(services.ErrValidation, "backend", "encode request", "", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return 0, nil, services.Wrap(services.ErrValidation, "backend", "build request", rawURL, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.anonKey != "" {
		req.Header.Set("apikey", c.anonKey)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, services.Classify(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, services.Classify(err)
	}
	return resp.StatusCode, data, nil
}

func classifyStatus(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	detail := strings.TrimSpace(string(body))
	if len(detail) > 200 {
		detail = detail[:200]
	}
	message := fmt.Sprintf("status %d", status)
	if detail != "" {
		message = fmt.Sprintf("%s: %s", message, detail)
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return services.Wrap(services.ErrAuth, "backend", "request", message, nil)
	case status == http.StatusRequestTimeout:
		return services.Wrap(services.ErrTimeout, "backend", "request", message, nil)
	case status == http.StatusNotFound:
		return services.Wrap(services.ErrValidation, "backend", "request", message, nil)
	case status >= 400 && status < 500 && status != http.StatusTooManyRequests:
		return services.Wrap(services.ErrValidation, "backend", "request", message, nil)
	default:
		return services.Wrap(services.ErrTransient, "backend", "request", message, nil)
	}
}
