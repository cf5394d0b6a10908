package provider

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
)

const defaultTimeout = 30 * time.Second

// ClientConfig carries the settings required to talk to the fulfillment provider.
type ClientConfig struct {
	BaseURL  string
	Email    string
	Password string
	Timeout  time.Duration

	// HTTPClient overrides the transport, primarily for tests.
	HTTPClient *http.Client

	// Clock returns the current time; defaults to time.Now.
	Clock func() time.Time

	// Logger receives structured client events; defaults to a no-op.
	Logger func(ctx context.Context, event string, fields map[string]any)
}

// Client is the REST client for the print-fulfillment provider. A single
// shared instance per process is expected; token refresh is internally
// synchronised.
type Client struct {
	baseURL    string
	email      string
	password   string
	httpClient *http.Client
	clock      func() time.Time
	logger     func(ctx context.Context, event string, fields map[string]any)
	tokens     *TokenSource
}

// NewClient validates the configuration and constructs a provider client.
func NewClient(cfg ClientConfig) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("provider: base URL is required")
	}
	if strings.TrimSpace(cfg.Email) == "" {
		return nil, errors.New("provider: email is required")
	}
	if strings.TrimSpace(cfg.Password) == "" {
		return nil, errors.New("provider: password is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	wrappedClock := func() time.Time { return clock().UTC() }

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	c := &Client{
		baseURL:    baseURL,
		email:      strings.TrimSpace(cfg.Email),
		password:   cfg.Password,
		httpClient: httpClient,
		clock:      wrappedClock,
		logger:     logger,
	}
	c.tokens = NewTokenSource(c.issueToken, wrappedClock)
	return c, nil
}

// Token returns a valid bearer token, refreshing through the token source
// when the cached one is absent or expired.
func (c *Client) Token(ctx context.Context) (string, error) {
	return c.tokens.Token(ctx)
}

// doJSON issues a JSON request against the provider API and decodes the
// response body into out when the call succeeds.
func (c *Client) doJSON(ctx context.Context, method, path string, body any, authenticated bool, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return WrapError(KindUnknown, "encode request body", err)
		}
		reader = bytes.NewReader(encoded)
	}
	return c.do(ctx, method, path, "application/json", reader, authenticated, out)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, authenticated bool, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return WrapError(KindUnknown, "build request", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	if authenticated {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return WrapError(KindUnknown, fmt.Sprintf("%s %s", method, path), err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return WrapError(KindUnknown, "read response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger(ctx, "provider.request_failed", map[string]any{
			"method": method,
			"path":   path,
			"status": resp.StatusCode,
		})
		return classifyResponse(resp.StatusCode, payload)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return WrapError(KindUnknown, "decode response body", err)
	}
	return nil
}

// errorBody covers the provider's variable error shapes: field-path keyed
// validation errors for 422 and a generic message otherwise.
type errorBody struct {
	Message string                     `json:"message"`
	Error   string                     `json:"error"`
	Errors  map[string]json.RawMessage `json:"errors"`
}

func classifyResponse(status int, payload []byte) *Error {
	var body errorBody
	_ = json.Unmarshal(payload, &body)

	message := strings.TrimSpace(body.Message)
	if message == "" {
		message = strings.TrimSpace(body.Error)
	}
	if message == "" {
		message = strings.TrimSpace(string(payload))
	}

	switch {
	case status == http.StatusUnauthorized:
		if message == "" {
			message = "provider rejected credentials"
		}
		return &Error{Kind: KindAuth, StatusCode: status, Message: message}
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return &Error{
			Kind:       KindValidation,
			StatusCode: status,
			Message:    message,
			Fields:     decodeFieldErrors(body.Errors),
		}
	case status == http.StatusNotFound:
		if message == "" {
			message = "product or variant not found"
		}
		return &Error{Kind: KindCatalog, StatusCode: status, Message: message}
	default:
		return &Error{Kind: KindUnknown, StatusCode: status, Message: message}
	}
}

// decodeFieldErrors keeps the provider's field paths verbatim while
// tolerating both string and array values per path.
func decodeFieldErrors(raw map[string]json.RawMessage) map[string][]string {
	if len(raw) == 0 {
		return nil
	}
	fields := make(map[string][]string, len(raw))
	for path, value := range raw {
		var list []string
		if err := json.Unmarshal(value, &list); err == nil {
			fields[path] = list
			continue
		}
		var single string
		if err := json.Unmarshal(value, &single); err == nil {
			fields[path] = []string{single}
			continue
		}
		fields[path] = []string{string(value)}
	}
	return fields
}

// ID tolerates provider identifiers arriving as JSON strings or numbers.
type ID string

// UnmarshalJSON accepts both quoted and numeric identifier encodings.
func (id *ID) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*id = ""
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}
