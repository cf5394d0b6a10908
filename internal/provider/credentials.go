package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// tokenSkew shaves a safety margin off the reported expiry so in-flight
// requests never carry a token that lapses mid-call.
const tokenSkew = 30 * time.Second

// defaultTokenTTL applies when the provider omits or mangles the expiry.
const defaultTokenTTL = 55 * time.Minute

type issueFunc func(ctx context.Context) (string, time.Time, error)

// TokenSource holds the process-wide bearer token and refreshes it on
// demand. Refresh is mutex-guarded so concurrent resolutions never trigger
// redundant reissues.
type TokenSource struct {
	issue issueFunc
	clock func() time.Time

	mu        sync.Mutex
	value     string
	expiresAt time.Time
}

// NewTokenSource builds a token source around the given issuer.
func NewTokenSource(issue issueFunc, clock func() time.Time) *TokenSource {
	if clock == nil {
		clock = time.Now
	}
	return &TokenSource{issue: issue, clock: clock}
}

// Token returns the cached token when still valid and otherwise issues a
// fresh one. Issuance failures are fatal for the submission; no retry is
// attempted here.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	if s.value != "" && now.Before(s.expiresAt) {
		return s.value, nil
	}

	value, expiresAt, err := s.issue(ctx)
	if err != nil {
		return "", err
	}

	s.value = value
	s.expiresAt = expiresAt.Add(-tokenSkew)
	return s.value, nil
}

// Invalidate discards the cached token so the next call reissues.
func (s *TokenSource) Invalidate() {
	s.mu.Lock()
	s.value = ""
	s.expiresAt = time.Time{}
	s.mu.Unlock()
}

type tokenResponse struct {
	AccessToken string          `json:"access_token"`
	ExpiresAt   json.RawMessage `json:"expires_at"`
}

func (c *Client) issueToken(ctx context.Context) (string, time.Time, error) {
	body := map[string]string{
		"email":    c.email,
		"password": c.password,
	}

	var resp tokenResponse
	if err := c.doJSON(ctx, http.MethodPost, "/token", body, false, &resp); err != nil {
		var pe *Error
		if errors.As(err, &pe) && pe.Kind == KindUnknown {
			pe.Kind = KindAuth
		}
		return "", time.Time{}, err
	}

	token := strings.TrimSpace(resp.AccessToken)
	if token == "" {
		return "", time.Time{}, NewError(KindAuth, 0, "token endpoint returned no access token")
	}

	expiresAt := parseExpiry(resp.ExpiresAt, c.clock())
	c.logger(ctx, "provider.token_issued", map[string]any{
		"expires_at": expiresAt.Format(time.RFC3339),
	})
	return token, expiresAt, nil
}

// parseExpiry accepts RFC 3339 timestamps and unix-second numbers; anything
// else falls back to a conservative default TTL.
func parseExpiry(raw json.RawMessage, now time.Time) time.Time {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return now.Add(defaultTokenTTL)
	}

	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if ts, err := time.Parse(time.RFC3339, s); err == nil {
				return ts.UTC()
			}
		}
		return now.Add(defaultTokenTTL)
	}

	if seconds, err := strconv.ParseInt(trimmed, 10, 64); err == nil && seconds > 0 {
		return time.Unix(seconds, 0).UTC()
	}
	return now.Add(defaultTokenTTL)
}
