package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var fixedNow = time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)

func newSubmitRequest(body, key string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/orders:submit", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	return req
}

func TestMiddlewareMissingKeyPassesThrough(t *testing.T) {
	store := NewMemoryStore()
	handler := Middleware(store, WithClock(func() time.Time { return fixedNow }))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newSubmitRequest(`{"id":"order-1"}`, ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected passthrough without a key, got %d", rr.Code)
	}
	if rr.Header().Get("X-Idempotent-Replay") != "" {
		t.Fatal("passthrough must not mark a replay")
	}
}

func TestMiddlewareReplaysStoredResponse(t *testing.T) {
	store := NewMemoryStore()
	var calls int
	handler := Middleware(store, WithClock(func() time.Time { return fixedNow }))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"ok":true,"provider_order_id":"77812"}`))
		}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, newSubmitRequest(`{"id":"order-1"}`, "retry-1"))
	if first.Code != http.StatusOK {
		t.Fatalf("unexpected first response status %d", first.Code)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, newSubmitRequest(`{"id":"order-1"}`, "retry-1"))

	if calls != 1 {
		t.Fatalf("expected a single handler invocation, got %d", calls)
	}
	if second.Code != http.StatusOK {
		t.Fatalf("expected replayed status 200, got %d", second.Code)
	}
	if second.Header().Get("X-Idempotent-Replay") != "true" {
		t.Fatal("expected replay marker header")
	}
	if second.Body.String() != first.Body.String() {
		t.Fatalf("expected identical bodies, got %q and %q", first.Body.String(), second.Body.String())
	}
}

func TestMiddlewareRejectsReusedKeyWithDifferentBody(t *testing.T) {
	store := NewMemoryStore()
	handler := Middleware(store, WithClock(func() time.Time { return fixedNow }))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, newSubmitRequest(`{"id":"order-1"}`, "shared-key"))
	if first.Code != http.StatusOK {
		t.Fatalf("expected first request success, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, newSubmitRequest(`{"id":"order-2"}`, "shared-key"))

	if second.Code != http.StatusConflict {
		t.Fatalf("expected conflict for reused key, got %d", second.Code)
	}
	assertErrorCode(t, second.Body.Bytes(), "idempotency_key_conflict")
}

func TestMiddlewareInFlightKeyReturnsConflict(t *testing.T) {
	store := NewMemoryStore()
	handler := Middleware(store, WithClock(func() time.Time { return fixedNow }))(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Fatal("handler must not run while the key is held")
		}))

	req := newSubmitRequest(`{"id":"order-1"}`, "held-key")
	body, err := bufferBody(req)
	if err != nil {
		t.Fatalf("bufferBody returned error: %v", err)
	}
	fingerprint := requestFingerprint(req, body)
	if _, err := store.Reserve(req.Context(), "held-key", fingerprint, fixedNow, time.Hour); err != nil {
		t.Fatalf("failed to seed reservation: %v", err)
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 for in-flight key, got %d", rr.Code)
	}
	assertErrorCode(t, rr.Body.Bytes(), "idempotency_in_progress")
}

func TestMiddlewareExpiredRecordAllowsReuse(t *testing.T) {
	store := NewMemoryStore()
	now := fixedNow
	var calls int
	handler := Middleware(store,
		WithClock(func() time.Time { return now }),
		WithTTL(time.Minute),
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, newSubmitRequest(`{"id":"order-1"}`, "ttl-key"))

	now = now.Add(2 * time.Minute)
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, newSubmitRequest(`{"id":"order-1"}`, "ttl-key"))

	if calls != 2 {
		t.Fatalf("expected the key to be free after expiry, got %d calls", calls)
	}
	if second.Header().Get("X-Idempotent-Replay") != "" {
		t.Fatal("expired record must not replay")
	}
}

func TestMiddlewareSaveFailureReleasesKey(t *testing.T) {
	store := &failingStore{}
	handler := Middleware(store, WithClock(func() time.Time { return fixedNow }))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newSubmitRequest(`{"id":"order-1"}`, "fail-key"))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on persistence failure, got %d", rr.Code)
	}
	assertErrorCode(t, rr.Body.Bytes(), "idempotency_store_error")
	if !store.released {
		t.Fatal("expected reservation release after save failure")
	}
}

type failingStore struct {
	released bool
}

func (s *failingStore) Reserve(context.Context, string, string, time.Time, time.Duration) (Reservation, error) {
	return Reservation{State: StateNew}, nil
}

func (s *failingStore) SaveResponse(context.Context, string, string, Response, time.Time, time.Duration) error {
	return errors.New("save failed")
}

func (s *failingStore) Release(context.Context, string, string) error {
	s.released = true
	return nil
}

func assertErrorCode(t *testing.T, payload []byte, expected string) {
	t.Helper()

	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		t.Fatalf("failed to decode error payload: %v", err)
	}
	if body.Error != expected {
		t.Fatalf("expected error code %s, got %s", expected, body.Error)
	}
}
