package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.Handler, clock func() time.Time) (*Client, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(ClientConfig{
		BaseURL:  srv.URL,
		Email:    "fulfillment@duco.test",
		Password: "secret",
		Clock:    clock,
	})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	return client, srv
}

func tokenHandler(issued *atomic.Int64, expiresAt string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		issued.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-1",
			"expires_at":   expiresAt,
		})
	}
}

func TestTokenIsCachedUntilExpiry(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	var issued atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", tokenHandler(&issued, now.Add(time.Hour).Format(time.RFC3339)))

	client, _ := newTestClient(t, mux, func() time.Time { return now })

	ctx := context.Background()
	first, err := client.Token(ctx)
	if err != nil {
		t.Fatalf("Token returned error: %v", err)
	}
	second, err := client.Token(ctx)
	if err != nil {
		t.Fatalf("Token second call returned error: %v", err)
	}
	if first != "tok-1" || second != "tok-1" {
		t.Fatalf("unexpected tokens %q %q", first, second)
	}
	if got := issued.Load(); got != 1 {
		t.Fatalf("expected a single token issue, got %d", got)
	}
}

func TestTokenRefreshesAfterExpiry(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	var issued atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", tokenHandler(&issued, now.Add(time.Minute).Format(time.RFC3339)))

	client, _ := newTestClient(t, mux, func() time.Time { return now })

	ctx := context.Background()
	if _, err := client.Token(ctx); err != nil {
		t.Fatalf("Token returned error: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := client.Token(ctx); err != nil {
		t.Fatalf("Token after expiry returned error: %v", err)
	}
	if got := issued.Load(); got != 2 {
		t.Fatalf("expected token reissue after expiry, got %d issues", got)
	}
}

func TestTokenConcurrentCallsIssueOnce(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	var issued atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", tokenHandler(&issued, now.Add(time.Hour).Format(time.RFC3339)))

	client, _ := newTestClient(t, mux, func() time.Time { return now })

	ctx := context.Background()
	const callers = 16

	var wg sync.WaitGroup
	errs := make(chan error, callers)
	tokens := make(chan string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := client.Token(ctx)
			if err != nil {
				errs <- err
				return
			}
			tokens <- token
		}()
	}
	wg.Wait()
	close(errs)
	close(tokens)

	for err := range errs {
		t.Fatalf("Token returned error: %v", err)
	}
	for token := range tokens {
		if token != "tok-1" {
			t.Fatalf("unexpected token %q", token)
		}
	}
	if got := issued.Load(); got != 1 {
		t.Fatalf("expected a single token issue under concurrency, got %d", got)
	}
}

func TestTokenMissingAccessTokenIsAuthError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"expires_at":"2026-03-02T11:00:00Z"}`))
	})

	client, _ := newTestClient(t, mux, nil)

	_, err := client.Token(context.Background())
	if err == nil {
		t.Fatal("expected error for missing access token")
	}
	if !IsAuth(err) {
		t.Fatalf("expected auth classification, got %v", err)
	}
}

func TestUploadDesignURLUsesJSONEndpoint(t *testing.T) {
	var issued atomic.Int64
	var gotBody map[string]string

	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", tokenHandler(&issued, time.Now().Add(time.Hour).Format(time.RFC3339)))
	mux.HandleFunc("POST /designs/url", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			t.Errorf("missing bearer token on upload request")
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"design":{"id":9041}}`))
	})

	client, _ := newTestClient(t, mux, nil)

	id, err := client.UploadDesign(context.Background(), "https://cdn.duco.test/art.png", "front")
	if err != nil {
		t.Fatalf("UploadDesign returned error: %v", err)
	}
	if id != "9041" {
		t.Fatalf("expected numeric id coerced to string, got %q", id)
	}
	if gotBody["url"] != "https://cdn.duco.test/art.png" || gotBody["name"] != "front" {
		t.Fatalf("unexpected upload body %#v", gotBody)
	}
}

func TestUploadDesignInlineUsesMultipart(t *testing.T) {
	var issued atomic.Int64
	payload := base64.StdEncoding.EncodeToString([]byte("fake-png-bytes"))

	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", tokenHandler(&issued, time.Now().Add(time.Hour).Format(time.RFC3339)))
	mux.HandleFunc("POST /designs", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("expected multipart body: %v", err)
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file part: %v", err)
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		defer file.Close()
		if header.Filename != "front.jpg" {
			t.Errorf("expected inferred jpg filename, got %q", header.Filename)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"design":{"id":"A1"}}`))
	})

	client, _ := newTestClient(t, mux, nil)

	data := "data:image/jpeg;base64," + payload
	id, err := client.UploadDesign(context.Background(), data, "front")
	if err != nil {
		t.Fatalf("UploadDesign returned error: %v", err)
	}
	if id != "A1" {
		t.Fatalf("expected asset id A1, got %q", id)
	}
}

func TestUploadDesignRejectsMalformedInlinePayload(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", tokenHandler(new(atomic.Int64), time.Now().Add(time.Hour).Format(time.RFC3339)))

	client, _ := newTestClient(t, mux, nil)

	_, err := client.UploadDesign(context.Background(), "%%not-base64%%", "front")
	if err == nil {
		t.Fatal("expected decode error")
	}
	if !IsUpload(err) {
		t.Fatalf("expected upload classification, got %v", err)
	}
}

func TestCreateOrderClassifiesValidationErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", tokenHandler(new(atomic.Int64), time.Now().Add(time.Hour).Format(time.RFC3339)))
	mux.HandleFunc("POST /orders", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"invalid order","errors":{"order_products.0.design":["design is invalid"]}}`))
	})

	client, _ := newTestClient(t, mux, nil)

	_, err := client.CreateOrder(context.Background(), OrderPayload{ReferenceNumber: "100045"})
	if err == nil {
		t.Fatal("expected validation error")
	}

	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if pe.Kind != KindValidation {
		t.Fatalf("expected validation kind, got %s", pe.Kind)
	}
	msgs, ok := pe.Fields["order_products.0.design"]
	if !ok {
		t.Fatalf("expected verbatim field path, got fields %#v", pe.Fields)
	}
	if len(msgs) != 1 || msgs[0] != "design is invalid" {
		t.Fatalf("unexpected field messages %#v", msgs)
	}
}

func TestCreateOrderClassifiesByStatus(t *testing.T) {
	cases := []struct {
		name   string
		status int
		kind   Kind
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, kind: KindAuth},
		{name: "not found", status: http.StatusNotFound, kind: KindCatalog},
		{name: "server error", status: http.StatusInternalServerError, kind: KindUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("POST /token", tokenHandler(new(atomic.Int64), time.Now().Add(time.Hour).Format(time.RFC3339)))
			mux.HandleFunc("POST /orders", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"message":"boom"}`))
			})

			client, _ := newTestClient(t, mux, nil)

			_, err := client.CreateOrder(context.Background(), OrderPayload{ReferenceNumber: "1"})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := KindOf(err); got != tc.kind {
				t.Fatalf("expected %s, got %s (%v)", tc.kind, got, err)
			}
		})
	}
}

func TestCreateOrderReturnsConfirmation(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", tokenHandler(new(atomic.Int64), time.Now().Add(time.Hour).Format(time.RFC3339)))
	mux.HandleFunc("POST /orders", func(w http.ResponseWriter, r *http.Request) {
		var payload OrderPayload
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if payload.COD {
			t.Errorf("cod must always be false")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"order":{"id":77812,"status":"received"}}`))
	})

	client, _ := newTestClient(t, mux, nil)

	conf, err := client.CreateOrder(context.Background(), OrderPayload{ReferenceNumber: "100045"})
	if err != nil {
		t.Fatalf("CreateOrder returned error: %v", err)
	}
	if conf.ID != "77812" || conf.Status != "received" {
		t.Fatalf("unexpected confirmation %#v", conf)
	}
}

func TestGetProductDecodesVariants(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", tokenHandler(new(atomic.Int64), time.Now().Add(time.Hour).Format(time.RFC3339)))
	mux.HandleFunc("GET /products/12", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"product":{"id":12,"name":"Unisex T-Shirt","variants":[{"id":"V1","sku":"TS-BLK-M","price":249.5,"is_available":true,"color":"black","size":"M"}]}}`))
	})

	client, _ := newTestClient(t, mux, nil)

	product, err := client.GetProduct(context.Background(), "12")
	if err != nil {
		t.Fatalf("GetProduct returned error: %v", err)
	}
	if product.ID != "12" || len(product.Variants) != 1 {
		t.Fatalf("unexpected product %#v", product)
	}
	variant := product.Variants[0]
	if variant.ID != "V1" || !variant.IsAvailable || variant.Size != "M" {
		t.Fatalf("unexpected variant %#v", variant)
	}
}
