package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/duco-commerce/fulfillment/internal/platform/requestctx"
)

func TestTraceMiddlewarePropagatesCloudTraceHeader(t *testing.T) {
	var info requestctx.TraceInfo
	var found bool

	handler := TraceMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, found = requestctx.Trace(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/orders:submit", nil)
	req.Header.Set("X-Cloud-Trace-Context", "105445aa7843bc8bf206b12000100000/1;o=1")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if !found {
		t.Fatal("expected trace metadata on the request context")
	}
	if info.TraceID != "105445aa7843bc8bf206b12000100000" {
		t.Fatalf("unexpected trace id %q", info.TraceID)
	}
	if info.SpanID == "" {
		t.Fatal("expected a span id")
	}
	if !info.Sampled {
		t.Fatal("o=1 must mark the request sampled")
	}

	echoed := rec.Header().Get("X-Cloud-Trace-Context")
	want := info.TraceID + "/" + info.SpanID + ";o=1"
	if echoed != want {
		t.Fatalf("expected header %q, got %q", want, echoed)
	}
}

func TestParseCloudTraceContextRejectsMalformedHeaders(t *testing.T) {
	cases := []string{
		"",
		"not-a-trace",
		"105445aa7843bc8bf206b12000100000",
		"tooshort/1;o=1",
		"105445aa7843bc8bf206b12000100000/;o=1",
	}
	for _, header := range cases {
		if _, _, ok := parseCloudTraceContext(header); ok {
			t.Fatalf("expected header %q to be rejected", header)
		}
	}
}

func TestParseSpanIDAcceptsDecimalEncoding(t *testing.T) {
	spanID, ok := parseSpanID("123456789")
	if !ok {
		t.Fatal("expected decimal span id to parse")
	}
	if got := spanID.String(); got != "00000000075bcd15" {
		t.Fatalf("unexpected span id %q", got)
	}
}
