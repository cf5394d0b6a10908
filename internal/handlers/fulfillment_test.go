package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	domain "github.com/duco-commerce/fulfillment/internal/domain"
)

type stubFulfillmentService struct {
	submitFn func(ctx context.Context, order domain.Order) (domain.SubmissionResult, error)
	last     domain.Order
	calls    int
}

func (s *stubFulfillmentService) SubmitOrder(ctx context.Context, order domain.Order) (domain.SubmissionResult, error) {
	s.calls++
	s.last = order
	if s.submitFn == nil {
		return domain.SubmissionResult{OK: true, ProviderOrderID: "prv-900"}, nil
	}
	return s.submitFn(ctx, order)
}

func newFulfillmentRouter(svc *stubFulfillmentService) http.Handler {
	return NewRouter(WithFulfillmentRoutes(NewFulfillmentHandlers(svc).Routes))
}

func TestSubmitOrderEndpointSuccess(t *testing.T) {
	svc := &stubFulfillmentService{
		submitFn: func(ctx context.Context, order domain.Order) (domain.SubmissionResult, error) {
			return domain.SubmissionResult{
				OK:              true,
				ProviderOrderID: "prv-900",
				ReferenceNumber: "pay100045",
				SubmittedAt:     time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
				PerItemDiagnostics: []domain.LineItemDiagnostic{
					{InternalProductID: "classic-tee", ResolutionPath: domain.ResolutionMappedVariant, ProviderVariantID: "V1"},
				},
			}, nil
		},
	}
	router := newFulfillmentRouter(svc)

	body := `{
		"id": "order-1",
		"reference_hint": "pay_100045",
		"declared_retail_total": 500,
		"customer": {"name": "Asha", "city": "Pune", "country": "IN"},
		"line_items": [
			{"internal_product_id": "classic-tee", "color": "black", "size_quantities": {"M": 2}}
		]
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/fulfillment/orders:submit", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp["ok"] != true || resp["provider_order_id"] != "prv-900" {
		t.Fatalf("unexpected response %#v", resp)
	}

	if svc.calls != 1 {
		t.Fatalf("expected a single submission, got %d", svc.calls)
	}
	if svc.last.ID != "order-1" || len(svc.last.LineItems) != 1 {
		t.Fatalf("unexpected order %#v", svc.last)
	}
	if svc.last.LineItems[0].SizeQuantities["M"] != 2 {
		t.Fatalf("size quantities not decoded: %#v", svc.last.LineItems[0])
	}
}

func TestSubmitOrderEndpointFailedSubmission(t *testing.T) {
	svc := &stubFulfillmentService{
		submitFn: func(ctx context.Context, order domain.Order) (domain.SubmissionResult, error) {
			return domain.SubmissionResult{
				OK:        false,
				ErrorKind: "ValidationError",
				Message:   "invalid order [order_products.0.design]",
			}, nil
		},
	}
	router := newFulfillmentRouter(svc)

	body := `{"id":"order-1","line_items":[{"internal_product_id":"classic-tee","size_quantities":{"M":1}}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/fulfillment/orders:submit", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp["ok"] != false || resp["error_kind"] != "ValidationError" {
		t.Fatalf("unexpected response %#v", resp)
	}
	if !strings.Contains(resp["message"].(string), "order_products.0.design") {
		t.Fatalf("field path must survive to the caller, got %v", resp["message"])
	}
}

func TestSubmitOrderEndpointRejectsInvalidBody(t *testing.T) {
	svc := &stubFulfillmentService{}
	router := newFulfillmentRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/fulfillment/orders:submit", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if svc.calls != 0 {
		t.Fatal("service must not be called for invalid bodies")
	}
}

func TestSubmitOrderEndpointRequiresLineItems(t *testing.T) {
	svc := &stubFulfillmentService{}
	router := newFulfillmentRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/fulfillment/orders:submit", strings.NewReader(`{"id":"order-1"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestRouterHealthz(t *testing.T) {
	router := NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Fatalf("unexpected health payload %#v", resp)
	}
}

func TestRouterNotFoundEnvelope(t *testing.T) {
	router := NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if _, ok := resp["error"]; !ok {
		t.Fatalf("expected error envelope, got %#v", resp)
	}
}
