package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/duco-commerce/fulfillment/internal/domain"
	"github.com/duco-commerce/fulfillment/internal/platform/httpx"
	"github.com/duco-commerce/fulfillment/internal/services"
)

const maxSubmitBodySize = 4 << 20

// FulfillmentHandlers exposes the order submission endpoint.
type FulfillmentHandlers struct {
	fulfillment services.FulfillmentService
}

// NewFulfillmentHandlers constructs a new FulfillmentHandlers instance.
func NewFulfillmentHandlers(fulfillment services.FulfillmentService) *FulfillmentHandlers {
	return &FulfillmentHandlers{fulfillment: fulfillment}
}

// Routes registers the /fulfillment endpoints.
func (h *FulfillmentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/orders:submit", h.submitOrder)
}

type submitOrderRequest struct {
	ID                  string            `json:"id"`
	ReferenceHint       string            `json:"reference_hint"`
	DeclaredRetailTotal int64             `json:"declared_retail_total"`
	Customer            customerRequest   `json:"customer"`
	LineItems           []lineItemRequest `json:"line_items"`
}

type customerRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
	Pincode string `json:"pincode"`
}

type lineItemRequest struct {
	InternalProductID string         `json:"internal_product_id"`
	Name              string         `json:"name"`
	Color             string         `json:"color"`
	SizeQuantities    map[string]int `json:"size_quantities"`
	UnitPrice         int64          `json:"unit_price"`
	Design            *designRequest `json:"design"`
}

type designRequest struct {
	Front *designSideRequest `json:"front"`
	Back  *designSideRequest `json:"back"`
}

type designSideRequest struct {
	ImageData string             `json:"image_data"`
	Text      *designTextRequest `json:"text"`
}

type designTextRequest struct {
	Content  string `json:"content"`
	Size     string `json:"size"`
	Color    string `json:"color"`
	Font     string `json:"font"`
	Position string `json:"position"`
}

type submitOrderResponse struct {
	OK                 bool                 `json:"ok"`
	AttemptID          string               `json:"attempt_id,omitempty"`
	ProviderOrderID    string               `json:"provider_order_id,omitempty"`
	ReferenceNumber    string               `json:"reference_number,omitempty"`
	ErrorKind          string               `json:"error_kind,omitempty"`
	Message            string               `json:"message,omitempty"`
	PriceValidation    *priceValidationBody `json:"price_validation,omitempty"`
	PerItemDiagnostics []diagnosticBody     `json:"per_item_diagnostics,omitempty"`
	SubmittedAt        string               `json:"submitted_at,omitempty"`
}

type priceValidationBody struct {
	IsValid        bool    `json:"is_valid"`
	PercentageDiff float64 `json:"percentage_diff"`
	DeclaredRetail int64   `json:"declared_retail"`
	ProviderCost   int64   `json:"provider_cost"`
}

type diagnosticBody struct {
	InternalProductID string `json:"internal_product_id"`
	ResolutionPath    string `json:"resolution_path"`
	ProviderVariantID string `json:"provider_variant_id,omitempty"`
	DesignUploaded    bool   `json:"design_uploaded,omitempty"`
	FallbackPricing   bool   `json:"fallback_pricing,omitempty"`
	Notes             string `json:"notes,omitempty"`
}

func (h *FulfillmentHandlers) submitOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.fulfillment == nil {
		httpx.WriteError(ctx, w, httpx.NewError("fulfillment_unavailable", "fulfillment service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req submitOrderRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmitBodySize))
	if err := decoder.Decode(&req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	order, err := req.toDomain()
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	result, err := h.fulfillment.SubmitOrder(ctx, order)
	if err != nil {
		if errors.Is(err, services.ErrFulfillmentInvalidInput) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order is missing required data", http.StatusBadRequest))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("fulfillment_failed", "order submission failed", http.StatusBadGateway))
		return
	}

	status := http.StatusOK
	if !result.OK {
		// The outcome is structured even on failure; the status still tells
		// callers the provider order was not created.
		status = http.StatusUnprocessableEntity
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(toResponse(result))
}

func (r submitOrderRequest) toDomain() (domain.Order, error) {
	if strings.TrimSpace(r.ID) == "" {
		return domain.Order{}, errors.New("order id is required")
	}
	if len(r.LineItems) == 0 {
		return domain.Order{}, errors.New("at least one line item is required")
	}

	order := domain.Order{
		ID:                  strings.TrimSpace(r.ID),
		ReferenceHint:       strings.TrimSpace(r.ReferenceHint),
		DeclaredRetailTotal: r.DeclaredRetailTotal,
		Customer: domain.Customer{
			Name:    r.Customer.Name,
			Email:   r.Customer.Email,
			Phone:   r.Customer.Phone,
			Address: r.Customer.Address,
			City:    r.Customer.City,
			State:   r.Customer.State,
			Country: r.Customer.Country,
			Pincode: r.Customer.Pincode,
		},
		CreatedAt: time.Now().UTC(),
	}

	for _, item := range r.LineItems {
		if strings.TrimSpace(item.InternalProductID) == "" {
			return domain.Order{}, errors.New("line item internal_product_id is required")
		}
		lineItem := domain.OrderLineItem{
			InternalProductID: strings.TrimSpace(item.InternalProductID),
			Name:              item.Name,
			Color:             item.Color,
			SizeQuantities:    item.SizeQuantities,
			UnitPrice:         item.UnitPrice,
		}
		if item.Design != nil {
			lineItem.Design = &domain.DesignSpec{
				Front: item.Design.Front.toDomain(),
				Back:  item.Design.Back.toDomain(),
			}
		}
		order.LineItems = append(order.LineItems, lineItem)
	}
	return order, nil
}

func (s *designSideRequest) toDomain() *domain.DesignSideSpec {
	if s == nil {
		return nil
	}
	side := &domain.DesignSideSpec{ImageData: s.ImageData}
	if s.Text != nil {
		side.Text = &domain.DesignText{
			Content:  s.Text.Content,
			Size:     s.Text.Size,
			Color:    s.Text.Color,
			Font:     s.Text.Font,
			Position: s.Text.Position,
		}
	}
	return side
}

func toResponse(result domain.SubmissionResult) submitOrderResponse {
	resp := submitOrderResponse{
		OK:              result.OK,
		AttemptID:       result.AttemptID,
		ProviderOrderID: result.ProviderOrderID,
		ReferenceNumber: result.ReferenceNumber,
		ErrorKind:       result.ErrorKind,
		Message:         result.Message,
	}
	if !result.SubmittedAt.IsZero() {
		resp.SubmittedAt = result.SubmittedAt.Format(time.RFC3339)
	}
	if result.PriceValidation != nil {
		resp.PriceValidation = &priceValidationBody{
			IsValid:        result.PriceValidation.IsValid,
			PercentageDiff: result.PriceValidation.PercentageDiff,
			DeclaredRetail: result.PriceValidation.DeclaredRetail,
			ProviderCost:   result.PriceValidation.ProviderCost,
		}
	}
	for _, d := range result.PerItemDiagnostics {
		resp.PerItemDiagnostics = append(resp.PerItemDiagnostics, diagnosticBody{
			InternalProductID: d.InternalProductID,
			ResolutionPath:    string(d.ResolutionPath),
			ProviderVariantID: d.ProviderVariantID,
			DesignUploaded:    d.DesignUploaded,
			FallbackPricing:   d.FallbackPricing,
			Notes:             d.Notes,
		})
	}
	return resp
}
