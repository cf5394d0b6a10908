package services

import (
	"context"
	"time"

	domain "github.com/duco-commerce/fulfillment/internal/domain"
	"github.com/duco-commerce/fulfillment/internal/provider"
)

// TokenIssuer yields a valid provider bearer token, refreshing as needed.
type TokenIssuer interface {
	Token(ctx context.Context) (string, error)
}

// DesignUploader registers artwork with the provider and returns an asset id.
type DesignUploader interface {
	UploadDesign(ctx context.Context, imageData, name string) (string, error)
}

// CatalogClient reads the provider catalog.
type CatalogClient interface {
	ListProducts(ctx context.Context) ([]provider.Product, error)
	GetProduct(ctx context.Context, id string) (provider.Product, error)
}

// OrderSubmitter issues the provider order-create call.
type OrderSubmitter interface {
	CreateOrder(ctx context.Context, payload provider.OrderPayload) (provider.OrderConfirmation, error)
}

// CatalogResolver maps one storefront line item to a submittable provider reference.
type CatalogResolver interface {
	Resolve(ctx context.Context, item domain.OrderLineItem) (domain.ResolvedLineItem, error)
}

// CostEstimator prices resolved items against the provider catalog and
// compares declared retail totals within a tolerance band.
type CostEstimator interface {
	Estimate(ctx context.Context, items []domain.ResolvedLineItem) (domain.CostEstimate, error)
	Validate(declaredRetail, providerCost int64, tolerancePercent float64) domain.PriceValidation
}

// PayloadAssembler turns an order and its resolved items into the provider wire payload.
type PayloadAssembler interface {
	Assemble(order domain.Order, items []domain.ResolvedLineItem) (provider.OrderPayload, error)
}

// FulfillmentService is the pipeline boundary exposed to the order workflow.
type FulfillmentService interface {
	SubmitOrder(ctx context.Context, order domain.Order) (domain.SubmissionResult, error)
}

// MerchantSettings carries the account-specific catalog facts the pipeline
// must not hard-code: last-resort identifiers, pricing fallbacks, and the
// provider canvas geometry.
type MerchantSettings struct {
	EmergencyVariantID        string
	DesignOrderVariantID      string
	FallbackUnitCost          int64
	PriceTolerancePercent     float64
	AllowCrossProductFallback bool
	CanvasWidth               int
	CanvasHeight              int
	ArtworkTop                int
	ArtworkLeft               int
}

// Canvas returns the placement rectangle applied to every uploaded asset.
func (m MerchantSettings) Canvas() domain.AssetDimensions {
	return domain.AssetDimensions{
		Width:  m.CanvasWidth,
		Height: m.CanvasHeight,
		Top:    m.ArtworkTop,
		Left:   m.ArtworkLeft,
	}
}

// SubmissionEventPublisher pushes submission outcomes to the operator event stream.
type SubmissionEventPublisher interface {
	PublishSubmissionEvent(ctx context.Context, message SubmissionEventMessage) (string, error)
}

// SubmissionEventMessage is the wire form of a submission outcome event.
type SubmissionEventMessage struct {
	OrderID         string              `json:"order_id"`
	AttemptID       string              `json:"attempt_id,omitempty"`
	ReferenceNumber string              `json:"reference_number"`
	ProviderOrderID string              `json:"provider_order_id,omitempty"`
	Status          string              `json:"status"`
	ErrorKind       string              `json:"error_kind,omitempty"`
	Message         string              `json:"message,omitempty"`
	SubmittedAt     time.Time           `json:"submitted_at"`
	Diagnostics     []DiagnosticMessage `json:"diagnostics,omitempty"`
}

// DiagnosticMessage is the wire form of one line item's resolution diagnostic.
type DiagnosticMessage struct {
	ProductID       string `json:"product_id"`
	Path            string `json:"path"`
	VariantID       string `json:"variant_id,omitempty"`
	DesignUploaded  bool   `json:"design_uploaded,omitempty"`
	FallbackPricing bool   `json:"fallback_pricing,omitempty"`
	Notes           string `json:"notes,omitempty"`
}
