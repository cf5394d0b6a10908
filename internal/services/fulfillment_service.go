package services

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/duco-commerce/fulfillment/internal/domain"
	"github.com/duco-commerce/fulfillment/internal/provider"
)

var (
	// ErrFulfillmentInvalidInput indicates the order is missing required data.
	ErrFulfillmentInvalidInput = errors.New("fulfillment: invalid input")
	// ErrFulfillmentUnavailable indicates the service was constructed without its dependencies.
	ErrFulfillmentUnavailable = errors.New("fulfillment: unavailable")
)

// errorKindExhausted labels the assembler's fatal rejection when no line
// item carries a usable identifier.
const errorKindExhausted = "CatalogResolutionExhausted"

// FulfillmentServiceDeps wires the pipeline stages behind the service boundary.
type FulfillmentServiceDeps struct {
	Tokens    TokenIssuer
	Resolver  CatalogResolver
	Estimator CostEstimator
	Assembler PayloadAssembler
	Submitter OrderSubmitter
	Events    SubmissionEventPublisher
	Settings  MerchantSettings
	Clock     func() time.Time
	IDGen     func() string
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type fulfillmentService struct {
	tokens    TokenIssuer
	resolver  CatalogResolver
	estimator CostEstimator
	assembler PayloadAssembler
	submitter OrderSubmitter
	events    SubmissionEventPublisher
	settings  MerchantSettings
	now       func() time.Time
	idGen     func() string
	logger    func(ctx context.Context, event string, fields map[string]any)
}

// NewFulfillmentService constructs a FulfillmentService validating required dependencies.
func NewFulfillmentService(deps FulfillmentServiceDeps) (FulfillmentService, error) {
	if deps.Tokens == nil {
		return nil, errors.New("fulfillment service: token issuer is required")
	}
	if deps.Resolver == nil {
		return nil, errors.New("fulfillment service: catalog resolver is required")
	}
	if deps.Estimator == nil {
		return nil, errors.New("fulfillment service: cost estimator is required")
	}
	if deps.Assembler == nil {
		return nil, errors.New("fulfillment service: payload assembler is required")
	}
	if deps.Submitter == nil {
		return nil, errors.New("fulfillment service: order submitter is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGen
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &fulfillmentService{
		tokens:    deps.Tokens,
		resolver:  deps.Resolver,
		estimator: deps.Estimator,
		assembler: deps.Assembler,
		submitter: deps.Submitter,
		events:    deps.Events,
		settings:  deps.Settings,
		now: func() time.Time {
			return clock().UTC()
		},
		idGen:  idGen,
		logger: logger,
	}, nil
}

// SubmitOrder runs the pipeline end to end: token, per-item resolution,
// advisory cost validation, payload assembly, and submission. Per-item
// failures degrade through the resolver's fallback chain; only auth
// failures, total resolution exhaustion, and provider-side rejection of the
// whole payload surface as a failed submission.
func (s *fulfillmentService) SubmitOrder(ctx context.Context, order domain.Order) (domain.SubmissionResult, error) {
	if s == nil || s.tokens == nil || s.resolver == nil || s.submitter == nil {
		return domain.SubmissionResult{}, ErrFulfillmentUnavailable
	}
	if len(order.LineItems) == 0 {
		return domain.SubmissionResult{}, ErrFulfillmentInvalidInput
	}
	for _, item := range order.LineItems {
		if item.TotalQuantity() <= 0 {
			return domain.SubmissionResult{}, ErrFulfillmentInvalidInput
		}
	}

	attemptID := s.idGen()

	// Every later stage needs a token; fail fast before any other call.
	if _, err := s.tokens.Token(ctx); err != nil {
		return s.failure(ctx, order, attemptID, "", provider.KindAuth, err.Error(), nil, nil), nil
	}

	resolved := make([]domain.ResolvedLineItem, 0, len(order.LineItems))
	for _, item := range order.LineItems {
		r, err := s.resolver.Resolve(ctx, item)
		if err != nil {
			if provider.IsAuth(err) {
				return s.failure(ctx, order, attemptID, "", provider.KindAuth, err.Error(), nil, nil), nil
			}
			return domain.SubmissionResult{}, err
		}
		resolved = append(resolved, r)
	}

	var validation *domain.PriceValidation
	estimate, err := s.estimator.Estimate(ctx, resolved)
	if err != nil {
		s.logger(ctx, "fulfillment.estimate_failed", map[string]any{
			"order_id": order.ID,
			"error":    err.Error(),
		})
	} else {
		v := s.estimator.Validate(order.DeclaredRetailTotal, estimate.TotalCost, s.settings.PriceTolerancePercent)
		validation = &v
		if !v.IsValid {
			s.logger(ctx, "fulfillment.price_mismatch", map[string]any{
				"order_id":        order.ID,
				"declared_retail": v.DeclaredRetail,
				"provider_cost":   v.ProviderCost,
				"percentage_diff": v.PercentageDiff,
			})
		}
	}

	diagnostics := buildDiagnostics(resolved, estimate)

	payload, err := s.assembler.Assemble(order, resolved)
	if err != nil {
		if errors.Is(err, ErrNoSubmittableItems) {
			result := s.failure(ctx, order, attemptID, "", provider.Kind(errorKindExhausted), err.Error(), validation, diagnostics)
			return result, nil
		}
		return domain.SubmissionResult{}, err
	}

	confirmation, err := s.submitter.CreateOrder(ctx, payload)
	if err != nil {
		return s.failure(ctx, order, attemptID, payload.ReferenceNumber, provider.KindOf(err), err.Error(), validation, diagnostics), nil
	}

	result := domain.SubmissionResult{
		OK:                 true,
		AttemptID:          attemptID,
		ProviderOrderID:    confirmation.ID,
		ReferenceNumber:    payload.ReferenceNumber,
		PriceValidation:    validation,
		PerItemDiagnostics: diagnostics,
		SubmittedAt:        s.now(),
	}

	s.logger(ctx, "fulfillment.submitted", map[string]any{
		"order_id":          order.ID,
		"attempt_id":        attemptID,
		"provider_order_id": confirmation.ID,
		"reference_number":  payload.ReferenceNumber,
	})
	s.publishEvent(ctx, order, result)
	return result, nil
}

func (s *fulfillmentService) failure(ctx context.Context, order domain.Order, attemptID, referenceNumber string, kind provider.Kind, message string, validation *domain.PriceValidation, diagnostics []domain.LineItemDiagnostic) domain.SubmissionResult {
	result := domain.SubmissionResult{
		OK:                 false,
		AttemptID:          attemptID,
		ReferenceNumber:    referenceNumber,
		ErrorKind:          string(kind),
		Message:            message,
		PriceValidation:    validation,
		PerItemDiagnostics: diagnostics,
		SubmittedAt:        s.now(),
	}

	s.logger(ctx, "fulfillment.submission_failed", map[string]any{
		"order_id":   order.ID,
		"attempt_id": attemptID,
		"error_kind": result.ErrorKind,
		"message":    message,
	})
	s.publishEvent(ctx, order, result)
	return result
}

// publishEvent is best effort; a broken event stream must not change the
// submission outcome.
func (s *fulfillmentService) publishEvent(ctx context.Context, order domain.Order, result domain.SubmissionResult) {
	if s.events == nil {
		return
	}

	status := "failed"
	if result.OK {
		status = "submitted"
	}

	message := SubmissionEventMessage{
		OrderID:         order.ID,
		AttemptID:       result.AttemptID,
		ReferenceNumber: result.ReferenceNumber,
		ProviderOrderID: result.ProviderOrderID,
		Status:          status,
		ErrorKind:       result.ErrorKind,
		Message:         result.Message,
		SubmittedAt:     result.SubmittedAt,
	}
	for _, d := range result.PerItemDiagnostics {
		message.Diagnostics = append(message.Diagnostics, DiagnosticMessage{
			ProductID:       d.InternalProductID,
			Path:            string(d.ResolutionPath),
			VariantID:       d.ProviderVariantID,
			DesignUploaded:  d.DesignUploaded,
			FallbackPricing: d.FallbackPricing,
			Notes:           d.Notes,
		})
	}

	if _, err := s.events.PublishSubmissionEvent(ctx, message); err != nil {
		s.logger(ctx, "fulfillment.event_publish_failed", map[string]any{
			"order_id": order.ID,
			"error":    err.Error(),
		})
	}
}

// buildDiagnostics pairs each resolved item with its pricing flag so lossy
// fallbacks stay visible to operators.
func buildDiagnostics(resolved []domain.ResolvedLineItem, estimate domain.CostEstimate) []domain.LineItemDiagnostic {
	fallbackPricing := make(map[string]bool, len(estimate.PerItem))
	for _, e := range estimate.PerItem {
		if e.IsFallbackPricing {
			fallbackPricing[e.InternalProductID+"#"+e.ProviderVariantID] = true
		}
	}

	diagnostics := make([]domain.LineItemDiagnostic, 0, len(resolved))
	for _, r := range resolved {
		diagnostics = append(diagnostics, domain.LineItemDiagnostic{
			InternalProductID: r.InternalProductID,
			ResolutionPath:    r.ResolutionPath,
			ProviderVariantID: r.ProviderVariantID,
			DesignUploaded:    r.UploadedDesign != nil,
			FallbackPricing:   fallbackPricing[r.InternalProductID+"#"+r.ProviderVariantID],
		})
	}
	return diagnostics
}
