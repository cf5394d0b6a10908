package services

import (
	"context"
	"errors"
	"math"
	"strings"

	domain "github.com/duco-commerce/fulfillment/internal/domain"
)

// ErrEstimatorUnavailable indicates the estimator was constructed without its dependencies.
var ErrEstimatorUnavailable = errors.New("cost estimator: unavailable")

// CostEstimatorDeps wires the collaborators required by the estimator.
type CostEstimatorDeps struct {
	Catalog  CatalogClient
	Settings MerchantSettings
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type costEstimator struct {
	catalog  CatalogClient
	settings MerchantSettings
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewCostEstimator constructs a CostEstimator validating required dependencies.
func NewCostEstimator(deps CostEstimatorDeps) (CostEstimator, error) {
	if deps.Catalog == nil {
		return nil, errors.New("cost estimator: catalog client is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &costEstimator{
		catalog:  deps.Catalog,
		settings: deps.Settings,
		logger:   logger,
	}, nil
}

// Estimate prices every resolved item with a known variant id. Items whose
// price cannot be fetched fall back to the configured unit cost and are
// flagged, never aborting the estimate.
func (e *costEstimator) Estimate(ctx context.Context, items []domain.ResolvedLineItem) (domain.CostEstimate, error) {
	if e == nil || e.catalog == nil {
		return domain.CostEstimate{}, ErrEstimatorUnavailable
	}

	estimate := domain.CostEstimate{}
	priceCache := make(map[string]map[string]int64)

	for _, item := range items {
		variantID := strings.TrimSpace(item.ProviderVariantID)
		if variantID == "" {
			continue
		}

		unitCost, ok := e.unitCost(ctx, priceCache, item.ProviderProductID, variantID)
		fallback := false
		if !ok {
			unitCost = e.settings.FallbackUnitCost
			fallback = true
			e.logger(ctx, "estimator.fallback_pricing", map[string]any{
				"internal_product_id": item.InternalProductID,
				"variant_id":          variantID,
			})
		}

		lineCost := unitCost * int64(item.TotalQuantity)
		estimate.PerItem = append(estimate.PerItem, domain.ItemEstimate{
			InternalProductID: item.InternalProductID,
			ProviderVariantID: variantID,
			UnitCost:          unitCost,
			Quantity:          item.TotalQuantity,
			LineCost:          lineCost,
			IsFallbackPricing: fallback,
		})
		estimate.TotalCost += lineCost
	}

	return estimate, nil
}

// unitCost fetches the product detail once per product and looks up the
// variant price.
func (e *costEstimator) unitCost(ctx context.Context, cache map[string]map[string]int64, productID, variantID string) (int64, bool) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return 0, false
	}

	prices, ok := cache[productID]
	if !ok {
		detail, err := e.catalog.GetProduct(ctx, productID)
		if err != nil {
			cache[productID] = map[string]int64{}
			return 0, false
		}
		prices = make(map[string]int64, len(detail.Variants))
		for _, v := range detail.Variants {
			prices[string(v.ID)] = int64(math.Round(v.Price))
		}
		cache[productID] = prices
	}

	price, ok := prices[variantID]
	if !ok || price <= 0 {
		return 0, false
	}
	return price, true
}

// Validate compares the declared retail total against the provider cost.
// The result is advisory and never blocks submission.
func (e *costEstimator) Validate(declaredRetail, providerCost int64, tolerancePercent float64) domain.PriceValidation {
	if tolerancePercent <= 0 {
		tolerancePercent = e.settings.PriceTolerancePercent
	}

	validation := domain.PriceValidation{
		DeclaredRetail: declaredRetail,
		ProviderCost:   providerCost,
	}

	if providerCost <= 0 {
		validation.IsValid = declaredRetail <= 0
		if !validation.IsValid {
			validation.PercentageDiff = 100
		}
		return validation
	}

	diff := math.Abs(float64(declaredRetail-providerCost)) / float64(providerCost) * 100
	validation.PercentageDiff = diff
	validation.IsValid = diff <= tolerancePercent
	return validation
}
