package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/duco-commerce/fulfillment/internal/domain"
	"github.com/duco-commerce/fulfillment/internal/provider"
)

func newTestEstimator(t *testing.T, catalog CatalogClient) CostEstimator {
	t.Helper()
	if catalog == nil {
		catalog = &stubCatalog{}
	}
	estimator, err := NewCostEstimator(CostEstimatorDeps{Catalog: catalog, Settings: testSettings()})
	if err != nil {
		t.Fatalf("NewCostEstimator returned error: %v", err)
	}
	return estimator
}

func TestEstimateSumsVariantPrices(t *testing.T) {
	catalog := &stubCatalog{
		getFn: func(ctx context.Context, id string) (provider.Product, error) {
			if id != "P9" {
				return provider.Product{}, errors.New("unexpected product " + id)
			}
			return provider.Product{
				ID: "P9",
				Variants: []provider.Variant{
					{ID: "V1", Price: 250, IsAvailable: true},
					{ID: "V2", Price: 300, IsAvailable: true},
				},
			}, nil
		},
	}

	estimator := newTestEstimator(t, catalog)

	estimate, err := estimator.Estimate(context.Background(), []domain.ResolvedLineItem{
		{InternalProductID: "tee", ProviderProductID: "P9", ProviderVariantID: "V1", TotalQuantity: 2},
		{InternalProductID: "tee-2", ProviderProductID: "P9", ProviderVariantID: "V2", TotalQuantity: 1},
	})
	if err != nil {
		t.Fatalf("Estimate returned error: %v", err)
	}

	if estimate.TotalCost != 800 {
		t.Fatalf("expected total 800, got %d", estimate.TotalCost)
	}
	if len(estimate.PerItem) != 2 {
		t.Fatalf("expected two per-item entries, got %d", len(estimate.PerItem))
	}
	if estimate.PerItem[0].LineCost != 500 || estimate.PerItem[0].IsFallbackPricing {
		t.Fatalf("unexpected first entry %#v", estimate.PerItem[0])
	}
}

func TestEstimateSubstitutesFallbackPricing(t *testing.T) {
	catalog := &stubCatalog{
		getFn: func(ctx context.Context, id string) (provider.Product, error) {
			return provider.Product{}, provider.NewError(provider.KindUnknown, 500, "boom")
		},
	}

	estimator := newTestEstimator(t, catalog)

	estimate, err := estimator.Estimate(context.Background(), []domain.ResolvedLineItem{
		{InternalProductID: "tee", ProviderProductID: "P9", ProviderVariantID: "V1", TotalQuantity: 2},
	})
	if err != nil {
		t.Fatalf("Estimate returned error: %v", err)
	}

	if len(estimate.PerItem) != 1 {
		t.Fatalf("expected one entry, got %d", len(estimate.PerItem))
	}
	entry := estimate.PerItem[0]
	if !entry.IsFallbackPricing {
		t.Fatal("expected fallback pricing flag")
	}
	if entry.UnitCost != 25000 || estimate.TotalCost != 50000 {
		t.Fatalf("expected fallback unit cost applied, got %#v", entry)
	}
}

func TestEstimateSkipsItemsWithoutVariant(t *testing.T) {
	estimator := newTestEstimator(t, nil)

	estimate, err := estimator.Estimate(context.Background(), []domain.ResolvedLineItem{
		{InternalProductID: "custom-design-42", ProviderProductID: "31", TotalQuantity: 1},
	})
	if err != nil {
		t.Fatalf("Estimate returned error: %v", err)
	}
	if len(estimate.PerItem) != 0 || estimate.TotalCost != 0 {
		t.Fatalf("design-only items must not be priced, got %#v", estimate)
	}
}

func TestValidateWithinTolerance(t *testing.T) {
	estimator := newTestEstimator(t, nil)

	validation := estimator.Validate(100, 100, 10)
	if !validation.IsValid {
		t.Fatal("identical totals must validate")
	}
	if validation.PercentageDiff != 0 {
		t.Fatalf("expected zero diff, got %f", validation.PercentageDiff)
	}
}

func TestValidateBeyondTolerance(t *testing.T) {
	estimator := newTestEstimator(t, nil)

	validation := estimator.Validate(100, 50, 10)
	if validation.IsValid {
		t.Fatal("a 100%% drift must not validate")
	}
	if validation.PercentageDiff != 100 {
		t.Fatalf("expected diff 100, got %f", validation.PercentageDiff)
	}
}
