package services

import (
	"errors"
	"testing"
	"time"

	domain "github.com/duco-commerce/fulfillment/internal/domain"
)

func newTestAssembler(t *testing.T) PayloadAssembler {
	t.Helper()
	assembler, err := NewPayloadAssembler(PayloadAssemblerDeps{
		Settings: testSettings(),
		Clock: func() time.Time {
			return time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
		},
	})
	if err != nil {
		t.Fatalf("NewPayloadAssembler returned error: %v", err)
	}
	return assembler
}

func TestAssemblePlainVariantEntry(t *testing.T) {
	assembler := newTestAssembler(t)

	order := domain.Order{
		ID:                  "order-1",
		ReferenceHint:       "pay_100045",
		DeclaredRetailTotal: 499,
	}
	payload, err := assembler.Assemble(order, []domain.ResolvedLineItem{
		{
			InternalProductID: "classic-tee",
			ProviderProductID: "P9",
			ProviderVariantID: "V1",
			IsPlain:           true,
			TotalQuantity:     2,
			ResolutionPath:    domain.ResolutionMappedVariant,
		},
	})
	if err != nil {
		t.Fatalf("Assemble returned error: %v", err)
	}

	if payload.COD {
		t.Fatal("cod must always be false")
	}
	if payload.RetailPrice != 499 {
		t.Fatalf("expected declared retail 499, got %d", payload.RetailPrice)
	}
	if len(payload.OrderProducts) != 1 {
		t.Fatalf("expected one entry, got %d", len(payload.OrderProducts))
	}
	entry := payload.OrderProducts[0]
	if entry.Quantity != 2 || !entry.IsPlain || entry.VariantID != "V1" {
		t.Fatalf("unexpected entry %#v", entry)
	}
	if entry.Design != nil {
		t.Fatal("plain entry must carry no design")
	}
}

func TestAssembleDesignEntryPinsVariant(t *testing.T) {
	assembler := newTestAssembler(t)

	payload, err := assembler.Assemble(domain.Order{ID: "order-1", DeclaredRetailTotal: 999}, []domain.ResolvedLineItem{
		{
			InternalProductID: "custom-design-42",
			ProviderProductID: "31",
			IsPlain:           false,
			TotalQuantity:     1,
			UploadedDesign: &domain.UploadedDesign{
				Front: &domain.AssetRef{
					ID:         "A1",
					Dimensions: domain.AssetDimensions{Width: 3000, Height: 3000, Top: 10, Left: 50},
				},
			},
			ResolutionPath: domain.ResolutionCustomDesign,
		},
	})
	if err != nil {
		t.Fatalf("Assemble returned error: %v", err)
	}

	entry := payload.OrderProducts[0]
	if entry.ProductID != "31" {
		t.Fatalf("expected product id, got %q", entry.ProductID)
	}
	if entry.VariantID != "DV-100" {
		t.Fatalf("design entry must pin the merchant design variant, got %q", entry.VariantID)
	}
	if entry.IsPlain {
		t.Fatal("design entry must not be plain")
	}
	if entry.Design == nil || entry.Design.Front == nil || entry.Design.Front.ID != "A1" {
		t.Fatalf("unexpected design payload %#v", entry.Design)
	}
	if entry.Design.Back != nil {
		t.Fatal("back side was empty, no payload expected")
	}
}

func TestAssembleVariantOnlyEntry(t *testing.T) {
	assembler := newTestAssembler(t)

	payload, err := assembler.Assemble(domain.Order{ID: "order-1", DeclaredRetailTotal: 100}, []domain.ResolvedLineItem{
		{
			InternalProductID: "classic-tee",
			ProviderVariantID: "EMG-1",
			IsPlain:           true,
			TotalQuantity:     1,
			ResolutionPath:    domain.ResolutionEmergencyVariant,
		},
	})
	if err != nil {
		t.Fatalf("Assemble returned error: %v", err)
	}

	entry := payload.OrderProducts[0]
	if entry.ProductID != "" || entry.VariantID != "EMG-1" {
		t.Fatalf("expected variant-only entry, got %#v", entry)
	}
}

func TestAssembleFloorsRetailPrice(t *testing.T) {
	assembler := newTestAssembler(t)

	payload, err := assembler.Assemble(domain.Order{ID: "order-1", DeclaredRetailTotal: 0}, []domain.ResolvedLineItem{
		{ProviderVariantID: "V1", IsPlain: true, TotalQuantity: 1},
	})
	if err != nil {
		t.Fatalf("Assemble returned error: %v", err)
	}
	if payload.RetailPrice != 1 {
		t.Fatalf("expected retail price floored to 1, got %d", payload.RetailPrice)
	}
}

func TestAssembleReferenceNumberIsIdempotent(t *testing.T) {
	assembler := newTestAssembler(t)

	items := []domain.ResolvedLineItem{{ProviderVariantID: "V1", IsPlain: true, TotalQuantity: 1}}

	first, err := assembler.Assemble(domain.Order{ID: "order-1", ReferenceHint: "pay_100045", DeclaredRetailTotal: 100}, items)
	if err != nil {
		t.Fatalf("Assemble returned error: %v", err)
	}
	second, err := assembler.Assemble(domain.Order{ID: "order-2", ReferenceHint: "pay_100045", DeclaredRetailTotal: 100}, items)
	if err != nil {
		t.Fatalf("Assemble returned error: %v", err)
	}
	if first.ReferenceNumber == "" || first.ReferenceNumber != second.ReferenceNumber {
		t.Fatalf("expected identical reference numbers, got %q and %q", first.ReferenceNumber, second.ReferenceNumber)
	}
}

func TestAssembleRejectsOrderWithoutIdentifiers(t *testing.T) {
	assembler := newTestAssembler(t)

	_, err := assembler.Assemble(domain.Order{ID: "order-1", DeclaredRetailTotal: 100}, []domain.ResolvedLineItem{
		{InternalProductID: "classic-tee", TotalQuantity: 1, ResolutionPath: domain.ResolutionUnresolved},
	})
	if !errors.Is(err, ErrNoSubmittableItems) {
		t.Fatalf("expected ErrNoSubmittableItems, got %v", err)
	}
}
