package domain

import (
	"strings"
	"time"
)

// DesignSide identifies a printable garment side.
type DesignSide string

const (
	// DesignSideFront is the front print area of a garment.
	DesignSideFront DesignSide = "front"
	// DesignSideBack is the back print area of a garment.
	DesignSideBack DesignSide = "back"
)

// ResolutionPath records which strategy of the fallback chain produced a resolved line item.
type ResolutionPath string

const (
	// ResolutionCustomDesign means the custom-design tier uploaded artwork and picked a generic product.
	ResolutionCustomDesign ResolutionPath = "custom_design"
	// ResolutionDesignFallback means the design upload failed and the item degraded to a plain product.
	ResolutionDesignFallback ResolutionPath = "design_fallback"
	// ResolutionMappedVariant means a persisted product mapping supplied the variant.
	ResolutionMappedVariant ResolutionPath = "mapped_variant"
	// ResolutionCrossProduct means a variant was borrowed from another product's active mapping.
	ResolutionCrossProduct ResolutionPath = "cross_product"
	// ResolutionGarmentHeuristic means the provider catalog was searched by garment keywords.
	ResolutionGarmentHeuristic ResolutionPath = "garment_heuristic"
	// ResolutionEmergencyVariant means every tier failed and the configured last-resort variant was used.
	ResolutionEmergencyVariant ResolutionPath = "emergency_variant"
	// ResolutionUnresolved means no tier produced a usable identifier.
	ResolutionUnresolved ResolutionPath = "unresolved"
)

// DesignText describes optional rendered text on one garment side.
type DesignText struct {
	Content  string
	Size     string
	Color    string
	Font     string
	Position string
}

// DesignSideSpec holds the artwork and/or text for one side of a garment.
// A side with neither image data nor text is considered empty.
type DesignSideSpec struct {
	ImageData string
	Text      *DesignText
}

// IsEmpty reports whether the side carries no printable content.
func (s DesignSideSpec) IsEmpty() bool {
	return strings.TrimSpace(s.ImageData) == "" && s.Text == nil
}

// DesignSpec captures the per-side custom artwork attached to a line item.
type DesignSpec struct {
	Front *DesignSideSpec
	Back  *DesignSideSpec
}

// HasContent reports whether at least one side carries printable content.
func (d *DesignSpec) HasContent() bool {
	if d == nil {
		return false
	}
	if d.Front != nil && !d.Front.IsEmpty() {
		return true
	}
	if d.Back != nil && !d.Back.IsEmpty() {
		return true
	}
	return false
}

// OrderLineItem is one storefront cart line translated for fulfillment.
// At least one size quantity must be positive.
type OrderLineItem struct {
	InternalProductID string
	Name              string
	Color             string
	SizeQuantities    map[string]int
	UnitPrice         int64
	Design            *DesignSpec
}

// TotalQuantity sums the per-size counts, ignoring non-positive entries.
func (li OrderLineItem) TotalQuantity() int {
	total := 0
	for _, count := range li.SizeQuantities {
		if count > 0 {
			total += count
		}
	}
	return total
}

// Customer carries the shipping contact submitted with a provider order.
type Customer struct {
	Name    string
	Email   string
	Phone   string
	Address string
	City    string
	State   string
	Country string
	Pincode string
}

// Order is the immutable fulfillment input produced by the storefront checkout.
type Order struct {
	ID                  string
	ReferenceHint       string
	LineItems           []OrderLineItem
	DeclaredRetailTotal int64
	Customer            Customer
	CreatedAt           time.Time
}

// AssetRef points at an uploaded design asset with its placement rectangle
// in provider canvas units.
type AssetRef struct {
	ID         string
	Dimensions AssetDimensions
}

// AssetDimensions is the normalized placement rectangle on the provider canvas.
type AssetDimensions struct {
	Width  int
	Height int
	Top    int
	Left   int
}

// UploadedDesign groups the per-side asset references created for a line item.
type UploadedDesign struct {
	Front *AssetRef
	Back  *AssetRef
}

// ResolvedLineItem is the output of the catalog resolver for one line item.
// Either ProviderVariantID or UploadedDesign must be set for the item to be
// submittable; otherwise the item is unresolved.
type ResolvedLineItem struct {
	InternalProductID string
	ProviderProductID string
	ProviderVariantID string
	IsPlain           bool
	UploadedDesign    *UploadedDesign
	TotalQuantity     int
	UnitPrice         int64
	ResolutionPath    ResolutionPath
}

// HasIdentifier reports whether the item carries anything the provider can act on.
func (r ResolvedLineItem) HasIdentifier() bool {
	return strings.TrimSpace(r.ProviderVariantID) != "" || r.UploadedDesign != nil
}

// MappingVariant is one provider variant recorded by the catalog sync job.
type MappingVariant struct {
	VariantID   string
	ProductID   string
	SKU         string
	Color       string
	Size        string
	IsAvailable bool
}

// ProviderMapping links an internal product id to its synced provider variants.
type ProviderMapping struct {
	InternalProductID string
	ProviderProductID string
	Variants          []MappingVariant
	IsActive          bool
	SyncedAt          time.Time
}

// AvailableVariants filters the mapping down to variants flagged available.
func (m ProviderMapping) AvailableVariants() []MappingVariant {
	out := make([]MappingVariant, 0, len(m.Variants))
	for _, v := range m.Variants {
		if v.IsAvailable {
			out = append(out, v)
		}
	}
	return out
}

// ItemEstimate is the provider-cost estimate for one resolved line item.
type ItemEstimate struct {
	InternalProductID string
	ProviderVariantID string
	UnitCost          int64
	Quantity          int
	LineCost          int64
	IsFallbackPricing bool
}

// CostEstimate aggregates per-item provider costs for an order.
type CostEstimate struct {
	TotalCost int64
	PerItem   []ItemEstimate
}

// PriceValidation reports how far the declared retail total drifted from the
// provider cost. Advisory only; it never blocks submission.
type PriceValidation struct {
	IsValid        bool
	PercentageDiff float64
	DeclaredRetail int64
	ProviderCost   int64
}

// LineItemDiagnostic surfaces how a single line item was resolved so lossy
// fallbacks remain observable.
type LineItemDiagnostic struct {
	InternalProductID string
	ResolutionPath    ResolutionPath
	ProviderVariantID string
	DesignUploaded    bool
	FallbackPricing   bool
	Notes             string
}

// SubmissionResult is the single outcome returned to the order workflow.
type SubmissionResult struct {
	OK                 bool
	AttemptID          string
	ProviderOrderID    string
	ReferenceNumber    string
	ErrorKind          string
	Message            string
	PriceValidation    *PriceValidation
	PerItemDiagnostics []LineItemDiagnostic
	SubmittedAt        time.Time
}
