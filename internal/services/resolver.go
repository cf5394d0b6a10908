package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/duco-commerce/fulfillment/internal/domain"
	"github.com/duco-commerce/fulfillment/internal/provider"
	"github.com/duco-commerce/fulfillment/internal/repositories"
)

var (
	// ErrResolverInvalidInput indicates the line item is missing required data.
	ErrResolverInvalidInput = errors.New("catalog resolver: invalid input")
	// ErrResolverUnavailable indicates the resolver was constructed without its dependencies.
	ErrResolverUnavailable = errors.New("catalog resolver: unavailable")
)

// customDesignMarkers flag internal product ids that follow the storefront's
// custom-design naming convention.
var customDesignMarkers = []string{"custom", "design"}

// garmentNameMarkers pick a generic printable product out of the catalog listing.
var garmentNameMarkers = []string{"t-shirt", "tshirt", "shirt"}

// garmentIncludeKeywords and garmentExcludeKeywords drive the heuristic
// catalog search. Exclusion takes precedence over inclusion.
var (
	garmentIncludeKeywords = []string{"t-shirt", "tee", "polo", "men", "unisex"}
	garmentExcludeKeywords = []string{
		"crop top", "tank", "dress", "skirt", "pants", "shorts",
		"hoodie", "sweater", "jacket", "blouse", "women", "ladies",
	}
)

// CatalogResolverDeps wires the collaborators required by the resolver.
type CatalogResolverDeps struct {
	Uploader DesignUploader
	Catalog  CatalogClient
	Mappings repositories.MappingRepository
	Settings MerchantSettings
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type catalogResolver struct {
	uploader DesignUploader
	catalog  CatalogClient
	mappings repositories.MappingRepository
	settings MerchantSettings
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewCatalogResolver constructs a CatalogResolver validating required dependencies.
func NewCatalogResolver(deps CatalogResolverDeps) (CatalogResolver, error) {
	if deps.Uploader == nil {
		return nil, errors.New("catalog resolver: design uploader is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("catalog resolver: catalog client is required")
	}
	if deps.Mappings == nil {
		return nil, errors.New("catalog resolver: mapping repository is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &catalogResolver{
		uploader: deps.Uploader,
		catalog:  deps.Catalog,
		mappings: deps.Mappings,
		settings: deps.Settings,
		logger:   logger,
	}, nil
}

// tierOutcome is the tagged result of one resolution strategy. A nil item
// with needsFallback set moves evaluation to the next tier.
type tierOutcome struct {
	item          *domain.ResolvedLineItem
	needsFallback bool
	reason        string
}

func resolved(item domain.ResolvedLineItem) tierOutcome {
	return tierOutcome{item: &item}
}

func needsFallback(reason string) tierOutcome {
	return tierOutcome{needsFallback: true, reason: reason}
}

// Resolve walks the ordered fallback chain until a tier produces a
// submittable reference. Per-item failures degrade to the next tier; only
// auth failures abort, since no later tier can succeed without a token.
func (r *catalogResolver) Resolve(ctx context.Context, item domain.OrderLineItem) (domain.ResolvedLineItem, error) {
	if r == nil || r.uploader == nil || r.catalog == nil || r.mappings == nil {
		return domain.ResolvedLineItem{}, ErrResolverUnavailable
	}
	if strings.TrimSpace(item.InternalProductID) == "" {
		return domain.ResolvedLineItem{}, ErrResolverInvalidInput
	}
	if item.TotalQuantity() <= 0 {
		return domain.ResolvedLineItem{}, fmt.Errorf("%w: no positive size quantity", ErrResolverInvalidInput)
	}

	isCustom := isCustomDesignProduct(item.InternalProductID)
	uploadFailed := false
	var uploadReason string

	if isCustom && item.Design.HasContent() {
		outcome, err := r.resolveCustomDesign(ctx, item)
		if err != nil {
			return domain.ResolvedLineItem{}, err
		}
		if outcome.item != nil {
			return *outcome.item, nil
		}
		uploadFailed = true
		uploadReason = outcome.reason
		r.logger(ctx, "resolver.design_fallback", map[string]any{
			"internal_product_id": item.InternalProductID,
			"reason":              outcome.reason,
		})
	}

	if outcome := r.resolveMappedVariant(ctx, item); outcome.item != nil {
		result := *outcome.item
		if uploadFailed {
			result.ResolutionPath = domain.ResolutionDesignFallback
		}
		return result, nil
	}

	if isCustom {
		outcome, err := r.resolveGarmentHeuristic(ctx, item)
		if err != nil {
			return domain.ResolvedLineItem{}, err
		}
		if outcome.item != nil {
			result := *outcome.item
			if uploadFailed {
				result.ResolutionPath = domain.ResolutionDesignFallback
			}
			return result, nil
		}
	}

	return r.resolveTerminal(ctx, item, uploadReason), nil
}

// resolveCustomDesign uploads every non-empty side and binds the assets to a
// generic printable product picked from the catalog listing. The fallback is
// all-or-nothing per item; a partially uploaded design is never retained.
func (r *catalogResolver) resolveCustomDesign(ctx context.Context, item domain.OrderLineItem) (tierOutcome, error) {
	design := &domain.UploadedDesign{}
	uploadedSides := 0

	sides := []struct {
		side domain.DesignSide
		spec *domain.DesignSideSpec
		slot **domain.AssetRef
	}{
		{domain.DesignSideFront, item.Design.Front, &design.Front},
		{domain.DesignSideBack, item.Design.Back, &design.Back},
	}

	for _, s := range sides {
		if s.spec == nil || s.spec.IsEmpty() || strings.TrimSpace(s.spec.ImageData) == "" {
			continue
		}

		name := fmt.Sprintf("%s-%s", item.InternalProductID, s.side)
		assetID, err := r.uploader.UploadDesign(ctx, s.spec.ImageData, name)
		if err != nil {
			if provider.IsAuth(err) {
				return tierOutcome{}, err
			}
			return needsFallback(fmt.Sprintf("upload %s side: %v", s.side, err)), nil
		}

		*s.slot = &domain.AssetRef{ID: assetID, Dimensions: r.settings.Canvas()}
		uploadedSides++
	}

	// A design carrying only text yields nothing the provider can print.
	// Without an uploaded asset a product-only item would not be
	// submittable, so the later tiers must supply a variant instead.
	if uploadedSides == 0 {
		return needsFallback("design has no image content"), nil
	}

	productID, err := r.pickGenericProduct(ctx)
	if err != nil {
		if provider.IsAuth(err) {
			return tierOutcome{}, err
		}
		return needsFallback(fmt.Sprintf("pick generic product: %v", err)), nil
	}

	return resolved(domain.ResolvedLineItem{
		InternalProductID: item.InternalProductID,
		ProviderProductID: productID,
		UploadedDesign:    design,
		TotalQuantity:     item.TotalQuantity(),
		UnitPrice:         item.UnitPrice,
		ResolutionPath:    domain.ResolutionCustomDesign,
	}), nil
}

// pickGenericProduct lists the catalog and returns the first entry whose
// name matches a garment marker, else the first entry.
func (r *catalogResolver) pickGenericProduct(ctx context.Context) (string, error) {
	products, err := r.catalog.ListProducts(ctx)
	if err != nil {
		return "", err
	}
	if len(products) == 0 {
		return "", errors.New("provider catalog is empty")
	}

	for _, p := range products {
		name := strings.ToLower(p.Name)
		for _, marker := range garmentNameMarkers {
			if strings.Contains(name, marker) {
				return string(p.ID), nil
			}
		}
	}
	return string(products[0].ID), nil
}

// resolveMappedVariant consults the synced mapping store. An exact
// (color, size) match wins, else the first available variant, else the
// first available variant of any active mapping when the cross-product
// fallback is enabled.
func (r *catalogResolver) resolveMappedVariant(ctx context.Context, item domain.OrderLineItem) tierOutcome {
	mapping, err := r.mappings.FindByInternalProduct(ctx, item.InternalProductID)
	if err == nil {
		if variant, ok := pickMappingVariant(mapping, item); ok {
			return resolved(domain.ResolvedLineItem{
				InternalProductID: item.InternalProductID,
				ProviderProductID: variant.ProductID,
				ProviderVariantID: variant.VariantID,
				IsPlain:           true,
				TotalQuantity:     item.TotalQuantity(),
				UnitPrice:         item.UnitPrice,
				ResolutionPath:    domain.ResolutionMappedVariant,
			})
		}
	} else if !repositories.IsNotFound(err) {
		r.logger(ctx, "resolver.mapping_lookup_failed", map[string]any{
			"internal_product_id": item.InternalProductID,
			"error":               err.Error(),
		})
	}

	if !r.settings.AllowCrossProductFallback {
		return needsFallback("no mapped variant")
	}

	other, err := r.mappings.FindAnyActive(ctx)
	if err != nil {
		return needsFallback("no active mapping in store")
	}
	available := other.AvailableVariants()
	if len(available) == 0 {
		return needsFallback("active mapping has no available variants")
	}

	variant := available[0]
	return resolved(domain.ResolvedLineItem{
		InternalProductID: item.InternalProductID,
		ProviderProductID: variant.ProductID,
		ProviderVariantID: variant.VariantID,
		IsPlain:           true,
		TotalQuantity:     item.TotalQuantity(),
		UnitPrice:         item.UnitPrice,
		ResolutionPath:    domain.ResolutionCrossProduct,
	})
}

// pickMappingVariant prefers the exact (color, size) match, else the first
// available variant of the mapping. First match in iteration order wins.
func pickMappingVariant(mapping domain.ProviderMapping, item domain.OrderLineItem) (domain.MappingVariant, bool) {
	available := mapping.AvailableVariants()
	if len(available) == 0 {
		return domain.MappingVariant{}, false
	}

	size := firstRequestedSize(item)
	for _, v := range available {
		if equalFold(v.Color, item.Color) && equalFold(v.Size, size) {
			return v, true
		}
	}
	return available[0], true
}

// firstRequestedSize returns the first size with a positive quantity.
// Per-size fan-out happens upstream; one resolved variant covers the item.
func firstRequestedSize(item domain.OrderLineItem) string {
	for size, count := range item.SizeQuantities {
		if count > 0 {
			return size
		}
	}
	return ""
}

// resolveGarmentHeuristic searches the full catalog with include/exclude
// keywords, then searches each matching product's variants for a
// (color, size) hit on SKU or attribute text, else the first available
// variant.
func (r *catalogResolver) resolveGarmentHeuristic(ctx context.Context, item domain.OrderLineItem) (tierOutcome, error) {
	products, err := r.catalog.ListProducts(ctx)
	if err != nil {
		if provider.IsAuth(err) {
			return tierOutcome{}, err
		}
		return needsFallback(fmt.Sprintf("catalog listing failed: %v", err)), nil
	}

	size := firstRequestedSize(item)
	for _, p := range products {
		if !matchesGarmentKeywords(p.Name) {
			continue
		}

		detail, err := r.catalog.GetProduct(ctx, string(p.ID))
		if err != nil {
			if provider.IsAuth(err) {
				return tierOutcome{}, err
			}
			continue
		}

		variant, ok := pickCatalogVariant(detail.Variants, item.Color, size)
		if !ok {
			continue
		}
		return resolved(domain.ResolvedLineItem{
			InternalProductID: item.InternalProductID,
			ProviderProductID: string(detail.ID),
			ProviderVariantID: string(variant.ID),
			IsPlain:           true,
			TotalQuantity:     item.TotalQuantity(),
			UnitPrice:         item.UnitPrice,
			ResolutionPath:    domain.ResolutionGarmentHeuristic,
		}), nil
	}

	return needsFallback("no garment match in catalog"), nil
}

// matchesGarmentKeywords applies the include/exclude heuristic; any
// exclusion keyword rejects the name before inclusions are considered.
func matchesGarmentKeywords(name string) bool {
	lowered := strings.ToLower(name)
	for _, keyword := range garmentExcludeKeywords {
		if strings.Contains(lowered, keyword) {
			return false
		}
	}
	for _, keyword := range garmentIncludeKeywords {
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}

// pickCatalogVariant searches variants for a color and size hit on SKU or
// attribute text, else takes the first available variant.
func pickCatalogVariant(variants []provider.Variant, color, size string) (provider.Variant, bool) {
	var firstAvailable *provider.Variant
	for i, v := range variants {
		if !v.IsAvailable {
			continue
		}
		if firstAvailable == nil {
			firstAvailable = &variants[i]
		}
		if variantMatches(v, color, size) {
			return v, true
		}
	}
	if firstAvailable != nil {
		return *firstAvailable, true
	}
	return provider.Variant{}, false
}

func variantMatches(v provider.Variant, color, size string) bool {
	if color == "" && size == "" {
		return false
	}
	haystack := strings.ToLower(v.SKU + " " + v.Color + " " + v.Size)
	if color != "" && !strings.Contains(haystack, strings.ToLower(color)) {
		return false
	}
	if size != "" && !containsSizeToken(haystack, size) {
		return false
	}
	return true
}

// containsSizeToken matches the size as a discrete token so "M" does not
// match inside "XXL" or arbitrary words.
func containsSizeToken(haystack, size string) bool {
	target := strings.ToLower(strings.TrimSpace(size))
	if target == "" {
		return false
	}
	for _, token := range strings.FieldsFunc(haystack, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_' || r == '/'
	}) {
		if token == target {
			return true
		}
	}
	return false
}

// resolveTerminal assigns the configured emergency variant so the item
// stays submittable. The lossy substitution is recorded in the resolution
// path for operator visibility; without a configured emergency variant the
// item is left unresolved for the assembler to judge.
func (r *catalogResolver) resolveTerminal(ctx context.Context, item domain.OrderLineItem, reason string) domain.ResolvedLineItem {
	result := domain.ResolvedLineItem{
		InternalProductID: item.InternalProductID,
		IsPlain:           true,
		TotalQuantity:     item.TotalQuantity(),
		UnitPrice:         item.UnitPrice,
		ResolutionPath:    domain.ResolutionUnresolved,
	}

	emergency := strings.TrimSpace(r.settings.EmergencyVariantID)
	if emergency != "" {
		result.ProviderVariantID = emergency
		result.ResolutionPath = domain.ResolutionEmergencyVariant
	}

	r.logger(ctx, "resolver.terminal_fallback", map[string]any{
		"internal_product_id": item.InternalProductID,
		"resolution_path":     string(result.ResolutionPath),
		"reason":              reason,
	})
	return result
}

func isCustomDesignProduct(internalProductID string) bool {
	lowered := strings.ToLower(internalProductID)
	for _, marker := range customDesignMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
