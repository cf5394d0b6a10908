package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/duco-commerce/fulfillment/internal/domain"
	"github.com/duco-commerce/fulfillment/internal/provider"
)

// ErrNoSubmittableItems indicates every line item resolved without a usable
// identifier. This is the single fatal path at assembly time.
var ErrNoSubmittableItems = errors.New("payload assembler: no line item carries a usable identifier")

// PayloadAssemblerDeps wires the settings and clock used during assembly.
type PayloadAssemblerDeps struct {
	Settings MerchantSettings
	Clock    func() time.Time
}

type payloadAssembler struct {
	settings MerchantSettings
	now      func() time.Time
}

// NewPayloadAssembler constructs a PayloadAssembler.
func NewPayloadAssembler(deps PayloadAssemblerDeps) (PayloadAssembler, error) {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &payloadAssembler{
		settings: deps.Settings,
		now: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

// Assemble builds the provider order payload. The per-entry shape follows
// what the resolver produced: design-bearing entries carry product, design,
// and the merchant's pinned design variant; plain entries carry product and
// variant; last-resort entries carry the variant alone.
func (a *payloadAssembler) Assemble(order domain.Order, items []domain.ResolvedLineItem) (provider.OrderPayload, error) {
	submittable := 0
	for _, item := range items {
		if item.HasIdentifier() {
			submittable++
		}
	}
	if submittable == 0 {
		return provider.OrderPayload{}, ErrNoSubmittableItems
	}

	payload := provider.OrderPayload{
		ReferenceNumber: a.referenceNumber(order),
		RetailPrice:     retailPrice(order.DeclaredRetailTotal),
		Customer:        customerPayload(order.Customer),
		COD:             false,
	}

	for _, item := range items {
		if !item.HasIdentifier() {
			continue
		}

		entry := provider.OrderProduct{
			Quantity: item.TotalQuantity,
			IsPlain:  item.IsPlain,
		}

		switch {
		case item.UploadedDesign != nil:
			entry.ProductID = item.ProviderProductID
			entry.VariantID = strings.TrimSpace(a.settings.DesignOrderVariantID)
			entry.Design = designPayload(item.UploadedDesign)
		case strings.TrimSpace(item.ProviderProductID) != "":
			entry.ProductID = item.ProviderProductID
			entry.VariantID = item.ProviderVariantID
		default:
			entry.VariantID = item.ProviderVariantID
		}

		payload.OrderProducts = append(payload.OrderProducts, entry)
	}

	return payload, nil
}

// referenceNumber derives the provider-side dedup key from the order's
// payment hint, falling back to a timestamp when no hint exists. The same
// hint always yields the same reference number.
func (a *payloadAssembler) referenceNumber(order domain.Order) string {
	hint := strings.TrimSpace(order.ReferenceHint)
	if hint != "" {
		return sanitizeReference(hint)
	}
	if id := strings.TrimSpace(order.ID); id != "" {
		return sanitizeReference(id)
	}
	return fmt.Sprintf("%d", a.now().Unix())
}

// sanitizeReference keeps alphanumerics so payment ids with separators
// survive the provider's reference format.
func sanitizeReference(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return value
	}
	return b.String()
}

// retailPrice floors the declared total at 1; the provider rejects zero and
// negative retail prices.
func retailPrice(declared int64) int64 {
	if declared < 1 {
		return 1
	}
	return declared
}

func customerPayload(customer domain.Customer) provider.CustomerPayload {
	return provider.CustomerPayload{
		Name:    customer.Name,
		Email:   customer.Email,
		Number:  customer.Phone,
		Address: customer.Address,
		City:    customer.City,
		State:   customer.State,
		Country: customer.Country,
		Pincode: customer.Pincode,
	}
}

func designPayload(design *domain.UploadedDesign) *provider.DesignPayload {
	if design == nil {
		return nil
	}
	payload := &provider.DesignPayload{}
	if design.Front != nil {
		payload.Front = assetPayload(*design.Front)
	}
	if design.Back != nil {
		payload.Back = assetPayload(*design.Back)
	}
	return payload
}

func assetPayload(asset domain.AssetRef) *provider.AssetPayload {
	return &provider.AssetPayload{
		ID: asset.ID,
		Dimensions: provider.DimensionPayload{
			Width:  asset.Dimensions.Width,
			Height: asset.Dimensions.Height,
			Top:    asset.Dimensions.Top,
			Left:   asset.Dimensions.Left,
		},
	}
}
