package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/duco-commerce/fulfillment/internal/domain"
	pfirestore "github.com/duco-commerce/fulfillment/internal/platform/firestore"
)

const mappingsCollection = "providerMappings"

// MappingRepository persists the provider-catalog mappings produced by the
// catalog sync job.
type MappingRepository struct {
	base *pfirestore.BaseRepository[domain.ProviderMapping]
}

// NewMappingRepository constructs a Firestore-backed mapping repository.
func NewMappingRepository(provider *pfirestore.Provider) (*MappingRepository, error) {
	if provider == nil {
		return nil, errors.New("mapping repository: firestore provider is required")
	}

	encoder := func(ctx context.Context, value domain.ProviderMapping) (any, error) {
		return encodeMappingDocument(value), nil
	}
	decoder := func(ctx context.Context, snap *firestore.DocumentSnapshot) (domain.ProviderMapping, error) {
		var doc mappingDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.ProviderMapping{}, err
		}
		doc.InternalProductID = snap.Ref.ID
		if doc.SyncedAt.IsZero() {
			doc.SyncedAt = snap.UpdateTime
		}
		return decodeMappingDocument(doc), nil
	}

	base := pfirestore.NewBaseRepository[domain.ProviderMapping](provider, mappingsCollection, encoder, decoder)
	return &MappingRepository{base: base}, nil
}

// FindByInternalProduct loads the mapping keyed by the internal product id.
func (r *MappingRepository) FindByInternalProduct(ctx context.Context, internalProductID string) (domain.ProviderMapping, error) {
	if r == nil || r.base == nil {
		return domain.ProviderMapping{}, errors.New("mapping repository not initialised")
	}
	internalProductID = strings.TrimSpace(internalProductID)
	if internalProductID == "" {
		return domain.ProviderMapping{}, errors.New("mapping repository: internal product id is required")
	}

	doc, err := r.base.Get(ctx, internalProductID)
	if err != nil {
		return domain.ProviderMapping{}, err
	}
	return doc.Data, nil
}

// FindAnyActive returns the first active mapping in the store. Used only by
// the opt-in cross-product fallback.
func (r *MappingRepository) FindAnyActive(ctx context.Context) (domain.ProviderMapping, error) {
	if r == nil || r.base == nil {
		return domain.ProviderMapping{}, errors.New("mapping repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("isActive", "==", true).Limit(1)
	})
	if err != nil {
		return domain.ProviderMapping{}, err
	}
	if len(docs) == 0 {
		return domain.ProviderMapping{}, pfirestore.WrapError("provider_mappings.find_any_active", status.Error(codes.NotFound, "no active mapping"))
	}
	return docs[0].Data, nil
}

// Upsert replaces the mapping document. Only the catalog sync job calls this.
func (r *MappingRepository) Upsert(ctx context.Context, mapping domain.ProviderMapping) error {
	if r == nil || r.base == nil {
		return errors.New("mapping repository not initialised")
	}
	mapping.InternalProductID = strings.TrimSpace(mapping.InternalProductID)
	if mapping.InternalProductID == "" {
		return errors.New("mapping repository: internal product id is required")
	}

	if _, err := r.base.Set(ctx, mapping.InternalProductID, mapping); err != nil {
		return err
	}
	return nil
}

type mappingDocument struct {
	InternalProductID string                   `firestore:"-"`
	ProviderProductID string                   `firestore:"providerProductId"`
	Variants          []mappingVariantDocument `firestore:"variants"`
	IsActive          bool                     `firestore:"isActive"`
	SyncedAt          time.Time                `firestore:"syncedAt"`
}

type mappingVariantDocument struct {
	VariantID   string `firestore:"variantId"`
	ProductID   string `firestore:"productId"`
	SKU         string `firestore:"sku"`
	Color       string `firestore:"color"`
	Size        string `firestore:"size"`
	IsAvailable bool   `firestore:"isAvailable"`
}

func encodeMappingDocument(mapping domain.ProviderMapping) mappingDocument {
	variants := make([]mappingVariantDocument, 0, len(mapping.Variants))
	for _, v := range mapping.Variants {
		variants = append(variants, mappingVariantDocument{
			VariantID:   v.VariantID,
			ProductID:   v.ProductID,
			SKU:         v.SKU,
			Color:       v.Color,
			Size:        v.Size,
			IsAvailable: v.IsAvailable,
		})
	}
	return mappingDocument{
		ProviderProductID: mapping.ProviderProductID,
		Variants:          variants,
		IsActive:          mapping.IsActive,
		SyncedAt:          mapping.SyncedAt.UTC(),
	}
}

func decodeMappingDocument(doc mappingDocument) domain.ProviderMapping {
	variants := make([]domain.MappingVariant, 0, len(doc.Variants))
	for _, v := range doc.Variants {
		variants = append(variants, domain.MappingVariant{
			VariantID:   v.VariantID,
			ProductID:   v.ProductID,
			SKU:         v.SKU,
			Color:       v.Color,
			Size:        v.Size,
			IsAvailable: v.IsAvailable,
		})
	}
	return domain.ProviderMapping{
		InternalProductID: doc.InternalProductID,
		ProviderProductID: doc.ProviderProductID,
		Variants:          variants,
		IsActive:          doc.IsActive,
		SyncedAt:          doc.SyncedAt,
	}
}
