package repositories

import (
	"context"
	"errors"

	domain "github.com/duco-commerce/fulfillment/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// MappingRepository exposes the synced provider-catalog mappings. The
// fulfillment pipeline only reads; the catalog sync job is the sole writer.
type MappingRepository interface {
	FindByInternalProduct(ctx context.Context, internalProductID string) (domain.ProviderMapping, error)
	FindAnyActive(ctx context.Context) (domain.ProviderMapping, error)
	Upsert(ctx context.Context, mapping domain.ProviderMapping) error
}

// IsNotFound reports whether the error is a categorised not-found failure.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsNotFound()
	}
	return false
}

// IsUnavailable reports whether the error is a categorised availability failure.
func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsUnavailable()
	}
	return false
}
