package store

import (
	"context"

	"github.com/feral-file/nft-trait-viewer/internal/domain"
)

// Store defines the interface for the ownership record cache
//
//go:generate mockgen -source=store.go -destination=../mocks/store.go -package=mocks -mock_names=Store=MockStore
type Store interface {
	// Read returns the cached records of an owner/contract pair in fetch order.
	// It returns domain.ErrCacheMiss when there is no entry, and a
	// *domain.CacheCorruptionWarning (which also matches ErrCacheMiss) when a chunk cannot be decoded.
	Read(ctx context.Context, ownerAddress, contractAddress string) ([]domain.OwnershipRecord, error)
	// Write replaces the cached records of an owner/contract pair
	Write(ctx context.Context, ownerAddress, contractAddress string, records []domain.OwnershipRecord) error
	// Close releases the underlying resources
	Close() error
}
