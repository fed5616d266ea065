package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is returned when the run configuration is missing or invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrAPI is returned when the indexing API answers with a non-success status
	ErrAPI = errors.New("indexing API request failed")

	// ErrEmptyResult is returned when a run ends up with zero ownership records
	ErrEmptyResult = errors.New("no records found")

	// ErrCacheMiss is returned when no usable cache entry exists for an owner/contract pair
	ErrCacheMiss = errors.New("cache miss")

	// ErrChunking is returned when records cannot be split into chunks under the ceiling
	ErrChunking = errors.New("record too large to chunk")

	// ErrColumnOutOfRange is returned when a column index is outside the supported label range
	ErrColumnOutOfRange = errors.New("column index out of range")
)

// APIError carries the status code and raw body of a failed indexing API response
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API request failed with status %d. Response: %s", e.StatusCode, e.Body)
}

func (e *APIError) Is(target error) bool {
	return target == ErrAPI
}

// EmptyResultError reports that a run produced no records
// Source is either SOURCE_API or SOURCE_CACHE
type EmptyResultError struct {
	Source string
}

func (e *EmptyResultError) Error() string {
	if e.Source == SOURCE_CACHE {
		return "no NFTs found for the given address and contract (from cache)"
	}
	return "no NFTs found for the given address and contract"
}

func (e *EmptyResultError) Is(target error) bool {
	return target == ErrEmptyResult
}

// CacheCorruptionWarning reports a cache entry whose chunks could not be decoded.
// It is not fatal: it matches ErrCacheMiss so callers fall back to fetching.
type CacheCorruptionWarning struct {
	OwnerAddress    string
	ContractAddress string
	Chunk           int
	Err             error
}

func (e *CacheCorruptionWarning) Error() string {
	return fmt.Sprintf("corrupted cache entry for %s/%s at chunk %d: %v", e.OwnerAddress, e.ContractAddress, e.Chunk, e.Err)
}

func (e *CacheCorruptionWarning) Unwrap() error {
	return e.Err
}

func (e *CacheCorruptionWarning) Is(target error) bool {
	return target == ErrCacheMiss
}

// ChunkingError reports a record whose serialized form alone exceeds the chunk ceiling
type ChunkingError struct {
	Index   int
	TokenID string
	Size    int
	Ceiling int
}

func (e *ChunkingError) Error() string {
	return fmt.Sprintf("record %d (token %s) serializes to %d characters, above the chunk ceiling of %d", e.Index, e.TokenID, e.Size, e.Ceiling)
}

func (e *ChunkingError) Is(target error) bool {
	return target == ErrChunking
}

// NewConfigError wraps ErrInvalidConfig with the offending field
func NewConfigError(field string, reason string) error {
	return fmt.Errorf("%w: %s %s", ErrInvalidConfig, field, reason)
}
