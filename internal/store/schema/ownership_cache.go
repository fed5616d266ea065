package schema

import (
	"time"

	"gorm.io/datatypes"
)

// OwnershipCache represents the ownership_caches table - one row per owner/contract pair
type OwnershipCache struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// OwnerAddress is the wallet whose holdings were fetched
	OwnerAddress string `gorm:"column:owner_address;not null;type:text;uniqueIndex:idx_ownership_caches_owner_contract,priority:1"`
	// ContractAddress is the token contract that was queried
	ContractAddress string `gorm:"column:contract_address;not null;type:text;uniqueIndex:idx_ownership_caches_owner_contract,priority:2"`
	// RecordCount is the number of ownership records across all chunks
	RecordCount int `gorm:"column:record_count;not null"`
	// CachedAt is when the records were last written; informational only, entries never expire
	CachedAt time.Time `gorm:"column:cached_at;not null"`
	// CreatedAt is the timestamp when this entry was first created
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	// UpdatedAt is the timestamp when this entry was last replaced
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`

	// Associations
	Chunks []OwnershipCacheChunk `gorm:"foreignKey:CacheID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for the OwnershipCache model
func (OwnershipCache) TableName() string {
	return "ownership_caches"
}

// OwnershipCacheChunk represents the ownership_cache_chunks table - the serialized record chunks of a cache entry
type OwnershipCacheChunk struct {
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// CacheID references the owning cache entry
	CacheID int64 `gorm:"column:cache_id;not null;uniqueIndex:idx_ownership_cache_chunks_cache_position,priority:1"`
	// Position is the 0-based order of the chunk within the entry
	Position int `gorm:"column:position;not null;uniqueIndex:idx_ownership_cache_chunks_cache_position,priority:2"`
	// Content is a JSON array of complete ownership records
	Content datatypes.JSON `gorm:"column:content;not null"`
}

// TableName specifies the table name for the OwnershipCacheChunk model
func (OwnershipCacheChunk) TableName() string {
	return "ownership_cache_chunks"
}
