package store

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/feral-file/nft-trait-viewer/internal/adapter"
	"github.com/feral-file/nft-trait-viewer/internal/domain"
	"github.com/feral-file/nft-trait-viewer/internal/logger"
	"github.com/feral-file/nft-trait-viewer/internal/store/schema"
)

// DBStore keeps the cache in the ownership_caches and ownership_cache_chunks tables
type DBStore struct {
	db    *gorm.DB
	codec *ChunkCodec
	clock adapter.Clock
}

// NewDBStore creates a database-backed cache store
func NewDBStore(db *gorm.DB, codec *ChunkCodec, clock adapter.Clock) *DBStore {
	return &DBStore{
		db:    db,
		codec: codec,
		clock: clock,
	}
}

// Migrate creates or updates the cache tables
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&schema.OwnershipCache{}, &schema.OwnershipCacheChunk{}); err != nil {
		return fmt.Errorf("failed to migrate cache tables: %w", err)
	}
	return nil
}

// Read loads the entry of the owner/contract pair and decodes its chunks in position order
func (s *DBStore) Read(ctx context.Context, ownerAddress, contractAddress string) ([]domain.OwnershipRecord, error) {
	var entry schema.OwnershipCache
	err := s.db.WithContext(ctx).
		Where("owner_address = ? AND contract_address = ?", ownerAddress, contractAddress).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}

	var rows []schema.OwnershipCacheChunk
	err = s.db.WithContext(ctx).
		Where("cache_id = ?", entry.ID).
		Order("position ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get cache chunks: %w", err)
	}

	chunks := make([]string, len(rows))
	for i, row := range rows {
		chunks[i] = string(row.Content)
	}

	records, err := decodeEntry(s.codec, ownerAddress, contractAddress, chunks)
	if err != nil {
		logger.WarnCtx(ctx, "Ignoring corrupted cache entry", zap.Error(err), zap.Int64("cache_id", entry.ID))
		return nil, err
	}

	logger.DebugCtx(ctx, "Read cache entry from database",
		zap.Int64("cache_id", entry.ID),
		zap.Int("chunks", len(chunks)),
		zap.Int("records", len(records)),
		zap.Time("cached_at", entry.CachedAt),
	)

	return records, nil
}

// Write upserts the entry and replaces all of its chunks in one transaction
func (s *DBStore) Write(ctx context.Context, ownerAddress, contractAddress string, records []domain.OwnershipRecord) error {
	chunks, err := s.codec.Encode(records)
	if err != nil {
		return err
	}

	var cacheID int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry := schema.OwnershipCache{
			OwnerAddress:    ownerAddress,
			ContractAddress: contractAddress,
			RecordCount:     len(records),
			CachedAt:        s.clock.Now().UTC(),
		}

		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner_address"}, {Name: "contract_address"}},
			DoUpdates: clause.AssignmentColumns([]string{"record_count", "cached_at", "updated_at"}),
		}).Create(&entry).Error
		if err != nil {
			return fmt.Errorf("failed to upsert cache entry: %w", err)
		}

		// Re-read the id: not every dialect returns it on the conflict path
		var stored schema.OwnershipCache
		err = tx.Select("id").
			Where("owner_address = ? AND contract_address = ?", ownerAddress, contractAddress).
			First(&stored).Error
		if err != nil {
			return fmt.Errorf("failed to get cache entry: %w", err)
		}
		cacheID = stored.ID

		if err := tx.Where("cache_id = ?", stored.ID).Delete(&schema.OwnershipCacheChunk{}).Error; err != nil {
			return fmt.Errorf("failed to delete stale cache chunks: %w", err)
		}

		if len(chunks) == 0 {
			return nil
		}

		rows := make([]schema.OwnershipCacheChunk, len(chunks))
		for i, chunk := range chunks {
			rows[i] = schema.OwnershipCacheChunk{
				CacheID:  stored.ID,
				Position: i,
				Content:  datatypes.JSON(chunk),
			}
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to create cache chunks: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	logger.InfoCtx(ctx, "Wrote cache entry to database",
		zap.Int64("cache_id", cacheID),
		zap.Int("chunks", len(chunks)),
		zap.Int("records", len(records)),
	)

	return nil
}

// Close closes the underlying connection pool
func (s *DBStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}
