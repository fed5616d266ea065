// Package viewer runs the fetch, group and render pipeline for one owner/contract pair.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/feral-file/nft-trait-viewer/internal/adapter"
	"github.com/feral-file/nft-trait-viewer/internal/domain"
	"github.com/feral-file/nft-trait-viewer/internal/grouping"
	"github.com/feral-file/nft-trait-viewer/internal/logger"
	"github.com/feral-file/nft-trait-viewer/internal/records"
	"github.com/feral-file/nft-trait-viewer/internal/store"
)

// ConfigSource supplies the validated run configuration
//
//go:generate mockgen -source=viewer.go -destination=../mocks/viewer.go -package=mocks -mock_names=ConfigSource=MockConfigSource,TableRenderer=MockTableRenderer
type ConfigSource interface {
	Load() (*domain.RunConfig, error)
}

// TableRenderer writes the finished table to its destination
type TableRenderer interface {
	Render(ctx context.Context, table *domain.Table) error
}

// Summary describes a successful run
type Summary struct {
	RunID     string
	SheetName string
	Groups    int
	Records   int
	MaxImages int
	FromCache bool
	Duration  time.Duration
}

// Viewer wires the collaborators of a run
type Viewer struct {
	source   ConfigSource
	fetcher  Fetcher
	cache    store.Store
	renderer TableRenderer
	clock    adapter.Clock
}

// New creates a viewer
func New(source ConfigSource, fetcher Fetcher, cache store.Store, renderer TableRenderer, clock adapter.Clock) *Viewer {
	return &Viewer{
		source:   source,
		fetcher:  fetcher,
		cache:    cache,
		renderer: renderer,
		clock:    clock,
	}
}

// Run loads the records from the cache or the API, groups them by the display traits
// and renders the table. Nothing is rendered when any step fails.
func (v *Viewer) Run(ctx context.Context) (*Summary, error) {
	start := v.clock.Now()
	runID := ulid.MustNewDefault(start).String()
	ctx = logger.WithFields(ctx, zap.String("run_id", runID))

	cfg, err := v.source.Load()
	if err != nil {
		return nil, err
	}

	ctx = logger.WithFields(ctx,
		zap.String("owner", cfg.OwnerAddress),
		zap.String("contract", cfg.ContractAddress),
	)
	logger.InfoCtx(ctx, "Starting run",
		zap.Strings("traits", cfg.DisplayTraits),
		zap.Bool("use_cache", cfg.UseCache),
	)

	owned, fromCache, err := v.loadRecords(ctx, cfg)
	if err != nil {
		return nil, err
	}

	groups := grouping.Group(owned, cfg.DisplayTraits)
	maxImages := groups.MaxMembers()

	layout, err := records.NewLayout(len(cfg.DisplayTraits), maxImages)
	if err != nil {
		return nil, fmt.Errorf("failed to lay out columns: %w", err)
	}

	rows, err := records.NewBuilder(cfg.OwnerAddress, cfg.ContractAddress).Build(groups, layout)
	if err != nil {
		return nil, fmt.Errorf("failed to build rows: %w", err)
	}

	table := &domain.Table{
		SheetName:  domain.SheetKey(cfg.OwnerAddress, cfg.ContractAddress),
		Headers:    records.Headers(cfg.DisplayTraits, maxImages),
		Rows:       rows,
		TraitCount: layout.TraitCount,
		ImageCount: layout.ImageCount,
	}

	if err := v.renderer.Render(ctx, table); err != nil {
		return nil, fmt.Errorf("failed to render table: %w", err)
	}

	summary := &Summary{
		RunID:     runID,
		SheetName: table.SheetName,
		Groups:    groups.Len(),
		Records:   len(owned),
		MaxImages: maxImages,
		FromCache: fromCache,
		Duration:  v.clock.Since(start),
	}

	logger.InfoCtx(ctx, "Run completed",
		zap.Int("groups", summary.Groups),
		zap.Int("records", summary.Records),
		zap.Int("max_images", summary.MaxImages),
		zap.Bool("from_cache", summary.FromCache),
		zap.Duration("duration", summary.Duration),
	)

	return summary, nil
}

// loadRecords returns the cached records when allowed and present, otherwise fetches
// them and refreshes the cache. The bool reports whether the cache was used.
func (v *Viewer) loadRecords(ctx context.Context, cfg *domain.RunConfig) ([]domain.OwnershipRecord, bool, error) {
	cacheOwner, cacheContract := cfg.CacheKey()

	if cfg.UseCache {
		cached, err := v.cache.Read(ctx, cacheOwner, cacheContract)
		switch {
		case err == nil:
			if len(cached) == 0 {
				return nil, true, &domain.EmptyResultError{Source: domain.SOURCE_CACHE}
			}
			logger.InfoCtx(ctx, "Using cached records", zap.Int("records", len(cached)))
			return cached, true, nil
		case errors.Is(err, domain.ErrCacheMiss):
			logger.InfoCtx(ctx, "No usable cache entry, fetching from API")
		default:
			return nil, false, fmt.Errorf("failed to read cache: %w", err)
		}
	}

	fetched, err := v.fetcher.FetchAll(ctx, cfg.Endpoint, cfg.OwnerAddress, cfg.ContractAddress)
	if err != nil {
		return nil, false, fmt.Errorf("failed to fetch NFTs: %w", err)
	}
	if len(fetched) == 0 {
		return nil, false, &domain.EmptyResultError{Source: domain.SOURCE_API}
	}

	if err := v.cache.Write(ctx, cacheOwner, cacheContract, fetched); err != nil {
		return nil, false, fmt.Errorf("failed to write cache: %w", err)
	}

	return fetched, false, nil
}
