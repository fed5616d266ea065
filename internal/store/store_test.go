package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/feral-file/nft-trait-viewer/internal/adapter"
	"github.com/feral-file/nft-trait-viewer/internal/config"
	"github.com/feral-file/nft-trait-viewer/internal/domain"
	"github.com/feral-file/nft-trait-viewer/internal/mocks"
	"github.com/feral-file/nft-trait-viewer/internal/store/schema"
)

const (
	testOwner    = "0x1234567890123456789012345678901234567890"
	testContract = "0xBC4CA0EdA7647A8aB7C2061c2E118A18a936f13D"
	otherOwner   = "0xABCDEFabcdefABCDEFabcdefABCDEFabcdef0001"

	// testChunkCeiling forces several chunks for a few dozen records
	testChunkCeiling = 800
)

var testCachedAt = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

// storeHarness opens a fresh store for each test and knows how to damage a stored entry
type storeHarness struct {
	open    func(t *testing.T) Store
	corrupt func(t *testing.T, ownerAddress, contractAddress string)
}

func newTestClock(t *testing.T) *mocks.MockClock {
	ctrl := gomock.NewController(t)
	clock := mocks.NewMockClock(ctrl)
	clock.EXPECT().Now().Return(testCachedAt).AnyTimes()
	return clock
}

// =============================================================================
// Shared store tests
// =============================================================================

func testReadMiss(t *testing.T, h storeHarness) {
	store := h.open(t)
	ctx := context.Background()

	_, err := store.Read(ctx, testOwner, testContract)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrCacheMiss))

	var warning *domain.CacheCorruptionWarning
	assert.False(t, errors.As(err, &warning), "a plain miss is not a corruption")
}

func testWriteThenRead(t *testing.T, h storeHarness) {
	store := h.open(t)
	ctx := context.Background()
	records := buildTestRecords(40)

	require.NoError(t, store.Write(ctx, testOwner, testContract, records))

	got, err := store.Read(ctx, testOwner, testContract)
	require.NoError(t, err)
	assert.Equal(t, records, got)

	// Other keys stay missing
	_, err = store.Read(ctx, otherOwner, testContract)
	assert.True(t, errors.Is(err, domain.ErrCacheMiss))
}

func testRewriteReplacesChunks(t *testing.T, h storeHarness) {
	store := h.open(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, testOwner, testContract, buildTestRecords(60)))

	fewer := buildTestRecords(3)
	require.NoError(t, store.Write(ctx, testOwner, testContract, fewer))

	got, err := store.Read(ctx, testOwner, testContract)
	require.NoError(t, err)
	assert.Equal(t, fewer, got, "stale chunks from the longer write must be gone")
}

func testKeysAreIndependent(t *testing.T, h storeHarness) {
	store := h.open(t)
	ctx := context.Background()

	first := buildTestRecords(5)
	second := buildTestRecords(9)[4:]

	require.NoError(t, store.Write(ctx, testOwner, testContract, first))
	require.NoError(t, store.Write(ctx, otherOwner, testContract, second))
	require.NoError(t, store.Write(ctx, testOwner, testContract, first[:2]))

	got, err := store.Read(ctx, testOwner, testContract)
	require.NoError(t, err)
	assert.Equal(t, first[:2], got)

	got, err = store.Read(ctx, otherOwner, testContract)
	require.NoError(t, err)
	assert.Equal(t, second, got)
}

func testCorruptedEntry(t *testing.T, h storeHarness) {
	store := h.open(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, testOwner, testContract, buildTestRecords(10)))
	h.corrupt(t, testOwner, testContract)

	_, err := store.Read(ctx, testOwner, testContract)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrCacheMiss), "corruption reads as a miss")

	var warning *domain.CacheCorruptionWarning
	require.True(t, errors.As(err, &warning))
	assert.Equal(t, 0, warning.Chunk)

	// A fresh write repairs the entry
	records := buildTestRecords(4)
	require.NoError(t, store.Write(ctx, testOwner, testContract, records))
	got, err := store.Read(ctx, testOwner, testContract)
	require.NoError(t, err)
	assert.Equal(t, records, got)
}

func testOversizeRecordWritesNothing(t *testing.T, h storeHarness) {
	store := h.open(t)
	ctx := context.Background()

	original := buildTestRecords(6)
	require.NoError(t, store.Write(ctx, testOwner, testContract, original))

	records := buildTestRecords(6)
	records[5].ImageURL = "https://example.com/" + strings.Repeat("a", testChunkCeiling)

	err := store.Write(ctx, testOwner, testContract, records)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrChunking))

	got, err := store.Read(ctx, testOwner, testContract)
	require.NoError(t, err)
	assert.Equal(t, original, got, "a failed encode leaves the previous entry untouched")
}

// RunStoreTests runs the shared store tests against one backend
func RunStoreTests(t *testing.T, h storeHarness) {
	tests := []struct {
		name string
		fn   func(*testing.T, storeHarness)
	}{
		{"ReadMiss", testReadMiss},
		{"WriteThenRead", testWriteThenRead},
		{"RewriteReplacesChunks", testRewriteReplacesChunks},
		{"KeysAreIndependent", testKeysAreIndependent},
		{"CorruptedEntry", testCorruptedEntry},
		{"OversizeRecordWritesNothing", testOversizeRecordWritesNothing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, h)
		})
	}
}

// corruptFirstChunk overwrites chunk 0 of an entry with valid JSON that is not a record array
func corruptFirstChunk(t *testing.T, db *gorm.DB, ownerAddress, contractAddress string) {
	var entry schema.OwnershipCache
	require.NoError(t, db.Where("owner_address = ? AND contract_address = ?", ownerAddress, contractAddress).First(&entry).Error)
	require.NoError(t, db.Model(&schema.OwnershipCacheChunk{}).
		Where("cache_id = ? AND position = 0", entry.ID).
		Update("content", `{"broken":true}`).Error)
}

// =============================================================================
// Backends
// =============================================================================

func TestWorkbookStore(t *testing.T) {
	var path string

	RunStoreTests(t, storeHarness{
		open: func(t *testing.T) Store {
			path = filepath.Join(t.TempDir(), "cache.xlsx")
			store, err := NewWorkbookStore(path, newTestCodec(t, testChunkCeiling), newTestClock(t))
			require.NoError(t, err)
			return store
		},
		corrupt: func(t *testing.T, ownerAddress, contractAddress string) {
			f, err := excelize.OpenFile(path)
			require.NoError(t, err)
			defer f.Close()

			rows, err := f.GetRows(CACHE_SHEET_NAME)
			require.NoError(t, err)
			row := findCacheRow(rows, ownerAddress, contractAddress)
			require.NotEqual(t, -1, row)

			cell, err := excelize.CoordinatesToCellName(firstChunkColumn, row+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellStr(CACHE_SHEET_NAME, cell, `[{"token_id":`))
			require.NoError(t, f.SaveAs(path))
		},
	})
}

func TestSQLiteStore(t *testing.T) {
	var db *gorm.DB

	RunStoreTests(t, storeHarness{
		open: func(t *testing.T) Store {
			var err error
			db, err = OpenDB(context.Background(), config.CacheConfig{
				Driver:     config.CacheDriverSQLite,
				SQLitePath: filepath.Join(t.TempDir(), "cache.db"),
				Database:   config.DatabaseConfig{ConnectTimeout: 5 * time.Second},
			})
			require.NoError(t, err)

			store := NewDBStore(db, newTestCodec(t, testChunkCeiling), newTestClock(t))
			t.Cleanup(func() { _ = store.Close() })
			return store
		},
		corrupt: func(t *testing.T, ownerAddress, contractAddress string) {
			corruptFirstChunk(t, db, ownerAddress, contractAddress)
		},
	})
}

func TestWorkbookStore_Layout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.xlsx")
	store, err := NewWorkbookStore(path, newTestCodec(t, testChunkCeiling), newTestClock(t))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Write(ctx, testOwner, testContract, buildTestRecords(30)))
	require.NoError(t, store.Write(ctx, otherOwner, testContract, buildTestRecords(1)))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(CACHE_SHEET_NAME)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, []string{domain.HEADER_OWNER_ADDRESS, domain.HEADER_CONTRACT_ADDRESS, domain.HEADER_TIMESTAMP}, rows[0])
	assert.Equal(t, testOwner, rows[1][0])
	assert.Equal(t, testContract, rows[1][1])
	assert.Equal(t, "2026-03-14T09:30:00Z", rows[1][2])
	assert.Greater(t, len(rows[1]), firstChunkColumn, "30 records need several chunk cells")
	assert.Equal(t, otherOwner, rows[2][0])
	assert.Len(t, rows[2], firstChunkColumn)
}

func TestWorkbookStore_ReadsExistingWorkbookWithoutCacheSheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	store, err := NewWorkbookStore(path, newTestCodec(t, testChunkCeiling), newTestClock(t))
	require.NoError(t, err)

	_, err = store.Read(context.Background(), testOwner, testContract)
	assert.True(t, errors.Is(err, domain.ErrCacheMiss))
}

func TestNewWorkbookStore_CeilingAboveCellLimit(t *testing.T) {
	_, err := NewWorkbookStore("cache.xlsx", newTestCodec(t, excelize.TotalCellChars+1), newTestClock(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidConfig))
}

func TestDBStore_RecordsEntryMetadata(t *testing.T) {
	db, err := OpenDB(context.Background(), config.CacheConfig{
		Driver:     config.CacheDriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "cache.db"),
	})
	require.NoError(t, err)

	store := NewDBStore(db, newTestCodec(t, testChunkCeiling), newTestClock(t))
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Write(ctx, testOwner, testContract, buildTestRecords(25)))
	require.NoError(t, store.Write(ctx, testOwner, testContract, buildTestRecords(7)))

	var entries []schema.OwnershipCache
	require.NoError(t, db.Preload("Chunks").Find(&entries).Error)
	require.Len(t, entries, 1, "rewrites keep a single entry per key")
	assert.Equal(t, 7, entries[0].RecordCount)
	assert.True(t, entries[0].CachedAt.Equal(testCachedAt))
	require.NotEmpty(t, entries[0].Chunks)

	var positions []int
	require.NoError(t, db.Model(&schema.OwnershipCacheChunk{}).Order("position").Pluck("position", &positions).Error)
	for i, position := range positions {
		assert.Equal(t, i, position)
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     config.CacheConfig
		want    interface{}
		wantErr error
	}{
		{
			name: "workbook",
			cfg:  config.CacheConfig{Driver: config.CacheDriverWorkbook, WorkbookPath: filepath.Join(dir, "cache.xlsx")},
			want: &WorkbookStore{},
		},
		{
			name: "sqlite",
			cfg:  config.CacheConfig{Driver: config.CacheDriverSQLite, SQLitePath: filepath.Join(dir, "cache.db")},
			want: &DBStore{},
		},
		{
			name:    "unknown driver",
			cfg:     config.CacheConfig{Driver: "redis"},
			wantErr: domain.ErrInvalidConfig,
		},
		{
			name:    "workbook ceiling too large",
			cfg:     config.CacheConfig{Driver: config.CacheDriverWorkbook, WorkbookPath: "x.xlsx", ChunkCeiling: 40000},
			wantErr: domain.ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := Open(context.Background(), tt.cfg, adapter.NewJSON(), adapter.NewJCS(), newTestClock(t))
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			defer store.Close()
			assert.IsType(t, tt.want, store)
		})
	}
}

func TestNormalizeConnectionPoolSettings(t *testing.T) {
	open, idle, lifetime, idleTime := NormalizeConnectionPoolSettings(0, 0, 0, 0)
	assert.Equal(t, 2, open)
	assert.Equal(t, 1, idle)
	assert.Equal(t, 5*time.Minute, lifetime)
	assert.Equal(t, 10*time.Minute, idleTime)

	open, idle, _, _ = NormalizeConnectionPoolSettings(1, 4, time.Minute, time.Minute)
	assert.Equal(t, 1, open)
	assert.Equal(t, 1, idle, "idle connections are clamped to the open limit")
}
