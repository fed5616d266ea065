package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/feral-file/nft-trait-viewer/internal/adapter"
	"github.com/feral-file/nft-trait-viewer/internal/domain"
	"github.com/feral-file/nft-trait-viewer/internal/logger"
)

const (
	// CACHE_SHEET_NAME is the workbook sheet holding cache rows
	CACHE_SHEET_NAME = "Cache"

	// firstChunkColumn is the 1-based column of the first chunk cell (D)
	firstChunkColumn = 4
)

// WorkbookStore keeps the cache in a sheet of an XLSX workbook.
// Row 1 is the header [Owner Address, Contract Address, Timestamp]; every other row is
// [owner, contract, timestamp, chunk 1, chunk 2, ...].
type WorkbookStore struct {
	path  string
	codec *ChunkCodec
	clock adapter.Clock
}

// NewWorkbookStore creates a workbook-backed cache store
func NewWorkbookStore(path string, codec *ChunkCodec, clock adapter.Clock) (*WorkbookStore, error) {
	if codec.Ceiling() > excelize.TotalCellChars {
		return nil, fmt.Errorf("%w: chunk ceiling %d exceeds the workbook cell limit of %d",
			domain.ErrInvalidConfig, codec.Ceiling(), excelize.TotalCellChars)
	}

	return &WorkbookStore{
		path:  path,
		codec: codec,
		clock: clock,
	}, nil
}

// Read looks up the row of the owner/contract pair and decodes its chunks
func (s *WorkbookStore) Read(ctx context.Context, ownerAddress, contractAddress string) ([]domain.OwnershipRecord, error) {
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		return nil, domain.ErrCacheMiss
	}

	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache workbook: %w", err)
	}
	defer closeWorkbook(f)

	index, err := f.GetSheetIndex(CACHE_SHEET_NAME)
	if err != nil {
		return nil, fmt.Errorf("failed to look up cache sheet: %w", err)
	}
	if index == -1 {
		return nil, domain.ErrCacheMiss
	}

	rows, err := f.GetRows(CACHE_SHEET_NAME)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache sheet: %w", err)
	}

	rowIndex := findCacheRow(rows, ownerAddress, contractAddress)
	if rowIndex == -1 {
		return nil, domain.ErrCacheMiss
	}

	chunks := chunkCells(rows[rowIndex])
	records, err := decodeEntry(s.codec, ownerAddress, contractAddress, chunks)
	if err != nil {
		logger.WarnCtx(ctx, "Ignoring corrupted cache entry", zap.Error(err), zap.Int("row", rowIndex+1))
		return nil, err
	}

	logger.DebugCtx(ctx, "Read cache entry from workbook",
		zap.Int("row", rowIndex+1),
		zap.Int("chunks", len(chunks)),
		zap.Int("records", len(records)),
	)

	return records, nil
}

// Write encodes the records first, then rewrites the pair's row, clearing every chunk cell
// left by a previous write
func (s *WorkbookStore) Write(ctx context.Context, ownerAddress, contractAddress string, records []domain.OwnershipRecord) error {
	chunks, err := s.codec.Encode(records)
	if err != nil {
		return err
	}

	f, err := s.openOrCreate()
	if err != nil {
		return err
	}
	defer closeWorkbook(f)

	if err := ensureCacheSheet(f); err != nil {
		return err
	}

	rows, err := f.GetRows(CACHE_SHEET_NAME)
	if err != nil {
		return fmt.Errorf("failed to read cache sheet: %w", err)
	}

	rowIndex := findCacheRow(rows, ownerAddress, contractAddress)
	if rowIndex == -1 {
		rowIndex = max(len(rows), 1)
	} else {
		for col := firstChunkColumn; col <= len(rows[rowIndex]); col++ {
			cell, err := excelize.CoordinatesToCellName(col, rowIndex+1)
			if err != nil {
				return fmt.Errorf("failed to address stale chunk cell: %w", err)
			}
			if err := f.SetCellValue(CACHE_SHEET_NAME, cell, nil); err != nil {
				return fmt.Errorf("failed to clear stale chunk cell %s: %w", cell, err)
			}
		}
	}

	values := make([]interface{}, 0, firstChunkColumn-1+len(chunks))
	values = append(values, ownerAddress, contractAddress, s.clock.Now().UTC().Format(time.RFC3339))
	for _, chunk := range chunks {
		values = append(values, chunk)
	}

	start, err := excelize.CoordinatesToCellName(1, rowIndex+1)
	if err != nil {
		return fmt.Errorf("failed to address cache row: %w", err)
	}
	if err := f.SetSheetRow(CACHE_SHEET_NAME, start, &values); err != nil {
		return fmt.Errorf("failed to write cache row: %w", err)
	}

	if err := f.SaveAs(s.path); err != nil {
		return fmt.Errorf("failed to save cache workbook: %w", err)
	}

	logger.InfoCtx(ctx, "Wrote cache entry to workbook",
		zap.Int("row", rowIndex+1),
		zap.Int("chunks", len(chunks)),
		zap.Int("records", len(records)),
	)

	return nil
}

// Close is a no-op; the workbook is opened and saved per call
func (s *WorkbookStore) Close() error {
	return nil
}

func (s *WorkbookStore) openOrCreate() (*excelize.File, error) {
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		return excelize.NewFile(), nil
	}

	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache workbook: %w", err)
	}
	return f, nil
}

// ensureCacheSheet creates the cache sheet with its header row when missing
func ensureCacheSheet(f *excelize.File) error {
	index, err := f.GetSheetIndex(CACHE_SHEET_NAME)
	if err != nil {
		return fmt.Errorf("failed to look up cache sheet: %w", err)
	}
	if index != -1 {
		return nil
	}

	if _, err := f.NewSheet(CACHE_SHEET_NAME); err != nil {
		return fmt.Errorf("failed to create cache sheet: %w", err)
	}

	header := []interface{}{domain.HEADER_OWNER_ADDRESS, domain.HEADER_CONTRACT_ADDRESS, domain.HEADER_TIMESTAMP}
	if err := f.SetSheetRow(CACHE_SHEET_NAME, "A1", &header); err != nil {
		return fmt.Errorf("failed to write cache header: %w", err)
	}

	return nil
}

// findCacheRow returns the 0-based index of the row for the pair, skipping the header, or -1
func findCacheRow(rows [][]string, ownerAddress, contractAddress string) int {
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		if len(row) < 2 {
			continue
		}
		if strings.EqualFold(row[0], ownerAddress) && strings.EqualFold(row[1], contractAddress) {
			return i
		}
	}
	return -1
}

// chunkCells returns the chunk cells of a row, stopping at the first blank cell
func chunkCells(row []string) []string {
	var chunks []string
	for col := firstChunkColumn - 1; col < len(row); col++ {
		if row[col] == "" {
			break
		}
		chunks = append(chunks, row[col])
	}
	return chunks
}

func closeWorkbook(f *excelize.File) {
	if err := f.Close(); err != nil {
		logger.Warn("failed to close workbook", zap.Error(err))
	}
}
