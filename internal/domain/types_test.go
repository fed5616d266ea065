package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheAddress(t *testing.T) {
	tests := []struct {
		name    string
		address string
		want    string
	}{
		{
			name:    "checksummed hex address is lowercased",
			address: "0xBC4CA0EdA7647A8aB7C2061c2E118A18a936f13D",
			want:    "0xbc4ca0eda7647a8ab7c2061c2e118a18a936f13d",
		},
		{
			name:    "surrounding whitespace is trimmed",
			address: "  0xabc ",
			want:    "0xabc",
		},
		{
			name:    "ens name is folded",
			address: "Vitalik.eth",
			want:    "vitalik.eth",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CacheAddress(tt.address))
		})
	}
}

func TestRunConfig_CacheKey(t *testing.T) {
	cfg := &RunConfig{OwnerAddress: "Vitalik.eth", ContractAddress: "0xBC4CA0EdA7647A8aB7C2061c2E118A18a936f13D"}

	owner, contract := cfg.CacheKey()
	assert.Equal(t, "vitalik.eth", owner)
	assert.Equal(t, "0xbc4ca0eda7647a8ab7c2061c2e118a18a936f13d", contract)
	assert.Equal(t, "Vitalik.eth", cfg.OwnerAddress, "the run config keeps the entered value")
}

func TestIsHexPrefixed(t *testing.T) {
	assert.True(t, IsHexPrefixed("0xabc"))
	assert.True(t, IsHexPrefixed("0X12"))
	assert.False(t, IsHexPrefixed("vitalik.eth"))
}

func TestSheetKey(t *testing.T) {
	assert.Equal(t, "567890/36f13d", SheetKey("0x1234567890", "0xbc4ca0eda7647a8ab7c2061c2e118a18a936f13d"))
	assert.Equal(t, "abc/def", SheetKey("abc", "def"))
}

func TestErrorTaxonomy(t *testing.T) {
	apiErr := fmt.Errorf("failed to fetch page: %w", &APIError{StatusCode: 500, Body: "boom"})
	assert.True(t, errors.Is(apiErr, ErrAPI))
	assert.Contains(t, apiErr.Error(), "status 500")
	assert.Contains(t, apiErr.Error(), "boom")

	var target *APIError
	assert.True(t, errors.As(apiErr, &target))
	assert.Equal(t, 500, target.StatusCode)

	warning := &CacheCorruptionWarning{OwnerAddress: "0xa", ContractAddress: "0xb", Chunk: 1, Err: errors.New("bad json")}
	assert.True(t, errors.Is(warning, ErrCacheMiss))
	assert.False(t, errors.Is(warning, ErrEmptyResult))

	assert.True(t, errors.Is(&EmptyResultError{Source: SOURCE_CACHE}, ErrEmptyResult))
	assert.Contains(t, (&EmptyResultError{Source: SOURCE_CACHE}).Error(), "from cache")
	assert.True(t, errors.Is(&ChunkingError{Size: 10, Ceiling: 5}, ErrChunking))
	assert.True(t, errors.Is(NewConfigError("owner_address", "is required"), ErrInvalidConfig))
}
