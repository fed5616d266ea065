package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/feral-file/nft-trait-viewer/internal/domain"
)

// XLSXCellLimit is the maximum number of characters an XLSX cell can hold
const XLSXCellLimit = 32767

// Source supplies the run configuration from a loaded ViewerConfig
type Source struct {
	indexer IndexerConfig
	run     RunConfig
}

// NewSource creates a configuration source for the orchestrator
func NewSource(cfg *ViewerConfig) *Source {
	return &Source{
		indexer: cfg.Indexer,
		run:     cfg.Run,
	}
}

// Load validates the configuration and returns the run parameters.
// The owner may be an ENS name; hex values and the contract must be valid addresses.
func (s *Source) Load() (*domain.RunConfig, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(s.indexer.Endpoint), "/")
	if endpoint == "" {
		return nil, domain.NewConfigError("indexer.endpoint", "is required")
	}
	if !strings.HasPrefix(endpoint, "https://") {
		return nil, domain.NewConfigError("indexer.endpoint", "must start with https://")
	}

	owner := strings.TrimSpace(s.run.OwnerAddress)
	contract := strings.TrimSpace(s.run.ContractAddress)
	if owner == "" || contract == "" {
		return nil, domain.NewConfigError("run.owner_address and run.contract_address", "must both be set")
	}
	if domain.IsHexPrefixed(owner) && !domain.IsEthereumAddress(owner) {
		return nil, domain.NewConfigError("run.owner_address", fmt.Sprintf("%q is not a valid address", owner))
	}
	if !domain.IsEthereumAddress(contract) {
		return nil, domain.NewConfigError("run.contract_address", fmt.Sprintf("%q is not a valid address", contract))
	}

	traits := CleanTraits(s.run.DisplayTraits)
	if len(traits) == 0 {
		return nil, domain.NewConfigError("run.display_traits", "must list at least one trait")
	}

	return &domain.RunConfig{
		Endpoint:        endpoint,
		OwnerAddress:    owner,
		ContractAddress: contract,
		DisplayTraits:   traits,
		UseCache:        s.run.UseCache,
	}, nil
}

// CleanTraits trims trait names and drops blank ones, keeping order
func CleanTraits(traits []string) []string {
	cleaned := make([]string, 0, len(traits))
	for _, trait := range traits {
		trait = strings.TrimSpace(trait)
		if trait != "" {
			cleaned = append(cleaned, trait)
		}
	}
	return cleaned
}

// ValidateCache checks the cache settings before any store is opened
func ValidateCache(c *CacheConfig) error {
	switch c.Driver {
	case CacheDriverWorkbook:
		if c.WorkbookPath == "" {
			return domain.NewConfigError("cache.workbook_path", "is required for the workbook driver")
		}
		if c.EffectiveChunkCeiling() > XLSXCellLimit {
			return domain.NewConfigError("cache.chunk_ceiling", fmt.Sprintf("must not exceed %d for the workbook driver", XLSXCellLimit))
		}
	case CacheDriverSQLite:
		if c.SQLitePath == "" {
			return domain.NewConfigError("cache.sqlite_path", "is required for the sqlite driver")
		}
	case CacheDriverPostgres:
		if c.Database.Host == "" || c.Database.DBName == "" {
			return domain.NewConfigError("cache.database", "host and dbname are required for the postgres driver")
		}
	default:
		return domain.NewConfigError("cache.driver", fmt.Sprintf("unknown driver %q", c.Driver))
	}

	if c.ChunkCeiling < 0 {
		return domain.NewConfigError("cache.chunk_ceiling", "must be positive")
	}

	return nil
}

// WriteTemplate writes a starter config file. It refuses to overwrite an existing file.
func WriteTemplate(path string) error {
	v := viper.New()
	v.SetConfigType("yaml")
	v.Set("indexer.endpoint", "https://eth-mainnet.g.alchemy.com/nft/v2/<api-key>")
	v.Set("indexer.http_timeout", "30s")
	v.Set("run.owner_address", "")
	v.Set("run.contract_address", "")
	v.Set("run.display_traits", []string{"Background", "Eyes"})
	v.Set("run.use_cache", true)
	v.Set("cache.driver", CacheDriverWorkbook)
	v.Set("cache.workbook_path", "nft-traits.xlsx")
	v.Set("output.path", "nft-traits.xlsx")

	if err := v.SafeWriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config template: %w", err)
	}
	return nil
}
