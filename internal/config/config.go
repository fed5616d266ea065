package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// SERVICE_NAME is used for env file lookup and the default config directory
	SERVICE_NAME = "trait-viewer"

	// ENV_PREFIX is the environment variable prefix, e.g. NFT_VIEWER_RUN_OWNER_ADDRESS
	ENV_PREFIX = "NFT_VIEWER"
)

// Cache drivers
const (
	CacheDriverWorkbook = "workbook"
	CacheDriverPostgres = "postgres"
	CacheDriverSQLite   = "sqlite"
)

// Default chunk ceilings per cache driver, in characters
const (
	// DefaultWorkbookChunkCeiling stays below the 32,767 character XLSX cell limit
	DefaultWorkbookChunkCeiling = 30000
	// DefaultDBChunkCeiling mirrors the hosted spreadsheet cell limit the cache layout was designed for
	DefaultDBChunkCeiling = 45000
)

// BaseConfig holds base configuration
type BaseConfig struct {
	Debug     bool   `mapstructure:"debug"`
	SentryDSN string `mapstructure:"sentry_dsn"`
}

// IndexerConfig holds the indexing API configuration
type IndexerConfig struct {
	// Endpoint is the Alchemy NFT API base URL, including the API key path segment
	Endpoint    string        `mapstructure:"endpoint"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
}

// RunConfig holds the owner/contract pair and the traits to display
type RunConfig struct {
	OwnerAddress    string   `mapstructure:"owner_address"`
	ContractAddress string   `mapstructure:"contract_address"`
	DisplayTraits   []string `mapstructure:"display_traits"`
	UseCache        bool     `mapstructure:"use_cache"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`     // Maximum number of open connections to the database
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`     // Maximum number of idle connections in the pool
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`  // Maximum amount of time a connection may be reused (e.g., "5m", "1h")
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"` // Maximum amount of time a connection may be idle (e.g., "10m", "30m")
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`    // Total time spent retrying the initial connection
}

// CacheConfig holds cache store configuration
type CacheConfig struct {
	Driver string `mapstructure:"driver"`
	// ChunkCeiling is the maximum size of a stored chunk in characters, 0 selects the driver default
	ChunkCeiling int            `mapstructure:"chunk_ceiling"`
	WorkbookPath string         `mapstructure:"workbook_path"`
	SQLitePath   string         `mapstructure:"sqlite_path"`
	Database     DatabaseConfig `mapstructure:"database"`
}

// OutputConfig holds the rendered workbook configuration
type OutputConfig struct {
	Path string `mapstructure:"path"`
}

// ViewerConfig holds configuration for trait-viewer
type ViewerConfig struct {
	BaseConfig `mapstructure:",squash"`
	Indexer    IndexerConfig `mapstructure:"indexer"`
	Run        RunConfig     `mapstructure:"run"`
	Cache      CacheConfig   `mapstructure:"cache"`
	Output     OutputConfig  `mapstructure:"output"`
}

// EffectiveChunkCeiling returns the configured ceiling or the default for the driver
func (c *CacheConfig) EffectiveChunkCeiling() int {
	if c.ChunkCeiling > 0 {
		return c.ChunkCeiling
	}
	if c.Driver == CacheDriverWorkbook {
		return DefaultWorkbookChunkCeiling
	}
	return DefaultDBChunkCeiling
}

// LoadViewerConfig loads configuration for trait-viewer
func LoadViewerConfig(configFile string, envPath string) (*ViewerConfig, error) {
	v := configureViper(SERVICE_NAME, configFile, envPath)

	// Set defaults
	v.SetDefault("debug", false)
	v.SetDefault("indexer.http_timeout", "30s")
	v.SetDefault("run.use_cache", true)
	v.SetDefault("cache.driver", CacheDriverWorkbook)
	v.SetDefault("cache.chunk_ceiling", 0)
	v.SetDefault("cache.workbook_path", "nft-traits.xlsx")
	v.SetDefault("cache.sqlite_path", "nft-traits-cache.db")
	v.SetDefault("cache.database.port", 5432)
	v.SetDefault("cache.database.sslmode", "disable")
	v.SetDefault("cache.database.max_open_conns", 2)
	v.SetDefault("cache.database.max_idle_conns", 1)
	v.SetDefault("cache.database.connect_timeout", "30s")
	v.SetDefault("output.path", "nft-traits.xlsx")

	if err := v.ReadInConfig(); err != nil {
		var error viper.ConfigFileNotFoundError
		if errors.As(err, &error) {
			// Config file not found, use environment variables
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config ViewerConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// configureViper returns a viper instance with the config file and environment variables set
func configureViper(service string, configFile string, envPath string) *viper.Viper {
	v := viper.New()

	// Load environment variables
	loadEnv(envPath, service)

	// Set config file
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		// Search for config.yaml in multiple locations:
		// 1. Current directory
		v.AddConfigPath(".")
		// 2. Service-specific directory (cmd/trait-viewer/)
		v.AddConfigPath(fmt.Sprintf("cmd/%s/", service))
		// 3. Config directory
		v.AddConfigPath("config/")
	}

	// Set environment variables
	v.SetEnvPrefix(ENV_PREFIX)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicitly bind all environment variables
	bindAllEnvVars(v)
	return v
}

// bindAllEnvVars explicitly binds all possible environment variables
// This is required for viper to map env vars to config struct fields when no config file exists
func bindAllEnvVars(v *viper.Viper) {
	keys := []string{
		"debug",
		"sentry_dsn",
		// Indexer
		"indexer.endpoint",
		"indexer.http_timeout",
		// Run
		"run.owner_address",
		"run.contract_address",
		"run.display_traits",
		"run.use_cache",
		// Cache
		"cache.driver",
		"cache.chunk_ceiling",
		"cache.workbook_path",
		"cache.sqlite_path",
		"cache.database.host",
		"cache.database.port",
		"cache.database.user",
		"cache.database.password",
		"cache.database.dbname",
		"cache.database.sslmode",
		"cache.database.max_open_conns",
		"cache.database.max_idle_conns",
		"cache.database.conn_max_lifetime",
		"cache.database.conn_max_idle_time",
		"cache.database.connect_timeout",
		// Output
		"output.path",
	}

	for _, key := range keys {
		_ = v.BindEnv(key)
	}
}

// loadEnv loads environment variables from the config directory
func loadEnv(envPath string, service string) {
	// Always try shared base first, then local, then optional per-service local.
	envFiles := []string{".env", ".env.local"}
	if service != "" {
		envFiles = append(envFiles, ".env."+service+".local")
	}

	// Default to config directory
	if envPath == "" {
		envPath = "config/"
	}

	for _, envFile := range envFiles {
		candidate := filepath.Join(envPath, envFile)
		_ = godotenv.Overload(candidate) // Overload lets later files override earlier ones
	}
}

// ChdirRepoRoot changes the current working directory to the repository root
func ChdirRepoRoot() {
	cwd, _ := os.Getwd()
	for range 5 {
		if _, err := os.Stat(filepath.Join(cwd, "config")); err == nil {
			_ = os.Chdir(cwd)
			return
		}
		cwd = filepath.Dir(cwd)
	}
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
