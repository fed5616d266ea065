package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/feral-file/nft-trait-viewer/internal/adapter"
	"github.com/feral-file/nft-trait-viewer/internal/config"
	"github.com/feral-file/nft-trait-viewer/internal/domain"
	"github.com/feral-file/nft-trait-viewer/internal/logger"
	"github.com/feral-file/nft-trait-viewer/internal/providers/alchemy"
	"github.com/feral-file/nft-trait-viewer/internal/render"
	"github.com/feral-file/nft-trait-viewer/internal/store"
	"github.com/feral-file/nft-trait-viewer/internal/viewer"
)

// overrides holds command line values that take precedence over the config file and env
type overrides struct {
	owner    string
	contract string
	traits   string
	noCache  bool
	output   string
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "setup" {
		os.Exit(runSetup(os.Args[2:], os.Stdout, os.Stderr))
	}
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// runSetup writes a starter config file
func runSetup(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("setup", flag.ContinueOnError)
	fs.SetOutput(stderr)
	path := fs.String("path", "config/config.yaml", "Where to write the config template")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if err := config.WriteTemplate(*path); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Wrote config template to %s\n", *path)
	return 0
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("trait-viewer", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configFile := fs.String("config", "", "Path to configuration file")
	envPath := fs.String("env", "config/", "Path to environment files")

	var o overrides
	fs.StringVar(&o.owner, "owner", "", "Owner wallet address")
	fs.StringVar(&o.contract, "contract", "", "NFT contract address")
	fs.StringVar(&o.traits, "traits", "", "Comma separated trait names to group by")
	fs.BoolVar(&o.noCache, "no-cache", false, "Always fetch from the API (the cache is still refreshed)")
	fs.StringVar(&o.output, "output", "", "Path of the output workbook")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadViewerConfig(*configFile, *envPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	o.apply(cfg)

	// Cancel the run on interrupt
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": config.SERVICE_NAME,
		},
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to initialize logger: %v\n", err)
		return 1
	}
	defer logger.Flush(2 * time.Second)

	// Validate before touching the cache backend
	source := config.NewSource(cfg)
	if _, err := source.Load(); err != nil {
		fmt.Fprintln(stderr, userMessage(err))
		return 1
	}

	json := adapter.NewJSON()
	clock := adapter.NewClock()

	cache, err := store.Open(ctx, cfg.Cache, json, adapter.NewJCS(), clock)
	if err != nil {
		logger.ErrorCtx(ctx, "Failed to open cache", zap.Error(err), zap.String("driver", cfg.Cache.Driver))
		fmt.Fprintln(stderr, userMessage(err))
		return 1
	}
	defer func() {
		if err := cache.Close(); err != nil {
			logger.WarnCtx(ctx, "Failed to close cache", zap.Error(err))
		}
	}()

	fetcher := alchemy.NewClient(adapter.NewHTTPClient(cfg.Indexer.HTTPTimeout), json)
	renderer := render.NewXLSXRenderer(cfg.Output.Path)

	summary, err := viewer.New(source, fetcher, cache, renderer, clock).Run(ctx)
	if err != nil {
		logger.ErrorCtx(ctx, "Run failed", zap.Error(err))
		fmt.Fprintln(stderr, userMessage(err))
		return 1
	}

	origin := "API"
	if summary.FromCache {
		origin = "cache"
	}
	fmt.Fprintf(stdout, "Wrote %d trait groups (%d NFTs from %s) to sheet %q in %s\n",
		summary.Groups, summary.Records, origin, render.SheetName(summary.SheetName), cfg.Output.Path)

	return 0
}

// apply copies every flag that was set onto the loaded configuration
func (o overrides) apply(cfg *config.ViewerConfig) {
	if o.owner != "" {
		cfg.Run.OwnerAddress = o.owner
	}
	if o.contract != "" {
		cfg.Run.ContractAddress = o.contract
	}
	if o.traits != "" {
		cfg.Run.DisplayTraits = config.CleanTraits(strings.Split(o.traits, ","))
	}
	if o.noCache {
		cfg.Run.UseCache = false
	}
	if o.output != "" {
		cfg.Output.Path = o.output
	}
}

// userMessage turns a run error into the single line shown to the user
func userMessage(err error) string {
	var apiErr *domain.APIError
	var chunkErr *domain.ChunkingError

	switch {
	case errors.Is(err, domain.ErrInvalidConfig):
		return fmt.Sprintf("Configuration error: %v", err)
	case errors.As(err, &apiErr):
		return fmt.Sprintf("Error: %v", apiErr)
	case errors.Is(err, domain.ErrEmptyResult):
		var emptyErr *domain.EmptyResultError
		if errors.As(err, &emptyErr) {
			return fmt.Sprintf("Error: %v", emptyErr)
		}
		return fmt.Sprintf("Error: %v", err)
	case errors.As(err, &chunkErr):
		return fmt.Sprintf("Error: token %s is too large to cache (%d characters, limit %d)", chunkErr.TokenID, chunkErr.Size, chunkErr.Ceiling)
	case errors.Is(err, context.Canceled):
		return "Error: interrupted"
	default:
		return fmt.Sprintf("Error: %v", err)
	}
}
