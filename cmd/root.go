// Package cmd implements the CLI commands using Cobra.
package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tapfeed/internal/browser"
	"tapfeed/internal/config"
	"tapfeed/internal/download"
	"tapfeed/internal/hls"
	"tapfeed/internal/httputil"
	"tapfeed/internal/jobs"
	"tapfeed/internal/store"
	"tapfeed/internal/taptap"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Global flags
var (
	flagCacheDir  string
	flagChrome    string
	flagWebhook   string
	flagNoBrowser bool
	flagDebug     bool
)

// cfg and logger are populated by loadConfig before any command runs.
var (
	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "tapfeed",
	Short: "Extract and track TapTap developer updates",
	Long: `Tapfeed extracts structured content from TapTap moments — text, images
and playable video URLs — and can poll subscribed developers for updates,
downloading videos and pushing bundles to a delivery sink.`,
	PersistentPreRunE: loadConfig,
	SilenceUsage:      true,
}

// Execute runs the root command.
func Execute() {
	defer func() {
		if logger != nil {
			logger.Sync()
		}
	}()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagCacheDir, "cache-dir", "", "Video cache directory")
	rootCmd.PersistentFlags().StringVar(&flagChrome, "chrome", "", "Path to the Chrome/Chromium binary")
	rootCmd.PersistentFlags().StringVar(&flagWebhook, "webhook", "", "Deliver updates to this HTTP endpoint")
	rootCmd.PersistentFlags().BoolVar(&flagNoBrowser, "no-browser", false, "Disable the headless-browser extraction path")
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "x", false, "Debug logging")

	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(latestCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(subscribeCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads and merges configuration: defaults < config file < CLI flags.
func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if flagCacheDir != "" {
		cfg.CacheDir = flagCacheDir
	}
	if flagChrome != "" {
		cfg.ChromePath = flagChrome
	}
	if flagWebhook != "" {
		cfg.WebhookURL = flagWebhook
	}
	if flagDebug {
		cfg.Debug = true
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.Debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	return nil
}

// app bundles the wired components a command needs. Fields stay nil when the
// command did not ask for them.
type app struct {
	http       *http.Client
	client     *taptap.Client
	pool       *browser.Pool
	extractor  *taptap.Extractor
	ledger     *jobs.Ledger
	downloader *download.Downloader
	store      *store.Store
}

func (a *app) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
	if a.ledger != nil {
		a.ledger.Close()
	}
}

// newApp wires the extraction stack. withBrowser is still subject to the
// --no-browser flag.
func newApp(ctx context.Context, withBrowser, withDownloader, withStore bool) (*app, error) {
	a := &app{
		http: httputil.NewClient(time.Duration(cfg.HTTPTimeoutSeconds) * time.Second),
	}
	a.client = taptap.NewClient(a.http, logger)

	var b taptap.Browser
	if withBrowser && !flagNoBrowser {
		a.pool = browser.NewPool(ctx, browser.Config{
			ChromePath:  cfg.ChromePath,
			Sessions:    cfg.BrowserSessions,
			PageTimeout: time.Duration(cfg.BrowserTimeoutSeconds) * time.Second,
			Settle:      time.Duration(cfg.SettleSeconds) * time.Second,
		}, logger)
		b = a.pool
	}
	a.extractor = taptap.NewExtractor(a.client, b, logger)

	if withDownloader {
		cacheDir, err := cfg.ExpandCacheDir()
		if err != nil {
			a.Close()
			return nil, err
		}
		jobsPath, err := cfg.JobsPath()
		if err != nil {
			a.Close()
			return nil, err
		}
		if err := os.MkdirAll(cacheDir, 0o755); err != nil {
			a.Close()
			return nil, fmt.Errorf("creating cache dir: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(jobsPath), 0o755); err != nil {
			a.Close()
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
		a.ledger, err = jobs.Open(jobsPath)
		if err != nil {
			a.Close()
			return nil, err
		}
		resolver := hls.NewResolver(a.http, a.client.BaseURL+"/", logger)
		a.downloader = download.New(a.http, resolver, cacheDir, a.client.BaseURL+"/", a.ledger, logger)
	}

	if withStore {
		storePath, err := cfg.StorePath()
		if err != nil {
			a.Close()
			return nil, err
		}
		a.store, err = store.Open(storePath)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	return a, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tapfeed %s\n", Version)
	},
}
