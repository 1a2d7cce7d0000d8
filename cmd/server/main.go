package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/gpu-log-summary/backend/internal/api"
	"github.com/gpu-log-summary/backend/internal/config"
	"github.com/gpu-log-summary/backend/internal/observability"
	"github.com/gpu-log-summary/backend/internal/parser"
	"github.com/gpu-log-summary/backend/internal/session"
	"github.com/gpu-log-summary/backend/internal/storage"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Get the executable's directory for config resolution
	exePath, err := os.Executable()
	if err != nil {
		fmt.Printf("Failed to get executable path: %v\n", err)
		os.Exit(1)
	}
	defaultConfig := filepath.Join(filepath.Dir(exePath), config.DefaultConfigFile)

	configPath := flag.String("config", defaultConfig, "path to the XML configuration file")
	flag.Parse()

	// Load XML configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.GetLogLevel()}))
	slog.SetDefault(logger)
	api.ShowErrorDetails = cfg.GetLogLevel() <= slog.LevelDebug

	if err := run(cfg, *configPath, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig, configPath string, logger *slog.Logger) error {
	// Ensure all data directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	extensions := cfg.GetLogExtensions()

	// Initialize storage
	fileStore, err := storage.NewLocalStore(cfg.GetUploadDir(), extensions)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}

	registry := parser.NewRegistry()
	if cfg.Processing.RulesFile != "" {
		rules, err := parser.ParseExtractionRules(cfg.Processing.RulesFile)
		if err != nil {
			return fmt.Errorf("loading rules %s: %w", cfg.Processing.RulesFile, err)
		}
		if registry, err = parser.BuildRegistry(rules); err != nil {
			return fmt.Errorf("building rules %s: %w", cfg.Processing.RulesFile, err)
		}
		logger.Info("extraction rules loaded", "path", cfg.Processing.RulesFile,
			"columns", len(rules.Columns), "labels", len(rules.Labels))
	}

	metrics := observability.NewMetrics()

	jobOpts := session.Options{
		Extensions:        extensions,
		FileConcurrency:   cfg.Processing.FileConcurrency,
		Registry:          registry,
		MaxConcurrentJobs: cfg.Processing.MaxConcurrentJobs,
		JobTimeout:        time.Duration(cfg.Processing.JobTimeoutMinutes) * time.Minute,
		Metrics:           metrics,
		Logger:            logger,
	}
	if cfg.Storage.EnablePersistence {
		jobOpts.PersistDir = cfg.GetParsedDir()
		jobOpts.StoreOptions = parser.ReadingStoreOptions{
			Threads:     cfg.Advanced.DuckDBThreads,
			MemoryLimit: cfg.Advanced.DuckDBMemoryLimit,
		}
	}
	jobs := session.NewManager(jobOpts)
	defer jobs.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start background job and batch cleanup
	go func() {
		interval := time.Duration(cfg.Processing.CleanupIntervalMinutes) * time.Minute
		if interval <= 0 {
			interval = 5 * time.Minute
		}
		maxAge := time.Duration(cfg.Processing.JobTimeoutMinutes) * time.Minute
		retention := cfg.GetBatchRetention()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				jobs.CleanupOldJobs(maxAge)
				removed, err := storage.CleanupOldBatches(fileStore, retention, jobs.HasActiveJob)
				if err != nil {
					logger.Warn("batch cleanup failed", "error", err)
				}
				if removed > 0 {
					logger.Info("expired upload batches", "removed", removed, "retention", retention)
				}
			}
		}
	}()

	e := echo.New()
	e.HideBanner = true
	api.SetupMiddleware(e)

	// Configure middleware
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			// Skip logging if disabled in config
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return strings.HasSuffix(path, "/status") ||
				path == "/metrics" ||
				path == "/api/health"
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize:         1024 * 4,
		DisablePrintStack: false,
		LogLevel:          0,
	}))

	// Compression middleware
	if cfg.Processing.EnableCompression {
		e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
			Level: cfg.Processing.CompressionLevel,
			Skipper: func(c echo.Context) bool {
				return c.Path() == "/metrics"
			},
		}))
	}

	// Body limit middleware
	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	// CORS configuration
	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}

	api.RegisterRoutes(e, api.NewHandlers(&api.Dependencies{
		Store:   fileStore,
		Jobs:    jobs,
		Metrics: metrics,
		Version: Version,
	}))

	// Configure server with settings from XML config
	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	persistence := "disabled"
	if jobOpts.PersistDir != "" {
		persistence = jobOpts.PersistDir
	}

	// Print startup banner
	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           GPU Log Summary Server                          ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Data Dir:  %-46s║\n", cfg.GetDataDir())
	fmt.Printf("║  Readings:  %-46s║\n", persistence)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.StartServer(s)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
