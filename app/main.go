package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lysyi3m/listing-comb/app/api"
	"github.com/lysyi3m/listing-comb/app/cache"
	"github.com/lysyi3m/listing-comb/app/cfg"
	"github.com/lysyi3m/listing-comb/app/database"
	"github.com/lysyi3m/listing-comb/app/feed"
	"github.com/lysyi3m/listing-comb/app/metrics"
	"github.com/lysyi3m/listing-comb/app/tasks"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	appCfg, err := cfg.Load()
	if err != nil {
		return err
	}
	if appCfg == nil {
		// Help was shown
		return nil
	}

	level := slog.LevelInfo
	if appCfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	slog.Info("Starting Listing Comb", "version", appCfg.Version, "db_driver", appCfg.DBDriver)

	if err := prepareSQLiteDir(appCfg.DBDriver, appCfg.DBDSN); err != nil {
		return err
	}

	db, err := database.NewConnection(appCfg.DBDriver, appCfg.DBDSN)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("Database ready", "schema_version", version, "dirty", dirty)

	categoryRepo := database.NewCategoryRepository(db)
	listingRepo := database.NewListingRepository(db)

	ruleCache := feed.NewRuleCache(appCfg.RulesDir)
	if err := ruleCache.Run(); err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}
	slog.Info("Rules loaded", "dir", appCfg.RulesDir, "count", ruleCache.GetRuleCount())

	recorder := metrics.NewRecorder(prometheus.DefaultRegisterer)

	var store feed.SnapshotStore = feed.NewMemoryStore()
	var rssCache api.RSSCache
	if appCfg.RedisAddr != "" {
		connectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		redisStore, err := cache.NewStore(connectCtx, appCfg.RedisAddr, appCfg.SnapshotTTL)
		cancel()
		if err != nil {
			return err
		}
		defer redisStore.Close()

		store = redisStore
		rssCache = redisStore
	}

	aggregator := feed.NewAggregator(categoryRepo, listingRepo, feed.NewFilterer(), recorder, appCfg.SectionTimeout)
	builder := feed.NewBuilder(aggregator, ruleCache, store, feed.DefaultExcludeSlug, appCfg.PageSize)

	scheduler := tasks.NewScheduler(builder, appCfg.RefreshInterval, appCfg.WorkerCount)
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(builder, categoryRepo, listingRepo, ruleCache,
		feed.NewGenerator(appCfg.PublicURL(), appCfg.Version), scheduler, rssCache)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      api.NewServer(handler, appCfg.APIAccessKey, appCfg.Version),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appCfg.Port, "public_url", appCfg.PublicURL())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case runErr = <-serverErrChan:
	}

	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	return runErr
}

func prepareSQLiteDir(driver, dsn string) error {
	if driver != database.DriverSQLite || dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return nil
	}
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create database directory %s: %w", dir, err)
	}
	return nil
}
