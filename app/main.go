package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SuperrNaruto/you2down/app/api"
	"github.com/SuperrNaruto/you2down/app/cfg"
	"github.com/SuperrNaruto/you2down/app/database"
	"github.com/SuperrNaruto/you2down/app/fetcher"
	"github.com/SuperrNaruto/you2down/app/notify"
	"github.com/SuperrNaruto/you2down/app/pipeline"
	"github.com/SuperrNaruto/you2down/app/scheduler"
	"github.com/SuperrNaruto/you2down/app/sources"
	"github.com/SuperrNaruto/you2down/app/storage"
	"github.com/SuperrNaruto/you2down/app/strategy"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was requested.
		return
	}

	setupLogger(appCfg.Debug)
	slog.Info("Starting you2down", "version", appCfg.Version)

	db, err := database.NewConnection(appCfg.DatabasePath)
	if err != nil {
		slog.Error("Failed to open database", "path", appCfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "path", appCfg.DatabasePath, "schema_version", version, "dirty", dirty)

	itemRepo := database.NewItemRepository(db)
	companionRepo := database.NewCompanionRepository(db)
	checkpointRepo := database.NewCheckpointRepository(db)

	configCache := sources.NewConfigCache(appCfg.SourcesDir)
	if err := configCache.Run(); err != nil {
		slog.Error("Failed to load source configurations", "error", err)
		os.Exit(1)
	}
	slog.Info("Source configurations loaded", "count", configCache.GetConfigCount())

	// Seed checkpoints so the control API can list sources before the
	// first sweep.
	seedCtx, seedCancel := context.WithTimeout(context.Background(), 30*time.Second)
	for sourceID, config := range configCache.GetConfigs() {
		if err := checkpointRepo.EnsureWithSeed(seedCtx, sourceID, database.Strategy(config.Strategy)); err != nil {
			slog.Warn("Failed to seed source checkpoint", "source_id", sourceID, "error", err)
		}
	}
	seedCancel()

	ioTimeout := time.Duration(appCfg.IOTimeout) * time.Second
	httpClient := &http.Client{Timeout: ioTimeout}

	credentials := sources.NewCredentialChain(
		&sources.CookieFileSource{Path: appCfg.InstagramCookieFile},
		&sources.SessionFileSource{Path: appCfg.InstagramSessionFile},
	)
	pollers := []sources.Poller{
		sources.NewYouTubePoller(httpClient, appCfg.UserAgent),
		sources.NewInstagramPoller(httpClient, credentials, appCfg.UserAgent),
	}

	resolver := strategy.NewResolver(checkpointRepo, configCache)
	notifier := notify.NewService(appCfg.TelegramToken, appCfg.TelegramChatID, 10*time.Second)

	governor := pipeline.Governor{
		MaxAttempts: appCfg.RetryMaxAttempts,
		BaseDelay:   time.Duration(appCfg.RetryBaseDelay) * time.Second,
		MaxDelay:    time.Duration(appCfg.RetryMaxDelay) * time.Second,
	}

	ingestor := pipeline.NewIngestor(itemRepo, checkpointRepo, resolver, configCache, pollers, notifier,
		time.Duration(appCfg.CheckInterval)*time.Second)

	downloadPool := pipeline.NewDownloadPool(itemRepo, fetcher.NewYtDlpFetcher(appCfg.VideoQuality, ioTimeout),
		governor, notifier, appCfg.DownloadDir, appCfg.DownloadConcurrency)
	companionPool := pipeline.NewCompanionPool(companionRepo, itemRepo,
		fetcher.NewDriveFetcher(httpClient, appCfg.MaxCompanionFileSize, appCfg.UserAgent),
		governor, notifier, appCfg.DownloadDir, appCfg.CompanionConcurrency)

	uploader := storage.NewAListClient(httpClient, appCfg.AListURL, appCfg.AListUsername, appCfg.AListPassword)
	uploadStage := pipeline.NewUploadStage(itemRepo, companionRepo, uploader, governor, notifier,
		appCfg.AListRemotePath, appCfg.UploadConcurrency)

	maintenance := pipeline.NewMaintenance(itemRepo, companionRepo, time.Duration(appCfg.StaleAfter)*time.Second)

	sched := scheduler.NewScheduler(time.Duration(appCfg.DrainInterval) * time.Second)
	sched.AddJob("ingest", time.Duration(appCfg.CheckInterval)*time.Second, ingestor.Sweep)
	// Separate jobs so a slow upload batch never holds back downloads.
	sched.AddJob("download drain", time.Duration(appCfg.DrainInterval)*time.Second, downloadPool.Drain)
	sched.AddJob("companion drain", time.Duration(appCfg.DrainInterval)*time.Second, companionPool.Drain)
	sched.AddJob("upload drain", time.Duration(appCfg.DrainInterval)*time.Second, uploadStage.Drain)
	sched.AddJob("maintenance", time.Duration(appCfg.MaintenanceInterval)*time.Second, maintenance.Sweep)
	sched.Start()
	defer sched.Stop()

	apiHandler := api.NewHandler(itemRepo, companionRepo, resolver, configCache, appCfg.Version)
	server := api.NewServer(apiHandler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// In-flight claims are left in their in-progress status; the
	// maintenance sweep recovers them after the staleness threshold.
	slog.Info("Shutdown complete")
}

func setupLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}
