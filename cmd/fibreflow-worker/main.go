package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"
	arbormodels "github.com/ternarybob/arbor/models"

	"github.com/ternarybob/fibreflow/internal/common"
	"github.com/ternarybob/fibreflow/internal/worker"
	"github.com/ternarybob/fibreflow/internal/worker/adapters"
)

var (
	port        = flag.Int("port", 0, "Listen port (overrides WORKER_PORT)")
	host        = flag.String("host", "", "Listen host (overrides WORKER_HOST)")
	manifest    = flag.String("manifest", "", "Provider manifest path (overrides PROVIDERS_MANIFEST)")
	development = flag.Bool("dev", false, "Force simulator adapters for all providers")
	showVersion = flag.Bool("version", false, "Print version information")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("Fibreflow Worker version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	config := worker.LoadConfig()
	if *port > 0 {
		config.Port = *port
	}
	if *host != "" {
		config.Host = *host
	}
	if *manifest != "" {
		config.ManifestPath = *manifest
	}
	if *development {
		config.DevelopmentMode = true
	}

	logger := arbor.NewLogger().WithConsoleWriter(arbormodels.WriterConfiguration{
		Type:             arbormodels.LogWriterTypeConsole,
		TimeFormat:       "15:04:05",
		TextOutput:       true,
		DisableTimestamp: false,
	}).WithLevelFromString(config.LogLevel)

	common.InstallCrashHandler("")
	defer common.RecoverWithCrashFile()
	common.PrintWorkerBanner(common.GetVersion())

	providerManifest, err := adapters.LoadManifest(config.ManifestPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", config.ManifestPath).Msg("Failed to load provider manifest")
		os.Exit(1)
	}

	registry := adapters.NewRegistry(providerManifest, config.DevelopmentMode, logger)
	ledger := worker.NewLedger(config.LedgerTTL)
	service := worker.NewService(registry, ledger, logger)

	srv := &http.Server{
		Addr:         config.ListenAddr(),
		Handler:      service.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("address", config.ListenAddr()).
			Int("providers", len(providerManifest.Providers)).
			Bool("development", config.DevelopmentMode).
			Msg("Worker service starting")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Worker service failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Interrupt signal received, shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Worker shutdown failed")
	}

	logger.Info().Msg("Worker stopped")
}
