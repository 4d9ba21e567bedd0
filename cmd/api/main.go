package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron"

	"github.com/dvloznov/tallysync/internal/api/handlers"
	"github.com/dvloznov/tallysync/internal/api/middleware"
	"github.com/dvloznov/tallysync/internal/archive"
	"github.com/dvloznov/tallysync/internal/config"
	"github.com/dvloznov/tallysync/internal/exports"
	infraBQ "github.com/dvloznov/tallysync/internal/infra/bigquery"
	"github.com/dvloznov/tallysync/internal/jobs/inmemory"
	"github.com/dvloznov/tallysync/internal/logger"
	"github.com/dvloznov/tallysync/internal/relay"
	storemem "github.com/dvloznov/tallysync/internal/store/inmemory"
	"github.com/dvloznov/tallysync/internal/suggest"
	"github.com/dvloznov/tallysync/internal/voucher"
)

func main() {
	// Parse command-line flags
	var (
		configFile  = flag.String("config", "config.yaml", "YAML configuration file")
		secretsFile = flag.String("secrets", "secrets.ejson", "ejson secrets file")
		dotEnvFile  = flag.String("env-file", ".env", "dotenv file loaded before the environment is read")
		port        = flag.String("port", "", "HTTP server port (overrides config)")
	)
	flag.Parse()

	cfg, secrets, err := config.Load(config.Options{
		ConfigFile:  *configFile,
		SecretsFile: *secretsFile,
		DotEnvFile:  *dotEnvFile,
	}, logger.New())
	if err != nil {
		logger.New().Fatal().Err(err).Msg("Failed to load configuration")
	}
	apiCfg := cfg.API
	if *port != "" {
		apiCfg.Port = *port
	}

	log := logger.NewWithLevel(apiCfg.LogLevel)
	ctx := context.Background()

	// Statement store and renderer live for the whole process
	statements := storemem.NewStore()
	renderer := voucher.NewRenderer()

	relayClient := relay.NewClient(log)
	settings := relay.NewSettings(relay.Endpoint{
		URL:   apiCfg.ConnectorURL,
		Token: secrets.ConnectorToken,
	})

	// Optional export archive
	var archiver archive.Archiver
	if apiCfg.Archive.Bucket != "" {
		gcs, err := archive.NewGCS(ctx, apiCfg.Archive.Bucket)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create GCS archive")
		}
		defer gcs.Close()
		archiver = gcs
		log.Info().Str("bucket", apiCfg.Archive.Bucket).Msg("Export archiving enabled")
	} else {
		log.Warn().Msg("No GCS bucket configured - exports will not be archived")
	}

	// Optional export audit
	var (
		auditor exports.Auditor
		history exports.History
	)
	if apiCfg.BigQuery.Enabled() {
		repo, err := infraBQ.NewExportRepository(ctx, apiCfg.BigQuery.ProjectID, apiCfg.BigQuery.Dataset, apiCfg.BigQuery.Table)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create export repository")
		}
		defer repo.Close()
		if err := repo.EnsureTable(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure exports table")
		}
		auditor, history = repo, repo
		log.Info().
			Str("project", apiCfg.BigQuery.ProjectID).
			Str("dataset", apiCfg.BigQuery.Dataset).
			Msg("Export auditing enabled")
	}

	// Optional ledger suggestions
	var suggester *suggest.Suggester
	if secrets.GeminiAPIKey != "" {
		model, err := suggest.NewGemini(ctx, secrets.GeminiAPIKey, apiCfg.Suggest.Model)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create Gemini client")
		}
		suggester = suggest.New(model, log)
		log.Info().Str("model", apiCfg.Suggest.Model).Msg("Ledger suggestions enabled")
	}

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(inmemory.QueueOptions{
		BufferSize: apiCfg.Jobs.BufferSize,
		Workers:    apiCfg.Jobs.Workers,
		MaxRetries: apiCfg.Jobs.MaxRetries,
	}, jobStore, log)
	recorder := exports.NewRecorder(archiver, auditor, apiCfg.Archive.Prefix, log)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	go func() {
		log.Info().Bool("backends", recorder.Enabled()).Msg("Starting export recorder")
		if err := jobQueue.Start(workerCtx, recorder.Handle); err != nil {
			log.Error().Err(err).Msg("Job worker stopped with error")
		}
	}()

	// Initialize handlers
	connectorHandler := handlers.NewConnectorHandler(statements, relayClient, settings, jobQueue, log)
	mux := handlers.NewMux(handlers.Handlers{
		Statements: handlers.NewStatementsHandler(statements, renderer, jobQueue, suggester, log),
		Connector:  connectorHandler,
		Jobs:       handlers.NewJobsHandler(jobStore, log),
		Exports:    handlers.NewExportsHandler(history, log),
	})

	// Scheduled connector probe
	probes := cron.New()
	if apiCfg.ProbeEnabled() {
		err := probes.AddFunc(apiCfg.ProbeSchedule, func() {
			probeCtx, cancel := context.WithTimeout(workerCtx, relay.DefaultProbeTimeout+time.Second)
			defer cancel()
			connectorHandler.ProbeNow(probeCtx)
		})
		if err != nil {
			log.Fatal().Err(err).Str("schedule", apiCfg.ProbeSchedule).Msg("Invalid probe schedule")
		}
		probes.Start()
		defer probes.Stop()
	} else {
		log.Info().Msg("Scheduled connector probe disabled")
	}

	// Apply middleware
	handler := middleware.Chain(mux,
		middleware.Recovery(log),
		middleware.Logger(log),
		middleware.RequestID,
		middleware.CORS(apiCfg.CORSOrigin),
	)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + apiCfg.Port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", apiCfg.Port).Msg("Starting export service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Drain in-flight export jobs before the backends close
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}
