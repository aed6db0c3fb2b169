package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/semanticdata/whisper-web/internal/capture"
	"github.com/semanticdata/whisper-web/internal/config"
	"github.com/semanticdata/whisper-web/internal/metrics"
	"github.com/semanticdata/whisper-web/internal/server"
	"github.com/semanticdata/whisper-web/internal/session"
	"github.com/semanticdata/whisper-web/internal/storage"
	"github.com/semanticdata/whisper-web/internal/transcription"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "whisper-web"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration, falling back to defaults when no file exists
	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.String("http_address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		slog.String("storage_path", cfg.Storage.Path),
		slog.String("transcription_endpoint", cfg.Transcription.Endpoint),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Open the annotation store
	dbPath := cfg.Storage.Path
	if dbPath == "" {
		dbPath = storage.DefaultDBPath()
	}
	medium, err := storage.OpenSQLite(dbPath)
	if err != nil {
		logger.Error("Failed to open annotation database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	store := storage.NewStore(medium, logger)
	store.OnCorrupt(appMetrics.RecordCorruptRecovery)
	appMetrics.SetAnnotationCount(len(store.GetAll()))
	logger.Info("Annotation store opened", slog.String("path", dbPath))

	// Initialize the transcription engine client
	engine, err := transcription.NewClient(transcription.Config{
		Endpoint:      cfg.Transcription.Endpoint,
		APIKey:        cfg.Transcription.APIKey,
		Timeout:       cfg.Transcription.GetTimeoutDuration(),
		MaxRetries:    cfg.Transcription.MaxRetries,
		MaxConcurrent: cfg.Transcription.MaxConcurrent,
		Language:      cfg.Transcription.Language,
		OnRetry:       appMetrics.RecordTranscriptionRetry,
	})
	if err != nil {
		logger.Error("Failed to create transcription client", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Transcription client initialized",
		slog.String("endpoint", cfg.Transcription.Endpoint),
	)

	// Initialize the workflow coordinator
	coordinator := session.NewCoordinator(store, logger, nil)

	// Initialize the capture session over a push-fed device
	formats := cfg.Capture.Formats
	if len(formats) == 0 {
		formats = capture.DefaultFormats()
	}
	device := capture.NewPushDevice(formats)

	captureSession := capture.NewSession(device, logger, func(recording capture.Recording) {
		appMetrics.RecordRecordingCompleted(recording.Duration.Seconds(), len(recording.Data))
		go transcribe(ctx, logger, appMetrics, engine, coordinator, recording)
	})
	captureSession.SetFormats(formats)
	logger.Info("Capture session initialized")

	// Initialize HTTP API server
	httpServer := server.NewHTTPServer(cfg.HTTP, logger, cfg,
		coordinator, captureSession, device, store, engine, appMetrics)
	logger.Info("HTTP API server initialized",
		slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
	)

	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...")

	// Wait for shutdown signal
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	// Release the capture session and the input device
	if err := captureSession.Close(); err != nil {
		logger.Error("Error closing capture session", slog.String("error", err.Error()))
	}

	// Drain in-flight transcription requests
	if err := engine.Close(); err != nil {
		logger.Error("Error closing transcription client", slog.String("error", err.Error()))
	}

	if err := medium.Close(); err != nil {
		logger.Error("Error closing annotation database", slog.String("error", err.Error()))
	}

	// Get final statistics
	stats := engine.GetStats()
	logger.Info("Final transcription statistics",
		slog.Uint64("total_requests", stats.TotalRequests),
		slog.Uint64("success_requests", stats.SuccessRequests),
		slog.Uint64("failed_requests", stats.FailedRequests),
	)

	logger.Info("Service stopped")
}

// loadConfig reads the config file, or returns the built-in defaults when
// the file is absent at the default location.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) && path == defaultConfigPath {
		return config.Default(), nil
	}
	return config.Load(path)
}

// transcribe submits one finalized recording to the engine and publishes
// the result to the coordinator.
func transcribe(ctx context.Context, logger *slog.Logger, appMetrics *metrics.Metrics,
	engine *transcription.Client, coordinator *session.Coordinator, recording capture.Recording) {

	// Mark the pipeline busy so the view reflects work in progress.
	coordinator.SetOutput(&transcription.Output{IsBusy: true})

	appMetrics.RecordTranscriptionRequest()
	startTime := time.Now()

	output, err := engine.Transcribe(ctx, &transcription.Request{
		RequestID: uuid.NewString(),
		Data:      recording.Data,
		MIMEType:  recording.MIMEType,
		Duration:  recording.Duration,
	})

	elapsed := time.Since(startTime).Seconds()
	if err != nil {
		appMetrics.RecordTranscriptionFailure(elapsed)
		logger.Error("Transcription failed", slog.String("error", err.Error()))
		coordinator.SetOutput(nil)
		return
	}

	appMetrics.RecordTranscriptionSuccess(elapsed)
	coordinator.SetOutput(output)
	logger.Info("Transcription completed",
		slog.Duration("audio_duration", recording.Duration),
		slog.Int("chunks", len(output.Chunks)),
	)
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		// Default to text format
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
