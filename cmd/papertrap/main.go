package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/papertrap/papertrap/internal/api/handler"
	"github.com/papertrap/papertrap/internal/api/recent"
	"github.com/papertrap/papertrap/internal/api/router"
	"github.com/papertrap/papertrap/internal/config"
	"github.com/papertrap/papertrap/internal/convert"
	"github.com/papertrap/papertrap/internal/job"
	"github.com/papertrap/papertrap/internal/listen"
	"github.com/papertrap/papertrap/internal/pipeline"
	"github.com/papertrap/papertrap/internal/render"
	"github.com/papertrap/papertrap/internal/spool"
	"github.com/papertrap/papertrap/shared/events"
	"github.com/papertrap/papertrap/shared/history"
	"github.com/papertrap/papertrap/shared/logger"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("PAPERTRAP_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting papertrap",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if cfg.Output.TempDir != "" {
		if err := os.MkdirAll(cfg.Output.TempDir, 0o755); err != nil {
			return fmt.Errorf("failed to create temp directory: %w", err)
		}
	}

	outputFormat, err := job.ParseOutputFormat(cfg.Output.Format)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	colorDepth, err := job.ParseColorDepth(cfg.Output.ColorDepth)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Discover renderer executables
	candidates := render.Discover(cfg.Renderer.SearchPaths)
	if len(candidates) == 0 {
		appLogger.Warn("No renderer executables found; jobs will be saved as raw capture files")
	} else {
		for _, c := range candidates {
			appLogger.Info("Renderer available",
				slog.String("path", c.Path),
				slog.Bool("xps_capable", c.XPSCapable),
			)
		}
	}

	invoker := render.NewInvoker(appLogger.Logger, cfg.Renderer.Timeout)
	orchestrator := convert.New(convert.Options{
		OutputDir:     cfg.Output.Dir,
		TempDir:       cfg.Output.TempDir,
		DesiredFormat: outputFormat,
		DPI:           cfg.Output.DPI,
		ColorDepth:    colorDepth,
	}, invoker, candidates, appLogger.Logger)

	// Optional sinks: in-memory recent log for the API, persistent history,
	// completion events.
	var recorders multiRecorder

	var recentLog *recent.Log
	if cfg.API.Enabled {
		capacity := cfg.API.RecentJobs
		if capacity <= 0 {
			capacity = 100
		}
		recentLog = recent.NewLog(capacity)
		recorders = append(recorders, recentLog)
	}

	var store *history.Store
	if cfg.Database.Enabled {
		store, err = initHistory(&cfg.Database, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize job history: %w", err)
		}
		recorders = append(recorders, store)
	}

	var publisher *events.Publisher
	if cfg.RabbitMQ.Enabled {
		publisher, err = initEvents(&cfg.RabbitMQ, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize events publisher: %w", err)
		}
	}

	pipeCfg := pipeline.Config{
		OutputFormat: outputFormat,
		Converter:    orchestrator,
		OnComplete:   completionReporter(appLogger.Logger),
	}
	if len(recorders) > 0 {
		pipeCfg.Recorder = recorders
	}
	if publisher != nil {
		pipeCfg.Publisher = publisher
	}
	pipe := pipeline.New(pipeCfg, appLogger.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start ingestion paths
	var listener *listen.Listener
	if cfg.Listener.Enabled {
		listener = listen.New(listen.Config{
			Host:        cfg.Listener.Host,
			Port:        cfg.Listener.Port,
			IdleTimeout: cfg.Listener.IdleTimeout,
		}, pipe, appLogger.Logger)
		if err := listener.Start(ctx); err != nil {
			return fmt.Errorf("failed to start print listener: %w", err)
		}
		appLogger.Info("Print listener started",
			slog.String("host", cfg.Listener.Host),
			slog.Int("port", cfg.Listener.Port),
		)
	}

	var poller *spool.Poller
	if cfg.Spooler.Enabled {
		controlDir := cfg.Spooler.ControlDir
		if controlDir == "" {
			controlDir = filepath.Join(cfg.Spooler.SpoolDir, "control")
		}
		queue, err := spool.NewFileQueue(controlDir)
		if err != nil {
			return fmt.Errorf("failed to initialize spooler queue: %w", err)
		}

		poller = spool.NewPoller(spool.PollerConfig{
			PrinterName:  cfg.Spooler.PrinterName,
			SpoolDir:     cfg.Spooler.SpoolDir,
			PollInterval: cfg.Spooler.PollInterval,
			Monitor: spool.MonitorConfig{
				Interval:        cfg.Spooler.PollInterval,
				StableThreshold: cfg.Spooler.StableThreshold,
				MaxWait:         cfg.Spooler.MaxWait,
			},
		}, queue, pipe, appLogger.Logger)
		poller.Start(ctx)
		appLogger.Info("Spooler poller started",
			slog.String("printer", cfg.Spooler.PrinterName),
			slog.String("spool_dir", cfg.Spooler.SpoolDir),
		)
	}

	// Optional status API
	var apiServer *http.Server
	apiErrChan := make(chan error, 1)
	if cfg.API.Enabled {
		deps := &handler.Dependencies{
			Logger:    appLogger.Logger,
			Recent:    recentLog,
			Version:   cfg.App.Version,
			StartedAt: time.Now(),
		}
		apiServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.API.Port),
			Handler: router.SetupRouter(deps),
		}
		go func() {
			if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				apiErrChan <- err
			}
		}()
		appLogger.Info("Status API started", slog.Int("port", cfg.API.Port))
	}

	appLogger.Info("Papertrap started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-apiErrChan:
		appLogger.Error("Status API error", slog.Any("error", err))
	}

	cancel()

	if listener != nil {
		listener.Stop()
	}
	if poller != nil {
		poller.Stop()
	}

	if apiServer != nil {
		timeout := cfg.API.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Warn("Status API shutdown timeout exceeded", slog.Any("error", err))
		}
	}

	if store != nil {
		store.Close()
	}
	if publisher != nil {
		publisher.Close()
	}

	appLogger.Info("Papertrap shutdown complete")
	return nil
}

// completionReporter is the default completion callback: it logs every
// finished job with its output files.
func completionReporter(logger *slog.Logger) job.CompletionFunc {
	return func(files []string, info job.Info) {
		if files == nil {
			logger.Warn("Print job failed",
				slog.Uint64("job_id", info.JobID),
				slog.String("document", info.DocumentName),
				slog.String("user", info.UserName),
				slog.String("origin", string(info.Origin)),
			)
			return
		}
		logger.Info("Print job captured",
			slog.Uint64("job_id", info.JobID),
			slog.String("document", info.DocumentName),
			slog.String("user", info.UserName),
			slog.String("origin", string(info.Origin)),
			slog.Int("pages", info.PageCount),
			slog.Any("files", files),
		)
	}
}

// multiRecorder fans RecordCapture/RecordCompletion out to every configured
// recorder. Errors are joined so one failing sink never hides another.
type multiRecorder []pipeline.Recorder

func (m multiRecorder) RecordCapture(ctx context.Context, info job.Info) error {
	var errs []error
	for _, r := range m {
		if err := r.RecordCapture(ctx, info); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m multiRecorder) RecordCompletion(ctx context.Context, info job.Info, files []string, failure string) error {
	var errs []error
	for _, r := range m {
		if err := r.RecordCompletion(ctx, info, files, failure); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initHistory initializes the PostgreSQL job history store
func initHistory(cfg *config.DatabaseConfig, logger *slog.Logger) (*history.Store, error) {
	storeConfig := &history.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}

	return history.NewStore(storeConfig, logger)
}

// initEvents initializes the completion event publisher
func initEvents(cfg *config.RabbitMQConfig, logger *slog.Logger) (*events.Publisher, error) {
	eventsConfig := &events.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}

	return events.NewPublisher(eventsConfig, logger)
}
