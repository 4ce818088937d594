// Package history persists a row per captured print job in PostgreSQL, so
// completions survive process restarts and can be audited later. The store
// is optional: the pipeline runs fine without it.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/papertrap/papertrap/internal/job"
)

// Config holds PostgreSQL connection configuration.
type Config struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store is a PostgreSQL-backed job history.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS print_jobs (
	job_id        BIGINT PRIMARY KEY,
	document_name TEXT NOT NULL,
	user_name     TEXT NOT NULL,
	machine_name  TEXT NOT NULL,
	origin        TEXT NOT NULL,
	output_format TEXT NOT NULL,
	data_size     BIGINT NOT NULL,
	page_count    INT NOT NULL DEFAULT 0,
	status        TEXT NOT NULL,
	output_files  TEXT[] NOT NULL DEFAULT '{}',
	failure       TEXT NOT NULL DEFAULT '',
	captured_at   TIMESTAMPTZ NOT NULL,
	completed_at  TIMESTAMPTZ
)`

const (
	statusProcessing = "PROCESSING"
	statusCompleted  = "COMPLETED"
	statusFailed     = "FAILED"
)

// NewStore connects to PostgreSQL and ensures the history table exists.
func NewStore(cfg *Config, logger *slog.Logger) (*Store, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	logger.Info("Connecting to job history database",
		slog.String("host", cfg.Host),
		slog.Int("port", cfg.Port),
		slog.String("database", cfg.Database),
	)

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure history schema: %w", err)
	}

	logger.Info("Job history store ready")
	return &Store{db: db, logger: logger}, nil
}

// RecordCapture inserts the job row at the moment its payload is captured.
func (s *Store) RecordCapture(ctx context.Context, info job.Info) error {
	query := `
		INSERT INTO print_jobs
			(job_id, document_name, user_name, machine_name, origin,
			 output_format, data_size, page_count, status, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (job_id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query,
		int64(info.JobID),
		info.DocumentName,
		info.UserName,
		info.MachineName,
		string(info.Origin),
		string(info.OutputFormat),
		info.DataSize,
		info.PageCount,
		statusProcessing,
		info.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to record job capture: %w", err)
	}
	return nil
}

// RecordCompletion finalizes the job row with its outcome.
func (s *Store) RecordCompletion(ctx context.Context, info job.Info, files []string, failure string) error {
	status := statusCompleted
	if files == nil {
		status = statusFailed
	}

	query := `
		UPDATE print_jobs
		SET status = $1,
		    output_files = $2,
		    failure = $3,
		    page_count = $4,
		    completed_at = NOW()
		WHERE job_id = $5
	`
	res, err := s.db.ExecContext(ctx, query,
		status,
		pq.Array(files),
		failure,
		info.PageCount,
		int64(info.JobID),
	)
	if err != nil {
		return fmt.Errorf("failed to record job completion: %w", err)
	}

	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		s.logger.Warn("Job completion recorded for unknown job",
			slog.Uint64("job_id", info.JobID),
		)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return fmt.Errorf("failed to close history store: %w", err)
		}
	}
	return nil
}

// HealthCheck verifies the connection is alive.
func (s *Store) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var one int
	if err := s.db.GetContext(ctx, &one, "SELECT 1"); err != nil {
		return fmt.Errorf("history store health check failed: %w", err)
	}
	return nil
}
