// Package spool watches spooler-written files until they stop growing and
// polls the OS print queue for new jobs.
package spool

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/papertrap/papertrap/internal/job"
)

// State is the stability monitor's state. WATCHING is the only
// non-terminal state.
type State string

const (
	StateWatching State = "WATCHING"
	StateStable   State = "STABLE"
	StateTimedOut State = "TIMED_OUT"
	StateVanished State = "VANISHED"
)

// MonitorConfig tunes the polling state machine.
type MonitorConfig struct {
	// Interval between size samples.
	Interval time.Duration
	// StableThreshold is how many consecutive unchanged nonzero samples
	// are required before the file counts as finished. Spooler-written
	// files grow in bursts as pages render upstream, so a single
	// unchanged sample is not enough.
	StableThreshold int
	// MaxWait bounds the whole watch.
	MaxWait time.Duration
}

func (c *MonitorConfig) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 500 * time.Millisecond
	}
	if c.StableThreshold <= 0 {
		c.StableThreshold = 5
	}
	if c.MaxWait <= 0 {
		c.MaxWait = 30 * time.Second
	}
}

// Resolution is the terminal outcome of one watch session.
type Resolution struct {
	State State
	// Size is the final observed size; meaningful only when State is
	// StateStable.
	Size int64
}

// Monitor polls a file's size until it is unchanged across
// StableThreshold consecutive samples, vanishes, or times out.
type Monitor struct {
	cfg    MonitorConfig
	logger *slog.Logger

	// stat is swappable for tests.
	stat func(path string) (int64, error)
}

// NewMonitor creates a Monitor with defaults filled in.
func NewMonitor(cfg MonitorConfig, logger *slog.Logger) *Monitor {
	cfg.applyDefaults()
	return &Monitor{
		cfg:    cfg,
		logger: logger,
		stat: func(path string) (int64, error) {
			info, err := os.Stat(path)
			if err != nil {
				return 0, err
			}
			return info.Size(), nil
		},
	}
}

// Watch blocks until the file at path resolves. It returns the terminal
// Resolution; for StateVanished and StateTimedOut the error is the matching
// sentinel so callers can branch with errors.Is.
func (m *Monitor) Watch(ctx context.Context, path string) (Resolution, error) {
	start := time.Now()
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	var (
		lastSize    int64 = -1
		stableCount int
	)

	for {
		select {
		case <-ctx.Done():
			return Resolution{State: StateTimedOut}, fmt.Errorf("watch canceled: %w", ctx.Err())

		case <-ticker.C:
			size, err := m.stat(path)
			if err != nil {
				m.logger.Warn("Spool file vanished while watching",
					slog.String("path", path),
					slog.Duration("elapsed", time.Since(start)),
				)
				return Resolution{State: StateVanished}, job.ErrSpoolVanished
			}

			if size == lastSize && size > 0 {
				stableCount++
				if stableCount >= m.cfg.StableThreshold {
					m.logger.Debug("Spool file stable",
						slog.String("path", path),
						slog.Int64("size", size),
						slog.Int("samples", stableCount),
					)
					return Resolution{State: StateStable, Size: size}, nil
				}
			} else {
				stableCount = 0
			}
			lastSize = size

			if time.Since(start) > m.cfg.MaxWait {
				// Best effort: if the last two samples already agreed,
				// accept the file rather than discard a finished job.
				if stableCount >= 1 && lastSize > 0 {
					m.logger.Warn("Spool watch hit max wait but file looks settled, accepting",
						slog.String("path", path),
						slog.Int64("size", lastSize),
						slog.Int("samples", stableCount),
					)
					return Resolution{State: StateStable, Size: lastSize}, nil
				}
				m.logger.Warn("Spool file never stabilized",
					slog.String("path", path),
					slog.Duration("max_wait", m.cfg.MaxWait),
				)
				return Resolution{State: StateTimedOut}, job.ErrSpoolTimeout
			}
		}
	}
}
