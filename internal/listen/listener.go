// Package listen implements raw network ingestion: a JetDirect-style TCP
// listener where each connection's byte stream is one print job.
package listen

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/papertrap/papertrap/internal/job"
)

// Sink receives captured payloads from the listener.
type Sink interface {
	Submit(payload []byte, origin job.Origin)
	SubmitFailure(origin job.Origin, err error)
}

// Config tunes the network ingestion listener.
type Config struct {
	Host string
	Port int
	// IdleTimeout ends a connection's read once no bytes have arrived for
	// this long. With at least one byte already received the accumulated
	// buffer becomes the job; with nothing received the connection is
	// discarded. Raw port-9100 traffic has no framing, so quiescence is
	// the only job boundary besides peer close.
	IdleTimeout time.Duration
	// AcceptBackoff is the pause after a transient accept error.
	AcceptBackoff time.Duration
	ReadBufferSize int
}

func (c *Config) applyDefaults() {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 10 * time.Second
	}
	if c.AcceptBackoff <= 0 {
		c.AcceptBackoff = 100 * time.Millisecond
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = 8192
	}
}

// Listener accepts print-job connections and hands each complete payload to
// the sink. Connections are handled concurrently; each job is independent.
type Listener struct {
	cfg    Config
	sink   Sink
	logger *slog.Logger

	ln       net.Listener
	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// New creates a Listener.
func New(cfg Config, sink Sink, logger *slog.Logger) *Listener {
	cfg.applyDefaults()
	return &Listener{
		cfg:      cfg,
		sink:     sink,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Addr returns the bound address, useful when Port was 0.
func (l *Listener) Addr() net.Addr {
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Start binds the socket and launches the accept loop.
func (l *Listener) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", l.cfg.Host, l.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", addr, err)
	}
	l.ln = ln

	l.wg.Add(1)
	go l.acceptLoop(ctx)

	l.logger.Info("Network ingestion listening",
		slog.String("addr", ln.Addr().String()),
	)
	return nil
}

// Stop closes the listening socket and waits for the accept loop and all
// in-flight connection handlers to finish.
func (l *Listener) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopChan)
		if l.ln != nil {
			_ = l.ln.Close()
		}
	})
	l.wg.Wait()
	l.logger.Info("Network ingestion stopped")
}

func (l *Listener) stopping() bool {
	select {
	case <-l.stopChan:
		return true
	default:
		return false
	}
}

func (l *Listener) acceptLoop(ctx context.Context) {
	defer l.wg.Done()

	var connCount int
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if l.stopping() || ctx.Err() != nil {
				return
			}
			l.logger.Error("Accept failed, retrying",
				slog.String("error", err.Error()),
			)
			select {
			case <-l.stopChan:
				return
			case <-time.After(l.cfg.AcceptBackoff):
			}
			continue
		}

		connCount++
		l.logger.Info("Connection accepted",
			slog.Int("connection", connCount),
			slog.String("peer", conn.RemoteAddr().String()),
		)

		if tc, ok := conn.(*net.TCPConn); ok {
			_ = tc.SetKeepAlive(true)
			_ = tc.SetNoDelay(true)
		}

		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.handleConn(conn)
		}()
	}
}

// handleConn reads one job's bytes from the connection. The stream ends at
// peer close or at idle timeout once at least one byte has arrived.
func (l *Listener) handleConn(conn net.Conn) {
	defer conn.Close()

	peer := conn.RemoteAddr().String()
	var data bytes.Buffer
	buf := make([]byte, l.cfg.ReadBufferSize)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(l.cfg.IdleTimeout))
		n, err := conn.Read(buf)
		if n > 0 {
			data.Write(buf[:n])
		}
		if err == nil {
			continue
		}

		var netErr net.Error
		switch {
		case errors.Is(err, io.EOF):
			// Peer closed: stream complete.
		case errors.As(err, &netErr) && netErr.Timeout():
			if data.Len() == 0 {
				l.logger.Warn("Idle timeout with no data, discarding connection",
					slog.String("peer", peer),
				)
				return
			}
			l.logger.Debug("Idle timeout reached, treating job as complete",
				slog.String("peer", peer),
			)
		default:
			l.logger.Error("Connection read failed, discarding job",
				slog.String("peer", peer),
				slog.String("error", err.Error()),
			)
			return
		}
		break
	}

	if data.Len() == 0 {
		l.logger.Warn("No data received, connection is not a job",
			slog.String("peer", peer),
		)
		return
	}

	l.logger.Info("Job payload received",
		slog.String("peer", peer),
		slog.Int("bytes", data.Len()),
	)

	l.sink.Submit(data.Bytes(), job.Origin{
		Kind:     job.OriginNetwork,
		PeerAddr: peer,
	})
}
