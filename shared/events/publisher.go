// Package events publishes job completion events to RabbitMQ so downstream
// systems (archival, billing, notification) can react to captured print
// jobs. The publisher is optional: the pipeline runs fine without it.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/papertrap/papertrap/internal/job"
)

// Config holds RabbitMQ connection and exchange configuration.
type Config struct {
	Host               string
	Port               int
	User               string
	Password           string
	VHost              string
	ExchangeName       string
	ExchangeType       string
	ExchangeDurable    bool
	RoutingKey         string
	RetryAttempts      int
	RetryInterval      time.Duration
	Heartbeat          time.Duration
	PublishRetries     int
	PublishRetryDelay  time.Duration
	PublishBackoffMult float64
}

// CompletionEvent is the wire format published for every finished job.
type CompletionEvent struct {
	JobID        uint64    `json:"job_id"`
	DocumentName string    `json:"document_name"`
	UserName     string    `json:"user_name"`
	MachineName  string    `json:"machine_name"`
	Origin       string    `json:"origin"`
	OutputFormat string    `json:"output_format"`
	OutputFiles  []string  `json:"output_files"`
	PageCount    int       `json:"page_count"`
	DataSize     int       `json:"data_size"`
	Failure      string    `json:"failure,omitempty"`
	CapturedAt   time.Time `json:"captured_at"`
	PublishedAt  time.Time `json:"published_at"`
}

// Publisher is a publish-only RabbitMQ client for completion events.
type Publisher struct {
	config      *Config
	conn        *amqp.Connection
	channel     *amqp.Channel
	logger      *slog.Logger
	isConnected bool
}

// NewPublisher connects to RabbitMQ with retry logic and declares the
// completion exchange.
func NewPublisher(config *Config, logger *slog.Logger) (*Publisher, error) {
	p := &Publisher{
		config: config,
		logger: logger,
	}

	if err := p.connect(); err != nil {
		return nil, fmt.Errorf("failed to create events publisher: %w", err)
	}

	return p, nil
}

func (p *Publisher) connect() error {
	var err error

	dsn := fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		p.config.User,
		p.config.Password,
		p.config.Host,
		p.config.Port,
		p.config.VHost,
	)

	amqpConfig := amqp.Config{
		Heartbeat: p.config.Heartbeat,
		Locale:    "en_US",
	}

	attempts := p.config.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		p.logger.Info("Connecting to RabbitMQ",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
		)

		p.conn, err = amqp.DialConfig(dsn, amqpConfig)
		if err == nil {
			p.logger.Info("Successfully connected to RabbitMQ")
			break
		}

		p.logger.Error("Failed to connect to RabbitMQ",
			slog.Any("error", err),
			slog.Int("attempt", attempt),
		)

		if attempt < attempts {
			time.Sleep(p.config.RetryInterval)
		}
	}

	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", attempts, err)
	}

	p.channel, err = p.conn.Channel()
	if err != nil {
		p.conn.Close()
		return fmt.Errorf("failed to create channel: %w", err)
	}

	err = p.channel.ExchangeDeclare(
		p.config.ExchangeName,    // name
		p.config.ExchangeType,    // type
		p.config.ExchangeDurable, // durable
		false,                    // auto-deleted
		false,                    // internal
		false,                    // no-wait
		nil,                      // arguments
	)
	if err != nil {
		p.channel.Close()
		p.conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	p.isConnected = true

	p.logger.Info("Events publisher initialized",
		slog.String("exchange", p.config.ExchangeName),
		slog.String("routing_key", p.config.RoutingKey),
	)

	return nil
}

// PublishCompletion publishes a completion event for a finished job, with
// retry and exponential backoff. Called from the pipeline after the
// completion callback has run.
func (p *Publisher) PublishCompletion(ctx context.Context, info job.Info, files []string, failure string) error {
	if !p.isConnected {
		return fmt.Errorf("not connected to RabbitMQ")
	}

	event := CompletionEvent{
		JobID:        info.JobID,
		DocumentName: info.DocumentName,
		UserName:     info.UserName,
		MachineName:  info.MachineName,
		Origin:       string(info.Origin),
		OutputFormat: string(info.OutputFormat),
		OutputFiles:  files,
		PageCount:    info.PageCount,
		DataSize:     info.DataSize,
		Failure:      failure,
		CapturedAt:   info.Timestamp,
		PublishedAt:  time.Now().UTC(),
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal completion event: %w", err)
	}

	return p.publishWithRetry(ctx, body)
}

func (p *Publisher) publishWithRetry(ctx context.Context, body []byte) error {
	maxRetries := p.config.PublishRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := p.channel.PublishWithContext(
			ctx,
			p.config.ExchangeName, // exchange
			p.config.RoutingKey,   // routing key
			false,                 // mandatory
			false,                 // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				Body:         body,
				DeliveryMode: amqp.Persistent,
				Timestamp:    time.Now(),
			},
		)

		if err == nil {
			if attempt > 0 {
				p.logger.Info("Published completion event after retry",
					slog.Int("attempt", attempt+1),
					slog.Int("body_size", len(body)),
				)
			} else {
				p.logger.Debug("Completion event published",
					slog.Int("body_size", len(body)),
				)
			}
			return nil
		}

		lastErr = err

		if attempt < maxRetries {
			backoffDelay := p.backoff(attempt)
			p.logger.Warn("Failed to publish completion event, retrying...",
				slog.Int("attempt", attempt+1),
				slog.Int("max_retries", maxRetries),
				slog.Duration("retry_after", backoffDelay),
				slog.Any("error", err),
			)
			time.Sleep(backoffDelay)
		}
	}

	p.logger.Error("Failed to publish completion event after all retries",
		slog.Int("attempts", maxRetries+1),
		slog.Any("error", lastErr),
	)
	return fmt.Errorf("failed to publish completion event after %d attempts: %w", maxRetries+1, lastErr)
}

// backoff computes the delay before retrying after failed attempt number
// attempt (0-based): the configured base delay grown geometrically by the
// configured multiplier.
func (p *Publisher) backoff(attempt int) time.Duration {
	base := p.config.PublishRetryDelay
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	mult := p.config.PublishBackoffMult
	if mult < 1 {
		mult = 2
	}

	delay := float64(base)
	for i := 0; i < attempt; i++ {
		delay *= mult
	}
	return time.Duration(delay)
}

// IsConnected returns the connection status.
func (p *Publisher) IsConnected() bool {
	return p.isConnected && p.conn != nil && !p.conn.IsClosed()
}

// Close closes the RabbitMQ connection.
func (p *Publisher) Close() error {
	p.logger.Info("Closing events publisher")

	p.isConnected = false

	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.logger.Error("Failed to close RabbitMQ channel",
				slog.Any("error", err),
			)
		}
	}

	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			p.logger.Error("Failed to close RabbitMQ connection",
				slog.Any("error", err),
			)
			return err
		}
	}

	return nil
}
