// Package events fans committed sale events out to a Redis stream and the log.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/Bidon15/licensesale/internal/database"
	"github.com/Bidon15/licensesale/internal/models"
)

// DefaultStream is the stream key used when none is configured.
const DefaultStream = "licensesale:events"

// DefaultMaxLen is the approximate stream length kept by XADD.
const DefaultMaxLen = 100_000

// Publisher delivers the events of one committed transaction.
type Publisher interface {
	Publish(ctx context.Context, events []models.Event) error
}

// StreamPublisher appends events to a Redis stream, one entry per event.
type StreamPublisher struct {
	redis  *database.Redis
	stream string
	maxLen int64
}

// NewStreamPublisher creates a stream publisher. Empty stream and
// non-positive maxLen fall back to the defaults.
func NewStreamPublisher(r *database.Redis, stream string, maxLen int64) *StreamPublisher {
	if stream == "" {
		stream = DefaultStream
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	return &StreamPublisher{redis: r, stream: stream, maxLen: maxLen}
}

// Stream returns the stream key.
func (p *StreamPublisher) Stream() string {
	return p.stream
}

// Publish writes all events in one pipeline so a transaction's events land
// contiguously.
func (p *StreamPublisher) Publish(ctx context.Context, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}

	pipe := p.redis.Client().Pipeline()
	for _, ev := range events {
		values, err := streamValues(ev)
		if err != nil {
			return err
		}
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: p.stream,
			MaxLen: p.maxLen,
			Approx: true,
			ID:     "*",
			Values: values,
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append to %s: %w", p.stream, err)
	}
	return nil
}

func streamValues(ev models.Event) (map[string]any, error) {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event: %w", ev.Kind, err)
	}
	return map[string]any{
		"id":      ev.ID,
		"kind":    string(ev.Kind),
		"topic":   ev.Topic.Hex(),
		"tx":      ev.TxName,
		"ts":      ev.Timestamp.UnixMilli(),
		"payload": string(payload),
	}, nil
}

// LogPublisher writes each event as a structured log line.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a log publisher.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

// Publish logs the events at info level.
func (p *LogPublisher) Publish(ctx context.Context, events []models.Event) error {
	for _, ev := range events {
		p.logger.LogAttrs(ctx, slog.LevelInfo, "Sale event",
			slog.String("event_id", ev.ID),
			slog.String("kind", string(ev.Kind)),
			slog.String("tx", ev.TxName),
			slog.Any("payload", ev.Payload),
		)
	}
	return nil
}

// Multi publishes to every publisher and joins their errors. A failing
// publisher does not stop the others.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(ctx context.Context, events []models.Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
