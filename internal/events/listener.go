// Package events provides a Kafka listener that feeds platform interaction
// events into the interaction recorder, so reading activity reported by
// other MeStory services shapes recommendations without an extra HTTP hop.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/mestory/recommendation-service/internal/config"
	"github.com/mestory/recommendation-service/internal/domain"
	"github.com/mestory/recommendation-service/internal/observability"
	"github.com/mestory/recommendation-service/internal/recorder"
)

// InteractionMessage is the wire format of platform interaction events.
type InteractionMessage struct {
	UserID     uuid.UUID              `json:"user_id"`
	BookID     uuid.UUID              `json:"book_id"`
	Type       string                 `json:"type"`
	Genre      string                 `json:"genre,omitempty"`
	AuthorID   uuid.UUID              `json:"author_id,omitempty"`
	DurationMs int64                  `json:"duration_ms,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	OccurredAt time.Time              `json:"occurred_at,omitempty"`
}

// Listener consumes interaction events from Kafka and applies them through
// the recorder.
type Listener struct {
	reader   *kafka.Reader
	recorder *recorder.Recorder
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

// NewListener creates an interaction event listener.
func NewListener(
	cfg config.KafkaConfig,
	rec *recorder.Recorder,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Listener {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  3 * time.Second,
	})

	return &Listener{
		reader:   reader,
		recorder: rec,
		metrics:  metrics,
		logger:   logger.With().Str("component", "event_listener").Logger(),
	}
}

// Run starts the consume loop. Blocks until the context is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	l.logger.Info().Msg("starting interaction event listener")

	for {
		msg, err := l.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.logger.Info().Msg("event listener stopped via context cancellation")
				return ctx.Err()
			}
			l.logger.Error().Err(err).Msg("failed to read message from Kafka")
			continue
		}

		l.logger.Debug().
			Int("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("received interaction event")

		var in InteractionMessage
		if err := json.Unmarshal(msg.Value, &in); err != nil {
			l.metrics.EventsConsumed.WithLabelValues("invalid").Inc()
			l.logger.Error().Err(err).
				Str("raw_value", string(msg.Value)).
				Msg("failed to unmarshal interaction event")
			continue
		}

		if err := l.handle(ctx, in); err != nil {
			// Validation failures are permanently bad messages; everything
			// else is a transient storage problem worth surfacing loudly.
			if errors.Is(err, domain.ErrInvalidInput) {
				l.metrics.EventsConsumed.WithLabelValues("invalid").Inc()
				l.logger.Warn().Err(err).
					Stringer("user_id", in.UserID).
					Stringer("book_id", in.BookID).
					Msg("dropping invalid interaction event")
				continue
			}
			l.metrics.EventsConsumed.WithLabelValues("failed").Inc()
			l.logger.Error().Err(err).
				Stringer("user_id", in.UserID).
				Stringer("book_id", in.BookID).
				Str("type", in.Type).
				Msg("failed to apply interaction event")
			continue
		}

		l.metrics.EventsConsumed.WithLabelValues("applied").Inc()
	}
}

// handle converts the wire message to a domain event and records it.
func (l *Listener) handle(ctx context.Context, in InteractionMessage) error {
	return l.recorder.RecordInteraction(ctx, &domain.InteractionEvent{
		UserID:     in.UserID,
		BookID:     in.BookID,
		Type:       domain.InteractionType(in.Type),
		Genre:      in.Genre,
		AuthorID:   in.AuthorID,
		Duration:   time.Duration(in.DurationMs) * time.Millisecond,
		Metadata:   in.Metadata,
		OccurredAt: in.OccurredAt,
	})
}

// Close closes the Kafka reader.
func (l *Listener) Close() error {
	l.logger.Info().Msg("closing interaction event listener")
	return l.reader.Close()
}
