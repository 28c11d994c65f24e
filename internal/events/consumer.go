package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/Rachel-Huang77/Fast-Accent-Translator/internal/models"
	"github.com/Rachel-Huang77/Fast-Accent-Translator/internal/observability/metrics"
)

// StopHandler runs one reconciliation pass for a recording stop event.
type StopHandler func(ctx context.Context, event models.RecordingStopped)

// Consumer reads recording stop events from Kafka and dispatches each
// valid one to the handler in its own goroutine, so a long pass never
// stalls consumption for other conversations.
type Consumer struct {
	reader  *kafka.Reader
	handler StopHandler
	metrics *metrics.Metrics
}

// ConsumerConfig holds Kafka consumer configuration.
type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

func NewConsumer(cfg ConsumerConfig, handler StopHandler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
	})

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", cfg.Topic).
		Str("groupId", cfg.GroupID).
		Msg("Kafka consumer initialized")

	return &Consumer{
		reader:  reader,
		handler: handler,
		metrics: metrics.DefaultMetrics,
	}
}

// Run consumes until the context is canceled or the reader is closed.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		c.metrics.StopEventsConsumed.Inc()

		event, ok := c.decode(msg)
		if !ok {
			continue
		}

		go c.handler(ctx, event)
	}
}

// decode parses and validates a stop event. Invalid messages are
// counted and skipped rather than failing the consumer.
func (c *Consumer) decode(msg kafka.Message) (models.RecordingStopped, bool) {
	var event models.RecordingStopped
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		log.Warn().
			Err(err).
			Str("key", string(msg.Key)).
			Msg("Discarding malformed stop event")
		c.metrics.StopEventsInvalid.Inc()
		return event, false
	}
	if event.ConversationID == "" || event.AudioPath == "" {
		log.Warn().
			Str("key", string(msg.Key)).
			Str("conversationId", event.ConversationID).
			Msg("Discarding stop event with missing fields")
		c.metrics.StopEventsInvalid.Inc()
		return event, false
	}
	return event, true
}

// Close closes the Kafka reader, unblocking Run.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
