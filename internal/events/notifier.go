// Package events connects reconciliation to Kafka: publishing
// transcript update notifications and consuming recording stop events.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/Rachel-Huang77/Fast-Accent-Translator/internal/observability/metrics"
)

// Notifier publishes TranscriptsUpdated events keyed by conversation id.
// With Kafka disabled it degrades to log-only mode so the pipeline keeps
// working in standalone deployments.
type Notifier struct {
	writer  *kafka.Writer
	topic   string
	enabled bool
	metrics *metrics.Metrics
}

// NotifierConfig holds Kafka publisher configuration.
type NotifierConfig struct {
	Brokers []string
	Topic   string
	Enabled bool
}

// NewNotifier creates a Kafka notifier, or a log-only one when the
// config is nil or disabled.
func NewNotifier(cfg *NotifierConfig) *Notifier {
	m := metrics.DefaultMetrics

	if cfg == nil || !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, notifier in log-only mode")
		n := &Notifier{enabled: false, metrics: m}
		if cfg != nil {
			n.topic = cfg.Topic
		}
		return n
	}

	// Longer dial timeouts help DNS resolution in Kubernetes.
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    &kafka.Transport{Dial: dialer.DialFunc},
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", cfg.Topic).
		Msg("Kafka notifier initialized")

	return &Notifier{
		writer:  writer,
		topic:   cfg.Topic,
		enabled: true,
		metrics: m,
	}
}

// TranscriptsUpdated publishes a rebuild notification for the
// conversation.
func (n *Notifier) TranscriptsUpdated(ctx context.Context, conversationID string, count int) error {
	event := struct {
		EventType      string `json:"eventType"`
		ConversationID string `json:"conversationId"`
		Count          int    `json:"count"`
		Timestamp      int64  `json:"timestamp"`
	}{
		EventType:      "transcripts.updated",
		ConversationID: conversationID,
		Count:          count,
		Timestamp:      time.Now().UnixMilli(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", n.topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("topic", n.topic).
		Str("conversationId", conversationID).
		RawJSON("payload", payload).
		Msg("Publishing transcripts updated event")

	if !n.enabled || n.writer == nil {
		n.metrics.NotificationsPublished.Inc()
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(conversationID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(event.EventType)},
		},
	}

	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", n.topic).
			Str("conversationId", conversationID).
			Msg("Failed to write to Kafka")
		n.metrics.NotificationErrors.Inc()
		return err
	}

	n.metrics.NotificationsPublished.Inc()
	return nil
}

// Close closes the Kafka writer.
func (n *Notifier) Close() error {
	if n.writer == nil {
		return nil
	}
	return n.writer.Close()
}
