// Package kafkasink publishes audit events to a Kafka topic, one JSON message
// per event keyed by user id.
package kafkasink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/tunehub/authcore/internal/audit"
)

// DefaultTopic receives audit events when Config.Topic is empty.
const DefaultTopic = "authcore.audit"

// MessageWriter is the part of *kafka.Writer the sink uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config describes the Kafka target.
type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// Sink implements audit.Sink on top of a Kafka writer. Write failures are
// logged and the event is dropped.
type Sink struct {
	writer  MessageWriter
	topic   string
	timeout time.Duration
	logger  *zap.Logger
}

// New builds a Sink with a kafka.Writer for cfg.Brokers.
func New(cfg Config, logger *zap.Logger) (*Sink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafkasink: at least one broker required")
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return NewWithWriter(w, cfg.WriteTimeout, logger), nil
}

// NewWithWriter wraps an existing writer. The writer must already target a topic.
func NewWithWriter(w MessageWriter, timeout time.Duration, logger *zap.Logger) *Sink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{writer: w, timeout: timeout, logger: logger}
}

func (s *Sink) Emit(ctx context.Context, event audit.Event) {
	value, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("marshal audit event", zap.String("event_type", event.EventType), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.UserID),
		Value: value,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.logger.Error("publish audit event",
			zap.String("event_type", event.EventType),
			zap.String("user_id", event.UserID),
			zap.Error(err),
		)
	}
}

// Close flushes and closes the underlying writer.
func (s *Sink) Close() error {
	return s.writer.Close()
}
