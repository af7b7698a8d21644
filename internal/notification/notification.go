// Package notification delivers fire-and-forget messages to operators.
// Callers log Send errors and carry on.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"compliance/internal/platform/kafka/producer"
	"compliance/pkg/requestcontext"
)

// Kinds of notification.
const (
	KindRequestCompleted = "dsr_completed"
)

// Notification is one message addressed to an operator.
type Notification struct {
	RecipientID string    `json:"recipient_id"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Kind        string    `json:"kind"`
	ReferenceID string    `json:"reference_id"`
	SentAt      time.Time `json:"sent_at"`
}

// Sender is the port used by the request registry.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// LogSender writes notifications to the log. Used when Kafka is not configured.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, n Notification) error {
	s.logger.InfoContext(ctx, "notification queued",
		"kind", n.Kind,
		"reference_id", n.ReferenceID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

// KafkaSender publishes notifications to a topic consumed by the mailer.
type KafkaSender struct {
	producer producer.Publisher
	topic    string
	timeout  time.Duration
}

func NewKafkaSender(p producer.Publisher, topic string, timeout time.Duration) *KafkaSender {
	return &KafkaSender{producer: p, topic: topic, timeout: timeout}
}

func (s *KafkaSender) Send(ctx context.Context, n Notification) error {
	if n.SentAt.IsZero() {
		n.SentAt = requestcontext.Now(ctx)
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	err = s.producer.Produce(ctx, &producer.Message{
		Topic: s.topic,
		Key:   []byte(n.ReferenceID),
		Value: payload,
		Headers: map[string]string{
			"kind": n.Kind,
		},
	})
	if err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
