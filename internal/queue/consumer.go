// Package queue contains the background consumer that listens to the
// mobile.activity queue and appends every event to the activity log.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// StartActivityConsumer connects to RabbitMQ, declares the activity queue
// (durable) and consumes it until ctx is cancelled.  Broker failures are
// logged and followed by a reconnect with exponential backoff capped at
// 30 seconds; malformed messages are rejected without requeue so the
// consumer never spins on them.
func StartActivityConsumer(ctx context.Context, url, logPath string, log zerolog.Logger) error {
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("mkdir activity log dir: %w", err)
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open activity log: %w", err)
	}
	defer f.Close()
	sink := NewActivitySink(f)
	log = log.With().Str("component", "activity-consumer").Logger()

	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Warn().Err(err).Dur("retry_in", backoff).Msg("failed to dial broker")
			if !sleep(ctx, backoff) {
				return nil
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = consumeLoop(ctx, conn, sink, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		log.Warn().Err(err).Msg("consume loop ended, reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return nil
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, sink *ActivitySink, log zerolog.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Warn().Err(err).Msg("set QoS failed")
	}
	if _, err := ch.QueueDeclare(ActivityQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, ActivityQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := sink.Handle(d.Body); err != nil {
			log.Error().Err(err).Msg("handle activity message failed")
			_ = d.Nack(false, false)
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

// ActivitySink writes decoded activity events as JSON lines.
type ActivitySink struct {
	log zerolog.Logger
}

func NewActivitySink(w io.Writer) *ActivitySink {
	return &ActivitySink{log: zerolog.New(w).With().Timestamp().Logger()}
}

// Handle decodes one message body and appends it to the log.
func (s *ActivitySink) Handle(body []byte) error {
	var ev ActivityEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Activity == "" {
		return errors.New("activity event without activity")
	}
	s.log.Info().
		Str("activity", ev.Activity).
		Str("status", ev.Status).
		Uint64("user_id", ev.UserID).
		Uint64("customer_id", ev.CustomerID).
		Str("app_type", ev.AppVariant).
		Str("imei", ev.DeviceID).
		Str("occurred_at", ev.OccurredAt).
		Msg("mobile activity")
	return nil
}
