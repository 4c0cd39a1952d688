// Package service publishes domain events to RabbitMQ.  Publishing is best
// effort: failures are logged and never fail the request that produced the
// event.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	q "github.com/iliyamo/mobile-seat-admission/internal/queue"
)

const (
	publishTimeout   = 2 * time.Second
	reconnectBackoff = 5 * time.Second
	bufferSize       = 1024
)

// ErrBrokerBackoff is returned by Publish while a failed connection attempt
// is still within its backoff window.
var ErrBrokerBackoff = errors.New("broker unavailable, reconnect pending")

// ActivityPublisher sends ActivityEvents to the mobile.activity queue over a
// lazily (re)opened connection.  Record only enqueues; Run owns all broker
// I/O so a slow or dead broker never delays a request.
type ActivityPublisher struct {
	url     string
	log     zerolog.Logger
	pending chan q.ActivityEvent

	mu      sync.Mutex
	conn    *amqp.Connection
	ch      *amqp.Channel
	retryAt time.Time
	now     func() time.Time
}

func NewActivityPublisher(url string, log zerolog.Logger) *ActivityPublisher {
	return &ActivityPublisher{
		url:     url,
		log:     log.With().Str("component", "activity-publisher").Logger(),
		pending: make(chan q.ActivityEvent, bufferSize),
		now:     time.Now,
	}
}

// Record queues ev for Run and returns immediately.  Events are dropped,
// with a warning, when the buffer is full.
func (p *ActivityPublisher) Record(_ context.Context, ev q.ActivityEvent) {
	if ev.OccurredAt == "" {
		ev.OccurredAt = time.Now().UTC().Format(time.RFC3339)
	}
	select {
	case p.pending <- ev:
	default:
		p.log.Warn().Str("activity", ev.Activity).Uint64("user_id", ev.UserID).Msg("activity buffer full, event dropped")
	}
}

// Run publishes queued events until ctx is done.
func (p *ActivityPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-p.pending:
			if err := p.Publish(ctx, ev); err != nil {
				p.log.Warn().Err(err).Str("activity", ev.Activity).Uint64("user_id", ev.UserID).Msg("activity publish failed")
			}
		}
	}
}

// Publish sends ev as a persistent JSON message.  A failed publish drops the
// cached channel so the next call reconnects; a failed connect makes calls
// fail with ErrBrokerBackoff for reconnectBackoff.
func (p *ActivityPublisher) Publish(ctx context.Context, ev q.ActivityEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	err = ch.PublishWithContext(ctx,
		"",                  // default exchange
		q.ActivityQueueName, // routing key = queue name
		false,               // mandatory
		false,               // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
	if err != nil {
		p.reset()
	}
	return err
}

// channel returns the cached channel or dials a new one.  Callers hold mu.
func (p *ActivityPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() && p.conn != nil && !p.conn.IsClosed() {
		return p.ch, nil
	}
	if p.now().Before(p.retryAt) {
		return nil, ErrBrokerBackoff
	}
	p.reset()
	conn, err := amqp.DialConfig(p.url, amqp.Config{Dial: amqp.DefaultDial(publishTimeout)})
	if err != nil {
		p.retryAt = p.now().Add(reconnectBackoff)
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		p.retryAt = p.now().Add(reconnectBackoff)
		return nil, err
	}
	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(q.ActivityQueueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		p.retryAt = p.now().Add(reconnectBackoff)
		return nil, err
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *ActivityPublisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}

// Close releases the broker connection.
func (p *ActivityPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
}
