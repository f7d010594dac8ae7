// README: RabbitMQ publisher for ride events, reconnecting in the background.
package infra

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	publishTimeout = 3 * time.Second
	reconnectDelay = 3 * time.Second
)

var ErrBrokerClosed = errors.New("amqp connection closed")

// Rabbit publishes persistent JSON messages to one topic exchange.
type Rabbit struct {
	url      string
	exchange string
	log      *slog.Logger

	mu        sync.Mutex
	conn      *amqp.Connection
	ch        *amqp.Channel
	connClose chan *amqp.Error
	closed    atomic.Bool
}

func NewRabbit(url, exchange string, log *slog.Logger) (*Rabbit, error) {
	r := &Rabbit{url: url, exchange: exchange, log: log}
	if err := r.connect(); err != nil {
		return nil, fmt.Errorf("rabbit connect: %w", err)
	}
	go r.reconnectLoop()
	return r, nil
}

func (r *Rabbit) connect() error {
	conn, err := amqp.Dial(r.url)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}
	if err := ch.ExchangeDeclare(r.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("declare exchange %s: %w", r.exchange, err)
	}
	closeCh := conn.NotifyClose(make(chan *amqp.Error, 1))

	r.mu.Lock()
	r.conn, r.ch, r.connClose = conn, ch, closeCh
	r.mu.Unlock()
	return nil
}

func (r *Rabbit) reconnectLoop() {
	for {
		r.mu.Lock()
		closeCh := r.connClose
		r.mu.Unlock()
		<-closeCh
		if r.closed.Load() {
			return
		}
		r.log.Warn("rabbitmq connection lost")
		for !r.closed.Load() {
			if err := r.connect(); err != nil {
				time.Sleep(reconnectDelay)
				continue
			}
			r.log.Info("rabbitmq reconnected")
			break
		}
	}
}

// Publish sends body under routingKey.
func (r *Rabbit) Publish(ctx context.Context, routingKey string, body []byte) error {
	r.mu.Lock()
	ch := r.ch
	r.mu.Unlock()
	if r.closed.Load() || ch == nil || ch.IsClosed() {
		return ErrBrokerClosed
	}
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return ch.PublishWithContext(pubCtx, r.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
}

func (r *Rabbit) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ch != nil {
		_ = r.ch.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
