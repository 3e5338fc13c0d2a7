// Package events publishes order lifecycle changes to a RabbitMQ topic exchange
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"orderhub/internal/logger"
	"orderhub/internal/models"
)

const (
	DefaultExchange = "orders_topic"
	publishTimeout  = 5 * time.Second
)

var ErrNack = errors.New("publish NACK from broker")

// OrderEvent is the message body sent for every lifecycle change
type OrderEvent struct {
	Event        string        `json:"event"`
	OrderID      string        `json:"orderId"`
	Status       models.Status `json:"status"`
	CustomerName string        `json:"customerName"`
	TotalAmount  float64       `json:"totalAmount"`
	OccurredAt   time.Time     `json:"occurredAt"`
}

// channel is the subset of *amqp.Channel the publisher uses
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends OrderEvents with publisher confirms
type Publisher struct {
	conn     *amqp.Connection
	ch       channel
	acks     <-chan amqp.Confirmation
	exchange string

	mu sync.Mutex
}

// Dial connects to url, declares exchange and enables confirms
func Dial(url, exchange string) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}
	acks := ch.NotifyPublish(make(chan amqp.Confirmation, 1))

	return &Publisher{conn: conn, ch: ch, acks: acks, exchange: exchange}, nil
}

// Notify publishes event for o. Failures are logged and never reach the caller.
func (p *Publisher) Notify(ctx context.Context, event string, o *models.Order) {
	body, err := json.Marshal(OrderEvent{
		Event:        event,
		OrderID:      o.OrderID,
		Status:       o.Status,
		CustomerName: o.CustomerName,
		TotalAmount:  o.TotalAmount,
		OccurredAt:   o.UpdatedAt.UTC(),
	})
	if err != nil {
		logger.Log.Error("marshal order event", zap.String("event", event), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := p.Publish(ctx, event, body); err != nil {
		logger.Log.Warn("order event not published",
			zap.String("event", event),
			zap.String("order", o.OrderID),
			zap.Error(err))
	}
}

// Publish sends body with routing key and waits for the broker confirm
func (p *Publisher) Publish(ctx context.Context, key string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}); err != nil {
		return err
	}

	select {
	case conf := <-p.acks:
		if conf.Ack {
			return nil
		}
		return ErrNack
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close shuts the channel and connection
func (p *Publisher) Close() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}
