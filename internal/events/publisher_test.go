package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderhub/internal/models"
)

type fakeChannel struct {
	acks      chan amqp.Confirmation
	ack       bool
	exchange  string
	keys      []string
	published []amqp.Publishing
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.exchange = exchange
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	f.acks <- amqp.Confirmation{DeliveryTag: uint64(len(f.keys)), Ack: f.ack}
	return nil
}

func (f *fakeChannel) Close() error { return nil }

func newTestPublisher(ack bool) (*Publisher, *fakeChannel) {
	acks := make(chan amqp.Confirmation, 1)
	ch := &fakeChannel{acks: acks, ack: ack}
	return &Publisher{ch: ch, acks: acks, exchange: DefaultExchange}, ch
}

func TestNotifyPublishesOrderEvent(t *testing.T) {
	p, ch := newTestPublisher(true)
	order := &models.Order{
		OrderID:      "ORD-20250101-007",
		CustomerName: "Ann",
		Status:       models.StatusConfirmed,
		TotalAmount:  62.5,
		UpdatedAt:    time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC),
	}

	p.Notify(context.Background(), "order.accepted", order)

	require.Len(t, ch.published, 1)
	assert.Equal(t, DefaultExchange, ch.exchange)
	assert.Equal(t, []string{"order.accepted"}, ch.keys)
	assert.Equal(t, amqp.Persistent, ch.published[0].DeliveryMode)

	var ev OrderEvent
	require.NoError(t, json.Unmarshal(ch.published[0].Body, &ev))
	assert.Equal(t, "order.accepted", ev.Event)
	assert.Equal(t, "ORD-20250101-007", ev.OrderID)
	assert.Equal(t, models.StatusConfirmed, ev.Status)
	assert.Equal(t, 62.5, ev.TotalAmount)
}

func TestPublishNack(t *testing.T) {
	p, _ := newTestPublisher(false)

	err := p.Publish(context.Background(), "order.placed", []byte(`{}`))
	assert.ErrorIs(t, err, ErrNack)
}

func TestNotifySwallowsNack(t *testing.T) {
	p, ch := newTestPublisher(false)

	assert.NotPanics(t, func() {
		p.Notify(context.Background(), "order.placed", &models.Order{OrderID: "x"})
	})
	assert.Len(t, ch.published, 1)
}
