// Package session implements the per-connection order action router: it
// authenticates admin connections, manages topic membership, runs the status
// transition policy against the store and broadcasts the resulting events.
package session

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"orderhub/internal/models"
)

// Session is the router's view of one live connection.
// Admin privilege lives here and is lost when the connection closes.
type Session struct {
	ConnectionID string
	IsAdmin      bool
}

// Broadcast topics
const (
	TopicAdmins    = "admins"
	TopicCustomers = "customers"
)

// OrderTopic returns the topic carrying one order's updates
func OrderTopic(orderID string) string {
	return "order-" + orderID
}

// OrderStore is the persistence contract the router needs
type OrderStore interface {
	FindByID(ctx context.Context, orderID string) (*models.Order, error)
	Insert(ctx context.Context, o *models.Order) error
	FindByPhone(ctx context.Context, phone string, limit int) ([]*models.Order, error)
	FindAll(ctx context.Context, status models.Status, limit int) ([]*models.Order, error)
	ConditionalUpdate(ctx context.Context, orderID string, expected models.Status, upd models.StatusUpdate) (*models.Order, error)
	Count(ctx context.Context, f models.CountFilter) (int64, error)
}

// Broadcaster fans events out to topic members
type Broadcaster interface {
	Publish(topic, event string, payload interface{})
	Subscribe(connID, topic string)
	Unsubscribe(connID, topic string)
}

// Authenticator checks the admin password
type Authenticator interface {
	CheckPassword(password string) bool
}

// Notifier forwards order lifecycle changes to systems outside the realtime channel
type Notifier interface {
	Notify(ctx context.Context, event string, order *models.Order)
}

// ActionObserver records per-action outcomes
type ActionObserver interface {
	ObserveAction(action, result string, d time.Duration)
}

// Option configures a Router
type Option func(*Router)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// WithRandom sets the source of order id suffixes
func WithRandom(src rand.Source) Option {
	return func(r *Router) { r.rnd = &lockedRand{r: rand.New(src)} }
}

// WithNotifier sets the lifecycle notifier
func WithNotifier(n Notifier) Option {
	return func(r *Router) { r.notifier = n }
}

// WithObserver sets the action metrics sink
func WithObserver(o ActionObserver) Option {
	return func(r *Router) { r.obs = o }
}

// lockedRand makes a rand.Rand safe for the router's concurrent handlers
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, string, *models.Order) {}

type nopObserver struct{}

func (nopObserver) ObserveAction(string, string, time.Duration) {}
