package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"orderhub/internal/logger"
	"orderhub/internal/models"
	"orderhub/internal/orders"
)

// listLimit caps getMyOrders and getAllOrders results
const listLimit = 20

type handler func(ctx context.Context, s Session, data json.RawMessage) (Ack, error)

// Router owns the live sessions and dispatches their actions
type Router struct {
	store    OrderStore
	bc       Broadcaster
	auth     Authenticator
	notifier Notifier
	obs      ActionObserver
	now      func() time.Time
	rnd      orders.Intner

	mu       sync.RWMutex
	sessions map[string]Session

	handlers map[string]handler
}

// NewRouter wires a Router to its store, broadcaster and admin authenticator
func NewRouter(store OrderStore, bc Broadcaster, auth Authenticator, opts ...Option) *Router {
	r := &Router{
		store:    store,
		bc:       bc,
		auth:     auth,
		notifier: nopNotifier{},
		obs:      nopObserver{},
		now:      time.Now,
		rnd:      &lockedRand{r: rand.New(rand.NewSource(time.Now().UnixNano()))},
		sessions: make(map[string]Session),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.handlers = map[string]handler{
		"placeOrder":        r.placeOrder,
		"trackOrder":        r.trackOrder,
		"leaveOrder":        r.leaveOrder,
		"cancelOrder":       r.cancelOrder,
		"getMyOrders":       r.getMyOrders,
		"adminLogin":        r.adminLogin,
		"getAllOrders":      r.getAllOrders,
		"updateOrderStatus": r.updateOrderStatus,
		"acceptOrder":       r.acceptOrder,
		"rejectOrder":       r.rejectOrder,
		"getLiveStats":      r.getLiveStats,
	}
	return r
}

// Connect starts a non-admin session
func (r *Router) Connect(connID string) {
	r.mu.Lock()
	r.sessions[connID] = Session{ConnectionID: connID}
	r.mu.Unlock()
}

// Disconnect drops the session and with it any admin privilege
func (r *Router) Disconnect(connID string) {
	r.mu.Lock()
	delete(r.sessions, connID)
	r.mu.Unlock()
}

// Session returns the current session of connID
func (r *Router) Session(connID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[connID]
	return s, ok
}

func (r *Router) grantAdmin(connID string) {
	r.mu.Lock()
	r.sessions[connID] = Session{ConnectionID: connID, IsAdmin: true}
	r.mu.Unlock()
}

// Dispatch runs one action and returns its acknowledgement. It never panics.
func (r *Router) Dispatch(ctx context.Context, connID, action string, data json.RawMessage) interface{} {
	start := time.Now()
	logger.Log.Debug("action", zap.String("action", action), zap.String("conn", connID))

	h, ok := r.handlers[action]
	if !ok {
		r.obs.ObserveAction(action, "unknown", time.Since(start))
		return failure("Unknown action: " + action)
	}

	s, ok := r.Session(connID)
	if !ok {
		s = Session{ConnectionID: connID}
	}

	ack, err := r.run(ctx, h, s, data)
	result := "ok"
	if err != nil {
		kind := orders.KindOf(err)
		result = kind.String()
		ack = failure(orders.MessageOf(err, "Internal error"))
		if kind == orders.KindStore {
			logger.Log.Error("action failed",
				zap.String("action", action),
				zap.String("conn", connID),
				zap.Error(err))
		} else {
			logger.Log.Warn("action denied",
				zap.String("action", action),
				zap.String("conn", connID),
				zap.String("reason", ack.Message))
		}
	}
	r.obs.ObserveAction(action, result, time.Since(start))
	return ack
}

func (r *Router) run(ctx context.Context, h handler, s Session, data json.RawMessage) (ack Ack, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = orders.StoreFailure("Internal error", fmt.Errorf("panic: %v", rec))
		}
	}()
	return h(ctx, s, data)
}

func (r *Router) notify(ctx context.Context, event string, o *models.Order) {
	r.notifier.Notify(ctx, event, o)
}

// decode fills v from an action payload; absent payloads leave v zeroed
func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return orders.Validation("Invalid request payload")
	}
	return nil
}

func requireAdmin(s Session) error {
	if !s.IsAdmin {
		return orders.Unauthorized("Unauthorized")
	}
	return nil
}

// load fetches an order, mapping absence to a not-found error
func (r *Router) load(ctx context.Context, orderID, failMsg string) (*models.Order, error) {
	o, err := r.store.FindByID(ctx, orderID)
	if errors.Is(err, models.ErrOrderNotFound) {
		return nil, orders.NotFound("Order not found")
	}
	if err != nil {
		return nil, orders.StoreFailure(failMsg, err)
	}
	return o, nil
}

// transition applies upd if the order is still in expected.
// A concurrent change surfaces as denied.
func (r *Router) transition(ctx context.Context, orderID string, expected models.Status, upd models.StatusUpdate, denied, failMsg string) (*models.Order, error) {
	o, err := r.store.ConditionalUpdate(ctx, orderID, expected, upd)
	switch {
	case err == nil:
		return o, nil
	case errors.Is(err, models.ErrStatusConflict):
		return nil, orders.InvalidTransition(denied)
	case errors.Is(err, models.ErrOrderNotFound):
		return nil, orders.NotFound("Order not found")
	default:
		return nil, orders.StoreFailure(failMsg, err)
	}
}

// startOfDay returns local midnight of t
func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
