package session

import (
	"context"
	"encoding/json"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderhub/internal/database"
	"orderhub/internal/models"
)

type published struct {
	Topic   string
	Event   string
	Payload interface{}
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []published
	joined map[string]map[string]bool
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{joined: make(map[string]map[string]bool)}
}

func (f *fakeBroadcaster) Publish(topic, event string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, published{Topic: topic, Event: event, Payload: payload})
}

func (f *fakeBroadcaster) Subscribe(connID, topic string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.joined[connID] == nil {
		f.joined[connID] = make(map[string]bool)
	}
	f.joined[connID][topic] = true
}

func (f *fakeBroadcaster) Unsubscribe(connID, topic string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.joined[connID], topic)
}

func (f *fakeBroadcaster) member(connID, topic string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.joined[connID][topic]
}

func (f *fakeBroadcaster) sent(event string) []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []published
	for _, e := range f.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeBroadcaster) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

type passwordAuth string

func (p passwordAuth) CheckPassword(pw string) bool { return pw == string(p) }

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Notify(_ context.Context, event string, _ *models.Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

// sequentialSource makes Intn(1000) yield 1, 2, 3, ...
type sequentialSource struct{ n int64 }

func (s *sequentialSource) Int63() int64 {
	s.n++
	return s.n << 32
}

func (s *sequentialSource) Seed(int64) {}

var fixedNow = time.Date(2025, 6, 15, 18, 30, 0, 0, time.Local)

type fixture struct {
	router   *Router
	store    *database.OrderStore
	bc       *fakeBroadcaster
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	store := database.NewOrderStore(db)
	t.Cleanup(func() { store.Close() })

	bc := newFakeBroadcaster()
	notifier := &recordingNotifier{}
	router := NewRouter(store, bc, passwordAuth("pw"),
		WithClock(func() time.Time { return fixedNow }),
		WithRandom(&sequentialSource{}),
		WithNotifier(notifier),
	)
	return &fixture{router: router, store: store, bc: bc, notifier: notifier}
}

func (f *fixture) call(t *testing.T, conn, action string, data interface{}) Ack {
	t.Helper()
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		require.NoError(t, err)
		raw = b
	}
	ack, ok := f.router.Dispatch(context.Background(), conn, action, raw).(Ack)
	require.True(t, ok)
	return ack
}

func (f *fixture) admin(t *testing.T, conn string) {
	t.Helper()
	f.router.Connect(conn)
	require.True(t, f.call(t, conn, "adminLogin", map[string]string{"password": "pw"}).Success)
}

func validSubmission() map[string]interface{} {
	return map[string]interface{}{
		"customerName":    "  Ann  ",
		"customerPhone":   "555-0101",
		"customerAddress": "1 Main St",
		"items": []map[string]interface{}{
			{"id": "m1", "name": "Pizza", "price": 10, "quantity": 2},
			{"id": "m2", "name": "Soda", "price": 5, "quantity": 1},
		},
	}
}

func (f *fixture) place(t *testing.T, conn string) *models.Order {
	t.Helper()
	f.router.Connect(conn)
	ack := f.call(t, conn, "placeOrder", validSubmission())
	require.True(t, ack.Success, ack.Message)
	return ack.Order
}

func TestPlaceOrder(t *testing.T) {
	f := newFixture(t)

	order := f.place(t, "c1")

	assert.Regexp(t, regexp.MustCompile(`^ORD-20250615-\d{3}$`), order.OrderID)
	assert.Equal(t, "ORD-20250615-001", order.OrderID)
	assert.Equal(t, "Ann", order.CustomerName)
	assert.Equal(t, models.StatusPending, order.Status)
	assert.Equal(t, 25.0, order.Subtotal)
	assert.Equal(t, 2.5, order.Tax)
	assert.Equal(t, 35.0, order.DeliveryFee)
	assert.Equal(t, 62.5, order.TotalAmount)
	assert.Equal(t, "cash", order.PaymentMethod)
	assert.Equal(t, "pending", order.PaymentStatus)
	require.Len(t, order.StatusHistory, 1)
	assert.Equal(t, "customer", order.StatusHistory[0].By)

	assert.True(t, f.bc.member("c1", OrderTopic(order.OrderID)))
	assert.True(t, f.bc.member("c1", TopicCustomers))

	news := f.bc.sent(EventNewOrder)
	require.Len(t, news, 1)
	assert.Equal(t, TopicAdmins, news[0].Topic)
	assert.Equal(t, order.OrderID, news[0].Payload.(NewOrderEvent).Order.OrderID)
	assert.Equal(t, []string{NotifyPlaced}, f.notifier.events)

	stored, err := f.store.FindByID(context.Background(), order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, 62.5, stored.TotalAmount)
}

func TestPlaceOrderValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(map[string]interface{})
		message string
	}{
		{"missing name", func(m map[string]interface{}) { delete(m, "customerName") }, "Customer name is required"},
		{"blank phone", func(m map[string]interface{}) { m["customerPhone"] = "   " }, "Customer phone number is required"},
		{"missing address", func(m map[string]interface{}) { m["customerAddress"] = "" }, "Customer address is required"},
		{"items not a list", func(m map[string]interface{}) { m["items"] = "pizza" }, "Order must have at least one item."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.router.Connect("c1")
			sub := validSubmission()
			tt.mutate(sub)

			ack := f.call(t, "c1", "placeOrder", sub)

			assert.False(t, ack.Success)
			assert.Equal(t, tt.message, ack.Message)
			assert.Zero(t, f.bc.count())

			n, err := f.store.Count(context.Background(), models.CountFilter{})
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestPlaceOrderEmptyItems(t *testing.T) {
	f := newFixture(t)
	f.router.Connect("c1")
	sub := validSubmission()
	sub["items"] = []interface{}{}

	ack := f.call(t, "c1", "placeOrder", sub)

	require.True(t, ack.Success)
	assert.Equal(t, 0.0, ack.Order.Subtotal)
	assert.Equal(t, 35.0, ack.Order.TotalAmount)
}

func TestTrackOrder(t *testing.T) {
	f := newFixture(t)
	order := f.place(t, "c1")
	f.router.Connect("c2")

	ack := f.call(t, "c2", "trackOrder", map[string]string{"orderId": order.OrderID})
	require.True(t, ack.Success)
	assert.Equal(t, order.OrderID, ack.Order.OrderID)
	assert.True(t, f.bc.member("c2", OrderTopic(order.OrderID)))

	ack = f.call(t, "c2", "leaveOrder", map[string]string{"orderId": order.OrderID})
	assert.True(t, ack.Success)
	assert.False(t, f.bc.member("c2", OrderTopic(order.OrderID)))

	ack = f.call(t, "c2", "trackOrder", map[string]string{"orderId": "ORD-20000101-000"})
	assert.False(t, ack.Success)
	assert.Equal(t, "Order not found", ack.Message)
	assert.False(t, f.bc.member("c2", OrderTopic("ORD-20000101-000")))
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t)
	order := f.place(t, "c1")

	ack := f.call(t, "c1", "cancelOrder", map[string]string{"orderId": order.OrderID, "reason": "changed my mind"})
	require.True(t, ack.Success, ack.Message)

	stored, err := f.store.FindByID(context.Background(), order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, stored.Status)
	require.Len(t, stored.StatusHistory, 2)
	assert.Equal(t, "changed my mind", stored.StatusHistory[1].Note)

	cancels := f.bc.sent(EventOrderCancelled)
	require.Len(t, cancels, 2)
	assert.Equal(t, OrderTopic(order.OrderID), cancels[0].Topic)
	assert.Equal(t, TopicAdmins, cancels[1].Topic)
	assert.Equal(t, "Ann", cancels[1].Payload.(CancelledEvent).CustomerName)

	ack = f.call(t, "c1", "cancelOrder", map[string]string{"orderId": order.OrderID})
	assert.False(t, ack.Success)
	assert.Equal(t, "Can not cancel the order", ack.Message)
}

func TestCancelAfterPreparingFails(t *testing.T) {
	f := newFixture(t)
	order := f.place(t, "c1")
	f.admin(t, "a1")

	for _, next := range []models.Status{models.StatusConfirmed, models.StatusPreparing} {
		ack := f.call(t, "a1", "updateOrderStatus", map[string]string{"orderId": order.OrderID, "newStatus": string(next)})
		require.True(t, ack.Success, ack.Message)
	}

	ack := f.call(t, "c1", "cancelOrder", map[string]string{"orderId": order.OrderID})
	assert.False(t, ack.Success)
	assert.Equal(t, "Can not cancel the order", ack.Message)

	stored, err := f.store.FindByID(context.Background(), order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPreparing, stored.Status)
	assert.Len(t, stored.StatusHistory, 3)
}

func TestAdminActionsRequireLogin(t *testing.T) {
	f := newFixture(t)
	order := f.place(t, "c1")

	for _, action := range []string{"getAllOrders", "updateOrderStatus", "acceptOrder", "rejectOrder", "getLiveStats"} {
		ack := f.call(t, "c1", action, map[string]interface{}{"orderId": order.OrderID, "newStatus": "confirmed"})
		assert.False(t, ack.Success, action)
		assert.Equal(t, "Unauthorized", ack.Message, action)
	}

	ack := f.call(t, "c1", "adminLogin", map[string]string{"password": "wrong"})
	assert.False(t, ack.Success)
	assert.Equal(t, "invalid password", ack.Message)
	assert.False(t, f.bc.member("c1", TopicAdmins))

	stored, err := f.store.FindByID(context.Background(), order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
}

func TestAdminLogin(t *testing.T) {
	f := newFixture(t)
	f.admin(t, "a1")

	s, ok := f.router.Session("a1")
	require.True(t, ok)
	assert.True(t, s.IsAdmin)
	assert.True(t, f.bc.member("a1", TopicAdmins))

	f.router.Disconnect("a1")
	_, ok = f.router.Session("a1")
	assert.False(t, ok)

	f.router.Connect("a1")
	ack := f.call(t, "a1", "getLiveStats", nil)
	assert.Equal(t, "Unauthorized", ack.Message)
}

func TestGetMyOrders(t *testing.T) {
	f := newFixture(t)
	first := f.place(t, "c1")
	f.place(t, "c1")
	f.router.Connect("c2")

	ack := f.call(t, "c2", "getMyOrders", map[string]string{"customerPhone": "555-0101"})
	require.True(t, ack.Success)
	assert.Len(t, ack.Orders, 2)
	assert.Contains(t, []string{ack.Orders[0].OrderID, ack.Orders[1].OrderID}, first.OrderID)

	ack = f.call(t, "c2", "getMyOrders", map[string]string{"customerPhone": "000"})
	require.True(t, ack.Success)
	b, err := json.Marshal(ack)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"orders":[]}`, string(b))
}

func TestGetAllOrdersFilter(t *testing.T) {
	f := newFixture(t)
	a := f.place(t, "c1")
	f.place(t, "c1")
	f.admin(t, "a1")
	require.True(t, f.call(t, "a1", "acceptOrder", map[string]string{"orderId": a.OrderID}).Success)

	ack := f.call(t, "a1", "getAllOrders", nil)
	require.True(t, ack.Success)
	assert.Len(t, ack.Orders, 2)

	ack = f.call(t, "a1", "getAllOrders", map[string]string{"status": "confirmed"})
	require.True(t, ack.Success)
	require.Len(t, ack.Orders, 1)
	assert.Equal(t, models.StatusConfirmed, ack.Orders[0].Status)
}

func TestUpdateOrderStatus(t *testing.T) {
	f := newFixture(t)
	order := f.place(t, "c1")
	f.admin(t, "a1")

	ack := f.call(t, "a1", "updateOrderStatus", map[string]string{"orderId": order.OrderID, "newStatus": "delivered"})
	assert.False(t, ack.Success)
	assert.Equal(t, "Invalid status transition", ack.Message)

	ack = f.call(t, "a1", "updateOrderStatus", map[string]string{"orderId": order.OrderID, "newStatus": "confirmed"})
	require.True(t, ack.Success, ack.Message)
	assert.Equal(t, models.StatusConfirmed, ack.Order.Status)
	assert.Equal(t, "a1", ack.Order.StatusHistory[1].By)

	updates := f.bc.sent(EventStatusUpdated)
	require.Len(t, updates, 1)
	assert.Equal(t, OrderTopic(order.OrderID), updates[0].Topic)
	assert.Equal(t, models.StatusConfirmed, updates[0].Payload.(StatusUpdatedEvent).Status)

	changes := f.bc.sent(EventOrderStatusChanged)
	require.Len(t, changes, 1)
	assert.Equal(t, StatusChangedEvent{OrderID: order.OrderID, NewStatus: models.StatusConfirmed}, changes[0].Payload)

	ack = f.call(t, "a1", "updateOrderStatus", map[string]string{"orderId": "ORD-20000101-000", "newStatus": "confirmed"})
	assert.Equal(t, "Order not found", ack.Message)
}

func TestAcceptOrder(t *testing.T) {
	f := newFixture(t)
	order := f.place(t, "c1")
	f.admin(t, "a1")

	ack := f.call(t, "a1", "acceptOrder", map[string]interface{}{"orderId": order.OrderID, "estimatedTime": 20})
	require.True(t, ack.Success, ack.Message)
	assert.Equal(t, models.StatusConfirmed, ack.Order.Status)
	require.NotNil(t, ack.Order.EstimatedTime)
	assert.Equal(t, 20, *ack.Order.EstimatedTime)

	accepted := f.bc.sent(EventOrderAccepted)
	require.Len(t, accepted, 1)
	assert.Equal(t, AcceptedEvent{OrderID: order.OrderID, EstimatedTime: 20}, accepted[0].Payload)
	require.Len(t, f.bc.sent(EventOrderAcceptedByAdmin), 1)

	ack = f.call(t, "a1", "acceptOrder", map[string]interface{}{"orderId": order.OrderID})
	assert.False(t, ack.Success)
	assert.Equal(t, "Can not accept this order", ack.Message)

	ack = f.call(t, "a1", "rejectOrder", map[string]interface{}{"orderId": order.OrderID})
	assert.False(t, ack.Success)
	assert.Equal(t, "Can not reject this order", ack.Message)
}

func TestAcceptOrderDefaultEstimate(t *testing.T) {
	f := newFixture(t)
	order := f.place(t, "c1")
	f.admin(t, "a1")

	ack := f.call(t, "a1", "acceptOrder", map[string]interface{}{"orderId": order.OrderID})
	require.True(t, ack.Success)
	assert.Equal(t, defaultEstimatedTime, *ack.Order.EstimatedTime)
}

func TestRejectOrder(t *testing.T) {
	f := newFixture(t)
	order := f.place(t, "c1")
	f.admin(t, "a1")

	ack := f.call(t, "a1", "rejectOrder", map[string]string{"orderId": order.OrderID, "reason": "closed"})
	require.True(t, ack.Success, ack.Message)

	stored, err := f.store.FindByID(context.Background(), order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, stored.Status)
	assert.Equal(t, "closed", stored.StatusHistory[1].Note)

	rejected := f.bc.sent(EventOrderRejected)
	require.Len(t, rejected, 1)
	assert.Equal(t, RejectedEvent{OrderID: order.OrderID, Reason: "closed"}, rejected[0].Payload)
	require.Len(t, f.bc.sent(EventOrderRejectedByAdmin), 1)
	assert.Equal(t, []string{NotifyPlaced, NotifyRejected}, f.notifier.events)

	ack = f.call(t, "c1", "cancelOrder", map[string]string{"orderId": order.OrderID})
	assert.Equal(t, "Can not cancel the order", ack.Message)
}

func TestConcurrentDecisionsApplyOnce(t *testing.T) {
	f := newFixture(t)
	order := f.place(t, "c1")

	const admins = 8
	for i := 0; i < admins; i++ {
		f.admin(t, connName(i))
	}

	var wg sync.WaitGroup
	acks := make([]Ack, admins)
	for i := 0; i < admins; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			action := "acceptOrder"
			if i%2 == 1 {
				action = "rejectOrder"
			}
			acks[i] = f.call(t, connName(i), action, map[string]string{"orderId": order.OrderID})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, ack := range acks {
		if ack.Success {
			wins++
		}
	}
	assert.Equal(t, 1, wins)

	stored, err := f.store.FindByID(context.Background(), order.OrderID)
	require.NoError(t, err)
	require.Len(t, stored.StatusHistory, 2)
	assert.Equal(t, stored.Status, stored.StatusHistory[1].Status)
}

func connName(i int) string {
	return "admin-" + string(rune('a'+i))
}

func TestGetLiveStats(t *testing.T) {
	f := newFixture(t)
	a := f.place(t, "c1")
	b := f.place(t, "c1")
	f.place(t, "c1")
	f.admin(t, "a1")
	require.True(t, f.call(t, "a1", "acceptOrder", map[string]string{"orderId": a.OrderID}).Success)
	require.True(t, f.call(t, "c1", "cancelOrder", map[string]string{"orderId": b.OrderID}).Success)

	old := &models.Order{
		OrderID:   "ORD-20250101-001",
		Status:    models.StatusDelivered,
		Items:     models.LineItems{},
		CreatedAt: fixedNow.AddDate(0, 0, -3),
		UpdatedAt: fixedNow.AddDate(0, 0, -3),
	}
	require.NoError(t, f.store.Insert(context.Background(), old))

	ack := f.call(t, "a1", "getLiveStats", nil)
	require.True(t, ack.Success, ack.Message)
	assert.Equal(t, models.Stats{
		TotalToday: 3,
		Pending:    1,
		Confirmed:  1,
		Delivered:  1,
		Cancelled:  1,
	}, *ack.Stats)
}

type panickingStore struct{ OrderStore }

func (panickingStore) FindByID(context.Context, string) (*models.Order, error) {
	panic("boom")
}

func TestDispatchRecoversPanics(t *testing.T) {
	r := NewRouter(panickingStore{}, newFakeBroadcaster(), passwordAuth("pw"))
	r.Connect("c1")

	var ack interface{}
	require.NotPanics(t, func() {
		ack = r.Dispatch(context.Background(), "c1", "trackOrder", json.RawMessage(`{"orderId":"x"}`))
	})
	assert.Equal(t, failure("Internal error"), ack)
}

func TestDispatchUnknownAction(t *testing.T) {
	f := newFixture(t)
	f.router.Connect("c1")

	ack := f.call(t, "c1", "launchRocket", nil)
	assert.False(t, ack.Success)
	assert.Equal(t, "Unknown action: launchRocket", ack.Message)
}
