package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"orderhub/internal/models"
	"orderhub/internal/orders"
)

const defaultEstimatedTime = 30

type orderRef struct {
	OrderID string `json:"orderId"`
}

type cancelRequest struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason"`
}

type phoneRequest struct {
	CustomerPhone string `json:"customerPhone"`
}

type loginRequest struct {
	Password string `json:"password"`
}

type listRequest struct {
	Status string `json:"status"`
}

type statusRequest struct {
	OrderID   string `json:"orderId"`
	NewStatus string `json:"newStatus"`
}

type acceptRequest struct {
	OrderID       string `json:"orderId"`
	EstimatedTime *int   `json:"estimatedTime"`
}

type rejectRequest struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason"`
}

func decodeOrderID(data json.RawMessage) (string, error) {
	var req orderRef
	if err := decode(data, &req); err != nil {
		return "", err
	}
	if req.OrderID == "" {
		return "", orders.Validation("Order id is required")
	}
	return req.OrderID, nil
}

func (r *Router) placeOrder(ctx context.Context, s Session, data json.RawMessage) (Ack, error) {
	sub := orders.DecodeSubmission(data)
	if err := orders.Validate(sub); err != nil {
		return Ack{}, err
	}
	items, err := orders.ParseItems(sub.Items)
	if err != nil {
		return Ack{}, err
	}

	now := r.now()
	order := orders.NewOrder(sub, items, orders.GenerateOrderID(now, r.rnd), orders.CalculateTotals(items), now)
	if err := r.store.Insert(ctx, order); err != nil {
		return Ack{}, orders.StoreFailure("Failed to place order", err)
	}

	r.bc.Subscribe(s.ConnectionID, OrderTopic(order.OrderID))
	r.bc.Subscribe(s.ConnectionID, TopicCustomers)
	r.bc.Publish(TopicAdmins, EventNewOrder, NewOrderEvent{Order: order})
	r.notify(ctx, NotifyPlaced, order)

	return Ack{Success: true, Order: order}, nil
}

func (r *Router) trackOrder(ctx context.Context, s Session, data json.RawMessage) (Ack, error) {
	orderID, err := decodeOrderID(data)
	if err != nil {
		return Ack{}, err
	}
	order, err := r.load(ctx, orderID, "Failed to track order")
	if err != nil {
		return Ack{}, err
	}

	r.bc.Subscribe(s.ConnectionID, OrderTopic(order.OrderID))
	return Ack{Success: true, Order: order}, nil
}

func (r *Router) leaveOrder(_ context.Context, s Session, data json.RawMessage) (Ack, error) {
	orderID, err := decodeOrderID(data)
	if err != nil {
		return Ack{}, err
	}
	r.bc.Unsubscribe(s.ConnectionID, OrderTopic(orderID))
	return Ack{Success: true}, nil
}

func (r *Router) cancelOrder(ctx context.Context, s Session, data json.RawMessage) (Ack, error) {
	var req cancelRequest
	if err := decode(data, &req); err != nil {
		return Ack{}, err
	}
	if req.OrderID == "" {
		return Ack{}, orders.Validation("Order id is required")
	}

	const denied = "Can not cancel the order"
	order, err := r.load(ctx, req.OrderID, "Failed to cancel order")
	if err != nil {
		return Ack{}, err
	}
	if !orders.CanCancel(order.Status) {
		return Ack{}, orders.InvalidTransition(denied)
	}

	note := req.Reason
	if note == "" {
		note = "Cancelled by customer"
	}
	now := r.now()
	updated, err := r.transition(ctx, order.OrderID, order.Status, models.StatusUpdate{
		Status:    models.StatusCancelled,
		UpdatedAt: now,
		Entry: models.StatusEntry{
			Status:    models.StatusCancelled,
			Timestamp: now,
			By:        s.ConnectionID,
			Note:      note,
		},
	}, denied, "Failed to cancel order")
	if err != nil {
		return Ack{}, err
	}

	r.bc.Publish(OrderTopic(updated.OrderID), EventOrderCancelled, CancelledEvent{OrderID: updated.OrderID})
	r.bc.Publish(TopicAdmins, EventOrderCancelled, CancelledEvent{
		OrderID:      updated.OrderID,
		CustomerName: updated.CustomerName,
	})
	r.notify(ctx, NotifyCancelled, updated)

	return Ack{Success: true}, nil
}

func (r *Router) getMyOrders(ctx context.Context, _ Session, data json.RawMessage) (Ack, error) {
	var req phoneRequest
	if err := decode(data, &req); err != nil {
		return Ack{}, err
	}
	phone := strings.TrimSpace(req.CustomerPhone)
	if phone == "" {
		return Ack{}, orders.Validation("Customer phone number is required")
	}

	list, err := r.store.FindByPhone(ctx, phone, listLimit)
	if err != nil {
		return Ack{}, orders.StoreFailure("Failed to load orders", err)
	}
	if list == nil {
		list = []*models.Order{}
	}
	return Ack{Success: true, Orders: list}, nil
}

func (r *Router) adminLogin(_ context.Context, s Session, data json.RawMessage) (Ack, error) {
	var req loginRequest
	if err := decode(data, &req); err != nil {
		return Ack{}, err
	}
	if r.auth == nil || !r.auth.CheckPassword(req.Password) {
		return Ack{}, orders.Unauthorized("invalid password")
	}

	r.grantAdmin(s.ConnectionID)
	r.bc.Subscribe(s.ConnectionID, TopicAdmins)
	return Ack{Success: true}, nil
}

func (r *Router) getAllOrders(ctx context.Context, s Session, data json.RawMessage) (Ack, error) {
	if err := requireAdmin(s); err != nil {
		return Ack{}, err
	}
	var req listRequest
	if err := decode(data, &req); err != nil {
		return Ack{}, err
	}

	list, err := r.store.FindAll(ctx, models.Status(req.Status), listLimit)
	if err != nil {
		return Ack{}, orders.StoreFailure("Failed to load orders", err)
	}
	if list == nil {
		list = []*models.Order{}
	}
	return Ack{Success: true, Orders: list}, nil
}

func (r *Router) updateOrderStatus(ctx context.Context, s Session, data json.RawMessage) (Ack, error) {
	if err := requireAdmin(s); err != nil {
		return Ack{}, err
	}
	var req statusRequest
	if err := decode(data, &req); err != nil {
		return Ack{}, err
	}
	if req.OrderID == "" {
		return Ack{}, orders.Validation("Order id is required")
	}

	const denied = "Invalid status transition"
	order, err := r.load(ctx, req.OrderID, "Failed to update order")
	if err != nil {
		return Ack{}, err
	}
	next := models.Status(req.NewStatus)
	if !orders.CanTransition(order.Status, next) {
		return Ack{}, orders.InvalidTransition(denied)
	}

	now := r.now()
	updated, err := r.transition(ctx, order.OrderID, order.Status, models.StatusUpdate{
		Status:    next,
		UpdatedAt: now,
		Entry: models.StatusEntry{
			Status:    next,
			Timestamp: now,
			By:        s.ConnectionID,
			Note:      "Status updated by admin",
		},
	}, denied, "Failed to update order")
	if err != nil {
		return Ack{}, err
	}

	r.bc.Publish(OrderTopic(updated.OrderID), EventStatusUpdated, StatusUpdatedEvent{
		OrderID: updated.OrderID,
		Status:  updated.Status,
		Order:   updated,
	})
	r.bc.Publish(TopicAdmins, EventOrderStatusChanged, StatusChangedEvent{
		OrderID:   updated.OrderID,
		NewStatus: updated.Status,
	})
	r.notify(ctx, NotifyStatusChanged, updated)

	return Ack{Success: true, Order: updated}, nil
}

func (r *Router) acceptOrder(ctx context.Context, s Session, data json.RawMessage) (Ack, error) {
	if err := requireAdmin(s); err != nil {
		return Ack{}, err
	}
	var req acceptRequest
	if err := decode(data, &req); err != nil {
		return Ack{}, err
	}
	if req.OrderID == "" {
		return Ack{}, orders.Validation("Order id is required")
	}

	const denied = "Can not accept this order"
	order, err := r.load(ctx, req.OrderID, "Failed to accept order")
	if err != nil {
		return Ack{}, err
	}
	if !orders.CanDecide(order.Status) {
		return Ack{}, orders.InvalidTransition(denied)
	}

	estimate := defaultEstimatedTime
	if req.EstimatedTime != nil && *req.EstimatedTime > 0 {
		estimate = *req.EstimatedTime
	}
	now := r.now()
	updated, err := r.transition(ctx, order.OrderID, order.Status, models.StatusUpdate{
		Status:        models.StatusConfirmed,
		EstimatedTime: &estimate,
		UpdatedAt:     now,
		Entry: models.StatusEntry{
			Status:    models.StatusConfirmed,
			Timestamp: now,
			By:        s.ConnectionID,
			Note:      fmt.Sprintf("Accepted with %d min estimated time", estimate),
		},
	}, denied, "Failed to accept order")
	if err != nil {
		return Ack{}, err
	}

	r.bc.Publish(OrderTopic(updated.OrderID), EventOrderAccepted, AcceptedEvent{
		OrderID:       updated.OrderID,
		EstimatedTime: estimate,
	})
	r.bc.Publish(TopicAdmins, EventOrderAcceptedByAdmin, AcceptedByAdminEvent{OrderID: updated.OrderID})
	r.notify(ctx, NotifyAccepted, updated)

	return Ack{Success: true, Order: updated}, nil
}

func (r *Router) rejectOrder(ctx context.Context, s Session, data json.RawMessage) (Ack, error) {
	if err := requireAdmin(s); err != nil {
		return Ack{}, err
	}
	var req rejectRequest
	if err := decode(data, &req); err != nil {
		return Ack{}, err
	}
	if req.OrderID == "" {
		return Ack{}, orders.Validation("Order id is required")
	}

	const denied = "Can not reject this order"
	order, err := r.load(ctx, req.OrderID, "Failed to reject order")
	if err != nil {
		return Ack{}, err
	}
	if !orders.CanDecide(order.Status) {
		return Ack{}, orders.InvalidTransition(denied)
	}

	note := req.Reason
	if note == "" {
		note = "Rejected"
	}
	now := r.now()
	updated, err := r.transition(ctx, order.OrderID, order.Status, models.StatusUpdate{
		Status:    models.StatusCancelled,
		UpdatedAt: now,
		Entry: models.StatusEntry{
			Status:    models.StatusCancelled,
			Timestamp: now,
			By:        s.ConnectionID,
			Note:      note,
		},
	}, denied, "Failed to reject order")
	if err != nil {
		return Ack{}, err
	}

	ev := RejectedEvent{OrderID: updated.OrderID, Reason: req.Reason}
	r.bc.Publish(OrderTopic(updated.OrderID), EventOrderRejected, ev)
	r.bc.Publish(TopicAdmins, EventOrderRejectedByAdmin, ev)
	r.notify(ctx, NotifyRejected, updated)

	return Ack{Success: true}, nil
}

func (r *Router) getLiveStats(ctx context.Context, s Session, _ json.RawMessage) (Ack, error) {
	if err := requireAdmin(s); err != nil {
		return Ack{}, err
	}

	const failMsg = "Failed to load stats"
	var stats models.Stats
	total, err := r.store.Count(ctx, models.CountFilter{CreatedSince: startOfDay(r.now())})
	if err != nil {
		return Ack{}, orders.StoreFailure(failMsg, err)
	}
	stats.TotalToday = total

	for _, st := range models.Statuses {
		n, err := r.store.Count(ctx, models.CountFilter{Status: st})
		if err != nil {
			return Ack{}, orders.StoreFailure(failMsg, err)
		}
		stats.Set(st, n)
	}
	return Ack{Success: true, Stats: &stats}, nil
}
