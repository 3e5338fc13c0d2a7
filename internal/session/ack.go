package session

import (
	"encoding/json"

	"orderhub/internal/models"
)

// Ack is the acknowledgement returned to the caller of an action
type Ack struct {
	Success bool
	Message string
	Order   *models.Order
	Orders  []*models.Order
	Stats   *models.Stats
}

// MarshalJSON keeps an empty order list as [] while omitting unset fields
func (a Ack) MarshalJSON() ([]byte, error) {
	type wire struct {
		Success bool             `json:"success"`
		Message string           `json:"message,omitempty"`
		Order   *models.Order    `json:"order,omitempty"`
		Orders  *[]*models.Order `json:"orders,omitempty"`
		Stats   *models.Stats    `json:"stats,omitempty"`
	}
	w := wire{Success: a.Success, Message: a.Message, Order: a.Order, Stats: a.Stats}
	if a.Orders != nil {
		w.Orders = &a.Orders
	}
	return json.Marshal(w)
}

func failure(msg string) Ack {
	return Ack{Success: false, Message: msg}
}

// Server-initiated events
const (
	EventNewOrder             = "newOrder"
	EventOrderCancelled       = "orderCancelled"
	EventStatusUpdated        = "statusUpdated"
	EventOrderStatusChanged   = "orderStatusChanged"
	EventOrderAccepted        = "orderAccepted"
	EventOrderAcceptedByAdmin = "orderAcceptedByAdmin"
	EventOrderRejected        = "orderRejected"
	EventOrderRejectedByAdmin = "orderRejectedByAdmin"
)

// Lifecycle notifications handed to the Notifier
const (
	NotifyPlaced        = "order.placed"
	NotifyCancelled     = "order.cancelled"
	NotifyStatusChanged = "order.status_changed"
	NotifyAccepted      = "order.accepted"
	NotifyRejected      = "order.rejected"
)

type NewOrderEvent struct {
	Order *models.Order `json:"order"`
}

type CancelledEvent struct {
	OrderID      string `json:"orderId"`
	CustomerName string `json:"customerName,omitempty"`
}

type StatusUpdatedEvent struct {
	OrderID string        `json:"orderId"`
	Status  models.Status `json:"status"`
	Order   *models.Order `json:"order"`
}

type StatusChangedEvent struct {
	OrderID   string        `json:"orderId"`
	NewStatus models.Status `json:"newStatus"`
}

type AcceptedEvent struct {
	OrderID       string `json:"orderId"`
	EstimatedTime int    `json:"estimatedTime"`
}

type AcceptedByAdminEvent struct {
	OrderID string `json:"orderId"`
}

type RejectedEvent struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason,omitempty"`
}
