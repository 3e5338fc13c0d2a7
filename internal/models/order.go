package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Store-level errors shared by every gateway implementation
var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrStatusConflict  = errors.New("order status changed concurrently")
	ErrUnsupportedType = errors.New("unsupported column type")
)

// Status represents the possible states of an order
type Status string

const (
	StatusPending        Status = "pending"
	StatusConfirmed      Status = "confirmed"
	StatusPreparing      Status = "preparing"
	StatusReady          Status = "ready"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
)

// Statuses lists every order status in lifecycle order
var Statuses = []Status{
	StatusPending,
	StatusConfirmed,
	StatusPreparing,
	StatusReady,
	StatusOutForDelivery,
	StatusDelivered,
	StatusCancelled,
}

// Valid reports whether s is one of the known statuses
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// Order is the order document as stored and sent to clients.
// ID is the storage row key and never leaves the process.
type Order struct {
	ID              uint          `json:"-" bson:"-" gorm:"primary_key"`
	OrderID         string        `json:"orderId" bson:"orderId" gorm:"index"`
	CustomerName    string        `json:"customerName" bson:"customerName"`
	CustomerPhone   string        `json:"customerPhone" bson:"customerPhone" gorm:"index"`
	CustomerAddress string        `json:"customerAddress" bson:"customerAddress"`
	Items           LineItems     `json:"items" bson:"items" gorm:"type:text"`
	Subtotal        float64       `json:"subtotal" bson:"subtotal"`
	Tax             float64       `json:"tax" bson:"tax"`
	DeliveryFee     float64       `json:"deliveryFee" bson:"deliveryFee"`
	TotalAmount     float64       `json:"totalAmount" bson:"totalAmount"`
	SpecialNotes    string        `json:"specialNotes" bson:"specialNotes"`
	PaymentMethod   string        `json:"paymentMethod" bson:"paymentMethod"`
	PaymentStatus   string        `json:"paymentStatus" bson:"paymentStatus"`
	Status          Status        `json:"status" bson:"status" gorm:"index"`
	StatusHistory   []StatusEntry `json:"statusHistory" bson:"statusHistory" gorm:"foreignkey:OrderRef"`
	EstimatedTime   *int          `json:"estimatedTime" bson:"estimatedTime"`
	CreatedAt       time.Time     `json:"createdAt" bson:"createdAt" gorm:"index"`
	UpdatedAt       time.Time     `json:"updatedAt" bson:"updatedAt"`
}

// LastStatus returns the status recorded by the newest history entry
func (o *Order) LastStatus() (Status, bool) {
	if len(o.StatusHistory) == 0 {
		return "", false
	}
	return o.StatusHistory[len(o.StatusHistory)-1].Status, true
}

// LineItem represents a single menu item in an order
type LineItem struct {
	ID       string  `json:"id,omitempty" bson:"id,omitempty"`
	Name     string  `json:"name,omitempty" bson:"name,omitempty"`
	Price    float64 `json:"price" bson:"price"`
	Quantity int     `json:"quantity" bson:"quantity"`
	Notes    string  `json:"notes,omitempty" bson:"notes,omitempty"`
}

// LineItems is stored as a JSON text column by the relational gateway
type LineItems []LineItem

// Value implements driver.Valuer
func (l LineItems) Value() (driver.Value, error) {
	if l == nil {
		l = LineItems{}
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (l *LineItems) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = LineItems{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("line items: %w: %T", ErrUnsupportedType, src)
	}
	items := LineItems{}
	if err := json.Unmarshal(raw, &items); err != nil {
		return fmt.Errorf("line items: %w", err)
	}
	*l = items
	return nil
}

// StatusEntry is one audit record in an order's status history
type StatusEntry struct {
	ID        uint      `json:"-" bson:"-" gorm:"primary_key"`
	OrderRef  uint      `json:"-" bson:"-" gorm:"index"`
	Status    Status    `json:"status" bson:"status"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
	By        string    `json:"by" bson:"by"`
	Note      string    `json:"note" bson:"note"`
}

// TableName keeps the history table name explicit
func (StatusEntry) TableName() string {
	return "order_status_history"
}

// StatusUpdate describes a conditional status change and the history entry it appends
type StatusUpdate struct {
	Status        Status
	EstimatedTime *int
	UpdatedAt     time.Time
	Entry         StatusEntry
}

// CountFilter selects orders for aggregate counts. Zero fields match everything.
type CountFilter struct {
	Status       Status
	CreatedSince time.Time
}

// Stats represents the live dashboard counters
type Stats struct {
	TotalToday     int64 `json:"totalToday"`
	Pending        int64 `json:"pending"`
	Confirmed      int64 `json:"confirmed"`
	Preparing      int64 `json:"preparing"`
	Ready          int64 `json:"ready"`
	OutForDelivery int64 `json:"outForDelivery"`
	Delivered      int64 `json:"delivered"`
	Cancelled      int64 `json:"cancelled"`
}

// Set stores count under the field matching status
func (s *Stats) Set(status Status, count int64) {
	switch status {
	case StatusPending:
		s.Pending = count
	case StatusConfirmed:
		s.Confirmed = count
	case StatusPreparing:
		s.Preparing = count
	case StatusReady:
		s.Ready = count
	case StatusOutForDelivery:
		s.OutForDelivery = count
	case StatusDelivered:
		s.Delivered = count
	case StatusCancelled:
		s.Cancelled = count
	}
}
