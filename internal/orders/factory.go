package orders

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"orderhub/internal/models"
)

const (
	DefaultPaymentMethod = "cash"
	PaymentPending       = "pending"
)

var (
	taxRate     = decimal.RequireFromString("0.10")
	deliveryFee = decimal.RequireFromString("35.00")
)

// Totals holds the monetary values derived from an order's items
type Totals struct {
	Subtotal    float64
	Tax         float64
	DeliveryFee float64
	TotalAmount float64
}

// CalculateTotals sums price × quantity, adds 10% tax and the flat delivery fee.
// Each value is rounded to 2 decimal places; the total is computed before rounding.
func CalculateTotals(items []models.LineItem) Totals {
	subtotal := decimal.Zero
	for _, it := range items {
		line := decimal.NewFromFloat(it.Price).Mul(decimal.NewFromInt(int64(it.Quantity)))
		subtotal = subtotal.Add(line)
	}
	tax := subtotal.Mul(taxRate)
	total := subtotal.Add(tax).Add(deliveryFee)

	return Totals{
		Subtotal:    subtotal.Round(2).InexactFloat64(),
		Tax:         tax.Round(2).InexactFloat64(),
		DeliveryFee: deliveryFee.InexactFloat64(),
		TotalAmount: total.Round(2).InexactFloat64(),
	}
}

// Intner is the random source used for order id suffixes
type Intner interface {
	Intn(n int) int
}

// GenerateOrderID formats ORD-YYYYMMDD-NNN from now and a random 3-digit suffix.
// Ids are not unique: two orders on the same day collide with probability 1/1000.
func GenerateOrderID(now time.Time, rnd Intner) string {
	return fmt.Sprintf("ORD-%s-%03d", now.Format("20060102"), rnd.Intn(1000))
}

// NewOrder materializes a pending order with its first history entry
func NewOrder(s Submission, items models.LineItems, orderID string, totals Totals, now time.Time) *models.Order {
	paymentMethod := s.PaymentMethod
	if paymentMethod == "" {
		paymentMethod = DefaultPaymentMethod
	}
	if items == nil {
		items = models.LineItems{}
	}

	return &models.Order{
		OrderID:         orderID,
		CustomerName:    strings.TrimSpace(s.CustomerName),
		CustomerPhone:   strings.TrimSpace(s.CustomerPhone),
		CustomerAddress: strings.TrimSpace(s.CustomerAddress),
		Items:           items,
		Subtotal:        totals.Subtotal,
		Tax:             totals.Tax,
		DeliveryFee:     totals.DeliveryFee,
		TotalAmount:     totals.TotalAmount,
		SpecialNotes:    s.SpecialNotes,
		PaymentMethod:   paymentMethod,
		PaymentStatus:   PaymentPending,
		Status:          models.StatusPending,
		StatusHistory: []models.StatusEntry{{
			Status:    models.StatusPending,
			Timestamp: now,
			By:        "customer",
			Note:      "Order placed",
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
}
