package orders

import (
	"bytes"
	"encoding/json"
	"strings"

	"orderhub/internal/models"
)

// Submission is a raw placeOrder payload. Fields of the wrong JSON type
// decode as empty so validation reports them as missing.
type Submission struct {
	CustomerName    string
	CustomerPhone   string
	CustomerAddress string
	Items           json.RawMessage
	SpecialNotes    string
	PaymentMethod   string
}

// DecodeSubmission reads a placeOrder payload without failing on odd shapes
func DecodeSubmission(data json.RawMessage) Submission {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Submission{}
	}
	return Submission{
		CustomerName:    stringField(fields["customerName"]),
		CustomerPhone:   stringField(fields["customerPhone"]),
		CustomerAddress: stringField(fields["customerAddress"]),
		Items:           fields["items"],
		SpecialNotes:    stringField(fields["specialNotes"]),
		PaymentMethod:   stringField(fields["paymentMethod"]),
	}
}

func stringField(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

// Validate checks required fields in order; the first failure wins.
// Only the shape of items is checked, an empty list is accepted.
func Validate(s Submission) error {
	if strings.TrimSpace(s.CustomerName) == "" {
		return Validation("Customer name is required")
	}
	if strings.TrimSpace(s.CustomerPhone) == "" {
		return Validation("Customer phone number is required")
	}
	if strings.TrimSpace(s.CustomerAddress) == "" {
		return Validation("Customer address is required")
	}
	if !isArray(s.Items) {
		return Validation("Order must have at least one item.")
	}
	return nil
}

func isArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}

// ParseItems decodes the items array of a validated submission
func ParseItems(raw json.RawMessage) (models.LineItems, error) {
	items := models.LineItems{}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, Validation("Order items are malformed")
	}
	return items, nil
}
