// Package models holds the marketplace API payloads and the rules the
// client enforces before sending them.
package models

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
)

// ParseOrderStatus canonicalizes a server status string. The API still
// emits "confirmed" for orders a manager accepted; it maps to processing.
func ParseOrderStatus(s string) OrderStatus {
	switch v := OrderStatus(strings.ToLower(strings.TrimSpace(s))); v {
	case "confirmed":
		return StatusProcessing
	default:
		return v
	}
}

// UnmarshalJSON accepts any casing and the legacy "confirmed" value.
func (s *OrderStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = ParseOrderStatus(raw)
	return nil
}

// Known reports whether s is one of the five lifecycle states.
func (s OrderStatus) Known() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// Label returns the capitalized status for display.
func (s OrderStatus) Label() string {
	if s == "" {
		return "Unknown"
	}
	return strings.ToUpper(string(s[:1])) + string(s[1:])
}

// OrderItem is one line of an order.
type OrderItem struct {
	ID          int64           `json:"id,omitempty"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name,omitempty"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

// Subtotal is price times quantity.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// DisplayName falls back to the product id when the API omits the name.
func (i OrderItem) DisplayName() string {
	if name := strings.TrimSpace(i.ProductName); name != "" {
		return name
	}
	return "Product #" + strconv.FormatInt(i.ProductID, 10)
}

// Order is a customer order as returned by GET /api/orders.
type Order struct {
	ID                  int64           `json:"id"`
	StoreID             int64           `json:"store_id,omitempty"`
	Items               []OrderItem     `json:"items"`
	TotalAmount         decimal.Decimal `json:"total_amount"`
	Status              OrderStatus     `json:"status"`
	ShippingAddress     string          `json:"shipping_address"`
	DeliveryConfirmed   bool            `json:"delivery_confirmed_by_customer"`
	DeliveryConfirmedAt *Timestamp      `json:"delivery_confirmed_at,omitempty"`
	IssueReported       bool            `json:"delivery_issue_reported"`
	IssueDescription    string          `json:"delivery_issue,omitempty"`
	CreatedAt           Timestamp       `json:"created_at"`
	UpdatedAt           Timestamp       `json:"updated_at,omitempty"`
}

// CanCancel holds only while the order has not left the store.
func (o Order) CanCancel() bool {
	return o.Status == StatusPending || o.Status == StatusProcessing
}

// HasDeliveryOutcome reports whether the customer already answered the
// delivery question, either way.
func (o Order) HasDeliveryOutcome() bool {
	return o.DeliveryConfirmed || o.IssueReported
}

// CanConfirmDelivery holds for delivered orders with no recorded outcome.
func (o Order) CanConfirmDelivery() bool {
	return o.Status == StatusDelivered && !o.HasDeliveryOutcome()
}

// IsTerminal reports whether no further customer action can change the order.
func (o Order) IsTerminal() bool {
	return o.Status == StatusCancelled || (o.Status == StatusDelivered && o.DeliveryConfirmed)
}

// ItemCount sums the quantities of all lines.
func (o Order) ItemCount() int {
	n := 0
	for _, item := range o.Items {
		n += item.Quantity
	}
	return n
}

// FindItem returns the line with the given order item id.
func (o Order) FindItem(orderItemID int64) (OrderItem, bool) {
	for _, item := range o.Items {
		if item.ID == orderItemID {
			return item, true
		}
	}
	return OrderItem{}, false
}
