package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
)

// RevenueStatuses are the statuses counted as sold in reports when the caller
// does not pick its own set.
var RevenueStatuses = []OrderStatus{StatusPending, StatusProcessing, StatusShipped, StatusDelivered}

var nextStatus = map[OrderStatus]OrderStatus{
	StatusPending:    StatusProcessing,
	StatusProcessing: StatusShipped,
	StatusShipped:    StatusDelivered,
}

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

func (s OrderStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Next is the single forward step from s, if any.
func (s OrderStatus) Next() (OrderStatus, bool) {
	n, ok := nextStatus[s]
	return n, ok
}

// CanTransition reports whether to is reachable from s in one step.
// Customers may only cancel pending orders; admins may also cancel
// processing ones and drive forward progression.
func (s OrderStatus) CanTransition(to OrderStatus, admin bool) bool {
	if to == StatusCancelled {
		if s == StatusPending {
			return true
		}
		return admin && s == StatusProcessing
	}
	if !admin {
		return false
	}
	n, ok := s.Next()
	return ok && n == to
}

type Order struct {
	ID                 uint            `gorm:"primaryKey" json:"id"`
	Number             string          `gorm:"uniqueIndex;size:32;not null" json:"number"`
	UserID             *uint           `gorm:"index" json:"user_id"`
	CustomerName       string          `gorm:"size:128;not null" json:"customer_name"`
	CustomerEmail      string          `gorm:"size:255;not null" json:"customer_email"`
	CustomerPhone      string          `gorm:"size:32" json:"customer_phone,omitempty"`
	CustomerAddress    string          `gorm:"size:512" json:"customer_address"`
	CustomerCity       string          `gorm:"size:128" json:"customer_city,omitempty"`
	CustomerPostalCode string          `gorm:"size:32" json:"customer_postal_code,omitempty"`
	CustomerCountry    string          `gorm:"size:64" json:"customer_country,omitempty"`
	ShippingMethod     string          `gorm:"size:32" json:"shipping_method"`
	PaymentMethod      string          `gorm:"size:32" json:"payment_method"`
	ShippingCost       decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"shipping_cost"`
	Subtotal           decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"subtotal"`
	Total              decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total"`
	Status             OrderStatus     `gorm:"size:16;index;not null" json:"status"`
	Items              []OrderItem     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`
	CreatedAt          time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// OrderItem is immutable once written; UnitPrice is the product price at the
// moment of purchase.
type OrderItem struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	OrderID     uint            `gorm:"index;not null" json:"order_id"`
	ProductID   uint            `gorm:"index;not null" json:"product_id"`
	ProductName string          `gorm:"size:200" json:"product_name"`
	Quantity    int             `gorm:"not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unit_price"`
	TotalPrice  decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total_price"`
	CreatedAt   time.Time       `json:"created_at"`
}
