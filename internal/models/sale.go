package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sale is a denormalised reporting row written next to each order line.
type Sale struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	OrderID     *uint           `gorm:"index" json:"order_id"`
	ProductID   uint            `gorm:"index;not null" json:"product_id"`
	UserID      *uint           `gorm:"index" json:"user_id"`
	Quantity    int             `gorm:"not null" json:"quantity"`
	SalePrice   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"sale_price"`
	CostPrice   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"cost_price"`
	TotalAmount decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total_amount"`
	Profit      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"profit"`
	CreatedAt   time.Time       `gorm:"index" json:"created_at"`
}

// NewSale derives the reporting values for qty units sold at price with the
// given unit cost.
func NewSale(productID uint, qty int, price, cost decimal.Decimal) Sale {
	q := decimal.NewFromInt(int64(qty))
	total := price.Mul(q)
	return Sale{
		ProductID:   productID,
		Quantity:    qty,
		SalePrice:   price,
		CostPrice:   cost,
		TotalAmount: total,
		Profit:      total.Sub(cost.Mul(q)),
	}
}
