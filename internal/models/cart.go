package models

import "time"

// CartItem is a persisted cart line for the db cart backend. Owner is either
// "user:<id>" or "guest:<uuid>".
type CartItem struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Owner     string    `gorm:"size:64;not null;uniqueIndex:idx_cart_owner_product" json:"owner"`
	ProductID uint      `gorm:"not null;uniqueIndex:idx_cart_owner_product" json:"product_id"`
	Quantity  int       `gorm:"not null" json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
