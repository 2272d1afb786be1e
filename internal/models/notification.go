package models

import "time"

const (
	NotificationLowStock  = "low_stock"
	NotificationNewReview = "new_review"
	NotificationSale      = "sale"
	NotificationSystem    = "system"
)

type Notification struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    *uint     `gorm:"index" json:"user_id"`
	Type      string    `gorm:"size:32;index;not null" json:"type"`
	Title     string    `gorm:"size:200;not null" json:"title"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	ProductID *uint     `gorm:"index" json:"product_id"`
	IsRead    bool      `gorm:"not null;default:false" json:"is_read"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}
