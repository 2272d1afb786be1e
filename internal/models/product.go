package models

import (
	"time"

	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product is a sellable catalog entry. Stock never drops below zero; it is
// only decremented through the conditional update in the catalog store.
type Product struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	Name        string          `gorm:"index;size:200;not null" json:"name"`
	Slug        string          `gorm:"uniqueIndex;size:220;not null" json:"slug"`
	Description string          `gorm:"type:text" json:"description"`
	Price       decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	CostPrice   decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"cost_price"`
	Stock       int             `gorm:"not null;default:0" json:"stock"`
	ImageURL    string          `gorm:"size:1024" json:"image_url,omitempty"`
	CategoryID  *uint           `gorm:"index" json:"category_id"`
	Category    *Category       `json:"category,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// BeforeCreate fills a missing slug from the name. The catalog store picks a
// unique one itself; this covers rows written directly.
func (p *Product) BeforeCreate(*gorm.DB) error {
	if p.Slug == "" {
		p.Slug = slug.Make(p.Name)
	}
	return nil
}
