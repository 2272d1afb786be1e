package cart

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/Keoroanthony/go-storefront/internal/models"
)

// GormHolder keeps carts in the cart_items table.
type GormHolder struct {
	db *gorm.DB
}

func NewGormHolder(db *gorm.DB) *GormHolder {
	return &GormHolder{db: db}
}

func (h *GormHolder) Items(ctx context.Context, owner Owner) ([]Line, error) {
	var rows []models.CartItem
	if err := h.db.WithContext(ctx).Where("owner = ?", string(owner)).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "load cart")
	}
	lines := make([]Line, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, Line{ProductID: r.ProductID, Quantity: r.Quantity})
	}
	return lines, nil
}

func (h *GormHolder) Add(ctx context.Context, owner Owner, productID uint, qty int) error {
	return h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item models.CartItem
		err := tx.Where("owner = ? AND product_id = ?", string(owner), productID).First(&item).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			item = models.CartItem{Owner: string(owner), ProductID: productID, Quantity: qty}
			return errors.Wrap(tx.Create(&item).Error, "add cart line")
		}
		if err != nil {
			return errors.Wrap(err, "load cart line")
		}
		return errors.Wrap(
			tx.Model(&item).UpdateColumn("quantity", gorm.Expr("quantity + ?", qty)).Error,
			"bump cart line",
		)
	})
}

func (h *GormHolder) Update(ctx context.Context, owner Owner, productID uint, qty int) error {
	if qty <= 0 {
		return h.Remove(ctx, owner, productID)
	}
	return h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.CartItem{}).
			Where("owner = ? AND product_id = ?", string(owner), productID).
			Update("quantity", qty)
		if res.Error != nil {
			return errors.Wrap(res.Error, "update cart line")
		}
		if res.RowsAffected == 0 {
			item := models.CartItem{Owner: string(owner), ProductID: productID, Quantity: qty}
			return errors.Wrap(tx.Create(&item).Error, "add cart line")
		}
		return nil
	})
}

func (h *GormHolder) Remove(ctx context.Context, owner Owner, productID uint) error {
	err := h.db.WithContext(ctx).
		Where("owner = ? AND product_id = ?", string(owner), productID).
		Delete(&models.CartItem{}).Error
	return errors.Wrap(err, "remove cart line")
}

func (h *GormHolder) Clear(ctx context.Context, owner Owner) error {
	err := h.db.WithContext(ctx).Where("owner = ?", string(owner)).Delete(&models.CartItem{}).Error
	return errors.Wrap(err, "clear cart")
}
