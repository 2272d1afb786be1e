package catalog

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/Keoroanthony/go-storefront/internal/models"
)

// CheckStock reports whether qty units of the product are available right now.
// The answer is advisory; only DecrementStock reserves stock.
func (s *Store) CheckStock(ctx context.Context, id uint, qty int) (bool, error) {
	p, err := s.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return p.Stock >= qty, nil
}

// DecrementStock removes qty units with a single conditional UPDATE and returns
// the remaining stock. Two concurrent callers can never both take the last
// unit: the loser sees zero rows affected and gets InsufficientStockError.
func (s *Store) DecrementStock(ctx context.Context, id uint, qty int) (int, error) {
	if qty < 1 {
		return 0, models.NewValidationError("quantity", "quantity must be at least 1")
	}

	res := s.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ? AND stock >= ?", id, qty).
		UpdateColumn("stock", gorm.Expr("stock - ?", qty))
	if res.Error != nil {
		return 0, errors.Wrapf(res.Error, "decrement stock of product %d", id)
	}

	p, err := s.GetByID(ctx, id)
	if err != nil {
		return 0, err
	}
	if res.RowsAffected != 1 {
		return p.Stock, &models.InsufficientStockError{ProductID: id, Requested: qty, Available: p.Stock}
	}
	return p.Stock, nil
}

// RestoreStock puts qty units back, e.g. when an order is cancelled.
func (s *Store) RestoreStock(ctx context.Context, id uint, qty int) error {
	res := s.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ?", id).
		UpdateColumn("stock", gorm.Expr("stock + ?", qty))
	if res.Error != nil {
		return errors.Wrapf(res.Error, "restore stock of product %d", id)
	}
	if res.RowsAffected == 0 {
		return &models.ProductNotFoundError{ProductID: id}
	}
	return nil
}
