package orders

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/Keoroanthony/go-storefront/internal/models"
)

type Filter struct {
	UserID  *uint
	Status  models.OrderStatus
	From    *time.Time
	To      *time.Time
	Page    int
	PerPage int
}

func preloadItems(db *gorm.DB) *gorm.DB {
	return db.Order("order_items.id ASC")
}

// Get loads an order with its items.
func (s *Service) Get(ctx context.Context, id uint) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).Preload("Items", preloadItems).First(&order, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrOrderNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load order %d", id)
	}
	return &order, nil
}

// GetByNumber looks an order up by its public order number.
func (s *Service) GetByNumber(ctx context.Context, number string) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).Preload("Items", preloadItems).Where("number = ?", number).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrOrderNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load order %s", number)
	}
	return &order, nil
}

// ListForUser returns a customer's orders, newest first.
func (s *Service) ListForUser(ctx context.Context, userID uint) ([]models.Order, error) {
	orders, _, err := s.List(ctx, Filter{UserID: &userID})
	return orders, err
}

// List returns orders matching f, newest first, and the total match count.
// PerPage <= 0 disables pagination.
func (s *Service) List(ctx context.Context, f Filter) ([]models.Order, int64, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, models.NewValidationError("status", "unknown order status %q", f.Status)
	}

	q := s.db.WithContext(ctx).Model(&models.Order{})
	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at <= ?", *f.To)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count orders")
	}

	q = q.Preload("Items", preloadItems).Order("created_at DESC, id DESC")
	if f.PerPage > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		q = q.Offset((page - 1) * f.PerPage).Limit(f.PerPage)
	}

	var orders []models.Order
	if err := q.Find(&orders).Error; err != nil {
		return nil, 0, errors.Wrap(err, "list orders")
	}
	return orders, total, nil
}
