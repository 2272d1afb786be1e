package notifier

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/Keoroanthony/go-storefront/internal/models"
)

// LowStockQuietPeriod suppresses repeat low-stock alerts for a product while
// an earlier one is still unread.
const LowStockQuietPeriod = 24 * time.Hour

// Store keeps in-app notifications for admins.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Admins returns every customer with the admin role.
func (s *Store) Admins(ctx context.Context) ([]models.Customer, error) {
	var admins []models.Customer
	if err := s.db.WithContext(ctx).Where("role = ?", models.RoleAdmin).Order("id ASC").Find(&admins).Error; err != nil {
		return nil, errors.Wrap(err, "load admins")
	}
	return admins, nil
}

// NotifyAdmins writes one notification per admin and returns how many were
// created.
func (s *Store) NotifyAdmins(ctx context.Context, kind, title, message string, productID *uint) (int, error) {
	admins, err := s.Admins(ctx)
	if err != nil || len(admins) == 0 {
		return 0, err
	}
	rows := make([]models.Notification, 0, len(admins))
	for _, a := range admins {
		adminID := a.ID
		rows = append(rows, models.Notification{
			UserID: &adminID, Type: kind, Title: title, Message: message, ProductID: productID,
		})
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return 0, errors.Wrap(err, "create notifications")
	}
	return len(rows), nil
}

// RecentlyAlerted reports whether an unread low-stock notification for the
// product was created within the quiet period.
func (s *Store) RecentlyAlerted(ctx context.Context, productID uint) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("type = ? AND product_id = ? AND is_read = ? AND created_at >= ?",
			models.NotificationLowStock, productID, false, time.Now().Add(-LowStockQuietPeriod)).
		Count(&n).Error
	if err != nil {
		return false, errors.Wrap(err, "check recent alerts")
	}
	return n > 0, nil
}

func (s *Store) List(ctx context.Context, userID uint, unreadOnly bool, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}
	var rows []models.Notification
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "list notifications")
	}
	return rows, nil
}

func (s *Store) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&n).Error
	return n, errors.Wrap(err, "count notifications")
}

func (s *Store) MarkRead(ctx context.Context, id, userID uint) error {
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("is_read", true)
	if res.Error != nil {
		return errors.Wrap(res.Error, "mark notification read")
	}
	if res.RowsAffected == 0 {
		return models.ErrNotificationNotFound
	}
	return nil
}

func (s *Store) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	return res.RowsAffected, errors.Wrap(res.Error, "mark notifications read")
}
