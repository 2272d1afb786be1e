package orders

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Keoroanthony/go-storefront/internal/events"
	"github.com/Keoroanthony/go-storefront/internal/models"
	"github.com/Keoroanthony/go-storefront/internal/sales"
)

// UpdateStatus moves an order one step along its lifecycle on behalf of an
// admin. Cancelling puts the stock back and drops the order's sale rows.
func (s *Service) UpdateStatus(ctx context.Context, id uint, to models.OrderStatus) (*models.Order, error) {
	if !to.Valid() {
		return nil, models.NewValidationError("status", "unknown order status %q", to)
	}
	return s.transition(ctx, id, to, true, nil)
}

// CancelByCustomer cancels the customer's own order while it is still pending.
func (s *Service) CancelByCustomer(ctx context.Context, id, userID uint) (*models.Order, error) {
	return s.transition(ctx, id, models.StatusCancelled, false, func(o *models.Order) error {
		if o.UserID == nil || *o.UserID != userID {
			return models.ErrForbidden
		}
		return nil
	})
}

func (s *Service) transition(ctx context.Context, id uint, to models.OrderStatus, admin bool, authorise func(*models.Order) error) (*models.Order, error) {
	var order models.Order

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Preload("Items").First(&order, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ErrOrderNotFound
		}
		if err != nil {
			return errors.Wrapf(err, "load order %d", id)
		}
		if authorise != nil {
			if err := authorise(&order); err != nil {
				return err
			}
		}

		from := order.Status
		if !from.CanTransition(to, admin) {
			return &models.InvalidTransitionError{From: from, To: to}
		}

		// compare-and-set so two concurrent transitions cannot both apply
		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", order.ID, from).
			Update("status", to)
		if res.Error != nil {
			return errors.Wrap(res.Error, "update order status")
		}
		if res.RowsAffected != 1 {
			return &models.InvalidTransitionError{From: from, To: to}
		}

		if to == models.StatusCancelled {
			guard := s.catalog.WithTx(tx)
			for _, item := range order.Items {
				if err := guard.RestoreStock(ctx, item.ProductID, item.Quantity); err != nil {
					return err
				}
			}
			if err := sales.DeleteForOrder(tx, order.ID); err != nil {
				return err
			}
		}
		order.Status = to
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order status changed",
		zap.String("order", order.Number), zap.String("status", string(to)), zap.Bool("admin", admin))
	if to == models.StatusCancelled {
		s.publisher.Publish(events.TopicOrderCancelled, events.OrderCancelled{
			OrderID: order.ID, Number: order.Number, ByAdmin: admin,
		})
	}
	return &order, nil
}
