// Package notifier reacts to order and stock events: in-app notifications for
// admins, confirmation email and SMS for customers. Every failure here is
// logged and dropped; nothing flows back into checkout.
package notifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	config "github.com/Keoroanthony/go-storefront/configs"
	"github.com/Keoroanthony/go-storefront/internal/events"
	"github.com/Keoroanthony/go-storefront/internal/models"
)

const sendTimeout = 30 * time.Second

type Notifier struct {
	// alertMu makes the recent-alert check and the insert one step; stock.low
	// handlers and sweep workers run concurrently.
	alertMu sync.Mutex

	store  *Store
	mailer Mailer
	sms    SMSSender
	shop   config.ShopConfig
	log    *zap.Logger
}

// New builds a notifier. mailer and sms may be nil to disable that channel.
func New(store *Store, mailer Mailer, sms SMSSender, shop config.ShopConfig, log *zap.Logger) *Notifier {
	return &Notifier{store: store, mailer: mailer, sms: sms, shop: shop, log: log}
}

func (n *Notifier) Store() *Store {
	return n.store
}

// Register subscribes the notifier's handlers on bus.
func (n *Notifier) Register(bus *events.Bus) error {
	if err := bus.Subscribe(events.TopicStockLow, n.OnStockLow); err != nil {
		return err
	}
	if err := bus.Subscribe(events.TopicOrderPlaced, n.OnOrderPlaced); err != nil {
		return err
	}
	return bus.Subscribe(events.TopicReviewCreated, n.OnReviewCreated)
}

func (n *Notifier) OnStockLow(e events.StockLow) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if _, err := n.AlertLowStock(ctx, e); err != nil {
		n.log.Error("low stock alert failed", zap.Uint("product_id", e.ProductID), zap.Error(err))
	}
}

// AlertLowStock notifies admins about e unless the product was alerted on
// recently. It reports whether an alert went out.
func (n *Notifier) AlertLowStock(ctx context.Context, e events.StockLow) (bool, error) {
	created, err := n.raiseLowStock(ctx, e)
	if err != nil || created < 0 {
		return false, err
	}
	n.log.Info("low stock alert raised",
		zap.Uint("product_id", e.ProductID), zap.Int("stock", e.Stock), zap.Int("admins", created))

	if n.mailer != nil {
		for _, to := range n.shop.AdminEmails {
			if err := n.mailer.Send(ctx, LowStockEmail(to, e)); err != nil {
				n.log.Warn("low stock email failed", zap.String("to", to), zap.Error(err))
			}
		}
	}
	return true, nil
}

// raiseLowStock writes the admin notifications unless an alert is already
// pending. It returns -1 when the alert was suppressed.
func (n *Notifier) raiseLowStock(ctx context.Context, e events.StockLow) (int, error) {
	n.alertMu.Lock()
	defer n.alertMu.Unlock()

	recent, err := n.store.RecentlyAlerted(ctx, e.ProductID)
	if err != nil {
		return 0, err
	}
	if recent {
		return -1, nil
	}

	title := "Low stock alert"
	message := fmt.Sprintf("%s has only %d units left in stock.", e.ProductName, e.Stock)
	if e.Stock == 0 {
		title = "Out of stock"
		message = fmt.Sprintf("%s is out of stock.", e.ProductName)
	}
	productID := e.ProductID
	return n.store.NotifyAdmins(ctx, models.NotificationLowStock, title, message, &productID)
}

// OnOrderPlaced sends the customer's confirmation email and SMS concurrently.
func (n *Notifier) OnOrderPlaced(e events.OrderPlaced) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := n.ConfirmOrder(ctx, e); err != nil {
		n.log.Warn("order confirmation incomplete", zap.String("order", e.Number), zap.Error(err))
	}
}

func (n *Notifier) ConfirmOrder(ctx context.Context, e events.OrderPlaced) error {
	var g errgroup.Group
	if n.mailer != nil && e.CustomerEmail != "" {
		g.Go(func() error {
			return n.mailer.Send(ctx, OrderConfirmationEmail(e, n.shop.Currency))
		})
	}
	if n.sms != nil && e.CustomerPhone != "" {
		g.Go(func() error {
			return n.sms.Send(ctx, e.CustomerPhone, OrderConfirmationSMS(e, n.shop.Currency))
		})
	}
	return g.Wait()
}

func (n *Notifier) OnReviewCreated(e events.ReviewCreated) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	productID := e.ProductID
	message := fmt.Sprintf("%s received a %d-star review.", e.ProductName, e.Rating)
	if _, err := n.store.NotifyAdmins(ctx, models.NotificationNewReview, "New review", message, &productID); err != nil {
		n.log.Error("review notification failed", zap.Uint("review_id", e.ReviewID), zap.Error(err))
	}
}
