package notifier

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Keoroanthony/go-storefront/internal/events"
	"github.com/Keoroanthony/go-storefront/internal/models"
)

// LowStockSource lists products at or below a stock threshold.
type LowStockSource interface {
	LowStock(ctx context.Context, threshold int) ([]models.Product, error)
}

type SweepResult struct {
	Checked int   `json:"checked"`
	Alerted int32 `json:"alerted"`
}

// Sweeper periodically re-checks stock levels so products that went low
// through admin edits are also reported.
type Sweeper struct {
	notifier *Notifier
	products LowStockSource
	pool     *ants.Pool
	log      *zap.Logger
}

func NewSweeper(n *Notifier, products LowStockSource, workers int, log *zap.Logger) (*Sweeper, error) {
	if workers <= 0 {
		workers = 4
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, errors.Wrap(err, "create sweep pool")
	}
	return &Sweeper{notifier: n, products: products, pool: pool, log: log}, nil
}

func (s *Sweeper) Run(ctx context.Context) (SweepResult, error) {
	threshold := s.notifier.shop.LowStockThreshold
	low, err := s.products.LowStock(ctx, threshold)
	if err != nil {
		return SweepResult{}, err
	}

	result := SweepResult{Checked: len(low)}
	var wg sync.WaitGroup
	for _, p := range low {
		e := events.StockLow{ProductID: p.ID, ProductName: p.Name, Stock: p.Stock, Threshold: threshold}
		wg.Add(1)
		err := s.pool.Submit(func() {
			defer wg.Done()
			sent, err := s.notifier.AlertLowStock(ctx, e)
			if err != nil {
				s.log.Error("low stock sweep failed", zap.Uint("product_id", e.ProductID), zap.Error(err))
				return
			}
			if sent {
				atomic.AddInt32(&result.Alerted, 1)
			}
		})
		if err != nil {
			wg.Done()
			s.log.Error("low stock sweep submit failed", zap.Uint("product_id", e.ProductID), zap.Error(err))
		}
	}
	wg.Wait()

	s.log.Info("low stock sweep finished", zap.Int("checked", result.Checked), zap.Int32("alerted", result.Alerted))
	return result, nil
}

func (s *Sweeper) Close() {
	s.pool.Release()
}
