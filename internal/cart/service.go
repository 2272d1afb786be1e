package cart

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Keoroanthony/go-storefront/internal/models"
)

// ProductReader is the slice of the catalog the cart needs.
type ProductReader interface {
	GetByID(ctx context.Context, id uint) (*models.Product, error)
	GetMany(ctx context.Context, ids []uint) (map[uint]models.Product, error)
}

type ViewItem struct {
	Product   models.Product  `json:"product"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type View struct {
	Items []ViewItem      `json:"items"`
	Count int             `json:"count"`
	Total decimal.Decimal `json:"total"`
}

// Service guards cart mutations against the catalog. Stock is checked when
// items are added but not reserved.
type Service struct {
	holder   Holder
	products ProductReader
	log      *zap.Logger
}

func NewService(holder Holder, products ProductReader) *Service {
	return &Service{holder: holder, products: products, log: zap.NewNop()}
}

func (s *Service) WithLogger(log *zap.Logger) *Service {
	s.log = log
	return s
}

func (s *Service) Holder() Holder {
	return s.holder
}

func (s *Service) Add(ctx context.Context, owner Owner, productID uint, qty int) error {
	if qty < 1 {
		return models.NewValidationError("quantity", "must be at least 1")
	}
	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return err
	}
	current, err := s.quantityOf(ctx, owner, productID)
	if err != nil {
		return err
	}
	if product.Stock < current+qty {
		return &models.InsufficientStockError{ProductID: productID, Requested: current + qty, Available: product.Stock}
	}
	return s.holder.Add(ctx, owner, productID, qty)
}

// Update sets the quantity of a line; zero or less removes it.
func (s *Service) Update(ctx context.Context, owner Owner, productID uint, qty int) error {
	if qty <= 0 {
		return s.holder.Remove(ctx, owner, productID)
	}
	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return err
	}
	if product.Stock < qty {
		return &models.InsufficientStockError{ProductID: productID, Requested: qty, Available: product.Stock}
	}
	return s.holder.Update(ctx, owner, productID, qty)
}

func (s *Service) Remove(ctx context.Context, owner Owner, productID uint) error {
	return s.holder.Remove(ctx, owner, productID)
}

func (s *Service) Clear(ctx context.Context, owner Owner) error {
	return s.holder.Clear(ctx, owner)
}

// View resolves cart lines against current catalog prices. Lines whose
// product has since been deleted are dropped from the holder.
func (s *Service) View(ctx context.Context, owner Owner) (*View, error) {
	lines, err := s.holder.Items(ctx, owner)
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	products, err := s.products.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	view := &View{Items: []ViewItem{}, Total: decimal.Zero}
	for _, l := range lines {
		p, ok := products[l.ProductID]
		if !ok {
			// retried on the next view
			if err := s.holder.Remove(ctx, owner, l.ProductID); err != nil {
				s.log.Warn("failed to drop stale cart line",
					zap.String("owner", string(owner)), zap.Uint("product_id", l.ProductID), zap.Error(err))
			}
			continue
		}
		lineTotal := p.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
		view.Items = append(view.Items, ViewItem{Product: p, Quantity: l.Quantity, LineTotal: lineTotal})
		view.Count += l.Quantity
		view.Total = view.Total.Add(lineTotal)
	}
	return view, nil
}

// Merge moves a guest cart into a signed-in user's cart after login. Lines
// that would exceed stock are capped at what is available.
func (s *Service) Merge(ctx context.Context, from, to Owner) error {
	if from == to {
		return nil
	}
	lines, err := s.holder.Items(ctx, from)
	if err != nil || len(lines) == 0 {
		return err
	}
	for _, l := range lines {
		product, err := s.products.GetByID(ctx, l.ProductID)
		if err != nil {
			continue
		}
		current, err := s.quantityOf(ctx, to, l.ProductID)
		if err != nil {
			return err
		}
		qty := current + l.Quantity
		if qty > product.Stock {
			qty = product.Stock
		}
		if qty <= current {
			continue
		}
		if err := s.holder.Update(ctx, to, l.ProductID, qty); err != nil {
			return err
		}
	}
	return s.holder.Clear(ctx, from)
}

func (s *Service) quantityOf(ctx context.Context, owner Owner, productID uint) (int, error) {
	lines, err := s.holder.Items(ctx, owner)
	if err != nil {
		return 0, err
	}
	for _, l := range lines {
		if l.ProductID == productID {
			return l.Quantity, nil
		}
	}
	return 0, nil
}
