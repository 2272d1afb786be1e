// Package orders turns carts into persisted orders and drives their status
// afterwards.
package orders

import (
	"context"
	"net/mail"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	config "github.com/Keoroanthony/go-storefront/configs"
	"github.com/Keoroanthony/go-storefront/internal/cart"
	"github.com/Keoroanthony/go-storefront/internal/catalog"
	"github.com/Keoroanthony/go-storefront/internal/events"
	"github.com/Keoroanthony/go-storefront/internal/models"
	"github.com/Keoroanthony/go-storefront/internal/sales"
)

const DefaultShippingMethod = "standard"

// SaleRecorder writes reporting rows inside the checkout transaction.
type SaleRecorder interface {
	RecordOrder(tx *gorm.DB, order *models.Order, costs map[uint]decimal.Decimal) error
}

// CustomerInfo is the contact and delivery detail collected at checkout.
type CustomerInfo struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	Address        string `json:"address"`
	City           string `json:"city"`
	PostalCode     string `json:"postal_code"`
	Country        string `json:"country"`
	ShippingMethod string `json:"shipping_method"`
	PaymentMethod  string `json:"payment_method"`
}

type PlaceOrderInput struct {
	Lines        []cart.Line
	Customer     CustomerInfo
	ShippingCost decimal.Decimal
	UserID       *uint
}

type Service struct {
	db        *gorm.DB
	catalog   *catalog.Store
	cart      cart.Holder
	sales     SaleRecorder
	publisher events.Publisher
	shop      config.ShopConfig
	ids       *snowflake.Node
	log       *zap.Logger
}

func NewService(db *gorm.DB, store *catalog.Store, holder cart.Holder, shop config.ShopConfig, publisher events.Publisher, log *zap.Logger) (*Service, error) {
	node, err := snowflake.NewNode(shop.NodeID)
	if err != nil {
		return nil, errors.Wrap(err, "order number generator")
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Service{
		db:        db,
		catalog:   store,
		cart:      holder,
		sales:     sales.Recorder{},
		publisher: publisher,
		shop:      shop,
		ids:       node,
		log:       log,
	}, nil
}

// WithSaleRecorder replaces the reporting writer.
func (s *Service) WithSaleRecorder(r SaleRecorder) *Service {
	s.sales = r
	return s
}

// Checkout places an order from the owner's cart and empties the cart once
// the order is committed. On any failure the cart is left as it was.
func (s *Service) Checkout(ctx context.Context, owner cart.Owner, userID *uint, info CustomerInfo) (*models.Order, error) {
	lines, err := s.cart.Items(ctx, owner)
	if err != nil {
		return nil, &models.PersistenceError{Op: "load cart", Err: err}
	}
	if len(lines) == 0 {
		return nil, models.ErrEmptyCart
	}

	if strings.TrimSpace(info.ShippingMethod) == "" {
		info.ShippingMethod = DefaultShippingMethod
	}
	fee, ok := s.shop.ShippingFee(info.ShippingMethod)
	if !ok {
		return nil, models.NewValidationError("shipping_method", "unknown shipping method %q", info.ShippingMethod)
	}

	order, err := s.PlaceOrder(ctx, PlaceOrderInput{
		Lines:        lines,
		Customer:     info,
		ShippingCost: fee,
		UserID:       userID,
	})
	if err != nil {
		return nil, err
	}

	if err := s.cart.Clear(ctx, owner); err != nil {
		s.log.Warn("order placed but cart not cleared",
			zap.String("order", order.Number), zap.String("owner", string(owner)), zap.Error(err))
	}
	return order, nil
}

// PlaceOrder validates the lines against current stock and writes the order,
// its items, the stock decrements and the sale rows in one transaction.
// Sale rows are best effort: their failure is logged and the order commits.
func (s *Service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (*models.Order, error) {
	if len(in.Lines) == 0 {
		return nil, models.ErrEmptyCart
	}
	customer, err := normaliseCustomer(in.Customer)
	if err != nil {
		return nil, err
	}
	if in.ShippingCost.IsNegative() {
		return nil, models.NewValidationError("shipping_cost", "must not be negative")
	}
	lines, err := mergeLines(in.Lines)
	if err != nil {
		return nil, err
	}

	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, &models.PersistenceError{Op: "begin transaction", Err: tx.Error}
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	guard := s.catalog.WithTx(tx)

	products := make(map[uint]*models.Product, len(lines))
	for _, l := range lines {
		p, err := guard.GetByID(ctx, l.ProductID)
		if err != nil {
			tx.Rollback()
			return nil, asWorkflowError("load product", err)
		}
		if p.Stock < l.Quantity {
			tx.Rollback()
			return nil, &models.InsufficientStockError{ProductID: p.ID, Requested: l.Quantity, Available: p.Stock}
		}
		products[p.ID] = p
	}

	order := models.Order{
		Number:             s.ids.Generate().String(),
		UserID:             in.UserID,
		CustomerName:       customer.Name,
		CustomerEmail:      customer.Email,
		CustomerPhone:      customer.Phone,
		CustomerAddress:    customer.Address,
		CustomerCity:       customer.City,
		CustomerPostalCode: customer.PostalCode,
		CustomerCountry:    customer.Country,
		ShippingMethod:     strings.ToLower(customer.ShippingMethod),
		PaymentMethod:      customer.PaymentMethod,
		ShippingCost:       in.ShippingCost.Round(2),
		Status:             models.StatusPending,
	}

	subtotal := decimal.Zero
	items := make([]models.OrderItem, 0, len(lines))
	costs := make(map[uint]decimal.Decimal, len(lines))
	for _, l := range lines {
		p := products[l.ProductID]
		lineTotal := p.Price.Mul(decimal.NewFromInt(int64(l.Quantity))).Round(2)
		items = append(items, models.OrderItem{
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    l.Quantity,
			UnitPrice:   p.Price,
			TotalPrice:  lineTotal,
		})
		subtotal = subtotal.Add(lineTotal)
		costs[p.ID] = p.CostPrice
	}
	order.Subtotal = subtotal
	order.Total = subtotal.Add(order.ShippingCost)

	if err := tx.Omit("Items").Create(&order).Error; err != nil {
		tx.Rollback()
		return nil, &models.PersistenceError{Op: "create order", Err: err}
	}

	for i := range items {
		items[i].OrderID = order.ID
	}
	if err := tx.Create(&items).Error; err != nil {
		tx.Rollback()
		return nil, &models.PersistenceError{Op: "create order items", Err: err}
	}
	order.Items = items

	// decrement in product ID order so concurrent checkouts lock rows in the
	// same sequence
	byID := make([]cart.Line, len(lines))
	copy(byID, lines)
	sort.Slice(byID, func(i, j int) bool { return byID[i].ProductID < byID[j].ProductID })

	remaining := make(map[uint]int, len(lines))
	for _, l := range byID {
		left, err := guard.DecrementStock(ctx, l.ProductID, l.Quantity)
		if err != nil {
			tx.Rollback()
			return nil, asWorkflowError("decrement stock", err)
		}
		remaining[l.ProductID] = left
	}

	s.recordSales(tx, &order, costs)

	if err := tx.Commit().Error; err != nil {
		return nil, &models.PersistenceError{Op: "commit order", Err: err}
	}

	s.log.Info("order placed",
		zap.String("order", order.Number),
		zap.Uint("order_id", order.ID),
		zap.String("total", order.Total.StringFixed(2)),
		zap.Int("lines", len(order.Items)))

	s.afterPlaced(&order, products, remaining)
	return &order, nil
}

// recordSales writes the reporting rows under a savepoint so a failure can be
// undone without aborting the surrounding transaction.
func (s *Service) recordSales(tx *gorm.DB, order *models.Order, costs map[uint]decimal.Decimal) {
	if err := tx.SavePoint("sales").Error; err != nil {
		s.log.Error("failed to record sales", zap.String("order", order.Number), zap.Error(err))
		return
	}
	if err := s.sales.RecordOrder(tx, order, costs); err != nil {
		s.log.Error("failed to record sales", zap.String("order", order.Number), zap.Error(err))
		if rbErr := tx.RollbackTo("sales").Error; rbErr != nil {
			s.log.Error("failed to roll back sales savepoint", zap.String("order", order.Number), zap.Error(rbErr))
		}
	}
}

func (s *Service) afterPlaced(order *models.Order, products map[uint]*models.Product, remaining map[uint]int) {
	count := 0
	for _, item := range order.Items {
		count += item.Quantity
	}
	s.publisher.Publish(events.TopicOrderPlaced, events.OrderPlaced{
		OrderID:       order.ID,
		Number:        order.Number,
		UserID:        order.UserID,
		CustomerName:  order.CustomerName,
		CustomerEmail: order.CustomerEmail,
		CustomerPhone: order.CustomerPhone,
		Total:         order.Total,
		ItemCount:     count,
		PlacedAt:      order.CreatedAt,
	})

	threshold := s.shop.LowStockThreshold
	for id, left := range remaining {
		if left > threshold {
			continue
		}
		s.publisher.Publish(events.TopicStockLow, events.StockLow{
			ProductID:   id,
			ProductName: products[id].Name,
			Stock:       left,
			Threshold:   threshold,
		})
	}
}

func normaliseCustomer(c CustomerInfo) (CustomerInfo, error) {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.TrimSpace(c.Email)
	c.Address = strings.TrimSpace(c.Address)
	c.Phone = strings.TrimSpace(c.Phone)

	if c.Name == "" {
		return c, models.NewValidationError("name", "customer name is required")
	}
	if c.Email == "" {
		return c, models.NewValidationError("email", "customer email is required")
	}
	if _, err := mail.ParseAddress(c.Email); err != nil {
		return c, models.NewValidationError("email", "invalid email address")
	}
	if c.Address == "" {
		return c, models.NewValidationError("address", "delivery address is required")
	}
	if c.ShippingMethod == "" {
		c.ShippingMethod = DefaultShippingMethod
	}
	return c, nil
}

// mergeLines folds repeated products into one line, keeping first-seen order.
func mergeLines(in []cart.Line) ([]cart.Line, error) {
	index := make(map[uint]int, len(in))
	out := make([]cart.Line, 0, len(in))
	for _, l := range in {
		if l.Quantity < 1 {
			return nil, models.NewValidationError("quantity", "quantity for product %d must be at least 1", l.ProductID)
		}
		if i, ok := index[l.ProductID]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		index[l.ProductID] = len(out)
		out = append(out, l)
	}
	return out, nil
}

// asWorkflowError passes domain errors through and wraps everything else as
// a persistence failure.
func asWorkflowError(op string, err error) error {
	var (
		notFound *models.ProductNotFoundError
		stock    *models.InsufficientStockError
		invalid  *models.ValidationError
	)
	if errors.As(err, &notFound) || errors.As(err, &stock) || errors.As(err, &invalid) {
		return err
	}
	return &models.PersistenceError{Op: op, Err: err}
}
