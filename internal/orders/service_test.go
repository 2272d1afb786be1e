package orders_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"

	config "github.com/Keoroanthony/go-storefront/configs"
	"github.com/Keoroanthony/go-storefront/internal/cart"
	"github.com/Keoroanthony/go-storefront/internal/catalog"
	"github.com/Keoroanthony/go-storefront/internal/events"
	"github.com/Keoroanthony/go-storefront/internal/models"
	"github.com/Keoroanthony/go-storefront/internal/orders"
	"github.com/Keoroanthony/go-storefront/internal/testutil"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type published struct {
	topic   string
	payload interface{}
}

type capturePublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *capturePublisher) Publish(topic string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{topic, payload})
}

func (p *capturePublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.topic)
	}
	return out
}

type failingRecorder struct{}

func (failingRecorder) RecordOrder(*gorm.DB, *models.Order, map[uint]decimal.Decimal) error {
	return errors.New("reporting store unavailable")
}

type fixture struct {
	db        *gorm.DB
	store     *catalog.Store
	holder    *cart.GormHolder
	svc       *orders.Service
	publisher *capturePublisher
	logs      *observer.ObservedLogs
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	testDB := testutil.OpenDB(t)
	store := catalog.NewStore(testDB)
	holder := cart.NewGormHolder(testDB)
	pub := &capturePublisher{}
	core, logs := observer.New(zap.InfoLevel)

	svc, err := orders.NewService(testDB, store, holder, config.Default().Shop, pub, zap.New(core))
	require.NoError(t, err)
	return &fixture{db: testDB, store: store, holder: holder, svc: svc, publisher: pub, logs: logs}
}

func (f *fixture) product(t *testing.T, name, price, cost string, stock int) *models.Product {
	t.Helper()
	p, err := f.store.Create(context.Background(), catalog.ProductInput{
		Name: name, Description: "test product", Price: dec(price), CostPrice: dec(cost), Stock: stock,
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) stock(t *testing.T, id uint) int {
	t.Helper()
	p, err := f.store.GetByID(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func (f *fixture) count(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

func customer() orders.CustomerInfo {
	return orders.CustomerInfo{
		Name:    "Jane Doe",
		Email:   "jane@example.com",
		Phone:   "+254700000000",
		Address: "1 Moi Avenue",
		City:    "Nairobi",
	}
}

func TestPlaceOrderScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "Product A", "10.00", "6.00", 5)

	order, err := f.svc.PlaceOrder(ctx, orders.PlaceOrderInput{
		Lines:        []cart.Line{{ProductID: a.ID, Quantity: 2}},
		Customer:     customer(),
		ShippingCost: dec("3.00"),
	})
	require.NoError(t, err)

	assert.True(t, order.Total.Equal(dec("23.00")), "total %s", order.Total)
	assert.True(t, order.Subtotal.Equal(dec("20.00")))
	assert.Equal(t, models.StatusPending, order.Status)
	assert.NotEmpty(t, order.Number)
	require.Len(t, order.Items, 1)
	assert.True(t, order.Items[0].TotalPrice.Equal(dec("20.00")))
	assert.True(t, order.Items[0].UnitPrice.Equal(dec("10.00")))
	assert.Equal(t, 3, f.stock(t, a.ID))

	var sale models.Sale
	require.NoError(t, f.db.Where("order_id = ?", order.ID).First(&sale).Error)
	assert.Equal(t, 2, sale.Quantity)
	assert.True(t, sale.Profit.Equal(dec("8.00")), "profit %s", sale.Profit)

	assert.Equal(t, []string{events.TopicOrderPlaced, events.TopicStockLow}, f.publisher.topics())
}

func TestPlaceOrderTotalsInvariant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "Pen", "1.99", "0.50", 100)
	b := f.product(t, "Notebook", "3.33", "1.00", 100)
	c := f.product(t, "Stapler", "12.49", "7.00", 100)

	carts := [][]cart.Line{
		{{ProductID: a.ID, Quantity: 3}},
		{{ProductID: a.ID, Quantity: 1}, {ProductID: b.ID, Quantity: 7}},
		{{ProductID: b.ID, Quantity: 3}, {ProductID: c.ID, Quantity: 2}, {ProductID: a.ID, Quantity: 11}},
		{{ProductID: c.ID, Quantity: 1}, {ProductID: c.ID, Quantity: 2}},
	}
	for i, lines := range carts {
		shipping := dec("10.00")
		if i%2 == 0 {
			shipping = dec("3.00")
		}
		order, err := f.svc.PlaceOrder(ctx, orders.PlaceOrderInput{Lines: lines, Customer: customer(), ShippingCost: shipping})
		require.NoError(t, err)

		sum := decimal.Zero
		for _, item := range order.Items {
			sum = sum.Add(item.TotalPrice)
		}
		diff := sum.Add(shipping).Sub(order.Total).Abs()
		assert.True(t, diff.LessThanOrEqual(dec("0.01")), "cart %d: items %s + shipping %s != total %s", i, sum, shipping, order.Total)
	}

	// repeated lines for the same product are merged
	order, err := f.svc.Get(ctx, 4)
	require.NoError(t, err)
	require.Len(t, order.Items, 1)
	assert.Equal(t, 3, order.Items[0].Quantity)
}

func TestPlaceOrderRefetchIsStable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "Kettle", "25.50", "15.00", 4)
	b := f.product(t, "Toaster", "40.00", "22.00", 4)

	placed, err := f.svc.PlaceOrder(ctx, orders.PlaceOrderInput{
		Lines:        []cart.Line{{ProductID: a.ID, Quantity: 1}, {ProductID: b.ID, Quantity: 2}},
		Customer:     customer(),
		ShippingCost: dec("10.00"),
	})
	require.NoError(t, err)

	// later price edits must not leak into the stored order
	newPrice := dec("99.99")
	_, err = f.store.Update(ctx, a.ID, catalog.ProductPatch{Price: &newPrice})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		fetched, err := f.svc.Get(ctx, placed.ID)
		require.NoError(t, err)
		assert.True(t, fetched.Total.Equal(placed.Total))
		assert.True(t, fetched.Subtotal.Equal(placed.Subtotal))
		require.Len(t, fetched.Items, len(placed.Items))
		for j := range placed.Items {
			assert.Equal(t, placed.Items[j].ProductID, fetched.Items[j].ProductID)
			assert.Equal(t, placed.Items[j].Quantity, fetched.Items[j].Quantity)
			assert.True(t, placed.Items[j].UnitPrice.Equal(fetched.Items[j].UnitPrice))
			assert.True(t, placed.Items[j].TotalPrice.Equal(fetched.Items[j].TotalPrice))
		}
	}

	byNumber, err := f.svc.GetByNumber(ctx, placed.Number)
	require.NoError(t, err)
	assert.Equal(t, placed.ID, byNumber.ID)

	_, err = f.svc.Get(ctx, 999)
	assert.ErrorIs(t, err, models.ErrOrderNotFound)
}

func TestPlaceOrderValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "Lamp", "10.00", "5.00", 5)
	lines := []cart.Line{{ProductID: a.ID, Quantity: 1}}

	t.Run("Fails on an empty cart without writing", func(t *testing.T) {
		_, err := f.svc.PlaceOrder(ctx, orders.PlaceOrderInput{Customer: customer()})
		assert.ErrorIs(t, err, models.ErrEmptyCart)
		assert.Equal(t, int64(0), f.count(t, &models.Order{}))
	})

	t.Run("Requires customer name, email and address", func(t *testing.T) {
		for _, mutate := range []func(*orders.CustomerInfo){
			func(c *orders.CustomerInfo) { c.Name = "  " },
			func(c *orders.CustomerInfo) { c.Email = "" },
			func(c *orders.CustomerInfo) { c.Email = "not-an-email" },
			func(c *orders.CustomerInfo) { c.Address = "" },
		} {
			info := customer()
			mutate(&info)
			_, err := f.svc.PlaceOrder(ctx, orders.PlaceOrderInput{Lines: lines, Customer: info})
			var verr *models.ValidationError
			assert.True(t, errors.As(err, &verr), "got %v", err)
		}
	})

	t.Run("Rejects non-positive quantities and negative shipping", func(t *testing.T) {
		_, err := f.svc.PlaceOrder(ctx, orders.PlaceOrderInput{
			Lines: []cart.Line{{ProductID: a.ID, Quantity: 0}}, Customer: customer(),
		})
		var verr *models.ValidationError
		assert.True(t, errors.As(err, &verr))

		_, err = f.svc.PlaceOrder(ctx, orders.PlaceOrderInput{Lines: lines, Customer: customer(), ShippingCost: dec("-1")})
		assert.True(t, errors.As(err, &verr))
	})

	t.Run("Reports unknown products", func(t *testing.T) {
		_, err := f.svc.PlaceOrder(ctx, orders.PlaceOrderInput{
			Lines: []cart.Line{{ProductID: a.ID, Quantity: 1}, {ProductID: 4040, Quantity: 1}}, Customer: customer(),
		})
		var nf *models.ProductNotFoundError
		require.True(t, errors.As(err, &nf))
		assert.Equal(t, uint(4040), nf.ProductID)
	})

	assert.Equal(t, int64(0), f.count(t, &models.Order{}))
	assert.Equal(t, int64(0), f.count(t, &models.OrderItem{}))
	assert.Equal(t, 5, f.stock(t, a.ID))
}

func TestPlaceOrderInsufficientStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "Chair", "30.00", "20.00", 10)
	b := f.product(t, "Table", "90.00", "60.00", 2)

	_, err := f.svc.PlaceOrder(ctx, orders.PlaceOrderInput{
		Lines:    []cart.Line{{ProductID: a.ID, Quantity: 4}, {ProductID: b.ID, Quantity: 3}},
		Customer: customer(),
	})
	var stockErr *models.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, b.ID, stockErr.ProductID)
	assert.Equal(t, 2, stockErr.Available)
	assert.Equal(t, 3, stockErr.Requested)

	assert.Equal(t, 10, f.stock(t, a.ID))
	assert.Equal(t, 2, f.stock(t, b.ID))
	assert.Equal(t, int64(0), f.count(t, &models.Order{}))
	assert.Equal(t, int64(0), f.count(t, &models.OrderItem{}))
	assert.Equal(t, int64(0), f.count(t, &models.Sale{}))
	assert.Empty(t, f.publisher.topics())
}

// The test pool has one connection, so the two checkouts run one after the
// other here. Overlapping decrements are covered in catalog's
// TestDecrementStockConcurrent and the rollback after a lost decrement in
// TestPlaceOrderRollsBackWhenDecrementLoses.
func TestPlaceOrderLastUnitSoldOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	last := f.product(t, "Signed Print", "150.00", "40.00", 1)

	const buyers = 2
	var wg sync.WaitGroup
	errs := make([]error, buyers)
	start := make(chan struct{})
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.svc.PlaceOrder(ctx, orders.PlaceOrderInput{
				Lines:    []cart.Line{{ProductID: last.ID, Quantity: 1}},
				Customer: customer(),
			})
		}(i)
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var stockErr *models.InsufficientStockError
		require.True(t, errors.As(err, &stockErr), "unexpected error %v", err)
		assert.Equal(t, 0, stockErr.Available)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 0, f.stock(t, last.ID))
	assert.Equal(t, int64(1), f.count(t, &models.Order{}))
}

// afterItemsInsert runs fn inside the checkout transaction once the order
// items have been written.
func afterItemsInsert(t *testing.T, db *gorm.DB, name string, fn func(tx *gorm.DB)) {
	t.Helper()
	err := db.Callback().Create().After("gorm:create").Register(name, func(tx *gorm.DB) {
		if tx.Statement.Table == "order_items" && tx.Error == nil {
			fn(tx)
		}
	})
	require.NoError(t, err)
}

func TestPlaceOrderRollsBackWhenDecrementLoses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "Product A", "10.00", "6.00", 5)

	// another buyer takes most of the stock between the check and the decrement
	afterItemsInsert(t, f.db, "test:steal_stock", func(tx *gorm.DB) {
		_, err := tx.Statement.ConnPool.ExecContext(tx.Statement.Context,
			"UPDATE products SET stock = ? WHERE id = ?", 1, a.ID)
		require.NoError(t, err)
	})

	_, err := f.svc.PlaceOrder(ctx, orders.PlaceOrderInput{
		Lines:    []cart.Line{{ProductID: a.ID, Quantity: 3}},
		Customer: customer(),
	})
	var stockErr *models.InsufficientStockError
	require.True(t, errors.As(err, &stockErr), "unexpected error %v", err)
	assert.Equal(t, a.ID, stockErr.ProductID)
	assert.Equal(t, 1, stockErr.Available)

	assert.Equal(t, 5, f.stock(t, a.ID))
	assert.Equal(t, int64(0), f.count(t, &models.Order{}))
	assert.Equal(t, int64(0), f.count(t, &models.OrderItem{}))
	assert.Equal(t, int64(0), f.count(t, &models.Sale{}))
	assert.Empty(t, f.publisher.topics())
}

func TestPlaceOrderRollsBackWhenItemsFail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "Product A", "10.00", "6.00", 5)

	err := f.db.Callback().Create().Before("gorm:create").Register("test:reject_items", func(tx *gorm.DB) {
		if tx.Statement.Table == "order_items" {
			_ = tx.AddError(errors.New("disk full"))
		}
	})
	require.NoError(t, err)

	_, err = f.svc.PlaceOrder(ctx, orders.PlaceOrderInput{
		Lines:    []cart.Line{{ProductID: a.ID, Quantity: 2}},
		Customer: customer(),
	})
	var persistErr *models.PersistenceError
	require.True(t, errors.As(err, &persistErr), "unexpected error %v", err)
	assert.Equal(t, "create order items", persistErr.Op)

	assert.Equal(t, 5, f.stock(t, a.ID))
	assert.Equal(t, int64(0), f.count(t, &models.Order{}))
	assert.Equal(t, int64(0), f.count(t, &models.OrderItem{}))
	assert.Empty(t, f.publisher.topics())
}

func TestPlaceOrderDecrementsEveryLine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "Product A", "10.00", "6.00", 5)
	b := f.product(t, "Product B", "4.00", "1.00", 5)

	// lines arrive with the higher ID first; items keep cart order
	order, err := f.svc.PlaceOrder(ctx, orders.PlaceOrderInput{
		Lines:    []cart.Line{{ProductID: b.ID, Quantity: 1}, {ProductID: a.ID, Quantity: 2}},
		Customer: customer(),
	})
	require.NoError(t, err)
	require.Len(t, order.Items, 2)
	assert.Equal(t, b.ID, order.Items[0].ProductID)
	assert.Equal(t, 3, f.stock(t, a.ID))
	assert.Equal(t, 4, f.stock(t, b.ID))
}

func TestPlaceOrderSurvivesSaleFailure(t *testing.T) {
	t.Run("Recorder error is logged and the order commits", func(t *testing.T) {
		f := newFixture(t)
		f.svc.WithSaleRecorder(failingRecorder{})
		a := f.product(t, "Speaker", "80.00", "50.00", 3)

		order, err := f.svc.PlaceOrder(context.Background(), orders.PlaceOrderInput{
			Lines: []cart.Line{{ProductID: a.ID, Quantity: 1}}, Customer: customer(), ShippingCost: dec("3.00"),
		})
		require.NoError(t, err)
		assert.True(t, order.Total.Equal(dec("83.00")))

		stored, err := f.svc.Get(context.Background(), order.ID)
		require.NoError(t, err)
		assert.Len(t, stored.Items, 1)
		assert.Equal(t, 2, f.stock(t, a.ID))
		assert.Equal(t, int64(0), f.count(t, &models.Sale{}))
		assert.Equal(t, 1, f.logs.FilterMessage("failed to record sales").Len())
	})

	t.Run("Missing sales table does not abort the order", func(t *testing.T) {
		f := newFixture(t)
		a := f.product(t, "Amplifier", "120.00", "70.00", 3)
		require.NoError(t, f.db.Migrator().DropTable(&models.Sale{}))

		order, err := f.svc.PlaceOrder(context.Background(), orders.PlaceOrderInput{
			Lines: []cart.Line{{ProductID: a.ID, Quantity: 2}}, Customer: customer(),
		})
		require.NoError(t, err)

		stored, err := f.svc.Get(context.Background(), order.ID)
		require.NoError(t, err)
		require.Len(t, stored.Items, 1)
		assert.Equal(t, 1, f.stock(t, a.ID))
	})
}

func TestCheckout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "Headphones", "10.00", "4.00", 5)
	owner := cart.UserOwner(1)
	userID := uint(1)

	t.Run("Empty cart fails without writes", func(t *testing.T) {
		_, err := f.svc.Checkout(ctx, owner, &userID, customer())
		assert.ErrorIs(t, err, models.ErrEmptyCart)
		assert.Equal(t, int64(0), f.count(t, &models.Order{}))
	})

	require.NoError(t, f.holder.Add(ctx, owner, a.ID, 2))

	t.Run("Unknown shipping method keeps the cart", func(t *testing.T) {
		info := customer()
		info.ShippingMethod = "teleport"
		_, err := f.svc.Checkout(ctx, owner, &userID, info)
		var verr *models.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "shipping_method", verr.Field)

		lines, err := f.holder.Items(ctx, owner)
		require.NoError(t, err)
		assert.Len(t, lines, 1)
	})

	t.Run("Insufficient stock keeps the cart", func(t *testing.T) {
		require.NoError(t, f.holder.Update(ctx, owner, a.ID, 6))
		_, err := f.svc.Checkout(ctx, owner, &userID, customer())
		var stockErr *models.InsufficientStockError
		require.True(t, errors.As(err, &stockErr))
		assert.Equal(t, 5, stockErr.Available)

		lines, err := f.holder.Items(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, []cart.Line{{ProductID: a.ID, Quantity: 6}}, lines)
		require.NoError(t, f.holder.Update(ctx, owner, a.ID, 2))
	})

	t.Run("Success charges the shipping fee and clears the cart", func(t *testing.T) {
		order, err := f.svc.Checkout(ctx, owner, &userID, customer())
		require.NoError(t, err)
		assert.True(t, order.Total.Equal(dec("23.00")), "total %s", order.Total)
		assert.Equal(t, "standard", order.ShippingMethod)
		require.NotNil(t, order.UserID)
		assert.Equal(t, userID, *order.UserID)
		assert.Equal(t, 3, f.stock(t, a.ID))

		lines, err := f.holder.Items(ctx, owner)
		require.NoError(t, err)
		assert.Empty(t, lines)

		mine, err := f.svc.ListForUser(ctx, userID)
		require.NoError(t, err)
		assert.Len(t, mine, 1)
	})

	t.Run("Express shipping uses the fee table", func(t *testing.T) {
		require.NoError(t, f.holder.Add(ctx, owner, a.ID, 1))
		info := customer()
		info.ShippingMethod = "Express"
		order, err := f.svc.Checkout(ctx, owner, &userID, info)
		require.NoError(t, err)
		assert.True(t, order.ShippingCost.Equal(dec("10.00")))
		assert.True(t, order.Total.Equal(dec("20.00")))
	})
}
