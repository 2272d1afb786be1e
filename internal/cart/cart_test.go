package cart_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Keoroanthony/go-storefront/internal/cart"
	"github.com/Keoroanthony/go-storefront/internal/catalog"
	"github.com/Keoroanthony/go-storefront/internal/models"
	"github.com/Keoroanthony/go-storefront/internal/testutil"
)

func seedProduct(t *testing.T, store *catalog.Store, name, price string, stock int) *models.Product {
	t.Helper()
	p, err := store.Create(context.Background(), catalog.ProductInput{
		Name: name, Description: "seeded product", Price: decimal.RequireFromString(price), Stock: stock,
	})
	require.NoError(t, err)
	return p
}

// exerciseHolder runs the behaviour every Holder backend must share.
func exerciseHolder(t *testing.T, h cart.Holder) {
	ctx := context.Background()
	owner := cart.GuestOwner(uuid.NewString())

	lines, err := h.Items(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, lines)

	require.NoError(t, h.Add(ctx, owner, 2, 1))
	require.NoError(t, h.Add(ctx, owner, 1, 2))
	require.NoError(t, h.Add(ctx, owner, 2, 3))

	lines, err = h.Items(ctx, owner)
	require.NoError(t, err)
	assert.ElementsMatch(t, []cart.Line{{ProductID: 1, Quantity: 2}, {ProductID: 2, Quantity: 4}}, lines)

	require.NoError(t, h.Update(ctx, owner, 1, 5))
	require.NoError(t, h.Update(ctx, owner, 2, 0))
	lines, err = h.Items(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, []cart.Line{{ProductID: 1, Quantity: 5}}, lines)

	require.NoError(t, h.Remove(ctx, owner, 1))
	require.NoError(t, h.Add(ctx, owner, 3, 1))
	require.NoError(t, h.Clear(ctx, owner))
	lines, err = h.Items(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestGormHolder(t *testing.T) {
	exerciseHolder(t, cart.NewGormHolder(testutil.OpenDB(t)))
}

func TestRedisHolder(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not available at %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = client.Close() })

	exerciseHolder(t, cart.NewRedisHolder(client))
}

func TestOwner(t *testing.T) {
	assert.Equal(t, cart.Owner("user:7"), cart.UserOwner(7))
	assert.False(t, cart.UserOwner(7).IsGuest())
	assert.True(t, cart.GuestOwner("abc").IsGuest())
}

func TestServiceAddChecksStock(t *testing.T) {
	testDB := testutil.OpenDB(t)
	store := catalog.NewStore(testDB)
	svc := cart.NewService(cart.NewGormHolder(testDB), store)
	ctx := context.Background()
	owner := cart.UserOwner(1)

	lamp := seedProduct(t, store, "Lamp", "10.00", 3)

	require.NoError(t, svc.Add(ctx, owner, lamp.ID, 2))

	err := svc.Add(ctx, owner, lamp.ID, 2)
	var stockErr *models.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, 3, stockErr.Available)
	assert.Equal(t, 4, stockErr.Requested)

	err = svc.Add(ctx, owner, lamp.ID, 0)
	var verr *models.ValidationError
	assert.True(t, errors.As(err, &verr))

	err = svc.Add(ctx, owner, 9999, 1)
	var nf *models.ProductNotFoundError
	assert.True(t, errors.As(err, &nf))

	err = svc.Update(ctx, owner, lamp.ID, 4)
	assert.True(t, errors.As(err, &stockErr))
	require.NoError(t, svc.Update(ctx, owner, lamp.ID, 3))

	view, err := svc.View(ctx, owner)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 3, view.Count)
	assert.True(t, view.Total.Equal(decimal.RequireFromString("30")), "got %s", view.Total)
}

func TestServiceViewDropsDeletedProducts(t *testing.T) {
	testDB := testutil.OpenDB(t)
	store := catalog.NewStore(testDB)
	holder := cart.NewGormHolder(testDB)
	svc := cart.NewService(holder, store)
	ctx := context.Background()
	owner := cart.GuestOwner("g1")

	pen := seedProduct(t, store, "Pen", "1.50", 10)
	require.NoError(t, svc.Add(ctx, owner, pen.ID, 2))
	require.NoError(t, holder.Add(ctx, owner, 4242, 1))

	view, err := svc.View(ctx, owner)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, "Pen", view.Items[0].Product.Name)
	assert.True(t, view.Total.Equal(decimal.RequireFromString("3")))

	lines, err := holder.Items(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, lines, 1)
}

type stuckRemoveHolder struct {
	cart.Holder
}

func (stuckRemoveHolder) Remove(context.Context, cart.Owner, uint) error {
	return errors.New("holder unavailable")
}

func TestServiceViewLogsFailedCleanup(t *testing.T) {
	testDB := testutil.OpenDB(t)
	store := catalog.NewStore(testDB)
	holder := cart.NewGormHolder(testDB)
	core, logs := observer.New(zap.WarnLevel)
	svc := cart.NewService(stuckRemoveHolder{holder}, store).WithLogger(zap.New(core))
	ctx := context.Background()
	owner := cart.GuestOwner("g3")

	pen := seedProduct(t, store, "Pen", "1.50", 10)
	require.NoError(t, holder.Add(ctx, owner, pen.ID, 1))
	require.NoError(t, holder.Add(ctx, owner, 4242, 1))

	view, err := svc.View(ctx, owner)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)

	entries := logs.FilterMessage("failed to drop stale cart line").All()
	require.Len(t, entries, 1)
	assert.EqualValues(t, 4242, entries[0].ContextMap()["product_id"])
}

func TestServiceMerge(t *testing.T) {
	testDB := testutil.OpenDB(t)
	store := catalog.NewStore(testDB)
	holder := cart.NewGormHolder(testDB)
	svc := cart.NewService(holder, store)
	ctx := context.Background()

	guest := cart.GuestOwner("g2")
	user := cart.UserOwner(5)
	book := seedProduct(t, store, "Book", "12.00", 4)
	cup := seedProduct(t, store, "Cup", "4.00", 9)

	require.NoError(t, svc.Add(ctx, guest, book.ID, 3))
	require.NoError(t, svc.Add(ctx, guest, cup.ID, 1))
	require.NoError(t, svc.Add(ctx, user, book.ID, 2))

	require.NoError(t, svc.Merge(ctx, guest, user))

	lines, err := holder.Items(ctx, user)
	require.NoError(t, err)
	assert.ElementsMatch(t, []cart.Line{{ProductID: book.ID, Quantity: 4}, {ProductID: cup.ID, Quantity: 1}}, lines)

	lines, err = holder.Items(ctx, guest)
	require.NoError(t, err)
	assert.Empty(t, lines)
}
