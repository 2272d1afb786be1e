package catalog_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Keoroanthony/go-storefront/internal/catalog"
	"github.com/Keoroanthony/go-storefront/internal/models"
	"github.com/Keoroanthony/go-storefront/internal/testutil"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCreateProduct(t *testing.T) {
	store := catalog.NewStore(testutil.OpenDB(t))
	ctx := context.Background()

	t.Run("Successfully creates a product", func(t *testing.T) {
		p, err := store.Create(ctx, catalog.ProductInput{
			Name:        " Laptop ",
			Description: "A portable computer",
			Price:       dec("1200.00"),
			CostPrice:   dec("900.00"),
			Stock:       4,
		})
		require.NoError(t, err)
		assert.Greater(t, p.ID, uint(0))
		assert.Equal(t, "Laptop", p.Name)
		assert.True(t, p.Price.Equal(dec("1200")))
	})

	t.Run("Rejects invalid fields", func(t *testing.T) {
		cases := []catalog.ProductInput{
			{Name: "L", Description: "long enough", Price: dec("1")},
			{Name: "Lamp", Description: "shrt", Price: dec("1")},
			{Name: "Lamp", Description: "long enough", Price: dec("-1")},
			{Name: "Lamp", Description: "long enough", Price: dec("1"), CostPrice: dec("-0.5")},
			{Name: "Lamp", Description: "long enough", Price: dec("1"), Stock: -2},
		}
		for _, in := range cases {
			_, err := store.Create(ctx, in)
			var verr *models.ValidationError
			assert.True(t, errors.As(err, &verr), "expected validation error for %+v", in)
		}
	})

	t.Run("Rejects unknown category", func(t *testing.T) {
		missing := uint(999)
		_, err := store.Create(ctx, catalog.ProductInput{
			Name: "Desk", Description: "A wooden desk", Price: dec("50"), CategoryID: &missing,
		})
		assert.ErrorIs(t, err, models.ErrCategoryNotFound)
	})
}

func TestUpdateAndDeleteProduct(t *testing.T) {
	testDB := testutil.OpenDB(t)
	store := catalog.NewStore(testDB)
	ctx := context.Background()

	p, err := store.Create(ctx, catalog.ProductInput{
		Name: "Chair", Description: "Four legs and a back", Price: dec("40"), Stock: 10,
	})
	require.NoError(t, err)

	newPrice := dec("45.50")
	newStock := 12
	updated, err := store.Update(ctx, p.ID, catalog.ProductPatch{Price: &newPrice, Stock: &newStock})
	require.NoError(t, err)
	assert.True(t, updated.Price.Equal(newPrice))
	assert.Equal(t, 12, updated.Stock)
	assert.Equal(t, "Chair", updated.Name)

	badStock := -1
	_, err = store.Update(ctx, p.ID, catalog.ProductPatch{Stock: &badStock})
	var verr *models.ValidationError
	assert.True(t, errors.As(err, &verr))

	_, err = store.Update(ctx, 4242, catalog.ProductPatch{Stock: &newStock})
	var nf *models.ProductNotFoundError
	assert.True(t, errors.As(err, &nf))

	t.Run("Refuses to delete a product referenced by an order line", func(t *testing.T) {
		order := models.Order{
			Number: "T-1", CustomerName: "Ann", CustomerEmail: "ann@example.com",
			Subtotal: dec("45.50"), Total: dec("45.50"), Status: models.StatusPending,
			Items: []models.OrderItem{{ProductID: p.ID, Quantity: 1, UnitPrice: dec("45.50"), TotalPrice: dec("45.50")}},
		}
		require.NoError(t, testDB.Create(&order).Error)

		assert.ErrorIs(t, store.Delete(ctx, p.ID), models.ErrProductInUse)
		_, err := store.GetByID(ctx, p.ID)
		assert.NoError(t, err)
	})

	t.Run("Deletes an unreferenced product and its cart lines", func(t *testing.T) {
		other, err := store.Create(ctx, catalog.ProductInput{
			Name: "Stool", Description: "Three legs", Price: dec("15"), Stock: 3,
		})
		require.NoError(t, err)
		require.NoError(t, testDB.Create(&models.CartItem{Owner: "guest:x", ProductID: other.ID, Quantity: 1}).Error)

		require.NoError(t, store.Delete(ctx, other.ID))

		var lines int64
		testDB.Model(&models.CartItem{}).Where("product_id = ?", other.ID).Count(&lines)
		assert.Equal(t, int64(0), lines)

		_, err = store.GetByID(ctx, other.ID)
		assert.True(t, errors.As(err, &nf))
	})
}

func TestDecrementStock(t *testing.T) {
	store := catalog.NewStore(testutil.OpenDB(t))
	ctx := context.Background()

	p, err := store.Create(ctx, catalog.ProductInput{
		Name: "Mug", Description: "Holds coffee", Price: dec("8"), Stock: 5,
	})
	require.NoError(t, err)

	remaining, err := store.DecrementStock(ctx, p.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, remaining)

	_, err = store.DecrementStock(ctx, p.ID, 4)
	var stockErr *models.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, 3, stockErr.Available)
	assert.Equal(t, 4, stockErr.Requested)

	ok, err := store.CheckStock(ctx, p.ID, 3)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.RestoreStock(ctx, p.ID, 2))
	fresh, err := store.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, fresh.Stock)

	_, err = store.DecrementStock(ctx, 9999, 1)
	var nf *models.ProductNotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestDecrementStockConcurrent(t *testing.T) {
	store := catalog.NewStore(testutil.OpenDB(t))
	ctx := context.Background()

	p, err := store.Create(ctx, catalog.ProductInput{
		Name: "Ticket", Description: "Front row seat", Price: dec("100"), Stock: 3,
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var succeeded int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.DecrementStock(ctx, p.ID, 1); err == nil {
				atomic.AddInt32(&succeeded, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(3), succeeded)
	fresh, err := store.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, fresh.Stock)
}

func TestListSearchAndLowStock(t *testing.T) {
	store := catalog.NewStore(testutil.OpenDB(t))
	ctx := context.Background()

	for _, in := range []catalog.ProductInput{
		{Name: "Red Shirt", Description: "Cotton shirt", Price: dec("20"), Stock: 2},
		{Name: "Blue Shirt", Description: "Linen shirt", Price: dec("25"), Stock: 10},
		{Name: "Hat", Description: "Keeps the sun off", Price: dec("12"), Stock: 0},
	} {
		_, err := store.Create(ctx, in)
		require.NoError(t, err)
	}

	rows, total, err := store.List(ctx, catalog.ListParams{Query: "shirt", Sort: "price", Order: "asc"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, rows, 2)
	assert.Equal(t, "Red Shirt", rows[0].Name)

	rows, total, err = store.List(ctx, catalog.ListParams{Page: 2, PerPage: 2, Sort: "name; DROP TABLE products"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, rows, 1)

	found, err := store.Search(ctx, "SUN")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Hat", found[0].Name)

	low, err := store.LowStock(ctx, 3)
	require.NoError(t, err)
	require.Len(t, low, 2)
	assert.Equal(t, "Hat", low[0].Name)
}

func TestCategories(t *testing.T) {
	store := catalog.NewStore(testutil.OpenDB(t))
	ctx := context.Background()

	computers, err := store.CreateCategory(ctx, "Computers", nil)
	require.NoError(t, err)
	laptops, err := store.CreateCategory(ctx, "Laptops", &computers.ID)
	require.NoError(t, err)
	require.NotNil(t, laptops.Parent)
	assert.Equal(t, "Computers", laptops.Parent.Name)
	gaming, err := store.CreateCategory(ctx, "Gaming Laptops", &laptops.ID)
	require.NoError(t, err)

	missing := uint(999)
	_, err = store.CreateCategory(ctx, "Orphan", &missing)
	assert.ErrorIs(t, err, models.ErrCategoryNotFound)

	ids, err := store.DescendantIDs(ctx, computers.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{computers.ID, laptops.ID, gaming.ID}, ids)

	avg, err := store.AveragePrice(ctx, computers.ID)
	require.NoError(t, err)
	assert.True(t, avg.IsZero())

	for _, in := range []catalog.ProductInput{
		{Name: "Desktop", Description: "Tower computer", Price: dec("1000"), CategoryID: &computers.ID},
		{Name: "Notebook", Description: "Thin laptop", Price: dec("800"), CategoryID: &laptops.ID},
		{Name: "Gamer X", Description: "Gaming laptop", Price: dec("1500"), CategoryID: &gaming.ID},
	} {
		_, err := store.Create(ctx, in)
		require.NoError(t, err)
	}

	avg, err = store.AveragePrice(ctx, computers.ID)
	require.NoError(t, err)
	assert.True(t, avg.Equal(dec("1100")), "got %s", avg)

	avg, err = store.AveragePrice(ctx, laptops.ID)
	require.NoError(t, err)
	assert.True(t, avg.Equal(dec("1150")), "got %s", avg)

	list, err := store.ListCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestProductSlugs(t *testing.T) {
	store := catalog.NewStore(testutil.OpenDB(t))
	ctx := context.Background()

	a, err := store.Create(ctx, catalog.ProductInput{Name: "Café Table", Description: "round and small", Price: dec("80")})
	require.NoError(t, err)
	assert.Equal(t, "cafe-table", a.Slug)

	b, err := store.Create(ctx, catalog.ProductInput{Name: "Cafe table", Description: "another round one", Price: dec("85")})
	require.NoError(t, err)
	assert.Equal(t, "cafe-table-2", b.Slug)

	c, err := store.Create(ctx, catalog.ProductInput{Name: "!!", Description: "symbols only", Price: dec("1")})
	require.NoError(t, err)
	assert.Equal(t, "product", c.Slug)

	got, err := store.GetBySlug(ctx, " Cafe-Table-2 ")
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)

	_, err = store.GetBySlug(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrProductNotFound)

	_, err = store.Create(ctx, catalog.ProductInput{Name: "Stool", Slug: "cafe-table", Description: "three legs", Price: dec("20")})
	var verr *models.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "slug", verr.Field)

	// renaming keeps the slug stable
	renamed := "Bistro Table"
	updated, err := store.Update(ctx, a.ID, catalog.ProductPatch{Name: &renamed})
	require.NoError(t, err)
	assert.Equal(t, "cafe-table", updated.Slug)
}
