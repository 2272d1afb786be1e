// Package handlers exposes the storefront over HTTP with gin.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Keoroanthony/go-storefront/internal/auth"
	"github.com/Keoroanthony/go-storefront/internal/cart"
	"github.com/Keoroanthony/go-storefront/internal/catalog"
	"github.com/Keoroanthony/go-storefront/internal/notifier"
	"github.com/Keoroanthony/go-storefront/internal/orders"
	"github.com/Keoroanthony/go-storefront/internal/reports"
	"github.com/Keoroanthony/go-storefront/internal/reviews"
	"github.com/Keoroanthony/go-storefront/internal/sales"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// Handler holds the services every route talks to.
type Handler struct {
	Catalog       *catalog.Store
	Carts         *cart.Service
	Orders        *orders.Service
	Sales         *sales.Store
	Reports       *reports.Service
	Reviews       *reviews.Service
	Notifications *notifier.Store
	Sweeper       *notifier.Sweeper
	Auth          *auth.Service
	Log           *zap.Logger

	LowStockThreshold int

	// Checkout limits order placement per client; nil disables it.
	CheckoutLimit *RateLimiter
}

// Register mounts every route on r. Session middleware must already be in
// place.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/health", h.Health)

	authGroup := r.Group("/auth")
	{
		authGroup.GET("/login", h.Auth.Login)
		authGroup.GET("/callback", h.Auth.Callback)
		authGroup.POST("/logout", h.Auth.Logout)
	}

	api := r.Group("/api")
	api.Use(h.Auth.OptionalAuth())
	{
		api.GET("/products", h.ListProducts)
		api.GET("/products/average", h.GetAveragePrice)
		api.GET("/products/slug/:slug", h.GetProductBySlug)
		api.GET("/products/:id", h.GetProduct)
		api.GET("/products/:id/reviews", h.ListReviews)
		api.GET("/categories", h.ListCategories)

		api.GET("/cart", h.GetCart)
		api.POST("/cart/items", h.AddToCart)
		api.PUT("/cart/items/:product_id", h.UpdateCartItem)
		api.DELETE("/cart/items/:product_id", h.RemoveFromCart)
		api.DELETE("/cart", h.ClearCart)

		checkout := []gin.HandlerFunc{}
		if h.CheckoutLimit != nil {
			checkout = append(checkout, h.CheckoutLimit.Middleware())
		}
		api.POST("/checkout", append(checkout, h.Checkout)...)
		api.GET("/orders/lookup", h.LookupOrder)
	}

	user := api.Group("")
	user.Use(h.Auth.RequireAuth())
	{
		user.GET("/me", h.Me)

		user.GET("/orders", h.ListMyOrders)
		user.GET("/orders/:id", h.GetOrder)
		user.POST("/orders/:id/cancel", h.CancelOrder)

		user.POST("/products/:id/reviews", h.CreateReview)
		user.PUT("/reviews/:id", h.UpdateReview)
		user.DELETE("/reviews/:id", h.DeleteReview)

		user.GET("/notifications", h.ListNotifications)
		user.POST("/notifications/:id/read", h.MarkNotificationRead)
		user.POST("/notifications/read-all", h.MarkAllNotificationsRead)
	}

	admin := api.Group("/admin")
	admin.Use(h.Auth.RequireAuth(), h.Auth.RequireAdmin())
	{
		admin.POST("/products", h.CreateProduct)
		admin.PUT("/products/:id", h.UpdateProduct)
		admin.DELETE("/products/:id", h.DeleteProduct)
		admin.GET("/products/low-stock", h.LowStock)
		admin.POST("/products/low-stock/check", h.CheckLowStock)
		admin.POST("/categories", h.CreateCategory)

		admin.GET("/users", h.AdminListUsers)
		admin.GET("/users/:id", h.AdminGetUser)
		admin.PUT("/users/:id/role", h.UpdateUserRole)

		admin.GET("/orders", h.AdminListOrders)
		admin.GET("/orders/:id", h.AdminGetOrder)
		admin.PUT("/orders/:id/status", h.UpdateOrderStatus)

		admin.GET("/reports/profit-loss", h.ProfitLoss)
		admin.GET("/reports/financial", h.FinancialSummary)
		admin.GET("/reports/daily", h.DailyFinancials)
		admin.GET("/reports/top-products", h.TopProducts)
		admin.GET("/reports/sales", h.ListSales)
		admin.GET("/reports/sales.csv", h.ExportSales)
	}
}

// GET /health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(id), true
}

func optionalUintQuery(c *gin.Context, name string) (*uint, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return nil, false
	}
	id := uint(v)
	return &id, true
}

// paging reads page and per_page, clamping per_page to maxPerPage.
func paging(c *gin.Context) (page, perPage int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	perPage, _ = strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(defaultPerPage)))
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return page, perPage
}

func userIDOf(c *gin.Context) *uint {
	if cust := auth.CurrentCustomer(c); cust != nil {
		id := cust.ID
		return &id
	}
	return nil
}
