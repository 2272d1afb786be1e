package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/Keoroanthony/go-storefront/internal/auth"
	"github.com/Keoroanthony/go-storefront/internal/models"
	"github.com/Keoroanthony/go-storefront/internal/orders"
	"github.com/Keoroanthony/go-storefront/internal/reports"
)

type UpdateOrderStatusRequest struct {
	Status models.OrderStatus `json:"status" binding:"required"`
}

// POST /api/checkout places an order from the caller's cart. Guests may check
// out; signed-in customers get the order linked to their account.
func (h *Handler) Checkout(c *gin.Context) {
	owner, ok := h.cartOwner(c)
	if !ok {
		return
	}

	// field checks happen in the service, after the cart is known to be non-empty
	var req orders.CustomerInfo
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := h.Orders.Checkout(c.Request.Context(), owner, userIDOf(c), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "order created successfully", "order": order})
}

// GET /api/orders/lookup?number=&email= lets a guest find an order they placed.
func (h *Handler) LookupOrder(c *gin.Context) {
	number := strings.TrimSpace(c.Query("number"))
	email := strings.TrimSpace(c.Query("email"))
	if number == "" || email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "number and email are required"})
		return
	}
	order, err := h.Orders.GetByNumber(c.Request.Context(), number)
	if err == nil && !strings.EqualFold(order.CustomerEmail, email) {
		err = models.ErrOrderNotFound
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// GET /api/orders
func (h *Handler) ListMyOrders(c *gin.Context) {
	cust := auth.CurrentCustomer(c)
	list, err := h.Orders.ListForUser(c.Request.Context(), cust.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": list})
}

// GET /api/orders/:id
func (h *Handler) GetOrder(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	order, err := h.Orders.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	cust := auth.CurrentCustomer(c)
	if order.UserID == nil || *order.UserID != cust.ID {
		// other customers' orders are indistinguishable from missing ones
		h.respondError(c, models.ErrOrderNotFound)
		return
	}
	c.JSON(http.StatusOK, order)
}

// POST /api/orders/:id/cancel
func (h *Handler) CancelOrder(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	cust := auth.CurrentCustomer(c)
	order, err := h.Orders.CancelByCustomer(c.Request.Context(), id, cust.ID)
	if errors.Is(err, models.ErrForbidden) {
		err = models.ErrOrderNotFound
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "order cancelled", "order": order})
}

// GET /api/admin/orders?status=&user_id=&from=&to=&page=&per_page=
func (h *Handler) AdminListOrders(c *gin.Context) {
	userID, ok := optionalUintQuery(c, "user_id")
	if !ok {
		return
	}
	r, err := reports.ParseRange(c.Query("from"), c.Query("to"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	page, perPage := paging(c)

	list, total, err := h.Orders.List(c.Request.Context(), orders.Filter{
		UserID:  userID,
		Status:  models.OrderStatus(strings.ToLower(c.Query("status"))),
		From:    r.From,
		To:      r.To,
		Page:    page,
		PerPage: perPage,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": list, "total": total, "page": page, "per_page": perPage})
}

// GET /api/admin/orders/:id
func (h *Handler) AdminGetOrder(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	order, err := h.Orders.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// PUT /api/admin/orders/:id/status
func (h *Handler) UpdateOrderStatus(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := h.Orders.UpdateStatus(c.Request.Context(), id, models.OrderStatus(strings.ToLower(string(req.Status))))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}
