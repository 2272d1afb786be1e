package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Keoroanthony/go-storefront/internal/auth"
	"github.com/Keoroanthony/go-storefront/internal/cart"
)

type AddToCartRequest struct {
	ProductID uint `json:"product_id" binding:"required"`
	Quantity  int  `json:"quantity"`
}

type UpdateCartItemRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

func (h *Handler) cartOwner(c *gin.Context) (cart.Owner, bool) {
	owner, err := auth.CartOwner(c)
	if err != nil {
		h.respondError(c, err)
		return "", false
	}
	return owner, true
}

func (h *Handler) renderCart(c *gin.Context, owner cart.Owner, status int) {
	view, err := h.Carts.View(c.Request.Context(), owner)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(status, view)
}

// GET /api/cart
func (h *Handler) GetCart(c *gin.Context) {
	owner, ok := h.cartOwner(c)
	if !ok {
		return
	}
	h.renderCart(c, owner, http.StatusOK)
}

// POST /api/cart/items
func (h *Handler) AddToCart(c *gin.Context) {
	var req AddToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	owner, ok := h.cartOwner(c)
	if !ok {
		return
	}
	if err := h.Carts.Add(c.Request.Context(), owner, req.ProductID, req.Quantity); err != nil {
		h.respondError(c, err)
		return
	}
	h.renderCart(c, owner, http.StatusCreated)
}

// PUT /api/cart/items/:product_id
func (h *Handler) UpdateCartItem(c *gin.Context) {
	productID, ok := idParam(c, "product_id")
	if !ok {
		return
	}
	var req UpdateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	owner, ok := h.cartOwner(c)
	if !ok {
		return
	}
	if err := h.Carts.Update(c.Request.Context(), owner, productID, *req.Quantity); err != nil {
		h.respondError(c, err)
		return
	}
	h.renderCart(c, owner, http.StatusOK)
}

// DELETE /api/cart/items/:product_id
func (h *Handler) RemoveFromCart(c *gin.Context) {
	productID, ok := idParam(c, "product_id")
	if !ok {
		return
	}
	owner, ok := h.cartOwner(c)
	if !ok {
		return
	}
	if err := h.Carts.Remove(c.Request.Context(), owner, productID); err != nil {
		h.respondError(c, err)
		return
	}
	h.renderCart(c, owner, http.StatusOK)
}

// DELETE /api/cart
func (h *Handler) ClearCart(c *gin.Context) {
	owner, ok := h.cartOwner(c)
	if !ok {
		return
	}
	if err := h.Carts.Clear(c.Request.Context(), owner); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
