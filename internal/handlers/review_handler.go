package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Keoroanthony/go-storefront/internal/auth"
	"github.com/Keoroanthony/go-storefront/internal/reviews"
)

// GET /api/products/:id/reviews?min_rating=
func (h *Handler) ListReviews(c *gin.Context) {
	productID, ok := idParam(c, "id")
	if !ok {
		return
	}
	minRating, _ := strconv.Atoi(c.Query("min_rating"))

	list, err := h.Reviews.ListForProduct(c.Request.Context(), productID, minRating)
	if err != nil {
		h.respondError(c, err)
		return
	}
	stats, err := h.Reviews.ProductStats(c.Request.Context(), productID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := gin.H{"reviews": list, "stats": stats}
	if cust := auth.CurrentCustomer(c); cust != nil {
		canReview, err := h.Reviews.HasPurchased(c.Request.Context(), cust.ID, productID)
		if err != nil {
			h.respondError(c, err)
			return
		}
		resp["can_review"] = canReview
	}
	c.JSON(http.StatusOK, resp)
}

// POST /api/products/:id/reviews
func (h *Handler) CreateReview(c *gin.Context) {
	productID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req reviews.Input
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	review, err := h.Reviews.Create(c.Request.Context(), auth.CurrentCustomer(c).ID, productID, req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, review)
}

// PUT /api/reviews/:id
func (h *Handler) UpdateReview(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req reviews.Input
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	review, err := h.Reviews.Update(c.Request.Context(), id, auth.CurrentCustomer(c).ID, req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, review)
}

// DELETE /api/reviews/:id; admins may remove any review.
func (h *Handler) DeleteReview(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	cust := auth.CurrentCustomer(c)
	if err := h.Reviews.Delete(c.Request.Context(), id, cust.ID, cust.IsAdmin()); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
