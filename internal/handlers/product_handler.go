package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Keoroanthony/go-storefront/internal/catalog"
)

// GET /api/products?q=&category_id=&sort=&order=&page=&per_page=
func (h *Handler) ListProducts(c *gin.Context) {
	categoryID, ok := optionalUintQuery(c, "category_id")
	if !ok {
		return
	}
	page, perPage := paging(c)

	products, total, err := h.Catalog.List(c.Request.Context(), catalog.ListParams{
		Page:       page,
		PerPage:    perPage,
		Query:      c.Query("q"),
		Sort:       c.Query("sort"),
		Order:      c.Query("order"),
		CategoryID: categoryID,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products, "total": total, "page": page, "per_page": perPage})
}

// GET /api/products/:id
func (h *Handler) GetProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	product, err := h.Catalog.GetByID(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := gin.H{"product": product}
	if h.Reviews != nil {
		stats, err := h.Reviews.ProductStats(c.Request.Context(), id)
		if err != nil {
			h.respondError(c, err)
			return
		}
		resp["reviews"] = stats
	}
	c.JSON(http.StatusOK, resp)
}

// GET /api/products/slug/:slug
func (h *Handler) GetProductBySlug(c *gin.Context) {
	product, err := h.Catalog.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := gin.H{"product": product}
	if h.Reviews != nil {
		stats, err := h.Reviews.ProductStats(c.Request.Context(), product.ID)
		if err != nil {
			h.respondError(c, err)
			return
		}
		resp["reviews"] = stats
	}
	c.JSON(http.StatusOK, resp)
}

// POST /api/admin/products
func (h *Handler) CreateProduct(c *gin.Context) {
	var req catalog.ProductInput

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	product, err := h.Catalog.Create(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

// PUT /api/admin/products/:id
func (h *Handler) UpdateProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req catalog.ProductPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	product, err := h.Catalog.Update(c.Request.Context(), id, req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// DELETE /api/admin/products/:id
func (h *Handler) DeleteProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.Catalog.Delete(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /api/products/average?category_id=
func (h *Handler) GetAveragePrice(c *gin.Context) {
	categoryIDParam := c.Query("category_id")
	if categoryIDParam == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "category_id is required"})
		return
	}

	var categoryID uint
	if _, err := fmt.Sscan(categoryIDParam, &categoryID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid category_id"})
		return
	}

	avg, err := h.Catalog.AveragePrice(c.Request.Context(), categoryID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"category_id": categoryID, "average_price": avg})
}

// GET /api/admin/products/low-stock?threshold=
func (h *Handler) LowStock(c *gin.Context) {
	threshold := -1
	if raw := c.Query("threshold"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid threshold"})
			return
		}
		threshold = v
	}
	if threshold < 0 {
		threshold = h.LowStockThreshold
	}

	products, err := h.Catalog.LowStock(c.Request.Context(), threshold)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"threshold": threshold, "products": products})
}

// POST /api/admin/products/low-stock/check runs the low stock sweep now.
func (h *Handler) CheckLowStock(c *gin.Context) {
	if h.Sweeper == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "low stock sweep is not configured"})
		return
	}
	// detach from the request so a client disconnect does not cut the sweep short
	res, err := h.Sweeper.Run(context.WithoutCancel(c.Request.Context()))
	if err != nil {
		h.Log.Error("low stock sweep failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "low stock check failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"checked": res.Checked, "alerted": res.Alerted})
}
