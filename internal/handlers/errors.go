package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Keoroanthony/go-storefront/internal/models"
)

// respondError maps domain errors onto HTTP statuses. Anything unrecognised is
// logged and reported as a 500 without leaking details.
func (h *Handler) respondError(c *gin.Context, err error) {
	var (
		validation  *models.ValidationError
		notFound    *models.ProductNotFoundError
		stock       *models.InsufficientStockError
		transition  *models.InvalidTransitionError
		persistence *models.PersistenceError
	)

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": validation.Error(), "field": validation.Field})
	case errors.Is(err, models.ErrEmptyCart):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound.Error(), "product_id": notFound.ProductID})
	case errors.Is(err, models.ErrProductNotFound),
		errors.Is(err, models.ErrCustomerNotFound),
		errors.Is(err, models.ErrOrderNotFound),
		errors.Is(err, models.ErrCategoryNotFound),
		errors.Is(err, models.ErrReviewNotFound),
		errors.Is(err, models.ErrNotificationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &stock):
		c.JSON(http.StatusConflict, gin.H{
			"error":      stock.Error(),
			"product_id": stock.ProductID,
			"requested":  stock.Requested,
			"available":  stock.Available,
		})
	case errors.As(err, &transition):
		c.JSON(http.StatusConflict, gin.H{"error": transition.Error()})
	case errors.Is(err, models.ErrProductInUse), errors.Is(err, models.ErrAlreadyReviewed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrForbidden), errors.Is(err, models.ErrNotPurchased):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.As(err, &persistence):
		h.Log.Error("persistence failure", zap.String("op", persistence.Op), zap.Error(persistence.Err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to place order, try again"})
	default:
		h.Log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
