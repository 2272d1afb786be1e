package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Keoroanthony/go-storefront/internal/models"
	"github.com/Keoroanthony/go-storefront/internal/reports"
	"github.com/Keoroanthony/go-storefront/internal/sales"
)

// reportScope reads from, to and status from the query string.
func (h *Handler) reportScope(c *gin.Context) (reports.Range, []models.OrderStatus, bool) {
	r, err := reports.ParseRange(c.Query("from"), c.Query("to"))
	if err != nil {
		h.respondError(c, err)
		return r, nil, false
	}
	statuses, err := reports.ParseStatuses(c.Query("status"))
	if err != nil {
		h.respondError(c, err)
		return r, nil, false
	}
	return r, statuses, true
}

// GET /api/admin/reports/profit-loss
func (h *Handler) ProfitLoss(c *gin.Context) {
	r, statuses, ok := h.reportScope(c)
	if !ok {
		return
	}
	summary, err := h.Reports.ProfitLoss(c.Request.Context(), r, statuses)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// GET /api/admin/reports/financial
func (h *Handler) FinancialSummary(c *gin.Context) {
	r, statuses, ok := h.reportScope(c)
	if !ok {
		return
	}
	metrics, err := h.Reports.FinancialSummary(c.Request.Context(), r, statuses)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, metrics)
}

// GET /api/admin/reports/daily
func (h *Handler) DailyFinancials(c *gin.Context) {
	r, statuses, ok := h.reportScope(c)
	if !ok {
		return
	}
	days, err := h.Reports.Daily(c.Request.Context(), r, statuses)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": days})
}

// GET /api/admin/reports/top-products?limit=
func (h *Handler) TopProducts(c *gin.Context) {
	r, statuses, ok := h.reportScope(c)
	if !ok {
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	top, err := h.Reports.TopProducts(c.Request.Context(), r, statuses, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": top})
}

func (h *Handler) salesFilter(c *gin.Context) (sales.Filter, bool) {
	r, err := reports.ParseRange(c.Query("from"), c.Query("to"))
	if err != nil {
		h.respondError(c, err)
		return sales.Filter{}, false
	}
	productID, ok := optionalUintQuery(c, "product_id")
	if !ok {
		return sales.Filter{}, false
	}
	return sales.Filter{From: r.From, To: r.To, ProductID: productID}, true
}

// GET /api/admin/reports/sales
func (h *Handler) ListSales(c *gin.Context) {
	f, ok := h.salesFilter(c)
	if !ok {
		return
	}
	f.Page, f.PerPage = paging(c)

	rows, total, err := h.Sales.List(c.Request.Context(), f)
	if err != nil {
		h.respondError(c, err)
		return
	}
	totals, err := h.Sales.Totals(c.Request.Context(), f)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sales":    rows,
		"total":    total,
		"totals":   totals,
		"page":     f.Page,
		"per_page": f.PerPage,
	})
}

// GET /api/admin/reports/sales.csv
func (h *Handler) ExportSales(c *gin.Context) {
	f, ok := h.salesFilter(c)
	if !ok {
		return
	}
	filename := fmt.Sprintf("sales-%s.csv", time.Now().UTC().Format("20060102"))
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Status(http.StatusOK)

	if err := h.Sales.ExportCSV(c.Request.Context(), c.Writer, f); err != nil {
		// headers are already out, all we can do is log
		h.Log.Error("sales export failed", zap.Error(err))
	}
}
