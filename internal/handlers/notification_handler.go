package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Keoroanthony/go-storefront/internal/auth"
)

// GET /api/notifications?unread=true&limit=
func (h *Handler) ListNotifications(c *gin.Context) {
	cust := auth.CurrentCustomer(c)
	unreadOnly, _ := strconv.ParseBool(c.Query("unread"))
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	list, err := h.Notifications.List(c.Request.Context(), cust.ID, unreadOnly, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	unread, err := h.Notifications.UnreadCount(c.Request.Context(), cust.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list, "unread": unread})
}

// POST /api/notifications/:id/read
func (h *Handler) MarkNotificationRead(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.Notifications.MarkRead(c.Request.Context(), id, auth.CurrentCustomer(c).ID); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "marked as read"})
}

// POST /api/notifications/read-all
func (h *Handler) MarkAllNotificationsRead(c *gin.Context) {
	n, err := h.Notifications.MarkAllRead(c.Request.Context(), auth.CurrentCustomer(c).ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}
