package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Keoroanthony/go-storefront/internal/auth"
)

type UpdateUserRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// GET /api/me
func (h *Handler) Me(c *gin.Context) {
	cust := auth.CurrentCustomer(c)
	unread, err := h.Notifications.UnreadCount(c.Request.Context(), cust.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"customer": cust, "unread_notifications": unread})
}

// GET /api/admin/users?role=&page=&per_page=
func (h *Handler) AdminListUsers(c *gin.Context) {
	page, perPage := paging(c)
	users, total, err := h.Auth.ListCustomers(c.Request.Context(), c.Query("role"), page, perPage)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "total": total, "page": page, "per_page": perPage})
}

// GET /api/admin/users/:id
func (h *Handler) AdminGetUser(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	user, err := h.Auth.GetCustomer(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// PUT /api/admin/users/:id/role
func (h *Handler) UpdateUserRole(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req UpdateUserRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.Auth.SetRole(c.Request.Context(), auth.CurrentCustomer(c).ID, id, req.Role)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
