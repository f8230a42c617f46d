package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ammar1510/docconnect/internal/models"
	"github.com/ammar1510/docconnect/internal/notification"
)

type NotificationHandler struct {
	notifications *notification.Service
}

func NewNotificationHandler(svc *notification.Service) *NotificationHandler {
	return &NotificationHandler{notifications: svc}
}

// List returns the caller's notifications, newest first
func (h *NotificationHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	items, page, err := h.notifications.List(c.Request.Context(), userID, pageFromQuery(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondPage(c, items, page)
}

// MarkRead flags notifications of the caller as read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var input models.NotificationIDsRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, err)
		return
	}

	n, err := h.notifications.MarkRead(c.Request.Context(), userID, input.IDs)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"updated": n})
}
