package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ammar1510/docconnect/internal/models"
	"github.com/ammar1510/docconnect/internal/presence"
)

type PresenceHandler struct {
	tracker *presence.Tracker
}

func NewPresenceHandler(tracker *presence.Tracker) *PresenceHandler {
	return &PresenceHandler{tracker: tracker}
}

// SetStatus changes the caller's status and broadcasts it
func (h *PresenceHandler) SetStatus(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var input models.StatusUpdateRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, err)
		return
	}

	p, err := h.tracker.SetStatus(c.Request.Context(), userID, input.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, p)
}

// Get returns the presence of another user
func (h *PresenceHandler) Get(c *gin.Context) {
	if _, ok := currentUser(c); !ok {
		return
	}
	userID, ok := pathID(c, "userID")
	if !ok {
		return
	}

	p, err := h.tracker.Get(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, p)
}
