package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ammar1510/docconnect/internal/chat"
	"github.com/ammar1510/docconnect/internal/messaging"
	"github.com/ammar1510/docconnect/internal/models"
)

// ConversationHandler serves the conversation routes
type ConversationHandler struct {
	convs *messaging.Conversations
	chat  *chat.Service
}

func NewConversationHandler(convs *messaging.Conversations, chatSvc *chat.Service) *ConversationHandler {
	return &ConversationHandler{convs: convs, chat: chatSvc}
}

// List returns the caller's active conversations
func (h *ConversationHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	views, page, err := h.convs.ListForUser(c.Request.Context(), userID, pageFromQuery(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondPage(c, views, page)
}

// Create finds or starts the conversation with another user
func (h *ConversationHandler) Create(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var input models.CreateConversationRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, err)
		return
	}

	conv, created, err := h.convs.FindOrCreate(c.Request.Context(), userID, input.ParticipantID, input.RelatedTo)
	if err != nil {
		respondError(c, err)
		return
	}
	view, err := h.convs.View(c.Request.Context(), conv, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respond(c, status, view)
}

// Get returns one conversation of the caller
func (h *ConversationHandler) Get(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	convID, ok := pathID(c, "id")
	if !ok {
		return
	}

	conv, err := h.convs.GetOne(c.Request.Context(), convID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	view, err := h.convs.View(c.Request.Context(), conv, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, view)
}

// ToggleArchive flips the caller's archive flag
func (h *ConversationHandler) ToggleArchive(c *gin.Context) {
	h.toggle(c, "archived", h.convs.ToggleArchive)
}

// ToggleMute flips the caller's mute flag
func (h *ConversationHandler) ToggleMute(c *gin.Context) {
	h.toggle(c, "muted", h.convs.ToggleMute)
}

func (h *ConversationHandler) toggle(c *gin.Context, field string, fn func(context.Context, uuid.UUID, uuid.UUID) (bool, error)) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	convID, ok := pathID(c, "id")
	if !ok {
		return
	}

	value, err := fn(c.Request.Context(), convID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"conversation_id": convID, field: value})
}

// MarkRead reads every pending message of the caller in the conversation
func (h *ConversationHandler) MarkRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	convID, ok := pathID(c, "id")
	if !ok {
		return
	}

	read, err := h.chat.MarkConversationRead(c.Request.Context(), convID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"conversation_id": convID, "marked_read": len(read)})
}
