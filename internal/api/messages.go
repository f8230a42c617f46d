package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ammar1510/docconnect/internal/chat"
	"github.com/ammar1510/docconnect/internal/messaging"
	"github.com/ammar1510/docconnect/internal/models"
)

// MessageHandler is the REST fallback for clients without a socket
type MessageHandler struct {
	msgs *messaging.Messages
	chat *chat.Service
}

func NewMessageHandler(msgs *messaging.Messages, chatSvc *chat.Service) *MessageHandler {
	return &MessageHandler{msgs: msgs, chat: chatSvc}
}

// List returns one page of visible messages, pages counted back from the newest
func (h *MessageHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	convID, ok := pathID(c, "id")
	if !ok {
		return
	}

	msgs, page, err := h.msgs.List(c.Request.Context(), convID, userID, pageFromQuery(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondPage(c, msgs, page)
}

// Send creates a message and fans it out exactly like the socket path
func (h *MessageHandler) Send(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	convID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var input models.SendMessageRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, err)
		return
	}

	in := messaging.SendInput{
		ConversationID: convID,
		SenderID:       userID,
		Type:           input.MessageType,
		Content:        input.Content,
		ReplyTo:        input.ReplyTo,
	}
	if input.FileURL != "" || input.FileName != "" {
		in.File = &models.FileAttachment{
			URL:      input.FileURL,
			Name:     input.FileName,
			Size:     input.FileSize,
			MimeType: input.MimeType,
		}
	}

	msg, err := h.chat.SendMessage(c.Request.Context(), in, "rest")
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, msg)
}

// MarkDelivered acknowledges receipt of a set of messages
func (h *MessageHandler) MarkDelivered(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var input models.MessageIDsRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, err)
		return
	}

	msgs, err := h.chat.MarkDelivered(c.Request.Context(), input.MessageIDs, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"updated": len(msgs)})
}

// MarkRead marks a set of messages read
func (h *MessageHandler) MarkRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var input models.MessageIDsRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, err)
		return
	}

	msgs, err := h.chat.MarkRead(c.Request.Context(), input.MessageIDs, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"updated": len(msgs)})
}

// Edit replaces the content of a text message
func (h *MessageHandler) Edit(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	msgID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var input models.EditMessageRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, err)
		return
	}

	msg, err := h.chat.Edit(c.Request.Context(), msgID, userID, input.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, msg)
}

// Delete hides a message from the caller only
func (h *MessageHandler) Delete(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	msgID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if _, err := h.chat.Delete(c.Request.Context(), msgID, userID); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"message_id": msgID})
}
