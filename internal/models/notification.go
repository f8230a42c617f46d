package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Notification types raised by the messaging core and external collaborators
const (
	NotificationNewMessage        = "new_message"
	NotificationApplication       = "job_application"
	NotificationApplicationStatus = "application_status"
	NotificationProfileView       = "profile_view"
)

// Notification is a persisted notice for one user
type Notification struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	Type      string          `json:"type"`
	Title     string          `json:"title"`
	Body      string          `json:"body"`
	Data      json.RawMessage `json:"data,omitempty"`
	IsRead    bool            `json:"is_read"`
	CreatedAt time.Time       `json:"created_at"`
}

// NotificationIDsRequest marks a set of notifications read
type NotificationIDsRequest struct {
	IDs []uuid.UUID `json:"ids" binding:"required,min=1,max=500"`
}
