package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is the marketplace side a doctor is on
type Role string

const (
	RoleSenior Role = "senior"
	RoleJunior Role = "junior"
)

// PresenceStatus is the user-visible availability
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceAway    PresenceStatus = "away"
	PresenceOffline PresenceStatus = "offline"
)

// Valid reports whether s is a known presence status
func (s PresenceStatus) Valid() bool {
	switch s {
	case PresenceOnline, PresenceAway, PresenceOffline:
		return true
	}
	return false
}

// User represents a user in the chat system
type User struct {
	ID           uuid.UUID      `json:"id"`
	Username     string         `json:"username"`
	Email        string         `json:"email"`
	PasswordHash string         `json:"-"` // Never send to client
	DisplayName  string         `json:"display_name,omitempty"`
	AvatarURL    string         `json:"avatar_url,omitempty"`
	Role         Role           `json:"role"`
	IsActive     bool           `json:"is_active"`
	Status       PresenceStatus `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	LastSeen     time.Time      `json:"last_seen"`
}

// Response strips private fields
func (u *User) Response() *UserResponse {
	return &UserResponse{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		Role:        u.Role,
		Status:      u.Status,
		LastSeen:    u.LastSeen,
		CreatedAt:   u.CreatedAt,
	}
}

// UserRegistration contains data needed for user registration
type UserRegistration struct {
	Username    string `json:"username" binding:"required,min=3,max=30"`
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=5,max=72"`
	DisplayName string `json:"display_name" binding:"max=80"`
	Role        Role   `json:"role" binding:"required,oneof=senior junior"`
}

// UserLogin contains data needed for user login
type UserLogin struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// UserResponse is what we return to the client
type UserResponse struct {
	ID          uuid.UUID      `json:"id"`
	Username    string         `json:"username"`
	Email       string         `json:"email"`
	DisplayName string         `json:"display_name,omitempty"`
	AvatarURL   string         `json:"avatar_url,omitempty"`
	Role        Role           `json:"role"`
	Status      PresenceStatus `json:"status"`
	LastSeen    time.Time      `json:"last_seen"`
	CreatedAt   time.Time      `json:"created_at"`
}

// StatusUpdateRequest changes the caller's presence
type StatusUpdateRequest struct {
	Status PresenceStatus `json:"status" binding:"required,oneof=online away offline"`
}

// Presence is the public presence of one user
type Presence struct {
	UserID   uuid.UUID      `json:"user_id"`
	Status   PresenceStatus `json:"status"`
	LastSeen time.Time      `json:"last_seen"`
}
