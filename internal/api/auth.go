package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ammar1510/docconnect/internal/apperr"
	"github.com/ammar1510/docconnect/internal/auth"
	"github.com/ammar1510/docconnect/internal/database"
	"github.com/ammar1510/docconnect/internal/models"
)

// AuthHandler handles authentication routes
type AuthHandler struct {
	DB database.UserStore
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(db database.UserStore) *AuthHandler {
	return &AuthHandler{DB: db}
}

// Register handles user registration
func (h *AuthHandler) Register(c *gin.Context) {
	var input models.UserRegistration

	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, err)
		return
	}

	// Hash password
	hashedPassword, err := auth.HashPassword(input.Password)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		respondMessage(c, http.StatusBadRequest, "password must be at most 72 bytes")
		return
	}
	if err != nil {
		respondError(c, apperr.Internal(err))
		return
	}

	// Create user
	user, err := h.DB.CreateUser(c.Request.Context(), &models.User{
		Username:     input.Username,
		Email:        strings.ToLower(input.Email),
		PasswordHash: hashedPassword,
		DisplayName:  input.DisplayName,
		Role:         input.Role,
		IsActive:     true,
		Status:       models.PresenceOffline,
	})
	if err == database.ErrUserAlreadyExists {
		respondMessage(c, http.StatusConflict, "user already exists")
		return
	}
	if err != nil {
		respondError(c, apperr.Internal(err))
		return
	}

	// Return user data (without password)
	respond(c, http.StatusCreated, user.Response())
}

// Login handles user login
func (h *AuthHandler) Login(c *gin.Context) {
	var input models.UserLogin

	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, err)
		return
	}

	// Get user by email
	user, err := h.DB.GetUserByEmail(c.Request.Context(), input.Email)
	if err == database.ErrUserNotFound {
		respondError(c, apperr.ErrInvalidCredentials)
		return
	}
	if err != nil {
		respondError(c, apperr.Internal(err))
		return
	}

	// Check password
	if !auth.CheckPasswordHash(input.Password, user.PasswordHash) {
		respondError(c, apperr.ErrInvalidCredentials)
		return
	}
	if !user.IsActive {
		respondError(c, apperr.ErrAccountInactive)
		return
	}

	// Generate JWT token
	token, expiry, err := auth.GenerateToken(user)
	if err != nil {
		respondError(c, apperr.Internal(err))
		return
	}

	respond(c, http.StatusOK, gin.H{
		"token":  token,
		"expiry": expiry,
		"user":   user.Response(),
	})
}

// GetMe gets the current user profile
func (h *AuthHandler) GetMe(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	user, err := h.DB.GetUserByID(c.Request.Context(), userID)
	if err == database.ErrUserNotFound {
		respondError(c, apperr.ErrUserNotFound)
		return
	}
	if err != nil {
		respondError(c, apperr.Internal(err))
		return
	}

	respond(c, http.StatusOK, user.Response())
}

// GetAllUsers lists the other active users
func (h *AuthHandler) GetAllUsers(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	users, err := h.DB.GetAllUsers(c.Request.Context(), userID)
	if err != nil {
		respondError(c, apperr.Internal(err))
		return
	}

	out := make([]*models.UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, u.Response())
	}
	respond(c, http.StatusOK, out)
}
