package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/ammar1510/docconnect/internal/logger"
	"github.com/ammar1510/docconnect/internal/models"
)

const defaultTokenTTL = 24 * time.Hour

var (
	ErrInvalidToken = errors.New("invalid token")

	mu       sync.RWMutex
	jwtKey   []byte
	tokenTTL = defaultTokenTTL
	log      = logger.New("auth")
)

// Init sets the signing key and token lifetime. A zero ttl keeps the default.
func Init(key []byte, ttl time.Duration) {
	mu.Lock()
	defer mu.Unlock()
	jwtKey = key
	if ttl > 0 {
		tokenTTL = ttl
	} else {
		tokenTTL = defaultTokenTTL
	}
}

// InitJWTKey initializes the JWT key with the provided secret
func InitJWTKey(key []byte) {
	Init(key, 0)
}

func signingKey() ([]byte, time.Duration) {
	mu.RLock()
	defer mu.RUnlock()
	return jwtKey, tokenTTL
}

// JWTClaims represents the claims in the JWT
type JWTClaims struct {
	UserID   string      `json:"user_id"`
	Username string      `json:"username"`
	Role     models.Role `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// GenerateToken creates a new JWT token for a user
func GenerateToken(user *models.User) (string, time.Time, error) {
	if user == nil {
		return "", time.Time{}, errors.New("user cannot be nil")
	}
	if user.ID == uuid.Nil {
		return "", time.Time{}, errors.New("user ID cannot be empty")
	}

	key, ttl := signingKey()
	if len(key) == 0 {
		return "", time.Time{}, errors.New("jwt key not initialized")
	}

	now := time.Now()
	expirationTime := now.Add(ttl)

	claims := &JWTClaims{
		UserID:   user.ID.String(),
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(key)
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, expirationTime, nil
}

// ValidateToken validates a JWT token and returns the claims
func ValidateToken(tokenString string) (*JWTClaims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	key, _ := signingKey()
	claims := &JWTClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		log.Debug("Token validation error: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// GetUserIDFromToken extracts the UserID from claims
func GetUserIDFromToken(claims *JWTClaims) (uuid.UUID, error) {
	if claims == nil {
		return uuid.Nil, errors.New("claims cannot be nil")
	}
	return uuid.Parse(claims.UserID)
}

// Authenticate validates a token and returns the user id it was issued for
func Authenticate(tokenString string) (uuid.UUID, *JWTClaims, error) {
	claims, err := ValidateToken(tokenString)
	if err != nil {
		return uuid.Nil, nil, err
	}
	id, err := GetUserIDFromToken(claims)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return id, claims, nil
}
