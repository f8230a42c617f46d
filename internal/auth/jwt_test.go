package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar1510/docconnect/internal/models"
)

func TestInitJWTKey(t *testing.T) {
	testKey := []byte("test-secret-key-for-jwt-tests")

	InitJWTKey(testKey)

	user := &models.User{
		ID:       uuid.New(),
		Username: "testuser",
		Email:    "test@example.com",
	}

	token, _, err := GenerateToken(user)
	assert.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestGenerateToken(t *testing.T) {
	testKey := []byte("test-secret-key-for-jwt-tests")
	InitJWTKey(testKey)

	tests := []struct {
		name    string
		user    *models.User
		wantErr bool
	}{
		{
			name: "valid user",
			user: &models.User{
				ID:       uuid.New(),
				Username: "testuser",
				Email:    "test@example.com",
				Role:     models.RoleSenior,
			},
			wantErr: false,
		},
		{
			name: "missing user ID",
			user: &models.User{
				Username: "testuser",
				Email:    "test@example.com",
			},
			wantErr: true,
		},
		{
			name:    "nil user",
			user:    nil,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, expiry, err := GenerateToken(tt.user)

			if tt.wantErr {
				assert.Error(t, err)
				assert.Empty(t, token)
			} else {
				assert.NoError(t, err)
				assert.NotEmpty(t, token)

				assert.True(t, expiry.After(time.Now()))

				claims, err := ValidateToken(token)
				assert.NoError(t, err)
				assert.NotNil(t, claims)
				assert.Equal(t, tt.user.ID.String(), claims.UserID)
				assert.Equal(t, tt.user.Username, claims.Username)
				assert.Equal(t, tt.user.Role, claims.Role)
			}
		})
	}
}

func TestValidateToken(t *testing.T) {
	testKey := []byte("test-secret-key-for-jwt-tests")
	InitJWTKey(testKey)

	validUser := &models.User{
		ID:       uuid.New(),
		Username: "testuser",
		Email:    "test@example.com",
	}
	validToken, _, err := GenerateToken(validUser)
	assert.NoError(t, err)

	tests := []struct {
		name        string
		tokenString string
		wantErr     bool
	}{
		{
			name:        "valid token",
			tokenString: validToken,
			wantErr:     false,
		},
		{
			name:        "empty token",
			tokenString: "",
			wantErr:     true,
		},
		{
			name:        "invalid token format",
			tokenString: "not.a.valid.jwt.token",
			wantErr:     true,
		},
		{
			name:        "tampered token",
			tokenString: validToken + "tampered",
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := ValidateToken(tt.tokenString)

			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, claims)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, claims)
				assert.Equal(t, validUser.ID.String(), claims.UserID)
				assert.Equal(t, validUser.Username, claims.Username)
			}
		})
	}
}

func TestGetUserIDFromToken(t *testing.T) {
	testKey := []byte("test-secret-key-for-jwt-tests")
	InitJWTKey(testKey)

	validUser := &models.User{
		ID:       uuid.New(),
		Username: "testuser",
		Email:    "test@example.com",
	}
	validToken, _, err := GenerateToken(validUser)
	assert.NoError(t, err)

	validClaims, err := ValidateToken(validToken)
	assert.NoError(t, err)

	invalidClaims := &JWTClaims{
		UserID:   "not-a-valid-uuid",
		Username: "testuser",
	}

	tests := []struct {
		name    string
		claims  *JWTClaims
		wantErr bool
	}{
		{
			name:    "valid claims",
			claims:  validClaims,
			wantErr: false,
		},
		{
			name:    "invalid UUID format",
			claims:  invalidClaims,
			wantErr: true,
		},
		{
			name:    "nil claims",
			claims:  nil,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			userID, err := GetUserIDFromToken(tt.claims)

			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, uuid.Nil, userID)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, validUser.ID, userID)
			}
		})
	}
}

func TestTokenTTL(t *testing.T) {
	Init([]byte("ttl-secret"), time.Hour)
	t.Cleanup(func() { InitJWTKey([]byte("test-secret-key-for-jwt-tests")) })

	_, expiry, err := GenerateToken(&models.User{ID: uuid.New(), Username: "doc"})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiry, 5*time.Second)
}

func TestValidateTokenRejectsExpiredAndForeignTokens(t *testing.T) {
	InitJWTKey([]byte("test-secret-key-for-jwt-tests"))
	userID := uuid.New()

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, &JWTClaims{
		UserID: userID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	expiredString, err := expired.SignedString([]byte("test-secret-key-for-jwt-tests"))
	require.NoError(t, err)

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, &JWTClaims{UserID: userID.String()})
	foreignString, err := foreign.SignedString([]byte("some-other-key"))
	require.NoError(t, err)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, &JWTClaims{UserID: userID.String()})
	unsignedString, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"expired":  expiredString,
		"foreign":  foreignString,
		"unsigned": unsignedString,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ValidateToken(tok)
			assert.True(t, errors.Is(err, ErrInvalidToken))
		})
	}
}

func TestAuthenticate(t *testing.T) {
	InitJWTKey([]byte("test-secret-key-for-jwt-tests"))
	user := &models.User{ID: uuid.New(), Username: "junior", Role: models.RoleJunior}

	token, _, err := GenerateToken(user)
	require.NoError(t, err)

	id, claims, err := Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, id)
	assert.Equal(t, "junior", claims.Username)

	_, _, err = Authenticate("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
