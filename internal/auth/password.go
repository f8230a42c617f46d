package auth

import "golang.org/x/crypto/bcrypt"

// ErrPasswordTooLong is returned for passwords over bcrypt's 72 byte input limit
var ErrPasswordTooLong = bcrypt.ErrPasswordTooLong

// HashPassword hashes a plaintext password with bcrypt
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// CheckPasswordHash compares a plaintext password with its hash
func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
