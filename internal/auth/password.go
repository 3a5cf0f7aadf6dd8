package auth

import "golang.org/x/crypto/bcrypt"

// ErrPasswordTooLong is returned for passwords longer than bcrypt's 72 byte limit.
var ErrPasswordTooLong = bcrypt.ErrPasswordTooLong

// HashPassword returns a bcrypt hash with the salt embedded in it.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// maxPasswordBytes is the longest input bcrypt reads; anything past it is ignored.
const maxPasswordBytes = 72

// CheckPasswordHash reports whether password matches hash. A malformed hash
// is treated as a mismatch, and so is a password HashPassword would refuse.
func CheckPasswordHash(password, hash string) bool {
	if len(password) > maxPasswordBytes {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
