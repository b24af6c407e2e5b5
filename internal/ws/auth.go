package ws

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
)

var (
	errTokenInvalid   = errors.New("token invalid")
	errTokenMismatch  = errors.New("token subject does not match playerId")
	errAdminCodeWrong = errors.New("admin code rejected")
)

// verifyToken checks an HS256 JWT and requires its subject to equal the
// claimed player id.
func verifyToken(tokenString, playerID, secret string) error {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return errTokenInvalid
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject != playerID {
		return errTokenMismatch
	}
	return nil
}

// verifyAdminCode compares a plaintext admin code against the configured
// bcrypt hash. An empty hash disables admin-forced game ends.
func verifyAdminCode(code, hash string) error {
	if hash == "" || code == "" {
		return errAdminCodeWrong
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)); err != nil {
		return errAdminCodeWrong
	}
	return nil
}
