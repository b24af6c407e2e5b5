package ws

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
)

func signToken(t *testing.T, subject, secret string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return token
}

func TestVerifyTokenAcceptsMatchingSubject(t *testing.T) {
	token := signToken(t, "p1", "secret")
	if err := verifyToken(token, "p1", "secret"); err != nil {
		t.Errorf("Valid token rejected: %v", err)
	}
}

func TestVerifyTokenRejectsWrongSubject(t *testing.T) {
	token := signToken(t, "p2", "secret")
	if err := verifyToken(token, "p1", "secret"); err != errTokenMismatch {
		t.Errorf("Wrong-subject token = %v, want errTokenMismatch", err)
	}
}

func TestVerifyTokenRejectsWrongSecret(t *testing.T) {
	token := signToken(t, "p1", "other-secret")
	if err := verifyToken(token, "p1", "secret"); err != errTokenInvalid {
		t.Errorf("Wrong-secret token = %v, want errTokenInvalid", err)
	}
}

func TestVerifyTokenRejectsExpired(t *testing.T) {
	claims := jwt.RegisteredClaims{
		Subject:   "p1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	if err := verifyToken(token, "p1", "secret"); err != errTokenInvalid {
		t.Errorf("Expired token = %v, want errTokenInvalid", err)
	}
}

func TestVerifyAdminCode(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("letmein"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword: %v", err)
	}

	if err := verifyAdminCode("letmein", string(hash)); err != nil {
		t.Errorf("Correct code rejected: %v", err)
	}
	if err := verifyAdminCode("wrong", string(hash)); err != errAdminCodeWrong {
		t.Errorf("Wrong code = %v, want errAdminCodeWrong", err)
	}
	// No configured hash disables the admin path entirely.
	if err := verifyAdminCode("letmein", ""); err != errAdminCodeWrong {
		t.Errorf("Empty hash = %v, want errAdminCodeWrong", err)
	}
}
