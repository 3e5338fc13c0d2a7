// Package auth checks the shared admin password and issues the bearer tokens
// used by the HTTP admin routes
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
)

const adminSubject = "admin"

var ErrInvalidToken = errors.New("invalid token")

// Admin holds the admin credential and the token signing key
type Admin struct {
	password []byte
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
}

// NewAdmin creates an Admin. An empty password disables admin login;
// an empty secret is replaced with a random per-process key.
func NewAdmin(password, secret string, ttl time.Duration) *Admin {
	if secret == "" {
		secret = uuid.NewString()
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Admin{
		password: []byte(password),
		secret:   []byte(secret),
		ttl:      ttl,
		now:      time.Now,
	}
}

// CheckPassword compares in constant time
func (a *Admin) CheckPassword(password string) bool {
	if len(a.password) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(a.password, []byte(password)) == 1
}

// IssueToken returns a signed HS256 admin token
func (a *Admin) IssueToken() (string, time.Time, error) {
	now := a.now()
	exp := now.Add(a.ttl)
	claims := jwt.StandardClaims{
		Subject:   adminSubject,
		IssuedAt:  now.Unix(),
		ExpiresAt: exp.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify checks signature, expiry and subject of an admin token
func (a *Admin) Verify(tokenString string) error {
	claims := &jwt.StandardClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return ErrInvalidToken
	}
	if claims.Subject != adminSubject {
		return ErrInvalidToken
	}
	return nil
}
