package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const SubjectContextKey ContextKey = "subject"

type Claims struct {
	Subject string `json:"sub_name"`
	jwt.RegisteredClaims
}

var authConfig *Config

type Config struct {
	JwtSecret []byte
	Enabled   bool
}

// Initialize sets up the auth configuration
func Initialize(jwtSecret string, enabled bool) {
	authConfig = &Config{
		JwtSecret: []byte(jwtSecret),
		Enabled:   enabled,
	}
}

// IsEnabled returns whether authentication is enabled
func IsEnabled() bool {
	return authConfig != nil && authConfig.Enabled
}

// GenerateToken creates a signed bearer token for the given subject.
func GenerateToken(subject string, ttl time.Duration) (string, error) {
	if authConfig == nil {
		return "", errors.New("auth not initialized")
	}
	claims := Claims{
		Subject: subject,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   subject,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(authConfig.JwtSecret)
}

// ValidateToken validates a bearer token and returns its subject.
func ValidateToken(tokenString string) (string, error) {
	if authConfig == nil {
		return "", errors.New("auth not initialized")
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return authConfig.JwtSecret, nil
	})
	if err != nil {
		return "", err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims.Subject, nil
	}
	return "", errors.New("invalid token")
}

// Middleware rejects requests without a valid bearer token when auth is
// enabled; when disabled it passes everything through.
func Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !IsEnabled() {
			next(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		if _, err := ValidateToken(strings.TrimPrefix(header, "Bearer ")); err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
