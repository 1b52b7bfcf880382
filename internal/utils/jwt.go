package utils

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims carried by owner and admin tokens. BusinessID is set for business
// owners; AdminCity is set for city-scoped admins.
type Claims struct {
	UserID     uuid.UUID  `json:"user_id"`
	Role       string     `json:"role"`
	BusinessID *uuid.UUID `json:"business_id,omitempty"`
	AdminCity  string     `json:"admin_city,omitempty"`
	jwt.RegisteredClaims
}

// Roles recognized by the auth middleware
const (
	RoleBusinessOwner = "business_owner"
	RoleCityAdmin     = "city_admin"
)

// GenerateToken signs a token for a business owner or admin
func GenerateToken(secret string, userID uuid.UUID, role string, businessID *uuid.UUID, adminCity string, expiry time.Duration) (string, error) {
	claims := Claims{
		UserID:     userID,
		Role:       role,
		BusinessID: businessID,
		AdminCity:  adminCity,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "cityperks-backend",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateToken parses and verifies a signed token
func ValidateToken(secret, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
