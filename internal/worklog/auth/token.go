package auth

import (
	"fmt"
	"strconv"
	"time"

	e "github.com/gartstein/worklog/internal/worklog/errors"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the JWT payload issued to users.
type Claims struct {
	CompanyID uint   `json:"company_id"`
	Role      string `json:"role"`
	Name      string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// GenerateToken signs an HS256 token for id that expires after ttl.
func GenerateToken(id Identity, secret string, ttl time.Duration) (string, error) {
	if id.UserID == 0 || id.CompanyID == 0 {
		return "", fmt.Errorf("%w: token needs a user and a company", e.ErrInvalidInput)
	}
	now := time.Now()
	claims := Claims{
		CompanyID: id.CompanyID,
		Role:      string(id.Role),
		Name:      id.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(id.UserID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// validateToken checks the token signature and expiry and returns the identity it carries.
func validateToken(tokenString, secret string) (*Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	userID, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || userID == 0 {
		return nil, fmt.Errorf("invalid token subject %q", claims.Subject)
	}
	if claims.CompanyID == 0 {
		return nil, fmt.Errorf("token has no company")
	}
	return &Identity{
		UserID:    uint(userID),
		CompanyID: claims.CompanyID,
		Role:      ParseRole(claims.Role),
		Name:      claims.Name,
	}, nil
}
