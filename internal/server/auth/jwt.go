// Package auth verifies the credentials presented by clients (JWT bearer
// tokens) and extraction workers (a shared token).
package auth

import (
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/dmitrijs2005/ingestkeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the owner the token was issued for in the subject claim.
type Claims struct {
	jwt.RegisteredClaims
}

// GenerateToken issues an HS256 token for ownerID, the counterpart of
// GetOwnerIDFromToken. The server never issues tokens itself; the identity
// provider does, and tests sign their own with this.
func GenerateToken(ownerID string, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   ownerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// GetOwnerIDFromToken validates tokenString and returns its subject. Every
// failure is reported as common.ErrInvalidToken.
func GetOwnerIDFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}

	if !token.Valid || claims.Subject == "" {
		return "", common.ErrInvalidToken
	}

	return claims.Subject, nil
}

// CheckWorkerToken compares a presented worker credential with the
// configured one in constant time.
func CheckWorkerToken(presented, expected string) error {
	if expected == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) != 1 {
		return common.ErrorUnauthorized
	}
	return nil
}
