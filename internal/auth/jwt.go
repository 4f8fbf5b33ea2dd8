package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// TokenTTL is how long an admin API token stays valid
	TokenTTL = 12 * time.Hour

	tokenIssuer = "crypto-exchange-bot"
)

var errNoSecret = errors.New("JWT secret not initialized")

var jwtSecret []byte

// InitJWT initializes the JWT secret
func InitJWT(secret string) {
	jwtSecret = []byte(secret)
}

// Claims identify the admin a token was issued to
type Claims struct {
	AdminID int64 `json:"admin_id"`
	jwt.RegisteredClaims
}

// GenerateToken issues a token for an admin, typically via the /token bot command
func GenerateToken(adminID int64) (string, error) {
	if len(jwtSecret) == 0 {
		return "", errNoSecret
	}

	now := time.Now()
	claims := &Claims{
		AdminID: adminID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   strconv.FormatInt(adminID, 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// ValidateToken checks signature, issuer and expiry and returns the claims
func ValidateToken(tokenString string) (*Claims, error) {
	if len(jwtSecret) == 0 {
		return nil, errNoSecret
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (interface{}, error) { return jwtSecret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if claims.Subject != strconv.FormatInt(claims.AdminID, 10) {
		return nil, errors.New("token subject does not match admin")
	}
	return claims, nil
}
