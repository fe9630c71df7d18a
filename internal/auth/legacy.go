package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// LegacyIssuer is stamped on self-issued HMAC tokens. Tokens that name a
// different issuer are rejected; tokens with no issuer predate the claim and
// still pass.
const LegacyIssuer = "adforge-api"

// LegacyClaims represents legacy JWT claims (HMAC-signed tokens)
type LegacyClaims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// ValidateLegacyToken validates a token using HMAC signing
func ValidateLegacyToken(tokenString, secret string) (*LegacyClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &LegacyClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*LegacyClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}

	if claims.Issuer != "" && claims.Issuer != LegacyIssuer {
		return nil, jwt.ErrTokenInvalidIssuer
	}

	return claims, nil
}
