package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func signLegacyToken(t *testing.T, claims LegacyClaims, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestValidateLegacyTokenAcceptsOwnIssuer(t *testing.T) {
	token := signLegacyToken(t, LegacyClaims{
		UserID: "user-1",
		Email:  "user@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    LegacyIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}, testSecret)

	claims, err := ValidateLegacyToken(token, testSecret)
	if err != nil {
		t.Fatalf("ValidateLegacyToken: %v", err)
	}
	if claims.UserID != "user-1" || claims.Email != "user@example.com" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestValidateLegacyTokenAcceptsMissingIssuer(t *testing.T) {
	token := signLegacyToken(t, LegacyClaims{UserID: "user-1"}, testSecret)

	if _, err := ValidateLegacyToken(token, testSecret); err != nil {
		t.Fatalf("token without issuer rejected: %v", err)
	}
}

func TestValidateLegacyTokenRejectsForeignIssuer(t *testing.T) {
	token := signLegacyToken(t, LegacyClaims{
		UserID:           "user-1",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "someone-else"},
	}, testSecret)

	_, err := ValidateLegacyToken(token, testSecret)
	if !errors.Is(err, jwt.ErrTokenInvalidIssuer) {
		t.Fatalf("err = %v, want invalid issuer", err)
	}
}

func TestValidateLegacyTokenRejectsBadSignature(t *testing.T) {
	token := signLegacyToken(t, LegacyClaims{UserID: "user-1"}, "other-secret")

	if _, err := ValidateLegacyToken(token, testSecret); err == nil {
		t.Fatal("token signed with the wrong secret accepted")
	}
}
