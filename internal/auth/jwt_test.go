package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testConfig() *JWTConfig {
	return &JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "agrochat",
		Audience: "agrochat-clients",
		TTL:      time.Hour,
	}
}

func TestGenerateAndValidateToken(t *testing.T) {
	cfg := testConfig()

	token, err := GenerateToken(cfg, "u1", "Alice")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	claims, err := ValidateToken(cfg, token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.UserID() != "u1" {
		t.Errorf("expected subject u1, got %q", claims.UserID())
	}
	if claims.Username != "Alice" {
		t.Errorf("expected username Alice, got %q", claims.Username)
	}
}

func TestValidateTokenRejects(t *testing.T) {
	cfg := testConfig()
	valid, err := GenerateToken(cfg, "u1", "")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	otherSecret := *cfg
	otherSecret.Secret = []byte("other")
	forged, _ := GenerateToken(&otherSecret, "u1", "")

	otherIssuer := *cfg
	otherIssuer.Issuer = "someone-else"
	wrongIssuer, _ := GenerateToken(&otherIssuer, "u1", "")

	otherAudience := *cfg
	otherAudience.Audience = "admins"
	wrongAudience, _ := GenerateToken(&otherAudience, "u1", "")

	expired, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			Issuer:    cfg.Issuer,
			Audience:  jwt.ClaimStrings{cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}).SignedString(cfg.Secret)

	noSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   cfg.Issuer,
			Audience: jwt.ClaimStrings{cfg.Audience},
		},
	}).SignedString(cfg.Secret)

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not-a-token"},
		{name: "wrong secret", token: forged},
		{name: "wrong issuer", token: wrongIssuer},
		{name: "wrong audience", token: wrongAudience},
		{name: "expired", token: expired},
		{name: "no subject", token: noSubject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ValidateToken(cfg, tt.token); err == nil {
				t.Fatalf("expected token to be rejected")
			}
		})
	}

	if _, err := ValidateToken(cfg, valid); err != nil {
		t.Fatalf("expected valid token to pass, got %v", err)
	}
}

func TestGenerateTokenRequiresUserID(t *testing.T) {
	if _, err := GenerateToken(testConfig(), "", "x"); !errors.Is(err, ErrMissingSubject) {
		t.Fatalf("expected ErrMissingSubject, got %v", err)
	}
}
