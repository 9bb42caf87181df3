package util

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestJWTManagerGenerateAndParse(t *testing.T) {
	manager := NewJWTManager("top-secret", "authenticated", time.Minute)

	token, expiresAt, err := manager.Generate("7d1c3a52-1b0e-4f4e-9a43-6f2b8c0f9d11", "user@example.com")
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if token == "" {
		t.Fatalf("expected token to be non-empty")
	}
	if expiresAt.Before(time.Now()) {
		t.Fatalf("expected expiry in the future")
	}

	claims, err := manager.Parse(token)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if claims.UserID() != "7d1c3a52-1b0e-4f4e-9a43-6f2b8c0f9d11" {
		t.Fatalf("unexpected subject %q", claims.UserID())
	}
	if claims.Email != "user@example.com" || claims.Role != "authenticated" {
		t.Fatalf("unexpected claims: %#v", claims)
	}
}

func TestJWTManagerParseExpiredToken(t *testing.T) {
	manager := NewJWTManager("secret", "", time.Millisecond)
	token, _, err := manager.Generate("user-1", "user@example.com")
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, err := manager.Parse(token); err == nil {
		t.Fatalf("expected parse error for expired token")
	}
}

func TestJWTManagerRejectsWrongAudience(t *testing.T) {
	issuer := NewJWTManager("secret", "anon", time.Minute)
	token, _, err := issuer.Generate("user-1", "user@example.com")
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}

	verifier := NewJWTManager("secret", "authenticated", time.Minute)
	if _, err := verifier.Parse(token); err == nil {
		t.Fatalf("expected audience mismatch to fail")
	}
}

func TestJWTManagerRejectsOtherSigningMethods(t *testing.T) {
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}

	manager := NewJWTManager("secret", "", time.Minute)
	if _, err := manager.Parse(unsigned); err == nil {
		t.Fatalf("expected unsigned token to be rejected")
	}
}

func TestJWTManagerRequiresSubject(t *testing.T) {
	manager := NewJWTManager("secret", "", time.Minute)
	token, _, err := manager.Generate("", "user@example.com")
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if _, err := manager.Parse(token); err == nil {
		t.Fatalf("expected token without subject to be rejected")
	}
}
