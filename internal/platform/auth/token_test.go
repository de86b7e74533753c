package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret-key-for-unit-tests-only")

func TestTokenIssuer_IssueAndParse(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, 60*time.Minute)

	tokenStr, err := issuer.Issue("doc-123", "ada@example.com", []string{"doctor"})
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	if tokenStr == "" {
		t.Fatal("expected non-empty token")
	}

	claims, err := issuer.Parse(tokenStr)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if claims.Subject != "doc-123" {
		t.Errorf("expected subject doc-123, got %s", claims.Subject)
	}
	if claims.Email != "ada@example.com" {
		t.Errorf("expected email ada@example.com, got %s", claims.Email)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != "doctor" {
		t.Errorf("expected roles=[doctor], got %v", claims.Roles)
	}
}

func TestTokenIssuer_ExpiryBoundary(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := t0
	issuer := NewTokenIssuer(testSecret, 60*time.Minute).WithClock(func() time.Time {
		return clock
	})

	tokenStr, err := issuer.Issue("doc-1", "a@example.com", []string{"doctor"})
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}

	// 59 minutes after issuance the token is still valid.
	clock = t0.Add(59 * time.Minute)
	if _, err := issuer.Parse(tokenStr); err != nil {
		t.Errorf("expected token valid at +59m, got %v", err)
	}

	// 61 minutes after issuance it is expired.
	clock = t0.Add(61 * time.Minute)
	_, err = issuer.Parse(tokenStr)
	if err == nil {
		t.Fatal("expected token expired at +61m")
	}
	if !errors.Is(err, jwt.ErrTokenExpired) {
		t.Errorf("expected jwt.ErrTokenExpired, got %v", err)
	}
}

func TestTokenIssuer_WrongSecret(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, time.Hour)
	other := NewTokenIssuer([]byte("a-completely-different-secret"), time.Hour)

	tokenStr, err := issuer.Issue("doc-1", "a@example.com", nil)
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}

	if _, err := other.Parse(tokenStr); err == nil {
		t.Error("expected parse failure with a different secret")
	}
}

func TestTokenIssuer_RejectsUnexpectedAlgorithm(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, time.Hour)

	// Sign with HS384; the issuer only accepts HS256.
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "doc-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS384, claims)
	tokenStr, err := token.SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := issuer.Parse(tokenStr); err == nil {
		t.Error("expected rejection of HS384-signed token")
	}
}

func TestTokenIssuer_GarbageToken(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, time.Hour)

	for _, tok := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := issuer.Parse(tok); err == nil {
			t.Errorf("expected parse failure for %q", tok)
		}
	}
}

func TestTokenIssuer_TTL(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, 45*time.Minute)
	if issuer.TTL() != 45*time.Minute {
		t.Errorf("expected TTL 45m, got %v", issuer.TTL())
	}
}
