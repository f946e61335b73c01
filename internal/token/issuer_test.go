package token

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestIssuer() *Issuer {
	return NewIssuer("test-secret", 15*time.Minute, 24*time.Hour, time.Hour)
}

func TestIssuer_IssuePair_RoundTrip(t *testing.T) {
	issuer := newTestIssuer()

	pair, err := issuer.IssuePair("user-1")
	if err != nil {
		t.Fatalf("IssuePair returned error: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected both tokens, got %+v", pair)
	}
	if pair.AccessToken == pair.RefreshToken {
		t.Error("access and refresh tokens must differ")
	}

	userID, err := issuer.ParseAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccess returned error: %v", err)
	}
	if userID != "user-1" {
		t.Errorf("userID = %q, want %q", userID, "user-1")
	}
}

func TestIssuer_ParseAccess_RejectsRefreshToken(t *testing.T) {
	issuer := newTestIssuer()
	pair, _ := issuer.IssuePair("user-1")

	_, err := issuer.ParseAccess(pair.RefreshToken)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestIssuer_ParseAccess_Expired(t *testing.T) {
	issuer := newTestIssuer()
	issuer.now = func() time.Time { return time.Now().Add(-time.Hour) }
	pair, _ := issuer.IssuePair("user-1")

	issuer.now = time.Now
	_, err := issuer.ParseAccess(pair.AccessToken)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestIssuer_ParseAccess_WrongSecret(t *testing.T) {
	pair, _ := newTestIssuer().IssuePair("user-1")
	other := NewIssuer("other-secret", time.Minute, time.Minute, time.Minute)

	if _, err := other.ParseAccess(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestIssuer_ParseAccess_RejectsNoneAlgorithm(t *testing.T) {
	claims := Claims{
		Purpose: PurposeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to build unsigned token: %v", err)
	}

	if _, err := newTestIssuer().ParseAccess(raw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestIssuer_ParseAccess_Garbage(t *testing.T) {
	for _, raw := range []string{"", "abc", strings.Repeat("x.", 3)} {
		if _, err := newTestIssuer().ParseAccess(raw); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("ParseAccess(%q): expected ErrInvalidToken, got %v", raw, err)
		}
	}
}

func TestIssuer_Confirmation_RoundTrip(t *testing.T) {
	issuer := newTestIssuer()

	raw, err := issuer.IssueConfirmation("user-1", "taro@example.com")
	if err != nil {
		t.Fatalf("IssueConfirmation returned error: %v", err)
	}

	claims, err := issuer.ParseConfirmation(raw)
	if err != nil {
		t.Fatalf("ParseConfirmation returned error: %v", err)
	}
	if claims.Subject != "user-1" || claims.Email != "taro@example.com" {
		t.Errorf("unexpected claims: %+v", claims)
	}

	if _, err := issuer.ParseAccess(raw); !errors.Is(err, ErrInvalidToken) {
		t.Error("confirmation token must not be accepted as an access token")
	}
}
