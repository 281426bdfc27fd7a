package utils

import (
	"errors"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	tok, err := NewAccessToken("s3cret", 42, "ADMIN", 5)
	if err != nil {
		t.Fatalf("NewAccessToken: %v", err)
	}
	claims, err := ParseAccessToken("s3cret", tok.Token)
	if err != nil {
		t.Fatalf("ParseAccessToken: %v", err)
	}
	if claims.UserID != 42 || claims.Role != "ADMIN" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestAccessTokenRejected(t *testing.T) {
	good, _ := NewAccessToken("s3cret", 1, "STAFF", 5)
	expired, _ := NewAccessToken("s3cret", 1, "STAFF", -5)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "1", "exp": 9999999999}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)

	cases := map[string]string{
		"wrong secret": good.Token,
		"expired":      expired.Token,
		"alg none":     none,
		"garbage":      "not.a.token",
	}
	for name, raw := range cases {
		secret := "s3cret"
		if name == "wrong secret" {
			secret = "other"
		}
		if _, err := ParseAccessToken(secret, raw); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("%s: err = %v, want ErrTokenInvalid", name, err)
		}
	}
}

func TestRefreshToken(t *testing.T) {
	a, err := NewRefreshToken(7)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := NewRefreshToken(7)
	if len(a.Raw) != 96 || a.Raw == b.Raw {
		t.Fatalf("raw tokens %q / %q", a.Raw, b.Raw)
	}
	h := HashRefreshRaw(a.Raw)
	if len(h) != 64 || h != HashRefreshRaw(a.Raw) || strings.Contains(h, a.Raw) {
		t.Fatalf("hash %q", h)
	}
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("hunter22", bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	if !VerifyPassword(hash, "hunter22") {
		t.Fatal("correct password rejected")
	}
	if VerifyPassword(hash, "hunter23") || VerifyPassword("not-a-hash", "hunter22") || VerifyPassword("", "hunter22") {
		t.Fatal("wrong password accepted")
	}
	if _, err := HashPassword("hunter22", 0); err == nil {
		t.Fatal("cost 0 accepted")
	}
}

func TestRejectPasswordMatchesCost(t *testing.T) {
	for _, cost := range []int{bcrypt.MinCost, bcrypt.MinCost + 1} {
		if RejectPassword("hunter22", cost) {
			t.Fatalf("cost %d: placeholder accepted a password", cost)
		}
		got, err := bcrypt.Cost(placeholderHash(cost))
		if err != nil || got != cost {
			t.Fatalf("placeholder cost = %d (%v), want %d", got, err, cost)
		}
	}
	// built once per cost
	if &placeholderHash(bcrypt.MinCost)[0] != &placeholderHash(bcrypt.MinCost)[0] {
		t.Fatal("placeholder rebuilt")
	}
}
