package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"strings"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newHSManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(Config{AccessTTL: 600 * time.Second, SigningMethod: MethodHS256, PrivateKey: testSecret})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func TestIssueAndParseRoundTrip(t *testing.T) {
	m := newHSManager(t)

	before := time.Now()
	token, expiresAt, err := m.Issue("a@x.com", "uid-1", 3)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	want := before.Add(600 * time.Second)
	if expiresAt.Before(want.Add(-2*time.Second)) || expiresAt.After(want.Add(2*time.Second)) {
		t.Fatalf("expected expiry near %v, got %v", want, expiresAt)
	}

	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "a@x.com" || claims.AgentUID != "uid-1" || claims.CredentialVersion != 3 {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if !claims.ExpiresAt.Time.Equal(expiresAt) {
		t.Fatalf("exp claim %v differs from reported expiry %v", claims.ExpiresAt.Time, expiresAt)
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	m := newHSManager(t)

	claims := Claims{RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "a@x.com",
		IssuedAt:  gjwt.NewNumericDate(time.Now().Add(-20 * time.Minute)),
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(-10 * time.Minute)),
	}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := m.Parse(token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestParseRejectsMissingExpiry(t *testing.T) {
	m := newHSManager(t)

	claims := Claims{RegisteredClaims: gjwt.RegisteredClaims{
		Subject:  "a@x.com",
		IssuedAt: gjwt.NewNumericDate(time.Now()),
	}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := m.Parse(token); err == nil {
		t.Fatal("expected token without exp to be rejected")
	}
}

func TestParseRejectsWrongAlgorithmAndSecret(t *testing.T) {
	m := newHSManager(t)

	claims := Claims{RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "a@x.com",
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}

	hs512, err := gjwt.NewWithClaims(gjwt.SigningMethodHS512, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.Parse(hs512); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}

	otherSecret, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString([]byte("another-secret-another-secret!!"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.Parse(otherSecret); err == nil {
		t.Fatal("expected token signed with a different secret to be rejected")
	}
}

func TestParseRejectsTamperedPayload(t *testing.T) {
	m := newHSManager(t)
	token, _, err := m.Issue("a@x.com", "uid-1", 1)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	parts := strings.Split(token, ".")
	other, _, err := m.Issue("b@x.com", "uid-2", 1)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	parts[1] = strings.Split(other, ".")[1]

	if _, err := m.Parse(strings.Join(parts, ".")); err == nil {
		t.Fatal("expected spliced payload to be rejected")
	}
}

func TestEd25519IssuerAudienceAndKeyID(t *testing.T) {
	pub, priv := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "agentauth",
		Audience:      "field-api",
		KeyID:         "k1",
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token, _, err := m.Issue("a@x.com", "uid-1", 1)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Parse(token); err != nil {
		t.Fatalf("expected valid token to parse: %v", err)
	}

	verifier, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PublicKey:     pub,
		Issuer:        "other-issuer",
		Audience:      "field-api",
		KeyID:         "k1",
	})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	if _, err := verifier.Parse(token); err == nil {
		t.Fatal("expected issuer mismatch to be rejected")
	}
	if _, _, err := verifier.Issue("a@x.com", "uid-1", 1); err == nil {
		t.Fatal("expected public-key-only manager to refuse issuing")
	}

	rotated, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PublicKey:     pub,
		Issuer:        "agentauth",
		Audience:      "field-api",
		KeyID:         "k2",
	})
	if err != nil {
		t.Fatalf("new rotated verifier: %v", err)
	}
	if _, err := rotated.Parse(token); err == nil {
		t.Fatal("expected unknown kid to be rejected")
	}
}

func TestNewManagerValidation(t *testing.T) {
	cases := []Config{
		{AccessTTL: 0, SigningMethod: MethodHS256, PrivateKey: testSecret},
		{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("short")},
		{AccessTTL: time.Minute, SigningMethod: MethodEd25519},
		{AccessTTL: time.Minute, SigningMethod: "rs256", PrivateKey: testSecret},
		{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: testSecret, Leeway: time.Hour},
	}
	for i, cfg := range cases {
		if _, err := NewManager(cfg); err == nil {
			t.Fatalf("case %d: expected configuration error", i)
		}
	}
}

func TestParseSigningMethod(t *testing.T) {
	cases := map[string]SigningMethod{
		"":        MethodHS256,
		"HS256":   MethodHS256,
		"hs384":   MethodHS384,
		"HS512":   MethodHS512,
		"EdDSA":   MethodEd25519,
		"ed25519": MethodEd25519,
	}
	for in, want := range cases {
		got, err := ParseSigningMethod(in)
		if err != nil || got != want {
			t.Fatalf("ParseSigningMethod(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseSigningMethod("RS256"); err == nil {
		t.Fatal("expected RS256 to be unsupported")
	}
}
