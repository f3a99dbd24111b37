package password

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHashAndVerify(t *testing.T) {
	hasher, err := NewBcrypt(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewBcrypt error: %v", err)
	}

	hash, err := hasher.Hash("pw1")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if hash == "pw1" || !strings.HasPrefix(hash, "$2a$") {
		t.Fatalf("unexpected bcrypt hash: %s", hash)
	}

	ok, err := hasher.Verify("pw1", hash)
	if err != nil || !ok {
		t.Fatalf("expected verification to succeed, ok=%v err=%v", ok, err)
	}

	ok, err = hasher.Verify("pw2", hash)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if ok {
		t.Fatal("expected wrong password verification to fail")
	}
}

func TestBcryptVerifiesLegacy2bPrefix(t *testing.T) {
	hasher, err := NewBcrypt(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewBcrypt error: %v", err)
	}
	hash, err := hasher.Hash("from-passlib")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	legacy := "$2b$" + strings.TrimPrefix(hash, "$2a$")
	ok, err := hasher.Verify("from-passlib", legacy)
	if err != nil || !ok {
		t.Fatalf("expected $2b$ hash to verify, ok=%v err=%v", ok, err)
	}
}

func TestBcryptRejectsOversizedAndEmpty(t *testing.T) {
	hasher, err := NewBcrypt(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewBcrypt error: %v", err)
	}

	if _, err := hasher.Hash(strings.Repeat("a", 73)); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}
	if _, err := hasher.Hash(strings.Repeat("a", 72)); err != nil {
		t.Fatalf("expected 72-byte password to hash, got %v", err)
	}
	if _, err := hasher.Hash(""); !errors.Is(err, ErrPasswordEmpty) {
		t.Fatalf("expected ErrPasswordEmpty, got %v", err)
	}
}

func TestBcryptCostBoundsAndUpgrade(t *testing.T) {
	if _, err := NewBcrypt(bcrypt.MaxCost + 1); err == nil {
		t.Fatal("expected cost above maximum to be rejected")
	}

	low, err := NewBcrypt(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewBcrypt error: %v", err)
	}
	hash, err := low.Hash("cost-check")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	higher, err := NewBcrypt(bcrypt.MinCost + 1)
	if err != nil {
		t.Fatalf("NewBcrypt error: %v", err)
	}
	needs, err := higher.NeedsUpgrade(hash)
	if err != nil || !needs {
		t.Fatalf("expected upgrade for lower cost hash, needs=%v err=%v", needs, err)
	}
	needs, err = low.NeedsUpgrade(hash)
	if err != nil || needs {
		t.Fatalf("expected no upgrade at equal cost, needs=%v err=%v", needs, err)
	}
}

func TestBcryptVerifyRejectsForeignFormat(t *testing.T) {
	hasher, err := NewBcrypt(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewBcrypt error: %v", err)
	}
	if _, err := hasher.Verify("x", "$argon2id$v=19$m=8192,t=1,p=1$a$b"); !errors.Is(err, ErrUnsupportedHash) {
		t.Fatalf("expected ErrUnsupportedHash, got %v", err)
	}
}
