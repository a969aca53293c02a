package password

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHasherVerify(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	digest, err := h.Hash("s3cret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if digest == "s3cret" {
		t.Fatalf("expected digest, got plaintext")
	}
	if !h.Verify("s3cret", digest) {
		t.Fatalf("expected matching secret to verify")
	}
	if h.Verify("wrong", digest) {
		t.Fatalf("expected wrong secret to fail")
	}
	if h.Verify("s3cret", "not-a-digest") {
		t.Fatalf("expected malformed digest to fail")
	}
}

func TestHasherRejectsEmptySecret(t *testing.T) {
	if _, err := NewHasher(0).Hash(""); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}
