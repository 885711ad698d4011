package crypto

import (
	"regexp"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

var hexPattern = regexp.MustCompile(`^[0-9a-f]+$`)

func TestGenerateActivationToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := GenerateActivationToken()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(token) != ActivationTokenLength {
			t.Fatalf("expected %d characters, got %d (%q)", ActivationTokenLength, len(token), token)
		}
		if !hexPattern.MatchString(token) {
			t.Fatalf("expected hex token, got %q", token)
		}
		if seen[token] {
			t.Fatalf("duplicate token %q", token)
		}
		seen[token] = true
	}
}

func TestPasswordHasher(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)

	hash, err := h.Hash("P4ssword")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hash == "P4ssword" {
		t.Fatal("hash must differ from plaintext")
	}
	if !h.Matches(hash, "P4ssword") {
		t.Error("expected password to match its hash")
	}
	if h.Matches(hash, "p4ssword") {
		t.Error("expected different password not to match")
	}
	if h.Matches("not-a-hash", "P4ssword") {
		t.Error("expected malformed hash not to match")
	}
}

func TestNewPasswordHasher_ClampsCost(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{0, bcrypt.DefaultCost},
		{-3, bcrypt.DefaultCost},
		{2, bcrypt.MinCost},
		{12, 12},
		{99, bcrypt.MaxCost},
	}
	for _, tt := range tests {
		if got := NewPasswordHasher(tt.in).cost; got != tt.want {
			t.Errorf("NewPasswordHasher(%d).cost = %d, want %d", tt.in, got, tt.want)
		}
	}
}
