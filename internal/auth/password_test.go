package auth

import (
	"strings"
	"testing"
)

func TestHashAndVerifyPassword(t *testing.T) {
	digest, err := HashPassword("secretpassword")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !strings.HasPrefix(digest, "$argon2id$v=19$") {
		t.Fatalf("unexpected digest format: %s", digest)
	}

	ok, err := VerifyPassword("secretpassword", digest)
	if err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if !ok {
		t.Fatalf("expected matching password to verify")
	}

	ok, err = VerifyPassword("wrongpassword", digest)
	if err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if ok {
		t.Fatalf("expected mismatching password to fail")
	}
}

func TestHashPasswordSaltsDiffer(t *testing.T) {
	first, err := HashPassword("same-input")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	second, err := HashPassword("same-input")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct salts to yield distinct digests")
	}
}

func TestVerifyPasswordMalformedDigest(t *testing.T) {
	cases := []string{
		"",
		"plainhash",
		"$argon2id$v=19$m=65536,t=2,p=1$onlysalt",
		"$bcrypt$v=19$m=65536,t=2,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=18$m=65536,t=2,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=0,t=0,p=0$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=2,p=1$!!!$aGFzaA",
	}
	for _, digest := range cases {
		ok, err := VerifyPassword("anything", digest)
		if err == nil {
			t.Fatalf("expected error for digest %q", digest)
		}
		if ok {
			t.Fatalf("malformed digest %q must not verify", digest)
		}
	}
}
