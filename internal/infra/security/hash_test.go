package security

import "testing"

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("Sup3r!secret")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	ok, err := VerifyPassword("Sup3r!secret", hash)
	if err != nil {
		t.Fatalf("verify password: %v", err)
	}
	if !ok {
		t.Fatal("expected password to verify against its own hash")
	}

	ok, err = VerifyPassword("Wr0ng!secret", hash)
	if err != nil {
		t.Fatalf("verify mismatched password: %v", err)
	}
	if ok {
		t.Fatal("expected mismatch to report false")
	}
}

func TestVerifyPasswordEmptyInputs(t *testing.T) {
	if ok, err := VerifyPassword("", "hash"); err != nil || ok {
		t.Fatalf("empty password should be (false, nil), got (%v, %v)", ok, err)
	}
	if ok, err := VerifyPassword("candidate", ""); err != nil || ok {
		t.Fatalf("empty hash should be (false, nil), got (%v, %v)", ok, err)
	}
}

func TestGenerateTemporaryPassword(t *testing.T) {
	temp, err := GenerateTemporaryPassword()
	if err != nil {
		t.Fatalf("generate temporary password: %v", err)
	}
	if len(temp) != 16 {
		t.Fatalf("expected 16 characters, got %d", len(temp))
	}
	if err := DefaultPasswordValidator().Validate(temp); err != nil {
		t.Fatalf("temporary password must satisfy the complexity policy, got %v", err)
	}
}

func TestGenerateAlphanumericToken(t *testing.T) {
	token, err := GenerateAlphanumericToken(ResetTokenLength)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if len(token) != ResetTokenLength {
		t.Fatalf("expected %d characters, got %d", ResetTokenLength, len(token))
	}
	for _, r := range token {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		default:
			t.Fatalf("unexpected character %q in token", r)
		}
	}
}
