package security

import (
	"errors"
	"testing"
)

func TestDefaultPasswordValidatorSuccess(t *testing.T) {
	validator := DefaultPasswordValidator()

	for _, password := range []string{
		"Str0ng!Pass",
		"Aa1~bcdefg",
		"xY9?longenough",
	} {
		if err := validator.Validate(password); err != nil {
			t.Fatalf("expected %q to pass validation, got %v", password, err)
		}
	}
}

func TestDefaultPasswordValidatorViolations(t *testing.T) {
	validator := DefaultPasswordValidator()

	assertViolation := func(password, expectedCode string) {
		t.Helper()
		err := validator.Validate(password)
		if err == nil {
			t.Fatalf("expected validation error for %s", expectedCode)
		}
		var vErr *PasswordValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected PasswordValidationError, got %T", err)
		}
		if vErr.Code != expectedCode {
			t.Fatalf("expected %s code, got %s", expectedCode, vErr.Code)
		}
	}

	assertViolation("Sh0rt!a", "min_length")
	assertViolation("lower1!case", "uppercase")
	assertViolation("UPPER1!CASE", "lowercase")
	assertViolation("NoDigits!here", "digit")
	assertViolation("NoSymbols1here", "symbol")
}

func TestRequireSymbolRuleUsesFixedSet(t *testing.T) {
	rule := RequireSymbolRule()

	if err := rule.Validate("abc def"); err == nil {
		t.Fatal("space is not part of the accepted symbol set")
	}

	for _, r := range PasswordSymbols {
		if err := rule.Validate("abc" + string(r)); err != nil {
			t.Fatalf("expected %q to satisfy the symbol rule, got %v", r, err)
		}
	}
}

func TestCustomPasswordValidator(t *testing.T) {
	validator := NewPasswordValidator(
		MinLengthRule(4),
		RequireSymbolRule(),
		RequireDifferentFrom("existing!"),
	)

	if err := validator.Validate("existing!"); err == nil {
		t.Fatal("expected validation error when new password equals comparator")
	}

	if err := validator.Validate("diff"); err == nil {
		t.Fatal("expected validation error for missing symbol")
	}

	if err := validator.Validate("diff!"); err != nil {
		t.Fatalf("expected password to pass custom validation, got %v", err)
	}
}
