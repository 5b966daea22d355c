package security

const defaultMinPasswordLength = 8

// DefaultPasswordValidator returns the built-in validator enforcing the
// service password policy: minimum length plus one character from each of
// the four classes.
func DefaultPasswordValidator() *PasswordValidator {
	return NewPasswordValidator(
		MinLengthRule(defaultMinPasswordLength),
		RequireUppercaseRule(),
		RequireLowercaseRule(),
		RequireDigitRule(),
		RequireSymbolRule(),
	)
}
