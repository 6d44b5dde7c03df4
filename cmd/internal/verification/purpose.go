package verification

// Purpose scopes a token to one flow.
type Purpose string

const (
	PurposeEmailVerify   Purpose = "email_verify"
	PurposePasswordReset Purpose = "password_reset"
	PurposeOTPLogin      Purpose = "otp_login"
)

// AllPurposes lists every purpose.
func AllPurposes() []Purpose {
	return []Purpose{PurposeEmailVerify, PurposePasswordReset, PurposeOTPLogin}
}

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	switch p {
	case PurposeEmailVerify, PurposePasswordReset, PurposeOTPLogin:
		return true
	default:
		return false
	}
}
