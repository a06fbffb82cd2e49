package oauth

import "fmt"

// FlowCode identifies a login-flow failure. The set is closed; every
// failure crossing this package boundary carries exactly one code.
type FlowCode string

const (
	CodeStateMissing        FlowCode = "state_missing"
	CodeStateMismatch       FlowCode = "state_mismatch"
	CodeStateExpired        FlowCode = "state_expired"
	CodeTokenExchangeFailed FlowCode = "token_exchange_failed"
	CodeSignatureInvalid    FlowCode = "signature_invalid"
	CodeIssuerMismatch      FlowCode = "issuer_mismatch"
	CodeAudienceMismatch    FlowCode = "audience_mismatch"
	CodeTokenExpired        FlowCode = "token_expired"
)

// FlowError is the only error type returned by the login flow. The
// internal diagnostic (Error) is for logs; UserMessage is the only
// string that may reach the end user.
type FlowError struct {
	Code   FlowCode
	Detail string
	cause  error
}

func flowErr(code FlowCode, detail string, cause error) *FlowError {
	return &FlowError{Code: code, Detail: detail, cause: cause}
}

func (e *FlowError) Error() string {
	msg := fmt.Sprintf("oauth: %s", e.Code)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *FlowError) Unwrap() error {
	return e.cause
}

// UserMessage returns the generic user-facing message for the failure.
// Verifier internals are never surfaced here.
func (e *FlowError) UserMessage() string {
	switch e.Code {
	case CodeStateMissing, CodeStateMismatch, CodeStateExpired:
		return "your login attempt expired, please start over"
	default:
		return "authentication failed, please try again"
	}
}
