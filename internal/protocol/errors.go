package protocol

import "fmt"

// Error is a facilitator-specific error carried from the component that
// detected it up to the HTTP layer, which maps Code to a status.
type Error struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes surfaced in HTTP bodies.
const (
	ErrCodeNotSupported  = "NOT_SUPPORTED"
	ErrCodeInvalidHeader = "INVALID_HEADER"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeRPC           = "RPC_ERROR"
	ErrCodeVerification  = "VERIFICATION_ERROR"
	ErrCodeSettlement    = "SETTLEMENT_ERROR"
	ErrCodeRateLimited   = "RATE_LIMITED"
	ErrCodeInternal      = "INTERNAL_ERROR"
)

// NewError creates a facilitator error with optional details.
func NewError(code, message string, details map[string]interface{}) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// NotSupportedf builds a NOT_SUPPORTED error from a format string.
func NotSupportedf(format string, args ...interface{}) *Error {
	return &Error{Code: ErrCodeNotSupported, Message: fmt.Sprintf(format, args...)}
}

// InvalidHeaderf builds an INVALID_HEADER error from a format string.
func InvalidHeaderf(format string, args ...interface{}) *Error {
	return &Error{Code: ErrCodeInvalidHeader, Message: fmt.Sprintf(format, args...)}
}

// SettlementErrorf builds a SETTLEMENT_ERROR from a format string.
func SettlementErrorf(format string, args ...interface{}) *Error {
	return &Error{Code: ErrCodeSettlement, Message: fmt.Sprintf(format, args...)}
}

// RPCErrorf builds an RPC_ERROR from a format string.
func RPCErrorf(format string, args ...interface{}) *Error {
	return &Error{Code: ErrCodeRPC, Message: fmt.Sprintf(format, args...)}
}
