package auth

import (
	"errors"
	"fmt"
)

// Kind classifies an Error for the transport layer.
type Kind int

const (
	KindInvalid Kind = iota
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindLocked
	KindUnavailable
)

// Error is a failure whose Message is shown to the user as is.
type Error struct {
	Kind       Kind
	Message    string
	RetryAfter int
	// Remaining is set on a wrong code that did not trigger a lock.
	Remaining *int
}

func (e *Error) Error() string { return e.Message }

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AsError extracts an *Error from err.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

const (
	msgUnauthorized   = "Unauthorized"
	msgNotAllowed     = "This passkey/device is not allowed to approve or reject sign-in requests."
	msgSetupDisabled  = "First-admin setup is unavailable. Contact the administrator."
	msgCodeDisabled   = "Access-code login is disabled on this server."
	msgRegExpired     = "Registration session expired"
	msgAuthExpired    = "Authentication session expired"
	msgNoPasskey      = "No passkey is registered yet"
	msgRequestMissing = "Login request not found"
	msgRequestDecided = "Login request already decided"
)

// Reasons recorded on requests decided by the server itself.
const (
	ReasonCanceled   = "Login request canceled."
	ReasonTimedOut   = "Login approval timed out."
	ReasonSuperseded = "Superseded by a newer login request."
	ReasonTrusted    = "Superseded by trusted approver sign-in."
	ReasonRejected   = "Rejected by administrator."
)

func lockedError(what string, seconds int) *Error {
	return &Error{
		Kind:       KindLocked,
		Message:    fmt.Sprintf("Too many incorrect %s attempts. Try again in %ds.", what, seconds),
		RetryAfter: seconds,
	}
}

func wrongCodeError(what string, remaining int) *Error {
	return &Error{
		Kind:      KindForbidden,
		Message:   fmt.Sprintf("Invalid %s. %d attempt(s) left.", what, remaining),
		Remaining: &remaining,
	}
}
