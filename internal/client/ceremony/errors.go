package ceremony

import (
	"errors"
	"regexp"

	"github.com/dmitrijs2005/podesk/internal/client/client"
	"github.com/dmitrijs2005/podesk/internal/client/lockout"
)

var (
	ErrCancelled           = errors.New("ceremony cancelled or timed out")
	ErrDuplicateCredential = errors.New("credential already registered")
	ErrDomainMismatch      = errors.New("relying party domain mismatch")
	ErrUnsupported         = errors.New("passkeys not supported")
	ErrSetupCodeRequired   = errors.New("first admin setup code is required")
	ErrNoPasskey           = errors.New("no passkey registered")
)

// Mode selects the wording of UserMessage.
type Mode int

const (
	ModeRegister Mode = iota
	ModeLogin
)

var hintsRe = regexp.MustCompile(`(?i)hints?`)

// IsHintRejection reports whether err means the authenticator did not
// understand the hints, as opposed to the user cancelling.
func IsHintRejection(err error) bool {
	var authErr *AuthenticatorError
	if !errors.As(err, &authErr) {
		return false
	}
	switch authErr.Name {
	case "TypeError", "NotSupportedError":
		return true
	}
	return hintsRe.MatchString(authErr.Message)
}

// UserMessage renders err for the sign-in screen.
func UserMessage(err error, mode Mode) string {
	var lockedErr *lockout.LockedError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &lockedErr):
		return lockedErr.Error()
	case errors.Is(err, ErrSetupCodeRequired):
		return "First Admin Setup Code is required"
	case errors.Is(err, ErrNoPasskey):
		return "No passkey is registered yet. Register one first."
	case errors.Is(err, ErrCancelled):
		if mode == ModeRegister {
			return "Registration was canceled or timed out. Use your device PIN and try again."
		}
		return "Sign-in was canceled or timed out. Use your device PIN and try again."
	case errors.Is(err, ErrDuplicateCredential):
		return "This passkey already exists on this device."
	case errors.Is(err, ErrDomainMismatch):
		return "Invalid domain for passkey. Check the server URL."
	case errors.Is(err, ErrUnsupported):
		return "Passkeys are not supported by the configured authenticator."
	}

	if apiErr, ok := client.AsAPIError(err); ok && apiErr.Message != "" {
		return apiErr.Message
	}
	var authErr *AuthenticatorError
	if errors.As(err, &authErr) && authErr.Message != "" {
		return authErr.Message
	}
	if mode == ModeRegister {
		return "Passkey registration failed"
	}
	return "Passkey sign-in failed"
}
