// Package ceremony drives passkey registration and sign-in: it fetches
// ceremony options from the server, hands them to an external authenticator
// and posts the result back for verification.
package ceremony

import (
	"context"
	"encoding/json"
)

// Authenticator performs the credential ceremonies. Options and results are
// the WebAuthn JSON documents exchanged with the server; the authenticator
// owns all cryptography.
type Authenticator interface {
	Create(ctx context.Context, options json.RawMessage) (json.RawMessage, error)
	Get(ctx context.Context, options json.RawMessage) (json.RawMessage, error)
}

// CapabilityReporter is implemented by authenticators that can describe
// their client capabilities (keys like "hybridTransport", "securityKey").
type CapabilityReporter interface {
	Capabilities(ctx context.Context) (map[string]bool, error)
}

// PlatformChecker reports whether a user-verifying platform authenticator
// exists on this device.
type PlatformChecker interface {
	PlatformAvailable(ctx context.Context) (bool, error)
}

// ConditionalChecker reports whether conditional mediation is available.
type ConditionalChecker interface {
	ConditionalAvailable(ctx context.Context) (bool, error)
}

// AuthenticatorError is a failure reported by the authenticator. Name uses
// the DOMException vocabulary ("NotAllowedError", "InvalidStateError", ...).
type AuthenticatorError struct {
	Name    string
	Message string
}

func (e *AuthenticatorError) Error() string {
	switch {
	case e.Name == "":
		return e.Message
	case e.Message == "":
		return e.Name
	default:
		return e.Name + ": " + e.Message
	}
}

// Unwrap maps the DOMException name to the package sentinels.
func (e *AuthenticatorError) Unwrap() error {
	switch e.Name {
	case "NotAllowedError", "AbortError":
		return ErrCancelled
	case "InvalidStateError":
		return ErrDuplicateCredential
	case "SecurityError":
		return ErrDomainMismatch
	case "NotSupportedError":
		return ErrUnsupported
	default:
		return nil
	}
}
