// Package codelogin signs in with the shared access code, the fallback for
// devices that cannot run a passkey ceremony.
package codelogin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/podesk/internal/client/client"
	"github.com/dmitrijs2005/podesk/internal/client/lockout"
	"github.com/dmitrijs2005/podesk/internal/client/models"
	"github.com/dmitrijs2005/podesk/internal/client/session"
	"github.com/dmitrijs2005/podesk/internal/client/ui"
	"github.com/dmitrijs2005/podesk/internal/logging"
)

// LockSubject labels lockouts engaged by access-code attempts.
const LockSubject = "access code"

var (
	ErrDisabled     = errors.New("access-code login is disabled")
	ErrCodeRequired = errors.New("access code is required")
)

// Authenticator posts access codes.
type Authenticator struct {
	api      client.Client
	store    *session.Store
	lock     *lockout.Controller
	sink     ui.StatusSink
	username string
	logger   logging.Logger
}

func New(api client.Client, store *session.Store, lock *lockout.Controller, sink ui.StatusSink,
	username string, logger logging.Logger) *Authenticator {
	if sink == nil {
		sink = ui.Discard{}
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Authenticator{
		api:      api,
		store:    store,
		lock:     lock,
		sink:     sink,
		username: username,
		logger:   logger.With("component", "codelogin"),
	}
}

// LoginWithCode exchanges code for a session. The result still has to go
// through the shared completion path.
func (a *Authenticator) LoginWithCode(ctx context.Context, code string) (*models.AuthResult, error) {
	if !a.store.CodeLoginEnabled() {
		return nil, ErrDisabled
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrCodeRequired
	}
	if err := a.lock.Check(); err != nil {
		return nil, err
	}

	a.sink.SetStatus("Verifying access code...", ui.ToneWarn)

	res, err := a.api.LoginWithCode(ctx, a.username, code)
	if err != nil {
		// The server text already reads "... Try again in Ns.", the lock
		// only keeps the countdown going.
		a.lock.ApplyError(err, LockSubject)
		a.logger.Warn(ctx, "access-code sign-in rejected", "error", err)
		return nil, fmt.Errorf("code login: %w", err)
	}

	a.sink.SetStatus("Sign-in successful", ui.ToneGood)
	return res, nil
}

// UserMessage renders err for the sign-in screen. Server messages are shown
// verbatim.
func UserMessage(err error) string {
	var lockedErr *lockout.LockedError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDisabled):
		return "Access-code login is disabled on this server."
	case errors.Is(err, ErrCodeRequired):
		return "Access code is required"
	case errors.As(err, &lockedErr):
		return lockedErr.Error()
	}
	if apiErr, ok := client.AsAPIError(err); ok && apiErr.Message != "" {
		return apiErr.Message
	}
	return "Access-code sign-in failed"
}
