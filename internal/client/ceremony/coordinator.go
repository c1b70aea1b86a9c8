package ceremony

import (
	"context"
	"encoding/json"
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

// LockSubject labels lockouts engaged by registration.
const LockSubject = "setup code"

// DefaultHints is the preference order of the first sign-in attempt:
// on-device first, then a phone, then a security key.
var DefaultHints = []string{"client-device", "hybrid", "security-key"}

// strategy is one attempt at obtaining an assertion.
type strategy struct {
	name  string
	hints []string
}

// Coordinator runs the options, ceremony, verify exchange for both
// registration and sign-in.
type Coordinator struct {
	api      client.Client
	auth     Authenticator
	store    *session.Store
	lock     *lockout.Controller
	sink     ui.StatusSink
	username string
	logger   logging.Logger

	strategies []strategy
}

// NewCoordinator wires a coordinator. auth may be nil when no authenticator
// is configured; every ceremony then fails with ErrUnsupported.
func NewCoordinator(api client.Client, auth Authenticator, store *session.Store, lock *lockout.Controller,
	sink ui.StatusSink, username string, logger logging.Logger) *Coordinator {
	if sink == nil {
		sink = ui.Discard{}
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Coordinator{
		api:      api,
		auth:     auth,
		store:    store,
		lock:     lock,
		sink:     sink,
		username: username,
		logger:   logger.With("component", "ceremony"),
		strategies: []strategy{
			{name: "hinted", hints: DefaultHints},
			{name: "plain"},
		},
	}
}

// Register creates a new passkey. A setup code is needed only while the
// server has no passkey; without one the call fails before any request.
func (c *Coordinator) Register(ctx context.Context, setupCode string) (*models.AuthResult, error) {
	if err := c.lock.Check(); err != nil {
		return nil, err
	}
	setupCode = strings.TrimSpace(setupCode)
	if !c.store.HasPasskey() && setupCode == "" {
		return nil, ErrSetupCodeRequired
	}
	if c.auth == nil {
		return nil, ErrUnsupported
	}

	c.sink.SetStatus("Waiting for security key...", ui.ToneWarn)

	opts, err := c.api.RegisterOptions(ctx, c.username, setupCode)
	if err != nil {
		if c.lock.ApplyError(err, LockSubject) {
			return nil, c.lockedOr(err)
		}
		return nil, fmt.Errorf("register options: %w", err)
	}

	credential, err := c.auth.Create(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("create credential: %w", err)
	}
	if len(credential) == 0 {
		return nil, fmt.Errorf("create credential: %w", ErrCancelled)
	}

	res, err := c.api.RegisterVerify(ctx, credential)
	if err != nil {
		if c.lock.ApplyError(err, LockSubject) {
			return nil, c.lockedOr(err)
		}
		return nil, fmt.Errorf("register verify: %w", err)
	}

	c.store.MarkPasskeyRegistered()
	c.sink.SetStatus("Passkey created", ui.ToneGood)
	c.logger.Info(ctx, "passkey registered", "user", res.User)
	return res, nil
}

// Login signs in with an existing passkey. The result may carry the
// pending-approval marker, in which case no session exists yet.
func (c *Coordinator) Login(ctx context.Context) (*models.AuthResult, error) {
	if err := c.lock.Check(); err != nil {
		return nil, err
	}
	if c.auth == nil {
		return nil, ErrUnsupported
	}

	c.sink.SetStatus("Waiting for passkey authentication...", ui.ToneWarn)

	opts, err := c.api.LoginOptions(ctx, c.username)
	if err != nil {
		if c.lock.ApplyError(err, "sign-in") {
			return nil, c.lockedOr(err)
		}
		if errors.Is(err, client.ErrBadRequest) && !c.store.HasPasskey() {
			return nil, fmt.Errorf("login options: %w", ErrNoPasskey)
		}
		return nil, fmt.Errorf("login options: %w", err)
	}

	assertion, err := c.assert(ctx, opts)
	if err != nil {
		return nil, err
	}

	res, err := c.api.LoginVerify(ctx, assertion)
	if err != nil {
		if c.lock.ApplyError(err, "sign-in") {
			return nil, c.lockedOr(err)
		}
		return nil, fmt.Errorf("login verify: %w", err)
	}
	return res, nil
}

// assert runs the strategies in order. A strategy whose hints the
// authenticator rejects hands over to the next one silently; any other
// failure ends the ceremony.
func (c *Coordinator) assert(ctx context.Context, opts json.RawMessage) (json.RawMessage, error) {
	var lastErr error
	for _, s := range c.strategies {
		prepared, err := prepareRequestOptions(opts, s.hints)
		if err != nil {
			return nil, fmt.Errorf("prepare options: %w", err)
		}
		assertion, err := c.auth.Get(ctx, prepared)
		if err == nil {
			if len(assertion) == 0 {
				return nil, fmt.Errorf("get assertion: %w", ErrCancelled)
			}
			return assertion, nil
		}
		if len(s.hints) == 0 || !IsHintRejection(err) {
			return nil, fmt.Errorf("get assertion: %w", err)
		}
		c.logger.Debug(ctx, "hints rejected, retrying without", "strategy", s.name, "error", err)
		lastErr = err
	}
	return nil, fmt.Errorf("get assertion: %w", lastErr)
}

// lockedOr returns the active lock as an error, or err if the lock already
// expired.
func (c *Coordinator) lockedOr(err error) error {
	if lockedErr := c.lock.Check(); lockedErr != nil {
		return lockedErr
	}
	return err
}

// prepareRequestOptions adds hints and defaults userVerification to
// "required" without touching the rest of the server's options.
func prepareRequestOptions(opts json.RawMessage, hints []string) (json.RawMessage, error) {
	fields := map[string]json.RawMessage{}
	if len(opts) > 0 {
		if err := json.Unmarshal(opts, &fields); err != nil {
			return nil, err
		}
	}
	if _, ok := fields["userVerification"]; !ok {
		fields["userVerification"] = json.RawMessage(`"required"`)
	}
	if len(hints) > 0 {
		raw, err := json.Marshal(hints)
		if err != nil {
			return nil, err
		}
		fields["hints"] = raw
	} else {
		delete(fields, "hints")
	}
	return json.Marshal(fields)
}
