// Package services orchestrates the client core: every successful sign-in
// funnels through AuthService, which owns the start and stop of the
// background pollers.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dmitrijs2005/podesk/internal/client/approval"
	"github.com/dmitrijs2005/podesk/internal/client/ceremony"
	"github.com/dmitrijs2005/podesk/internal/client/client"
	"github.com/dmitrijs2005/podesk/internal/client/codelogin"
	"github.com/dmitrijs2005/podesk/internal/client/models"
	"github.com/dmitrijs2005/podesk/internal/client/session"
	"github.com/dmitrijs2005/podesk/internal/client/syncer"
	"github.com/dmitrijs2005/podesk/internal/client/ui"
	"github.com/dmitrijs2005/podesk/internal/logging"
)

const (
	MsgSignedOut       = "Signed out. Sign in again."
	MsgSessionExpired  = "Session expired. Sign in again."
	MsgApprovalSent    = "Login request sent for admin approval."
	MsgApprovalExpired = "Login approval timed out. Sign in again."
	MsgApprovalMissing = "No pending login request was found. Sign in again."
	MsgApprovalDenied  = "Login request was rejected."
)

// Deps are the collaborators of AuthService. Sink, Auth and Logger may be
// nil.
type Deps struct {
	API       client.Client
	Store     *session.Store
	Ceremony  *ceremony.Coordinator
	Code      *codelogin.Authenticator
	Requester *approval.Requester
	Approver  *approval.Approver
	Poller    *syncer.Poller
	View      syncer.View
	Auth      ui.AuthSurface
	Sink      ui.StatusSink
	Logger    logging.Logger
}

// AuthService is the shared completion path for every sign-in method and
// the handler of logout and session expiry.
type AuthService struct {
	api       client.Client
	store     *session.Store
	ceremony  *ceremony.Coordinator
	code      *codelogin.Authenticator
	requester *approval.Requester
	approver  *approval.Approver
	poller    *syncer.Poller
	view      syncer.View
	auth      ui.AuthSurface
	sink      ui.StatusSink
	logger    logging.Logger

	expiring atomic.Bool
}

type noAuthSurface struct{}

func (noAuthSurface) ShowAuth(*models.AuthStatus, string) {}
func (noAuthSurface) HideAuth() {}

// NewAuthService wires the service and installs its unauthorized handler on
// the API client.
func NewAuthService(d Deps) *AuthService {
	if d.Sink == nil {
		d.Sink = ui.Discard{}
	}
	if d.Auth == nil {
		d.Auth = noAuthSurface{}
	}
	if d.Logger == nil {
		d.Logger = logging.Nop()
	}
	s := &AuthService{
		api:       d.API,
		store:     d.Store,
		ceremony:  d.Ceremony,
		code:      d.Code,
		requester: d.Requester,
		approver:  d.Approver,
		poller:    d.Poller,
		view:      d.View,
		auth:      d.Auth,
		sink:      d.Sink,
		logger:    d.Logger.With("component", "auth-service"),
	}
	s.api.SetUnauthorizedHandler(s.HandleUnauthorized)
	return s
}

// Init fetches the server status at start-up. An authenticated session is
// resumed, a pending approval is waited for, anything else shows the sign-in
// surface.
func (s *AuthService) Init(ctx context.Context) error {
	st, err := s.api.Status(ctx)
	if err != nil {
		s.logger.Error(ctx, "status fetch failed", "error", err)
		s.auth.ShowAuth(nil, "Server unavailable. Try again later.")
		return fmt.Errorf("auth status: %w", err)
	}
	s.store.ApplyStatus(st)

	switch {
	case st.Authenticated:
		s.complete(ctx, st.User, st.CanApprove())
		return nil
	case st.PendingApproval(), st.LoginApproval.PendingState == models.PendingStateApproved:
		// Left over from an earlier run of this session.
		s.sink.SetStatus(MsgApprovalSent, ui.ToneWarn)
		return s.awaitApproval(ctx, st.LoginApproval.PendingExpiresIn)
	}
	s.auth.ShowAuth(st, "")
	return nil
}

// Register creates a passkey and signs in with it.
func (s *AuthService) Register(ctx context.Context, setupCode string) error {
	res, err := s.ceremony.Register(ctx, setupCode)
	if err != nil {
		s.sink.SetStatus(ceremony.UserMessage(err, ceremony.ModeRegister), ui.ToneError)
		return err
	}
	return s.finish(ctx, res)
}

// LoginPasskey signs in with an existing passkey.
func (s *AuthService) LoginPasskey(ctx context.Context) error {
	res, err := s.ceremony.Login(ctx)
	if err != nil {
		s.sink.SetStatus(ceremony.UserMessage(err, ceremony.ModeLogin), ui.ToneError)
		return err
	}
	return s.finish(ctx, res)
}

// LoginWithCode signs in with the shared access code.
func (s *AuthService) LoginWithCode(ctx context.Context, code string) error {
	res, err := s.code.LoginWithCode(ctx, code)
	if err != nil {
		s.sink.SetStatus(codelogin.UserMessage(err), ui.ToneError)
		return err
	}
	return s.finish(ctx, res)
}

// Methods lists the passkey sign-in methods worth offering.
func (s *AuthService) Methods(ctx context.Context) []ceremony.Method {
	return s.ceremony.DetectMethods(ctx, s.store.HasPasskey())
}

func (s *AuthService) finish(ctx context.Context, res *models.AuthResult) error {
	if res.PendingApproval {
		msg := res.Message
		if msg == "" {
			msg = MsgApprovalSent
		}
		s.sink.SetStatus(msg, ui.ToneWarn)
		s.logger.Info(ctx, "login pending approval", "request_id", res.RequestID)
		return s.awaitApproval(ctx, res.ExpiresIn)
	}
	s.complete(ctx, res.User, res.CanApprove())
	return nil
}

func (s *AuthService) awaitApproval(ctx context.Context, expiresIn int) error {
	res, err := s.requester.Wait(ctx, expiresIn)
	if err != nil {
		var rejected *approval.RejectedError
		var msg string
		switch {
		case errors.As(err, &rejected):
			msg = MsgApprovalDenied
			if rejected.Reason != "" {
				msg = "Login request was rejected: " + rejected.Reason
			}
		case errors.Is(err, approval.ErrExpired):
			msg = MsgApprovalExpired
		case errors.Is(err, approval.ErrNoPendingRequest):
			msg = MsgApprovalMissing
		case errors.Is(err, approval.ErrBusy), ctx.Err() != nil:
			return err
		default:
			msg = "Could not check approval status."
		}
		s.sink.SetStatus(msg, ui.ToneError)
		st, _ := s.store.Status()
		st.LoginApproval.PendingState = ""
		s.auth.ShowAuth(&st, msg)
		return err
	}
	s.complete(ctx, res.User, res.CanApprove())
	return nil
}

// complete is the only place a session is established.
func (s *AuthService) complete(ctx context.Context, user string, canApprove bool) {
	s.expiring.Store(false)
	s.store.Authenticate(user, canApprove)
	s.auth.HideAuth()
	s.sink.SetStatus(ui.DefaultStatus, ui.ToneInfo)
	s.logger.Info(ctx, "signed in", "user", user, "can_approve", canApprove)

	if err := s.poller.RefreshLists(ctx); err != nil {
		s.logger.Warn(ctx, "initial list refresh failed", "error", err)
	}

	bg := context.WithoutCancel(ctx)
	s.poller.Start(bg)
	s.approver.Start(bg)
}

// Logout ends the session on the server and locally.
func (s *AuthService) Logout(ctx context.Context) error {
	if err := s.api.Logout(ctx); err != nil {
		s.logger.Warn(ctx, "server logout failed", "error", err)
	}
	s.stopPollers()
	s.store.Clear()
	s.approver.Reset()
	s.view.SetLists(nil, nil)
	s.logger.Info(ctx, "signed out")

	st, err := s.api.Status(ctx)
	if err != nil {
		s.logger.Warn(ctx, "status fetch after logout failed", "error", err)
		st = s.cachedStatus()
	} else {
		s.store.ApplyStatus(st)
	}
	s.sink.SetStatus(MsgSignedOut, ui.ToneInfo)
	s.auth.ShowAuth(st, MsgSignedOut)
	return nil
}

// HandleUnauthorized is installed on the API client and runs when a
// protected call answers 401. Concurrent calls collapse into one.
func (s *AuthService) HandleUnauthorized(ctx context.Context) {
	if !s.expiring.CompareAndSwap(false, true) {
		return
	}
	defer s.expiring.Store(false)
	s.expire(ctx)
}

func (s *AuthService) expire(ctx context.Context) {
	if !s.store.IsAuthenticated() {
		return
	}
	// ctx may belong to a poll run that is about to be cancelled.
	ctx = context.WithoutCancel(ctx)
	s.poller.Stop()
	s.approver.Stop()
	s.store.Clear()
	s.approver.Reset()
	s.logger.Warn(ctx, "session expired")

	st, err := s.api.Status(ctx)
	if err != nil {
		s.logger.Warn(ctx, "status fetch after expiry failed", "error", err)
		st = s.cachedStatus()
	} else {
		s.store.ApplyStatus(st)
	}
	s.sink.SetStatus(MsgSessionExpired, ui.ToneError)
	s.auth.ShowAuth(st, MsgSessionExpired)
}

// RefreshStatus re-reads the server status for a live session, tracking the
// approval capability and noticing a session lost server-side.
func (s *AuthService) RefreshStatus(ctx context.Context) error {
	st, err := s.api.Status(ctx)
	if err != nil {
		return fmt.Errorf("auth status: %w", err)
	}
	if s.store.IsAuthenticated() && !st.Authenticated {
		s.HandleUnauthorized(ctx)
		return client.ErrUnauthorized
	}
	s.store.ApplyStatus(st)
	if !st.Authenticated {
		return nil
	}

	s.store.SetCanApprove(st.CanApprove())
	switch {
	case st.CanApprove() && !s.approver.Running():
		s.approver.Start(context.WithoutCancel(ctx))
	case !st.CanApprove() && s.approver.Running():
		s.approver.Stop()
		s.approver.Reset()
	}
	return nil
}

// Close stops the background work and waits for it.
func (s *AuthService) Close() {
	s.stopPollers()
	s.poller.Wait()
	s.approver.Wait()
}

func (s *AuthService) stopPollers() {
	s.poller.Stop()
	s.approver.Stop()
}

func (s *AuthService) cachedStatus() *models.AuthStatus {
	st, ok := s.store.Status()
	if !ok {
		return nil
	}
	st.Authenticated = false
	st.User = ""
	st.LoginApproval.CanApproveRequests = false
	return &st
}
