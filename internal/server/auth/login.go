package auth

import (
	"context"
	"strings"

	"github.com/dmitrijs2005/podesk/internal/passkey"
	"github.com/google/uuid"
)

// LoginOptions starts a passkey sign-in. An empty username allows every
// registered credential.
func (s *Service) LoginOptions(ctx context.Context, sid, username string) (*passkey.RequestOptions, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.passkeys) == 0 {
		return nil, newError(KindInvalid, msgNoPasskey)
	}
	challenge, err := passkey.NewChallenge()
	if err != nil {
		return nil, err
	}

	username = strings.TrimSpace(username)
	opts := &passkey.RequestOptions{
		Challenge:        challenge,
		RPID:             s.cfg.RPID,
		AllowCredentials: []passkey.CredentialDescriptor{},
		UserVerification: "required",
		Timeout:          60000,
	}
	for _, id := range s.order {
		if pk := s.passkeys[id]; username == "" || pk.User == username {
			opts.AllowCredentials = append(opts.AllowCredentials, passkey.CredentialDescriptor{Type: passkey.TypePublicKey, ID: id})
		}
	}

	s.session(sid).AuthChallenge = challenge
	return opts, nil
}

// LoginVerify checks an assertion. When another approver is online the
// session is not signed in; a login request is queued instead.
func (s *Service) LoginVerify(ctx context.Context, sid string, c Client, raw []byte) (*SignIn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.session(sid)
	challenge := sess.AuthChallenge
	if challenge == "" {
		return nil, newError(KindInvalid, msgAuthExpired)
	}

	cred, err := passkey.ParseCredential(raw)
	if err != nil {
		return nil, newError(KindInvalid, "Login verification failed: %v", err)
	}
	if cred.ID == "" {
		return nil, newError(KindInvalid, "Credential id is missing")
	}
	pk, ok := s.passkeys[cred.ID]
	if !ok {
		return nil, newError(KindInvalid, "Unknown credential")
	}

	sess.AuthChallenge = ""
	if err := cred.VerifyAssertion(passkey.Expectation{Type: passkey.TypeGet, Challenge: challenge, Origin: s.cfg.Origin}, pk.PublicKey); err != nil {
		return nil, newError(KindInvalid, "Login verification failed: %v", err)
	}

	user := pk.User
	if user == "" {
		user = "admin"
	}
	if pk.ApprovalDevice {
		s.cancelForCredential(pk.ID, ReasonTrusted)
	}

	s.cleanup()
	if s.otherApproverOnline(sid) {
		sess.CanApprove = false
		req := s.createRequest(sess, user, pk.ID, c)
		s.logger.Info(ctx, "login request queued", "user", user, "request_id", req.ID, "ip", c.IP)
		return &SignIn{
			OK:              true,
			PendingApproval: true,
			RequestID:       req.ID,
			ExpiresIn:       int(s.cfg.ApprovalTTL.Seconds()),
			Message:         "Login request sent for admin approval.",
		}, nil
	}

	s.signIn(sess, user, pk.ID, pk.ApprovalDevice, "passkey")
	s.logger.Info(ctx, "signed in", "user", user, "method", "passkey")
	return signedIn(sess), nil
}

// LoginWithCode signs in with the shared access code. Such sessions never
// approve requests.
func (s *Service) LoginWithCode(ctx context.Context, sid string, c Client, username, code string) (*SignIn, error) {
	expected := s.cfg.accessCode()
	if expected == "" {
		return nil, newError(KindUnavailable, msgCodeDisabled)
	}
	if secs := s.accessGuard.Locked(c.IP); secs > 0 {
		return nil, lockedError("access-code", secs)
	}
	if !codesEqual(code, expected) {
		f := s.accessGuard.Fail(c.IP)
		s.logger.Warn(ctx, "wrong access code", "ip", c.IP, "locked", f.Locked)
		if f.Locked {
			return nil, lockedError("access-code", f.RetryAfter)
		}
		return nil, wrongCodeError("access code", f.Remaining)
	}
	s.accessGuard.Reset(c.IP)

	username = strings.TrimSpace(username)
	if username == "" {
		username = "admin"
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanup()

	sess := s.session(sid)
	s.signIn(sess, username, "", false, "access_code")
	s.logger.Info(ctx, "signed in", "user", username, "method", "access_code")

	res := signedIn(sess)
	res.AuthMethod = "access_code"
	return res, nil
}

// PendingStatus is the body of GET /auth/login/pending.
type PendingStatus struct {
	Status             string `json:"status"`
	Authenticated      bool   `json:"authenticated"`
	User               string `json:"user,omitempty"`
	CanApproveRequests *bool  `json:"can_approve_requests,omitempty"`
	Error              string `json:"error,omitempty"`
	RequestID          string `json:"request_id,omitempty"`
	ExpiresIn          *int   `json:"expires_in,omitempty"`
}

// Pending reports the decision on the session's login request and signs
// the session in once it is approved.
func (s *Service) Pending(ctx context.Context, sid string) PendingStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.session(sid)
	if sess.authenticated() {
		canApprove := sess.CanApprove
		return PendingStatus{Status: StatusApproved, Authenticated: true, User: sess.User, CanApproveRequests: &canApprove}
	}

	id := sess.PendingRequestID
	if id == "" {
		return PendingStatus{Status: StatusNone}
	}

	s.cleanup()
	req, ok := s.requests[id]
	if !ok {
		sess.PendingRequestID = ""
		return PendingStatus{Status: StatusRejected, Error: "Login request expired or not found."}
	}
	if req.Status == StatusPending && s.secondsUntil(req.ExpiresAt) <= 0 {
		s.decide(id, false, "system", ReasonTimedOut)
	}

	switch req.Status {
	case StatusApproved:
		canApprove := false
		credentialID := ""
		if pk, ok := s.passkeys[req.CredentialID]; ok {
			canApprove = pk.ApprovalDevice
			credentialID = pk.ID
		}
		s.signIn(sess, req.User, credentialID, canApprove, "passkey")
		s.logger.Info(ctx, "login request approved", "user", req.User, "request_id", id)
		return PendingStatus{Status: StatusApproved, Authenticated: true, User: sess.User, CanApproveRequests: boolPtr(sess.CanApprove)}
	case StatusRejected:
		sess.PendingRequestID = ""
		reason := req.Reason
		if reason == "" {
			reason = "Login request was rejected."
		}
		return PendingStatus{Status: StatusRejected, Error: reason}
	default:
		left := s.secondsUntil(req.ExpiresAt)
		return PendingStatus{Status: StatusPending, RequestID: id, ExpiresIn: &left}
	}
}

// createRequest queues a login request for sess, superseding its previous
// one.
func (s *Service) createRequest(sess *Session, user, credentialID string, c Client) *LoginRequest {
	if sess.PendingRequestID != "" {
		s.decide(sess.PendingRequestID, false, "system", ReasonSuperseded)
	}
	now := s.clock.Now()
	req := &LoginRequest{
		ID:           uuid.NewString(),
		User:         user,
		CredentialID: credentialID,
		SessionID:    sess.ID,
		IP:           c.IP,
		UserAgent:    c.UserAgent,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.cfg.ApprovalTTL),
		Status:       StatusPending,
	}
	s.requests[req.ID] = req
	sess.PendingRequestID = req.ID
	return req
}

func boolPtr(v bool) *bool { return &v }
