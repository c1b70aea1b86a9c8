package auth

import (
	"context"
	"crypto/rand"
	"strings"

	"github.com/dmitrijs2005/podesk/internal/passkey"
)

// SignIn is the body returned by the registration and sign-in endpoints.
type SignIn struct {
	OK                 bool   `json:"ok"`
	User               string `json:"user,omitempty"`
	CanApproveRequests *bool  `json:"can_approve_requests,omitempty"`
	AuthMethod         string `json:"auth_method,omitempty"`
	PendingApproval    bool   `json:"pending_approval,omitempty"`
	RequestID          string `json:"request_id,omitempty"`
	ExpiresIn          int    `json:"expires_in,omitempty"`
	Message            string `json:"message,omitempty"`
}

func signedIn(sess *Session) *SignIn {
	canApprove := sess.CanApprove
	return &SignIn{OK: true, User: sess.User, CanApproveRequests: &canApprove}
}

// RegisterOptions starts a passkey registration. While no passkey exists an
// anonymous caller must present the setup code; afterwards only a signed-in
// session may add passkeys.
func (s *Service) RegisterOptions(ctx context.Context, sid string, c Client, username, setupCode string) (*passkey.CreationOptions, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, newError(KindInvalid, "Username is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.session(sid)
	switch {
	case len(s.passkeys) == 0 && !sess.authenticated():
		if s.cfg.SetupCode == "" {
			return nil, newError(KindUnavailable, msgSetupDisabled)
		}
		if secs := s.setupGuard.Locked(c.IP); secs > 0 {
			return nil, lockedError("setup code", secs)
		}
		if !codesEqual(setupCode, s.cfg.SetupCode) {
			f := s.setupGuard.Fail(c.IP)
			s.logger.Warn(ctx, "wrong setup code", "ip", c.IP, "locked", f.Locked)
			if f.Locked {
				return nil, lockedError("setup code", f.RetryAfter)
			}
			return nil, wrongCodeError("setup code", f.Remaining)
		}
		s.setupGuard.Reset(c.IP)
	case len(s.passkeys) > 0 && !sess.authenticated():
		return nil, newError(KindUnauthorized, msgUnauthorized)
	}

	challenge, err := passkey.NewChallenge()
	if err != nil {
		return nil, err
	}
	handle := make([]byte, 16)
	if _, err := rand.Read(handle); err != nil {
		return nil, err
	}

	opts := &passkey.CreationOptions{
		Challenge:        challenge,
		RP:               passkey.RelyingParty{ID: s.cfg.RPID, Name: s.cfg.RPName},
		User:             passkey.UserEntity{ID: passkey.Encode(handle), Name: username, DisplayName: username},
		PubKeyCredParams: []passkey.CredentialParam{{Type: passkey.TypePublicKey, Alg: passkey.AlgEdDSA}},
		Timeout:          60000,
		AuthenticatorSelection: passkey.AuthenticatorSelection{
			ResidentKey:      "preferred",
			UserVerification: "required",
		},
		Hints: []string{"client-device"},
	}
	for _, id := range s.order {
		if pk := s.passkeys[id]; pk.User == username {
			opts.ExcludeCredentials = append(opts.ExcludeCredentials, passkey.CredentialDescriptor{Type: passkey.TypePublicKey, ID: id})
		}
	}

	sess.RegChallenge = challenge
	sess.RegUser = username
	sess.RegHandle = opts.User.ID
	return opts, nil
}

// RegisterVerify stores the new passkey and signs the session in with it.
func (s *Service) RegisterVerify(ctx context.Context, sid string, raw []byte) (*SignIn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.session(sid)
	challenge, username, handle := sess.RegChallenge, sess.RegUser, sess.RegHandle
	if challenge == "" || username == "" || handle == "" {
		return nil, newError(KindInvalid, msgRegExpired)
	}
	sess.RegChallenge, sess.RegUser, sess.RegHandle = "", "", ""

	cred, err := passkey.ParseCredential(raw)
	if err != nil {
		return nil, newError(KindInvalid, "Registration verification failed: %v", err)
	}
	key, err := cred.VerifyRegistration(passkey.Expectation{Type: passkey.TypeCreate, Challenge: challenge, Origin: s.cfg.Origin})
	if err != nil {
		return nil, newError(KindInvalid, "Registration verification failed: %v", err)
	}
	if _, exists := s.passkeys[cred.ID]; exists {
		return nil, newError(KindInvalid, "Registration verification failed: credential already registered")
	}

	pk := &Passkey{
		ID:             cred.ID,
		User:           username,
		UserHandle:     handle,
		PublicKey:      key,
		ApprovalDevice: len(s.passkeys) == 0,
		CreatedAt:      s.clock.Now(),
	}
	s.passkeys[pk.ID] = pk
	s.order = append(s.order, pk.ID)
	s.logger.Info(ctx, "passkey registered", "user", username, "approval_device", pk.ApprovalDevice)

	s.signIn(sess, username, pk.ID, pk.ApprovalDevice, "passkey")
	return signedIn(sess), nil
}
