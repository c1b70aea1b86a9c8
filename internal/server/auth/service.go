package auth

import (
	"context"
	"crypto/ed25519"
	"crypto/subtle"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/podesk/internal/logging"
	"github.com/jonboulle/clockwork"
)

// Passkey is a registered credential. The first one registered becomes the
// approval device.
type Passkey struct {
	ID             string
	User           string
	UserHandle     string
	PublicKey      ed25519.PublicKey
	ApprovalDevice bool
	CreatedAt      time.Time
}

// Session is one browser-style session, keyed by the session cookie.
type Session struct {
	ID           string
	User         string
	CredentialID string
	CanApprove   bool
	AuthMethod   string

	RegChallenge  string
	RegUser       string
	RegHandle     string
	AuthChallenge string

	PendingRequestID string

	LastSeen time.Time
}

func (s *Session) authenticated() bool { return s.User != "" }

// Request statuses.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
	StatusExpired  = "expired"
	StatusNone     = "none"
)

// LoginRequest is a sign-in waiting for an approver.
type LoginRequest struct {
	ID           string
	User         string
	CredentialID string
	SessionID    string
	IP           string
	UserAgent    string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	Status       string
	DecidedBy    string
	DecidedAt    time.Time
	Reason       string
}

// Client describes the caller of a sign-in operation.
type Client struct {
	IP        string
	UserAgent string
}

// Service implements the auth endpoints of the development backend.
type Service struct {
	cfg    Config
	clock  clockwork.Clock
	logger logging.Logger

	setupGuard  *AttemptGuard
	accessGuard *AttemptGuard

	mu       sync.Mutex
	passkeys map[string]*Passkey
	order    []string
	sessions map[string]*Session
	requests map[string]*LoginRequest
}

func NewService(cfg Config, clock clockwork.Clock, logger logging.Logger) *Service {
	cfg = cfg.normalize()
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Service{
		cfg:         cfg,
		clock:       clock,
		logger:      logger.With("module", "auth"),
		setupGuard:  NewAttemptGuard(cfg.SetupMaxAttempts, cfg.LockSteps, clock),
		accessGuard: NewAttemptGuard(cfg.AccessMaxAttempts, cfg.LockSteps, clock),
		passkeys:    map[string]*Passkey{},
		sessions:    map[string]*Session{},
		requests:    map[string]*LoginRequest{},
	}
}

// ApprovalStatus is the login_approval block of Status.
type ApprovalStatus struct {
	Required           bool   `json:"required"`
	CanApproveRequests bool   `json:"can_approve_requests"`
	PendingState       string `json:"pending_state"`
	PendingExpiresIn   int    `json:"pending_expires_in"`
}

type CodeLoginStatus struct {
	Enabled bool `json:"enabled"`
}

// Status is the body of GET /auth/status.
type Status struct {
	Authenticated        bool            `json:"authenticated"`
	User                 string          `json:"user"`
	HasPasskey           bool            `json:"has_passkey"`
	FirstAdminSetupReady bool            `json:"first_admin_setup_ready"`
	LoginApproval        ApprovalStatus  `json:"login_approval"`
	CodeLogin            CodeLoginStatus `json:"code_login"`
}

// Status reports the session's view of the auth state.
func (s *Service) Status(ctx context.Context, sid string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.session(sid)
	if sess.authenticated() {
		s.touch(sess)
	}
	s.cleanup()

	st := Status{
		Authenticated:        sess.authenticated(),
		User:                 sess.User,
		HasPasskey:           len(s.passkeys) > 0,
		FirstAdminSetupReady: s.cfg.SetupCode != "",
		LoginApproval: ApprovalStatus{
			Required:     true,
			PendingState: StatusNone,
		},
		CodeLogin: CodeLoginStatus{Enabled: s.cfg.accessCode() != ""},
	}
	if sess.PendingRequestID != "" && !sess.authenticated() {
		if req, ok := s.requests[sess.PendingRequestID]; ok {
			st.LoginApproval.PendingState = req.Status
			if req.Status == StatusPending {
				st.LoginApproval.PendingExpiresIn = s.secondsUntil(req.ExpiresAt)
			}
		} else {
			st.LoginApproval.PendingState = StatusExpired
		}
	}
	st.LoginApproval.CanApproveRequests = sess.authenticated() && sess.CanApprove
	return st
}

// Logout cancels the session's pending request and signs it out.
func (s *Service) Logout(ctx context.Context, sid string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sid]
	if !ok {
		return
	}
	if sess.PendingRequestID != "" {
		s.decide(sess.PendingRequestID, false, "system", ReasonCanceled)
	}
	if sess.User != "" {
		s.logger.Info(ctx, "signed out", "user", sess.User)
	}
	delete(s.sessions, sid)
}

// RequireSession fails with KindUnauthorized unless sid is signed in, and
// marks the session as seen.
func (s *Service) RequireSession(ctx context.Context, sid string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sid]
	if !ok || !sess.authenticated() {
		return "", newError(KindUnauthorized, msgUnauthorized)
	}
	s.touch(sess)
	return sess.User, nil
}

// HasPasskey reports whether any passkey is registered.
func (s *Service) HasPasskey() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.passkeys) > 0
}

// session returns the session for sid, creating an empty one.
func (s *Service) session(sid string) *Session {
	sess, ok := s.sessions[sid]
	if !ok {
		sess = &Session{ID: sid}
		s.sessions[sid] = sess
	}
	sess.LastSeen = s.clock.Now()
	return sess
}

func (s *Service) touch(sess *Session) {
	sess.LastSeen = s.clock.Now()
}

// signIn establishes the session and drops any ceremony state.
func (s *Service) signIn(sess *Session, user, credentialID string, canApprove bool, method string) {
	sess.User = user
	sess.CredentialID = credentialID
	sess.CanApprove = canApprove
	sess.AuthMethod = method
	sess.PendingRequestID = ""
	sess.RegChallenge, sess.RegUser, sess.RegHandle = "", "", ""
	sess.AuthChallenge = ""
	s.touch(sess)
	s.electApprover()
}

// Sweep runs cleanup every interval until ctx is done, so expired requests
// are settled even when no one is calling in.
func (s *Service) Sweep(ctx context.Context, interval time.Duration) error {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			s.mu.Lock()
			s.cleanup()
			s.mu.Unlock()
		}
	}
}

// cleanup expires idle sessions and stale requests. Callers hold s.mu.
func (s *Service) cleanup() {
	now := s.clock.Now()

	for id, sess := range s.sessions {
		if now.Sub(sess.LastSeen) > s.cfg.IdleTimeout {
			delete(s.sessions, id)
		}
	}

	for id, req := range s.requests {
		if req.Status == StatusPending && now.After(req.ExpiresAt) {
			s.decide(id, false, "system", ReasonTimedOut)
			continue
		}
		if req.Status != StatusPending && !req.DecidedAt.IsZero() && now.Sub(req.DecidedAt) > s.cfg.DecisionRetention {
			delete(s.requests, id)
		}
	}

	s.electApprover()
}

// electApprover keeps the approval capability on the most recently active
// approver session only. Sessions idle past ActiveSessionTTL lose it.
func (s *Service) electApprover() {
	now := s.clock.Now()
	var capable []*Session
	for _, sess := range s.sessions {
		if !sess.CanApprove {
			continue
		}
		if !sess.authenticated() || now.Sub(sess.LastSeen) > s.cfg.ActiveSessionTTL {
			sess.CanApprove = false
			continue
		}
		capable = append(capable, sess)
	}
	if len(capable) < 2 {
		return
	}
	sort.Slice(capable, func(i, j int) bool {
		if !capable[i].LastSeen.Equal(capable[j].LastSeen) {
			return capable[i].LastSeen.After(capable[j].LastSeen)
		}
		return capable[i].ID < capable[j].ID
	})
	for _, sess := range capable[1:] {
		sess.CanApprove = false
	}
}

// otherApproverOnline reports whether a different approver session was seen
// within the online window.
func (s *Service) otherApproverOnline(sid string) bool {
	cutoff := s.clock.Now().Add(-s.cfg.OnlineWindow)
	for id, sess := range s.sessions {
		if id == sid || !sess.authenticated() || !sess.CanApprove {
			continue
		}
		if !sess.LastSeen.Before(cutoff) {
			return true
		}
	}
	return false
}

func (s *Service) secondsUntil(t time.Time) int {
	return max(0, int(t.Sub(s.clock.Now()).Seconds()))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func codesEqual(got, want string) bool {
	got = strings.TrimSpace(got)
	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
