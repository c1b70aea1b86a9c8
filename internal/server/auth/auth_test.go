package auth

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"testing"
	"time"

	"github.com/dmitrijs2005/podesk/internal/passkey"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	ctx      = context.Background()
	laptop   = Client{IP: "10.0.0.1", UserAgent: "laptop"}
	intruder = Client{IP: "10.0.0.9", UserAgent: "curl"}
)

// device is an in-test authenticator holding one key.
type device struct {
	id   string
	priv ed25519.PrivateKey
}

func newService(t *testing.T, mutate ...func(*Config)) (*Service, *clockwork.FakeClock) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.SetupCode = "setup-123"
	for _, m := range mutate {
		m(&cfg)
	}
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	return NewService(cfg, clock, nil), clock
}

func register(t *testing.T, s *Service, sid, code string) device {
	t.Helper()
	opts, err := s.RegisterOptions(ctx, sid, laptop, "admin", code)
	require.NoError(t, err)

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	cd, _, err := passkey.EncodeClientData(passkey.ClientData{Type: passkey.TypeCreate, Challenge: opts.Challenge})
	require.NoError(t, err)
	raw, _ := json.Marshal(passkey.Credential{
		ID:   passkey.Encode(pub[:8]),
		Type: passkey.TypePublicKey,
		Response: passkey.CredentialResponse{
			ClientDataJSON: cd,
			PublicKey:      passkey.Encode(pub),
		},
	})
	_, err = s.RegisterVerify(ctx, sid, raw)
	require.NoError(t, err)
	return device{id: passkey.Encode(pub[:8]), priv: priv}
}

func (d device) assertion(t *testing.T, challenge string) []byte {
	t.Helper()
	cd, cdRaw, err := passkey.EncodeClientData(passkey.ClientData{Type: passkey.TypeGet, Challenge: challenge})
	require.NoError(t, err)
	raw, _ := json.Marshal(passkey.Credential{
		ID:   d.id,
		Type: passkey.TypePublicKey,
		Response: passkey.CredentialResponse{
			ClientDataJSON: cd,
			Signature:      passkey.Encode(ed25519.Sign(d.priv, cdRaw)),
		},
	})
	return raw
}

func login(t *testing.T, s *Service, sid string, c Client, d device) (*SignIn, error) {
	t.Helper()
	opts, err := s.LoginOptions(ctx, sid, "")
	require.NoError(t, err)
	return s.LoginVerify(ctx, sid, c, d.assertion(t, opts.Challenge))
}

func kindOf(t *testing.T, err error) *Error {
	t.Helper()
	e, ok := AsError(err)
	require.True(t, ok, "expected *Error, got %v", err)
	return e
}

func TestAttemptGuard_EscalatingLock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	g := NewAttemptGuard(3, DefaultLockSteps, clock)

	assert.Equal(t, Failure{Remaining: 2}, g.Fail("ip"))
	assert.Equal(t, Failure{Remaining: 1}, g.Fail("ip"))
	assert.Equal(t, Failure{Locked: true, RetryAfter: 10}, g.Fail("ip"))
	assert.Equal(t, 10, g.Locked("ip"))
	assert.Equal(t, 0, g.Locked("other"))

	clock.Advance(9500 * time.Millisecond)
	assert.Equal(t, 1, g.Locked("ip"), "never reports zero while locked")
	f := g.Fail("ip")
	assert.True(t, f.Locked, "failures while locked do not count")

	clock.Advance(time.Second)
	assert.Equal(t, 0, g.Locked("ip"))
	g.Fail("ip")
	g.Fail("ip")
	assert.Equal(t, Failure{Locked: true, RetryAfter: 30}, g.Fail("ip"))

	g.Reset("ip")
	assert.Equal(t, 0, g.Locked("ip"))
	assert.Equal(t, Failure{Remaining: 2}, g.Fail("ip"))
}

func TestAttemptGuard_LastStepRepeats(t *testing.T) {
	clock := clockwork.NewFakeClock()
	g := NewAttemptGuard(1, []time.Duration{time.Second, 5 * time.Second}, clock)

	assert.Equal(t, 1, g.Fail("ip").RetryAfter)
	clock.Advance(time.Second)
	assert.Equal(t, 5, g.Fail("ip").RetryAfter)
	clock.Advance(5 * time.Second)
	assert.Equal(t, 5, g.Fail("ip").RetryAfter)
}

func TestStatus_Fresh(t *testing.T) {
	s, _ := newService(t)

	st := s.Status(ctx, "a")
	assert.False(t, st.Authenticated)
	assert.False(t, st.HasPasskey)
	assert.True(t, st.FirstAdminSetupReady)
	assert.True(t, st.CodeLogin.Enabled, "access code falls back to the setup code")
	assert.True(t, st.LoginApproval.Required)
	assert.Equal(t, StatusNone, st.LoginApproval.PendingState)
}

func TestRegisterOptions_SetupCodeGate(t *testing.T) {
	s, _ := newService(t)

	_, err := s.RegisterOptions(ctx, "a", intruder, " ", "setup-123")
	assert.Equal(t, KindInvalid, kindOf(t, err).Kind)

	_, err = s.RegisterOptions(ctx, "a", intruder, "admin", "wrong")
	e := kindOf(t, err)
	assert.Equal(t, KindForbidden, e.Kind)
	assert.Equal(t, "Invalid setup code. 2 attempt(s) left.", e.Message)
	require.NotNil(t, e.Remaining)
	assert.Equal(t, 2, *e.Remaining)

	_, _ = s.RegisterOptions(ctx, "a", intruder, "admin", "wrong")
	_, err = s.RegisterOptions(ctx, "a", intruder, "admin", "wrong")
	e = kindOf(t, err)
	assert.Equal(t, KindLocked, e.Kind)
	assert.Equal(t, 10, e.RetryAfter)
	assert.Equal(t, "Too many incorrect setup code attempts. Try again in 10s.", e.Message)

	_, err = s.RegisterOptions(ctx, "a", intruder, "admin", "setup-123")
	assert.Equal(t, KindLocked, kindOf(t, err).Kind, "the right code is refused while locked")

	_, err = s.RegisterOptions(ctx, "b", laptop, "admin", "setup-123")
	assert.NoError(t, err, "locks are per client")
}

func TestRegisterOptions_SetupDisabled(t *testing.T) {
	s, _ := newService(t, func(c *Config) { c.SetupCode = "" })

	_, err := s.RegisterOptions(ctx, "a", laptop, "admin", "anything")
	e := kindOf(t, err)
	assert.Equal(t, KindUnavailable, e.Kind)
	assert.Equal(t, msgSetupDisabled, e.Message)
}

func TestRegister_FirstPasskeyIsApprovalDevice(t *testing.T) {
	s, _ := newService(t)
	register(t, s, "a", "setup-123")

	st := s.Status(ctx, "a")
	assert.True(t, st.Authenticated)
	assert.Equal(t, "admin", st.User)
	assert.True(t, st.HasPasskey)
	assert.True(t, st.LoginApproval.CanApproveRequests)

	_, err := s.RegisterOptions(ctx, "b", laptop, "admin", "setup-123")
	assert.Equal(t, KindUnauthorized, kindOf(t, err).Kind, "anonymous registration ends with the first passkey")
}

func TestRegisterVerify_WithoutOptions(t *testing.T) {
	s, _ := newService(t)

	_, err := s.RegisterVerify(ctx, "a", []byte(`{}`))
	assert.Equal(t, msgRegExpired, kindOf(t, err).Message)
}

func TestLoginVerify_Failures(t *testing.T) {
	s, _ := newService(t)

	_, err := s.LoginOptions(ctx, "x", "")
	assert.Equal(t, msgNoPasskey, kindOf(t, err).Message)

	d := register(t, s, "a", "setup-123")

	_, err = s.LoginVerify(ctx, "b", laptop, d.assertion(t, "c"))
	assert.Equal(t, msgAuthExpired, kindOf(t, err).Message)

	opts, err := s.LoginOptions(ctx, "b", "")
	require.NoError(t, err)
	require.Len(t, opts.AllowCredentials, 1)

	_, err = s.LoginVerify(ctx, "b", laptop, []byte(`{"type":"public-key"}`))
	assert.Equal(t, "Credential id is missing", kindOf(t, err).Message)

	_, err = s.LoginVerify(ctx, "b", laptop, []byte(`{"id":"nope"}`))
	assert.Equal(t, "Unknown credential", kindOf(t, err).Message)

	_, err = s.LoginVerify(ctx, "b", laptop, d.assertion(t, "stale-challenge"))
	assert.Contains(t, kindOf(t, err).Message, "Login verification failed")
}

// approverWithSecondKey signs session "approver" in with the approval
// device and registers a second, ordinary passkey from it.
func approverWithSecondKey(t *testing.T, s *Service) device {
	t.Helper()
	first := register(t, s, "approver", "setup-123")
	second := register(t, s, "approver", "")
	// registering the second key moved the session onto it; sign back in
	// with the approval device
	res, err := login(t, s, "approver", laptop, first)
	require.NoError(t, err)
	require.True(t, *res.CanApproveRequests)
	return second
}

func TestLogin_ApprovalFlow(t *testing.T) {
	s, clock := newService(t)
	second := approverWithSecondKey(t, s)

	res, err := login(t, s, "phone", intruder, second)
	require.NoError(t, err)
	require.True(t, res.PendingApproval)
	assert.Equal(t, 120, res.ExpiresIn)
	assert.Equal(t, "Login request sent for admin approval.", res.Message)

	st := s.Status(ctx, "phone")
	assert.False(t, st.Authenticated)
	assert.Equal(t, StatusPending, st.LoginApproval.PendingState)
	assert.Equal(t, 120, st.LoginApproval.PendingExpiresIn)

	p := s.Pending(ctx, "phone")
	assert.Equal(t, StatusPending, p.Status)
	assert.Equal(t, res.RequestID, p.RequestID)

	clock.Advance(time.Second)
	rows, err := s.ListRequests(ctx, "approver")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, RequestView{
		ID:        res.RequestID,
		User:      "admin",
		IP:        "10.0.0.9",
		UserAgent: "curl",
		CreatedAt: "2024-05-01T10:00:00Z",
		ExpiresAt: "2024-05-01T10:02:00Z",
		ExpiresIn: 119,
	}, rows[0])

	dec, err := s.Decide(ctx, "approver", res.RequestID, true, "")
	require.NoError(t, err)
	assert.Equal(t, &DecisionResult{OK: true, Status: StatusApproved, RequestID: res.RequestID}, dec)

	p = s.Pending(ctx, "phone")
	assert.Equal(t, StatusApproved, p.Status)
	assert.True(t, p.Authenticated)
	require.NotNil(t, p.CanApproveRequests)
	assert.False(t, *p.CanApproveRequests, "ordinary passkeys never approve")
	assert.True(t, s.Status(ctx, "phone").Authenticated)

	_, err = s.Decide(ctx, "approver", res.RequestID, false, "")
	assert.Equal(t, KindConflict, kindOf(t, err).Kind)
	_, err = s.Decide(ctx, "approver", "missing", true, "")
	assert.Equal(t, KindNotFound, kindOf(t, err).Kind)
}

func TestLogin_RejectedWithDefaultReason(t *testing.T) {
	s, _ := newService(t)
	second := approverWithSecondKey(t, s)

	res, err := login(t, s, "phone", intruder, second)
	require.NoError(t, err)

	_, err = s.Decide(ctx, "approver", res.RequestID, false, "  ")
	require.NoError(t, err)

	p := s.Pending(ctx, "phone")
	assert.Equal(t, PendingStatus{Status: StatusRejected, Error: ReasonRejected}, p)
	assert.Equal(t, PendingStatus{Status: StatusNone}, s.Pending(ctx, "phone"), "a rejected request is reported once")
}

func TestLogin_RequestTimesOut(t *testing.T) {
	s, clock := newService(t)
	second := approverWithSecondKey(t, s)

	_, err := login(t, s, "phone", intruder, second)
	require.NoError(t, err)

	clock.Advance(121 * time.Second)
	p := s.Pending(ctx, "phone")
	assert.Equal(t, StatusRejected, p.Status)
	assert.Equal(t, ReasonTimedOut, p.Error)
}

func TestLogin_NewRequestSupersedesOld(t *testing.T) {
	s, _ := newService(t)
	second := approverWithSecondKey(t, s)

	first, err := login(t, s, "phone", intruder, second)
	require.NoError(t, err)
	again, err := login(t, s, "phone", intruder, second)
	require.NoError(t, err)
	require.NotEqual(t, first.RequestID, again.RequestID)

	rows, err := s.ListRequests(ctx, "approver")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, again.RequestID, rows[0].ID)
}

func TestLogin_DirectWhenApproverOffline(t *testing.T) {
	s, clock := newService(t)
	second := approverWithSecondKey(t, s)

	clock.Advance(13 * time.Second)
	res, err := login(t, s, "phone", intruder, second)
	require.NoError(t, err)
	assert.False(t, res.PendingApproval)
	assert.Equal(t, "admin", res.User)
}

func TestLogout_CancelsPendingRequest(t *testing.T) {
	s, _ := newService(t)
	second := approverWithSecondKey(t, s)

	res, err := login(t, s, "phone", intruder, second)
	require.NoError(t, err)

	s.Logout(ctx, "phone")

	rows, err := s.ListRequests(ctx, "approver")
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, ReasonCanceled, s.requests[res.RequestID].Reason)
}

func TestLoginWithCode(t *testing.T) {
	s, _ := newService(t, func(c *Config) { c.AccessCode = "open-sesame" })
	register(t, s, "approver", "setup-123")

	_, err := s.LoginWithCode(ctx, "c", intruder, "", "setup-123")
	e := kindOf(t, err)
	assert.Equal(t, KindForbidden, e.Kind)
	assert.Equal(t, "Invalid access code. 4 attempt(s) left.", e.Message)

	res, err := s.LoginWithCode(ctx, "c", laptop, "", "open-sesame")
	require.NoError(t, err)
	assert.Equal(t, "admin", res.User)
	assert.Equal(t, "access_code", res.AuthMethod)
	assert.False(t, *res.CanApproveRequests)

	_, err = s.ListRequests(ctx, "c")
	assert.Equal(t, KindForbidden, kindOf(t, err).Kind)
}

func TestLoginWithCode_Lockout(t *testing.T) {
	s, _ := newService(t)
	for i := 0; i < 4; i++ {
		_, _ = s.LoginWithCode(ctx, "c", intruder, "", "bad")
	}
	_, err := s.LoginWithCode(ctx, "c", intruder, "", "bad")
	e := kindOf(t, err)
	assert.Equal(t, KindLocked, e.Kind)
	assert.Equal(t, "Too many incorrect access-code attempts. Try again in 10s.", e.Message)
}

func TestLoginWithCode_Disabled(t *testing.T) {
	s, _ := newService(t, func(c *Config) { c.SetupCode = "" })

	_, err := s.LoginWithCode(ctx, "c", laptop, "", "x")
	assert.Equal(t, msgCodeDisabled, kindOf(t, err).Message)
}

func TestRequireSession(t *testing.T) {
	s, _ := newService(t)

	_, err := s.RequireSession(ctx, "nobody")
	assert.Equal(t, KindUnauthorized, kindOf(t, err).Kind)

	register(t, s, "a", "setup-123")
	user, err := s.RequireSession(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "admin", user)
}

func TestElection_OnlyLatestApproverKeepsCapability(t *testing.T) {
	s, clock := newService(t)
	first := register(t, s, "a", "setup-123")

	clock.Advance(13 * time.Second)
	res, err := login(t, s, "b", laptop, first)
	require.NoError(t, err)
	require.True(t, *res.CanApproveRequests)

	assert.False(t, s.Status(ctx, "a").LoginApproval.CanApproveRequests, "the older approver session was demoted")
	assert.True(t, s.Status(ctx, "b").LoginApproval.CanApproveRequests)
}

func TestSweep_SettlesExpiredRequests(t *testing.T) {
	s, clock := newService(t)
	second := approverWithSecondKey(t, s)

	res, err := login(t, s, "phone", intruder, second)
	require.NoError(t, err)

	sweepCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- s.Sweep(sweepCtx, 5*time.Second) }()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(125 * time.Second)

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.requests[res.RequestID].Status == StatusRejected
	}, time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
