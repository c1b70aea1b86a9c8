package ceremony

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/dmitrijs2005/podesk/internal/client/client"
	"github.com/dmitrijs2005/podesk/internal/client/lockout"
	"github.com/dmitrijs2005/podesk/internal/client/models"
	"github.com/dmitrijs2005/podesk/internal/client/session"
	"github.com/dmitrijs2005/podesk/internal/client/ui"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---- fakes ----

// fakeClient implements the ceremony part of client.Client. Calls outside
// that part panic through the nil embedded interface.
type fakeClient struct {
	client.Client

	RegisterOptionsRet json.RawMessage
	RegisterOptionsErr error
	RegisterVerifyRet  *models.AuthResult
	RegisterVerifyErr  error
	LoginOptionsRet    json.RawMessage
	LoginOptionsErr    error
	LoginVerifyRet     *models.AuthResult
	LoginVerifyErr     error

	Calls int

	LastSetupCode  string
	LastUsername   string
	LastCredential json.RawMessage
	LastAssertion  json.RawMessage
}

func (f *fakeClient) RegisterOptions(ctx context.Context, username, setupCode string) (json.RawMessage, error) {
	f.Calls++
	f.LastUsername = username
	f.LastSetupCode = setupCode
	return f.RegisterOptionsRet, f.RegisterOptionsErr
}

func (f *fakeClient) RegisterVerify(ctx context.Context, credential json.RawMessage) (*models.AuthResult, error) {
	f.Calls++
	f.LastCredential = credential
	return f.RegisterVerifyRet, f.RegisterVerifyErr
}

func (f *fakeClient) LoginOptions(ctx context.Context, username string) (json.RawMessage, error) {
	f.Calls++
	f.LastUsername = username
	return f.LoginOptionsRet, f.LoginOptionsErr
}

func (f *fakeClient) LoginVerify(ctx context.Context, assertion json.RawMessage) (*models.AuthResult, error) {
	f.Calls++
	f.LastAssertion = assertion
	return f.LoginVerifyRet, f.LoginVerifyErr
}

type fakeAuthenticator struct {
	CreateRet json.RawMessage
	CreateErr error
	GetRets   []json.RawMessage
	GetErrs   []error

	GetOptions []json.RawMessage
}

func (f *fakeAuthenticator) Create(ctx context.Context, options json.RawMessage) (json.RawMessage, error) {
	return f.CreateRet, f.CreateErr
}

func (f *fakeAuthenticator) Get(ctx context.Context, options json.RawMessage) (json.RawMessage, error) {
	i := len(f.GetOptions)
	f.GetOptions = append(f.GetOptions, options)
	var ret json.RawMessage
	var err error
	if i < len(f.GetRets) {
		ret = f.GetRets[i]
	}
	if i < len(f.GetErrs) {
		err = f.GetErrs[i]
	}
	return ret, err
}

type fixture struct {
	api   *fakeClient
	auth  *fakeAuthenticator
	store *session.Store
	lock  *lockout.Controller
	rec   *ui.Recorder
	clock *clockwork.FakeClock
	c     *Coordinator
}

func newFixture(t *testing.T, hasPasskey bool) *fixture {
	t.Helper()
	f := &fixture{
		api:   &fakeClient{},
		auth:  &fakeAuthenticator{},
		store: session.NewStore(),
		rec:   &ui.Recorder{},
		clock: clockwork.NewFakeClock(),
	}
	f.store.ApplyStatus(&models.AuthStatus{HasPasskey: hasPasskey})
	f.lock = lockout.New(f.clock, f.rec)
	t.Cleanup(func() {
		f.lock.Stop()
		f.lock.Wait()
	})
	f.c = NewCoordinator(f.api, f.auth, f.store, f.lock, f.rec, "admin", nil)
	return f
}

// ---- tests ----

func TestRegister_FirstPasskeyWithoutSetupCode_NoNetwork(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.c.Register(context.Background(), "   ")

	require.ErrorIs(t, err, ErrSetupCodeRequired)
	assert.Equal(t, 0, f.api.Calls)
	assert.Equal(t, "First Admin Setup Code is required", UserMessage(err, ModeRegister))
}

func TestRegister_Success(t *testing.T) {
	f := newFixture(t, false)
	f.api.RegisterOptionsRet = json.RawMessage(`{"challenge":"abc"}`)
	f.auth.CreateRet = json.RawMessage(`{"id":"cred-1"}`)
	yes := true
	f.api.RegisterVerifyRet = &models.AuthResult{OK: true, User: "admin", CanApproveRequests: &yes}

	res, err := f.c.Register(context.Background(), " SETUP-1 ")

	require.NoError(t, err)
	assert.True(t, res.CanApprove())
	assert.Equal(t, "SETUP-1", f.api.LastSetupCode)
	assert.JSONEq(t, `{"id":"cred-1"}`, string(f.api.LastCredential))
	assert.True(t, f.store.HasPasskey())
	assert.Equal(t, ui.Message{Text: "Passkey created", Tone: ui.ToneGood}, f.rec.Last())
}

func TestRegister_ExistingPasskeyNeedsNoCode(t *testing.T) {
	f := newFixture(t, true)
	f.api.RegisterOptionsRet = json.RawMessage(`{}`)
	f.auth.CreateRet = json.RawMessage(`{"id":"cred-2"}`)
	f.api.RegisterVerifyRet = &models.AuthResult{OK: true, User: "admin"}

	_, err := f.c.Register(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "", f.api.LastSetupCode)
}

func TestRegister_WrongCodeLocks(t *testing.T) {
	f := newFixture(t, false)
	f.api.RegisterOptionsErr = &client.APIError{
		StatusCode: http.StatusTooManyRequests,
		Message:    "Too many incorrect setup code attempts. Try again in 10s.",
		Locked:     true,
		RetryAfter: float64(10),
	}

	_, err := f.c.Register(context.Background(), "bad")
	require.ErrorIs(t, err, lockout.ErrLocked)
	assert.True(t, f.lock.IsLocked())

	calls := f.api.Calls
	_, err = f.c.Register(context.Background(), "bad")
	require.ErrorIs(t, err, lockout.ErrLocked)
	assert.Equal(t, calls, f.api.Calls, "locked attempts must not reach the server")
}

func TestRegister_WrongCodeWithoutLockShowsServerText(t *testing.T) {
	f := newFixture(t, false)
	left := 2
	f.api.RegisterOptionsErr = &client.APIError{
		StatusCode:        http.StatusForbidden,
		Message:           "Invalid setup code. 2 attempt(s) left.",
		RemainingAttempts: &left,
	}

	_, err := f.c.Register(context.Background(), "bad")
	require.Error(t, err)
	assert.False(t, f.lock.IsLocked())
	assert.Equal(t, "Invalid setup code. 2 attempt(s) left.", UserMessage(err, ModeRegister))
}

func TestRegister_DuplicateCredential(t *testing.T) {
	f := newFixture(t, true)
	f.api.RegisterOptionsRet = json.RawMessage(`{}`)
	f.auth.CreateErr = &AuthenticatorError{Name: "InvalidStateError", Message: "exists"}

	_, err := f.c.Register(context.Background(), "")
	require.ErrorIs(t, err, ErrDuplicateCredential)
	assert.Equal(t, "This passkey already exists on this device.", UserMessage(err, ModeRegister))
}

func TestLogin_HintRejectedFallsBackSilently(t *testing.T) {
	f := newFixture(t, true)
	f.api.LoginOptionsRet = json.RawMessage(`{"challenge":"c","rpId":"localhost"}`)
	f.auth.GetErrs = []error{&AuthenticatorError{Name: "TypeError", Message: "unknown member hints"}, nil}
	f.auth.GetRets = []json.RawMessage{nil, json.RawMessage(`{"id":"cred-1"}`)}
	f.api.LoginVerifyRet = &models.AuthResult{OK: true, User: "admin"}

	res, err := f.c.Login(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "admin", res.User)
	require.Len(t, f.auth.GetOptions, 2)

	var hinted, plain map[string]any
	require.NoError(t, json.Unmarshal(f.auth.GetOptions[0], &hinted))
	require.NoError(t, json.Unmarshal(f.auth.GetOptions[1], &plain))
	assert.Equal(t, []any{"client-device", "hybrid", "security-key"}, hinted["hints"])
	assert.Equal(t, "required", hinted["userVerification"])
	assert.NotContains(t, plain, "hints")
	assert.Equal(t, "localhost", plain["rpId"])

	for _, m := range f.rec.Messages() {
		assert.NotEqual(t, ui.ToneError, m.Tone)
	}
}

func TestLogin_CancelDoesNotFallBack(t *testing.T) {
	f := newFixture(t, true)
	f.api.LoginOptionsRet = json.RawMessage(`{}`)
	f.auth.GetErrs = []error{&AuthenticatorError{Name: "NotAllowedError", Message: "user cancelled"}}

	_, err := f.c.Login(context.Background())

	require.ErrorIs(t, err, ErrCancelled)
	assert.Len(t, f.auth.GetOptions, 1)
	assert.Equal(t, "Sign-in was canceled or timed out. Use your device PIN and try again.", UserMessage(err, ModeLogin))
}

func TestLogin_PendingApprovalIsReturned(t *testing.T) {
	f := newFixture(t, true)
	f.api.LoginOptionsRet = json.RawMessage(`{}`)
	f.auth.GetRets = []json.RawMessage{json.RawMessage(`{"id":"cred-9"}`)}
	f.api.LoginVerifyRet = &models.AuthResult{OK: true, PendingApproval: true, RequestID: "r1", ExpiresIn: 120}

	res, err := f.c.Login(context.Background())

	require.NoError(t, err)
	assert.True(t, res.PendingApproval)
	assert.False(t, f.store.IsAuthenticated(), "pending approval must not create a session")
}

func TestLogin_NoPasskeyOnServer(t *testing.T) {
	f := newFixture(t, false)
	f.api.LoginOptionsErr = &client.APIError{StatusCode: http.StatusBadRequest, Message: "No passkey is registered yet"}

	_, err := f.c.Login(context.Background())
	require.ErrorIs(t, err, ErrNoPasskey)
}

func TestLogin_RateLimitedOptionsLocks(t *testing.T) {
	f := newFixture(t, true)
	f.api.LoginOptionsErr = &client.APIError{
		StatusCode: http.StatusTooManyRequests,
		Message:    "Try again in 30s.",
		RetryAfter: float64(30),
	}

	_, err := f.c.Login(context.Background())
	require.ErrorIs(t, err, lockout.ErrLocked)
	assert.True(t, f.lock.IsLocked())

	calls := f.api.Calls
	_, err = f.c.Login(context.Background())
	require.ErrorIs(t, err, lockout.ErrLocked)
	assert.Equal(t, calls, f.api.Calls, "locked attempts must not reach the server")
}

func TestNoAuthenticator_Unsupported(t *testing.T) {
	f := newFixture(t, true)
	c := NewCoordinator(f.api, nil, f.store, f.lock, f.rec, "admin", nil)

	_, err := c.Login(context.Background())
	require.ErrorIs(t, err, ErrUnsupported)
	assert.Equal(t, 0, f.api.Calls)
}

func TestIsHintRejection(t *testing.T) {
	assert.True(t, IsHintRejection(&AuthenticatorError{Name: "NotSupportedError"}))
	assert.True(t, IsHintRejection(&AuthenticatorError{Name: "UnknownError", Message: "Hint not understood"}))
	assert.False(t, IsHintRejection(&AuthenticatorError{Name: "NotAllowedError", Message: "cancelled"}))
	assert.False(t, IsHintRejection(errors.New("hints")))
}
