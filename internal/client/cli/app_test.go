package cli

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/dmitrijs2005/podesk/internal/client/ceremony"
	"github.com/dmitrijs2005/podesk/internal/client/client"
	"github.com/dmitrijs2005/podesk/internal/client/config"
	"github.com/dmitrijs2005/podesk/internal/client/models"
	"github.com/dmitrijs2005/podesk/internal/client/syncer"
	"github.com/dmitrijs2005/podesk/internal/logging"
	"github.com/dmitrijs2005/podesk/internal/server/auth"
	"github.com/dmitrijs2005/podesk/internal/server/httpapi"
	"github.com/dmitrijs2005/podesk/internal/server/po"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const setupCode = "setup-123"

var ctx = context.Background()

// syncBuffer is a bytes.Buffer safe for the REPL and the pollers at once.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type backend struct {
	ts     *httptest.Server
	orders *po.Service
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	cfg := auth.DefaultConfig()
	cfg.SetupCode = setupCode
	as := auth.NewService(cfg, nil, nil)
	ps := po.NewService(po.NewMemoryRepository(), nil, nil)
	ts := httptest.NewServer(httpapi.NewServer(httpapi.Options{}, nil, as, ps).Handler())
	t.Cleanup(ts.Close)
	return &backend{ts: ts, orders: ps}
}

func noTerminal(t *testing.T) {
	t.Helper()
	orig := isTerminal
	isTerminal = func(int) bool { return false }
	t.Cleanup(func() { isTerminal = orig })
}

func newTestApp(t *testing.T, b *backend, input string, key *ceremony.SoftAuthenticator) (*App, *syncBuffer) {
	t.Helper()
	noTerminal(t)

	c := &config.Config{}
	c.LoadDefaults()
	c.ServerURL = b.ts.URL + "/api"

	out := &syncBuffer{}
	app, err := newApp(c, strings.NewReader(input), out, key, clockwork.NewRealClock(), logging.Nop())
	require.NoError(t, err)
	t.Cleanup(app.close)
	return app, out
}

func newKey(t *testing.T) *ceremony.SoftAuthenticator {
	t.Helper()
	k, err := ceremony.NewSoftAuthenticator("", "")
	require.NoError(t, err)
	return k
}

func saveOrder(t *testing.T, b *backend, formNo string) int64 {
	t.Helper()
	res, err := b.orders.Save(ctx, 0, po.Payload{Fields: map[string]string{"formNo": formNo, "companyName": "Acme"}})
	require.NoError(t, err)
	return res.ID
}

func TestApp_RegisterSessionOverREPL(t *testing.T) {
	b := newBackend(t)
	app, out := newTestApp(t, b, strings.Join([]string{
		"list",
		"register",
		setupCode,
		"status",
		"list",
		"logout",
		"exit",
		"",
	}, "\n"), newKey(t))

	app.Run(ctx)

	text := out.String()
	assert.Contains(t, text, "Use 'register' with the first admin setup code")
	assert.Contains(t, text, "Sign in first.")
	assert.Contains(t, text, "Passkey created")
	assert.Contains(t, text, "Signed in as admin")
	assert.Contains(t, text, "No saved purchase orders.")
	assert.Contains(t, text, "Signed out. Sign in again.")
	assert.Contains(t, text, "Bye!")
	assert.False(t, app.isLoggedIn())
}

func TestApp_CodeLoginOverREPL(t *testing.T) {
	b := newBackend(t)
	saveOrder(t, b, "PO-1")
	app, out := newTestApp(t, b, "code\nwrong\ncode\n"+setupCode+"\nlist\n", newKey(t))

	app.Run(ctx)

	text := out.String()
	assert.Contains(t, text, "Invalid access code. 4 attempt(s) left.")
	assert.Contains(t, text, "Sign-in successful")
	assert.Contains(t, text, "PO-1")
	assert.Contains(t, text, "Acme")
}

func signInWithCode(t *testing.T, app *App) {
	t.Helper()
	require.NoError(t, app.auth.Init(ctx))
	require.NoError(t, app.auth.LoginWithCode(ctx, setupCode))
}

func TestApp_OpenedRecordRemovedElsewhere(t *testing.T) {
	b := newBackend(t)
	id := saveOrder(t, b, "PO-7")
	app, out := newTestApp(t, b, "", newKey(t))
	signInWithCode(t, app)

	require.NoError(t, app.open(ctx, []string{strconv.FormatInt(id, 10)}))
	assert.Equal(t, id, app.workspace.OpenRecord().ID)
	assert.Contains(t, out.String(), "Opened #"+strconv.FormatInt(id, 10)+" PO-7")

	_, err := b.orders.Delete(ctx, id)
	require.NoError(t, err)

	require.NoError(t, app.sync(ctx, nil))
	assert.True(t, app.workspace.OpenRecord().IsDraft())
	assert.Contains(t, out.String(), syncer.NoticeDeleted)

	_, trash := app.workspace.Lists()
	assert.Len(t, trash, 1)
}

func TestApp_EditedRecordIsKept(t *testing.T) {
	b := newBackend(t)
	id := saveOrder(t, b, "PO-8")
	app, out := newTestApp(t, b, "", newKey(t))
	signInWithCode(t, app)

	require.NoError(t, app.open(ctx, []string{strconv.FormatInt(id, 10)}))
	require.NoError(t, app.edit(ctx, nil))

	err := app.open(ctx, []string{strconv.FormatInt(id, 10)})
	assert.ErrorIs(t, err, ErrUnsaved)

	_, err = b.orders.Delete(ctx, id)
	require.NoError(t, err)
	require.NoError(t, app.sync(ctx, nil))

	open := app.workspace.OpenRecord()
	assert.Equal(t, id, open.ID)
	assert.True(t, open.Dirty)
	assert.Contains(t, out.String(), syncer.NoticeDeleted)

	require.NoError(t, app.closeRecord(ctx, nil))
	assert.True(t, app.workspace.OpenRecord().IsDraft())
}

func TestApp_OpenErrors(t *testing.T) {
	b := newBackend(t)
	app, _ := newTestApp(t, b, "", newKey(t))
	signInWithCode(t, app)

	assert.EqualError(t, app.open(ctx, nil), "usage: open <id>")
	assert.Error(t, app.open(ctx, []string{"abc"}))
	assert.EqualError(t, app.open(ctx, []string{"42"}), "purchase order #42 was not found")
}

func TestApp_ApproveRequestFromAnotherDevice(t *testing.T) {
	b := newBackend(t)
	trusted, other := newKey(t), newKey(t)
	admin, out := newTestApp(t, b, "", trusted)
	require.NoError(t, admin.auth.Init(ctx))
	require.NoError(t, admin.auth.Register(ctx, setupCode))

	opts, err := admin.api.RegisterOptions(ctx, "admin", "")
	require.NoError(t, err)
	cred, err := other.Create(ctx, opts)
	require.NoError(t, err)
	_, err = admin.api.RegisterVerify(ctx, cred)
	require.NoError(t, err)
	require.NoError(t, admin.auth.Logout(ctx))
	require.NoError(t, admin.auth.LoginPasskey(ctx))
	require.True(t, admin.store.CanApprove())

	phone, err := client.NewHTTPClient(b.ts.URL+"/api", 0, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = phone.Close() })
	opts, err = phone.LoginOptions(ctx, "admin")
	require.NoError(t, err)
	assertion, err := other.Get(ctx, opts)
	require.NoError(t, err)
	res, err := phone.LoginVerify(ctx, assertion)
	require.NoError(t, err)
	require.True(t, res.PendingApproval)

	assert.ErrorIs(t, admin.approve(ctx, nil), errNoOpenRequest)

	require.NoError(t, admin.requests(ctx, nil))
	id, ok := admin.approver.Current()
	require.True(t, ok)
	assert.Equal(t, res.RequestID, id)
	assert.Contains(t, out.String(), "Sign-in request")
	assert.NotEmpty(t, admin.prompter.Countdown())

	require.NoError(t, admin.approve(ctx, nil))
	assert.Contains(t, out.String(), "Login request approved")
	assert.Empty(t, admin.prompter.Countdown())

	pending, err := phone.PendingLogin(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.PendingStateApproved, pending.Status)
}

func TestOriginOf(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:8080", originOf("http://127.0.0.1:8080/api"))
	assert.Equal(t, "https://po.example", originOf("https://po.example"))
	assert.Empty(t, originOf("not a url"))
}

func TestNewAuthenticator(t *testing.T) {
	c := &config.Config{}
	c.LoadDefaults()

	c.AuthenticatorCommand = "pk-helper"
	a, err := newAuthenticator(c)
	require.NoError(t, err)
	assert.IsType(t, &ceremony.ExecAuthenticator{}, a)

	c.AuthenticatorCommand = ""
	c.KeyFile = ""
	a, err = newAuthenticator(c)
	require.NoError(t, err)
	assert.IsType(t, &ceremony.SoftAuthenticator{}, a)
}
