package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"

	"github.com/common-nighthawk/go-figure"
	"github.com/dmitrijs2005/podesk/internal/client/approval"
	"github.com/dmitrijs2005/podesk/internal/client/ceremony"
	"github.com/dmitrijs2005/podesk/internal/client/client"
	"github.com/dmitrijs2005/podesk/internal/client/codelogin"
	"github.com/dmitrijs2005/podesk/internal/client/config"
	"github.com/dmitrijs2005/podesk/internal/client/lockout"
	"github.com/dmitrijs2005/podesk/internal/client/services"
	"github.com/dmitrijs2005/podesk/internal/client/session"
	"github.com/dmitrijs2005/podesk/internal/client/syncer"
	"github.com/dmitrijs2005/podesk/internal/logging"
	"github.com/jonboulle/clockwork"
)

const appName = "podesk"

type App struct {
	config *config.Config
	logger logging.Logger

	api       *client.HTTPClient
	store     *session.Store
	lock      *lockout.Controller
	term      *Terminal
	prompter  *prompter
	workspace *Workspace
	approver  *approval.Approver
	poller    *syncer.Poller
	auth      *services.AuthService

	reader *bufio.Reader
	out    io.Writer
	banner bool
}

// NewApp wires the client for an interactive terminal.
func NewApp(c *config.Config) (*App, error) {
	logger := logging.New(os.Stderr, c.LogFormat, c.LogLevel)

	authn, err := newAuthenticator(c)
	if err != nil {
		return nil, err
	}
	app, err := newApp(c, os.Stdin, os.Stdout, authn, clockwork.NewRealClock(), logger)
	if err != nil {
		return nil, err
	}
	app.banner = true
	return app, nil
}

// newAuthenticator picks the external helper when one is configured and the
// built-in software authenticator otherwise.
func newAuthenticator(c *config.Config) (ceremony.Authenticator, error) {
	if c.AuthenticatorCommand != "" {
		return ceremony.NewExecAuthenticator(c.AuthenticatorCommand), nil
	}
	soft, err := ceremony.NewSoftAuthenticator(originOf(c.ServerURL), c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("software authenticator: %w", err)
	}
	return soft, nil
}

// originOf strips the path from the API base URL.
func originOf(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func newApp(c *config.Config, in io.Reader, out io.Writer, authn ceremony.Authenticator,
	clock clockwork.Clock, logger logging.Logger) (*App, error) {
	api, err := client.NewHTTPClient(c.ServerURL, c.RequestTimeout, logger)
	if err != nil {
		return nil, err
	}

	term := NewTerminal(out)
	store := session.NewStore()
	lock := lockout.New(clock, term)
	ws := NewWorkspace()
	pr := newPrompter(term, clock)

	reqCfg := approval.RequesterConfig{
		Cadence:        c.RequesterCadence,
		MinWait:        c.RequesterMinWait,
		DefaultTimeout: c.ApprovalTimeout,
		MinTimeout:     approval.DefaultRequesterConfig().MinTimeout,
		DriftThreshold: c.DriftThreshold,
	}
	apprCfg := approval.ApproverConfig{PollInterval: c.ApprovalPollInterval, SnoozeWindow: c.SnoozeWindow}

	approver := approval.NewApprover(api, store, clock, pr, term, term, apprCfg, logger)
	poller := syncer.NewPoller(api, store, ws, term, clock, c.SyncInterval, logger)

	as := services.NewAuthService(services.Deps{
		API:       api,
		Store:     store,
		Ceremony:  ceremony.NewCoordinator(api, authn, store, lock, term, c.Username, logger),
		Code:      codelogin.New(api, store, lock, term, c.Username, logger),
		Requester: approval.NewRequester(api, clock, term, reqCfg, logger),
		Approver:  approver,
		Poller:    poller,
		View:      ws,
		Auth:      term,
		Sink:      term,
		Logger:    logger,
	})

	return &App{
		config:    c,
		logger:    logger,
		api:       api,
		store:     store,
		lock:      lock,
		term:      term,
		prompter:  pr,
		workspace: ws,
		approver:  approver,
		poller:    poller,
		auth:      as,
		reader:    bufio.NewReader(in),
		out:       out,
	}, nil
}

// Run greets the user, restores or requests a session and serves the REPL
// until exit. Background work is stopped before it returns.
func (a *App) Run(ctx context.Context) {
	defer a.close()

	if a.banner {
		figure.NewFigure(appName, "cybermedium", true).Print()
		fmt.Fprintln(a.out)
	}
	a.term.Println("Welcome to the podesk client (type 'help' for commands)")

	if err := a.auth.Init(ctx); err != nil {
		a.logger.Warn(ctx, "start-up status check failed", "error", err)
	}

	runREPL(ctx, a, a.reader, a.out)
}

func (a *App) close() {
	a.auth.Close()
	a.lock.Stop()
	_ = a.api.Close()
}

func (a *App) isLoggedIn() bool {
	return a.store.IsAuthenticated()
}

func (a *App) prompt() string {
	return a.term.Prompt(a.store.Snapshot().User, a.prompter.Countdown())
}

func (a *App) println(args ...any) {
	a.term.Println(args...)
}

func (a *App) errorln(msg string) {
	a.term.Errorln(msg)
}
