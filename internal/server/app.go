// Package server wires the development backend: the passkey auth service,
// the purchase-order store and the HTTP API in front of them.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/podesk/internal/common"
	"github.com/dmitrijs2005/podesk/internal/logging"
	"github.com/dmitrijs2005/podesk/internal/server/auth"
	"github.com/dmitrijs2005/podesk/internal/server/config"
	"github.com/dmitrijs2005/podesk/internal/server/httpapi"
	"github.com/dmitrijs2005/podesk/internal/server/po"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

const sweepInterval = 5 * time.Second

type App struct {
	config       *config.Config
	logger       logging.Logger
	authService  *auth.Service
	orderService *po.Service
	server       *httpapi.Server
}

func NewApp(c *config.Config) (*App, error) {
	logger := logging.New(os.Stdout, c.LogFormat, c.LogLevel)
	ctx := context.Background()

	if c.SetupCode == "" {
		code, err := common.MakeRandHexString(4)
		if err != nil {
			return nil, fmt.Errorf("generate setup code: %w", err)
		}
		c.SetupCode = code
		// Logs mask codes, so the operator gets it on stdout.
		fmt.Fprintf(os.Stdout, "First admin setup code: %s\n", code)
		logger.Warn(ctx, "no setup code configured, generated one")
	}

	clock := clockwork.NewRealClock()

	ac := auth.DefaultConfig()
	ac.RPID = c.RPID
	ac.RPName = c.RPName
	ac.Origin = c.Origin
	ac.SetupCode = c.SetupCode
	ac.AccessCode = c.AccessCode
	ac.ApprovalTTL = c.ApprovalTTL
	ac.OnlineWindow = c.OnlineWindow

	as := auth.NewService(ac, clock, logger)
	ps := po.NewService(po.NewMemoryRepository(), clock, logger)
	srv := httpapi.NewServer(httpapi.Options{
		Address:      c.ListenAddr,
		RateLimit:    c.RateLimit,
		SecureCookie: c.SecureCookie,
	}, logger, as, ps)

	return &App{config: c, logger: logger, authService: as, orderService: ps, server: srv}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves until a termination signal arrives or ctx is cancelled.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.server.Run(gctx)
	})
	g.Go(func() error {
		return app.authService.Sweep(gctx, sweepInterval)
	})

	err := g.Wait()
	app.logger.Info(ctx, "Stopped")
	return err
}
