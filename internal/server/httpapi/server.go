// Package httpapi exposes the auth and purchase-order services as the JSON
// API consumed by the client.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/podesk/internal/common"
	"github.com/dmitrijs2005/podesk/internal/logging"
	"github.com/dmitrijs2005/podesk/internal/server/auth"
	"github.com/dmitrijs2005/podesk/internal/server/po"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	address string
	logger  logging.Logger
	auth    *auth.Service
	orders  *po.Service
	// rateLimit is the per-IP budget per minute of the sign-in endpoints.
	// Zero disables limiting.
	rateLimit int
	// secureCookie marks the session cookie Secure.
	secureCookie bool

	handler http.Handler
}

type Options struct {
	Address      string
	RateLimit    int
	SecureCookie bool
}

func NewServer(opts Options, l logging.Logger, as *auth.Service, ps *po.Service) *Server {
	if l == nil {
		l = logging.Nop()
	}
	s := &Server{
		address:      opts.Address,
		logger:       l.With("module", "http_server"),
		auth:         as,
		orders:       ps,
		rateLimit:    opts.RateLimit,
		secureCookie: opts.SecureCookie,
	}
	s.handler = s.routes()
	return s
}

// Handler returns the root handler; the API is mounted under /api.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.sessionCookie)

		r.Get(common.RouteAuthStatus, s.handleStatus)
		r.Post(common.RouteAuthLogout, s.handleLogout)
		r.Get(common.RouteLoginPending, s.handlePending)

		r.Group(func(r chi.Router) {
			if s.rateLimit > 0 {
				r.Use(rateLimitByIP(s.rateLimit))
			}
			r.Post(common.RouteRegisterOptions, s.handleRegisterOptions)
			r.Post(common.RouteRegisterVerify, s.handleRegisterVerify)
			r.Post(common.RouteLoginOptions, s.handleLoginOptions)
			r.Post(common.RouteLoginVerify, s.handleLoginVerify)
			r.Post(common.RouteLoginCode, s.handleLoginCode)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireSession)

			r.Get(common.RouteLoginRequests, s.handleListRequests)
			r.Post(common.RouteLoginRequests+"/{id}/approve", s.handleApprove)
			r.Post(common.RouteLoginRequests+"/{id}/reject", s.handleReject)

			r.Get(common.RouteSyncStatus, s.handleSyncStatus)
			r.Get(common.RoutePurchaseOrders, s.handleListOrders)
			r.Post(common.RoutePurchaseOrders, s.handleSaveOrder)
			r.Get(common.RoutePurchaseOrderBin, s.handleListTrash)
			r.Get(common.RoutePurchaseOrders+"/{id}", s.handleGetOrder)
			r.Delete(common.RoutePurchaseOrders+"/{id}", s.handleDeleteOrder)
			r.Post(common.RoutePurchaseOrderBin+"/{id}/restore", s.handleRestore)
			r.Delete(common.RoutePurchaseOrderBin+"/{id}", s.handlePurge)
		})
	})
	return r
}

// Run serves until ctx is cancelled and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

func (s *Server) Serve(ctx context.Context, listen net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-done
	return nil
}
