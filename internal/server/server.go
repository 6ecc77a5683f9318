package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/simonvc/custody/internal/host"
	"github.com/simonvc/custody/internal/ledger"
	"go.uber.org/zap"
)

type Config struct {
	Addr string
	Unit ledger.Unit
	// RPS and Burst bound deposits and withdrawals per caller. Zero disables.
	RPS   float64
	Burst int
	// Gatherer backs /metrics. Nil serves the default registry.
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

type Server struct {
	host    *host.Host
	unit    ledger.Unit
	limiter *MapLimiter
	log     *zap.Logger
	router  chi.Router
	addr    string
}

func New(h *host.Host, cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)

	s := &Server{
		host:    h,
		unit:    cfg.Unit,
		limiter: NewMapLimiter(cfg.RPS, cfg.Burst, 10*time.Minute),
		log:     log,
		router:  r,
		addr:    cfg.Addr,
	}

	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(identify)

		r.Get("/balance", s.balance)
		r.With(s.rateLimit).Post("/deposit", s.deposit)
		r.With(s.rateLimit).Post("/withdraw", s.withdraw)

		r.Get("/events", s.listEvents)
		r.Get("/events/ws", s.streamEvents)
	})

	return s
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("custody server listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Handler() http.Handler {
	return s.router
}
