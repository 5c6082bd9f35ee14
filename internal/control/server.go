// internal/control/server.go
package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xkilldash9x/applicant-courier/internal/config"
	"github.com/xkilldash9x/applicant-courier/internal/store"
)

const (
	requestTimeout = 60 * time.Second
	maxBodyBytes   = 64 * 1024
)

// StateWatcher streams RunState changes.
type StateWatcher interface {
	Watch(ctx context.Context) <-chan store.RunState
}

// Server is the HTTP and websocket control surface.
type Server struct {
	cfg        config.ServerConfig
	dispatcher *Dispatcher
	watcher    StateWatcher
	hub        *Hub
	logger     *zap.Logger
	router     chi.Router
}

// NewServer wires the routes. Nothing listens until Run or Serve.
func NewServer(cfg config.ServerConfig, d *Dispatcher, w StateWatcher, logger *zap.Logger) *Server {
	s := &Server{
		cfg:        cfg,
		dispatcher: d,
		watcher:    w,
		hub:        NewHub(d, logger),
		logger:     logger.Named("control"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// The socket is long-lived and stays outside the timeout group.
	r.Get("/ws", s.hub.HandleWS)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		r.Get("/healthz", s.handleHealthCheck)
		r.Route("/api/v1", func(r chi.Router) {
			r.Post("/command", s.handleCommand)
			r.Get("/state", s.handleState)
		})
	})
	return r
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the hub and serves HTTP on ln. It shuts down gracefully when ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	hubCtx, cancelHub := context.WithCancel(ctx)
	defer cancelHub()
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		s.hub.Run(hubCtx, s.watcher.Watch(hubCtx))
	}()

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()
	s.logger.Info("Control server listening.", zap.String("address", ln.Addr().String()))

	var err error
	select {
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	case <-ctx.Done():
		s.logger.Info("Shutting down control server.")
		timeout := s.cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			s.logger.Error("HTTP server shutdown error.", zap.Error(serr))
			err = serr
		}
		<-serveErr
	}

	// Hijacked socket connections are closed by the hub, not by Shutdown.
	cancelHub()
	<-hubDone
	s.logger.Info("Control server stopped.")
	return err
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.respond(w, failure(http.StatusBadRequest, msgInvalidFormat))
		return
	}
	var cmd Command
	if err := json.Unmarshal(body, &cmd); err != nil {
		s.respond(w, failure(http.StatusBadRequest, msgInvalidFormat))
		return
	}
	s.logger.Debug("Received command.",
		zap.String("type", cmd.Type),
		zap.String("request_id", middleware.GetReqID(r.Context())))
	s.respond(w, s.dispatcher.Dispatch(r.Context(), cmd))
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.dispatcher.Dispatch(r.Context(), Command{Type: TypeGetState}))
}

func (s *Server) respond(w http.ResponseWriter, resp Response) {
	code := resp.Code
	if code == 0 {
		code = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("Failed to encode response.", zap.Error(err))
	}
}
