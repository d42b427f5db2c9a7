package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/randalmurphal/claude-relay/relay"
)

// Server serves the websocket transport and admin endpoints for a Runner.
type Server struct {
	runner         *relay.Runner
	router         *mux.Router
	upgrader       websocket.Upgrader
	gatherer       prometheus.Gatherer
	allowedOrigins []string
	logger         *slog.Logger

	// Runs outlive the connection that started them; they stop on abort or
	// when runCtx is cancelled.
	runCtx    context.Context
	cancelRun context.CancelFunc
	runs      sync.WaitGroup
	closing   atomic.Bool

	connsMu sync.Mutex
	conns   map[string]*conn
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithAllowedOrigins accepts websocket upgrades from these Origin values in
// addition to same-host requests. "*" accepts any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.allowedOrigins = origins }
}

// WithGatherer serves metrics from g at /metrics. Without it /metrics is
// not routed.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// New creates a Server for runner.
func New(runner *relay.Runner, opts ...Option) *Server {
	s := &Server{
		runner: runner,
		logger: slog.Default(),
		conns:  make(map[string]*conn),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.runCtx, s.cancelRun = context.WithCancel(context.Background())
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	s.router = mux.NewRouter()
	s.router.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)
	s.router.HandleFunc("/health", handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/api/sessions", s.handleListSessions).Methods(http.MethodGet)
	s.router.HandleFunc("/api/sessions/{id}", s.handleGetSession).Methods(http.MethodGet)
	if s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	return s
}

// Handler returns the HTTP handler for all routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

// checkOrigin accepts requests without an Origin header, same-host origins
// and configured origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if slices.Contains(s.allowedOrigins, "*") || slices.Contains(s.allowedOrigins, origin) {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.closing.Load() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}

	c := newConn(s, ws)
	s.track(c)
	defer s.untrack(c)

	c.logger.Info("client connected", slog.String("remote", r.RemoteAddr))
	c.serve()
	c.logger.Info("client disconnected")
}

// startRun runs one command in the background on behalf of c.
func (s *Server) startRun(c *conn, prompt string, opts relay.Options) {
	sink := c.newRunSink()
	if s.closing.Load() {
		_ = sink.Send(relay.ErrorEvent{Error: "server shutting down"})
		return
	}

	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		if err := s.runner.Run(s.runCtx, prompt, opts, sink); err != nil {
			c.logger.Debug("run failed", slog.Any("error", err))
		}
	}()
}

func (s *Server) track(c *conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	s.conns[c.id] = c
}

func (s *Server) untrack(c *conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	delete(s.conns, c.id)
}

// Shutdown aborts every registered run, closes client connections and
// waits for run goroutines to return or ctx to end. The HTTP listener is
// owned by the caller and should be shut down first.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closing.Store(true)

	abortErr := s.runner.AbortAll(ctx)

	s.connsMu.Lock()
	for _, c := range s.conns {
		c.close()
	}
	s.connsMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.runs.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.cancelRun()
		return fmt.Errorf("wait for runs: %w", ctx.Err())
	}
	s.cancelRun()

	if abortErr != nil {
		return fmt.Errorf("abort sessions: %w", abortErr)
	}
	return nil
}

// writeWait bounds a single websocket write.
const writeWait = 10 * time.Second
