package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/sameehj/gridvnc/pkg/grid"
	"github.com/sameehj/gridvnc/pkg/metrics"
	"github.com/sameehj/gridvnc/pkg/relay"
)

const shutdownTimeout = 5 * time.Second

var (
	errRelayLimit   = errors.New("too many relays")
	errShuttingDown = errors.New("server shutting down")
)

// GridAPI is the subset of the grid client the gateway needs.
type GridAPI interface {
	grid.Fetcher
	CreateSession(ctx context.Context, desiredCapabilities map[string]any) (map[string]any, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteNode(ctx context.Context, id string) error
	DrainNode(ctx context.Context, id string) error
	Queue(ctx context.Context) ([]any, error)
	ClearQueue(ctx context.Context) error
}

// PublicConfig is the configuration reported to dashboard clients.
type PublicConfig struct {
	GridURL     string
	VNCPassword string
	Host        string
	Port        int
	Debug       bool
}

type Server struct {
	addr        string
	grid        GridAPI
	engine      *relay.Engine
	authorizer  Authorizer
	maxSessions int
	logger      *slog.Logger
	metrics     *metrics.Relay
	public      PublicConfig
	staticDir   string
	origins     originPolicy
	upgrader    websocket.Upgrader
	started     time.Time

	mu      sync.Mutex
	relays  map[string]*relay.Session
	closing bool
	active  sync.WaitGroup
}

func NewServer(addr string, gridAPI GridAPI, engine *relay.Engine, authorizer Authorizer) *Server {
	if authorizer == nil {
		authorizer = NoopAuthorizer{}
	}
	s := &Server{
		addr:       addr,
		grid:       gridAPI,
		engine:     engine,
		authorizer: authorizer,
		started:    time.Now(),
		relays:     make(map[string]*relay.Session),
	}
	s.SetAllowedOrigins(nil)
	return s
}

func (s *Server) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

func (s *Server) SetMetrics(m *metrics.Relay) {
	s.metrics = m
}

func (s *Server) SetMaxSessions(max int) {
	s.maxSessions = max
}

func (s *Server) SetPublicConfig(cfg PublicConfig) {
	s.public = cfg
}

// SetStaticDir serves dashboard assets from dir for unmatched paths.
func (s *Server) SetStaticDir(dir string) {
	s.staticDir = dir
}

// SetAllowedOrigins restricts CORS and websocket origins. Empty allows all.
func (s *Server) SetAllowedOrigins(origins []string) {
	s.origins = newOriginPolicy(origins)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  32 * 1024,
		WriteBufferSize: 32 * 1024,
		CheckOrigin:     s.origins.checkRequest,
	}
}

// Handler returns the complete HTTP surface so it can be mounted elsewhere.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/vnc/{sessionId}", s.handleVNC).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	v1 := r.PathPrefix(apiPrefix).Subrouter()
	v1.MethodNotAllowedHandler = http.HandlerFunc(s.handleMethodNotAllowed)
	s.registerAPI(v1)
	s.registerCompat(r)
	r.NotFoundHandler = http.HandlerFunc(s.handleFallback)
	r.MethodNotAllowedHandler = http.HandlerFunc(s.handleMethodNotAllowed)
	return s.withCORS(s.withAccessLog(r))
}

// Start listens on the configured address and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.logError("gateway_listen_failed", "addr", s.addr, "error", err)
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled. It returns once the
// HTTP server has drained and every relay has been closed and unregistered.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-runCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logError("gateway_shutdown_failed", "error", err)
		}
		s.abortRelays(shutdownCtx)
	}()

	s.logInfo("gateway_listening", "addr", ln.Addr().String())
	serveErr := httpServer.Serve(ln)
	if errors.Is(serveErr, http.ErrServerClosed) {
		serveErr = nil
	} else if serveErr != nil {
		s.logError("gateway_serve_failed", "error", serveErr)
	}

	stop()
	<-stopped
	s.logInfo("gateway_stopped", "addr", ln.Addr().String())
	if serveErr != nil {
		return serveErr
	}
	return ctx.Err()
}

func (s *Server) handleVNC(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]
	remote := r.RemoteAddr

	if err := s.authorizer.Allow(r.Context(), remote); err != nil {
		s.logWarn("relay_denied", "remote", remote, "error", err)
		writeJSON(w, http.StatusForbidden, map[string]any{"error": "forbidden"})
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logWarn("relay_upgrade_failed", "remote", remote, "error", err)
		return
	}

	sess := relay.NewSession(sessionID, remote, conn)
	if err := s.register(sess); err != nil {
		code := websocket.ClosePolicyViolation
		if errors.Is(err, errShuttingDown) {
			code = websocket.CloseGoingAway
		}
		s.logWarn("relay_refused", "remote", remote, "limit", s.maxSessions, "reason", err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, err.Error()),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}
	defer s.unregister(sess.ID)

	s.logInfo("session_start", "relay", sess.ID, "session", sessionID, "remote", remote)
	if err := s.engine.Relay(r.Context(), sess); err != nil {
		s.logInfo("session_end", "relay", sess.ID, "session", sessionID, "state", sess.State().String(), "reason", err)
		return
	}
	s.logInfo("session_end", "relay", sess.ID, "session", sessionID, "state", sess.State().String())
}

// register admits sess unless the server is closing or the relay limit is
// reached.
func (s *Server) register(sess *relay.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return errShuttingDown
	}
	if s.maxSessions > 0 && len(s.relays) >= s.maxSessions {
		return errRelayLimit
	}
	s.relays[sess.ID] = sess
	s.active.Add(1)
	return nil
}

func (s *Server) unregister(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.relays[id]; ok {
		delete(s.relays, id)
		s.active.Done()
	}
}

func (s *Server) relayCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.relays)
}

// abortRelays refuses new relays, closes the running ones and waits for their
// handlers to unregister or for ctx to expire.
func (s *Server) abortRelays(ctx context.Context) {
	s.mu.Lock()
	s.closing = true
	sessions := make([]*relay.Session, 0, len(s.relays))
	for _, sess := range s.relays {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.Abort()
	}

	done := make(chan struct{})
	go func() {
		s.active.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logWarn("relays_abort_timeout", "remaining", s.relayCount())
	}
}

// ListRelays returns a view of every relay currently registered.
func (s *Server) ListRelays() []RelayInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RelayInfo, 0, len(s.relays))
	for _, sess := range s.relays {
		out = append(out, newRelayInfo(sess))
	}
	return out
}

func (s *Server) Addr() string {
	return s.addr
}

func (s *Server) String() string {
	return fmt.Sprintf("gateway(%s)", s.addr)
}

func (s *Server) logDebug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *Server) logInfo(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *Server) logWarn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

func (s *Server) logError(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Error(msg, args...)
	}
}
