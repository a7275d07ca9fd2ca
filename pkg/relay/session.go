package relay

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
)

type State int

const (
	StateRequested State = iota
	StateLocating
	StateUnavailable
	StateNotFound
	StateDisplayDisabled
	StateEndpointInvalid
	StateConnecting
	StateConnectFailed
	StateRelaying
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateRequested:
		return "requested"
	case StateLocating:
		return "locating"
	case StateUnavailable:
		return "unavailable"
	case StateNotFound:
		return "not_found"
	case StateDisplayDisabled:
		return "display_disabled"
	case StateEndpointInvalid:
		return "endpoint_invalid"
	case StateConnecting:
		return "connecting"
	case StateConnectFailed:
		return "connect_failed"
	case StateRelaying:
		return "relaying"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is one relay between a client and a remote display.
type Session struct {
	ID         string
	SessionID  string
	RemoteAddr string
	StartedAt  time.Time

	client Conn

	mu       sync.Mutex
	remote   Conn
	endpoint Endpoint
	history  []State

	clientOnce sync.Once
	remoteOnce sync.Once
	clientErr  error
	remoteErr  error
}

func NewSession(sessionID, remoteAddr string, client Conn) *Session {
	return &Session{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		RemoteAddr: remoteAddr,
		StartedAt:  time.Now(),
		client:     client,
		history:    []State{StateRequested},
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history[len(s.history)-1]
}

// Transitions returns every state the session has been in, oldest first.
func (s *Session) Transitions() []State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]State, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Session) Endpoint() Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endpoint
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.history[len(s.history)-1] == StateClosed {
		return
	}
	s.history = append(s.history, state)
}

func (s *Session) setRemote(conn Conn, ep Endpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remote = conn
	s.endpoint = ep
}

func (s *Session) closeClient() {
	s.clientOnce.Do(func() {
		s.clientErr = closeConn(s.client)
	})
}

func (s *Session) closeRemote() {
	s.mu.Lock()
	remote := s.remote
	s.mu.Unlock()
	if remote == nil {
		return
	}
	s.remoteOnce.Do(func() {
		s.remoteErr = closeConn(remote)
	})
}

// Abort closes both connections, which ends any forwarding in progress. The
// engine still performs the final transition to closed.
func (s *Session) Abort() {
	s.closeRemote()
	s.closeClient()
}

// close tears down both connections and marks the session closed.
func (s *Session) close() error {
	s.closeRemote()
	s.closeClient()
	s.setState(StateClosed)
	return multierr.Combine(s.remoteErr, s.clientErr)
}
