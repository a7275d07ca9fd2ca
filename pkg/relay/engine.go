// Package relay bridges a client websocket to the VNC display of a grid
// session. Frames are forwarded unmodified; the display protocol itself is
// never interpreted.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/sameehj/gridvnc/pkg/grid"
	"github.com/sameehj/gridvnc/pkg/metrics"
)

const DefaultDialTimeout = 10 * time.Second

var (
	ErrDisplayNotEnabled   = errors.New("display not enabled")
	ErrRemoteConnectFailed = errors.New("remote connect failed")
)

// Diagnostic messages sent to the client before it is closed.
const (
	MsgSessionNotFound     = "Session not found"
	MsgDisplayNotEnabled   = "VNC not enabled for this session"
	MsgTopologyUnavailable = "Grid topology unavailable"
)

type Engine struct {
	fetcher     grid.Fetcher
	dialer      Dialer
	logger      *slog.Logger
	metrics     *metrics.Relay
	dialTimeout time.Duration
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithMetrics(m *metrics.Relay) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithDialTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.dialTimeout = d
		}
	}
}

func NewEngine(fetcher grid.Fetcher, dialer Dialer, opts ...Option) *Engine {
	if dialer == nil {
		dialer = WebsocketDialer{HandshakeTimeout: DefaultDialTimeout}
	}
	e := &Engine{
		fetcher:     fetcher,
		dialer:      dialer,
		dialTimeout: DefaultDialTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Serve relays client to the display of sessionID until either side stops.
func (e *Engine) Serve(ctx context.Context, sessionID string, client Conn) error {
	return e.Relay(ctx, NewSession(sessionID, "", client))
}

// Relay runs sess to completion. Both connections are closed on return. The
// returned error classifies why no relay took place; nil means frames were
// relayed until one side closed.
func (e *Engine) Relay(ctx context.Context, sess *Session) error {
	sess.setState(StateLocating)

	snapshot, err := e.fetcher.Status(ctx)
	if err != nil {
		return e.reject(sess, StateUnavailable, metrics.OutcomeTopologyUnavailable, MsgTopologyUnavailable, err)
	}

	loc, err := grid.Locate(snapshot, sess.SessionID)
	if err != nil {
		return e.reject(sess, StateNotFound, metrics.OutcomeNotFound, MsgSessionNotFound, err)
	}
	if !loc.DisplayEnabled {
		err := fmt.Errorf("%w: session %s", ErrDisplayNotEnabled, sess.SessionID)
		return e.reject(sess, StateDisplayDisabled, metrics.OutcomeDisplayDisabled, MsgDisplayNotEnabled, err)
	}

	endpoint, err := Resolve(loc.NodeURI, loc.DisplayPort)
	if err != nil {
		return e.reject(sess, StateEndpointInvalid, metrics.OutcomeEndpointInvalid, err.Error(), err)
	}

	sess.setState(StateConnecting)
	e.logInfo("relay_connecting", "relay", sess.ID, "session", sess.SessionID, "node", loc.NodeID, "target", endpoint.URL())

	dialCtx, cancel := context.WithTimeout(ctx, e.dialTimeout)
	remote, err := e.dialer.Dial(dialCtx, endpoint.URL())
	cancel()
	if err != nil {
		err = fmt.Errorf("%w: %s: %w", ErrRemoteConnectFailed, endpoint.URL(), err)
		e.logError("relay_dial_failed", "relay", sess.ID, "session", sess.SessionID, "error", err)
		return e.reject(sess, StateConnectFailed, metrics.OutcomeConnectFailed, err.Error(), err)
	}
	sess.setRemote(remote, endpoint)
	sess.setState(StateRelaying)

	e.metrics.RelayStarted()
	defer e.metrics.RelayFinished()
	e.logInfo("relay_start", "relay", sess.ID, "session", sess.SessionID, "target", endpoint.URL())

	var g errgroup.Group
	g.Go(func() error {
		defer sess.closeRemote()
		return e.forward(sess, sess.client, remote, metrics.DirectionClientToRemote, true)
	})
	g.Go(func() error {
		defer sess.closeClient()
		return e.forward(sess, remote, sess.client, metrics.DirectionRemoteToClient, false)
	})
	if err := g.Wait(); err != nil {
		e.logError("forward_error", "relay", sess.ID, "session", sess.SessionID, "error", err)
	}

	if err := sess.close(); err != nil {
		e.logDebug("relay_close_error", "relay", sess.ID, "error", err)
	}
	e.metrics.ObserveOutcome(metrics.OutcomeClosed)
	e.logInfo("relay_end", "relay", sess.ID, "session", sess.SessionID, "duration", time.Since(sess.StartedAt).String())
	return nil
}

// forward copies frames from src to dst in receipt order until a read or
// write fails. Frames bound for the display are always sent as binary; an
// empty frame from the display ends the loop. Ordinary closures return nil.
func (e *Engine) forward(sess *Session, src, dst Conn, direction string, toRemote bool) error {
	for {
		messageType, data, err := src.ReadMessage()
		if err != nil {
			return e.forwardEnd(sess, direction, "read", err)
		}
		if toRemote {
			messageType = websocket.BinaryMessage
		} else if len(data) == 0 {
			e.logDebug("forward_stop", "relay", sess.ID, "direction", direction, "reason", "empty frame")
			return nil
		}
		if err := dst.WriteMessage(messageType, data); err != nil {
			return e.forwardEnd(sess, direction, "write", err)
		}
		e.metrics.ObserveFrame(direction, len(data))
	}
}

func (e *Engine) reject(sess *Session, state State, outcome, message string, cause error) error {
	sess.setState(state)
	if err := sendDiagnostic(sess.client, message); err != nil {
		e.logDebug("diagnostic_send_failed", "relay", sess.ID, "error", err)
	}
	_ = sess.close()
	e.metrics.ObserveOutcome(outcome)
	e.logWarn("relay_rejected", "relay", sess.ID, "session", sess.SessionID, "state", state.String(), "error", cause)
	return cause
}

func sendDiagnostic(conn Conn, message string) error {
	data, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (e *Engine) forwardEnd(sess *Session, direction, op string, err error) error {
	if isClosure(err) {
		e.logDebug("forward_stop", "relay", sess.ID, "direction", direction, "op", op, "reason", err)
		return nil
	}
	return fmt.Errorf("%s %s: %w", direction, op, err)
}

// isClosure reports errors that mean the peer or the other loop closed the
// connection.
func isClosure(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, websocket.ErrCloseSent) ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived)
}

func (e *Engine) logDebug(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Debug(msg, args...)
	}
}

func (e *Engine) logInfo(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Info(msg, args...)
	}
}

func (e *Engine) logWarn(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Warn(msg, args...)
	}
}

func (e *Engine) logError(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Error(msg, args...)
	}
}
