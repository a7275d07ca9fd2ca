package relay

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is a framed, message-oriented connection. *websocket.Conn satisfies
// it. Close must be safe to call while a ReadMessage is in flight.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens the remote side of a relay.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer dials remote display servers over websocket.
type WebsocketDialer struct {
	HandshakeTimeout time.Duration
	Header           http.Header
}

func (d WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, url, d.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

type controlWriter interface {
	WriteControl(messageType int, data []byte, deadline time.Time) error
}

const closeGrace = time.Second

// closeConn sends a normal-closure frame when the transport supports it, then
// closes the connection.
func closeConn(conn Conn) error {
	if conn == nil {
		return nil
	}
	if cw, ok := conn.(controlWriter); ok {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = cw.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
	}
	return conn.Close()
}
