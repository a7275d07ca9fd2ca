package relay

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/sameehj/gridvnc/pkg/grid"
)

type frame struct {
	typ  int
	data []byte
}

// pipeConn is an in-memory Conn. Frames pushed with send are returned by
// ReadMessage; hangup makes ReadMessage return io.EOF.
type pipeConn struct {
	in     chan frame
	closed chan struct{}
	writes chan frame

	mu        sync.Mutex
	written   []frame
	closeOnce sync.Once
	closes    int
	writeErr  error
}

func newPipeConn() *pipeConn {
	return &pipeConn{
		in:     make(chan frame, 16),
		closed: make(chan struct{}),
		writes: make(chan frame, 64),
	}
}

func (c *pipeConn) send(typ int, data []byte) { c.in <- frame{typ: typ, data: data} }

func (c *pipeConn) hangup() { close(c.in) }

func (c *pipeConn) ReadMessage() (int, []byte, error) {
	select {
	case f, ok := <-c.in:
		if !ok {
			return 0, nil, io.EOF
		}
		return f.typ, f.data, nil
	case <-c.closed:
		return 0, nil, net.ErrClosed
	}
}

func (c *pipeConn) WriteMessage(typ int, data []byte) error {
	select {
	case <-c.closed:
		return net.ErrClosed
	default:
	}
	c.mu.Lock()
	if c.writeErr != nil {
		err := c.writeErr
		c.mu.Unlock()
		return err
	}
	f := frame{typ: typ, data: append([]byte(nil), data...)}
	c.written = append(c.written, f)
	c.mu.Unlock()
	c.writes <- f
	return nil
}

func (c *pipeConn) Close() error {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *pipeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *pipeConn) frames() []frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]frame, len(c.written))
	copy(out, c.written)
	return out
}

func (c *pipeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

type staticFetcher struct {
	snapshot *grid.Snapshot
	err      error
}

func (f staticFetcher) Status(context.Context) (*grid.Snapshot, error) {
	return f.snapshot, f.err
}

// recordingDialer hands out a prepared connection and remembers every URL
// it was asked to dial.
type recordingDialer struct {
	mu   sync.Mutex
	urls []string
	conn Conn
	err  error
}

func (d *recordingDialer) Dial(_ context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, url)
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

func (d *recordingDialer) dialed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...)
}

var errDialRefused = errors.New("connection refused")

func testSnapshot() *grid.Snapshot {
	return &grid.Snapshot{
		Ready: true,
		Nodes: []grid.Node{
			{
				ID:  "N1",
				URI: "http://10.1.1.1:5555",
				Slots: []grid.Slot{
					{
						ID:         "s1",
						Stereotype: map[string]any{"se:vncEnabled": true, "se:vncPort": float64(5901)},
						Session:    &grid.SessionRecord{SessionID: "abc"},
					},
					{
						ID:         "s2",
						Stereotype: map[string]any{"browserName": "firefox"},
						Session:    &grid.SessionRecord{SessionID: "hidden"},
					},
				},
			},
			{
				ID:  "N2",
				URI: "http://:5555",
				Slots: []grid.Slot{
					{
						ID:         "s3",
						Stereotype: map[string]any{"se:vncEnabled": true},
						Session:    &grid.SessionRecord{SessionID: "nohost"},
					},
				},
			},
		},
	}
}
