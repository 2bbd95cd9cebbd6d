// Package dummy provides an in-memory transport.Transport and
// transport.Connection for exercising the core without real sockets.
package dummy

import (
	"bytes"
	"errors"
	"sync"

	"github.com/webcore/htcore/transport"
)

// ErrBroken is returned by Read once the peer side has been marked
// broken via Connection.Break.
var ErrBroken = errors.New("dummy: connection broken")

// Connection is an in-memory transport.Connection a test can feed
// bytes into and inspect writes from.
type Connection struct {
	mu      sync.Mutex
	peerID  string
	pending [][]byte
	written bytes.Buffer
	closed  bool
	broken  bool
	cond    *sync.Cond
}

func NewConnection(peerID string) *Connection {
	c := &Connection{peerID: peerID}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Feed appends b to the queue Read will hand back, in order.
func (c *Connection) Feed(b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pending = append(c.pending, append([]byte(nil), b...))
	c.cond.Broadcast()
}

// Break marks the connection as broken: the next Read (or a Read
// already blocked) returns ErrBroken.
func (c *Connection) Break() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.broken = true
	c.cond.Broadcast()
}

// Written returns everything written to the connection so far.
func (c *Connection) Written() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]byte(nil), c.written.Bytes()...)
}

// Closed reports whether Close has been called.
func (c *Connection) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

func (c *Connection) Read() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for len(c.pending) == 0 && !c.broken && !c.closed {
		c.cond.Wait()
	}

	if len(c.pending) > 0 {
		b := c.pending[0]
		c.pending = c.pending[1:]
		return b, nil
	}

	return nil, ErrBroken
}

func (c *Connection) Write(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.New("dummy: write on closed connection")
	}

	c.written.Write(b)
	return nil
}

func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.cond.Broadcast()
	return nil
}

func (c *Connection) PeerID() string {
	return c.peerID
}

var _ transport.Connection = (*Connection)(nil)

// Transport is an in-memory transport.Transport: tests call Accept to
// simulate a new inbound connection instead of waiting on a real
// listener.
type Transport struct {
	mu     sync.Mutex
	bound  bool
	onConn transport.OnConnection
	closed bool
}

func New() *Transport {
	return &Transport{}
}

func (t *Transport) Bind(_ uint16, cb transport.OnConnection) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.bound = true
	t.onConn = cb
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	return nil
}

// Accept simulates a new inbound connection, invoking the callback
// passed to Bind synchronously. Does nothing if Bind was never called
// or the transport was already closed.
func (t *Transport) Accept(conn *Connection) {
	t.mu.Lock()
	cb := t.onConn
	bound := t.bound && !t.closed
	t.mu.Unlock()

	if bound && cb != nil {
		cb(conn)
	}
}

var _ transport.Transport = (*Transport)(nil)
