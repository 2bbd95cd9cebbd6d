package transport

import (
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// TCP is the default, net-backed Transport implementation: an accept
// loop that periodically re-arms its own deadline so Close can interrupt a blocked Accept
// without needing a second goroutine or a context.
type TCP struct {
	// ReadTimeout bounds how long a Connection.Read may block before
	// returning an error. Zero disables the deadline.
	ReadTimeout time.Duration
	// AcceptInterval controls how often Accept's deadline is re-armed
	// to check for shutdown. Defaults to 2 seconds.
	AcceptInterval time.Duration
	// ReadBufferSize sizes each connection's read buffer.
	ReadBufferSize int

	listener *net.TCPListener
	stopped  atomic.Bool
	wg       sync.WaitGroup
}

func NewTCP() *TCP {
	return &TCP{
		ReadTimeout:    90 * time.Second,
		AcceptInterval: 2 * time.Second,
		ReadBufferSize: 4096,
	}
}

func (t *TCP) Bind(port uint16, cb OnConnection) error {
	addr := &net.TCPAddr{Port: int(port)}
	listener, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return err
	}

	t.listener = listener
	t.wg.Add(1)

	go t.acceptLoop(cb)

	return nil
}

func (t *TCP) acceptLoop(cb OnConnection) {
	defer t.wg.Done()

	for !t.stopped.Load() {
		_ = t.listener.SetDeadline(time.Now().Add(t.AcceptInterval))

		conn, err := t.listener.Accept()
		if err != nil {
			if isTimeout(err) {
				continue
			}

			return
		}

		cb(newTCPConnection(conn, t.ReadTimeout, t.ReadBufferSize))
	}
}

func (t *TCP) Close() error {
	t.stopped.Store(true)

	var err error
	if t.listener != nil {
		err = t.listener.Close()
	}

	t.wg.Wait()

	return err
}

func isTimeout(err error) bool {
	var ne net.Error
	if ok := asNetError(err, &ne); ok {
		return ne.Timeout()
	}

	return os.IsTimeout(err)
}

func asNetError(err error, target *net.Error) bool {
	if ne, ok := err.(net.Error); ok {
		*target = ne
		return true
	}

	return false
}

type tcpConnection struct {
	conn    net.Conn
	buff    []byte
	timeout time.Duration
}

func newTCPConnection(conn net.Conn, timeout time.Duration, bufSize int) *tcpConnection {
	return &tcpConnection{
		conn: conn,
		buff: make([]byte, bufSize),
		timeout: timeout,
	}
}

func (c *tcpConnection) Read() ([]byte, error) {
	if c.timeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return nil, err
		}
	}

	n, err := c.conn.Read(c.buff)
	if err != nil {
		return nil, err
	}

	return c.buff[:n], nil
}

func (c *tcpConnection) Write(b []byte) error {
	_, err := c.conn.Write(b)
	return err
}

func (c *tcpConnection) Close() error {
	return c.conn.Close()
}

func (c *tcpConnection) PeerID() string {
	return c.conn.RemoteAddr().String()
}
