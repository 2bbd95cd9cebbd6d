// Package tlsautocert is an optional transport.Transport backed by
// crypto/tls and golang.org/x/crypto/acme/autocert. The core stays
// transport-agnostic; this merely gives the façade a batteries-included
// TLS option that satisfies the same interface as transport.TCP.
package tlsautocert

import (
	"crypto/tls"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/acme/autocert"

	"github.com/webcore/htcore/transport"
)

// Transport accepts TLS connections for the given domains, obtaining
// and renewing certificates automatically via ACME.
type Transport struct {
	// Domains restricts which hostnames autocert will issue for. Empty
	// accepts any hostname (NOT recommended outside of development).
	Domains []string
	// CacheDir, if set, persists issued certificates across restarts.
	CacheDir string
	// ReadTimeout and ReadBufferSize behave as in transport.TCP.
	ReadTimeout    time.Duration
	ReadBufferSize int

	listener net.Listener
	stopped  atomic.Bool
	wg       sync.WaitGroup
}

func New(domains ...string) *Transport {
	return &Transport{
		Domains:        domains,
		ReadTimeout:    90 * time.Second,
		ReadBufferSize: 4096,
	}
}

func (t *Transport) Bind(port uint16, cb transport.OnConnection) error {
	manager := &autocert.Manager{Prompt: autocert.AcceptTOS}
	if len(t.Domains) > 0 {
		manager.HostPolicy = autocert.HostWhitelist(t.Domains...)
	}
	if t.CacheDir != "" {
		if err := os.MkdirAll(t.CacheDir, 0o700); err == nil {
			manager.Cache = autocert.DirCache(t.CacheDir)
		}
	}

	addr := net.JoinHostPort("", strconv.Itoa(int(port)))
	listener, err := tls.Listen("tcp", addr, &tls.Config{GetCertificate: manager.GetCertificate})
	if err != nil {
		return err
	}

	t.listener = listener
	t.wg.Add(1)

	go t.acceptLoop(cb)

	return nil
}

func (t *Transport) acceptLoop(cb transport.OnConnection) {
	defer t.wg.Done()

	for !t.stopped.Load() {
		conn, err := t.listener.Accept()
		if err != nil {
			return
		}

		cb(newConnection(conn, t.ReadTimeout, t.ReadBufferSize))
	}
}

func (t *Transport) Close() error {
	t.stopped.Store(true)

	var err error
	if t.listener != nil {
		err = t.listener.Close()
	}

	t.wg.Wait()

	return err
}

type connection struct {
	conn    net.Conn
	buff    []byte
	timeout time.Duration
}

func newConnection(conn net.Conn, timeout time.Duration, bufSize int) *connection {
	return &connection{conn: conn, buff: make([]byte, bufSize), timeout: timeout}
}

func (c *connection) Read() ([]byte, error) {
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

func (c *connection) Write(b []byte) error {
	_, err := c.conn.Write(b)
	return err
}

func (c *connection) Close() error {
	return c.conn.Close()
}

func (c *connection) PeerID() string {
	return c.conn.RemoteAddr().String()
}

var _ transport.Transport = (*Transport)(nil)
var _ transport.Connection = (*connection)(nil)
