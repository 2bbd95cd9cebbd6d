// Package transport defines the abstract collaborator the core
// consumes instead of talking to sockets directly: a Transport binds a
// port and hands the core a Connection per accepted
// peer; the core never imports net directly outside of the concrete
// TCP implementation in this package.
package transport

// Connection is the per-connection handle a Transport hands to the
// core. Read blocks until data is available, an error, or the
// transport's own read-idle deadline fires. Write and Close may be
// called from a goroutine other than the one that received the
// Connection, so implementations must be safe for that.
type Connection interface {
	// Read returns the next chunk of bytes received from the peer, or
	// an error (including on an idle-read deadline) that the caller
	// should treat as the connection being broken.
	Read() ([]byte, error)
	// Write sends b to the peer.
	Write(b []byte) error
	// Close tears down the connection. Idempotent.
	Close() error
	// PeerID returns an opaque, transport-chosen identifier for the
	// peer (e.g. "host:port" for TCP), used only for diagnostics and
	// log correlation — never for authentication.
	PeerID() string
}

// OnConnection is invoked once per accepted connection. The Transport
// guarantees it will not invoke this concurrently with itself tearing
// down that same connection.
type OnConnection func(Connection)

// Transport is the abstract bind/accept collaborator of the core.
type Transport interface {
	// Bind starts accepting connections on port, invoking cb for each
	// one. Bind returns once the listener is up (or failed to come
	// up); accepting continues on a background goroutine until Close.
	Bind(port uint16, cb OnConnection) error
	// Close stops accepting new connections and releases the listener.
	// It does not forcibly close already-accepted connections — those
	// are the core's responsibility via the Connections it was handed.
	Close() error
}
