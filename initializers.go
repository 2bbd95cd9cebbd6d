package htcore

import (
	"io"
	"os"

	"github.com/webcore/htcore/diagnostics"
	"github.com/webcore/htcore/timekeeper"
	"github.com/webcore/htcore/transport"
	"github.com/webcore/htcore/transport/tlsautocert"
)

// MobilizeTCP mobilizes onto a plain TCP transport with default
// settings, on the configured port when port is zero.
func (s *Server) MobilizeTCP(port uint16) error {
	return s.Mobilize(transport.NewTCP(), port, timekeeper.NewMonotonic())
}

// MobilizeAutoTLS mobilizes onto a TLS transport that provisions
// certificates for the given domains via ACME. The core itself stays
// transport-agnostic; this is a convenience wrapper only.
func (s *Server) MobilizeAutoTLS(port uint16, domains ...string) error {
	return s.Mobilize(tlsautocert.New(domains...), port, timekeeper.NewMonotonic())
}

// LogDiagnosticsTo subscribes a line-oriented log writer to the
// diagnostics bus. A nil writer defaults to os.Stderr. Returns the
// unsubscribe callable.
func (s *Server) LogDiagnosticsTo(w io.Writer, minLevel diagnostics.Level) (unsubscribe func()) {
	if w == nil {
		w = os.Stderr
	}

	return s.diagnostic.Subscribe(minLevel, diagnostics.NewWriterSubscriber(w))
}
