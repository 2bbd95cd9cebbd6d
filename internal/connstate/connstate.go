// Package connstate holds per-connection state: the buffer, partial
// request, timestamps and accept flag that every established
// connection carries.
package connstate

import (
	"github.com/dchest/uniuri"

	"github.com/webcore/htcore/config"
	"github.com/webcore/htcore/http"
	http1parser "github.com/webcore/htcore/internal/parser/http1"
	"github.com/webcore/htcore/transport"
)

// State holds everything the dispatcher and timer supervisor need
// about one live connection. Not internally synchronized — guarded by
// the Server's core mutex.
type State struct {
	// Transport is the owning handle to this connection's transport.
	// Cleared (set to nil) once a handler takes ownership via protocol
	// upgrade.
	Transport transport.Connection
	// ID is the transport-supplied peer identifier, surfaced in
	// diagnostics events.
	ID string
	// Token is a random correlation token unique to this connection;
	// unlike ID it stays distinct when the same peer reconnects, so log
	// subscribers can tie a connection's events together.
	Token string

	// Buffer holds bytes read from the transport that haven't yet been
	// folded into a terminal request.
	Buffer []byte

	// NextRequest is the partial request currently being filled.
	NextRequest *http.Request
	// Parser advances NextRequest; rebound via ResetRequest whenever a
	// new request begins.
	Parser *http1parser.Parser

	// TimeLastDataReceived and TimeLastRequestStarted are monotonic
	// seconds readings from the Server's TimeKeeper, used by
	// TimerSupervisor to detect inactivity/request-timeout breaches.
	TimeLastDataReceived   float64
	TimeLastRequestStarted float64
	// TimeLastResponseCompleted backs the optional IdleTimeout; zero
	// until the first request completes.
	TimeLastResponseCompleted float64
	// HasCompletedRequest gates IdleTimeout: it only applies once at
	// least one request/response cycle has finished on this connection.
	HasCompletedRequest bool

	// AcceptingRequests is false after a close-triggering response was
	// issued or after protocol upgrade; once false, further bytes for
	// this connection are discarded.
	AcceptingRequests bool
}

// New builds a fresh State for a just-accepted connection.
func New(conn transport.Connection, cfg *config.Configuration, now float64) *State {
	req := http.New()
	parser := http1parser.NewParser(cfg)
	parser.Bind(req)

	return &State{
		Transport:              conn,
		ID:                     conn.PeerID(),
		Token:                  uniuri.New(),
		NextRequest:            req,
		Parser:                 parser,
		TimeLastDataReceived:   now,
		TimeLastRequestStarted: now,
		AcceptingRequests:      true,
	}
}

// Append adds newly-read bytes to the buffer and bumps
// TimeLastDataReceived.
func (s *State) Append(data []byte, now float64) {
	s.Buffer = append(s.Buffer, data...)
	s.TimeLastDataReceived = now
}

// Consume drops the first n bytes of Buffer — the bytes the Parser
// just folded into a now-terminal request.
func (s *State) Consume(n int) {
	s.Buffer = s.Buffer[n:]
}

// ResetRequest reinitializes NextRequest in place and rebinds Parser to
// it, so a pipelined connection can parse its next request from the
// remaining buffer without reallocating either.
func (s *State) ResetRequest() {
	s.NextRequest.Reset()
	s.Parser.Bind(s.NextRequest)
}
