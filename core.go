// Package htcore is a transport-agnostic HTTP/1.1 server core with a
// companion client-side response parser. The Server façade wires the
// incremental request parser, the resource-path registry, the
// dispatcher, the timer supervisor and the reaper to whatever
// transport.Transport it is mobilized onto.
package htcore

import (
	"sync"

	"github.com/webcore/htcore/client"
	"github.com/webcore/htcore/config"
	"github.com/webcore/htcore/diagnostics"
	"github.com/webcore/htcore/http"
	"github.com/webcore/htcore/internal/connstate"
	"github.com/webcore/htcore/internal/dispatch"
	http1parser "github.com/webcore/htcore/internal/parser/http1"
	"github.com/webcore/htcore/internal/reaper"
	"github.com/webcore/htcore/internal/timer"
	"github.com/webcore/htcore/registry"
	"github.com/webcore/htcore/status"
	"github.com/webcore/htcore/timekeeper"
	"github.com/webcore/htcore/transport"
)

// Server is the public façade of the library. A zero-configured
// Server is obtained from New; it accepts resource registrations and
// configuration changes at any time, and connections once mobilized.
type Server struct {
	mu sync.Mutex

	cfg        *config.Configuration
	resources  *registry.Registry
	diagnostic *diagnostics.Sender
	dispatcher *dispatch.Dispatcher

	established map[*connstate.State]struct{}

	mobilized  bool
	transport  transport.Transport
	keeper     timekeeper.TimeKeeper
	supervisor *timer.Supervisor
	reaper     *reaper.Reaper
	serving    sync.WaitGroup
}

// New returns a demobilized Server with default configuration.
func New() *Server {
	s := &Server{
		cfg:         config.Default(),
		resources:   registry.New(),
		diagnostic:  diagnostics.NewSender(),
		established: make(map[*connstate.State]struct{}),
	}
	s.dispatcher = dispatch.New(s.resources, s.diagnostic)

	return s
}

// Mobilize binds t on port and starts accepting connections, along
// with the timer supervisor and reaper. A zero port falls back to the
// configured Port. A nil keeper falls back to a monotonic system
// clock. Fails without side effects if the bind fails or the server is
// already mobilized; after a failed bind Mobilize may be called again.
func (s *Server) Mobilize(t transport.Transport, port uint16, keeper timekeeper.TimeKeeper) error {
	s.mu.Lock()

	if s.mobilized {
		s.mu.Unlock()
		return status.ErrAlreadyMobilized
	}

	if port == 0 {
		port = s.cfg.Typed().Port
	}

	if keeper == nil {
		keeper = timekeeper.NewMonotonic()
	}

	if err := t.Bind(port, s.onConnection); err != nil {
		s.mu.Unlock()
		return err
	}

	s.mobilized = true
	s.transport = t
	s.keeper = keeper
	s.dispatcher.Clock = keeper.Now
	s.reaper = reaper.New(s.destroy)
	s.supervisor = timer.NewSupervisor(keeper, s.scanTimeouts)

	s.reaper.Start()
	s.supervisor.Start()

	s.mu.Unlock()

	s.diagnostic.Send(diagnostics.BindSucceeded{Port: port})

	return nil
}

// Demobilize stops the supervisor and reaper, releases the transport,
// closes every established connection the core still owns, and drops
// the time keeper. Safe to call when not mobilized, and idempotent.
func (s *Server) Demobilize() error {
	s.mu.Lock()

	if !s.mobilized {
		s.mu.Unlock()
		return nil
	}

	s.mobilized = false
	t := s.transport
	s.transport = nil

	conns := make([]transport.Connection, 0, len(s.established))
	for cs := range s.established {
		cs.AcceptingRequests = false
		if cs.Transport != nil {
			conns = append(conns, cs.Transport)
		}
	}

	supervisor, rp := s.supervisor, s.reaper

	s.mu.Unlock()

	supervisor.Stop()

	err := t.Close()

	for _, conn := range conns {
		_ = conn.Close()
	}

	// read loops wake on their closed transports and notify the reaper;
	// wait for them before stopping it so every state gets destroyed
	s.serving.Wait()
	rp.Stop()

	s.mu.Lock()
	s.keeper = nil
	s.mu.Unlock()

	return err
}

// onConnection is the transport's new-connection callback: it builds a
// ConnectionState, inserts it into establishedConnections and spawns
// the connection's read loop.
func (s *Server) onConnection(conn transport.Connection) {
	s.mu.Lock()

	if !s.mobilized {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}

	cs := connstate.New(conn, s.cfg, s.keeper.Now())
	s.established[cs] = struct{}{}
	rp := s.reaper
	s.serving.Add(1)

	s.mu.Unlock()

	s.diagnostic.Send(diagnostics.ConnectionLifecycle{PeerID: cs.ID, Token: cs.Token, Kind: diagnostics.ConnectionOpened})

	go s.serve(cs, conn, rp)
}

// serve is the per-connection read loop: bytes in, dispatch outcomes
// out, until the peer breaks, a close-triggering response is sent, or
// a handler takes the connection over.
func (s *Server) serve(cs *connstate.State, conn transport.Connection, rp *reaper.Reaper) {
	defer s.serving.Done()

	for {
		data, err := conn.Read()
		if err != nil {
			rp.Notify(cs)
			return
		}

		s.mu.Lock()

		if cs.Transport == nil {
			s.mu.Unlock()
			return
		}

		if !cs.AcceptingRequests {
			s.mu.Unlock()
			rp.Notify(cs)
			return
		}

		outcome := s.dispatcher.HandleData(cs, data, s.keeperNowLocked())
		s.mu.Unlock()

		switch outcome {
		case dispatch.Continue:
		case dispatch.Closed:
			rp.Notify(cs)
			return
		case dispatch.Upgraded:
			s.detachUpgraded(cs)
			return
		}
	}
}

// keeperNowLocked reads the clock while s.mu is held. During
// demobilization the keeper may already be dropped; connections are
// all closing at that point, so a zero reading is harmless.
func (s *Server) keeperNowLocked() float64 {
	if s.keeper == nil {
		return 0
	}

	return s.keeper.Now()
}

// destroy is the reaper's callback: it removes cs from
// establishedConnections under the mutex and closes the transport if
// the core still owns it. Idempotent.
func (s *Server) destroy(cs *connstate.State) {
	s.mu.Lock()

	_, present := s.established[cs]
	delete(s.established, cs)
	conn := cs.Transport

	s.mu.Unlock()

	if !present {
		return
	}

	if conn != nil {
		_ = conn.Close()
	}

	s.diagnostic.Send(diagnostics.ConnectionLifecycle{PeerID: cs.ID, Token: cs.Token, Kind: diagnostics.ConnectionClosed})
}

// detachUpgraded releases the core's claim on an upgraded connection:
// the state leaves establishedConnections so no timer or reaper will
// ever touch the transport the handler now owns.
func (s *Server) detachUpgraded(cs *connstate.State) {
	s.mu.Lock()
	delete(s.established, cs)
	s.mu.Unlock()

	s.diagnostic.Send(diagnostics.ConnectionLifecycle{PeerID: cs.ID, Token: cs.Token, Kind: diagnostics.ConnectionUpgraded})
}

// scanTimeouts is the supervisor's callback: under the mutex, every
// established connection breaching a timeout gets a 408 pushed through
// the dispatcher's output path, which closes its transport; the
// connection's read loop then wakes and hands the state to the reaper.
func (s *Server) scanTimeouts(now float64) {
	s.mu.Lock()

	typed := s.cfg.Typed()

	var timedOut []*connstate.State
	for cs := range s.established {
		if cs.AcceptingRequests && timer.Breached(cs, typed, now) {
			s.dispatcher.HandleTimeout(cs)
			timedOut = append(timedOut, cs)
		}
	}

	s.mu.Unlock()

	for _, cs := range timedOut {
		s.diagnostic.Send(diagnostics.ConnectionLifecycle{PeerID: cs.ID, Token: cs.Token, Kind: diagnostics.ConnectionTimedOut})
	}
}

// ParseRequest is a one-shot parsing helper: it parses data
// as a single request with the current configuration, returning the
// request and the offset one past its last byte. A non-terminal parse
// returns nil.
func (s *Server) ParseRequest(data []byte) (req *http.Request, end int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req = http.New()
	parser := http1parser.NewParser(s.cfg)
	parser.Bind(req)

	end = parser.Parse(data)
	if !req.State.Terminal() {
		return nil, 0
	}

	return req, end
}

// ParseResponse parses one complete HTTP/1.1 response out of data for
// client use, returning it with any trailing bytes.
func (s *Server) ParseResponse(data []byte) (*http.Response, []byte, error) {
	s.mu.Lock()
	lineLimit := s.cfg.Typed().HeaderLineLimit
	s.mu.Unlock()

	return client.ParseResponse(data, lineLimit)
}

// RegisterResource registers handler at path. It returns the
// unregister callable, or status.ErrRegistrationOverlap if the path
// would overlap an existing handler's subtree; the
// registry is left unchanged in that case.
func (s *Server) RegisterResource(path string, handler registry.Handler) (unregister func(), err error) {
	s.mu.Lock()
	u, ok := s.resources.Register(registry.Split(path), handler)
	s.mu.Unlock()

	if !ok {
		return nil, status.ErrRegistrationOverlap
	}

	return func() {
		s.mu.Lock()
		u()
		s.mu.Unlock()
	}, nil
}

// SubscribeToDiagnostics attaches fn to the diagnostics bus for every
// event at or above minLevel, returning the unsubscribe callable.
func (s *Server) SubscribeToDiagnostics(minLevel diagnostics.Level, fn func(diagnostics.Event)) (unsubscribe func()) {
	return s.diagnostic.Subscribe(minLevel, fn)
}

// GetConfigurationItem returns the raw string value stored under key.
func (s *Server) GetConfigurationItem(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cfg.Get(key)
}

// SetConfigurationItem stores value under key, re-parsing the typed
// snapshot for recognized keys. Successful writes are published as a
// level-0 diagnostics event.
func (s *Server) SetConfigurationItem(key, value string) error {
	s.mu.Lock()
	err := s.cfg.Set(key, value)
	s.mu.Unlock()

	if err != nil {
		return err
	}

	s.diagnostic.Send(diagnostics.ConfigChanged{Key: key, Value: value})

	return nil
}

// Resources lists every currently-registered resource path, for
// diagnostics and tests.
func (s *Server) Resources() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.resources.Dump()
}
