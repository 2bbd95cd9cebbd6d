// Package diagnostics is the core's structured event bus: the core
// never logs directly, it publishes typed events through a Sender that
// subscribers filter by minimum level. Where events end up — a log
// file, a collector, a test assertion — is the subscriber's concern;
// this package is only a small, synchronized typed pub-sub.
package diagnostics

import (
	"sync"
	"time"

	"github.com/webcore/htcore/status"
)

// Level is the severity/verbosity tier of a diagnostic event: 0 for
// configuration changes, 1 for per-request traces, 2 for
// per-connection lifecycle transitions, 3 for bind success.
type Level uint8

const (
	LevelConfigChange Level = iota
	LevelRequestTrace
	LevelConnectionLifecycle
	LevelBindSucceeded
)

// Event is implemented by every concrete diagnostic payload.
type Event interface {
	Level() Level
}

// ConfigChanged fires whenever Server.SetConfigurationItem succeeds.
type ConfigChanged struct {
	Key, Value string
}

func (ConfigChanged) Level() Level { return LevelConfigChange }

// RequestTrace fires once per dispatched request.
type RequestTrace struct {
	PeerID     string
	Method     string
	Path       string
	StatusCode status.Code
	Elapsed    time.Duration
}

func (RequestTrace) Level() Level { return LevelRequestTrace }

// ConnectionLifecycleKind distinguishes the phases a connection passes
// through that diagnostics subscribers may care about.
type ConnectionLifecycleKind uint8

const (
	ConnectionOpened ConnectionLifecycleKind = iota
	ConnectionClosed
	ConnectionUpgraded
	ConnectionTimedOut
)

// ConnectionLifecycle fires on each transition a ConnectionState makes.
// Token correlates all events of one connection even when the same
// peer reconnects under the same PeerID.
type ConnectionLifecycle struct {
	PeerID string
	Token  string
	Kind   ConnectionLifecycleKind
}

func (ConnectionLifecycle) Level() Level { return LevelConnectionLifecycle }

// BindSucceeded fires once Mobilize has successfully bound the
// transport.
type BindSucceeded struct {
	Port uint16
}

func (BindSucceeded) Level() Level { return LevelBindSucceeded }

type subscriber struct {
	minLevel Level
	fn       func(Event)
}

// Sender is the publish side of the diagnostics bus. It is safe for
// concurrent use independent of the core mutex, since subscribers may
// legitimately attach/detach from outside any request-handling path.
type Sender struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]subscriber
}

func NewSender() *Sender {
	return &Sender{subs: make(map[int]subscriber)}
}

// Subscribe registers fn to receive every event at or above minLevel,
// returning a callable that detaches it.
func (s *Sender) Subscribe(minLevel Level, fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = subscriber{minLevel: minLevel, fn: fn}
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Send delivers e to every subscriber whose minLevel it satisfies.
func (s *Sender) Send(e Event) {
	s.mu.Lock()
	recipients := make([]func(Event), 0, len(s.subs))
	for _, sub := range s.subs {
		if e.Level() >= sub.minLevel {
			recipients = append(recipients, sub.fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range recipients {
		fn(e)
	}
}
