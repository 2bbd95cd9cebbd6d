// Package timer implements the timer supervisor: a cooperative
// scanner goroutine that wakes every PollingPeriod (or on shutdown)
// and walks the established connections looking for timeout breaches.
// The breach rules themselves live here too, so they can be
// unit-tested without spinning the goroutine up.
package timer

import (
	"sync"
	"time"

	"github.com/webcore/htcore/config"
	"github.com/webcore/htcore/internal/connstate"
	"github.com/webcore/htcore/timekeeper"
)

// PollingPeriod is how often the supervisor scans.
const PollingPeriod = 50 * time.Millisecond

// Breached reports whether cs has exceeded any of the three timeouts at
// the given monotonic reading. A zero (disabled) timeout never fires.
// IdleTimeout only applies once at least one request/response cycle has
// completed on the connection.
func Breached(cs *connstate.State, typed config.Typed, now float64) bool {
	if inactivity := typed.InactivityTimeout.Seconds(); inactivity > 0 {
		if now-cs.TimeLastDataReceived > inactivity {
			return true
		}
	}

	if request := typed.RequestTimeout.Seconds(); request > 0 {
		if now-cs.TimeLastRequestStarted > request {
			return true
		}
	}

	if idle := typed.IdleTimeout.Seconds(); idle > 0 && cs.HasCompletedRequest {
		if now-cs.TimeLastResponseCompleted > idle {
			return true
		}
	}

	return false
}

// Supervisor periodically invokes a scan callback with the current
// monotonic reading. The callback (installed by the Server façade)
// takes the core mutex, finds breached connections and pushes 408s
// through the Dispatcher.
type Supervisor struct {
	keeper timekeeper.TimeKeeper
	scan   func(now float64)

	started  bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewSupervisor(keeper timekeeper.TimeKeeper, scan func(now float64)) *Supervisor {
	return &Supervisor{
		keeper: keeper,
		scan:   scan,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the scanner goroutine. Call at most once.
func (s *Supervisor) Start() {
	s.started = true
	go s.run()
}

func (s *Supervisor) run() {
	defer close(s.done)

	ticker := time.NewTicker(PollingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.scan(s.keeper.Now())
		case <-s.stop:
			return
		}
	}
}

// Stop signals shutdown and waits for the scanner goroutine to exit.
// Idempotent; a no-op if Start was never called.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })

	if s.started {
		<-s.done
	}
}
