// Package reaper implements deferred destruction of broken
// connections in a message-passing shape: a broken-connection
// notification is pushed onto a channel drained by a single goroutine,
// so no connection state is ever torn down from inside its own
// delegate callback, and removal from the shared connection set never
// races a send or receive in flight for that same connection.
package reaper

import (
	"sync"

	"github.com/webcore/htcore/internal/connstate"
)

// Reaper drains broken-connection notices and hands each to the
// destroy callback installed by the Server façade (which takes the core
// mutex, removes the state from establishedConnections, and closes the
// transport if the core still owns it).
type Reaper struct {
	notices chan *connstate.State
	destroy func(*connstate.State)

	started  bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func New(destroy func(*connstate.State)) *Reaper {
	return &Reaper{
		notices: make(chan *connstate.State, 64),
		destroy: destroy,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the draining goroutine. Call at most once.
func (r *Reaper) Start() {
	r.started = true
	go r.run()
}

func (r *Reaper) run() {
	defer close(r.done)

	for {
		select {
		case cs := <-r.notices:
			r.destroy(cs)
		case <-r.stop:
			// drain whatever was enqueued before shutdown was signalled
			for {
				select {
				case cs := <-r.notices:
					r.destroy(cs)
				default:
					return
				}
			}
		}
	}
}

// Notify enqueues cs for destruction. Safe to call from any goroutine,
// including the one currently handling cs's own data or broken
// delegate. Notices arriving after Stop are discarded.
func (r *Reaper) Notify(cs *connstate.State) {
	select {
	case r.notices <- cs:
	case <-r.stop:
	}
}

// Stop signals shutdown, drains pending notices, and waits for the
// goroutine to exit. Idempotent; a no-op if Start was never called.
func (r *Reaper) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })

	if r.started {
		<-r.done
	}
}
