package diagnostics

import (
	"fmt"
	"io"
	"sync"
)

// NewWriterSubscriber adapts an io.Writer into a subscriber callback,
// rendering each event as one structured line. Writes are serialized,
// since events arrive from the transport, timer and reaper goroutines.
func NewWriterSubscriber(w io.Writer) func(Event) {
	var mu sync.Mutex

	return func(e Event) {
		mu.Lock()
		defer mu.Unlock()

		fmt.Fprintf(w, "level=%d %s\n", e.Level(), describe(e))
	}
}

func describe(e Event) string {
	switch ev := e.(type) {
	case ConfigChanged:
		return fmt.Sprintf("event=config-changed key=%s value=%q", ev.Key, ev.Value)
	case RequestTrace:
		return fmt.Sprintf("event=request peer=%s method=%s path=%s status=%d elapsed=%s",
			ev.PeerID, ev.Method, ev.Path, ev.StatusCode, ev.Elapsed)
	case ConnectionLifecycle:
		return fmt.Sprintf("event=connection peer=%s token=%s kind=%s", ev.PeerID, ev.Token, ev.Kind)
	case BindSucceeded:
		return fmt.Sprintf("event=bound port=%d", ev.Port)
	default:
		return fmt.Sprintf("event=%T", e)
	}
}

func (k ConnectionLifecycleKind) String() string {
	switch k {
	case ConnectionOpened:
		return "opened"
	case ConnectionClosed:
		return "closed"
	case ConnectionUpgraded:
		return "upgraded"
	case ConnectionTimedOut:
		return "timed-out"
	default:
		return "unknown"
	}
}
