package diagnostics_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/webcore/htcore/diagnostics"
)

func TestSender_FiltersByMinLevel(t *testing.T) {
	s := diagnostics.NewSender()

	var got []diagnostics.Event
	unsubscribe := s.Subscribe(diagnostics.LevelConnectionLifecycle, func(e diagnostics.Event) {
		got = append(got, e)
	})
	defer unsubscribe()

	s.Send(diagnostics.ConfigChanged{Key: "Port", Value: "9000"})
	s.Send(diagnostics.ConnectionLifecycle{PeerID: "p1", Kind: diagnostics.ConnectionOpened})
	s.Send(diagnostics.BindSucceeded{Port: 9000})

	require.Len(t, got, 2)
	require.Equal(t, diagnostics.LevelConnectionLifecycle, got[0].Level())
	require.Equal(t, diagnostics.LevelBindSucceeded, got[1].Level())
}

func TestWriterSubscriber_RendersStructuredLines(t *testing.T) {
	s := diagnostics.NewSender()

	var buf strings.Builder
	unsubscribe := s.Subscribe(diagnostics.LevelConfigChange, diagnostics.NewWriterSubscriber(&buf))
	defer unsubscribe()

	s.Send(diagnostics.ConfigChanged{Key: "Port", Value: "9000"})
	s.Send(diagnostics.ConnectionLifecycle{PeerID: "p1", Token: "tok", Kind: diagnostics.ConnectionTimedOut})
	s.Send(diagnostics.BindSucceeded{Port: 9000})

	out := buf.String()
	require.Contains(t, out, `level=0 event=config-changed key=Port value="9000"`)
	require.Contains(t, out, "level=2 event=connection peer=p1 token=tok kind=timed-out")
	require.Contains(t, out, "level=3 event=bound port=9000")
}

func TestSender_Unsubscribe(t *testing.T) {
	s := diagnostics.NewSender()

	calls := 0
	unsubscribe := s.Subscribe(diagnostics.LevelConfigChange, func(diagnostics.Event) { calls++ })
	s.Send(diagnostics.ConfigChanged{Key: "Host", Value: "example.com"})
	unsubscribe()
	s.Send(diagnostics.ConfigChanged{Key: "Host", Value: "example.org"})

	require.Equal(t, 1, calls)
}
