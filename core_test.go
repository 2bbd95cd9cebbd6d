package htcore_test

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	htcore "github.com/webcore/htcore"
	"github.com/webcore/htcore/config"
	"github.com/webcore/htcore/diagnostics"
	"github.com/webcore/htcore/http"
	"github.com/webcore/htcore/status"
	"github.com/webcore/htcore/timekeeper"
	"github.com/webcore/htcore/transport"
	"github.com/webcore/htcore/transport/dummy"
)

const waitFor = 2 * time.Second

func mobilized(t *testing.T) (*htcore.Server, *dummy.Transport, *timekeeper.Manual) {
	t.Helper()

	s := htcore.New()
	tr := dummy.New()
	keeper := timekeeper.NewManual()

	require.NoError(t, s.Mobilize(tr, 0, keeper))
	t.Cleanup(func() { _ = s.Demobilize() })

	return s, tr, keeper
}

func written(conn *dummy.Connection) func() string {
	return func() string { return string(conn.Written()) }
}

func TestMobilize_Twice(t *testing.T) {
	s, _, _ := mobilized(t)

	err := s.Mobilize(dummy.New(), 0, nil)
	require.ErrorIs(t, err, status.ErrAlreadyMobilized)
}

type failingTransport struct{}

func (failingTransport) Bind(uint16, transport.OnConnection) error {
	return errors.New("bind refused")
}

func (failingTransport) Close() error { return nil }

func TestMobilize_BindFailureLeavesServerCallable(t *testing.T) {
	s := htcore.New()

	require.Error(t, s.Mobilize(failingTransport{}, 0, nil))

	// a failed bind must not leave threads running or state mobilized
	require.NoError(t, s.Demobilize())
	require.NoError(t, s.Mobilize(dummy.New(), 0, nil))
	require.NoError(t, s.Demobilize())
}

func TestDemobilize_WhenNotMobilized(t *testing.T) {
	require.NoError(t, htcore.New().Demobilize())
}

func TestServe_PipelinedRequestsYieldTwoResponses(t *testing.T) {
	_, tr, _ := mobilized(t)

	conn := dummy.NewConnection("peer-1")
	tr.Accept(conn)

	one := "GET /a HTTP/1.1\r\nHost: example.com\r\n\r\n"
	two := "GET /b HTTP/1.1\r\nHost: example.com\r\n\r\n"
	conn.Feed([]byte(one + two))

	require.Eventually(t, func() bool {
		return strings.Count(written(conn)(), "404 Not Found") == 2
	}, waitFor, 5*time.Millisecond)
	require.False(t, conn.Closed())
}

func TestServe_RegisteredHandlerAnswers(t *testing.T) {
	s, tr, _ := mobilized(t)

	unregister, err := s.RegisterResource("/greet", func(req *http.Request, conn transport.Connection, residual []byte) *http.Response {
		return http.NewResponse().String("hello, " + req.Target.Path)
	})
	require.NoError(t, err)
	defer unregister()

	conn := dummy.NewConnection("peer-1")
	tr.Accept(conn)
	conn.Feed([]byte("GET /greet/world HTTP/1.1\r\nHost: example.com\r\n\r\n"))

	require.Eventually(t, func() bool {
		out := written(conn)()
		return strings.Contains(out, "200 OK") && strings.HasSuffix(out, "hello, /world")
	}, waitFor, 5*time.Millisecond)
}

func TestServe_ConnectionCloseSignalling(t *testing.T) {
	_, tr, _ := mobilized(t)

	conn := dummy.NewConnection("peer-1")
	tr.Accept(conn)
	conn.Feed([]byte("GET /x HTTP/1.1\r\nHost: example.com\r\nConnection: close\r\n\r\n"))

	require.Eventually(t, func() bool {
		return strings.Contains(written(conn)(), "Connection: close\r\n") && conn.Closed()
	}, waitFor, 5*time.Millisecond)
}

func TestServe_PayloadTooLarge(t *testing.T) {
	_, tr, _ := mobilized(t)

	conn := dummy.NewConnection("peer-1")
	tr.Accept(conn)
	conn.Feed([]byte("POST /x HTTP/1.1\r\nHost: example.com\r\nContent-Length: 1300000000000000000000000000\r\n\r\n"))

	require.Eventually(t, func() bool {
		out := written(conn)()
		return strings.HasPrefix(out, "HTTP/1.1 413 Payload Too Large\r\n") &&
			strings.Contains(out, "Connection: close") &&
			conn.Closed()
	}, waitFor, 5*time.Millisecond)
}

func TestServe_InactivityTimeout(t *testing.T) {
	_, tr, keeper := mobilized(t)

	conn := dummy.NewConnection("peer-1")
	tr.Accept(conn)
	conn.Feed([]byte("GET /partial HTT"))

	// let the read loop take the bytes at t=0; the time of receipt is
	// read from the keeper when the loop handles them
	time.Sleep(50 * time.Millisecond)

	keeper.SetNow(1.001)

	require.Eventually(t, func() bool {
		out := written(conn)()
		return strings.HasPrefix(out, "HTTP/1.1 408 Request Timeout\r\n") &&
			strings.Contains(out, "Connection: close") &&
			conn.Closed()
	}, waitFor, 5*time.Millisecond)
}

func TestServe_ProtocolUpgrade(t *testing.T) {
	s, tr, _ := mobilized(t)

	var (
		mu       sync.Mutex
		owned    transport.Connection
		initial  []byte
		received []byte
	)

	_, err := s.RegisterResource("/ws", func(req *http.Request, conn transport.Connection, residual []byte) *http.Response {
		mu.Lock()
		owned = conn
		initial = append([]byte(nil), residual...)
		mu.Unlock()

		return http.NewResponse().
			Status(status.SwitchingProtocols).
			Header("Upgrade", req.Env.Upgrade).
			Header("Connection", "Upgrade")
	})
	require.NoError(t, err)

	conn := dummy.NewConnection("peer-1")
	tr.Accept(conn)
	conn.Feed([]byte("GET /ws HTTP/1.1\r\nHost: example.com\r\nUpgrade: echo\r\nConnection: Upgrade\r\n\r\n\x01pre-upgrade"))

	require.Eventually(t, func() bool {
		return strings.HasPrefix(written(conn)(), "HTTP/1.1 101 Switching Protocols\r\n")
	}, waitFor, 5*time.Millisecond)

	mu.Lock()
	require.NotNil(t, owned)
	require.Equal(t, "\x01pre-upgrade", string(initial))
	mu.Unlock()

	// the handler now owns the connection; bytes fed after the upgrade
	// reach its own read, not the core parser
	done := make(chan struct{})
	go func() {
		defer close(done)
		data, readErr := owned.Read()
		if readErr == nil {
			mu.Lock()
			received = append(received, data...)
			mu.Unlock()
		}
	}()

	conn.Feed([]byte("\x02post-upgrade"))
	<-done

	mu.Lock()
	require.Equal(t, "\x02post-upgrade", string(received))
	mu.Unlock()
	require.False(t, conn.Closed())
}

func TestRegisterResource_OverlapScenario(t *testing.T) {
	s := htcore.New()

	h := func(req *http.Request, conn transport.Connection, residual []byte) *http.Response {
		return http.NewResponse()
	}

	u1, err := s.RegisterResource("/foo/bar", h)
	require.NoError(t, err)

	_, err = s.RegisterResource("/foo", h)
	require.ErrorIs(t, err, status.ErrRegistrationOverlap)

	u1()

	u2, err := s.RegisterResource("/foo", h)
	require.NoError(t, err)
	require.NotNil(t, u2)

	_, err = s.RegisterResource("/foo/bar", h)
	require.ErrorIs(t, err, status.ErrRegistrationOverlap)
}

func TestParseRequest_OneShot(t *testing.T) {
	s := htcore.New()

	input := "GET /hello.txt HTTP/1.1\r\nHost: www.example.com\r\n\r\n"
	req, end := s.ParseRequest([]byte(input))
	require.NotNil(t, req)
	require.Equal(t, http.StateComplete, req.State)
	require.Equal(t, "/hello.txt", req.Target.Path)
	require.Equal(t, len(input), end)

	req, end = s.ParseRequest([]byte("GET /hello.txt HTTP/1.1\r\nHost: incompl"))
	require.Nil(t, req)
	require.Zero(t, end)
}

func TestParseResponse_OneShot(t *testing.T) {
	s := htcore.New()

	resp, rest, err := s.ParseResponse([]byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nokTRAILER"))
	require.NoError(t, err)
	require.Equal(t, status.OK, resp.Code)
	require.Equal(t, "ok", string(resp.Body))
	require.Equal(t, "TRAILER", string(rest))
}

func TestConfigurationItems(t *testing.T) {
	s := htcore.New()

	v, ok := s.GetConfigurationItem(config.KeyPort)
	require.True(t, ok)
	require.Equal(t, "8888", v)

	var events []diagnostics.Event
	unsubscribe := s.SubscribeToDiagnostics(diagnostics.LevelConfigChange, func(e diagnostics.Event) {
		events = append(events, e)
	})
	defer unsubscribe()

	require.NoError(t, s.SetConfigurationItem(config.KeyHost, "example.com"))
	require.Error(t, s.SetConfigurationItem(config.KeyPort, "not-a-port"))

	v, _ = s.GetConfigurationItem(config.KeyHost)
	require.Equal(t, "example.com", v)

	require.Len(t, events, 1)
	require.Equal(t, diagnostics.ConfigChanged{Key: config.KeyHost, Value: "example.com"}, events[0])
}

func TestDiagnostics_ConnectionLifecycle(t *testing.T) {
	s := htcore.New()

	var (
		mu     sync.Mutex
		events []diagnostics.Event
	)
	unsubscribe := s.SubscribeToDiagnostics(diagnostics.LevelConnectionLifecycle, func(e diagnostics.Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})
	defer unsubscribe()

	tr := dummy.New()
	require.NoError(t, s.Mobilize(tr, 9000, timekeeper.NewManual()))
	defer func() { _ = s.Demobilize() }()

	conn := dummy.NewConnection("peer-7")
	tr.Accept(conn)
	conn.Feed([]byte("GET / HTTP/1.1\r\nHost: example.com\r\nConnection: close\r\n\r\n"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		var sawBind, sawOpen, sawClose bool
		for _, e := range events {
			switch ev := e.(type) {
			case diagnostics.BindSucceeded:
				sawBind = ev.Port == 9000
			case diagnostics.ConnectionLifecycle:
				sawOpen = sawOpen || ev.Kind == diagnostics.ConnectionOpened
				sawClose = sawClose || ev.Kind == diagnostics.ConnectionClosed
			}
		}

		return sawBind && sawOpen && sawClose
	}, waitFor, 5*time.Millisecond)
}

func TestResources_DumpThroughFacade(t *testing.T) {
	s := htcore.New()

	h := func(req *http.Request, conn transport.Connection, residual []byte) *http.Response {
		return http.NewResponse()
	}

	_, err := s.RegisterResource("/a/b", h)
	require.NoError(t, err)
	_, err = s.RegisterResource("/c", h)
	require.NoError(t, err)

	require.Equal(t, []string{"/a/b", "/c"}, s.Resources())
}
