package dispatch_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/webcore/htcore/config"
	"github.com/webcore/htcore/diagnostics"
	"github.com/webcore/htcore/http"
	"github.com/webcore/htcore/internal/connstate"
	"github.com/webcore/htcore/internal/dispatch"
	"github.com/webcore/htcore/registry"
	"github.com/webcore/htcore/status"
	"github.com/webcore/htcore/transport"
	"github.com/webcore/htcore/transport/dummy"
)

func newState(cfg *config.Configuration) (*connstate.State, *dummy.Connection) {
	conn := dummy.NewConnection("peer-1")
	return connstate.New(conn, cfg, 0), conn
}

func TestHandleData_NoHandlerYields404(t *testing.T) {
	reg := registry.New()
	d := dispatch.New(reg, nil)
	cs, conn := newState(config.Default())

	outcome := d.HandleData(cs, []byte("GET /hello.txt HTTP/1.1\r\nHost: example.com\r\n\r\n"), 1)

	require.Equal(t, dispatch.Continue, outcome)
	require.True(t, strings.HasPrefix(string(conn.Written()), "HTTP/1.1 404 Not Found\r\n"))
	require.True(t, cs.AcceptingRequests)
}

func TestHandleData_PipelinedRequestsYieldTwoResponses(t *testing.T) {
	reg := registry.New()
	d := dispatch.New(reg, nil)
	cs, conn := newState(config.Default())

	one := "GET /a HTTP/1.1\r\nHost: example.com\r\n\r\n"
	two := "GET /b HTTP/1.1\r\nHost: example.com\r\n\r\n"

	d.HandleData(cs, []byte(one+two), 1)

	out := string(conn.Written())
	require.Equal(t, 2, strings.Count(out, "404 Not Found"))
}

func TestHandleData_HandlerFound(t *testing.T) {
	reg := registry.New()
	_, ok := reg.Register(registry.Split("/greet"), func(req *http.Request, conn transport.Connection, residual []byte) *http.Response {
		return http.NewResponse().String("hi")
	})
	require.True(t, ok)

	d := dispatch.New(reg, nil)
	cs, conn := newState(config.Default())

	d.HandleData(cs, []byte("GET /greet HTTP/1.1\r\nHost: example.com\r\n\r\n"), 1)

	require.Contains(t, string(conn.Written()), "200 OK")
	require.True(t, strings.HasSuffix(string(conn.Written()), "hi"))
}

func TestHandleData_ResidualPathRewritten(t *testing.T) {
	reg := registry.New()
	var seenPath string
	_, _ = reg.Register(registry.Split("/static"), func(req *http.Request, conn transport.Connection, residual []byte) *http.Response {
		seenPath = req.Target.Path
		return http.NewResponse()
	})

	d := dispatch.New(reg, nil)
	cs, _ := newState(config.Default())

	d.HandleData(cs, []byte("GET /static/css/app.css HTTP/1.1\r\nHost: example.com\r\n\r\n"), 1)

	require.Equal(t, "/css/app.css", seenPath)
}

func TestHandleData_ConnectionCloseHonored(t *testing.T) {
	reg := registry.New()
	d := dispatch.New(reg, nil)
	cs, conn := newState(config.Default())

	req := "GET /x HTTP/1.1\r\nHost: example.com\r\nConnection: close\r\n\r\n"
	outcome := d.HandleData(cs, []byte(req), 1)

	require.Equal(t, dispatch.Closed, outcome)
	require.False(t, cs.AcceptingRequests)
	require.True(t, conn.Closed())
	require.Contains(t, string(conn.Written()), "Connection: close\r\n")
}

func TestHandleData_PayloadTooLarge(t *testing.T) {
	reg := registry.New()
	d := dispatch.New(reg, nil)
	cs, conn := newState(config.Default())

	req := "POST /x HTTP/1.1\r\nHost: example.com\r\nContent-Length: 1300000000000000000000000000\r\n\r\n"
	outcome := d.HandleData(cs, []byte(req), 1)

	require.Equal(t, dispatch.Closed, outcome)
	require.True(t, conn.Closed())
	require.Contains(t, string(conn.Written()), "413 Payload Too Large")
	require.Contains(t, string(conn.Written()), "Connection: close")
}

func TestHandleData_EmitsRequestTrace(t *testing.T) {
	reg := registry.New()
	sender := diagnostics.NewSender()

	var got []diagnostics.Event
	unsubscribe := sender.Subscribe(diagnostics.LevelRequestTrace, func(e diagnostics.Event) {
		got = append(got, e)
	})
	defer unsubscribe()

	d := dispatch.New(reg, sender)
	cs, _ := newState(config.Default())

	d.HandleData(cs, []byte("GET /x HTTP/1.1\r\nHost: example.com\r\n\r\n"), 1)

	require.Len(t, got, 1)
	trace := got[0].(diagnostics.RequestTrace)
	require.Equal(t, "GET", trace.Method)
}

func TestHandleData_UpgradeDetachesConnection(t *testing.T) {
	reg := registry.New()

	var (
		captured transport.Connection
		initial  []byte
	)
	_, ok := reg.Register(registry.Split("/ws"), func(req *http.Request, conn transport.Connection, residual []byte) *http.Response {
		captured = conn
		initial = append([]byte(nil), residual...)
		return http.NewResponse().
			Status(status.SwitchingProtocols).
			Header("Upgrade", "websocket")
	})
	require.True(t, ok)

	d := dispatch.New(reg, nil)
	cs, conn := newState(config.Default())

	req := "GET /ws HTTP/1.1\r\nHost: example.com\r\nUpgrade: websocket\r\n\r\n"
	outcome := d.HandleData(cs, []byte(req+"\x00\x01hello-new-protocol"), 1)

	require.Equal(t, dispatch.Upgraded, outcome)
	require.Same(t, transport.Connection(conn), captured)
	require.Equal(t, "\x00\x01hello-new-protocol", string(initial))
	require.Nil(t, cs.Transport)
	require.False(t, cs.AcceptingRequests)
	require.False(t, conn.Closed())
	require.True(t, strings.HasPrefix(string(conn.Written()), "HTTP/1.1 101 Switching Protocols\r\n"))
}

func TestHandleData_RequestLineOverrunClosesWithoutCRLF(t *testing.T) {
	reg := registry.New()
	d := dispatch.New(reg, nil)

	cfg := config.Default()
	require.NoError(t, cfg.Set(config.KeyHeaderLineLimit, "16"))
	cs, conn := newState(cfg)

	outcome := d.HandleData(cs, []byte("GET /"+strings.Repeat("a", 64)), 1)

	require.Equal(t, dispatch.Closed, outcome)
	require.True(t, conn.Closed())
	require.Contains(t, string(conn.Written()), "400 Bad Request")
	require.Contains(t, string(conn.Written()), "Connection: close")
}

func TestHandleTimeout_Sends408AndCloses(t *testing.T) {
	reg := registry.New()
	d := dispatch.New(reg, nil)
	cs, conn := newState(config.Default())

	d.HandleTimeout(cs)

	require.False(t, cs.AcceptingRequests)
	require.True(t, conn.Closed())
	require.True(t, strings.HasPrefix(string(conn.Written()), "HTTP/1.1 408 Request Timeout\r\n"))
	require.Contains(t, string(conn.Written()), "Connection: close")
}

func TestHandleData_DiscardedAfterClose(t *testing.T) {
	reg := registry.New()
	d := dispatch.New(reg, nil)
	cs, conn := newState(config.Default())

	d.HandleTimeout(cs)
	before := conn.Written()

	outcome := d.HandleData(cs, []byte("GET / HTTP/1.1\r\nHost: example.com\r\n\r\n"), 2)

	require.Equal(t, dispatch.Closed, outcome)
	require.Equal(t, before, conn.Written())
}
