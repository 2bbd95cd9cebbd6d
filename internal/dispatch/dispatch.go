// Package dispatch routes terminal requests to their handlers and
// emits responses: the read-parse-respond loop at the heart of the
// server, including error-response synthesis, close propagation and
// protocol-upgrade handoff.
package dispatch

import (
	"strings"
	"time"

	"github.com/indigo-web/utils/strcomp"

	"github.com/webcore/htcore/diagnostics"
	"github.com/webcore/htcore/http"
	"github.com/webcore/htcore/internal/connstate"
	httpserializer "github.com/webcore/htcore/internal/serializer/http1"
	"github.com/webcore/htcore/registry"
	"github.com/webcore/htcore/status"
)

const cannedErrorBody = "BadRequest.\r\n"

// Dispatcher routes terminal requests to handlers, synthesizes error
// responses, serializes and sends the result, and decides whether the
// connection stays open, closes, or has been handed off via protocol
// upgrade.
type Dispatcher struct {
	registry   *registry.Registry
	serializer *httpserializer.Serializer
	diagnostic *diagnostics.Sender

	// Clock, when set, supplies monotonic seconds readings used to
	// time handler invocations for RequestTrace events. Left nil,
	// Elapsed is reported as zero.
	Clock func() float64
}

func New(reg *registry.Registry, diag *diagnostics.Sender) *Dispatcher {
	return &Dispatcher{
		registry:   reg,
		serializer: httpserializer.NewSerializer(),
		diagnostic: diag,
	}
}

// Outcome tells the caller (the connection's read loop) what to do
// next.
type Outcome uint8

const (
	// Continue means the connection stays open; keep reading.
	Continue Outcome = iota
	// Closed means the Dispatcher closed the transport itself
	// (Connection: close, a timeout, or a hard parse failure).
	Closed
	// Upgraded means a handler returned 101 and took ownership of the
	// connection; the caller must stop routing data through HandleData.
	Upgraded
)

// HandleData appends newly-read bytes to cs, then repeatedly parses
// and dispatches as many terminal requests as the buffer yields. now
// is the current monotonic seconds reading from the Server's
// TimeKeeper.
func (d *Dispatcher) HandleData(cs *connstate.State, data []byte, now float64) Outcome {
	if !cs.AcceptingRequests {
		return Closed
	}

	cs.Append(data, now)

	for {
		consumed := cs.Parser.Parse(cs.Buffer)
		if consumed == 0 && !cs.NextRequest.State.Terminal() {
			return Continue
		}

		// consumed == 0 with a terminal state happens when the request
		// line overran the limit before its CRLF ever arrived; the
		// buffer holds no complete message, only garbage to drop.
		if consumed == 0 {
			consumed = len(cs.Buffer)
		}

		req := cs.NextRequest
		cs.Consume(consumed)

		outcome := d.respond(cs, req, now)
		if outcome != Continue {
			return outcome
		}

		if len(cs.Buffer) == 0 {
			return Continue
		}
	}
}

// HandleTimeout synthesizes and sends a 408 response for cs. Always
// closes the connection.
func (d *Dispatcher) HandleTimeout(cs *connstate.State) {
	resp := cannedResponse(status.RequestTimeout)
	d.send(cs, resp, true)
	cs.AcceptingRequests = false

	if cs.Transport != nil {
		_ = cs.Transport.Close()
	}
}

// respond builds the response for one terminal request, sends it, and
// reports what the caller should do with the connection afterward.
func (d *Dispatcher) respond(cs *connstate.State, req *http.Request, now float64) Outcome {
	start := d.clock()

	req.Remote = cs.ID
	resp, forceClose := d.buildResponse(cs, req)

	if containsClose(req.Env.Connection) {
		forceClose = true
	}

	upgraded := resp.Code == status.SwitchingProtocols

	d.send(cs, resp, forceClose && !upgraded)

	if d.diagnostic != nil {
		d.diagnostic.Send(diagnostics.RequestTrace{
			PeerID:     cs.ID,
			Method:     req.MethodToken,
			Path:       requestPath(req),
			StatusCode: resp.Code,
			Elapsed:    time.Duration((d.clock() - start) * float64(time.Second)),
		})
	}

	switch {
	case upgraded:
		cs.AcceptingRequests = false
		cs.Transport = nil
		return Upgraded
	case forceClose:
		cs.AcceptingRequests = false
		if cs.Transport != nil {
			_ = cs.Transport.Close()
		}
		return Closed
	}

	cs.ResetRequest()
	cs.TimeLastDataReceived = now
	cs.TimeLastRequestStarted = now
	cs.TimeLastResponseCompleted = now
	cs.HasCompletedRequest = true

	return Continue
}

// buildResponse routes a valid request to its handler, or picks the
// error response a terminal-but-broken one calls for. cs.Buffer at this
// point holds the residual bytes past the request just parsed, which
// upgrade handlers receive as the new protocol's initial payload.
func (d *Dispatcher) buildResponse(cs *connstate.State, req *http.Request) (resp *http.Response, forceClose bool) {
	switch {
	case req.State == http.StateComplete && req.Valid:
		segments := registry.Split(req.Target.Path)
		handler, residual := d.registry.Lookup(segments)

		if handler == nil {
			return cannedResponse(status.NotFound), false
		}

		req.Target.Path = "/" + strings.Join(residual, "/")

		resp = handler(req, cs.Transport, cs.Buffer)
		if resp == nil {
			resp = http.NewResponse()
		}

		return resp, false

	case req.State == http.StateError && req.ResponseStatusCode == status.PayloadTooLarge:
		return cannedResponseWithOverride(req.ResponseStatusCode, req.ResponseStatusPhrase), true

	default:
		forceClose = req.State == http.StateError
		return cannedResponseWithOverride(req.ResponseStatusCode, req.ResponseStatusPhrase), forceClose
	}
}

func (d *Dispatcher) send(cs *connstate.State, resp *http.Response, forceClose bool) {
	if cs.Transport == nil {
		return
	}

	head := d.serializer.Serialize(resp, forceClose)
	if err := cs.Transport.Write(head); err != nil {
		return
	}

	if resp.Attachment != nil {
		_ = d.serializer.WriteAttachment(cs.Transport, resp)
	}
}

func (d *Dispatcher) clock() float64 {
	if d.Clock == nil {
		return 0
	}

	return d.Clock()
}

func cannedResponse(code status.Code) *http.Response {
	return cannedResponseWithOverride(code, status.Text(code))
}

func cannedResponseWithOverride(code status.Code, phrase status.Phrase) *http.Response {
	return http.NewResponse().
		Status(code).
		StatusText(phrase).
		Header("Content-Type", "text/plain").
		String(cannedErrorBody)
}

func requestPath(req *http.Request) string {
	if req.Target == nil {
		return ""
	}

	return req.Target.Path
}

func containsClose(connectionHeader string) bool {
	for _, token := range strings.Split(connectionHeader, ",") {
		if strcomp.EqualFold(strings.TrimSpace(token), "close") {
			return true
		}
	}

	return false
}
