package http

import (
	"net/url"

	"github.com/webcore/htcore/kv"
	"github.com/webcore/htcore/status"
)

// State is the incremental parse state of a Request. Complete and
// Error are terminal: once reached, no further bytes are
// consumed on behalf of that request.
type State uint8

const (
	StateRequestLine State = iota
	StateHeaders
	StateBody
	StateComplete
	StateError
)

func (s State) Terminal() bool {
	return s == StateComplete || s == StateError
}

// Environment carries the handful of contextual values a handler may
// need that don't belong on the wire-level Headers storage itself,
// trimmed to what this core actually derives during parsing.
type Environment struct {
	// ContentLength is the parsed Content-Length header value, 0 if
	// absent. Kept distinct from len(Body) so a handler inspecting a
	// request that errored out mid-body still sees the declared size.
	ContentLength int
	// Connection is the raw, un-split Connection header value.
	Connection string
	// Upgrade is the raw Upgrade header value, empty if none was sent.
	Upgrade string
}

// Request represents an HTTP/1.1 request message as it is incrementally
// assembled by the RequestParser (internal/parser/http1) and later
// handed to the Dispatcher.
type Request struct {
	// Method is the request method token. Parser only requires it be
	// non-empty; ParseMethod maps unrecognized tokens to Unknown.
	Method Method
	// MethodToken preserves the raw method text, for custom verbs that
	// ParseMethod doesn't recognize.
	MethodToken string
	// Target is the parsed request-target. Nil if the target text
	// couldn't be parsed as a URI at all (the request is then invalid
	// but parsing still proceeds).
	Target *url.URL
	// Proto is the protocol token off the request line. The parser only
	// accepts HTTP/1.1; any other token marks the request invalid.
	Proto Proto
	// Headers holds the request's header fields.
	Headers *kv.Storage
	// Body is the request body, exactly Content-Length bytes, or empty
	// if no Content-Length header was present.
	Body []byte

	// State is the current parse state.
	State State
	// Valid is false when a recoverable semantic violation was found
	// (bad request line, missing/mismatched Host, ...). A Complete
	// request with Valid=false still produces a 400 but leaves the
	// connection open; see internal/dispatch.
	Valid bool

	// ResponseStatusCode/ResponseStatusPhrase override what the
	// dispatcher answers with when State == StateError. Default to
	// 400/"Bad Request" unless Content-Length overflowed or exceeded
	// the ceiling, in which case the parser sets 413.
	ResponseStatusCode   status.Code
	ResponseStatusPhrase status.Phrase

	// Env carries small contextual extras derived while parsing.
	Env Environment

	// Remote is the transport-supplied peer identifier.
	Remote string
}

// New returns a fresh Request ready for its first parse call.
func New() *Request {
	return &Request{
		State:                StateRequestLine,
		Valid:                true,
		Headers:              kv.New(),
		ResponseStatusCode:   status.BadRequest,
		ResponseStatusPhrase: status.Text(status.BadRequest),
	}
}

// Reset restores r to the state New() would produce, reusing its
// Headers storage's backing array. Called by the dispatcher after a
// non-upgrade response, so a pipelined connection can parse its next
// request without reallocating.
func (r *Request) Reset() {
	r.Method = Unknown
	r.MethodToken = ""
	r.Target = nil
	r.Proto = ProtoUnknown
	r.Headers.Clear()
	r.Body = nil
	r.State = StateRequestLine
	r.Valid = true
	r.ResponseStatusCode = status.BadRequest
	r.ResponseStatusPhrase = status.Text(status.BadRequest)
	r.Env = Environment{}
}

// Fail marks the request terminally invalid with the given override
// status, without abandoning whatever partial state was already parsed
// (the connection stays open unless the caller also sets State=Error).
func (r *Request) Fail(code status.Code) {
	r.Valid = false
	r.ResponseStatusCode = code
	r.ResponseStatusPhrase = status.Text(code)
}

// Die transitions the request to the terminal Error state with the
// given override status — used for framing violations from which
// parsing cannot continue (malformed framing, payload too large).
func (r *Request) Die(code status.Code) {
	r.State = StateError
	r.Valid = false
	r.ResponseStatusCode = code
	r.ResponseStatusPhrase = status.Text(code)
}
