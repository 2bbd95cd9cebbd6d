// Package http1 implements the incremental HTTP/1.1 request parser: a
// single Parse entrypoint that resumes mid-message via persisted state,
// advancing a request across the {RequestLine, Headers, Body} phases,
// with header-field scanning delegated to internal/headerscan.
package http1

import (
	"bytes"
	"net/url"

	"github.com/indigo-web/utils/uf"

	"github.com/webcore/htcore/config"
	"github.com/webcore/htcore/http"
	"github.com/webcore/htcore/internal/headerscan"
	"github.com/webcore/htcore/status"
)

const maxInt64 = 1<<63 - 1

const protoToken = "HTTP/1.1"

// Parser advances one Request's parse state across repeated calls.
// Call Bind once per new request, then Parse with the connection's
// current unconsumed buffer every time more bytes arrive (the same
// cumulative buffer, not just the newest chunk) until the request
// reaches a terminal state.
type Parser struct {
	cfg *config.Configuration
	req *http.Request

	// offset is how many leading bytes of the buffer handed to Parse
	// have already been folded into req (request line + headers +
	// body so far), independent of what Parse returns to the caller.
	offset int

	scanner           *headerscan.Scanner
	contentLength     int64
	haveContentLength bool
}

func NewParser(cfg *config.Configuration) *Parser {
	return &Parser{cfg: cfg}
}

// Bind attaches req as the request this Parser fills, resetting all
// scratch state for a new message.
func (p *Parser) Bind(req *http.Request) {
	p.req = req
	p.offset = 0
	p.scanner = nil
	p.contentLength = 0
	p.haveContentLength = false
}

// Parse advances p.req across at most its three remaining phase
// transitions. buf is the connection's full current unconsumed buffer.
// Returns 0 while the request remains non-terminal; once req.State
// reaches Complete or Error, returns the total number of leading bytes
// of buf that belong to this request, which the caller should strip
// from its buffer before the next call (for this request or the next
// pipelined one). The one exception is a request line longer than
// HeaderLineLimit: the request goes to Error and Parse returns 0.
func (p *Parser) Parse(buf []byte) (consumed int) {
	req := p.req
	typed := p.cfg.Typed()

	if req.State == http.StateRequestLine {
		if !p.parseRequestLine(buf, typed.HeaderLineLimit) {
			return 0
		}
	}

	if req.State == http.StateHeaders {
		if p.scanner == nil {
			p.scanner = headerscan.NewScanner(typed.HeaderLineLimit)
		}

		rest := buf[p.offset:]
		outcome, n := p.scanner.Parse(rest, req.Headers)
		p.offset += n

		switch outcome {
		case headerscan.Incomplete:
			return 0
		case headerscan.Error:
			req.Die(status.BadRequest)
			return p.offset
		}

		p.onHeadersComplete(typed.Host)
		req.State = http.StateBody
	}

	if req.State == http.StateBody {
		if !p.resolveContentLength() {
			return p.offset
		}

		rest := buf[p.offset:]
		if int64(len(rest)) < p.contentLength {
			return 0
		}

		if p.contentLength > 0 {
			req.Body = append([]byte(nil), rest[:p.contentLength]...)
		}

		p.offset += int(p.contentLength)
		req.State = http.StateComplete
	}

	return p.offset
}

// parseRequestLine scans buf[p.offset:] for the request line's
// terminating CRLF. Returns true once the line has been consumed and
// req.State has advanced to Headers (whether or not the line was
// semantically valid); false if more bytes are needed or the line
// itself was a fatal framing violation.
func (p *Parser) parseRequestLine(buf []byte, lineLimit int) bool {
	req := p.req
	rest := buf[p.offset:]

	idx := bytes.Index(rest, []byte("\r\n"))
	if idx == -1 {
		if len(rest) > lineLimit {
			req.Die(status.BadRequest)
		}

		return false
	}

	if idx > lineLimit {
		req.Die(status.BadRequest)
		return false
	}

	line := rest[:idx]
	p.offset += idx + 2

	method, target, proto, ok := splitRequestLine(line)
	if !ok {
		req.Fail(status.BadRequest)
		req.State = http.StateHeaders
		return true
	}

	if len(method) == 0 {
		req.Fail(status.BadRequest)
	} else {
		req.MethodToken = string(method)
		req.Method = http.ParseMethod(req.MethodToken)
	}

	if len(target) == 0 {
		req.Fail(status.BadRequest)
	} else if u, err := url.ParseRequestURI(string(target)); err != nil {
		req.Fail(status.BadRequest)
	} else {
		req.Target = u
	}

	if uf.B2S(proto) != protoToken {
		req.Fail(status.BadRequest)
	} else {
		req.Proto = http.HTTP11
	}

	req.State = http.StateHeaders

	return true
}

// splitRequestLine splits "METHOD SP TARGET SP PROTO" on the first and
// second spaces. ok is false only when fewer than two spaces are
// present at all (a line that can't even be tokenized); individual
// empty tokens are reported back to the caller instead, since those
// are recoverable (a bad token invalidates the request, but parsing
// continues).
func splitRequestLine(line []byte) (method, target, proto []byte, ok bool) {
	firstSP := bytes.IndexByte(line, ' ')
	if firstSP == -1 {
		return nil, nil, nil, false
	}

	rest := line[firstSP+1:]
	secondSP := bytes.IndexByte(rest, ' ')
	if secondSP == -1 {
		return nil, nil, nil, false
	}

	return line[:firstSP], rest[:secondSP], rest[secondSP+1:], true
}

// onHeadersComplete validates Host with an order-independent rule:
// empty fields default to their counterpart before the three-way
// comparison, not after.
func (p *Parser) onHeadersComplete(serverHostCfg string) {
	req := p.req

	req.Env.Connection = req.Headers.Value("Connection")
	req.Env.Upgrade = req.Headers.Value("Upgrade")

	requestHost, present := req.Headers.Get("Host")
	if !present {
		req.Fail(status.BadRequest)
		return
	}

	serverHost := serverHostCfg
	if serverHost == "" {
		serverHost = requestHost
	}

	targetHost := ""
	if req.Target != nil {
		targetHost = req.Target.Host
	}
	if targetHost == "" {
		targetHost = serverHost
	}

	if !(requestHost == targetHost && targetHost == serverHost) {
		req.Fail(status.BadRequest)
	}
}

// resolveContentLength reads and validates Content-Length exactly once
// per request. Returns false if the request died because the value was
// malformed or oversized; an absent Content-Length resolves to 0 and
// returns true.
func (p *Parser) resolveContentLength() bool {
	if p.haveContentLength {
		return true
	}

	req := p.req

	raw, present := req.Headers.Get("Content-Length")
	if !present {
		p.contentLength = 0
		p.haveContentLength = true
		return true
	}

	n, overflowed, malformed := parseDecimalInt64(raw)
	switch {
	case malformed:
		req.Die(status.BadRequest)
		return false
	case overflowed:
		req.Die(status.PayloadTooLarge)
		return false
	case n > config.MaxContentLength:
		req.Die(status.PayloadTooLarge)
		return false
	}

	req.Env.ContentLength = int(n)
	p.contentLength = n
	p.haveContentLength = true

	return true
}

// parseDecimalInt64 parses s as a non-negative decimal integer,
// distinguishing a non-digit character from an overflow during
// accumulation.
func parseDecimalInt64(s string) (n int64, overflowed, malformed bool) {
	if len(s) == 0 {
		return 0, false, true
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false, true
		}

		d := int64(c - '0')
		if n > (maxInt64-d)/10 {
			return 0, true, false
		}

		n = n*10 + d
	}

	return n, false, false
}
