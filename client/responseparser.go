// Package client contains the client side of this module: an HTTP/1.1
// response parser built around the same http.Response value the server
// emits and the same header scanner the server-side request parser
// delegates to.
package client

import (
	"errors"

	"github.com/indigo-web/utils/uf"

	"github.com/webcore/htcore/http"
	"github.com/webcore/htcore/internal/headerscan"
	"github.com/webcore/htcore/kv"
	"github.com/webcore/htcore/status"
)

// ErrIncompleteResponse is returned by ParseResponse when the input
// ends before the message does.
var ErrIncompleteResponse = errors.New("client: incomplete response")

const statusLineProto = "HTTP/1.1 "

type parseState uint8

const (
	stateStatusLine parseState = iota
	stateHeaders
	stateBody
	stateDone
)

// ResponseParser incrementally parses one HTTP/1.1 response. Feed it
// chunks via Parse until done; Response then holds the parsed message.
// Rebind with Init to reuse the parser for the next response on the
// same connection.
type ResponseParser struct {
	lineLimit int

	state   parseState
	resp    *http.Response
	line    []byte
	scanner *headerscan.Scanner

	contentLength int
}

// NewResponseParser returns a parser enforcing lineLimit bytes for the
// status line and each header line.
func NewResponseParser(lineLimit int) *ResponseParser {
	p := &ResponseParser{lineLimit: lineLimit}
	p.Init()

	return p
}

// Init resets the parser for a fresh response.
func (p *ResponseParser) Init() {
	p.state = stateStatusLine
	p.resp = &http.Response{Headers: kv.New()}
	p.line = p.line[:0]
	p.scanner = headerscan.NewScanner(p.lineLimit)
	p.contentLength = 0
}

// Response returns the parsed message. Only meaningful once Parse has
// reported done.
func (p *ResponseParser) Response() *http.Response {
	return p.resp
}

// Parse consumes data, advancing the response across status line,
// headers and body. done reports whether the message is complete; rest
// holds the bytes past its end (the start of the next pipelined
// response, if any).
func (p *ResponseParser) Parse(data []byte) (done bool, rest []byte, err error) {
	if p.state == stateStatusLine {
		data, err = p.parseStatusLine(data)
		if err != nil {
			return false, nil, err
		}

		if p.state == stateStatusLine {
			return false, nil, nil
		}
	}

	if p.state == stateHeaders {
		outcome, n := p.scanner.Parse(data, p.resp.Headers)
		data = data[n:]

		switch outcome {
		case headerscan.Incomplete:
			return false, nil, nil
		case headerscan.Error:
			return false, nil, p.scanner.Err
		}

		if err = p.resolveContentLength(); err != nil {
			return false, nil, err
		}

		p.state = stateBody
	}

	if p.state == stateBody {
		missing := p.contentLength - len(p.resp.Body)
		if len(data) < missing {
			p.resp.Body = append(p.resp.Body, data...)
			return false, nil, nil
		}

		p.resp.Body = append(p.resp.Body, data[:missing]...)
		data = data[missing:]
		p.state = stateDone
	}

	return true, data, nil
}

func (p *ResponseParser) parseStatusLine(data []byte) (rest []byte, err error) {
	for i, b := range data {
		if b != '\n' {
			continue
		}

		p.line = append(p.line, data[:i]...)
		if len(p.line) > p.lineLimit {
			return nil, status.ErrTooLongResponseLine
		}

		if err = p.finishStatusLine(stripCR(p.line)); err != nil {
			return nil, err
		}

		p.state = stateHeaders

		return data[i+1:], nil
	}

	p.line = append(p.line, data...)
	if len(p.line) > p.lineLimit {
		return nil, status.ErrTooLongResponseLine
	}

	return nil, nil
}

// finishStatusLine splits "HTTP/1.1 SP code SP phrase" and fills the
// response's code and phrase. Codes are 100-999.
func (p *ResponseParser) finishStatusLine(line []byte) error {
	if len(line) < len(statusLineProto) || uf.B2S(line[:len(statusLineProto)]) != statusLineProto {
		return status.ErrHTTPVersionNotSupported
	}

	line = line[len(statusLineProto):]

	if len(line) < 3 {
		return status.NewHTTPError(status.BadRequest, "malformed status line")
	}

	code := 0
	for _, c := range line[:3] {
		if c < '0' || c > '9' {
			return status.NewHTTPError(status.BadRequest, "malformed status code")
		}

		code = code*10 + int(c-'0')
	}

	if code < 100 {
		return status.NewHTTPError(status.BadRequest, "status code out of range")
	}

	p.resp.Code = status.Code(code)

	switch {
	case len(line) == 3:
		p.resp.Phrase = ""
	case line[3] == ' ':
		p.resp.Phrase = status.Phrase(line[4:])
	default:
		return status.NewHTTPError(status.BadRequest, "malformed status line")
	}

	return nil
}

func (p *ResponseParser) resolveContentLength() error {
	raw, present := p.resp.Headers.Get("Content-Length")
	if !present {
		return nil
	}

	// 18 digits is already beyond any plausible message; rejecting here
	// keeps the digit accumulation below overflow-free.
	if len(raw) == 0 || len(raw) > 18 {
		return status.ErrBadContentLength
	}

	n := 0
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c < '0' || c > '9' {
			return status.ErrBadContentLength
		}

		n = n*10 + int(c-'0')
	}

	p.contentLength = n

	return nil
}

func stripCR(line []byte) []byte {
	if len(line) > 0 && line[len(line)-1] == '\r' {
		return line[:len(line)-1]
	}

	return line
}

// ParseResponse parses one complete response out of data, returning it
// along with any trailing bytes. It fails with ErrIncompleteResponse if
// data ends mid-message.
func ParseResponse(data []byte, lineLimit int) (*http.Response, []byte, error) {
	p := NewResponseParser(lineLimit)

	done, rest, err := p.Parse(data)
	if err != nil {
		return nil, nil, err
	}

	if !done {
		return nil, nil, ErrIncompleteResponse
	}

	return p.Response(), rest, nil
}
