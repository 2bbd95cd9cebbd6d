// Package headerscan is the incremental header-field scanner the
// request parser's header phase delegates to, factored into its own
// unit behind a Complete/Incomplete/Error contract so it could be
// swapped for an external message-headers module without touching the
// parser.
package headerscan

import (
	"github.com/webcore/htcore/kv"
	"github.com/webcore/htcore/status"
)

var errMalformedLine = status.NewHTTPError(status.BadRequest, "malformed header line")

// Outcome is the result of one Parse call.
type Outcome uint8

const (
	Incomplete Outcome = iota
	Complete
	Error
)

type scanState uint8

const (
	stateKey scanState = iota
	stateSkipOWS
	stateValue
	stateValueCR
	stateAfterValueLF
	stateBlankLineLF
)

// Scanner incrementally parses `field-name ":" OWS field-value CRLF`
// lines terminated by a blank CRLF, folding RFC 7230 obs-fold
// continuation lines (a line starting with SP/HTAB) into the previous
// value with a single joining space.
type Scanner struct {
	state      scanState
	lineLimit  int
	key        []byte
	value      []byte
	lineLength int
	Err        status.HTTPError
}

// NewScanner returns a Scanner enforcing lineLimit bytes per header
// line (key plus value, excluding CRLF).
func NewScanner(lineLimit int) *Scanner {
	return &Scanner{lineLimit: lineLimit}
}

// Parse advances the scanner across data, adding each completed
// key/value pair to headers. It returns the outcome and how many bytes
// of data were consumed; on Incomplete, call Parse again later with
// the next chunk (not the whole remaining buffer re-sliced from the
// start — only the genuinely new bytes).
func (s *Scanner) Parse(data []byte, headers *kv.Storage) (outcome Outcome, consumed int) {
	i := 0

	for i < len(data) {
		b := data[i]

		switch s.state {
		case stateKey:
			if b == '\r' && len(s.key) == 0 {
				s.state = stateBlankLineLF
				i++
				continue
			}

			if b == ':' {
				s.state = stateSkipOWS
				i++
				continue
			}

			if !s.countByte() {
				s.Err = status.ErrTooLongHeaderLine
				return Error, i + 1
			}

			s.key = append(s.key, b)
			i++

		case stateSkipOWS:
			if b == ' ' || b == '\t' {
				if !s.countByte() {
					s.Err = status.ErrTooLongHeaderLine
					return Error, i + 1
				}

				i++
				continue
			}

			s.state = stateValue

		case stateValue:
			if b == '\r' {
				s.state = stateValueCR
				i++
				continue
			}

			if !s.countByte() {
				s.Err = status.ErrTooLongHeaderLine
				return Error, i + 1
			}

			s.value = append(s.value, b)
			i++

		case stateValueCR:
			if b != '\n' {
				s.Err = errMalformedLine
				return Error, i + 1
			}

			i++
			s.state = stateAfterValueLF

		case stateAfterValueLF:
			if b == ' ' || b == '\t' {
				// obs-fold: continuation line extends the current value
				s.value = append(s.value, ' ')
				s.state = stateSkipOWS
				i++
				continue
			}

			s.commitHeader(headers)
			s.state = stateKey
			// do not consume b: it is the first byte of the next key

		case stateBlankLineLF:
			if b != '\n' {
				s.Err = errMalformedLine
				return Error, i + 1
			}

			i++
			s.reset()
			return Complete, i
		}
	}

	return Incomplete, i
}

func (s *Scanner) countByte() bool {
	s.lineLength++
	return s.lineLength <= s.lineLimit
}

func (s *Scanner) commitHeader(headers *kv.Storage) {
	headers.Add(string(s.key), string(trimTrailingOWS(s.value)))
	s.key = s.key[:0]
	s.value = s.value[:0]
	s.lineLength = 0
}

func (s *Scanner) reset() {
	s.state = stateKey
	s.key = s.key[:0]
	s.value = s.value[:0]
	s.lineLength = 0
}

func trimTrailingOWS(b []byte) []byte {
	end := len(b)
	for end > 0 && (b[end-1] == ' ' || b[end-1] == '\t') {
		end--
	}

	return b[:end]
}
