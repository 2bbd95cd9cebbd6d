// Package http1 implements the HTTP/1.1 response serializer: status
// line, automatic Content-Length, headers and body or attachment, with
// the Connection header the dispatcher wants sent merged into whatever
// a handler already set.
package http1

import (
	"bytes"
	"io"
	"strconv"
	"strings"

	"github.com/indigo-web/utils/strcomp"

	"github.com/webcore/htcore/http"
)

// Serializer renders a *http.Response to wire bytes. Reuse one instance
// per connection; Serialize resets its internal buffer on every call.
type Serializer struct {
	buf bytes.Buffer
}

func NewSerializer() *Serializer {
	return new(Serializer)
}

// Serialize renders the status line, headers and (for a non-streaming
// response) the body into a single byte slice valid until the next
// call. forceClose additionally folds "close" into the Connection
// header regardless of what the handler set, for when the dispatcher
// has decided this is the last response on the connection.
//
// If resp.Attachment is set, the returned bytes cover only the status
// line and headers; the caller must stream the attachment separately
// with WriteAttachment after sending these bytes.
func (s *Serializer) Serialize(resp *http.Response, forceClose bool) []byte {
	s.buf.Reset()
	s.writeHead(resp, forceClose)

	if resp.Attachment == nil {
		s.buf.Write(resp.Body)
	}

	return s.buf.Bytes()
}

// WriteAttachment copies resp.Attachment.Reader to w. Call only after
// sending the bytes Serialize returned for the same response.
func (s *Serializer) WriteAttachment(w io.Writer, resp *http.Response) error {
	if resp.Attachment == nil {
		return nil
	}

	_, err := io.Copy(w, resp.Attachment.Reader)

	return err
}

func (s *Serializer) writeHead(resp *http.Response, forceClose bool) {
	s.buf.WriteString("HTTP/1.1 ")
	s.buf.WriteString(strconv.Itoa(int(resp.Code)))
	s.buf.WriteByte(' ')
	s.buf.WriteString(string(resp.Phrase))
	s.buf.WriteString("\r\n")

	bodyLen := len(resp.Body)
	if resp.Attachment != nil {
		bodyLen = resp.Attachment.Size
	}

	hasContentLength := resp.Headers.Has("Content-Length")
	hasTransferEncoding := resp.Headers.Has("Transfer-Encoding")

	if !hasTransferEncoding && !hasContentLength && bodyLen > 0 {
		s.writeHeader("Content-Length", strconv.Itoa(bodyLen))
	}

	for _, pair := range resp.Headers.Unwrap() {
		if strcomp.EqualFold(pair.Key, "Connection") {
			continue
		}

		s.writeHeader(pair.Key, pair.Value)
	}

	if merged := mergeConnection(resp.Headers.Values("Connection"), forceClose); merged != "" {
		s.writeHeader("Connection", merged)
	}

	s.buf.WriteString("\r\n")
}

func (s *Serializer) writeHeader(key, value string) {
	s.buf.WriteString(key)
	s.buf.WriteString(": ")
	s.buf.WriteString(value)
	s.buf.WriteString("\r\n")
}

// mergeConnection joins whatever Connection values a handler already
// set with "close", if forceClose asks for it and it isn't already
// among them.
func mergeConnection(existing []string, forceClose bool) string {
	values := append([]string(nil), existing...)

	if forceClose {
		already := false
		for _, v := range values {
			if strcomp.EqualFold(v, "close") {
				already = true
				break
			}
		}

		if !already {
			values = append(values, "close")
		}
	}

	return strings.Join(values, ", ")
}
