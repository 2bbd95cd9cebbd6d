package http

import (
	"io"

	json "github.com/json-iterator/go"
	"github.com/webcore/htcore/kv"
	"github.com/webcore/htcore/status"
)

// Attachment lets a handler stream a response body from an io.Reader of
// known size instead of buffering it into Body.
type Attachment struct {
	Reader io.Reader
	Size   int
}

// Response is a fluent builder for an HTTP/1.1 response message.
type Response struct {
	Code    status.Code
	Phrase  status.Phrase
	Headers *kv.Storage
	Body    []byte

	Attachment *Attachment
}

// NewResponse returns a 200 OK response with no body and no headers
// set, ready for a handler to fill in.
func NewResponse() *Response {
	return &Response{
		Code:    status.OK,
		Phrase:  status.Text(status.OK),
		Headers: kv.New(),
	}
}

// Status sets the status code and derives its canonical phrase. Use
// StatusText to override the phrase afterwards for a non-standard code.
func (r *Response) Status(code status.Code) *Response {
	r.Code = code
	r.Phrase = status.Text(code)
	return r
}

// StatusText overrides the reason phrase, leaving the code untouched.
func (r *Response) StatusText(phrase status.Phrase) *Response {
	r.Phrase = phrase
	return r
}

// Header appends one or more values under key.
func (r *Response) Header(key string, values ...string) *Response {
	for _, v := range values {
		r.Headers.Add(key, v)
	}

	return r
}

// String sets the response body to the given string.
func (r *Response) String(body string) *Response {
	r.Body = []byte(body)
	return r
}

// Bytes sets the response body to b, without copying.
func (r *Response) Bytes(b []byte) *Response {
	r.Body = b
	return r
}

// Stream sets the response body to stream from reader, advertising size
// bytes via Content-Length instead of Transfer-Encoding (chunked
// responses are not supported).
func (r *Response) Stream(reader io.Reader, size int) *Response {
	r.Attachment = &Attachment{Reader: reader, Size: size}
	return r
}

// TryJSON marshals model into the response body via json-iterator and
// sets Content-Type accordingly.
func (r *Response) TryJSON(model any) (*Response, error) {
	body, err := json.ConfigDefault.Marshal(model)
	if err != nil {
		return r, err
	}

	r.Body = body
	r.Header("Content-Type", "application/json")
	return r, nil
}

// JSON behaves like TryJSON but folds a marshal failure into a 500
// response instead of returning an error.
func (r *Response) JSON(model any) *Response {
	resp, err := r.TryJSON(model)
	if err != nil {
		return resp.Status(status.InternalServerError).String(err.Error())
	}

	return resp
}

// Clear resets r to a fresh 200 OK so it can be reused for another
// request on the same connection.
func (r *Response) Clear() *Response {
	r.Code = status.OK
	r.Phrase = status.Text(status.OK)
	r.Headers.Clear()
	r.Body = nil
	r.Attachment = nil
	return r
}
