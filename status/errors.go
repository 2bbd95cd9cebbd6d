package status

import "errors"

// HTTPError couples a plain Go error with the status code a dispatcher
// should answer it with. The header scanner and the client response
// parser return these instead of panicking; nothing in this module
// throws.
type HTTPError struct {
	Code    Code
	Message string
}

func (e HTTPError) Error() string {
	return e.Message
}

func NewHTTPError(code Code, message string) HTTPError {
	return HTTPError{Code: code, Message: message}
}

var (
	// ErrTooLongRequestLine describes a request line exceeding the
	// configured HeaderLineLimit. The request parser does not return it:
	// it records that case on the Request as an Error with status 400.
	ErrTooLongRequestLine = NewHTTPError(URITooLong, "request line too long")
	// ErrTooLongHeaderLine is returned when a single header line exceeds
	// HeaderLineLimit.
	ErrTooLongHeaderLine = NewHTTPError(BadRequest, "header line too long")
	// ErrBadContentLength is returned when Content-Length isn't a valid
	// non-negative decimal integer.
	ErrBadContentLength = NewHTTPError(BadRequest, "malformed content-length")
	// ErrContentLengthOverflow describes Content-Length digits
	// overflowing their integer representation. The request parser does
	// not return it: it records that case on the Request as an Error
	// with status 413.
	ErrContentLengthOverflow = NewHTTPError(PayloadTooLarge, "content-length overflow")
	// ErrContentLengthTooLarge describes a Content-Length above
	// MaxContentLength; like ErrContentLengthOverflow, the request parser
	// records it on the Request as a 413 instead of returning it.
	ErrContentLengthTooLarge = NewHTTPError(PayloadTooLarge, "content-length exceeds limit")
	// ErrBadRequestLine covers a malformed method/target/protocol triad.
	ErrBadRequestLine = NewHTTPError(BadRequest, "malformed request line")

	// ErrAlreadyMobilized is returned by Mobilize when the server is
	// already bound and accepting connections.
	ErrAlreadyMobilized = errors.New("htcore: already mobilized")
	// ErrNotMobilized describes an operation that needs a bound server
	// when it isn't one. No operation of the Server returns it;
	// Demobilize on an unbound server returns nil.
	ErrNotMobilized = errors.New("htcore: not mobilized")
	// ErrRegistrationOverlap is returned by Server.RegisterResource when
	// the registry rejects a registration that would overlap an existing
	// handler's subtree.
	ErrRegistrationOverlap = errors.New("htcore: resource registration overlaps an existing handler")
	// ErrConnectionClosed signals the peer connection is gone. The
	// dispatcher does not use it; it short-circuits a closed connection
	// through ConnectionState's AcceptingRequests flag.
	ErrConnectionClosed = errors.New("htcore: connection closed")

	// ErrHTTPVersionNotSupported is returned by the client response
	// parser upon an unrecognized protocol token.
	ErrHTTPVersionNotSupported = NewHTTPError(HTTPVersionNotSupported, "unsupported protocol version")
	// ErrTooLongResponseLine mirrors ErrTooLongRequestLine for the
	// client-side response parser.
	ErrTooLongResponseLine = NewHTTPError(BadRequest, "response line too long")
)
