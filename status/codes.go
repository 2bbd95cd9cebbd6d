package status

/*
INFO: this is a copy-paste of the IANA status code registry, same as
net/http's, kept here to avoid pulling the whole net/http package in
just for a handful of constants.
*/

// Code is an HTTP status code.
type Code uint16

// Phrase is the textual reason phrase accompanying a Code.
type Phrase string

const (
	Continue           Code = 100
	SwitchingProtocols Code = 101

	OK        Code = 200
	Created   Code = 201
	Accepted  Code = 202
	NoContent Code = 204

	MovedPermanently Code = 301
	Found            Code = 302
	NotModified      Code = 304

	BadRequest         Code = 400
	Unauthorized       Code = 401
	Forbidden          Code = 403
	NotFound           Code = 404
	MethodNotAllowed   Code = 405
	RequestTimeout     Code = 408
	Conflict           Code = 409
	LengthRequired     Code = 411
	PayloadTooLarge    Code = 413
	URITooLong         Code = 414
	UnsupportedMedia   Code = 415
	ExpectationFailed  Code = 417
	UnprocessableEntry Code = 422
	TooManyRequests    Code = 429

	InternalServerError     Code = 500
	NotImplemented          Code = 501
	BadGateway              Code = 502
	ServiceUnavailable      Code = 503
	HTTPVersionNotSupported Code = 505
)

// Phrases maps well-known codes to their canonical reason phrase. Codes
// outside this table still render fine; the caller just has to supply
// its own phrase.
var Phrases = map[Code]Phrase{
	Continue:           "Continue",
	SwitchingProtocols: "Switching Protocols",

	OK:        "OK",
	Created:   "Created",
	Accepted:  "Accepted",
	NoContent: "No Content",

	MovedPermanently: "Moved Permanently",
	Found:            "Found",
	NotModified:      "Not Modified",

	BadRequest:         "Bad Request",
	Unauthorized:       "Unauthorized",
	Forbidden:          "Forbidden",
	NotFound:           "Not Found",
	MethodNotAllowed:   "Method Not Allowed",
	RequestTimeout:     "Request Timeout",
	Conflict:           "Conflict",
	LengthRequired:     "Length Required",
	PayloadTooLarge:    "Payload Too Large",
	URITooLong:         "URI Too Long",
	UnsupportedMedia:   "Unsupported Media Type",
	ExpectationFailed:  "Expectation Failed",
	UnprocessableEntry: "Unprocessable Entity",
	TooManyRequests:    "Too Many Requests",

	InternalServerError:     "Internal Server Error",
	NotImplemented:          "Not Implemented",
	BadGateway:              "Bad Gateway",
	ServiceUnavailable:      "Service Unavailable",
	HTTPVersionNotSupported: "HTTP Version Not Supported",
}

// Text returns the canonical reason phrase for code, or "Unknown Status
// Code" if code isn't in the table.
func Text(code Code) Phrase {
	if p, ok := Phrases[code]; ok {
		return p
	}

	return "Unknown Status Code"
}
