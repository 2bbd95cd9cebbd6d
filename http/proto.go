package http

// Proto identifies the wire protocol token of a request. This module's
// request parser only accepts HTTP11; the upgrade path lets a handler
// promote a connection to any other token it names.
type Proto uint8

const (
	ProtoUnknown Proto = iota
	HTTP10
	HTTP11
)

const protoHTTP11Token = "HTTP/1.1"

func (p Proto) String() string {
	switch p {
	case HTTP10:
		return "HTTP/1.0"
	case HTTP11:
		return "HTTP/1.1"
	default:
		return ""
	}
}
