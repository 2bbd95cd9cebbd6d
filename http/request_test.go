package http_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/webcore/htcore/http"
	"github.com/webcore/htcore/status"
)

func TestNewRequest_Defaults(t *testing.T) {
	req := http.New()

	require.Equal(t, http.StateRequestLine, req.State)
	require.True(t, req.Valid)
	require.Equal(t, status.BadRequest, req.ResponseStatusCode)
	require.Equal(t, status.Phrase("Bad Request"), req.ResponseStatusPhrase)
	require.False(t, req.State.Terminal())
}

func TestRequest_FailKeepsState(t *testing.T) {
	req := http.New()
	req.State = http.StateHeaders

	req.Fail(status.BadRequest)

	require.Equal(t, http.StateHeaders, req.State)
	require.False(t, req.Valid)
}

func TestRequest_DieIsTerminal(t *testing.T) {
	req := http.New()

	req.Die(status.PayloadTooLarge)

	require.Equal(t, http.StateError, req.State)
	require.True(t, req.State.Terminal())
	require.Equal(t, status.PayloadTooLarge, req.ResponseStatusCode)
	require.Equal(t, status.Phrase("Payload Too Large"), req.ResponseStatusPhrase)
}

func TestRequest_Reset(t *testing.T) {
	req := http.New()
	req.Headers.Add("Host", "example.com")
	req.Body = []byte("data")
	req.Die(status.PayloadTooLarge)

	req.Reset()

	require.Equal(t, http.StateRequestLine, req.State)
	require.True(t, req.Valid)
	require.Zero(t, req.Headers.Len())
	require.Empty(t, req.Body)
	require.Equal(t, status.BadRequest, req.ResponseStatusCode)
}

func TestParseMethod(t *testing.T) {
	require.Equal(t, http.GET, http.ParseMethod("GET"))
	require.Equal(t, http.OPTIONS, http.ParseMethod("OPTIONS"))
	require.Equal(t, http.Unknown, http.ParseMethod("BREW"))
	require.Equal(t, "DELETE", http.DELETE.String())
}
