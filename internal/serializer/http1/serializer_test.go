package http1_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/webcore/htcore/http"
	httpserializer "github.com/webcore/htcore/internal/serializer/http1"
)

func TestSerialize_AutoContentLength(t *testing.T) {
	s := httpserializer.NewSerializer()
	resp := http.NewResponse().String("hello")

	out := string(s.Serialize(resp, false))

	require.True(t, strings.HasPrefix(out, "HTTP/1.1 200 OK\r\n"))
	require.Contains(t, out, "Content-Length: 5\r\n")
	require.True(t, strings.HasSuffix(out, "\r\n\r\nhello"))
}

func TestSerialize_ForceClose(t *testing.T) {
	s := httpserializer.NewSerializer()
	resp := http.NewResponse()

	out := string(s.Serialize(resp, true))

	require.Contains(t, out, "Connection: close\r\n")
}

func TestSerialize_PreservesHandlerConnectionValue(t *testing.T) {
	s := httpserializer.NewSerializer()
	resp := http.NewResponse()
	resp.Headers.Add("Connection", "upgrade")

	out := string(s.Serialize(resp, true))

	require.Contains(t, out, "Connection: upgrade, close\r\n")
}

func TestSerialize_SkipsContentLengthWithTransferEncoding(t *testing.T) {
	s := httpserializer.NewSerializer()
	resp := http.NewResponse().Bytes([]byte("chunk"))
	resp.Headers.Add("Transfer-Encoding", "chunked")

	out := string(s.Serialize(resp, false))

	require.NotContains(t, out, "Content-Length")
}

func TestSerialize_Attachment(t *testing.T) {
	s := httpserializer.NewSerializer()
	body := "attached-body"
	resp := http.NewResponse().Stream(strings.NewReader(body), len(body))

	head := string(s.Serialize(resp, false))
	require.Contains(t, head, "Content-Length: 13\r\n")
	require.True(t, strings.HasSuffix(head, "\r\n\r\n"))

	var w bytes.Buffer
	require.NoError(t, s.WriteAttachment(&w, resp))
	require.Equal(t, body, w.String())
}
