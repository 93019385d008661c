package reader

import (
	_ "embed"
	"testing"

	json "github.com/json-iterator/go"

	"github.com/indigo-web/h1/event"
	"github.com/indigo-web/h1/http/proto"
	"github.com/indigo-web/h1/http/status"
	"github.com/indigo-web/h1/internal/recvbuf"
	"github.com/indigo-web/h1/kv"
	"github.com/stretchr/testify/require"
)

//go:embed testdata/requests.json
var requestCorpus []byte

type corpusCase struct {
	Name    string     `json:"name"`
	Raw     string     `json:"raw"`
	Method  string     `json:"method"`
	Target  string     `json:"target"`
	Proto   string     `json:"proto"`
	Headers [][]string `json:"headers"`
	Error   string     `json:"error"`
}

var corpusErrors = map[string]error{
	"missing-host":                  status.ErrMissingHost,
	"multiple-host":                 status.ErrMultipleHost,
	"bad-header-name":               status.ErrBadHeaderName,
	"dangling-fold":                 status.ErrDanglingFold,
	"bad-header-line":               status.ErrBadHeaderLine,
	"bad-request-line":              status.ErrBadRequestLine,
	"conflicting-content-length":    status.ErrConflictingContentLength,
	"content-length-with-chunked":   status.ErrContentLengthWithChunked,
	"unsupported-transfer-encoding": status.ErrUnsupportedTransferEncoding,
}

func newBuffer() *recvbuf.Buffer {
	return recvbuf.New(16*1024, 32*1024)
}

// drain feeds the whole input at once and reads a single event.
func drain(t *testing.T, r Reader, input string) (event.Event, error) {
	t.Helper()
	buf := newBuffer()
	buf.Append([]byte(input))

	return r.Read(buf)
}

// drainPartially feeds the input n bytes at a time, expecting need-more on
// every incomplete prefix.
func drainPartially(t *testing.T, r Reader, input string, n int) (event.Event, error) {
	t.Helper()
	buf := newBuffer()

	for i := 0; i < len(input); i += n {
		end := min(i+n, len(input))
		buf.Append([]byte(input[i:end]))

		ev, err := r.Read(buf)
		if ev != nil || err != nil {
			return ev, err
		}
	}

	return nil, nil
}

func TestRequestHead(t *testing.T) {
	var cases []corpusCase
	require.NoError(t, json.Unmarshal(requestCorpus, &cases))

	for _, c := range cases {
		c := c
		t.Run(c.Name, func(t *testing.T) {
			ev, err := drain(t, NewRequestHead(10), c.Raw)

			if len(c.Error) != 0 {
				want, known := corpusErrors[c.Error]
				require.True(t, known, "corpus names an unmapped error: %s", c.Error)
				require.ErrorIs(t, err, want)
				return
			}

			require.NoError(t, err)
			request, ok := ev.(*event.Request)
			require.True(t, ok)
			require.Equal(t, c.Method, request.Method)
			require.Equal(t, c.Target, request.Target)
			require.Equal(t, c.Proto, request.Proto.String())

			require.Equal(t, len(c.Headers), request.Headers.Len())
			for i, pair := range request.Headers.Expose() {
				require.Equal(t, c.Headers[i][0], pair.Key)
				require.Equal(t, c.Headers[i][1], pair.Value)
			}
		})

		t.Run(c.Name+" byte-at-a-time", func(t *testing.T) {
			ev, err := drainPartially(t, NewRequestHead(10), c.Raw, 1)

			if len(c.Error) != 0 {
				require.ErrorIs(t, err, corpusErrors[c.Error])
				return
			}

			require.NoError(t, err)
			request, ok := ev.(*event.Request)
			require.True(t, ok)
			require.Equal(t, c.Method, request.Method)
		})
	}
}

func TestRequestHeadKeepsRawCasing(t *testing.T) {
	ev, err := drain(t, NewRequestHead(10), "GET / HTTP/1.1\r\nHoSt: a\r\n\r\n")
	require.NoError(t, err)
	request := ev.(*event.Request)
	require.Equal(t, "HoSt", request.Headers.Expose()[0].RawKey())
}

func TestRequestHeadNeedMore(t *testing.T) {
	r := NewRequestHead(10)
	buf := newBuffer()
	buf.Append([]byte("GET / HTTP/1.1\r\nHost: a\r\n"))

	ev, err := r.Read(buf)
	require.NoError(t, err)
	require.Nil(t, ev)
}

func TestEarlyBinaryDetection(t *testing.T) {
	r := NewRequestHead(10)
	buf := newBuffer()
	// a TLS client hello opens with 0x16
	buf.Append([]byte{0x16, 0x03, 0x01})

	_, err := r.Read(buf)
	require.ErrorIs(t, err, status.ErrNotHTTP)
}

func TestResponseHead(t *testing.T) {
	t.Run("with reason", func(t *testing.T) {
		ev, err := drain(t, NewResponseHead(10), "HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n")
		require.NoError(t, err)
		response, ok := ev.(*event.Response)
		require.True(t, ok)
		require.Equal(t, 200, response.Code)
		require.Equal(t, "OK", response.Reason)
		require.Equal(t, proto.HTTP11, response.Proto)
		require.Equal(t, "0", response.Headers.Value("content-length"))
	})

	t.Run("empty reason with trailing space", func(t *testing.T) {
		ev, err := drain(t, NewResponseHead(10), "HTTP/1.1 200 \r\n\r\n")
		require.NoError(t, err)
		require.Equal(t, "", ev.(*event.Response).Reason)
	})

	t.Run("no reason at all", func(t *testing.T) {
		ev, err := drain(t, NewResponseHead(10), "HTTP/1.1 404\r\n\r\n")
		require.NoError(t, err)
		response := ev.(*event.Response)
		require.Equal(t, 404, response.Code)
		require.Equal(t, "", response.Reason)
	})

	t.Run("reason kept verbatim", func(t *testing.T) {
		ev, err := drain(t, NewResponseHead(10), "HTTP/1.1 500 Not  Great \r\n\r\n")
		require.NoError(t, err)
		require.Equal(t, "Not  Great ", ev.(*event.Response).Reason)
	})

	t.Run("informational", func(t *testing.T) {
		ev, err := drain(t, NewResponseHead(10), "HTTP/1.1 100 Continue\r\n\r\n")
		require.NoError(t, err)
		informational, ok := ev.(*event.InformationalResponse)
		require.True(t, ok)
		require.Equal(t, 100, informational.Code)
	})

	t.Run("http 1.0 version surfaces", func(t *testing.T) {
		ev, err := drain(t, NewResponseHead(10), "HTTP/1.0 200 OK\r\n\r\n")
		require.NoError(t, err)
		require.Equal(t, proto.HTTP10, ev.(*event.Response).Proto)
	})

	t.Run("malformed status lines", func(t *testing.T) {
		for _, raw := range []string{
			"HTTP/1.1 2x0 OK\r\n\r\n",
			"HTTP/1.1 099\r\n\r\n",
			"HTTP/1.1 200OK\r\n\r\n",
			"HTTP/1.1\r\n\r\n",
			"nonsense\r\n\r\n",
		} {
			_, err := drain(t, NewResponseHead(10), raw)
			require.ErrorIs(t, err, status.ErrBadStatusLine, "input: %q", raw)
		}
	})
}

func TestContentLengthReader(t *testing.T) {
	t.Run("streams up to the declared length", func(t *testing.T) {
		r := NewContentLength(5)
		buf := newBuffer()
		buf.Append([]byte("helloEXTRA"))

		ev, err := r.Read(buf)
		require.NoError(t, err)
		data, ok := ev.(*event.Data)
		require.True(t, ok)
		payload, _ := data.Bytes()
		require.Equal(t, "hello", string(payload))

		ev, err = r.Read(buf)
		require.NoError(t, err)
		require.IsType(t, &event.EndOfMessage{}, ev)

		// the surplus belongs to the next message
		require.Equal(t, "EXTRA", string(buf.Bytes()))
	})

	t.Run("zero length completes immediately", func(t *testing.T) {
		r := NewContentLength(0)
		ev, err := r.Read(newBuffer())
		require.NoError(t, err)
		require.IsType(t, &event.EndOfMessage{}, ev)
	})

	t.Run("piecewise", func(t *testing.T) {
		r := NewContentLength(6)
		buf := newBuffer()
		var got []byte

		for _, part := range []string{"ab", "cd", "ef"} {
			buf.Append([]byte(part))
			ev, err := r.Read(buf)
			require.NoError(t, err)
			payload, _ := ev.(*event.Data).Bytes()
			got = append(got, payload...)
		}

		require.Equal(t, "abcdef", string(got))
		ev, err := r.Read(buf)
		require.NoError(t, err)
		require.IsType(t, &event.EndOfMessage{}, ev)
	})

	t.Run("eof mid-body is an error", func(t *testing.T) {
		r := NewContentLength(5)
		buf := newBuffer()
		buf.Append([]byte("abc"))
		_, err := r.Read(buf)
		require.NoError(t, err)

		_, err = r.ReadEOF()
		require.ErrorIs(t, err, status.ErrUnexpectedEOF)
	})
}

func TestUntilCloseReader(t *testing.T) {
	r := UntilClose{}
	buf := newBuffer()
	buf.Append([]byte("anything at all"))

	ev, err := r.Read(buf)
	require.NoError(t, err)
	payload, _ := ev.(*event.Data).Bytes()
	require.Equal(t, "anything at all", string(payload))

	ev, err = r.Read(buf)
	require.NoError(t, err)
	require.Nil(t, ev)

	ev, err = r.ReadEOF()
	require.NoError(t, err)
	require.IsType(t, &event.EndOfMessage{}, ev)
}

func TestTrailersType(t *testing.T) {
	// EndOfMessage trailers arrive as a normalized kv block
	r := NewChunked(10)
	buf := newBuffer()
	buf.Append([]byte("0\r\nX-Trailer: t\r\n\r\n"))

	ev, err := r.Read(buf)
	require.NoError(t, err)
	eom, ok := ev.(*event.EndOfMessage)
	require.True(t, ok)
	require.Equal(t, []kv.Pair{{Key: "x-trailer", Value: "t", Raw: "X-Trailer"}}, eom.Trailers.Expose())
}
