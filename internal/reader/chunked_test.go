package reader

import (
	"testing"

	"github.com/indigo-web/h1/event"
	"github.com/indigo-web/h1/http/status"
	"github.com/stretchr/testify/require"
)

// collectChunked reads until EndOfMessage, returning the concatenated body
// and every Data event seen along the way.
func collectChunked(t *testing.T, r *Chunked, input string, step int) (string, []*event.Data, *event.EndOfMessage) {
	t.Helper()
	buf := newBuffer()
	var (
		body   []byte
		events []*event.Data
	)

	for i := 0; i < len(input); i += step {
		buf.Append([]byte(input[i:min(i+step, len(input))]))

		for {
			ev, err := r.Read(buf)
			require.NoError(t, err)
			if ev == nil {
				break
			}

			switch ev := ev.(type) {
			case *event.Data:
				payload, ok := ev.Bytes()
				require.True(t, ok)
				body = append(body, payload...)
				events = append(events, ev)
			case *event.EndOfMessage:
				return string(body), events, ev
			default:
				t.Fatalf("unexpected event %s", event.Name(ev))
			}
		}
	}

	t.Fatal("ran out of input before EndOfMessage")
	return "", nil, nil
}

func TestChunkedReader(t *testing.T) {
	t.Run("single chunk", func(t *testing.T) {
		body, events, eom := collectChunked(t, NewChunked(10), "d\r\nHello, world!\r\n0\r\n\r\n", 1024)
		require.Equal(t, "Hello, world!", body)
		require.Len(t, events, 1)
		require.True(t, events[0].ChunkStart)
		require.True(t, events[0].ChunkEnd)
		require.True(t, eom.Trailers.Empty())
	})

	t.Run("multiple chunks", func(t *testing.T) {
		body, events, _ := collectChunked(t, NewChunked(10), "2\r\nab\r\n3\r\ncde\r\n0\r\n\r\n", 1024)
		require.Equal(t, "abcde", body)
		require.Len(t, events, 2)
		for _, ev := range events {
			require.True(t, ev.ChunkStart)
			require.True(t, ev.ChunkEnd)
		}
	})

	t.Run("byte-at-a-time brackets chunks", func(t *testing.T) {
		body, events, _ := collectChunked(t, NewChunked(10), "5\r\nhello\r\n0\r\n\r\n", 1)
		require.Equal(t, "hello", body)
		require.Len(t, events, 5)
		require.True(t, events[0].ChunkStart)
		require.False(t, events[0].ChunkEnd)
		for _, ev := range events[1 : len(events)-1] {
			require.False(t, ev.ChunkStart)
			require.False(t, ev.ChunkEnd)
		}
		require.False(t, events[4].ChunkStart)
		require.True(t, events[4].ChunkEnd)
	})

	t.Run("trailers", func(t *testing.T) {
		body, _, eom := collectChunked(t, NewChunked(10), "2\r\nhi\r\n0\r\nX-Trailer: t\r\nX-Other: o\r\n\r\n", 1024)
		require.Equal(t, "hi", body)
		require.Equal(t, "t", eom.Trailers.Value("x-trailer"))
		require.Equal(t, "o", eom.Trailers.Value("x-other"))
	})

	t.Run("extensions are discarded", func(t *testing.T) {
		body, _, _ := collectChunked(t, NewChunked(10), "d;hello=world\r\nHello, world!\r\n0;checksum=none\r\n\r\n", 1024)
		require.Equal(t, "Hello, world!", body)
	})

	t.Run("trailing whitespace in size line", func(t *testing.T) {
		body, _, _ := collectChunked(t, NewChunked(10), "2  \r\nhi\r\n0 \r\n\r\n", 1024)
		require.Equal(t, "hi", body)
	})

	t.Run("bare lf", func(t *testing.T) {
		body, _, _ := collectChunked(t, NewChunked(10), "2\nhi\n0\n\n", 1024)
		require.Equal(t, "hi", body)
	})

	t.Run("uppercase hex", func(t *testing.T) {
		body, _, _ := collectChunked(t, NewChunked(10), "A\r\n0123456789\r\n0\r\n\r\n", 1024)
		require.Equal(t, "0123456789", body)
	})

	t.Run("bad size line", func(t *testing.T) {
		r := NewChunked(10)
		buf := newBuffer()
		buf.Append([]byte("xyz\r\n"))
		_, err := r.Read(buf)
		require.ErrorIs(t, err, status.ErrBadChunk)
	})

	t.Run("whitespace inside size", func(t *testing.T) {
		r := NewChunked(10)
		buf := newBuffer()
		buf.Append([]byte("2 2\r\n"))
		_, err := r.Read(buf)
		require.ErrorIs(t, err, status.ErrBadChunk)
	})

	t.Run("garbage instead of chunk terminator", func(t *testing.T) {
		r := NewChunked(10)
		buf := newBuffer()
		buf.Append([]byte("2\r\nhiXX"))

		ev, err := r.Read(buf)
		require.NoError(t, err)
		require.IsType(t, &event.Data{}, ev)

		_, err = r.Read(buf)
		require.ErrorIs(t, err, status.ErrBadChunk)
	})

	t.Run("overlong size", func(t *testing.T) {
		r := NewChunked(10)
		buf := newBuffer()
		buf.Append([]byte("11111111111111111\r\n"))
		_, err := r.Read(buf)
		require.ErrorIs(t, err, status.ErrChunkTooLong)
	})

	t.Run("eof mid-body is an error", func(t *testing.T) {
		r := NewChunked(10)
		_, err := r.ReadEOF()
		require.ErrorIs(t, err, status.ErrUnexpectedEOF)
	})

	t.Run("empty size line", func(t *testing.T) {
		r := NewChunked(10)
		buf := newBuffer()
		buf.Append([]byte("\r\n"))
		_, err := r.Read(buf)
		require.ErrorIs(t, err, status.ErrBadChunk)
	})
}
