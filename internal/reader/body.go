package reader

import (
	"github.com/indigo-web/h1/event"
	"github.com/indigo-web/h1/http/status"
	"github.com/indigo-web/h1/internal/recvbuf"
)

// ContentLength streams a body of a known size. Bytes past the declared
// length are left in the buffer: they belong to the next message.
type ContentLength struct {
	remaining int64
}

func NewContentLength(length int64) *ContentLength {
	return &ContentLength{remaining: length}
}

func (c *ContentLength) Read(buf *recvbuf.Buffer) (event.Event, error) {
	if c.remaining == 0 {
		return &event.EndOfMessage{}, nil
	}

	n := buf.Len()
	if int64(n) > c.remaining {
		n = int(c.remaining)
	}

	data := buf.ExtractAtMost(n)
	if data == nil {
		return nil, nil
	}

	c.remaining -= int64(len(data))

	return &event.Data{Payload: event.Bytes(data)}, nil
}

func (c *ContentLength) ReadEOF() (event.Event, error) {
	return nil, status.ErrUnexpectedEOF
}

// UntilClose streams a body whose only delimiter is the connection close.
type UntilClose struct{}

func (UntilClose) Read(buf *recvbuf.Buffer) (event.Event, error) {
	data := buf.ExtractAtMost(buf.Len())
	if data == nil {
		return nil, nil
	}

	return &event.Data{Payload: event.Bytes(data)}, nil
}

func (UntilClose) ReadEOF() (event.Event, error) {
	return &event.EndOfMessage{}, nil
}
