package writer

import (
	"strconv"

	"github.com/indigo-web/h1/event"
	"github.com/indigo-web/h1/http/status"
)

// ContentLength enforces that the payloads of one message sum up to exactly
// the declared length, neither more nor less.
type ContentLength struct {
	remaining int64
}

func NewContentLength(length int64) *ContentLength {
	return &ContentLength{remaining: length}
}

func (c *ContentLength) Write(e event.Event, sink *Sink) error {
	switch e := e.(type) {
	case *event.Data:
		length := payloadLen(e.Payload)
		if length == 0 {
			return nil
		}
		if length > c.remaining {
			return status.ErrBodyOverrun
		}

		c.remaining -= length
		sink.Payload(e.Payload)
	case *event.EndOfMessage:
		if hasTrailers(e) {
			return status.ErrStrayTrailers
		}
		if c.remaining != 0 {
			return status.ErrBodyUnderrun
		}
	default:
		return status.ErrBadRequest
	}

	return nil
}

// Chunked wraps every payload into its own chunk and closes the body with
// the zero chunk plus whatever trailers the message carries. Zero-length
// payloads produce no chunk: an empty chunk would terminate the body.
type Chunked struct{}

func (Chunked) Write(e event.Event, sink *Sink) error {
	switch e := e.(type) {
	case *event.Data:
		length := payloadLen(e.Payload)
		if length == 0 {
			return nil
		}

		header := strconv.AppendInt(make([]byte, 0, 16+len(crlf)), length, 16)
		header = append(header, crlf...)
		sink.Bytes(header)
		sink.Payload(e.Payload)
		sink.Bytes([]byte(crlf))
	case *event.EndOfMessage:
		buff := append(make([]byte, 0, 5), "0"+crlf...)
		if e.Trailers != nil {
			buff = appendHeaders(buff, e.Trailers)
		}
		buff = append(buff, crlf...)
		sink.Bytes(buff)
	default:
		return status.ErrBadRequest
	}

	return nil
}

// UntilClose is the HTTP/1.0 style body: raw payloads, delimited by nothing
// but the close that must follow.
type UntilClose struct{}

func (UntilClose) Write(e event.Event, sink *Sink) error {
	switch e := e.(type) {
	case *event.Data:
		sink.Payload(e.Payload)
	case *event.EndOfMessage:
		if hasTrailers(e) {
			return status.ErrStrayTrailers
		}
	default:
		return status.ErrBadRequest
	}

	return nil
}

func payloadLen(p event.Payload) int64 {
	if p == nil {
		return 0
	}

	return int64(p.Len())
}

func hasTrailers(e *event.EndOfMessage) bool {
	return e.Trailers != nil && e.Trailers.Len() > 0
}
