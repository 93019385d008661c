package writer

import (
	"strconv"

	"github.com/indigo-web/h1/event"
	"github.com/indigo-web/h1/http/proto"
	"github.com/indigo-web/h1/http/status"
	"github.com/indigo-web/h1/kv"
)

const crlf = "\r\n"

// Sink collects the ordered parts of an encoded event: framing bytes the
// engine produced interleaved with the embedder's payloads, which pass
// through untouched.
type Sink struct {
	parts []event.Payload
}

func (s *Sink) Bytes(b []byte) {
	if len(b) > 0 {
		s.parts = append(s.parts, event.Bytes(b))
	}
}

func (s *Sink) Payload(p event.Payload) {
	if p != nil && p.Len() > 0 {
		s.parts = append(s.parts, p)
	}
}

// Parts returns everything written so far, in order. The slice is never nil:
// an event that produced no bytes still took place, unlike the close signal,
// which has no encoding at all.
func (s *Sink) Parts() []event.Payload {
	if s.parts == nil {
		return []event.Payload{}
	}

	return s.parts
}

// Writer encodes one event legal in the current state into wire parts.
type Writer interface {
	Write(e event.Event, sink *Sink) error
}

// RequestHead serializes a request start line and header block. Outgoing
// messages are always HTTP/1.1; a differing version on the event is a
// misuse.
type RequestHead struct{}

func (RequestHead) Write(e event.Event, sink *Sink) error {
	r, ok := e.(*event.Request)
	if !ok {
		return status.ErrBadRequest
	}
	if r.Proto != proto.Unknown && r.Proto != proto.HTTP11 {
		return status.ErrVersionFixed
	}

	buff := make([]byte, 0, estimateHead(len(r.Method)+len(r.Target)+len("HTTP/1.1")+2, r.Headers))
	buff = append(buff, r.Method...)
	buff = append(buff, ' ')
	buff = append(buff, r.Target...)
	buff = append(buff, " HTTP/1.1"+crlf...)
	buff = appendHeaders(buff, r.Headers)
	buff = append(buff, crlf...)

	sink.Bytes(buff)
	return nil
}

// AnyResponseHead serializes informational and final response heads alike.
type AnyResponseHead struct{}

func (AnyResponseHead) Write(e event.Event, sink *Sink) error {
	var (
		code    int
		reason  string
		version proto.Protocol
		hdrs    *kv.Storage
	)

	switch e := e.(type) {
	case *event.InformationalResponse:
		code, reason, version, hdrs = e.Code, e.Reason, e.Proto, e.Headers
	case *event.Response:
		code, reason, version, hdrs = e.Code, e.Reason, e.Proto, e.Headers
	default:
		return status.ErrBadRequest
	}

	if version != proto.Unknown && version != proto.HTTP11 {
		return status.ErrVersionFixed
	}

	buff := make([]byte, 0, estimateHead(len("HTTP/1.1 999 ")+len(reason), hdrs))
	buff = append(buff, "HTTP/1.1 "...)
	buff = strconv.AppendInt(buff, int64(code), 10)
	buff = append(buff, ' ')
	buff = append(buff, reason...)
	buff = append(buff, crlf...)
	buff = appendHeaders(buff, hdrs)
	buff = append(buff, crlf...)

	sink.Bytes(buff)
	return nil
}

func appendHeaders(buff []byte, hdrs *kv.Storage) []byte {
	if hdrs == nil {
		return buff
	}

	for _, pair := range hdrs.Expose() {
		buff = append(buff, pair.RawKey()...)
		buff = append(buff, ": "...)
		buff = append(buff, pair.Value...)
		buff = append(buff, crlf...)
	}

	return buff
}

func estimateHead(startLine int, hdrs *kv.Storage) int {
	size := startLine + 2*len(crlf)
	if hdrs != nil {
		for _, pair := range hdrs.Expose() {
			size += len(pair.RawKey()) + len(": ") + len(pair.Value) + len(crlf)
		}
	}

	return size
}
