package event

import (
	"github.com/indigo-web/h1/http/headers"
	"github.com/indigo-web/h1/http/proto"
	"github.com/indigo-web/h1/http/status"
	"github.com/indigo-web/h1/kv"
)

// Event is anything the engine exchanges with the embedder: message heads,
// body slices, the end-of-message mark, the close signal, and the two
// control outcomes of Conn.Next. The interface is sealed.
type Event interface {
	event()
}

// Request is the client-to-server start line together with its headers.
type Request struct {
	Method  string
	Target  string
	Headers *kv.Storage
	// Proto is the version the peer spoke, filled on receive. On send it must
	// be left zero or HTTP/1.1.
	Proto proto.Protocol
}

// InformationalResponse is a 1xx interim response.
type InformationalResponse struct {
	Code    int
	Reason  string
	Headers *kv.Storage
	Proto   proto.Protocol
}

// Response is a final (non-1xx) response.
type Response struct {
	Code    int
	Reason  string
	Headers *kv.Storage
	Proto   proto.Protocol
}

// Data is a slice of a message body. The chunk flags are meaningful only
// under chunked framing: ChunkStart marks the first bytes of a source chunk,
// ChunkEnd the last, and a chunk small enough to arrive whole carries both.
type Data struct {
	Payload    Payload
	ChunkStart bool
	ChunkEnd   bool
}

// Bytes returns the payload as a byte slice when it is an in-memory one.
func (d *Data) Bytes() ([]byte, bool) {
	if d.Payload == nil {
		return nil, true
	}

	b, ok := d.Payload.(Bytes)
	return b, ok
}

// EndOfMessage closes a message body. Trailers may hold entries only when the
// message was framed chunked; an empty block is accepted under any framing.
type EndOfMessage struct {
	Trailers *kv.Storage
}

// ConnectionClosed signals the half-duplex close: the peer will send nothing
// further, or we promise not to.
type ConnectionClosed struct{}

// Control is a non-event outcome of Conn.Next. These are signals, not
// failures, which is why they travel the event channel rather than the error
// one.
type Control uint8

const (
	// NeedData means no complete event can be built from the bytes buffered
	// so far.
	NeedData Control = iota + 1
	// Paused means incoming bytes are deliberately not being interpreted:
	// a protocol switch is pending or done, or buffered data belongs to the
	// next cycle.
	Paused
)

func (*Request) event()               {}
func (*InformationalResponse) event() {}
func (*Response) event()              {}
func (*Data) event()                  {}
func (*EndOfMessage) event()          {}
func (*ConnectionClosed) event()      {}
func (Control) event()                {}

func (c Control) String() string {
	switch c {
	case NeedData:
		return "NeedData"
	case Paused:
		return "Paused"
	default:
		return "<unknown control>"
	}
}

// Name returns a human name of the event kind for diagnostics.
func Name(e Event) string {
	switch e := e.(type) {
	case *Request:
		return "Request"
	case *InformationalResponse:
		return "InformationalResponse"
	case *Response:
		return "Response"
	case *Data:
		return "Data"
	case *EndOfMessage:
		return "EndOfMessage"
	case *ConnectionClosed:
		return "ConnectionClosed"
	case Control:
		return e.String()
	default:
		return "<unknown event>"
	}
}

// NewRequest builds a validated request head. The header block is cloned and
// normalized, so the passed storage stays untouched. Requests always leave
// as HTTP/1.1, hence the mandatory single Host entry.
func NewRequest(method, target string, hdrs *kv.Storage) (*Request, error) {
	r := &Request{
		Method:  method,
		Target:  target,
		Headers: cloneHeaders(hdrs),
		Proto:   proto.HTTP11,
	}

	return r, r.Validate()
}

// Validate checks the request in place; the header block must already be
// normalized, or belong to this event alone, as normalization rewrites it.
func (r *Request) Validate() error {
	if !headers.ValidFieldName(r.Method) {
		return status.ErrBadMethod
	}
	if !headers.ValidTarget(r.Target) {
		return status.ErrBadTarget
	}
	if r.Headers == nil {
		r.Headers = kv.New()
	}
	if err := headers.Normalize(r.Headers); err != nil {
		return err
	}

	effective := r.Proto
	if effective == proto.Unknown {
		effective = proto.HTTP11
	}

	if effective >= proto.HTTP11 {
		switch r.Headers.Count("host") {
		case 0:
			return status.ErrMissingHost
		case 1:
		default:
			return status.ErrMultipleHost
		}
	}

	return nil
}

// NewInformationalResponse builds a validated 1xx head.
func NewInformationalResponse(code int, reason string, hdrs *kv.Storage) (*InformationalResponse, error) {
	r := &InformationalResponse{
		Code:    code,
		Reason:  reason,
		Headers: cloneHeaders(hdrs),
		Proto:   proto.HTTP11,
	}

	return r, r.Validate()
}

func (r *InformationalResponse) Validate() error {
	if r.Code < 100 || r.Code > 199 {
		return status.ErrBadStatusCode
	}

	return validateResponse(r.Reason, &r.Headers)
}

// NewResponse builds a validated final response head.
func NewResponse(code int, reason string, hdrs *kv.Storage) (*Response, error) {
	r := &Response{
		Code:    code,
		Reason:  reason,
		Headers: cloneHeaders(hdrs),
		Proto:   proto.HTTP11,
	}

	return r, r.Validate()
}

func (r *Response) Validate() error {
	if r.Code < 200 || r.Code > 999 {
		return status.ErrBadStatusCode
	}

	return validateResponse(r.Reason, &r.Headers)
}

func validateResponse(reason string, hdrs **kv.Storage) error {
	if !headers.ValidFieldValue(reason) {
		return status.ErrBadReason
	}
	if *hdrs == nil {
		*hdrs = kv.New()
	}

	return headers.Normalize(*hdrs)
}

// Validate checks the trailer block, normalizing it in place.
func (e *EndOfMessage) Validate() error {
	if e.Trailers == nil {
		return nil
	}

	return headers.Normalize(e.Trailers)
}

func cloneHeaders(hdrs *kv.Storage) *kv.Storage {
	if hdrs == nil {
		return kv.New()
	}

	return hdrs.Clone()
}
