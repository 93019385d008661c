// Package h1 is a sans-I/O HTTP/1.1 protocol engine: bytes go in on one
// side, events come out on the other, and no sockets are harmed in the
// process. A Conn owns no I/O and never blocks; the embedder feeds it
// received bytes via Receive, drains events via Next, and transmits
// whatever Send hands back.
package h1

import (
	"github.com/indigo-web/h1/config"
	"github.com/indigo-web/h1/event"
	"github.com/indigo-web/h1/http/headers"
	"github.com/indigo-web/h1/http/proto"
	"github.com/indigo-web/h1/http/status"
	"github.com/indigo-web/h1/internal/reader"
	"github.com/indigo-web/h1/internal/recvbuf"
	"github.com/indigo-web/h1/internal/writer"
	"github.com/indigo-web/h1/kv"
	"github.com/indigo-web/utils/strcomp"
)

// Version of the engine.
const Version = "0.1.0"

// Identifier suits User-Agent and Server header values. The engine never
// injects it on its own: identity headers belong to the embedder.
const Identifier = "h1/" + Version

// Conn is one HTTP/1.1 connection, seen from a fixed role. It is a plain
// state container: all methods are synchronous, run in time proportional to
// the bytes they touch, and must be serialized by the caller.
type Conn struct {
	cfg           *config.Config
	cs            connState
	buf           *recvbuf.Buffer
	reader        reader.Reader
	writer        writer.Writer
	requestMethod string
	theirProto    proto.Protocol
	ourRole       Role
	bufClosed     bool
	// waiting100 tracks the client side of the Expect: 100-continue
	// handshake; both roles observe it through their respective accessor.
	waiting100 bool
}

// NewConn returns a connection with default limits.
func NewConn(role Role) *Conn {
	return NewConnWith(role, config.Default())
}

// NewConnWith returns a connection with the given limits.
func NewConnWith(role Role, cfg *config.Config) *Conn {
	c := &Conn{
		cfg:     cfg,
		cs:      newConnState(),
		buf:     recvbuf.New(cfg.Recv.MaxLineLength, cfg.Recv.MaxHeadersLength),
		ourRole: role,
	}
	c.reader = c.readerFor(role.Other(), Idle, nil)
	c.writer, _ = c.writerFor(role, Idle, nil)

	return c
}

func (c *Conn) OurRole() Role {
	return c.ourRole
}

func (c *Conn) TheirRole() Role {
	return c.ourRole.Other()
}

func (c *Conn) OurState() State {
	return c.cs.states[c.ourRole]
}

func (c *Conn) TheirState() State {
	return c.cs.states[c.TheirRole()]
}

// StateOf returns the state of an arbitrary role.
func (c *Conn) StateOf(role Role) State {
	return c.cs.states[role]
}

// TheirProto is the HTTP version the peer spoke last, or proto.Unknown
// before their first message. It survives NextCycle.
func (c *Conn) TheirProto() proto.Protocol {
	return c.theirProto
}

// ClientIsWaitingFor100Continue reports that a request armed with
// Expect: 100-continue went through and nothing released it yet.
func (c *Conn) ClientIsWaitingFor100Continue() bool {
	return c.waiting100
}

// TheyAreWaitingFor100Continue reports that the peer is the waiting client,
// i.e. a server consulting this before reading the body can unblock the
// peer with an InformationalResponse(100).
func (c *Conn) TheyAreWaitingFor100Continue() bool {
	return c.TheirRole() == Client && c.waiting100
}

// Receive appends received bytes to the internal buffer. An empty input is
// the end-of-stream signal: the peer will send nothing further. Nothing is
// parsed here; parsing happens lazily in Next.
func (c *Conn) Receive(data []byte) error {
	if len(data) == 0 {
		c.bufClosed = true
		return nil
	}
	if c.bufClosed {
		return status.ErrDataAfterClose
	}

	c.buf.Append(data)
	return nil
}

// Next returns the next event arrived from the peer. The two control
// outcomes are not failures: event.NeedData asks for more Receive calls,
// event.Paused means buffered bytes are deliberately left uninterpreted.
// A returned error carries the remote origin and moves the peer's side to
// ERROR; after a clean close, Next keeps returning ConnectionClosed.
func (c *Conn) Next() (event.Event, error) {
	their := c.TheirRole()
	if c.cs.states[their] == Error {
		return nil, status.ErrPeerError.AsRemote()
	}

	ev, err := c.extractNext()
	if err == nil && ev != nil {
		if _, control := ev.(event.Control); !control {
			err = c.processEvent(their, ev)
		}
	}
	if err != nil {
		c.fail(their)
		return nil, status.AsRemote(err)
	}

	return ev, nil
}

func (c *Conn) extractNext() (event.Event, error) {
	switch c.cs.states[c.TheirRole()] {
	case Done:
		if !c.buf.Empty() {
			// pipelined bytes belong to the next cycle; hands off until reset
			return event.Paused, nil
		}
	case MightSwitchProtocol, SwitchedProtocol:
		return event.Paused, nil
	}

	ev, err := c.reader.Read(c.buf)
	if err != nil {
		return nil, err
	}

	if ev == nil && c.buf.Empty() && c.bufClosed {
		if eofReader, ok := c.reader.(reader.EOFReader); ok {
			ev, err = eofReader.ReadEOF()
			if err != nil {
				return nil, err
			}
		} else {
			ev = &event.ConnectionClosed{}
		}
	}

	if ev == nil {
		if c.bufClosed {
			// mid-event EOF: whatever we are waiting for will never complete
			return nil, status.ErrUnexpectedEOF
		}

		return event.NeedData, nil
	}

	return ev, nil
}

// Send encodes an event into a single byte slice, or nil for
// ConnectionClosed. Data with an opaque payload needs SendVectored instead.
// A failed send moves our side to ERROR, except for pure event validation
// failures, which leave the connection untouched.
func (c *Conn) Send(e event.Event) ([]byte, error) {
	if d, ok := e.(*event.Data); ok {
		if _, plain := d.Bytes(); !plain {
			return nil, status.ErrOpaquePayload
		}
	}

	parts, err := c.SendVectored(e)
	if err != nil || parts == nil {
		return nil, err
	}

	total := 0
	for _, p := range parts {
		total += p.Len()
	}

	out := make([]byte, 0, total)
	for _, p := range parts {
		out = append(out, p.(event.Bytes)...)
	}

	return out, nil
}

// SendVectored encodes an event into an ordered list of parts: framing bytes
// produced by the engine interleaved with the event's own payloads, which
// pass through untouched so the embedder can hand them to a zero-copy send
// primitive.
func (c *Conn) SendVectored(e event.Event) ([]event.Payload, error) {
	our := c.ourRole
	if c.cs.states[our] == Error {
		return nil, status.ErrOurError
	}

	e, err := prepare(e)
	if err != nil {
		// a malformed event is refused without poisoning the connection
		return nil, err
	}

	if resp, ok := e.(*event.Response); ok {
		if err = c.prepareResponseFraming(resp); err != nil {
			c.fail(our)
			return nil, err
		}
	}

	w := c.writer
	if err = c.processEvent(our, e); err != nil {
		c.fail(our)
		return nil, err
	}

	if _, ok := e.(*event.ConnectionClosed); ok {
		return nil, nil
	}

	sink := &writer.Sink{}
	if err = w.Write(e, sink); err != nil {
		c.fail(our)
		return nil, err
	}

	return sink.Parts(), nil
}

// SendFailed tells the engine that bytes a previous send returned never made
// it onto the wire. The connection can no longer be trusted to be in sync,
// so our side goes to ERROR and stays there.
func (c *Conn) SendFailed() {
	c.fail(c.ourRole)
}

// NextCycle rearms both sides for another request/response exchange.
// Permitted only when both are DONE, keep-alive survived, and no protocol
// switch happened. The peer's HTTP version and the keep-alive latch carry
// over; buffered pipelined bytes become parseable again.
func (c *Conn) NextCycle() error {
	if err := c.cs.startNextCycle(); err != nil {
		return err
	}

	c.requestMethod = ""
	c.reader = c.readerFor(c.TheirRole(), Idle, nil)
	c.writer, _ = c.writerFor(c.ourRole, Idle, nil)

	return nil
}

// TrailingData returns a copy of the bytes nobody interpreted: what arrived
// after a protocol switch, or ahead of a reset. The flag reports whether the
// peer closed its end afterwards.
func (c *Conn) TrailingData() (data []byte, closed bool) {
	return append([]byte(nil), c.buf.Bytes()...), c.bufClosed
}

// processEvent runs one event, originated by role, through the machine and
// every latch it touches, and re-selects the per-direction codecs for
// whatever states were entered.
func (c *Conn) processEvent(role Role, e event.Event) error {
	if r, ok := e.(*event.Request); ok && role == Client {
		if r.Method == "CONNECT" {
			c.cs.proposeSwitch(switchConnect)
		}
		if headers.ProposesUpgrade(r.Headers) {
			c.cs.proposeSwitch(switchUpgrade)
		}
	}

	var sw switchKind
	if role == Server {
		sw = c.serverSwitchEvent(e)
	}

	old := c.cs.states
	if err := c.cs.processEvent(role, kindOf(e), sw); err != nil {
		return err
	}

	switch e := e.(type) {
	case *event.Request:
		c.requestMethod = e.Method
		if role == c.TheirRole() {
			c.theirProto = e.Proto
		}
		if !keepAliveAllowed(e.Headers, e.Proto) {
			c.cs.disableKeepAlive()
		}
		if headers.Expects100Continue(e.Headers) {
			c.waiting100 = true
		}
	case *event.InformationalResponse:
		if role == c.TheirRole() {
			c.theirProto = e.Proto
		}
		c.waiting100 = false
	case *event.Response:
		if role == c.TheirRole() {
			c.theirProto = e.Proto
		}
		if !keepAliveAllowed(e.Headers, e.Proto) {
			c.cs.disableKeepAlive()
		}
		c.waiting100 = false
	case *event.Data, *event.EndOfMessage:
		if role == Client {
			c.waiting100 = false
		}
	}

	return c.updateIO(old, e)
}

// serverSwitchEvent classifies a server event as accepting one of the
// pending switch proposals. A 101 always claims the upgrade slot, so a 101
// nobody asked for fails in the state machine.
func (c *Conn) serverSwitchEvent(e event.Event) switchKind {
	switch e := e.(type) {
	case *event.Response:
		if e.Code >= 200 && e.Code < 300 && c.cs.pendingSwitch&switchConnect != 0 {
			return switchConnect
		}
	case *event.InformationalResponse:
		if e.Code == int(status.SwitchingProtocols) {
			return switchUpgrade
		}
	}

	return 0
}

func (c *Conn) updateIO(old [2]State, e event.Event) error {
	their := c.TheirRole()
	if c.cs.states[their] != old[their] {
		c.reader = c.readerFor(their, c.cs.states[their], e)
	}

	if c.cs.states[c.ourRole] != old[c.ourRole] {
		w, err := c.writerFor(c.ourRole, c.cs.states[c.ourRole], e)
		if err != nil {
			return err
		}

		c.writer = w
	}

	return nil
}

func (c *Conn) readerFor(role Role, st State, e event.Event) reader.Reader {
	switch st {
	case Idle:
		if role == Client {
			return reader.NewRequestHead(c.cfg.Headers.PairsPrealloc)
		}

		return reader.NewResponseHead(c.cfg.Headers.PairsPrealloc)
	case SendResponse:
		return reader.NewResponseHead(c.cfg.Headers.PairsPrealloc)
	case SendBody:
		f, err := bodyFraming(c.requestMethod, e)
		if err != nil {
			// the framing headers were validated before we got here
			return reader.ExpectNothing{}
		}

		switch f.kind {
		case framingChunked:
			return reader.NewChunked(c.cfg.Headers.PairsPrealloc)
		case framingUntilClose:
			return reader.UntilClose{}
		default:
			return reader.NewContentLength(f.length)
		}
	case Done, MustClose, Closed:
		return reader.ExpectNothing{}
	default:
		return nil
	}
}

func (c *Conn) writerFor(role Role, st State, e event.Event) (writer.Writer, error) {
	switch st {
	case Idle:
		if role == Client {
			return writer.RequestHead{}, nil
		}

		return writer.AnyResponseHead{}, nil
	case SendResponse:
		return writer.AnyResponseHead{}, nil
	case SendBody:
		f, err := bodyFraming(c.requestMethod, e)
		if err != nil {
			return nil, err
		}

		switch f.kind {
		case framingChunked:
			return writer.Chunked{}, nil
		case framingUntilClose:
			return writer.UntilClose{}, nil
		default:
			return writer.NewContentLength(f.length), nil
		}
	default:
		return nil, nil
	}
}

func (c *Conn) fail(role Role) {
	old := c.cs.states
	c.cs.processError(role)
	// entering ERROR never enters SEND_BODY, so no framing event is needed
	_ = c.updateIO(old, nil)
}

type framingKind uint8

const (
	framingContentLength framingKind = iota
	framingChunked
	framingUntilClose
)

type framing struct {
	kind   framingKind
	length int64
}

// bodyFraming decides how the body of a just-started message is delimited,
// per RFC 7230 section 3.3.3. The request method matters for responses:
// HEAD and successful CONNECT never carry one.
func bodyFraming(requestMethod string, e event.Event) (framing, error) {
	hdrs, response := framingSource(e)

	if response != 0 {
		if response == 204 || response == 304 || requestMethod == "HEAD" ||
			(requestMethod == "CONNECT" && response >= 200 && response < 300) {
			return framing{kind: framingContentLength}, nil
		}
	}

	if headers.Chunked(hdrs) {
		return framing{kind: framingChunked}, nil
	}

	length, ok, err := headers.ContentLength(hdrs)
	if err != nil {
		return framing{}, err
	}
	if ok {
		return framing{kind: framingContentLength, length: length}, nil
	}

	if response != 0 {
		return framing{kind: framingUntilClose}, nil
	}

	return framing{kind: framingContentLength}, nil
}

func framingSource(e event.Event) (hdrs *kv.Storage, responseCode int) {
	switch e := e.(type) {
	case *event.Request:
		return e.Headers, 0
	case *event.Response:
		return e.Headers, e.Code
	default:
		return kv.New(), 0
	}
}

func keepAliveAllowed(hdrs *kv.Storage, p proto.Protocol) bool {
	if headers.RequestsClose(hdrs) {
		return false
	}
	if p != proto.Unknown && p < proto.HTTP11 {
		return false
	}

	return true
}

// prepare validates an outgoing event on a private copy, so that the
// caller's event stays untouched and a validation failure cannot leave the
// connection half-mutated.
func prepare(e event.Event) (event.Event, error) {
	switch e := e.(type) {
	case *event.Request:
		clone := *e
		clone.Headers = cloneStorage(e.Headers)
		return &clone, clone.Validate()
	case *event.InformationalResponse:
		clone := *e
		clone.Headers = cloneStorage(e.Headers)
		return &clone, clone.Validate()
	case *event.Response:
		clone := *e
		clone.Headers = cloneStorage(e.Headers)
		return &clone, clone.Validate()
	case *event.EndOfMessage:
		clone := *e
		if e.Trailers != nil {
			clone.Trailers = e.Trailers.Clone()
		}
		return &clone, clone.Validate()
	default:
		return e, nil
	}
}

func cloneStorage(s *kv.Storage) *kv.Storage {
	if s == nil {
		return kv.New()
	}

	return s.Clone()
}

// prepareResponseFraming injects the framing and lifetime headers a final
// response is missing: Transfer-Encoding: chunked towards HTTP/1.1 peers
// when nothing frames the body, the read-until-close fallback towards older
// peers, and Connection: close whenever this connection will not be reused.
func (c *Conn) prepareResponseFraming(resp *event.Response) error {
	needClose := false

	// HEAD responses are framed exactly as the matching GET would be
	method := c.requestMethod
	if method == "HEAD" {
		method = "GET"
	}

	f, err := bodyFraming(method, resp)
	if err != nil {
		return err
	}

	if f.kind == framingChunked || f.kind == framingUntilClose {
		// the body length is unknown in advance
		if c.theirProto != proto.Unknown && c.theirProto < proto.HTTP11 {
			headers.SetCommaHeader(resp.Headers, "Transfer-Encoding")
			if c.requestMethod != "HEAD" {
				needClose = true
			}
		} else {
			headers.SetCommaHeader(resp.Headers, "Transfer-Encoding", "chunked")
		}
	}

	if !c.cs.keepAlive || needClose {
		tokens := dropToken(headers.ConnectionTokens(resp.Headers), "keep-alive", "close")
		tokens = append(tokens, "close")
		headers.SetCommaHeader(resp.Headers, "Connection", tokens...)
	}

	return nil
}

func dropToken(tokens []string, unwanted ...string) []string {
	kept := tokens[:0]

next:
	for _, token := range tokens {
		for _, u := range unwanted {
			if strcomp.EqualFold(token, u) {
				continue next
			}
		}

		kept = append(kept, token)
	}

	return kept
}
