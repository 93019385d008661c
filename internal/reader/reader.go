package reader

import (
	"bytes"

	"github.com/indigo-web/h1/event"
	"github.com/indigo-web/h1/http/proto"
	"github.com/indigo-web/h1/http/status"
	"github.com/indigo-web/h1/internal/httpchars"
	"github.com/indigo-web/h1/internal/recvbuf"
	"github.com/indigo-web/h1/kv"
	"github.com/indigo-web/utils/uf"
)

// Reader produces the next event for one direction of the connection. A nil
// event with a nil error means more bytes are needed.
type Reader interface {
	Read(buf *recvbuf.Buffer) (event.Event, error)
}

// EOFReader is implemented by readers that attach a meaning to a clean close
// mid-stream: read-until-close bodies complete, length-framed ones fail.
type EOFReader interface {
	ReadEOF() (event.Event, error)
}

// RequestHead parses a request line followed by a header block.
type RequestHead struct {
	prealloc int
}

func NewRequestHead(prealloc int) *RequestHead {
	return &RequestHead{prealloc: prealloc}
}

func (r *RequestHead) Read(buf *recvbuf.Buffer) (event.Event, error) {
	lines, err := buf.Lines()
	if err != nil {
		return nil, err
	}
	if lines == nil {
		if data := buf.Bytes(); len(data) > 0 && obviouslyBinary(data[0]) {
			// fail fast on TLS handshakes and the like, so the embedder can
			// tell garbage from a slow request
			return nil, status.ErrNotHTTP
		}

		return nil, nil
	}
	if len(lines) == 0 {
		return nil, status.ErrBadRequestLine
	}

	method, target, protocol, err := parseRequestLine(lines[0])
	if err != nil {
		return nil, err
	}

	hdrs, err := parseHeaderLines(lines[1:], r.prealloc)
	if err != nil {
		return nil, err
	}

	request := &event.Request{
		Method:  method,
		Target:  target,
		Headers: hdrs,
		Proto:   protocol,
	}

	return request, request.Validate()
}

// ResponseHead parses a status line followed by a header block, yielding
// either an InformationalResponse or a Response depending on the code.
type ResponseHead struct {
	prealloc int
}

func NewResponseHead(prealloc int) *ResponseHead {
	return &ResponseHead{prealloc: prealloc}
}

func (r *ResponseHead) Read(buf *recvbuf.Buffer) (event.Event, error) {
	lines, err := buf.Lines()
	if err != nil {
		return nil, err
	}
	if lines == nil {
		return nil, nil
	}
	if len(lines) == 0 {
		return nil, status.ErrBadStatusLine
	}

	code, reason, protocol, err := parseStatusLine(lines[0])
	if err != nil {
		return nil, err
	}

	hdrs, err := parseHeaderLines(lines[1:], r.prealloc)
	if err != nil {
		return nil, err
	}

	if code < 200 {
		informational := &event.InformationalResponse{
			Code:    code,
			Reason:  reason,
			Headers: hdrs,
			Proto:   protocol,
		}

		return informational, informational.Validate()
	}

	response := &event.Response{
		Code:    code,
		Reason:  reason,
		Headers: hdrs,
		Proto:   protocol,
	}

	return response, response.Validate()
}

// ExpectNothing serves the quiet states: any byte from the peer is a
// protocol violation, and a clean close is just a close.
type ExpectNothing struct{}

func (ExpectNothing) Read(buf *recvbuf.Buffer) (event.Event, error) {
	if !buf.Empty() {
		return nil, status.ErrExcessData
	}

	return nil, nil
}

func parseRequestLine(line []byte) (method, target string, p proto.Protocol, err error) {
	sp := bytes.IndexByte(line, ' ')
	if sp <= 0 {
		return "", "", proto.Unknown, status.ErrBadRequestLine
	}

	rawMethod, rest := line[:sp], line[sp+1:]

	sp = bytes.IndexByte(rest, ' ')
	if sp <= 0 {
		return "", "", proto.Unknown, status.ErrBadRequestLine
	}

	rawTarget, rawProto := rest[:sp], rest[sp+1:]

	if p = proto.FromBytes(rawProto); p == proto.Unknown {
		return "", "", proto.Unknown, status.ErrBadRequestLine
	}

	return string(rawMethod), string(rawTarget), p, nil
}

func parseStatusLine(line []byte) (code int, reason string, p proto.Protocol, err error) {
	const codeOffset = len("HTTP/x.x ")
	const codeEnd = codeOffset + 3

	if len(line) < codeEnd {
		return 0, "", proto.Unknown, status.ErrBadStatusLine
	}
	if p = proto.FromBytes(line[:codeOffset-1]); p == proto.Unknown {
		return 0, "", proto.Unknown, status.ErrBadStatusLine
	}
	if line[codeOffset-1] != ' ' {
		return 0, "", proto.Unknown, status.ErrBadStatusLine
	}

	for _, digit := range line[codeOffset:codeEnd] {
		if digit < '0' || digit > '9' {
			return 0, "", proto.Unknown, status.ErrBadStatusLine
		}

		code = code*10 + int(digit-'0')
	}

	if code < 100 {
		return 0, "", proto.Unknown, status.ErrBadStatusLine
	}

	switch {
	case len(line) == codeEnd:
		// reason phrase omitted altogether
	case line[codeEnd] == ' ':
		reason = string(line[codeEnd+1:])
	default:
		return 0, "", proto.Unknown, status.ErrBadStatusLine
	}

	return code, reason, p, nil
}

// parseHeaderLines assembles a header block, unfolding obsolete line folding
// into single-space joints. Name and value validation is left to the
// normalization pass.
func parseHeaderLines(lines [][]byte, prealloc int) (*kv.Storage, error) {
	s := kv.NewPrealloc(prealloc)

	for _, line := range lines {
		if len(line) > 0 && httpchars.IsOWS(line[0]) {
			pairs := s.Expose()
			if len(pairs) == 0 {
				return nil, status.ErrDanglingFold
			}

			if cont := trimOWS(line); len(cont) > 0 {
				last := &pairs[len(pairs)-1]
				last.Value = last.Value + " " + uf.B2S(cont)
			}

			continue
		}

		colon := bytes.IndexByte(line, ':')
		if colon <= 0 {
			return nil, status.ErrBadHeaderLine
		}

		s.Add(string(line[:colon]), string(trimOWS(line[colon+1:])))
	}

	return s, nil
}

func trimOWS(line []byte) []byte {
	begin := 0
	for begin < len(line) && httpchars.IsOWS(line[begin]) {
		begin++
	}

	end := len(line)
	for end > begin && httpchars.IsOWS(line[end-1]) {
		end--
	}

	return line[begin:end]
}

// obviouslyBinary reports a first byte that cannot open an HTTP request
// line: not visible ASCII and not whitespace.
func obviouslyBinary(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n':
		return false
	}

	return !httpchars.Target[c]
}
