package status

// HTTPError is the error currency of the engine. Code is a hint: the status
// an embedder should answer with if it decides to respond before closing.
// Remote marks errors caused by the peer's bytes; everything else is a local
// misuse of the engine.
type HTTPError struct {
	Message string
	Code    Code
	Remote  bool
}

func NewError(code Code, message string) HTTPError {
	return HTTPError{
		Code:    code,
		Message: message,
	}
}

func (h HTTPError) Error() string {
	return h.Message
}

// Is matches on code and message, ignoring origin, so that a sentinel below
// still matches after the error crossed to the remote side via AsRemote.
func (h HTTPError) Is(target error) bool {
	t, ok := target.(HTTPError)
	return ok && t.Code == h.Code && t.Message == h.Message
}

// AsRemote reattributes the error to the peer. Validation code is shared
// between the send and the receive paths, so the receive path flips the
// origin of whatever bubbles up.
func (h HTTPError) AsRemote() HTTPError {
	h.Remote = true
	return h
}

// AsRemote flips err to the remote origin if it is an HTTPError, and returns
// it untouched otherwise.
func AsRemote(err error) error {
	if h, ok := err.(HTTPError); ok {
		return h.AsRemote()
	}

	return err
}

// IsRemote reports whether err was caused by received bytes rather than by
// the embedder.
func IsRemote(err error) bool {
	h, ok := err.(HTTPError)
	return ok && h.Remote
}

var (
	ErrBadRequest                  = NewError(BadRequest, "bad request")
	ErrNotHTTP                     = NewError(BadRequest, "start line does not look like HTTP")
	ErrBadRequestLine              = NewError(BadRequest, "malformed request line")
	ErrBadStatusLine               = NewError(BadRequest, "malformed status line")
	ErrBadHeaderLine               = NewError(BadRequest, "malformed header line")
	ErrBadHeaderName               = NewError(BadRequest, "illegal header name")
	ErrBadHeaderValue              = NewError(BadRequest, "illegal header value")
	ErrDanglingFold                = NewError(BadRequest, "continuation line without a header to continue")
	ErrBadMethod                   = NewError(BadRequest, "request method is not a token")
	ErrBadTarget                   = NewError(BadRequest, "illegal request target")
	ErrBadReason                   = NewError(BadRequest, "illegal reason phrase")
	ErrBadStatusCode               = NewError(BadRequest, "status code out of range")
	ErrMissingHost                 = NewError(BadRequest, "missing mandatory Host header")
	ErrMultipleHost                = NewError(BadRequest, "multiple Host headers")
	ErrBadChunk                    = NewError(BadRequest, "malformed chunk-encoded data")
	ErrChunkTooLong                = NewError(RequestEntityTooLarge, "chunk length is too long")
	ErrBadContentLength            = NewError(BadRequest, "malformed Content-Length")
	ErrConflictingContentLength    = NewError(BadRequest, "conflicting Content-Length headers")
	ErrUnsupportedTransferEncoding = NewError(NotImplemented, "only Transfer-Encoding: chunked is supported")
	ErrMultipleTransferEncoding    = NewError(NotImplemented, "multiple Transfer-Encoding headers")
	ErrContentLengthWithChunked    = NewError(BadRequest, "Transfer-Encoding and Content-Length together")

	ErrLineTooLong    = NewError(RequestHeaderFieldsTooLarge, "protocol line exceeds the configured limit")
	ErrHeadersTooLong = NewError(RequestHeaderFieldsTooLarge, "head section exceeds the configured limit")

	ErrUnexpectedEOF  = NewError(BadRequest, "peer closed the connection before completing the message")
	ErrDataAfterClose = NewError(BadRequest, "received data after end of stream")
	ErrExcessData     = NewError(BadRequest, "received data when expecting end of stream")

	ErrPeerError    = NewError(BadRequest, "cannot receive: peer state is ERROR")
	ErrOurError     = NewError(InternalServerError, "cannot send: our state is ERROR")
	ErrVersionFixed = NewError(HTTPVersionNotSupported, "outgoing messages are always HTTP/1.1")

	ErrBodyOverrun   = NewError(InternalServerError, "more body data than the declared Content-Length")
	ErrBodyUnderrun  = NewError(InternalServerError, "less body data than the declared Content-Length")
	ErrStrayTrailers = NewError(InternalServerError, "trailer headers require chunked framing")
	ErrOpaquePayload = NewError(InternalServerError, "opaque payloads require the vectored send")

	ErrUnsolicitedSwitch = NewError(BadRequest, "protocol switch response without a pending proposal")

	ErrNotBothDone       = NewError(InternalServerError, "cannot reuse: both sides must be DONE")
	ErrReuseKeepAliveOff = NewError(InternalServerError, "cannot reuse: keep-alive is disabled")
	ErrReuseAfterSwitch  = NewError(InternalServerError, "cannot reuse: protocol switch is pending or complete")
)
