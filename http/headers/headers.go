package headers

import (
	"strconv"

	"github.com/indigo-web/h1/http/status"
	"github.com/indigo-web/h1/internal/httpchars"
	"github.com/indigo-web/h1/kv"
	"github.com/indigo-web/utils/strcomp"
)

// Normalize brings a header block into its canonical shape, in place: names
// are validated as tokens and lowercased (the original spelling is kept in
// Pair.Raw), values are stripped of optional whitespace and validated, and
// the framing headers get their special treatment:
//
//   - repeated or comma-joined Content-Length entries collapse into a single
//     one as long as all values agree, and disagree loudly otherwise;
//   - Transfer-Encoding must be a single entry holding exactly one chunked
//     coding, the only coding the engine understands; any other coding, a
//     repeated chunked, or a second entry is rejected;
//   - Content-Length next to Transfer-Encoding is rejected outright.
//
// Normalize is idempotent, so running an already-normalized block through it
// again is harmless.
func Normalize(s *kv.Storage) error {
	pairs := s.Expose()
	out := pairs[:0]
	seenLength := ""
	sawChunked := false

	for _, p := range pairs {
		if !ValidFieldName(p.Key) {
			return status.ErrBadHeaderName
		}

		if low := lower(p.Key); low != p.Key {
			if len(p.Raw) == 0 {
				p.Raw = p.Key
			}

			p.Key = low
		}

		p.Value = trimOWS(p.Value)
		if !ValidFieldValue(p.Value) {
			return status.ErrBadHeaderValue
		}

		switch p.Key {
		case "content-length":
			value, err := collapseContentLength(p.Value)
			if err != nil {
				return err
			}

			switch seenLength {
			case "":
				seenLength = value
				p.Value = value
			case value:
				// an exact duplicate carries no information
				continue
			default:
				return status.ErrConflictingContentLength
			}
		case "transfer-encoding":
			if sawChunked {
				return status.ErrMultipleTransferEncoding
			}
			if err := validateTransferEncoding(p.Value); err != nil {
				return err
			}

			p.Value = "chunked"
			sawChunked = true
		}

		out = append(out, p)
	}

	if len(seenLength) != 0 && sawChunked {
		return status.ErrContentLengthWithChunked
	}

	// out shares the backing array with pairs, so compaction is a truncation
	s.Truncate(len(out))
	return nil
}

// Chunked reports whether the block requests chunked transfer. Meaningful
// only after Normalize.
func Chunked(s *kv.Storage) bool {
	return s.Has("transfer-encoding")
}

// ContentLength returns the declared body length. Meaningful only after
// Normalize, which guarantees at most one well-formed entry.
func ContentLength(s *kv.Storage) (length int64, ok bool, err error) {
	value, found := s.Get("content-length")
	if !found {
		return 0, false, nil
	}

	length, err = strconv.ParseInt(value, 10, 64)
	if err != nil || length < 0 {
		return 0, false, status.ErrBadContentLength
	}

	return length, true, nil
}

// HasToken reports whether any comma-separated token of the named header
// equals token, case-insensitively.
func HasToken(s *kv.Storage, name, token string) bool {
	for _, value := range s.Values(name) {
		for len(value) > 0 {
			var element string
			element, value = cutComma(value)
			if strcomp.EqualFold(trimOWS(element), token) {
				return true
			}
		}
	}

	return false
}

// ConnectionTokens collects every comma-separated Connection token, trimmed,
// in order of appearance.
func ConnectionTokens(s *kv.Storage) (tokens []string) {
	for _, value := range s.Values("connection") {
		for len(value) > 0 {
			var element string
			element, value = cutComma(value)
			if element = trimOWS(element); len(element) != 0 {
				tokens = append(tokens, element)
			}
		}
	}

	return tokens
}

// SetCommaHeader removes every entry of the named header and appends one
// entry per given value. The raw spelling is used on the wire, so callers
// pass the titlecased canonical name.
func SetCommaHeader(s *kv.Storage, raw string, values ...string) {
	key := lower(raw)
	s.Delete(key)

	for _, value := range values {
		s.AddPair(kv.Pair{Key: key, Value: value, Raw: raw})
	}
}

// Expects100Continue reports the Expect: 100-continue handshake request.
func Expects100Continue(s *kv.Storage) bool {
	return HasToken(s, "expect", "100-continue")
}

// RequestsClose reports Connection: close from either side.
func RequestsClose(s *kv.Storage) bool {
	return HasToken(s, "connection", "close")
}

// ProposesUpgrade reports the presence of an Upgrade offer.
func ProposesUpgrade(s *kv.Storage) bool {
	return s.Has("upgrade")
}

// ValidFieldName reports whether name is a nonempty RFC 7230 token.
func ValidFieldName(name string) bool {
	if len(name) == 0 {
		return false
	}

	for i := 0; i < len(name); i++ {
		if !httpchars.Token[name[i]] {
			return false
		}
	}

	return true
}

// ValidFieldValue reports whether value contains only field content octets.
// The value is expected to be OWS-stripped already; inner whitespace stays
// legal.
func ValidFieldValue(value string) bool {
	for i := 0; i < len(value); i++ {
		if !httpchars.FieldValue[value[i]] {
			return false
		}
	}

	return true
}

// ValidTarget reports whether target is a nonempty run of visible ASCII.
func ValidTarget(target string) bool {
	if len(target) == 0 {
		return false
	}

	for i := 0; i < len(target); i++ {
		if !httpchars.Target[target[i]] {
			return false
		}
	}

	return true
}

func collapseContentLength(value string) (string, error) {
	first := ""

	for len(value) > 0 {
		var element string
		element, value = cutComma(value)
		element = trimOWS(element)
		if !validDecimal(element) || tooLongDecimal(element) {
			return "", status.ErrBadContentLength
		}

		switch first {
		case "":
			first = element
		case element:
		default:
			return "", status.ErrConflictingContentLength
		}
	}

	if len(first) == 0 {
		return "", status.ErrBadContentLength
	}

	return first, nil
}

func validateTransferEncoding(value string) error {
	codings := 0

	for len(value) > 0 {
		var element string
		element, value = cutComma(value)
		element = trimOWS(element)
		if !strcomp.EqualFold(element, "chunked") {
			// "A server that receives a request message with a transfer
			// coding it does not understand SHOULD respond with 501"
			return status.ErrUnsupportedTransferEncoding
		}

		if codings++; codings > 1 {
			return status.ErrUnsupportedTransferEncoding
		}
	}

	if codings == 0 {
		return status.ErrUnsupportedTransferEncoding
	}

	return nil
}

// tooLongDecimal rejects lengths an int64 cannot hold. A 19-digit value is
// compared against the maximum lexicographically, which works because both
// are plain digit runs of equal length.
func tooLongDecimal(value string) bool {
	const maxInt64 = "9223372036854775807"

	return len(value) > len(maxInt64) ||
		(len(value) == len(maxInt64) && value > maxInt64)
}

func validDecimal(value string) bool {
	if len(value) == 0 {
		return false
	}

	for i := 0; i < len(value); i++ {
		if value[i] < '0' || value[i] > '9' {
			return false
		}
	}

	return true
}

func cutComma(value string) (element, rest string) {
	for i := 0; i < len(value); i++ {
		if value[i] == ',' {
			return value[:i], value[i+1:]
		}
	}

	return value, ""
}

func trimOWS(value string) string {
	begin := 0
	for begin < len(value) && httpchars.IsOWS(value[begin]) {
		begin++
	}

	end := len(value)
	for end > begin && httpchars.IsOWS(value[end-1]) {
		end--
	}

	return value[begin:end]
}

func lower(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] >= 'A' && s[i] <= 'Z' {
			low := make([]byte, len(s))
			for j := 0; j < len(s); j++ {
				c := s[j]
				if c >= 'A' && c <= 'Z' {
					c += 'a' - 'A'
				}
				low[j] = c
			}

			return string(low)
		}
	}

	return s
}
