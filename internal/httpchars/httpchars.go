package httpchars

// Lookup tables for the RFC 7230 character classes the tokenizer relies on.
// Indexing a [256]bool by a byte is branchless and beats range checks on the
// hot path.

// Token reports tchar as of RFC 7230 section 3.2.6.
var Token = [256]bool{
	'!': true, '#': true, '$': true, '%': true, '&': true, '\'': true,
	'*': true, '+': true, '-': true, '.': true, '^': true, '_': true,
	'`': true, '|': true, '~': true,
	'0': true, '1': true, '2': true, '3': true, '4': true,
	'5': true, '6': true, '7': true, '8': true, '9': true,
}

// Target covers the request-target: visible ASCII with no whitespace and no
// control bytes.
var Target [256]bool

// FieldValue covers header field values and reason phrases: visible ASCII,
// obs-text and inner whitespace. CR, LF and NUL never pass.
var FieldValue [256]bool

func init() {
	for c := 'a'; c <= 'z'; c++ {
		Token[c] = true
		Token[c-'a'+'A'] = true
	}

	for c := 0x21; c <= 0x7e; c++ {
		Target[c] = true
	}

	FieldValue[' '], FieldValue['\t'] = true, true
	for c := 0x21; c <= 0xff; c++ {
		FieldValue[c] = c != 0x7f
	}
}

// IsOWS reports optional whitespace as of RFC 7230: space or horizontal tab.
func IsOWS(c byte) bool {
	return c == ' ' || c == '\t'
}
