package recvbuf

import (
	"github.com/indigo-web/h1/http/status"
)

// Buffer accumulates received bytes until the parser can cut a complete
// piece off the front. Both search operations remember how far they already
// looked, so feeding a long line byte by byte stays linear overall.
//
// Extracted slices are capped, and the backing array is dropped once fully
// drained, so a slice handed out earlier is never overwritten by later
// appends.
type Buffer struct {
	data        []byte
	lineSearch  int
	blockSearch int
	maxLine     int
	maxBlock    int
}

func New(maxLine, maxBlock int) *Buffer {
	return &Buffer{
		maxLine:  maxLine,
		maxBlock: maxBlock,
	}
}

// Append adds newly received bytes.
func (b *Buffer) Append(data []byte) {
	b.data = append(b.data, data...)
}

func (b *Buffer) Len() int {
	return len(b.data)
}

func (b *Buffer) Empty() bool {
	return len(b.data) == 0
}

// Bytes exposes the unconsumed contents. The view is read-only and valid
// until the next Append.
func (b *Buffer) Bytes() []byte {
	return b.data[: len(b.data) : len(b.data)]
}

// ExtractAtMost cuts off and returns up to n bytes from the front, or nil if
// nothing is buffered.
func (b *Buffer) ExtractAtMost(n int) []byte {
	if n > len(b.data) {
		n = len(b.data)
	}
	if n <= 0 {
		return nil
	}

	return b.extract(n)
}

// NextLine cuts off the next line, terminated by CRLF or a bare LF, and
// returns it without the terminator. A nil line with a nil error means more
// bytes are needed. Once the unterminated prefix outgrows the line limit,
// the peer is stalling and ErrLineTooLong is reported.
func (b *Buffer) NextLine() (line []byte, err error) {
	idx := b.find('\n', b.lineSearch)
	if idx == -1 {
		b.lineSearch = len(b.data)
		if len(b.data) > b.maxLine {
			return nil, status.ErrLineTooLong
		}

		return nil, nil
	}

	out := b.extract(idx + 1)
	out = out[:idx]
	if idx > 0 && out[idx-1] == '\r' {
		out = out[:idx-1]
	}

	return out, nil
}

// Lines cuts off a whole head section: every line up to and including the
// terminating blank one, CR stripped, the blank line dropped. A nil slice
// with a nil error means the terminator has not arrived yet; an empty
// non-nil slice is a head that starts with its own terminator. The search
// is bounded by the head limit.
func (b *Buffer) Lines() (lines [][]byte, err error) {
	end := b.findBlankLine()
	if end == -1 {
		if len(b.data) > b.maxBlock {
			return nil, status.ErrHeadersTooLong
		}

		return nil, nil
	}

	out := b.extract(end)
	lines = make([][]byte, 0, 8)

	for len(out) > 0 {
		idx := 0
		for out[idx] != '\n' {
			idx++
		}

		line := out[:idx:idx]
		if idx > 0 && line[idx-1] == '\r' {
			line = line[: idx-1 : idx-1]
		}

		out = out[idx+1:]
		lines = append(lines, line)
	}

	// the last line is the blank terminator
	return lines[:len(lines)-1], nil
}

// findBlankLine returns the offset just past the first blank line, or -1.
// A blank line is LF LF or LF CR LF; the head may also open with one.
func (b *Buffer) findBlankLine() int {
	if len(b.data) >= 1 && b.data[0] == '\n' {
		return 1
	}
	if len(b.data) >= 2 && b.data[0] == '\r' && b.data[1] == '\n' {
		return 2
	}

	for i := b.blockSearch; ; {
		idx := b.find('\n', i)
		if idx == -1 || idx+1 >= len(b.data) {
			break
		}

		switch b.data[idx+1] {
		case '\n':
			return idx + 2
		case '\r':
			if idx+2 >= len(b.data) {
				break
			}
			if b.data[idx+2] == '\n' {
				return idx + 3
			}
		}

		i = idx + 1
	}

	// resume behind the last bytes, which may still be a partial terminator
	b.blockSearch = max(0, len(b.data)-2)
	return -1
}

func (b *Buffer) find(c byte, from int) int {
	for i := from; i < len(b.data); i++ {
		if b.data[i] == c {
			return i
		}
	}

	return -1
}

func (b *Buffer) extract(n int) []byte {
	out := b.data[:n:n]
	b.data = b.data[n:]
	if len(b.data) == 0 {
		// release the backing array; out may still be referenced by the caller
		b.data = nil
	}

	b.lineSearch, b.blockSearch = 0, 0

	return out
}
