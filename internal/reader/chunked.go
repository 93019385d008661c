package reader

import (
	"github.com/indigo-web/h1/event"
	"github.com/indigo-web/h1/http/status"
	"github.com/indigo-web/h1/internal/hexconv"
	"github.com/indigo-web/h1/internal/httpchars"
	"github.com/indigo-web/h1/internal/recvbuf"
)

// maxChunkLengthDigits caps a single chunk length at what an int64 can hold.
const maxChunkLengthDigits = 16

type terminatorState uint8

const (
	termNone terminatorState = iota
	termExpect
	termSeenCR
)

// Chunked decodes a chunked body: size lines, chunk payloads, and the
// trailer section after the zero-size chunk. Chunk extensions are parsed and
// discarded. Every Data it emits brackets its source chunk with ChunkStart
// and ChunkEnd.
type Chunked struct {
	prealloc   int
	inChunk    int64
	term       terminatorState
	trailer    bool
	chunkStart bool
}

func NewChunked(prealloc int) *Chunked {
	return &Chunked{prealloc: prealloc}
}

func (c *Chunked) Read(buf *recvbuf.Buffer) (event.Event, error) {
	if c.trailer {
		return c.readTrailer(buf)
	}

	for c.term != termNone {
		b := buf.ExtractAtMost(1)
		if b == nil {
			return nil, nil
		}

		switch {
		case c.term == termExpect && b[0] == '\r':
			c.term = termSeenCR
		case b[0] == '\n':
			c.term = termNone
		default:
			return nil, status.ErrBadChunk
		}
	}

	if c.inChunk == 0 {
		line, err := buf.NextLine()
		if err != nil {
			return nil, err
		}
		if line == nil {
			return nil, nil
		}

		size, err := parseChunkSize(line)
		if err != nil {
			return nil, err
		}

		if size == 0 {
			c.trailer = true
			return c.readTrailer(buf)
		}

		c.inChunk = size
		c.chunkStart = true
	}

	n := buf.Len()
	if int64(n) > c.inChunk {
		n = int(c.inChunk)
	}

	data := buf.ExtractAtMost(n)
	if data == nil {
		return nil, nil
	}

	c.inChunk -= int64(len(data))
	end := c.inChunk == 0
	if end {
		c.term = termExpect
	}

	start := c.chunkStart
	c.chunkStart = false

	return &event.Data{Payload: event.Bytes(data), ChunkStart: start, ChunkEnd: end}, nil
}

func (c *Chunked) ReadEOF() (event.Event, error) {
	return nil, status.ErrUnexpectedEOF
}

func (c *Chunked) readTrailer(buf *recvbuf.Buffer) (event.Event, error) {
	lines, err := buf.Lines()
	if err != nil {
		return nil, err
	}
	if lines == nil {
		return nil, nil
	}

	trailers, err := parseHeaderLines(lines, c.prealloc)
	if err != nil {
		return nil, err
	}

	eom := &event.EndOfMessage{Trailers: trailers}

	return eom, eom.Validate()
}

// parseChunkSize reads the hex length off a chunk-size line. Extensions
// after a semicolon are discarded, and trailing whitespace before either the
// semicolon or the line end is tolerated: real servers emit it.
func parseChunkSize(line []byte) (int64, error) {
	var (
		size   int64
		digits int
	)

	for i := 0; i < len(line); i++ {
		c := line[i]
		if c == ';' {
			break
		}
		if httpchars.IsOWS(c) {
			// nothing but extensions or padding may follow
			for _, tail := range line[i:] {
				if tail == ';' {
					break
				}
				if !httpchars.IsOWS(tail) {
					return 0, status.ErrBadChunk
				}
			}

			break
		}

		value := hexconv.Halfbyte[c]
		if value == 0xFF {
			return 0, status.ErrBadChunk
		}

		size = size<<4 | int64(value)
		if digits++; digits > maxChunkLengthDigits || size < 0 {
			return 0, status.ErrChunkTooLong
		}
	}

	if digits == 0 {
		return 0, status.ErrBadChunk
	}

	return size, nil
}
