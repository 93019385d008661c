package config

type (
	Recv struct {
		// MaxLineLength bounds the chunk-size lines of chunked bodies, the only
		// lines the engine searches for one at a time. A line that still has no
		// terminator past this point is a protocol error, which keeps a peer
		// from feeding an endless line byte by byte. Request and status lines
		// are read as part of the head section and fall under MaxHeadersLength.
		MaxLineLength int
		// MaxHeadersLength bounds the whole head section (start line plus header
		// block, folding included) while the engine is waiting for the
		// terminating blank line. Trailer sections of chunked bodies share the
		// same bound.
		MaxHeadersLength int
	}

	Headers struct {
		// PairsPrealloc is the number of header entries allocated upfront for
		// each parsed message.
		PairsPrealloc int
	}
)

// Config holds the engine restrictions and pre-allocations.
//
// Always modify defaults (returned via Default()) instead of initializing the
// struct manually, so that newly introduced limits pick up sane values.
type Config struct {
	Recv    Recv
	Headers Headers
}

// Default returns the well-balanced defaults.
//
// Precedents for the head bounds: node.js allows 80kb, tomcat 8kb, IIS 16kb,
// Apache 8kb per line.
func Default() *Config {
	return &Config{
		Recv: Recv{
			MaxLineLength:    16 * 1024,
			MaxHeadersLength: 32 * 1024,
		},
		Headers: Headers{
			PairsPrealloc: 10,
		},
	}
}
