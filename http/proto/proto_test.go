package proto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromBytes(t *testing.T) {
	require.Equal(t, HTTP10, FromBytes([]byte("HTTP/1.0")))
	require.Equal(t, HTTP11, FromBytes([]byte("HTTP/1.1")))
	require.Equal(t, New(1, 2), FromBytes([]byte("HTTP/1.2")))
	require.Equal(t, Unknown, FromBytes([]byte("HTTP/11")))
	require.Equal(t, Unknown, FromBytes([]byte("HTTP/1,1")))
	require.Equal(t, Unknown, FromBytes([]byte("ICY/1.1")))
	require.Equal(t, Unknown, FromBytes([]byte("HTTP/a.b")))
	require.Equal(t, Unknown, FromBytes(nil))
}

func TestOrdering(t *testing.T) {
	// two digits compare exactly like the wire bytes do
	require.True(t, HTTP10 < HTTP11)
	require.True(t, New(1, 2) > HTTP11)
	require.True(t, New(2, 0) > New(1, 9))
}

func TestString(t *testing.T) {
	require.Equal(t, "HTTP/1.1", HTTP11.String())
	require.Equal(t, "HTTP/1.0", HTTP10.String())
}
