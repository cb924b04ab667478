package icy

import (
	"bytes"
	"io"
	"net"
	"sync/atomic"
)

const preambleSize = 3

var (
	icyToken = []byte("ICY")
	http10   = []byte("HTTP/1.0")
)

// PatchPreamble rewrites a leading, case-insensitive "ICY" status token into
// "HTTP/1.0" so a standard HTTP parser accepts the status line. It reports
// whether the token was found. The input is never modified.
func PatchPreamble(b []byte) ([]byte, bool, error) {
	if len(b) < preambleSize {
		return nil, false, ErrShortPreamble
	}
	if !bytes.EqualFold(b[:preambleSize], icyToken) {
		return b, false, nil
	}

	patched := make([]byte, 0, len(b)+len(http10)-preambleSize)
	patched = append(patched, http10...)
	patched = append(patched, b[preambleSize:]...)

	return patched, true, nil
}

// PreambleConn wraps a client connection so the response status line of an
// ICY server is readable by net/http. The first bytes read from the
// connection are patched once with PatchPreamble; after the patched bytes
// have been handed out, reads go straight to the wrapped connection.
type PreambleConn struct {
	net.Conn

	patched bool
	pending []byte
	wasIcy  atomic.Bool
}

// NewPreambleConn wraps c.
func NewPreambleConn(c net.Conn) *PreambleConn {
	return &PreambleConn{Conn: c}
}

// WasIcy reports whether the server answered with an ICY status line. It is
// only meaningful once the response headers have been read.
func (c *PreambleConn) WasIcy() bool {
	return c.wasIcy.Load()
}

func (c *PreambleConn) Read(p []byte) (int, error) {
	if !c.patched {
		if err := c.patch(len(p)); err != nil {
			return 0, err
		}
	}

	if len(c.pending) > 0 {
		n := copy(p, c.pending)
		c.pending = c.pending[n:]
		if len(c.pending) == 0 {
			c.pending = nil
		}
		return n, nil
	}

	return c.Conn.Read(p)
}

// patch reads the first delivery from the connection. A delivery shorter
// than the token is topped up from the connection before the check runs.
func (c *PreambleConn) patch(size int) error {
	if size < preambleSize {
		size = preambleSize
	}
	buf := make([]byte, size)

	n := 0
	for n < preambleSize {
		nn, err := c.Conn.Read(buf[n:])
		n += nn
		if err != nil {
			if n >= preambleSize {
				break
			}
			if err == io.EOF && n > 0 {
				return ErrShortPreamble
			}
			return err
		}
	}

	chunk, wasIcy, err := PatchPreamble(buf[:n])
	if err != nil {
		return err
	}

	c.wasIcy.Store(wasIcy)
	c.pending = chunk
	c.patched = true

	return nil
}
