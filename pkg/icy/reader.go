package icy

import (
	"bytes"
	"io"
)

const readBufferSize = 32 * 1024

type pendingBlock struct {
	// at is the payload offset the block was found at.
	at    int64
	block Block
}

// Reader is a pull-based Demuxer: reads return only payload bytes while
// metadata blocks are reported to the MetadataFunc. A block is reported
// during the Read call that reaches its position, after every payload byte
// preceding it has been returned and before any byte following it.
//
// When the underlying reader ends, its error is returned once buffered
// payload has been drained. A metadata block cut short by the end of the
// stream is dropped.
type Reader struct {
	r  io.Reader
	d  *Demuxer
	fn MetadataFunc

	out     bytes.Buffer
	buf     []byte
	err     error
	written int64
	read    int64
	pending []pendingBlock
}

// NewReader wraps r, which must be positioned at the start of the response body.
func NewReader(r io.Reader, metaint int, fn MetadataFunc) (*Reader, error) {
	rd := &Reader{
		r:   r,
		fn:  fn,
		buf: make([]byte, readBufferSize),
	}

	d, err := NewDemuxer(metaint, (*readerSink)(rd), rd.onBlock)
	if err != nil {
		return nil, err
	}
	rd.d = d

	return rd, nil
}

// State returns the demultiplexer state.
func (r *Reader) State() State {
	return r.d.State()
}

func (r *Reader) Read(p []byte) (int, error) {
	for {
		for len(r.pending) > 0 && r.pending[0].at == r.read {
			b := r.pending[0].block
			r.pending = r.pending[1:]
			if r.fn != nil {
				r.fn(b)
			}
		}

		if r.out.Len() > 0 {
			break
		}
		if r.err != nil {
			return 0, r.err
		}

		n, err := r.r.Read(r.buf)
		if n > 0 {
			// The sink never fails.
			_, _ = r.d.Write(r.buf[:n])
		}
		if err != nil {
			r.err = err
		}
	}

	if len(r.pending) > 0 {
		if next := r.pending[0].at - r.read; next < int64(len(p)) {
			p = p[:next]
		}
	}

	n, _ := r.out.Read(p)
	r.read += int64(n)
	return n, nil
}

func (r *Reader) onBlock(b Block) {
	r.pending = append(r.pending, pendingBlock{at: r.written, block: b})
}

type readerSink Reader

func (s *readerSink) Write(p []byte) (int, error) {
	s.written += int64(len(p))
	return s.out.Write(p)
}
