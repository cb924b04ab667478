package icy

import (
	"io"
	"sync"
)

// noMetadata is written at every interval boundary with nothing queued.
var noMetadata = []byte{0}

// Muxer injects metadata blocks into an outgoing payload stream, one every
// metaint payload bytes. An interval with nothing queued gets a single zero
// metabyte.
//
// Write must be called from one goroutine at a time; Queue and QueueTitle
// may be called from any goroutine.
type Muxer struct {
	metaint int
	dst     io.Writer
	acc     accumulator

	mu    sync.Mutex
	queue [][]byte
}

// NewMuxer returns a Muxer writing to dst with metaint payload bytes between blocks.
func NewMuxer(dst io.Writer, metaint int) (*Muxer, error) {
	if metaint <= 0 {
		return nil, ErrInvalidMetaint
	}

	m := &Muxer{
		metaint: metaint,
		dst:     dst,
	}
	m.acc.passthrough(metaint)

	return m, nil
}

// QueueTitle queues a block carrying only a StreamTitle.
func (m *Muxer) QueueTitle(title string) error {
	return m.Queue(NewMetadata(title))
}

// Queue encodes md and queues it for the next free interval boundary. On
// error nothing is queued. The queue is unbounded; callers must not queue
// faster than the stream drains it.
func (m *Muxer) Queue(md *Metadata) error {
	block, err := EncodeBlock(md)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.queue = append(m.queue, block)
	m.mu.Unlock()

	return nil
}

// Pending returns the number of queued blocks not yet written.
func (m *Muxer) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Write forwards payload bytes, injecting a block at every interval
// boundary. The returned count covers payload bytes only.
func (m *Muxer) Write(p []byte) (int, error) {
	total := len(p)

	for {
		consumed := total - len(p)
		forward, rest := m.acc.consume(p)
		if len(forward) > 0 {
			if _, err := m.dst.Write(forward); err != nil {
				return consumed, err
			}
		}
		p = rest

		if !m.acc.done() {
			return total, nil
		}

		// A failed injection leaves the block queued and the boundary armed,
		// so the next Write retries it before any payload.
		block, queued := m.peek()
		if _, err := m.dst.Write(block); err != nil {
			return total - len(p), err
		}
		if queued {
			m.pop()
		}
		m.acc.passthrough(m.metaint)
	}
}

// peek returns the block due at the next boundary and whether it came from
// the queue.
func (m *Muxer) peek() ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.queue) == 0 {
		return noMetadata, false
	}
	return m.queue[0], true
}

func (m *Muxer) pop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queue[0] = nil
	m.queue = m.queue[1:]
}
