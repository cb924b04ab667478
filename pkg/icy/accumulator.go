package icy

type requestKind int

const (
	requestNone requestKind = iota
	// requestPassthrough forwards bytes downstream while counting them.
	requestPassthrough
	// requestBytes holds bytes back until a contiguous block is complete.
	requestBytes
)

// accumulator consumes an arbitrarily chunked byte stream on behalf of a
// driver. The driver arms one request at a time and calls consume with each
// chunk until done reports true, then arms the next request and hands over
// whatever is left of the chunk.
type accumulator struct {
	kind requestKind
	want int
	seen int
	buf  []byte
}

// passthrough arms a request to forward exactly n bytes.
func (a *accumulator) passthrough(n int) {
	a.kind = requestPassthrough
	a.want = n
	a.seen = 0
	a.buf = nil
}

// bytes arms a request to buffer the next n bytes into a single block.
func (a *accumulator) bytes(n int) {
	a.kind = requestBytes
	a.want = n
	a.seen = 0
	a.buf = make([]byte, 0, n)
}

func (a *accumulator) remaining() int {
	return a.want - a.seen
}

// done reports whether the outstanding request has been satisfied. A zero
// sized request is satisfied as soon as it is armed.
func (a *accumulator) done() bool {
	return a.kind != requestNone && a.remaining() == 0
}

// consume applies p to the outstanding request. forward holds the bytes that
// must be passed downstream unmodified (always a sub-slice of p) and rest the
// bytes the request did not need.
func (a *accumulator) consume(p []byte) (forward, rest []byte) {
	n := a.remaining()
	if n > len(p) {
		n = len(p)
	}

	switch a.kind {
	case requestPassthrough:
		forward = p[:n]
	case requestBytes:
		a.buf = append(a.buf, p[:n]...)
	default:
		return nil, p
	}

	a.seen += n
	return forward, p[n:]
}

// block returns the buffered bytes of a completed bytes request. The slice is
// owned by the caller; the next request allocates a new one.
func (a *accumulator) block() []byte {
	b := a.buf
	a.buf = nil
	return b
}
