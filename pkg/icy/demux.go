package icy

import (
	"io"
	"strconv"
	"strings"
)

// State is the position of a demultiplexer within the metaint cycle.
type State int

const (
	// StateRaw counts payload bytes up to metaint.
	StateRaw State = iota
	// StateReadLength waits for the metabyte.
	StateReadLength
	// StateReadMetadata buffers metabyte*16 bytes of metadata.
	StateReadMetadata
)

func (s State) String() string {
	switch s {
	case StateRaw:
		return "raw"
	case StateReadLength:
		return "read-length"
	case StateReadMetadata:
		return "read-metadata"
	default:
		return "unknown"
	}
}

// Block is one metadata block pulled out of a stream.
type Block struct {
	// Raw holds the block exactly as received, zero padding included and
	// the metabyte excluded. len(Raw) is always a multiple of BlockSize.
	Raw []byte

	// Title is the StreamTitle value; HasTitle is false when the block carries none.
	Title    string
	HasTitle bool
}

// Metadata parses every field of the block.
func (b Block) Metadata() *Metadata {
	return ParseMetadata(b.Raw)
}

// MetadataFunc receives metadata blocks in stream order.
type MetadataFunc func(b Block)

// ParseMetaint parses an icy-metaint header value. Missing, zero, negative
// and non-numeric values yield ErrInvalidMetaint.
func ParseMetaint(v string) (int, error) {
	metaint, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || metaint <= 0 {
		return 0, ErrInvalidMetaint
	}
	return metaint, nil
}

// Demuxer strips metadata blocks out of an ICY stream. Bytes are fed with
// Write in chunks of any size; clean payload goes to the destination writer
// and every non-empty metadata block is handed to the MetadataFunc.
//
// A Demuxer is not safe for concurrent use.
type Demuxer struct {
	metaint int
	dst     io.Writer
	fn      MetadataFunc

	state State
	acc   accumulator
}

// NewDemuxer returns a Demuxer expecting a metadata block every metaint payload bytes.
func NewDemuxer(metaint int, dst io.Writer, fn MetadataFunc) (*Demuxer, error) {
	if metaint <= 0 {
		return nil, ErrInvalidMetaint
	}

	d := &Demuxer{
		metaint: metaint,
		dst:     dst,
		fn:      fn,
	}
	d.raw()

	return d, nil
}

// State returns the current position in the metaint cycle.
func (d *Demuxer) State() State {
	return d.state
}

// Write feeds stream bytes. It always consumes all of p unless the
// destination writer fails.
func (d *Demuxer) Write(p []byte) (int, error) {
	total := len(p)

	for {
		consumed := total - len(p)
		forward, rest := d.acc.consume(p)
		if len(forward) > 0 {
			if _, err := d.dst.Write(forward); err != nil {
				return consumed, err
			}
		}
		p = rest

		if !d.acc.done() {
			return total, nil
		}
		d.advance()
	}
}

func (d *Demuxer) raw() {
	d.state = StateRaw
	d.acc.passthrough(d.metaint)
}

func (d *Demuxer) advance() {
	switch d.state {
	case StateRaw:
		d.state = StateReadLength
		d.acc.bytes(1)

	case StateReadLength:
		length := int(d.acc.block()[0]) * BlockSize
		if length == 0 {
			// No metadata this interval.
			d.raw()
			return
		}
		d.state = StateReadMetadata
		d.acc.bytes(length)

	case StateReadMetadata:
		raw := d.acc.block()
		if d.fn != nil {
			title, ok := ParseTitle(raw)
			d.fn(Block{Raw: raw, Title: title, HasTitle: ok})
		}
		d.raw()
	}
}
