package icy

import (
	"bytes"
	"fmt"
	"strings"
)

const (
	// StreamTitle is the only metadata key every ICY sender is expected to provide.
	StreamTitle = "StreamTitle"

	// BlockSize is the unit the metabyte counts in.
	BlockSize = 16

	// MaxMetadataLength is the largest serialized metadata a single metabyte can describe.
	MaxMetadataLength = BlockSize * 255
)

const (
	titleMarker = StreamTitle + "="
	terminator  = "';"
)

// Metadata is an ordered set of ICY metadata fields.
type Metadata struct {
	keys   []string
	values map[string]string
}

// NewMetadata returns Metadata carrying only a StreamTitle.
func NewMetadata(title string) *Metadata {
	m := &Metadata{}
	m.Set(StreamTitle, title)
	return m
}

// Set adds or replaces a field. New keys keep their insertion order.
func (m *Metadata) Set(key, value string) {
	if m.values == nil {
		m.values = make(map[string]string)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value for key.
func (m *Metadata) Get(key string) (string, bool) {
	if m == nil {
		return "", false
	}
	v, ok := m.values[key]
	return v, ok
}

// Title returns the StreamTitle field.
func (m *Metadata) Title() (string, bool) {
	return m.Get(StreamTitle)
}

// Keys returns the field names in serialization order: StreamTitle first,
// then every other key in insertion order.
func (m *Metadata) Keys() []string {
	if m == nil {
		return nil
	}
	keys := make([]string, 0, len(m.keys))
	if _, ok := m.values[StreamTitle]; ok {
		keys = append(keys, StreamTitle)
	}
	for _, k := range m.keys {
		if k != StreamTitle {
			keys = append(keys, k)
		}
	}
	return keys
}

// Equals reports whether both sets hold the same fields in the same order.
func (m *Metadata) Equals(other *Metadata) bool {
	if m == nil || other == nil {
		return m == other
	}
	a, b := m.Keys(), other.Keys()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] || m.values[a[i]] != other.values[b[i]] {
			return false
		}
	}
	return true
}

// String serializes the fields as key='value'; pairs. Values are written
// verbatim; there is no escaping in the ICY format.
func (m *Metadata) String() string {
	var sb strings.Builder
	for _, k := range m.Keys() {
		sb.WriteString(k)
		sb.WriteString("='")
		sb.WriteString(m.values[k])
		sb.WriteString(terminator)
	}
	return sb.String()
}

// ParseTitle extracts the StreamTitle value from a metadata block.
//
// The value ends at the first "';" following the StreamTitle= marker, so a
// title containing that sequence is truncated.
func ParseTitle(b []byte) (string, bool) {
	return ParseString(string(b))
}

// ParseString is ParseTitle for text that is already a string.
func ParseString(s string) (string, bool) {
	start := strings.Index(s, titleMarker)
	if start < 0 {
		return "", false
	}

	end := strings.Index(s[start:], terminator)
	if end <= 0 {
		return "", false
	}
	end += start

	// Skip the marker and the opening quote.
	begin := start + len(titleMarker) + 1
	if begin > end {
		return "", true
	}
	return s[begin:end], true
}

// ParseMetadata decodes every key='value'; pair of a block. Trailing zero
// padding is ignored. The StreamTitle field, when present, always carries the
// ParseTitle result so both views of a block agree.
func ParseMetadata(b []byte) *Metadata {
	b = bytes.TrimRight(b, "\x00")
	s := string(b)
	m := &Metadata{}

	rest := s
	for len(rest) > 0 {
		eq := strings.Index(rest, "='")
		if eq <= 0 {
			break
		}
		key := rest[:eq]
		value := rest[eq+2:]
		end := strings.Index(value, terminator)
		if end < 0 {
			break
		}
		m.Set(key, value[:end])
		rest = value[end+len(terminator):]
	}

	if title, ok := ParseString(s); ok {
		m.Set(StreamTitle, title)
	}

	return m
}

// EncodeBlock serializes m into a wire block: the metabyte followed by the
// serialized fields, zero padded to a multiple of BlockSize.
func EncodeBlock(m *Metadata) ([]byte, error) {
	if _, ok := m.Title(); !ok {
		return nil, ErrMissingStreamTitle
	}

	s := m.String()
	if len(s) > MaxMetadataLength {
		return nil, fmt.Errorf("%w: got %d bytes", ErrMetadataTooLarge, len(s))
	}

	count := (len(s) + BlockSize - 1) / BlockSize
	buf := make([]byte, count*BlockSize+1)
	buf[0] = byte(count)
	copy(buf[1:], s)

	return buf, nil
}
