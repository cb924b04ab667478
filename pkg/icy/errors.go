package icy

import "errors"

var (
	// ErrInvalidMetaint is returned for a metadata interval that is missing,
	// zero, negative or not a number. Callers treat the stream as opaque.
	ErrInvalidMetaint = errors.New("icy: invalid metadata interval")

	// ErrMetadataTooLarge is returned when serialized metadata exceeds MaxMetadataLength.
	ErrMetadataTooLarge = errors.New("icy: metadata must be <= 4080 bytes")

	// ErrMissingStreamTitle is returned when queued metadata has no StreamTitle field.
	ErrMissingStreamTitle = errors.New("icy: a StreamTitle field is required for metadata")

	// ErrShortPreamble is returned when a connection ends before the first
	// three bytes of the response could be inspected.
	ErrShortPreamble = errors.New("icy: response preamble shorter than 3 bytes")
)
