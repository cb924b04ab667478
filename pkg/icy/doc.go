// Package icy implements the byte level framing of the SHOUTcast/Icecast ICY
// protocol.
//
// An ICY response body interleaves payload with metadata blocks:
//
//	[metaint payload bytes][metabyte][metabyte*16 bytes of metadata][metaint payload bytes]...
//
// Demuxer and Reader strip the blocks out of an incoming stream, Muxer
// injects them into an outgoing one, and PreambleConn rewrites the
// non-standard "ICY 200 OK" status line so net/http can parse the response.
package icy
