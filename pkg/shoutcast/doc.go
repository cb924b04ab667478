// Package shoutcast opens ICY/Shoutcast streams over HTTP and HTTPS.
//
// It started as a fork of github.com/romantomjak/shoutcast and is built on
// the framing in pkg/icy:
//   - Legacy servers answering "ICY 200 OK" are readable: every connection is
//     wrapped so the status line is rewritten before net/http parses it
//   - Metadata blocks are stripped so reads return only audio bytes; title
//     changes are reported through a callback
//   - Playlist resolution: .pls and .m3u URLs are resolved to the actual stream URL
//   - No client timeout on the stream so long-running recording is supported
package shoutcast
