package shoutcast

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/zachfi/icystream/pkg/icy"
)

// MetadataCallbackFunc is the type of the function called when the stream metadata changes
type MetadataCallbackFunc func(m *icy.Metadata)

// Stream represents an open shoutcast stream.
type Stream struct {
	// The name of the server
	Name string

	// What category the server falls under
	Genre string

	// The description of the stream
	Description string

	// Homepage of the server
	URL string

	// Bitrate of the server
	Bitrate int

	// Status line and headers of the response, as seen after the ICY patch.
	Status     string
	StatusCode int
	Header     http.Header

	// Optional function to be executed when stream metadata changes
	MetadataCallbackFunc MetadataCallbackFunc

	// Optional function to be executed for every metadata block, changed or not
	BlockFunc icy.MetadataFunc

	// Amount of bytes to read before expecting a metadata block, 0 when the
	// server sends none
	metaint int

	// The server answered with an ICY status line
	wasIcy bool
	proto  string

	// Stream metadata
	metadata *icy.Metadata

	// The underlying data stream and the reader returning clean audio from it
	rc io.ReadCloser
	r  io.Reader

	logger *slog.Logger
}

// Open establishes a connection to a remote server.
// It automatically handles playlist files (.pls, .m3u) and resolves them to stream URLs.
func Open(ctx context.Context, url string, opts ...Option) (*Stream, error) {
	o := newOptions(opts)
	client := newClient(o)

	o.logger.Info("opening stream", "url", url)

	for i := 0; ; i++ {
		tracker := &connTracker{}
		resp, err := get(tracker.withTrace(ctx), client, o, url)
		if err != nil {
			return nil, err
		}

		kind := classify(resp)
		if kind == sniffPlaylist {
			kind = sniffBody(resp)
		}
		if kind == notPlaylist {
			return newStream(resp, tracker.wasIcy(), o)
		}

		streamURL, err := readPlaylist(resp, kind)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve playlist URL: %w", err)
		}
		if i+1 >= o.maxPlaylists {
			return nil, fmt.Errorf("too many nested playlists resolving %s", url)
		}

		o.logger.Info("resolved playlist to stream URL", "url", streamURL)
		url = streamURL
	}
}

func get(ctx context.Context, client *http.Client, o *options, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Add("accept", "*/*")
	req.Header.Add("user-agent", o.userAgent)
	req.Header.Add("icy-metadata", "1")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected response from %s: %s", url, resp.Status)
	}

	return resp, nil
}

func newStream(resp *http.Response, wasIcy bool, o *options) (*Stream, error) {
	for k, v := range resp.Header {
		o.logger.Debug("HTTP header", "key", k, "value", v[0])
	}

	var bitrate int
	if rawBitrate := resp.Header.Get("icy-br"); rawBitrate != "" {
		var err error
		bitrate, err = strconv.Atoi(rawBitrate)
		if err != nil {
			// Some servers list every bitrate on offer ("128,64").
			o.logger.Warn("cannot parse bitrate", "icy-br", rawBitrate, "err", err)
		}
	}

	s := &Stream{
		Name:        resp.Header.Get("icy-name"),
		Genre:       resp.Header.Get("icy-genre"),
		Description: resp.Header.Get("icy-description"),
		URL:         resp.Header.Get("icy-url"),
		Bitrate:     bitrate,
		Status:      resp.Status,
		StatusCode:  resp.StatusCode,
		Header:      resp.Header,
		wasIcy:      wasIcy,
		proto:       resp.Proto,
		rc:          resp.Body,
		r:           resp.Body,
		logger:      o.logger,
	}
	if s.URL == "" {
		s.URL = resp.Request.URL.String()
	}

	metaint, err := icy.ParseMetaint(resp.Header.Get("icy-metaint"))
	if err != nil {
		o.logger.Info("stream has no metadata interval, reading it as is", "icy-metaint", resp.Header.Get("icy-metaint"))
		return s, nil
	}

	r, err := icy.NewReader(resp.Body, metaint, s.onBlock)
	if err != nil {
		resp.Body.Close()
		return nil, err
	}
	s.metaint = metaint
	s.r = r

	return s, nil
}

func (s *Stream) onBlock(b icy.Block) {
	if s.BlockFunc != nil {
		s.BlockFunc(b)
	}

	if m := b.Metadata(); !m.Equals(s.metadata) {
		s.metadata = m
		if s.MetadataCallbackFunc != nil {
			s.MetadataCallbackFunc(s.metadata)
		}
	}
}

// Metaint returns the metadata interval of the stream, or 0 when the server
// does not interleave metadata.
func (s *Stream) Metaint() int {
	return s.metaint
}

// Metadata returns the most recent metadata seen on the stream.
func (s *Stream) Metadata() *icy.Metadata {
	return s.metadata
}

// WasIcy reports whether the server answered with a non-standard ICY status line.
func (s *Stream) WasIcy() bool {
	return s.wasIcy
}

// ProtoVersion returns "ICY" for servers answering with an ICY status line,
// otherwise the HTTP version of the response.
func (s *Stream) ProtoVersion() string {
	if s.wasIcy {
		return "ICY"
	}
	return s.proto
}

// Read implements the standard Read interface. Only audio bytes are
// returned; metadata is delivered through the callbacks during the read.
func (s *Stream) Read(buf []byte) (int, error) {
	return s.r.Read(buf)
}

// Close closes the stream
func (s *Stream) Close() error {
	s.logger.Info("closing stream", "url", s.URL)
	return s.rc.Close()
}
