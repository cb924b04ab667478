package shoutcast

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
)

const (
	// maxPlaylistSize bounds how much of a playlist response is read.
	maxPlaylistSize = 64 * 1024

	// sniffSize is how much of an untyped response is inspected before
	// deciding between playlist and stream.
	sniffSize = 512
)

var (
	plsContentTypes = []string{"audio/x-scpls", "application/pls+xml"}
	m3uContentTypes = []string{"audio/mpegurl", "audio/x-mpegurl", "application/vnd.apple.mpegurl", "application/x-mpegurl"}
)

type playlistKind int

const (
	notPlaylist playlistKind = iota
	plsPlaylist
	m3uPlaylist
	// sniffPlaylist needs a look at the body before deciding.
	sniffPlaylist
)

// sniffedBody is a response body with its first bytes already buffered.
type sniffedBody struct {
	io.Reader
	io.Closer
}

// classify decides from the response headers whether resp is a playlist
// rather than a stream. A response carrying icy-metaint is always a stream.
func classify(resp *http.Response) playlistKind {
	if resp.Header.Get("icy-metaint") != "" {
		return notPlaylist
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	for _, ct := range plsContentTypes {
		if strings.Contains(contentType, ct) {
			return plsPlaylist
		}
	}
	for _, ct := range m3uContentTypes {
		if strings.Contains(contentType, ct) {
			return m3uPlaylist
		}
	}

	switch strings.ToLower(path.Ext(resp.Request.URL.Path)) {
	case ".pls":
		return plsPlaylist
	case ".m3u", ".m3u8":
		return m3uPlaylist
	}

	if strings.HasPrefix(contentType, "text/plain") {
		return sniffPlaylist
	}

	return notPlaylist
}

// sniff decides whether the start of an untyped body is a playlist. Anything
// not recognisable as one is treated as stream data.
func sniff(head []byte) playlistKind {
	text := strings.TrimPrefix(string(head), "\ufeff")
	text = strings.TrimSpace(text)

	switch {
	case strings.HasPrefix(strings.ToLower(text), "[playlist]"), strings.Contains(text, "File1="):
		return plsPlaylist
	case strings.HasPrefix(text, "#EXTM3U"):
		return m3uPlaylist
	}

	line, _, _ := strings.Cut(text, "\n")
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://") {
		return m3uPlaylist
	}

	return notPlaylist
}

// sniffBody peeks at the body of a response classified as sniffPlaylist. The
// returned kind is never sniffPlaylist, and resp.Body is replaced so no byte
// of the peek is lost to whoever reads it next.
func sniffBody(resp *http.Response) playlistKind {
	br := bufio.NewReaderSize(resp.Body, sniffSize)
	// A short or failed peek is judged on what arrived; the error comes
	// back on the next read.
	head, _ := br.Peek(sniffSize)
	kind := sniff(head)
	resp.Body = sniffedBody{Reader: br, Closer: resp.Body}
	return kind
}

// readPlaylist returns the first stream URL listed in a playlist response,
// resolved against the playlist location.
func readPlaylist(resp *http.Response, kind playlistKind) (string, error) {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPlaylistSize))
	if err != nil {
		return "", fmt.Errorf("failed to read playlist: %w", err)
	}

	var entry string
	switch kind {
	case plsPlaylist:
		entry, err = parsePLS(bytes.NewReader(data))
	default:
		entry, err = parseM3U(bytes.NewReader(data))
	}
	if err != nil {
		return "", err
	}

	ref, err := url.Parse(entry)
	if err != nil {
		return "", fmt.Errorf("invalid playlist entry %q: %w", entry, err)
	}
	return resp.Request.URL.ResolveReference(ref).String(), nil
}

// parsePLS parses a PLS playlist file and returns the first stream URL
func parsePLS(body io.Reader) (string, error) {
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "File") {
			continue
		}
		_, value, ok := strings.Cut(line, "=")
		if value = strings.TrimSpace(value); ok && value != "" {
			return value, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read playlist: %w", err)
	}

	return "", fmt.Errorf("no stream URL found in PLS playlist")
}

// parseM3U parses an M3U playlist file and returns the first stream URL
func parseM3U(body io.Reader) (string, error) {
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		// Skip comments and empty lines
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://") {
			return line, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read playlist: %w", err)
	}

	return "", fmt.Errorf("no stream URL found in M3U playlist")
}
