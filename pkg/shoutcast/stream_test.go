package shoutcast

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zachfi/icystream/pkg/icy"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// icyHandler hijacks the connection and answers with a raw status line,
// the way legacy SHOUTcast servers do.
func icyHandler(t *testing.T, statusLine string, metaint int, payload []byte, titles []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Icy-MetaData") != "1" {
			t.Errorf("Icy-MetaData request header = %q", r.Header.Get("Icy-MetaData"))
		}

		conn, bufrw, err := w.(http.Hijacker).Hijack()
		if err != nil {
			t.Errorf("Hijack: %v", err)
			return
		}
		defer conn.Close()

		fmt.Fprintf(bufrw, "%s\r\nicy-name: Test Radio\r\nicy-genre: Jazz\r\nicy-br: 128\r\n", statusLine)
		if metaint > 0 {
			fmt.Fprintf(bufrw, "icy-metaint: %d\r\n", metaint)
		}
		bufrw.WriteString("\r\n")

		var dst io.Writer = bufrw
		if metaint > 0 {
			m, err := icy.NewMuxer(bufrw, metaint)
			if err != nil {
				t.Errorf("NewMuxer: %v", err)
				return
			}
			for _, title := range titles {
				if err := m.QueueTitle(title); err != nil {
					t.Errorf("QueueTitle: %v", err)
				}
			}
			dst = m
		}

		if _, err := dst.Write(payload); err != nil {
			t.Errorf("Write: %v", err)
		}
		bufrw.Flush()
	}
}

func readAll(t *testing.T, s *Stream) ([]byte, []string) {
	t.Helper()

	var titles []string
	s.MetadataCallbackFunc = func(m *icy.Metadata) {
		title, _ := m.Title()
		titles = append(titles, title)
	}

	got, err := io.ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	return got, titles
}

func TestOpenICYServer(t *testing.T) {
	payload := bytes.Repeat([]byte("mp3-frame-data;"), 200)
	titles := []string{"Artist - First", "Artist - Second"}

	tests := []struct {
		name       string
		statusLine string
		wantIcy    bool
		wantProto  string
	}{
		{
			name:       "icy status line",
			statusLine: "ICY 200 OK",
			wantIcy:    true,
			wantProto:  "ICY",
		},
		{
			name:       "http status line",
			statusLine: "HTTP/1.0 200 OK",
			wantProto:  "HTTP/1.0",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(icyHandler(t, tc.statusLine, 256, payload, titles))
			defer srv.Close()

			s, err := Open(context.Background(), srv.URL+"/stream", WithLogger(testLogger))
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer s.Close()

			if s.WasIcy() != tc.wantIcy {
				t.Errorf("WasIcy() = %v, want %v", s.WasIcy(), tc.wantIcy)
			}
			if s.ProtoVersion() != tc.wantProto {
				t.Errorf("ProtoVersion() = %q, want %q", s.ProtoVersion(), tc.wantProto)
			}
			if s.Name != "Test Radio" || s.Genre != "Jazz" || s.Bitrate != 128 {
				t.Errorf("headers: name %q genre %q bitrate %d", s.Name, s.Genre, s.Bitrate)
			}
			if s.Metaint() != 256 {
				t.Errorf("Metaint() = %d", s.Metaint())
			}

			got, gotTitles := readAll(t, s)
			if !bytes.Equal(got, payload) {
				t.Errorf("payload mismatch: got %d bytes, want %d", len(got), len(payload))
			}
			if len(gotTitles) != len(titles) {
				t.Fatalf("titles = %q, want %q", gotTitles, titles)
			}
			for i := range titles {
				if gotTitles[i] != titles[i] {
					t.Errorf("title %d = %q, want %q", i, gotTitles[i], titles[i])
				}
			}
			if title, _ := s.Metadata().Title(); title != titles[len(titles)-1] {
				t.Errorf("Metadata() title = %q", title)
			}
		})
	}
}

func TestOpenRepeatedTitleReportedOnce(t *testing.T) {
	payload := bytes.Repeat([]byte{0xff}, 64*4)
	srv := httptest.NewServer(icyHandler(t, "ICY 200 OK", 64, payload, []string{"same", "same", "other"}))
	defer srv.Close()

	s, err := Open(context.Background(), srv.URL, WithLogger(testLogger))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	blocks := 0
	s.BlockFunc = func(icy.Block) { blocks++ }

	_, titles := readAll(t, s)
	if blocks != 3 {
		t.Errorf("blocks = %d, want 3", blocks)
	}
	if len(titles) != 2 || titles[0] != "same" || titles[1] != "other" {
		t.Errorf("titles = %q", titles)
	}
}

func TestOpenWithoutMetaint(t *testing.T) {
	payload := []byte("raw audio with \x00 and \x01 bytes")
	srv := httptest.NewServer(icyHandler(t, "ICY 200 OK", 0, payload, nil))
	defer srv.Close()

	s, err := Open(context.Background(), srv.URL, WithLogger(testLogger))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if s.Metaint() != 0 {
		t.Errorf("Metaint() = %d, want 0", s.Metaint())
	}
	got, titles := readAll(t, s)
	if !bytes.Equal(got, payload) {
		t.Errorf("payload = %q", got)
	}
	if len(titles) != 0 {
		t.Errorf("titles = %q", titles)
	}
}

func TestOpenUntypedStream(t *testing.T) {
	payload := append([]byte{0xFF, 0xFB}, bytes.Repeat([]byte("ab"), 2000)...)

	mux := http.NewServeMux()
	mux.HandleFunc("/stream", func(w http.ResponseWriter, r *http.Request) {
		// No Content-Type: net/http sniffs these bytes as text/plain.
		w.Write(payload)
	})
	mux.HandleFunc("/listen", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "http://"+r.Host+"/stream\n")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	for _, path := range []string{"/stream", "/listen"} {
		t.Run(path, func(t *testing.T) {
			s, err := Open(context.Background(), srv.URL+path, WithLogger(testLogger))
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer s.Close()

			if s.Metaint() != 0 {
				t.Errorf("Metaint() = %d, want 0", s.Metaint())
			}
			got, titles := readAll(t, s)
			if !bytes.Equal(got, payload) {
				t.Errorf("payload mismatch: got %d bytes, want %d", len(got), len(payload))
			}
			if len(titles) != 0 {
				t.Errorf("titles = %q", titles)
			}
		})
	}
}

func TestOpenTLS(t *testing.T) {
	payload := bytes.Repeat([]byte("secure"), 100)
	srv := httptest.NewTLSServer(icyHandler(t, "ICY 200 OK", 100, payload, []string{"over tls"}))
	defer srv.Close()

	tlsConfig := srv.Client().Transport.(*http.Transport).TLSClientConfig
	s, err := Open(context.Background(), srv.URL, WithLogger(testLogger), WithTLSConfig(tlsConfig))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if !s.WasIcy() {
		t.Error("WasIcy() = false")
	}
	got, titles := readAll(t, s)
	if !bytes.Equal(got, payload) {
		t.Errorf("payload mismatch")
	}
	if len(titles) != 1 || titles[0] != "over tls" {
		t.Errorf("titles = %q", titles)
	}
}

func TestOpenPlaylist(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 300)

	mux := http.NewServeMux()
	mux.Handle("/stream", icyHandler(t, "ICY 200 OK", 100, payload, []string{"from playlist"}))
	mux.HandleFunc("/listen.pls", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/x-scpls")
		fmt.Fprint(w, "[playlist]\nNumberOfEntries=1\nFile1=/stream\nTitle1=Test\n")
	})
	mux.HandleFunc("/listen.m3u", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "#EXTM3U\n#EXTINF:-1,Test\nhttp://"+r.Host+"/listen.pls\n")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s, err := Open(context.Background(), srv.URL+"/listen.m3u", WithLogger(testLogger))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	got, titles := readAll(t, s)
	if !bytes.Equal(got, payload) {
		t.Errorf("payload mismatch")
	}
	if len(titles) != 1 || titles[0] != "from playlist" {
		t.Errorf("titles = %q", titles)
	}
}

func TestOpenErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		case "/loop.m3u":
			fmt.Fprint(w, "http://"+r.Host+"/loop.m3u\n")
		case "/empty.pls":
			fmt.Fprint(w, "[playlist]\nNumberOfEntries=0\n")
		}
	}))
	defer srv.Close()

	for _, path := range []string{"/missing", "/loop.m3u", "/empty.pls"} {
		t.Run(path, func(t *testing.T) {
			s, err := Open(context.Background(), srv.URL+path, WithLogger(testLogger))
			if err == nil {
				s.Close()
				t.Fatal("expected error")
			}
		})
	}
}
