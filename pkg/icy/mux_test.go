package icy

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"
)

func TestNewMuxerInvalidMetaint(t *testing.T) {
	if _, err := NewMuxer(&bytes.Buffer{}, 0); !errors.Is(err, ErrInvalidMetaint) {
		t.Errorf("err = %v, want %v", err, ErrInvalidMetaint)
	}
}

func TestMuxerWireFormat(t *testing.T) {
	var out bytes.Buffer
	m, err := NewMuxer(&out, 4)
	if err != nil {
		t.Fatalf("NewMuxer: %v", err)
	}

	if err := m.QueueTitle("A"); err != nil {
		t.Fatalf("QueueTitle: %v", err)
	}
	if m.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", m.Pending())
	}

	n, err := m.Write([]byte("abcdefghij"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != 10 {
		t.Errorf("n = %d, want 10", n)
	}

	want := "abcd" + "\x01StreamTitle='A';" + "efgh" + "\x00" + "ij"
	if out.String() != want {
		t.Errorf("wire = %q\nwant %q", out.String(), want)
	}
	if m.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", m.Pending())
	}
}

func TestMuxerInjectsOnlyAtBoundaries(t *testing.T) {
	var out bytes.Buffer
	m, err := NewMuxer(&out, 8)
	if err != nil {
		t.Fatalf("NewMuxer: %v", err)
	}

	if _, err := m.Write([]byte("abc")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	// Queued mid interval; must wait for the boundary.
	if err := m.QueueTitle("B"); err != nil {
		t.Fatalf("QueueTitle: %v", err)
	}
	if _, err := m.Write([]byte("defgh")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	want := "abcdefgh" + "\x01StreamTitle='B';"
	if out.String() != want {
		t.Errorf("wire = %q\nwant %q", out.String(), want)
	}
}

// failOnce fails the write with the given index and passes every other
// write through to buf.
type failOnce struct {
	buf    bytes.Buffer
	fail   int
	writes int
}

func (w *failOnce) Write(p []byte) (int, error) {
	w.writes++
	if w.writes == w.fail {
		return 0, errors.New("write failed")
	}
	return w.buf.Write(p)
}

func TestMuxerRetriesFailedInjection(t *testing.T) {
	// The second write is the injection at the first boundary.
	out := &failOnce{fail: 2}
	m, err := NewMuxer(out, 4)
	if err != nil {
		t.Fatalf("NewMuxer: %v", err)
	}
	if err := m.QueueTitle("A"); err != nil {
		t.Fatalf("QueueTitle: %v", err)
	}

	n, err := m.Write([]byte("xxxx"))
	if err == nil {
		t.Fatal("expected error")
	}
	if n != 4 {
		t.Errorf("n = %d, want 4", n)
	}
	if m.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", m.Pending())
	}

	if _, err := m.Write([]byte("yyyy")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	want := "xxxx" + "\x01StreamTitle='A';" + "yyyy" + "\x00"
	if out.buf.String() != want {
		t.Errorf("wire = %q\nwant %q", out.buf.String(), want)
	}
	if m.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", m.Pending())
	}
}

func TestMuxerQueueErrors(t *testing.T) {
	m, err := NewMuxer(&bytes.Buffer{}, 16)
	if err != nil {
		t.Fatalf("NewMuxer: %v", err)
	}

	noTitle := &Metadata{}
	noTitle.Set("StreamUrl", "http://x")

	tests := []struct {
		name    string
		queue   func() error
		wantErr error
	}{
		{
			name:    "missing title",
			queue:   func() error { return m.Queue(noTitle) },
			wantErr: ErrMissingStreamTitle,
		},
		{
			name:    "nil metadata",
			queue:   func() error { return m.Queue(nil) },
			wantErr: ErrMissingStreamTitle,
		},
		{
			name:    "4081 bytes",
			queue:   func() error { return m.QueueTitle(strings.Repeat("x", 4066)) },
			wantErr: ErrMetadataTooLarge,
		},
		{
			name:  "4080 bytes",
			queue: func() error { return m.QueueTitle(strings.Repeat("x", 4065)) },
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			before := m.Pending()
			err := tc.queue()
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				if m.Pending() != before {
					t.Errorf("rejected metadata was queued")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if m.Pending() != before+1 {
				t.Errorf("Pending() = %d, want %d", m.Pending(), before+1)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))

	for _, metaint := range []int{1, 7, 16, 100, 8192} {
		t.Run(fmt.Sprintf("metaint %d", metaint), func(t *testing.T) {
			titles := []string{"Song A", "", "Artist - Track", strings.Repeat("long ", 300), "ünïcødé"}

			payload := make([]byte, metaint*(len(titles)+3)+metaint/2)
			rnd.Read(payload)

			var wire bytes.Buffer
			m, err := NewMuxer(&wire, metaint)
			if err != nil {
				t.Fatalf("NewMuxer: %v", err)
			}
			for _, title := range titles {
				if err := m.QueueTitle(title); err != nil {
					t.Fatalf("QueueTitle(%q): %v", title, err)
				}
			}

			for rest := payload; len(rest) > 0; {
				n := 1 + rnd.Intn(2*metaint+3)
				if n > len(rest) {
					n = len(rest)
				}
				if _, err := m.Write(rest[:n]); err != nil {
					t.Fatalf("Write: %v", err)
				}
				rest = rest[n:]
			}

			var out bytes.Buffer
			var got []string
			d, err := NewDemuxer(metaint, &out, func(b Block) { got = append(got, b.Title) })
			if err != nil {
				t.Fatalf("NewDemuxer: %v", err)
			}

			for rest := wire.Bytes(); len(rest) > 0; {
				n := 1 + rnd.Intn(3*metaint+20)
				if n > len(rest) {
					n = len(rest)
				}
				if _, err := d.Write(rest[:n]); err != nil {
					t.Fatalf("Write: %v", err)
				}
				rest = rest[n:]
			}

			if !bytes.Equal(out.Bytes(), payload) {
				t.Fatalf("payload mismatch after round trip")
			}
			if len(got) != len(titles) {
				t.Fatalf("got %d titles, want %d", len(got), len(titles))
			}
			for i := range titles {
				if got[i] != titles[i] {
					t.Errorf("title %d = %q, want %q", i, got[i], titles[i])
				}
			}
		})
	}
}
