package ripper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/grafana/dskit/backoff"
	"github.com/grafana/dskit/services"

	"github.com/zachfi/icystream/pkg/icy"
	"github.com/zachfi/icystream/pkg/shoutcast"
)

const readBufSize = 32 * 1024

// Ripper records a stream to disk, one file per StreamTitle.
type Ripper struct {
	services.Service
	cfg    *Config
	logger *slog.Logger
}

var module = "ripper"

// New creates and returns a new Ripper.
func New(cfg Config, logger slog.Logger) (*Ripper, error) {
	if cfg.WriteBufferSize == 0 {
		cfg.WriteBufferSize = defaultWriteBufferSize
	}
	r := &Ripper{
		cfg:    &cfg,
		logger: logger.With("module", module),
	}

	r.Service = services.NewBasicService(r.starting, r.running, r.stopping)

	return r, nil
}

func (r *Ripper) starting(_ context.Context) error {
	if r.cfg.URL == "" {
		r.logger.Info("no url configured, idle")
	}
	return nil
}

func (r *Ripper) running(ctx context.Context) error {
	if r.cfg.URL == "" {
		<-ctx.Done()
		return nil
	}

	b := backoff.New(ctx, backoff.Config{
		MinBackoff: r.cfg.ReconnectBackoff,
		MaxBackoff: r.cfg.ReconnectBackoffMax,
		MaxRetries: r.cfg.ReconnectMaxRetries,
	})

	for b.Ongoing() {
		received, err := r.rip(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if received > 0 {
			b.Reset()
		}

		metricReconnects.WithLabelValues(r.cfg.URL).Inc()
		r.logger.Warn("stream ended, reconnecting", "err", err, "received", ByteCountIEC(received), "delay", b.NextDelay())
		b.Wait()
	}

	if ctx.Err() != nil {
		return nil
	}
	return b.Err()
}

func (r *Ripper) stopping(_ error) error {
	r.logger.Info("stopping")
	return nil
}

// rip records one connection until it ends. Title changes are seen in
// stream order, so each file ends exactly where the next title starts.
func (r *Ripper) rip(ctx context.Context) (int64, error) {
	opts := []shoutcast.Option{shoutcast.WithLogger(r.logger)}
	if r.cfg.UserAgent != "" {
		opts = append(opts, shoutcast.WithUserAgent(r.cfg.UserAgent))
	}

	stream, err := shoutcast.Open(ctx, r.cfg.URL, opts...)
	if err != nil {
		r.logger.Error("error opening stream", "err", err)
		return 0, err
	}
	defer stream.Close()

	streamDir := sanitizeName(stream.Name, "unknown")

	var track *trackWriter
	closeTrack := func() {
		if track == nil {
			return
		}
		if err := track.Close(); err != nil {
			r.logger.Error("error closing recording", "err", err, "path", track.dest)
		}
		track = nil
	}
	defer closeTrack()

	openTrack := func(title string) {
		name := r.trackPath(streamDir, title)
		if track != nil && track.dest == name {
			return
		}
		closeTrack()

		t, err := newTrackWriter(name, r.cfg.WriteBufferSize, r.logger)
		if err != nil {
			r.logger.Error("error creating recording", "err", err, "path", name)
			return
		}
		r.logger.Debug("starting new recording", "path", name)
		track = t
	}

	stream.MetadataCallbackFunc = func(m *icy.Metadata) {
		title, _ := m.Title()
		r.logger.Info("now listening to", "title", title)
		metricTitleChanges.WithLabelValues(r.cfg.URL).Inc()
		openTrack(title)
	}

	if stream.Metaint() == 0 {
		// No titles will arrive; record the whole connection as one file.
		openTrack(time.Now().Format("2006-01-02T15-04-05"))
	}

	var received int64
	buf := make([]byte, readBufSize)
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			received += int64(n)
			metricBytesRecorded.WithLabelValues(r.cfg.URL).Add(float64(n))

			if track != nil {
				if _, werr := track.Write(buf[:n]); werr != nil {
					r.logger.Error("error writing to file", "err", werr, "path", track.dest)
					closeTrack()
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return received, err
		}
	}
}

func (r *Ripper) trackPath(streamDir, title string) string {
	name := filepath.Join(streamDir, sanitizeName(title, "untitled")+".mp3")
	if r.cfg.Dir != "" {
		name = filepath.Join(r.cfg.Dir, name)
	}
	return name
}
