package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/grafana/dskit/services"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zachfi/icystream/pkg/icy"
	"github.com/zachfi/icystream/pkg/shoutcast"
)

var module = "relay"

// Relay serves an upstream ICY stream to HTTP listeners. Listeners asking for
// metadata get the upstream titles re-framed at the configured interval.
type Relay struct {
	services.Service
	cfg    *Config
	logger *slog.Logger
	tracer trace.Tracer

	// last is the most recent upstream metadata seen by any session, used to
	// announce the current title to new listeners.
	last atomic.Pointer[icy.Metadata]

	mu       sync.Mutex
	closing  bool
	sessions map[string]context.CancelFunc
}

// New creates a Relay and registers it on router.
func New(cfg Config, logger slog.Logger, router *mux.Router) (*Relay, error) {
	if cfg.Metaint <= 0 {
		cfg.Metaint = defaultMetaint
	}
	if cfg.Path == "" {
		cfg.Path = "/stream"
	}

	r := &Relay{
		cfg:      &cfg,
		logger:   logger.With("module", module),
		tracer:   otel.Tracer(module),
		sessions: make(map[string]context.CancelFunc),
	}

	if cfg.Upstream != "" && router != nil {
		router.Handle(cfg.Path, r).Methods(http.MethodGet)
	}

	r.Service = services.NewBasicService(r.starting, r.running, r.stopping)

	return r, nil
}

func (r *Relay) starting(_ context.Context) error {
	if r.cfg.Upstream == "" {
		r.logger.Info("no upstream configured, idle")
		return nil
	}
	r.logger.Info("relaying", "upstream", r.cfg.Upstream, "path", r.cfg.Path, "metaint", r.cfg.Metaint)
	return nil
}

func (r *Relay) running(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (r *Relay) stopping(_ error) error {
	r.mu.Lock()
	r.closing = true
	for _, cancel := range r.sessions {
		cancel()
	}
	n := len(r.sessions)
	r.mu.Unlock()

	r.logger.Info("stopping", "listeners", n)
	return nil
}

// register tracks a listener session so stopping can end it. It reports
// false once the relay is shutting down.
func (r *Relay) register(id string, cancel context.CancelFunc) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closing {
		return false
	}
	r.sessions[id] = cancel
	return true
}

func (r *Relay) unregister(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Listeners returns the number of connected listener sessions.
func (r *Relay) Listeners() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	id := uuid.New().String()
	logger := r.logger.With("listener", id, "remote", req.RemoteAddr)

	ctx, span := r.tracer.Start(req.Context(), "relay.ServeHTTP", trace.WithAttributes(
		attribute.String("listener", id),
		attribute.String("upstream", r.cfg.Upstream),
	))
	defer span.End()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if !r.register(id, cancel) {
		http.Error(w, "relay is shutting down", http.StatusServiceUnavailable)
		span.SetStatus(codes.Error, "shutting down")
		return
	}
	defer r.unregister(id)

	err := r.serve(ctx, w, req, logger)
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		err = nil
	}
	if err != nil {
		logger.Error("relay session failed", "err", err)
		span.SetStatus(codes.Error, fmt.Errorf("relay session failed: %w", err).Error())
		return
	}
	span.SetStatus(codes.Ok, "ok")
}

func (r *Relay) serve(ctx context.Context, w http.ResponseWriter, req *http.Request, logger *slog.Logger) error {
	upstream, err := shoutcast.Open(ctx, r.cfg.Upstream, shoutcast.WithLogger(logger))
	if err != nil {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
		return err
	}
	defer upstream.Close()

	metaint := 0
	if req.Header.Get("Icy-MetaData") == "1" {
		metaint = r.cfg.Metaint
	}

	out, done, err := r.respond(w, r.header(upstream, metaint))
	if err != nil {
		return err
	}
	defer done()

	metricListeners.Inc()
	defer metricListeners.Dec()
	logger.Info("listener connected", "metadata", metaint > 0)

	sent := &countingWriter{w: out}
	dst := io.Writer(sent)

	var m *icy.Muxer
	if metaint > 0 {
		if m, err = icy.NewMuxer(sent, metaint); err != nil {
			return err
		}
		if md := r.last.Load(); md != nil && m.Queue(md) == nil {
			metricMetadataQueued.Inc()
		}
		dst = m
	}

	upstream.MetadataCallbackFunc = func(md *icy.Metadata) {
		r.last.Store(md)
		if m == nil {
			return
		}
		if err := m.Queue(md); err != nil {
			logger.Warn("dropping metadata", "err", err)
			return
		}
		metricMetadataQueued.Inc()
	}

	_, err = io.Copy(dst, upstream)
	metricBytesSent.WithLabelValues(strconv.FormatBool(metaint > 0)).Add(float64(sent.n))
	logger.Info("listener disconnected", "sent", sent.n)

	return err
}

// header builds the response headers announced to a listener.
func (r *Relay) header(upstream *shoutcast.Stream, metaint int) http.Header {
	h := http.Header{}

	contentType := upstream.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	h.Set("Content-Type", contentType)
	h.Set("Cache-Control", "no-cache, no-store")

	name := r.cfg.Name
	if name == "" {
		name = upstream.Name
	}
	if name != "" {
		h.Set("icy-name", name)
	}
	if upstream.Genre != "" {
		h.Set("icy-genre", upstream.Genre)
	}
	if upstream.Description != "" {
		h.Set("icy-description", upstream.Description)
	}
	if upstream.URL != "" {
		h.Set("icy-url", upstream.URL)
	}
	if upstream.Bitrate > 0 {
		h.Set("icy-br", strconv.Itoa(upstream.Bitrate))
	}
	if metaint > 0 {
		h.Set("icy-metaint", strconv.Itoa(metaint))
	}

	return h
}

// respond writes the status line and headers, returning the writer for the
// body and a function releasing the connection.
func (r *Relay) respond(w http.ResponseWriter, h http.Header) (io.Writer, func(), error) {
	if !r.cfg.ICYStatusLine {
		for k, v := range h {
			w.Header()[k] = v
		}
		w.WriteHeader(http.StatusOK)

		flush := func() error { return nil }
		if f, ok := w.(http.Flusher); ok {
			flush = func() error {
				f.Flush()
				return nil
			}
		}
		return &flushWriter{w: w, flush: flush}, func() {}, nil
	}

	hj, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "legacy status line unsupported", http.StatusInternalServerError)
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	conn, bufrw, err := hj.Hijack()
	if err != nil {
		return nil, nil, err
	}

	bw := bufrw.Writer
	bw.WriteString("ICY 200 OK\r\n")
	if err := h.Write(bw); err != nil {
		conn.Close()
		return nil, nil, err
	}
	bw.WriteString("\r\n")
	if err := bw.Flush(); err != nil {
		conn.Close()
		return nil, nil, err
	}

	return &flushWriter{w: bw, flush: bw.Flush}, func() { conn.Close() }, nil
}

// flushWriter pushes every write to the listener immediately.
type flushWriter struct {
	w     io.Writer
	flush func() error
}

func (fw *flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	if err != nil {
		return n, err
	}
	return n, fw.flush()
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
