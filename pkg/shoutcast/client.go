package shoutcast

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptrace"
	"sync/atomic"
	"time"

	"github.com/zachfi/icystream/pkg/icy"
)

const defaultUserAgent = "iTunes/12.9.2 (Macintosh; OS X 10.14.3) AppleWebKit/606.4.5"

type options struct {
	logger        *slog.Logger
	userAgent     string
	tlsConfig     *tls.Config
	dialTimeout   time.Duration
	headerTimeout time.Duration
	maxPlaylists  int
}

// Option configures Open.
type Option func(*options)

// WithLogger sets the logger used for connection level messages.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithUserAgent overrides the User-Agent sent to the server.
func WithUserAgent(ua string) Option {
	return func(o *options) { o.userAgent = ua }
}

// WithTLSConfig sets the TLS configuration for https streams.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(o *options) { o.tlsConfig = cfg }
}

// WithTimeouts sets the dial and response header timeouts. Reading the body
// never times out.
func WithTimeouts(dial, header time.Duration) Option {
	return func(o *options) {
		o.dialTimeout = dial
		o.headerTimeout = header
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		logger:        slog.Default(),
		userAgent:     defaultUserAgent,
		dialTimeout:   5 * time.Second,
		headerTimeout: 10 * time.Second,
		maxPlaylists:  3,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// connTracker remembers the connection the most recent response arrived on.
type connTracker struct {
	last atomic.Pointer[icy.PreambleConn]
}

func (t *connTracker) withTrace(ctx context.Context) context.Context {
	return httptrace.WithClientTrace(ctx, &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			if pc, ok := info.Conn.(*icy.PreambleConn); ok {
				t.last.Store(pc)
			}
		},
	})
}

func (t *connTracker) wasIcy() bool {
	pc := t.last.Load()
	return pc != nil && pc.WasIcy()
}

// newClient returns a client whose connections are all wrapped in an
// icy.PreambleConn. Plain and TLS connections are wrapped above the TLS
// layer so the patch sees the decrypted status line.
func newClient(o *options) *http.Client {
	dialer := &net.Dialer{Timeout: o.dialTimeout}
	tlsDialer := &tls.Dialer{NetDialer: dialer, Config: o.tlsConfig}

	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			c, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			return icy.NewPreambleConn(c), nil
		},
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			c, err := tlsDialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			return icy.NewPreambleConn(c), nil
		},
		// Only timeout on the initial connection, never while streaming.
		ResponseHeaderTimeout: o.headerTimeout,
		// A fresh connection per request keeps the preamble patch aligned
		// with the first response on each connection.
		DisableKeepAlives: true,
	}

	// No timeout on the client - we want to stream indefinitely
	return &http.Client{Transport: transport}
}
