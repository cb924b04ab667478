package ripper

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricBytesRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "icystream",
		Subsystem: "ripper",
		Name:      "bytes_total",
		Help:      "Audio bytes received from the stream, metadata excluded.",
	}, []string{"url"})

	metricTitleChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "icystream",
		Subsystem: "ripper",
		Name:      "title_changes_total",
		Help:      "Number of StreamTitle changes seen on the stream.",
	}, []string{"url"})

	metricReconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "icystream",
		Subsystem: "ripper",
		Name:      "reconnects_total",
		Help:      "Number of times the stream was reopened after ending.",
	}, []string{"url"})
)
