package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricListeners = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "icystream",
		Subsystem: "relay",
		Name:      "listeners",
		Help:      "Number of connected listeners.",
	})

	metricBytesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "icystream",
		Subsystem: "relay",
		Name:      "bytes_sent_total",
		Help:      "Bytes written to listeners, metadata blocks included.",
	}, []string{"metadata"})

	metricMetadataQueued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "icystream",
		Subsystem: "relay",
		Name:      "metadata_queued_total",
		Help:      "Metadata blocks queued for listeners.",
	})
)
