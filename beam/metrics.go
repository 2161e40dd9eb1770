package beam

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Process-wide counters across every beam, the Go analogue of the debug
// counters the original source keeps behind H2_BEAM_DEBUG — here always on,
// since prometheus scraping is pull-based and cheap to leave wired.
var (
	beamsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beam_created_total",
		Help: "Number of beams created.",
	})
	beamsClosed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beam_closed_total",
		Help: "Number of beams closed by the sender side.",
	})
	beamsAborted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beam_aborted_total",
		Help: "Number of beams aborted by either side.",
	})
	bucketsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beam_buckets_sent_total",
		Help: "Number of buckets handed to Send, by kind.",
	}, []string{"kind"})
	bytesSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beam_bytes_sent_total",
		Help: "Total payload bytes handed to Send across all beams.",
	})
	sendBlockedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beam_send_blocked_total",
		Help: "Number of times a blocking Send waited on a full buffer.",
	})
	bufferedBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "beam_buffered_bytes",
		Help: "Sum of MemUsed across all beams' send_list, a point-in-time gauge.",
	})
)
