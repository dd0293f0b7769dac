package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// FramesTotal counts frames read from the feed, decodable or not.
	FramesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tickboard",
		Subsystem: "feed",
		Name:      "frames_total",
		Help:      "Total number of frames received from the feed",
	})

	// DecodeErrors counts frames rejected by the decoder.
	DecodeErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tickboard",
		Subsystem: "feed",
		Name:      "decode_errors_total",
		Help:      "Total number of frames that failed to decode",
	})

	// RecordsApplied counts (symbol, record) pairs written to the symbol table.
	RecordsApplied = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tickboard",
		Subsystem: "store",
		Name:      "records_applied_total",
		Help:      "Total number of ticker records applied to the symbol table",
	})

	Symbols = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tickboard",
		Subsystem: "store",
		Name:      "symbols",
		Help:      "Number of symbols currently held",
	})

	// ConnectionState is the numeric connmgr.State.
	ConnectionState = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tickboard",
		Subsystem: "conn",
		Name:      "state",
		Help:      "Connection state (0=idle 1=connecting 2=open 3=error 4=closed 5=failed)",
	})

	ConnectAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tickboard",
		Subsystem: "conn",
		Name:      "attempts_total",
		Help:      "Total number of connection attempts",
	})

	ReconnectDelay = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tickboard",
		Subsystem: "conn",
		Name:      "reconnect_delay_seconds",
		Help:      "Scheduled reconnect delays in seconds",
		Buckets:   []float64{1, 2, 4, 5, 8, 16, 30},
	})

	// ArchiveDrops counts batches dropped because the archive buffer was full.
	ArchiveDrops = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tickboard",
		Subsystem: "archive",
		Name:      "drops_total",
		Help:      "Number of batches dropped because the archive buffer was full",
	})

	ArchiveErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tickboard",
		Subsystem: "archive",
		Name:      "write_errors_total",
		Help:      "Number of failed archive writes",
	})
)

// Register registers every collector once. Without an argument it uses the
// default registerer.
func Register(registerers ...prometheus.Registerer) {
	once.Do(func() {
		var reg prometheus.Registerer
		if len(registerers) > 0 && registerers[0] != nil {
			reg = registerers[0]
		} else {
			reg = prometheus.DefaultRegisterer
		}
		reg.MustRegister(
			FramesTotal,
			DecodeErrors,
			RecordsApplied,
			Symbols,
			ConnectionState,
			ConnectAttempts,
			ReconnectDelay,
			ArchiveDrops,
			ArchiveErrors,
		)
	})
}
