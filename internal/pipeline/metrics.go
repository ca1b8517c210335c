package pipeline

import "github.com/prometheus/client_golang/prometheus"

// Scan outcomes reported on chopify_scans_total
const (
	outcomeItems  = "items"
	outcomeNoText = "no_text"
	outcomeFailed = "failed"
)

// Metrics holds the Prometheus collectors for receipt scans
type Metrics struct {
	scans         *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	itemsPerScan  prometheus.Histogram
}

// NewMetrics creates the scan collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chopify_scans_total",
			Help: "Receipt scans by outcome.",
		}, []string{"outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chopify_scan_stage_duration_seconds",
			Help:    "Time spent in each scan stage.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"stage"}),
		itemsPerScan: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chopify_scan_items",
			Help:    "Inventory items produced per successful scan.",
			Buckets: prometheus.LinearBuckets(0, 5, 10),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.scans, m.stageDuration, m.itemsPerScan)
	}
	return m
}
