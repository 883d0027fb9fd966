package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/chainscope/explorer-backend/internal/model"
)

var (
	scanOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chainscope",
		Subsystem: "aggregator",
		Name:      "scans_total",
		Help:      "Count of aggregation scans.",
	}, []string{"operation", "network", "status"})
	scanDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chainscope",
		Subsystem: "aggregator",
		Name:      "scan_duration_seconds",
		Help:      "Duration of aggregation scans.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "network", "status"})
	scanItems = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chainscope",
		Subsystem: "aggregator",
		Name:      "scan_items",
		Help:      "Items processed per aggregation scan.",
		Buckets:   []float64{1, 10, 25, 50, 100, 250, 500, 1000},
	}, []string{"operation", "network", "status"})
)

// Scans tracks metrics for range-aggregation scans.
type Scans struct {
	network model.Network
}

// NewScans constructs a metrics collector for aggregation scans.
func NewScans(network model.Network) *Scans {
	if network == "" {
		network = "unknown"
	}
	return &Scans{network: network}
}

// ObserveScan records a single scan outcome, its item count and duration.
func (m Scans) ObserveScan(operation string, err error, items int, started time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}

	scanOperationsTotal.WithLabelValues(operation, string(m.network), status).Inc()
	scanDuration.WithLabelValues(operation, string(m.network), status).Observe(time.Since(started).Seconds())
	scanItems.WithLabelValues(operation, string(m.network), status).Observe(float64(items))
}
