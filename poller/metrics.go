package poller

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pollerMeasurements = promauto.NewCounter(prometheus.CounterOpts{
		Name: "poller_measurements",
		Help: "The number of rects measured by pollers.",
	})

	pollerRectChanges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "poller_rect_changes",
		Help: "The number of measurements that differed from the last known rect.",
	})

	pollerTrackedEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "poller_tracked_entries",
		Help: "The number of entries tracked by pollers.",
	})

	pollerSliceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "poller_slice_duration",
		Help:    "The time spent in an idle slice.",
		Buckets: []float64{0.0005, 0.001, 0.002, 0.004, 0.008, 0.016, 0.032},
	})

	pollerSliceItems = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "poller_slice_items",
		Help:    "The number of entries measured in an idle slice.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})
)

func instrumentMeasurement(changed bool) {
	pollerMeasurements.Inc()
	if changed {
		pollerRectChanges.Inc()
	}
}

func instrumentTrack() {
	pollerTrackedEntries.Inc()
}

func instrumentUntrack() {
	pollerTrackedEntries.Dec()
}

func instrumentSlice(start time.Time, items int) {
	pollerSliceDuration.Observe(time.Since(start).Seconds())
	pollerSliceItems.Observe(float64(items))
}
