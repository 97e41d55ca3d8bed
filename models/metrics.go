package models

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	registryElements = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "registry_elements",
		Help: "The number of elements registered.",
	})

	registryTrackedElements = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "registry_tracked_elements",
		Help: "The number of elements whose rect is being polled.",
	})

	registryIndexRebuilds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "registry_index_rebuilds",
		Help: "The number of times a spatial index was rebuilt.",
	})

	registryRectChanges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "registry_rect_changes",
		Help: "The number of rect changes applied to spatial indexes.",
	})
)

func instrumentAddElement() {
	registryElements.Inc()
}

func instrumentRemoveElement() {
	registryElements.Dec()
}

func instrumentTrackedDelta(delta int) {
	registryTrackedElements.Add(float64(delta))
}

func instrumentIndexRebuild() {
	registryIndexRebuilds.Inc()
}

func instrumentRectChange() {
	registryRectChanges.Inc()
}
