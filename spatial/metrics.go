package spatial

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	quadtreeSplits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quadtree_splits",
		Help: "The number of quadtree leaves split in four.",
	})

	quadtreeMerges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quadtree_merges",
		Help: "The number of quadtree nodes whose children were merged back.",
	})
)

func instrumentSplit() {
	quadtreeSplits.Inc()
}

func instrumentMerge() {
	quadtreeMerges.Inc()
}
