package watcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mihari",
		Subsystem: "watcher",
		Name:      "events_total",
		Help:      "Total number of inotify records accepted into the event queue",
	})
	metricNotices = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mihari",
		Subsystem: "watcher",
		Name:      "notices_total",
		Help:      "Total number of notices emitted, per kind",
	}, []string{"kind"})
	metricWatchesActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mihari",
		Subsystem: "watcher",
		Name:      "watches_active",
		Help:      "Number of directories currently watched",
	})
	metricOverflows = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mihari",
		Subsystem: "watcher",
		Name:      "queue_overflows_total",
		Help:      "Total number of kernel event queue overflows observed",
	})
	metricRecoveries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mihari",
		Subsystem: "watcher",
		Name:      "recoveries_total",
		Help:      "Total number of full cache rebuilds after desynchronization",
	})
)
