package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Watcher
	WatcherCyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "buywatch",
		Subsystem: "watcher",
		Name:      "cycles_total",
		Help:      "Monitoring cycles by outcome",
	}, []string{"status"})

	WatcherBlocksScanned = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "buywatch",
		Subsystem: "watcher",
		Name:      "blocks_scanned_total",
		Help:      "Blocks covered by successfully processed ranges",
	})

	WatcherPurchasesFound = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "buywatch",
		Subsystem: "watcher",
		Name:      "purchases_total",
		Help:      "Qualifying purchases found",
	})

	WatcherCursorHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "buywatch",
		Subsystem: "watcher",
		Name:      "cursor_height",
		Help:      "Last fully processed block",
	})

	WatcherCycleLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "buywatch",
		Subsystem: "watcher",
		Name:      "cycle_duration_seconds",
		Help:      "Duration of one scan cycle",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	// Feed
	FeedState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "buywatch",
		Subsystem: "feed",
		Name:      "state",
		Help:      "Connection state: 0 disconnected, 1 connecting, 2 subscribed",
	})

	FeedReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "buywatch",
		Subsystem: "feed",
		Name:      "reconnects_total",
		Help:      "Head subscription reconnect attempts",
	})

	FeedTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "buywatch",
		Subsystem: "feed",
		Name:      "ticks_total",
		Help:      "Ticks delivered to the monitoring loop",
	}, []string{"source"})

	// Dispatcher
	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "buywatch",
		Subsystem: "notify",
		Name:      "sent_total",
		Help:      "Notifications delivered to the chat",
	}, []string{"kind"})

	NotificationsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "buywatch",
		Subsystem: "notify",
		Name:      "dropped_total",
		Help:      "Notifications dropped after a failed send or a full queue",
	}, []string{"kind", "reason"})

	NotifyQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "buywatch",
		Subsystem: "notify",
		Name:      "queue_depth",
		Help:      "Messages waiting for the dispatcher",
	})

	NotifySendLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "buywatch",
		Subsystem: "notify",
		Name:      "send_duration_seconds",
		Help:      "Chat backend send latency",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	// Reminder
	RemindersFired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "buywatch",
		Subsystem: "reminder",
		Name:      "fired_total",
		Help:      "Reminder broadcasts handed to the dispatcher",
	})
)
