// Package observability exposes the engine's Prometheus metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueueDepth tracks the number of pending probe jobs.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lookout_queue_depth",
		Help: "Current number of probe jobs waiting in the queue",
	})

	// RegistrySize tracks the number of endpoints in the Registry.
	RegistrySize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lookout_registry_size",
		Help: "Current number of endpoints tracked by the registry",
	})

	// SchedulingTicksSkipped counts ticks skipped due to an unhealthy
	// system or an overwhelmed queue.
	SchedulingTicksSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lookout_scheduling_ticks_skipped_total",
		Help: "Total scheduling ticks skipped",
	}, []string{"reason"})

	// ProbesTotal counts completed probes by outcome.
	ProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lookout_probes_total",
		Help: "Total probes performed",
	}, []string{"success", "attempt"})

	// ProbeDurationSeconds tracks probe latency.
	ProbeDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lookout_probe_duration_seconds",
		Help:    "Probe request duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// HealthState reports the circuit breaker's current state (1=healthy, 0=unhealthy).
	HealthState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lookout_health_state",
		Help: "Health monitor state: 1 if healthy, 0 if unhealthy",
	})

	// NotificationsSent counts outage emails sent.
	NotificationsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lookout_notifications_sent_total",
		Help: "Total outage notification emails sent",
	})

	// NotificationCooldownLevel counts the cooldowns this process has
	// entered, labelled by the level stored after each flush. It is
	// incremented on every flush and never decremented, so it does not
	// track how many users are in cooldown right now.
	NotificationCooldownLevel = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lookout_notification_cooldown_users",
		Help: "Cooldowns entered by this process at each cooldown level (incremented per flush, never decremented)",
	}, []string{"level"})
)
