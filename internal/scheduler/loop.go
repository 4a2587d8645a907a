// Package scheduler runs the ticker-driven loop that scans the Registry
// for due endpoints and hands them to the Worker Pool's queue.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lookout/monitor/internal/domain"
	"github.com/lookout/monitor/internal/logging"
	"github.com/lookout/monitor/internal/observability"
)

// HealthGate is the narrow Health Monitor capability the loop needs.
type HealthGate interface {
	CheckSystemHealth(ctx context.Context) bool
	IsQueueOverwhelmed(size int) bool
}

// DueScanner is the narrow Registry capability the loop needs.
type DueScanner interface {
	SnapshotDue(now time.Time) []domain.QueueEntry
}

// WorkQueue is the narrow Queue capability the loop needs.
type WorkQueue interface {
	Push(item domain.QueueEntry)
	Len() int
}

// Config controls the loop's tick cadence.
type Config struct {
	Interval time.Duration
}

// Loop is the Scheduling Loop described in spec §4.4: every tick it gates
// on system health and queue saturation, then enqueues every due endpoint.
type Loop struct {
	health   HealthGate
	registry DueScanner
	queue    WorkQueue
	cfg      Config
	log      zerolog.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New constructs a Loop. Call Start to begin ticking.
func New(health HealthGate, registry DueScanner, queue WorkQueue, cfg Config) *Loop {
	return &Loop{
		health:   health,
		registry: registry,
		queue:    queue,
		cfg:      cfg,
		log:      logging.WithComponent("scheduling_loop"),
	}
}

// Start launches the loop's goroutine. Stop cancels it.
func (l *Loop) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel

	l.wg.Add(1)
	go l.run(ctx)
}

// Stop signals the loop to exit and waits for it to do so.
func (l *Loop) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
	l.wg.Wait()
}

func (l *Loop) run(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.log.Info().Msg("scheduling loop stopping")
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

func (l *Loop) tick(ctx context.Context) {
	if !l.health.CheckSystemHealth(ctx) {
		observability.SchedulingTicksSkipped.WithLabelValues("unhealthy").Inc()
		l.log.Warn().Msg("skipping tick: system unhealthy")
		return
	}

	queueSize := l.queue.Len()
	observability.QueueDepth.Set(float64(queueSize))
	if l.health.IsQueueOverwhelmed(queueSize) {
		observability.SchedulingTicksSkipped.WithLabelValues("queue_overwhelmed").Inc()
		return
	}

	due := l.registry.SnapshotDue(time.Now())
	for _, entry := range due {
		l.queue.Push(entry)
	}
	if len(due) > 0 {
		l.log.Debug().Int("enqueued", len(due)).Msg("enqueued due endpoints")
	}
	observability.QueueDepth.Set(float64(l.queue.Len()))
}
