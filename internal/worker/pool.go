// Package worker runs the fixed-size pool that drains the probe queue,
// executes HTTP checks with one retry, persists outcomes, and hands
// failures off to the Notification Coordinator.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lookout/monitor/internal/domain"
	"github.com/lookout/monitor/internal/logging"
	"github.com/lookout/monitor/internal/observability"
	"github.com/lookout/monitor/internal/persistence"
)

const popTimeout = time.Second

// WorkQueue is the narrow Queue capability the pool needs.
type WorkQueue interface {
	Pop(ctx context.Context, timeout time.Duration) (domain.QueueEntry, bool)
}

// EndpointSource is the narrow Registry capability the pool needs.
type EndpointSource interface {
	Get(id uuid.UUID) (*domain.Endpoint, bool)
	UpdateConsecutiveFailures(id uuid.UUID, count int)
	Evict(id uuid.UUID)
}

// Prober is the narrow check-execution capability the pool needs.
type Prober interface {
	Do(ctx context.Context, e *domain.Endpoint, attemptNum int, workerID int) domain.Outcome
}

// FailureSink receives unsuccessful final outcomes that pass maybeNotify's
// gate: the user has email notifications enabled and the consecutive
// failure count has reached their threshold.
type FailureSink interface {
	HandleFailure(event domain.FailureEvent)
}

// Config controls pool sizing and retry timing.
type Config struct {
	WorkerCount int
	RetryDelay  time.Duration
}

// Pool is the fixed-size Worker Pool described in spec §4.5.
type Pool struct {
	queue    WorkQueue
	registry EndpointSource
	prober   Prober
	store    persistence.Persistence
	notifier FailureSink
	cfg      Config
	log      zerolog.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New constructs a Pool. Call Start to spawn its workers.
func New(queue WorkQueue, registry EndpointSource, prober Prober, store persistence.Persistence, notifier FailureSink, cfg Config) *Pool {
	return &Pool{
		queue:    queue,
		registry: registry,
		prober:   prober,
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		log:      logging.WithComponent("worker_pool"),
	}
}

// Start spawns cfg.WorkerCount goroutines, each running until ctx is
// cancelled or Stop is called.
func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < p.cfg.WorkerCount; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
}

// Stop signals every worker to exit and waits for them to drain.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, workerID int) {
	defer p.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		entry, ok := p.queue.Pop(ctx, popTimeout)
		if !ok {
			continue
		}

		p.process(ctx, workerID, entry)
	}
}

func (p *Pool) process(ctx context.Context, workerID int, entry domain.QueueEntry) {
	e, ok := p.registry.Get(entry.EndpointID)
	if !ok {
		p.log.Debug().Str("endpoint_id", entry.EndpointID.String()).Msg("endpoint vanished before check, discarding")
		return
	}

	outcome := p.prober.Do(ctx, e, 1, workerID)
	if !outcome.Success && outcome.Retryable {
		select {
		case <-time.After(p.cfg.RetryDelay):
		case <-ctx.Done():
			return
		}
		outcome = p.prober.Do(ctx, e, 2, workerID)
	}

	observability.ProbeDurationSeconds.Observe(float64(outcome.ElapsedMS) / 1000)
	observability.ProbesTotal.WithLabelValues(boolLabel(outcome.Success), attemptLabel(outcome.Attempt)).Inc()

	p.persist(ctx, e, outcome)
}

func (p *Pool) persist(ctx context.Context, e *domain.Endpoint, outcome domain.Outcome) {
	row := domain.CheckResultRow{
		EndpointID: e.ID,
		CheckedAt:  outcome.CheckedAt,
		ElapsedMS:  outcome.ElapsedMS,
		Success:    outcome.Success,
		Error:      outcome.Error,
	}
	if outcome.StatusCode != 0 {
		sc := outcome.StatusCode
		row.StatusCode = &sc
	}

	if err := p.store.InsertCheckResult(ctx, row); err != nil {
		if errors.Is(err, persistence.ErrForeignKeyMissing) {
			p.log.Info().Str("endpoint_id", e.ID.String()).Msg("endpoint deleted underneath in-flight check, evicting")
			p.registry.Evict(e.ID)
			return
		}
		p.log.Error().Err(err).Str("endpoint_id", e.ID.String()).Msg("failed to persist check result")
		return
	}

	consecutive := e.ConsecutiveFailures
	if outcome.Success {
		consecutive = 0
	} else {
		consecutive++
	}

	p.registry.UpdateConsecutiveFailures(e.ID, consecutive)
	if err := p.store.UpdateEndpointCheckMetadata(ctx, e.ID, outcome.CheckedAt, consecutive); err != nil {
		if errors.Is(err, persistence.ErrForeignKeyMissing) {
			p.registry.Evict(e.ID)
			return
		}
		p.log.Error().Err(err).Str("endpoint_id", e.ID.String()).Msg("failed to persist endpoint check metadata")
	}

	if !outcome.Success {
		p.maybeNotify(ctx, e, consecutive)
	}
}

// maybeNotify is the bridge between a failed check and the Notification
// Coordinator: it applies the user's threshold and opt-in before handing
// the failure off, per spec §4.6.
func (p *Pool) maybeNotify(ctx context.Context, e *domain.Endpoint, consecutive int) {
	settings, err := p.store.SelectUserNotificationSettings(ctx, e.UserID)
	if err != nil {
		p.log.Error().Err(err).Str("user_id", e.UserID.String()).Msg("failed to load notification settings")
		return
	}
	if settings == nil || !settings.EmailEnabled {
		return
	}
	if consecutive < settings.FailureThreshold {
		return
	}

	p.notifier.HandleFailure(domain.FailureEvent{
		UserID:              e.UserID,
		EndpointID:          e.ID,
		ConsecutiveFailures: consecutive,
	})
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func attemptLabel(attempt int) string {
	if attempt >= 2 {
		return "2"
	}
	return "1"
}
