// Package manager owns the monitoring engine's startup and shutdown
// ordering, wiring the Health Monitor, Registry, Prober, Worker Pool,
// Scheduling Loop, and Notification Coordinator into one lifecycle.
package manager

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lookout/monitor/internal/config"
	"github.com/lookout/monitor/internal/domain"
	"github.com/lookout/monitor/internal/email"
	"github.com/lookout/monitor/internal/health"
	"github.com/lookout/monitor/internal/logging"
	"github.com/lookout/monitor/internal/notification"
	"github.com/lookout/monitor/internal/persistence"
	"github.com/lookout/monitor/internal/prober"
	"github.com/lookout/monitor/internal/queue"
	"github.com/lookout/monitor/internal/registry"
	"github.com/lookout/monitor/internal/scheduler"
	"github.com/lookout/monitor/internal/worker"
)

// Manager is the Scheduler Manager described in spec §4.7.
type Manager struct {
	cfg   *config.Config
	store persistence.Persistence
	log   zerolog.Logger

	health   *health.Monitor
	registry *registry.Registry
	prober   *prober.Prober
	wq       *queue.Queue[domain.QueueEntry]
	pool     *worker.Pool
	loop     *scheduler.Loop
	notifier *notification.Coordinator

	mu          sync.Mutex
	running     bool
	initialized bool
}

// New wires every component but does not start any goroutines.
func New(cfg *config.Config, store persistence.Persistence, emailProvider email.Provider) *Manager {
	log := logging.WithComponent("scheduler_manager")

	healthMonitor := health.New(store, health.Config{
		FailureThreshold:     cfg.FailureThreshold,
		SuccessThreshold:     cfg.SuccessThreshold,
		CheckInterval:        time.Duration(cfg.HealthCheckInterval) * time.Second,
		QueueOverwhelmedSize: cfg.QueueOverwhelmedSize,
	})

	reg := registry.New(registry.Config{CacheWarningSize: cfg.CacheWarningSize})

	pr := prober.New(prober.Config{
		DefaultTimeout:   time.Duration(cfg.HTTPTimeout) * time.Second,
		PerHostLimit:     10,
		TotalConcurrency: int64(2 * cfg.WorkerCount),
	})

	wq := queue.New[domain.QueueEntry]()

	coordinator := notification.New(store, emailProvider, notification.Config{
		TickInterval: 60 * time.Second,
		DashboardURL: "https://app.lookout.example/dashboard",
	})

	pool := worker.New(wq, reg, pr, store, coordinator, worker.Config{
		WorkerCount: cfg.WorkerCount,
		RetryDelay:  time.Duration(cfg.RetryDelay) * time.Second,
	})

	loop := scheduler.New(healthMonitor, reg, wq, scheduler.Config{
		Interval: time.Duration(cfg.SchedulerInterval) * time.Second,
	})

	return &Manager{
		cfg:      cfg,
		store:    store,
		log:      log,
		health:   healthMonitor,
		registry: reg,
		prober:   pr,
		wq:       wq,
		pool:     pool,
		loop:     loop,
		notifier: coordinator,
	}
}

// Start performs the ordered startup sequence: bulk-load the Registry,
// then spawn the Worker Pool, Scheduling Loop, and Notification
// Coordinator.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.log.Info().Msg("scheduler manager starting")

	if err := m.registry.LoadFromPersistence(ctx, m.store); err != nil {
		return err
	}
	m.initialized = true

	m.pool.Start(ctx)
	m.loop.Start(ctx)
	m.notifier.Start(ctx)

	m.running = true
	m.log.Info().Msg("scheduler manager started")
	return nil
}

// Stop reverses startup: stop the Scheduling Loop, cancel the workers,
// stop the Notification Coordinator, then close HTTP clients.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	m.log.Info().Msg("scheduler manager stopping")

	m.loop.Stop()
	m.pool.Stop()
	m.notifier.Stop()
	m.wq.Close()
	m.prober.Close()
	m.health.Close()

	m.running = false
	m.log.Info().Msg("scheduler manager stopped")
}

// GetStatus returns a snapshot safe to call at any time.
func (m *Manager) GetStatus() domain.SchedulerStatus {
	m.mu.Lock()
	running := m.running
	initialized := m.initialized
	m.mu.Unlock()

	return domain.SchedulerStatus{
		Running:      running,
		Initialized:  initialized,
		RegistrySize: m.registry.Size(),
		QueueSize:    m.wq.Len(),
		WorkerCount:  m.cfg.WorkerCount,
		Health:       m.health.Status(),
	}
}

// Registry exposes the Registry for REST-layer event forwarding
// (OnCreate/OnUpdate/OnDelete), which lives outside the core per spec
// §1's scope boundary.
func (m *Manager) Registry() *registry.Registry {
	return m.registry
}
