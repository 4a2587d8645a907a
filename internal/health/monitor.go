// Package health implements the system-health circuit breaker that gates
// the Scheduling Loop on database and internet reachability.
package health

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lookout/monitor/internal/domain"
	"github.com/lookout/monitor/internal/logging"
	"github.com/lookout/monitor/internal/observability"
)

// Pinger is the narrow persistence capability the Health Monitor needs:
// a cheap, bounded-latency reachability probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// probeTargets are the well-known public endpoints used for the internet
// reachability subcheck. The first 200 response wins.
var probeTargets = []string{
	"https://httpbin.org/status/200",
	"https://httpstat.us/200",
	"https://www.google.com",
}

// Config controls the circuit breaker's thresholds.
type Config struct {
	FailureThreshold     int
	SuccessThreshold     int
	CheckInterval        time.Duration
	QueueOverwhelmedSize int
}

// Monitor is the Healthy/Unhealthy circuit breaker described in spec §4.2.
type Monitor struct {
	db     Pinger
	client *http.Client
	cfg    Config
	log    zerolog.Logger

	mu                   sync.Mutex
	healthy              bool
	consecutiveFailures  int
	consecutiveSuccesses int
	lastCheckAt          time.Time
	lastFailureReason    string
}

// New constructs a Monitor in the initial Healthy state.
func New(db Pinger, cfg Config) *Monitor {
	return &Monitor{
		db:      db,
		healthy: true,
		cfg:     cfg,
		log:     logging.WithComponent("health_monitor"),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// CheckSystemHealth runs the two subchecks unless the last check was
// within CheckInterval, in which case it returns the cached state.
func (m *Monitor) CheckSystemHealth(ctx context.Context) bool {
	return m.check(ctx, false)
}

// ForceCheck bypasses the rate limit and runs the subchecks immediately.
func (m *Monitor) ForceCheck(ctx context.Context) bool {
	return m.check(ctx, true)
}

func (m *Monitor) check(ctx context.Context, force bool) bool {
	m.mu.Lock()
	if !force && time.Since(m.lastCheckAt) < m.cfg.CheckInterval {
		healthy := m.healthy
		m.mu.Unlock()
		return healthy
	}
	m.mu.Unlock()

	dbOK := m.checkDatabase(ctx)
	inetOK := m.checkInternet(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastCheckAt = time.Now()

	if dbOK && inetOK {
		m.handleSuccessLocked()
	} else {
		reason := failureReason(dbOK, inetOK)
		m.handleFailureLocked(reason)
	}

	if m.healthy {
		observability.HealthState.Set(1)
	} else {
		observability.HealthState.Set(0)
	}
	return m.healthy
}

func failureReason(dbOK, inetOK bool) string {
	var failed []string
	if !dbOK {
		failed = append(failed, "database")
	}
	if !inetOK {
		failed = append(failed, "internet")
	}
	return "failed checks: " + strings.Join(failed, ", ")
}

func (m *Monitor) checkDatabase(ctx context.Context) bool {
	dbCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := m.db.Ping(dbCtx); err != nil {
		m.log.Warn().Err(err).Msg("database health check failed")
		return false
	}
	return true
}

func (m *Monitor) checkInternet(ctx context.Context) bool {
	for _, url := range probeTargets {
		reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
		if err != nil {
			cancel()
			continue
		}
		resp, err := m.client.Do(req)
		cancel()
		if err != nil {
			m.log.Debug().Err(err).Str("url", url).Msg("internet connectivity probe failed")
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			return true
		}
	}
	m.log.Warn().Msg("all internet connectivity probes failed")
	return false
}

// handleSuccessLocked must be called with mu held.
func (m *Monitor) handleSuccessLocked() {
	m.consecutiveFailures = 0
	m.consecutiveSuccesses++
	m.lastFailureReason = ""

	if !m.healthy && m.consecutiveSuccesses >= m.cfg.SuccessThreshold {
		m.healthy = true
		m.consecutiveSuccesses = 0
		m.log.Info().Msg("system health recovered")
	}
}

// handleFailureLocked must be called with mu held.
func (m *Monitor) handleFailureLocked(reason string) {
	m.consecutiveSuccesses = 0
	m.consecutiveFailures++
	m.lastFailureReason = reason

	if m.healthy && m.consecutiveFailures >= m.cfg.FailureThreshold {
		m.healthy = false
		m.log.Error().Int("consecutive_failures", m.consecutiveFailures).Str("reason", reason).Msg("system health degraded, entering circuit breaker mode")
		return
	}
	m.log.Warn().Int("consecutive_failures", m.consecutiveFailures).Str("reason", reason).Msg("system health check failed")
}

// IsQueueOverwhelmed reports whether size has reached the configured
// overwhelm threshold, warning once it crosses half that threshold.
func (m *Monitor) IsQueueOverwhelmed(size int) bool {
	if size >= m.cfg.QueueOverwhelmedSize {
		m.log.Warn().Int("queue_size", size).Int("threshold", m.cfg.QueueOverwhelmedSize).Msg("queue overwhelmed")
		return true
	}
	if size >= m.cfg.QueueOverwhelmedSize/2 {
		m.log.Warn().Int("queue_size", size).Int("threshold", m.cfg.QueueOverwhelmedSize).Msg("queue size approaching threshold")
	}
	return false
}

// Status returns a snapshot for GetStatus().
func (m *Monitor) Status() domain.HealthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	nextCheckIn := m.cfg.CheckInterval - time.Since(m.lastCheckAt)
	if nextCheckIn < 0 {
		nextCheckIn = 0
	}
	return domain.HealthStatus{
		Healthy:              m.healthy,
		ConsecutiveFailures:  m.consecutiveFailures,
		ConsecutiveSuccesses: m.consecutiveSuccesses,
		LastCheckAt:          m.lastCheckAt,
		LastFailureReason:    m.lastFailureReason,
		NextCheckIn:          nextCheckIn,
	}
}

// Close is a no-op hook kept for symmetry with other components that own
// network resources; the shared http.Client needs no explicit teardown.
func (m *Monitor) Close() {}
