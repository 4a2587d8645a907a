// Package registry is the in-memory source of truth for what to probe and
// when. It is mutated by event notifications from the REST layer
// (OnCreate/OnUpdate/OnDelete), by SnapshotDue's own bookkeeping, by the
// startup bulk load, and by the worker's UpdateConsecutiveFailures and
// Evict calls.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lookout/monitor/internal/domain"
	"github.com/lookout/monitor/internal/logging"
	"github.com/lookout/monitor/internal/observability"
	"github.com/lookout/monitor/internal/persistence"
)

// Config controls warning thresholds.
type Config struct {
	CacheWarningSize int
}

// Registry holds one Endpoint per id behind a single lock. A single lock
// across reads and writes is sufficient at the scale this engine targets
// and keeps SnapshotDue's next_check_time advancement atomic with respect
// to concurrent OnUpdate/OnDelete calls, per spec §5.
type Registry struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*domain.Endpoint
	cfg     Config
	log     zerolog.Logger
}

// New constructs an empty Registry.
func New(cfg Config) *Registry {
	return &Registry{
		entries: make(map[uuid.UUID]*domain.Endpoint),
		cfg:     cfg,
		log:     logging.WithComponent("registry"),
	}
}

// LoadFromPersistence performs the Registry's one and only bulk read, at
// startup. Each loaded entry is seeded with next_check_time = now +
// frequency so startup does not stampede every endpoint at once.
func (r *Registry) LoadFromPersistence(ctx context.Context, store persistence.Persistence) error {
	endpoints, err := store.SelectActiveEndpoints(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for _, e := range endpoints {
		e.NextCheckTime = now.Add(time.Duration(e.FrequencyMinutes) * time.Minute)
		r.entries[e.ID] = e
	}
	observability.RegistrySize.Set(float64(len(r.entries)))
	r.log.Info().Int("endpoint_count", len(r.entries)).Msg("registry loaded from persistence")
	return nil
}

// OnCreate inserts a new entry, scheduling its first check 10 seconds out
// so new endpoints are exercised promptly.
func (r *Registry) OnCreate(e *domain.Endpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := e.Clone()
	cp.NextCheckTime = time.Now().Add(10 * time.Second)
	r.entries[cp.ID] = cp

	r.log.Info().Str("endpoint_id", cp.ID.String()).Str("endpoint_name", cp.Name).Msg("endpoint created")

	if len(r.entries) > r.cfg.CacheWarningSize {
		r.log.Warn().Int("registry_size", len(r.entries)).Int("threshold", r.cfg.CacheWarningSize).Msg("registry size exceeds soft cap")
	}
	observability.RegistrySize.Set(float64(len(r.entries)))
}

// OnUpdate applies the patch's changed fields. Changing frequency
// recomputes next_check_time; the failure counter is left untouched
// unless the patch explicitly sets it.
func (r *Registry) OnUpdate(id uuid.UUID, patch domain.Patch) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		r.log.Warn().Str("endpoint_id", id.String()).Msg("update for unknown endpoint ignored")
		return
	}

	if patch.Name != nil {
		e.Name = *patch.Name
	}
	if patch.URL != nil {
		e.URL = *patch.URL
	}
	if patch.Method != nil {
		e.Method = *patch.Method
	}
	if patch.Headers != nil {
		e.Headers = patch.Headers
	}
	if patch.Body != nil {
		e.Body = *patch.Body
	}
	if patch.ExpectedStatus != nil {
		e.ExpectedStatus = *patch.ExpectedStatus
	}
	if patch.TimeoutSeconds != nil {
		e.TimeoutSeconds = *patch.TimeoutSeconds
	}
	if patch.IsActive != nil {
		e.IsActive = *patch.IsActive
	}
	if patch.ConsecutiveFailures != nil {
		e.ConsecutiveFailures = *patch.ConsecutiveFailures
	}
	if patch.FrequencyMinutes != nil {
		e.FrequencyMinutes = *patch.FrequencyMinutes
		e.NextCheckTime = time.Now().Add(time.Duration(e.FrequencyMinutes) * time.Minute)
	}

	r.log.Info().Str("endpoint_id", id.String()).Msg("endpoint updated")
}

// OnDelete removes the entry. A queued entry for this id popped afterward
// is discarded because Get returns ok=false; a probe already in flight
// completes independently, and its later registry writes find no entry.
func (r *Registry) OnDelete(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; !ok {
		r.log.Warn().Str("endpoint_id", id.String()).Msg("delete for unknown endpoint ignored")
		return
	}
	delete(r.entries, id)
	r.log.Info().Str("endpoint_id", id.String()).Msg("endpoint deleted")
	observability.RegistrySize.Set(float64(len(r.entries)))
}

// Evict removes an entry without logging it as a user-initiated delete;
// used by the worker when persistence reports the endpoint row is gone.
func (r *Registry) Evict(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
	observability.RegistrySize.Set(float64(len(r.entries)))
}

// Get returns a defensive copy of the entry, or ok=false if absent.
func (r *Registry) Get(id uuid.UUID) (*domain.Endpoint, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.Clone(), true
}

// UpdateConsecutiveFailures writes the worker's post-probe failure count
// back into the live entry, if it still exists.
func (r *Registry) UpdateConsecutiveFailures(id uuid.UUID, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		e.ConsecutiveFailures = count
	}
}

// SnapshotDue returns due entries and atomically advances their
// next_check_time, so a second probe for the same endpoint cannot be
// enqueued until now >= the new next_check_time.
func (r *Registry) SnapshotDue(now time.Time) []domain.QueueEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var due []domain.QueueEntry
	for _, e := range r.entries {
		if !e.IsActive {
			continue
		}
		if now.Before(e.NextCheckTime) {
			continue
		}
		due = append(due, domain.QueueEntry{EndpointID: e.ID, ScheduledAt: e.NextCheckTime})
		e.NextCheckTime = now.Add(time.Duration(e.FrequencyMinutes) * time.Minute)
	}
	return due
}

// Size returns the current number of tracked endpoints.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
