// Package persistence declares the row-oriented adapter the monitoring
// engine depends on. No SQL lives in the core; concrete adapters
// (postgres, the Redis read-through cache) implement this interface.
package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/lookout/monitor/internal/domain"
)

// ErrForeignKeyMissing is returned by InsertCheckResult when the
// endpoint row has been deleted between enqueue and persistence. The
// worker treats this as expected and evicts its Registry entry.
var ErrForeignKeyMissing = errors.New("persistence: referenced endpoint no longer exists")

// ErrNotFound names the "no matching row" case of single-row selects. The
// postgres adapter does not return it: its single-row selects report a
// missing row as a nil result with a nil error.
var ErrNotFound = errors.New("persistence: no matching row")

// Persistence is the adapter surface the core calls. Implementations must
// not block indefinitely; callers pass a context with their own deadline.
type Persistence interface {
	// Ping is the cheap reachability probe the Health Monitor's database
	// subcheck calls.
	Ping(ctx context.Context) error

	// SelectActiveEndpoints performs the one-time bulk read the Registry
	// uses at startup.
	SelectActiveEndpoints(ctx context.Context) ([]*domain.Endpoint, error)

	// InsertCheckResult appends one probe outcome row. Returns
	// ErrForeignKeyMissing if the endpoint has since been deleted.
	InsertCheckResult(ctx context.Context, row domain.CheckResultRow) error

	// UpdateEndpointCheckMetadata persists the worker's updated
	// consecutive-failure counter and last-check time.
	UpdateEndpointCheckMetadata(ctx context.Context, endpointID uuid.UUID, lastCheckAt time.Time, consecutiveFailures int) error

	SelectUserNotificationState(ctx context.Context, userID uuid.UUID) (*domain.NotificationUserState, error)
	UpsertUserNotificationState(ctx context.Context, state *domain.NotificationUserState) error

	SelectUserNotificationSettings(ctx context.Context, userID uuid.UUID) (*domain.NotificationSettings, error)

	SelectEndpointsWithWorkspaceNames(ctx context.Context, ids []uuid.UUID) ([]domain.EndpointWorkspaceView, error)

	InsertNotificationHistory(ctx context.Context, row domain.NotificationHistoryRow) error

	// SelectExpiredBuffers and SelectExpiredCooldowns back the
	// Notification Coordinator's tick scans.
	SelectExpiredBuffers(ctx context.Context, olderThan time.Duration, now time.Time) ([]*domain.NotificationUserState, error)
	SelectExpiredCooldowns(ctx context.Context, now time.Time) ([]*domain.NotificationUserState, error)
}
