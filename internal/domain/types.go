// Package domain holds the fixed-schema records that flow between the
// monitoring engine's components: endpoints, probe outcomes, queue
// entries, and the per-user notification state.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Endpoint is the Registry's effective view of a monitored HTTP target.
// The Registry is the only writer of NextCheckTime and ConsecutiveFailures.
type Endpoint struct {
	ID                 uuid.UUID
	WorkspaceID        uuid.UUID
	UserID             uuid.UUID
	Name               string
	URL                string
	Method             string
	Headers            map[string]string
	Body               string
	ExpectedStatus     int
	TimeoutSeconds     int
	FrequencyMinutes   int
	IsActive           bool
	ConsecutiveFailures int
	NextCheckTime      time.Time
}

// Clone returns a deep-enough copy safe to hand to a worker without
// racing the Registry's own mutations of the live entry.
func (e *Endpoint) Clone() *Endpoint {
	cp := *e
	if e.Headers != nil {
		cp.Headers = make(map[string]string, len(e.Headers))
		for k, v := range e.Headers {
			cp.Headers[k] = v
		}
	}
	return &cp
}

// Patch carries the changed fields of an UpdateEvent. A nil field means
// "leave unchanged".
type Patch struct {
	Name             *string
	URL              *string
	Method           *string
	Headers          map[string]string
	Body             *string
	ExpectedStatus   *int
	TimeoutSeconds   *int
	FrequencyMinutes *int
	IsActive         *bool
	ConsecutiveFailures *int
}

// Outcome is the structured result of a single probe attempt.
type Outcome struct {
	Success     bool
	Retryable   bool
	StatusCode  int
	ElapsedMS   int64
	Error       string
	Attempt     int
	CheckedAt   time.Time
}

// QueueEntry pairs an endpoint id with the instant it was scheduled for.
type QueueEntry struct {
	EndpointID uuid.UUID
	ScheduledAt time.Time
}

// CheckResultRow is the append-only persisted record of one probe outcome.
type CheckResultRow struct {
	EndpointID uuid.UUID
	CheckedAt  time.Time
	StatusCode *int
	ElapsedMS  int64
	Success    bool
	Error      string
}

// HealthStatus is the Health Monitor's state as exposed for introspection.
type HealthStatus struct {
	Healthy              bool
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	LastCheckAt          time.Time
	LastFailureReason    string
	NextCheckIn          time.Duration
}

// NotificationUserState is the Notification Coordinator's per-user state
// machine, persisted so it survives restarts.
type NotificationUserState struct {
	UserID            uuid.UUID
	BufferActive      bool
	BufferStartedAt   time.Time
	FailingEndpointIDs []uuid.UUID
	CooldownLevel     int
	CooldownExpiresAt time.Time
}

// InCooldown reports whether the state machine is currently silent.
func (s *NotificationUserState) InCooldown(now time.Time) bool {
	return s.CooldownExpiresAt.After(now)
}

// NotificationSettings is a user's outage-email preferences.
type NotificationSettings struct {
	UserID            uuid.UUID
	EmailEnabled      bool
	EmailAddress      string
	FailureThreshold  int
}

// EndpointWorkspaceView is the denormalized endpoint+workspace row used to
// build the outage email body.
type EndpointWorkspaceView struct {
	EndpointID          uuid.UUID
	EndpointName        string
	WorkspaceName       string
	ConsecutiveFailures int
	LastCheckAt         time.Time
}

// NotificationHistoryRow is the append-only record of a sent outage email.
type NotificationHistoryRow struct {
	UserID            uuid.UUID
	EndpointIDs       []uuid.UUID
	EndpointCount     int
	CooldownLevelUsed int
	SentAt            time.Time
}

// FailureEvent is handed from the Worker Pool to the Notification
// Coordinator when a probe outcome is unsuccessful, the user has email
// notifications enabled, and the consecutive failure count has reached
// the user's threshold.
type FailureEvent struct {
	UserID              uuid.UUID
	EndpointID          uuid.UUID
	ConsecutiveFailures int
}

// SchedulerStatus is the snapshot returned by GetStatus().
type SchedulerStatus struct {
	Running       bool
	Initialized   bool
	RegistrySize  int
	QueueSize     int
	WorkerCount   int
	Health        HealthStatus
}
