// Package postgres implements the persistence.Persistence interface
// against a PostgreSQL database via pgx.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lookout/monitor/internal/domain"
	"github.com/lookout/monitor/internal/persistence"
)

const foreignKeyViolationCode = "23503"

// Store implements persistence.Persistence backed by a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to Postgres and verifies reachability with a ping.
func New(ctx context.Context, connString string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 25
	cfg.MinConns = 2
	cfg.MaxConnLifetime = time.Hour
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping performs a trivial read used by the Health Monitor's database
// reachability subcheck.
func (s *Store) Ping(ctx context.Context) error {
	var one int
	return s.pool.QueryRow(ctx, "SELECT 1").Scan(&one)
}

func (s *Store) SelectActiveEndpoints(ctx context.Context) ([]*domain.Endpoint, error) {
	query := `
		SELECT e.id, e.workspace_id, w.user_id, e.name, e.url, e.method, e.headers, e.body,
		       e.expected_status, e.timeout_seconds, e.frequency_minutes, e.is_active, e.consecutive_failures
		FROM endpoints e
		JOIN workspaces w ON w.id = e.workspace_id
		WHERE e.is_active = true
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var endpoints []*domain.Endpoint
	for rows.Next() {
		var e domain.Endpoint
		if err := rows.Scan(
			&e.ID, &e.WorkspaceID, &e.UserID, &e.Name, &e.URL, &e.Method, &e.Headers, &e.Body,
			&e.ExpectedStatus, &e.TimeoutSeconds, &e.FrequencyMinutes, &e.IsActive, &e.ConsecutiveFailures,
		); err != nil {
			return nil, err
		}
		endpoints = append(endpoints, &e)
	}
	return endpoints, rows.Err()
}

func (s *Store) InsertCheckResult(ctx context.Context, row domain.CheckResultRow) error {
	query := `
		INSERT INTO check_results (endpoint_id, checked_at, status_code, elapsed_ms, success, error)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.pool.Exec(ctx, query, row.EndpointID, row.CheckedAt, row.StatusCode, row.ElapsedMS, row.Success, nullableString(row.Error))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolationCode {
			return persistence.ErrForeignKeyMissing
		}
		return err
	}
	return nil
}

func (s *Store) UpdateEndpointCheckMetadata(ctx context.Context, endpointID uuid.UUID, lastCheckAt time.Time, consecutiveFailures int) error {
	query := `UPDATE endpoints SET last_check_at = $2, consecutive_failures = $3 WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, endpointID, lastCheckAt, consecutiveFailures)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolationCode {
			return persistence.ErrForeignKeyMissing
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return persistence.ErrForeignKeyMissing
	}
	return nil
}

func (s *Store) SelectUserNotificationState(ctx context.Context, userID uuid.UUID) (*domain.NotificationUserState, error) {
	query := `
		SELECT user_id, buffer_active, buffer_started_at, failing_endpoint_ids, cooldown_level, cooldown_expires_at
		FROM global_email_state WHERE user_id = $1
	`
	var st domain.NotificationUserState
	var bufferStartedAt, cooldownExpiresAt *time.Time
	err := s.pool.QueryRow(ctx, query, userID).Scan(
		&st.UserID, &st.BufferActive, &bufferStartedAt, &st.FailingEndpointIDs, &st.CooldownLevel, &cooldownExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if bufferStartedAt != nil {
		st.BufferStartedAt = *bufferStartedAt
	}
	if cooldownExpiresAt != nil {
		st.CooldownExpiresAt = *cooldownExpiresAt
	}
	return &st, nil
}

func (s *Store) UpsertUserNotificationState(ctx context.Context, state *domain.NotificationUserState) error {
	query := `
		INSERT INTO global_email_state (user_id, buffer_active, buffer_started_at, failing_endpoint_ids, cooldown_level, cooldown_expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			buffer_active = EXCLUDED.buffer_active,
			buffer_started_at = EXCLUDED.buffer_started_at,
			failing_endpoint_ids = EXCLUDED.failing_endpoint_ids,
			cooldown_level = EXCLUDED.cooldown_level,
			cooldown_expires_at = EXCLUDED.cooldown_expires_at,
			updated_at = NOW()
	`
	_, err := s.pool.Exec(ctx, query,
		state.UserID, state.BufferActive, nullableTime(state.BufferStartedAt), state.FailingEndpointIDs,
		state.CooldownLevel, nullableTime(state.CooldownExpiresAt),
	)
	return err
}

func (s *Store) SelectUserNotificationSettings(ctx context.Context, userID uuid.UUID) (*domain.NotificationSettings, error) {
	query := `
		SELECT user_id, email_notifications_enabled, notification_email, failure_threshold
		FROM user_notification_settings WHERE user_id = $1
	`
	var st domain.NotificationSettings
	err := s.pool.QueryRow(ctx, query, userID).Scan(&st.UserID, &st.EmailEnabled, &st.EmailAddress, &st.FailureThreshold)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) SelectEndpointsWithWorkspaceNames(ctx context.Context, ids []uuid.UUID) ([]domain.EndpointWorkspaceView, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `
		SELECT e.id, e.name, w.name, e.consecutive_failures, e.last_check_at
		FROM endpoints e
		JOIN workspaces w ON w.id = e.workspace_id
		WHERE e.id = ANY($1)
	`
	rows, err := s.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var views []domain.EndpointWorkspaceView
	for rows.Next() {
		var v domain.EndpointWorkspaceView
		if err := rows.Scan(&v.EndpointID, &v.EndpointName, &v.WorkspaceName, &v.ConsecutiveFailures, &v.LastCheckAt); err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

func (s *Store) InsertNotificationHistory(ctx context.Context, row domain.NotificationHistoryRow) error {
	query := `
		INSERT INTO notification_history (user_id, endpoint_ids, endpoint_count, cooldown_level_used, sent_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.pool.Exec(ctx, query, row.UserID, row.EndpointIDs, row.EndpointCount, row.CooldownLevelUsed, row.SentAt)
	return err
}

func (s *Store) SelectExpiredBuffers(ctx context.Context, olderThan time.Duration, now time.Time) ([]*domain.NotificationUserState, error) {
	cutoff := now.Add(-olderThan)
	query := `
		SELECT user_id, buffer_active, buffer_started_at, failing_endpoint_ids, cooldown_level, cooldown_expires_at
		FROM global_email_state WHERE buffer_active = true AND buffer_started_at <= $1
	`
	return s.queryStates(ctx, query, cutoff)
}

func (s *Store) SelectExpiredCooldowns(ctx context.Context, now time.Time) ([]*domain.NotificationUserState, error) {
	query := `
		SELECT user_id, buffer_active, buffer_started_at, failing_endpoint_ids, cooldown_level, cooldown_expires_at
		FROM global_email_state WHERE cooldown_expires_at IS NOT NULL AND cooldown_expires_at <= $1
	`
	return s.queryStates(ctx, query, now)
}

func (s *Store) queryStates(ctx context.Context, query string, arg time.Time) ([]*domain.NotificationUserState, error) {
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var states []*domain.NotificationUserState
	for rows.Next() {
		var st domain.NotificationUserState
		var bufferStartedAt, cooldownExpiresAt *time.Time
		if err := rows.Scan(&st.UserID, &st.BufferActive, &bufferStartedAt, &st.FailingEndpointIDs, &st.CooldownLevel, &cooldownExpiresAt); err != nil {
			return nil, err
		}
		if bufferStartedAt != nil {
			st.BufferStartedAt = *bufferStartedAt
		}
		if cooldownExpiresAt != nil {
			st.CooldownExpiresAt = *cooldownExpiresAt
		}
		states = append(states, &st)
	}
	return states, rows.Err()
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
