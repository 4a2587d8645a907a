package notification

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lookout/monitor/internal/domain"
	"github.com/lookout/monitor/internal/email"
)

type fakeStore struct {
	mu       sync.Mutex
	states   map[uuid.UUID]*domain.NotificationUserState
	settings map[uuid.UUID]*domain.NotificationSettings
	views    map[uuid.UUID]domain.EndpointWorkspaceView
	history  []domain.NotificationHistoryRow
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		states:   make(map[uuid.UUID]*domain.NotificationUserState),
		settings: make(map[uuid.UUID]*domain.NotificationSettings),
		views:    make(map[uuid.UUID]domain.EndpointWorkspaceView),
	}
}

func (f *fakeStore) SelectUserNotificationState(ctx context.Context, userID uuid.UUID) (*domain.NotificationUserState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.states[userID]
	if !ok {
		return nil, nil
	}
	cp := *st
	return &cp, nil
}

func (f *fakeStore) UpsertUserNotificationState(ctx context.Context, state *domain.NotificationUserState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *state
	f.states[state.UserID] = &cp
	return nil
}

func (f *fakeStore) SelectUserNotificationSettings(ctx context.Context, userID uuid.UUID) (*domain.NotificationSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settings[userID], nil
}

func (f *fakeStore) SelectEndpointsWithWorkspaceNames(ctx context.Context, ids []uuid.UUID) ([]domain.EndpointWorkspaceView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var views []domain.EndpointWorkspaceView
	for _, id := range ids {
		if v, ok := f.views[id]; ok {
			views = append(views, v)
		}
	}
	return views, nil
}

func (f *fakeStore) InsertNotificationHistory(ctx context.Context, row domain.NotificationHistoryRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = append(f.history, row)
	return nil
}

func (f *fakeStore) SelectExpiredBuffers(ctx context.Context, olderThan time.Duration, now time.Time) ([]*domain.NotificationUserState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.NotificationUserState
	for _, st := range f.states {
		if st.BufferActive && now.Sub(st.BufferStartedAt) >= olderThan {
			cp := *st
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeStore) SelectExpiredCooldowns(ctx context.Context, now time.Time) ([]*domain.NotificationUserState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.NotificationUserState
	for _, st := range f.states {
		if !st.CooldownExpiresAt.IsZero() && !now.Before(st.CooldownExpiresAt) {
			cp := *st
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Unused Persistence methods for this package's narrow test surface.
func (f *fakeStore) Ping(ctx context.Context) error { return nil }
func (f *fakeStore) SelectActiveEndpoints(ctx context.Context) ([]*domain.Endpoint, error) {
	return nil, nil
}
func (f *fakeStore) InsertCheckResult(ctx context.Context, row domain.CheckResultRow) error {
	return nil
}
func (f *fakeStore) UpdateEndpointCheckMetadata(ctx context.Context, endpointID uuid.UUID, lastCheckAt time.Time, consecutiveFailures int) error {
	return nil
}

type fakeEmailProvider struct {
	mu       sync.Mutex
	sent     []email.Message
	shouldOK bool
}

func (f *fakeEmailProvider) SendOutageEmail(ctx context.Context, msg email.Message) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return f.shouldOK
}

func TestHandleFailureOpensBufferOnFirstEvent(t *testing.T) {
	store := newFakeStore()
	provider := &fakeEmailProvider{shouldOK: true}
	c := New(store, provider, Config{TickInterval: time.Hour, DashboardURL: "https://dash"})

	userID := uuid.New()
	endpointID := uuid.New()
	c.HandleFailure(domain.FailureEvent{UserID: userID, EndpointID: endpointID, ConsecutiveFailures: 5})

	st, err := store.SelectUserNotificationState(context.Background(), userID)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.True(t, st.BufferActive)
	assert.Contains(t, st.FailingEndpointIDs, endpointID)
}

func TestHandleFailureDeduplicatesEndpointsInBuffer(t *testing.T) {
	store := newFakeStore()
	provider := &fakeEmailProvider{shouldOK: true}
	c := New(store, provider, Config{TickInterval: time.Hour})

	userID := uuid.New()
	endpointID := uuid.New()
	c.HandleFailure(domain.FailureEvent{UserID: userID, EndpointID: endpointID})
	c.HandleFailure(domain.FailureEvent{UserID: userID, EndpointID: endpointID})

	st, _ := store.SelectUserNotificationState(context.Background(), userID)
	assert.Len(t, st.FailingEndpointIDs, 1)
}

func TestHandleFailureDroppedDuringCooldown(t *testing.T) {
	store := newFakeStore()
	userID := uuid.New()
	store.states[userID] = &domain.NotificationUserState{
		UserID:            userID,
		CooldownExpiresAt: time.Now().Add(time.Hour),
	}
	provider := &fakeEmailProvider{shouldOK: true}
	c := New(store, provider, Config{TickInterval: time.Hour})

	c.HandleFailure(domain.FailureEvent{UserID: userID, EndpointID: uuid.New()})

	st, _ := store.SelectUserNotificationState(context.Background(), userID)
	assert.False(t, st.BufferActive)
}

func TestTickFlushesExpiredBufferAndEntersCooldown(t *testing.T) {
	store := newFakeStore()
	userID := uuid.New()
	endpointID := uuid.New()

	store.settings[userID] = &domain.NotificationSettings{UserID: userID, EmailEnabled: true, EmailAddress: "user@example.com", FailureThreshold: 5}
	store.views[endpointID] = domain.EndpointWorkspaceView{EndpointID: endpointID, EndpointName: "api", WorkspaceName: "acme"}
	store.states[userID] = &domain.NotificationUserState{
		UserID:             userID,
		BufferActive:       true,
		BufferStartedAt:    time.Now().Add(-20 * time.Minute),
		FailingEndpointIDs: []uuid.UUID{endpointID},
	}

	provider := &fakeEmailProvider{shouldOK: true}
	c := New(store, provider, Config{TickInterval: time.Hour, DashboardURL: "https://dash"})

	c.tick(context.Background())

	st, _ := store.SelectUserNotificationState(context.Background(), userID)
	assert.False(t, st.BufferActive)
	assert.Equal(t, 1, st.CooldownLevel)
	assert.True(t, st.CooldownExpiresAt.After(time.Now()))
	assert.Len(t, provider.sent, 1)
	assert.Contains(t, provider.sent[0].Subject, "acme")
	assert.Len(t, store.history, 1)
}

func TestTickResetsToReadyOnEmailFailure(t *testing.T) {
	store := newFakeStore()
	userID := uuid.New()
	endpointID := uuid.New()

	store.settings[userID] = &domain.NotificationSettings{UserID: userID, EmailEnabled: true, EmailAddress: "user@example.com", FailureThreshold: 5}
	store.views[endpointID] = domain.EndpointWorkspaceView{EndpointID: endpointID, EndpointName: "api", WorkspaceName: "acme"}
	store.states[userID] = &domain.NotificationUserState{
		UserID:             userID,
		BufferActive:       true,
		BufferStartedAt:    time.Now().Add(-20 * time.Minute),
		FailingEndpointIDs: []uuid.UUID{endpointID},
	}

	provider := &fakeEmailProvider{shouldOK: false}
	c := New(store, provider, Config{TickInterval: time.Hour})

	c.tick(context.Background())

	st, _ := store.SelectUserNotificationState(context.Background(), userID)
	assert.False(t, st.BufferActive)
	assert.Equal(t, 0, st.CooldownLevel)
	assert.True(t, st.CooldownExpiresAt.IsZero())
}

func TestTickResetsExpiredCooldownToReady(t *testing.T) {
	store := newFakeStore()
	userID := uuid.New()
	store.states[userID] = &domain.NotificationUserState{
		UserID:            userID,
		CooldownLevel:     2,
		CooldownExpiresAt: time.Now().Add(-time.Minute),
	}
	provider := &fakeEmailProvider{shouldOK: true}
	c := New(store, provider, Config{TickInterval: time.Hour})

	c.tick(context.Background())

	st, _ := store.SelectUserNotificationState(context.Background(), userID)
	assert.Equal(t, 2, st.CooldownLevel)
	assert.True(t, st.CooldownExpiresAt.IsZero())
}

func TestEmailSubjectMultipleWorkspaces(t *testing.T) {
	views := []domain.EndpointWorkspaceView{
		{EndpointName: "a", WorkspaceName: "acme"},
		{EndpointName: "b", WorkspaceName: "globex"},
	}
	msg := buildEmail("user@example.com", views, "https://dash")
	assert.Contains(t, msg.Subject, "Multiple Workspaces")
	assert.Contains(t, msg.Subject, "2 endpoints")
}
