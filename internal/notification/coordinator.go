// Package notification implements the per-user outage email state machine:
// Ready, Buffering, and Cooldown, with escalating backoff on repeated
// outages.
package notification

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lookout/monitor/internal/domain"
	"github.com/lookout/monitor/internal/email"
	"github.com/lookout/monitor/internal/logging"
	"github.com/lookout/monitor/internal/observability"
	"github.com/lookout/monitor/internal/persistence"
)

const bufferWindow = 15 * time.Minute

// cooldownMap gives, for the cooldown level just used, the next level and
// its duration. Level 4 cycles back to level 1's 1-hour duration.
var cooldownMap = map[int]struct {
	nextLevel int
	duration  time.Duration
}{
	0: {1, 1 * time.Hour},
	1: {2, 2 * time.Hour},
	2: {3, 3 * time.Hour},
	3: {4, 5 * time.Hour},
	4: {1, 1 * time.Hour},
}

// Config controls the Coordinator's tick cadence.
type Config struct {
	TickInterval time.Duration
	DashboardURL string
}

// Coordinator is the Notification Coordinator described in spec §4.6.
type Coordinator struct {
	store    persistence.Persistence
	provider email.Provider
	cfg      Config
	log      zerolog.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New constructs a Coordinator. Call Start to begin its tick loop.
func New(store persistence.Persistence, provider email.Provider, cfg Config) *Coordinator {
	return &Coordinator{
		store:    store,
		provider: provider,
		cfg:      cfg,
		log:      logging.WithComponent("notification_coordinator"),
	}
}

// HandleFailure is the Worker Pool's entry point: it has already applied
// the threshold/opt-in gate, so every call here is a qualifying failure.
func (c *Coordinator) HandleFailure(event domain.FailureEvent) {
	ctx := context.Background()
	state, err := c.loadState(ctx, event.UserID)
	if err != nil {
		c.log.Error().Err(err).Str("user_id", event.UserID.String()).Msg("failed to load notification state")
		return
	}

	now := time.Now()
	if state.InCooldown(now) {
		c.log.Debug().Str("user_id", event.UserID.String()).Msg("user in cooldown, dropping failure event")
		return
	}

	if !state.BufferActive {
		state.BufferActive = true
		state.BufferStartedAt = now
		state.FailingEndpointIDs = []uuid.UUID{event.EndpointID}
		c.log.Info().Str("user_id", event.UserID.String()).Str("endpoint_id", event.EndpointID.String()).Msg("opened outage notification buffer")
	} else if !containsID(state.FailingEndpointIDs, event.EndpointID) {
		state.FailingEndpointIDs = append(state.FailingEndpointIDs, event.EndpointID)
	}

	if err := c.store.UpsertUserNotificationState(ctx, state); err != nil {
		c.log.Error().Err(err).Str("user_id", event.UserID.String()).Msg("failed to persist notification state")
	}
}

// Start launches the Coordinator's periodic scan loop.
func (c *Coordinator) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.run(ctx)
}

// Stop signals the scan loop to exit and waits for it to do so.
func (c *Coordinator) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

func (c *Coordinator) run(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

func (c *Coordinator) tick(ctx context.Context) {
	now := time.Now()

	expiredBuffers, err := c.store.SelectExpiredBuffers(ctx, bufferWindow, now)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to scan expired buffers")
	} else {
		for _, state := range expiredBuffers {
			c.flush(ctx, state)
		}
	}

	expiredCooldowns, err := c.store.SelectExpiredCooldowns(ctx, now)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to scan expired cooldowns")
		return
	}
	for _, state := range expiredCooldowns {
		c.resetToReady(ctx, state)
	}
}

func (c *Coordinator) flush(ctx context.Context, state *domain.NotificationUserState) {
	settings, err := c.store.SelectUserNotificationSettings(ctx, state.UserID)
	if err != nil {
		c.log.Error().Err(err).Str("user_id", state.UserID.String()).Msg("failed to load notification settings for flush")
		c.resetToReady(ctx, state)
		return
	}
	if settings == nil || !settings.EmailEnabled {
		c.resetToReady(ctx, state)
		return
	}

	views, err := c.store.SelectEndpointsWithWorkspaceNames(ctx, state.FailingEndpointIDs)
	if err != nil || len(views) == 0 {
		c.log.Error().Err(err).Str("user_id", state.UserID.String()).Msg("no endpoint details for buffered outage, resetting")
		c.resetToReady(ctx, state)
		return
	}

	msg := buildEmail(settings.EmailAddress, views, c.cfg.DashboardURL)
	if !c.provider.SendOutageEmail(ctx, msg) {
		c.log.Warn().Str("user_id", state.UserID.String()).Msg("outage email send failed, resetting to ready")
		c.resetToReady(ctx, state)
		return
	}
	observability.NotificationsSent.Inc()

	history := domain.NotificationHistoryRow{
		UserID:            state.UserID,
		EndpointIDs:       state.FailingEndpointIDs,
		EndpointCount:     len(state.FailingEndpointIDs),
		CooldownLevelUsed: state.CooldownLevel,
		SentAt:            time.Now(),
	}
	if err := c.store.InsertNotificationHistory(ctx, history); err != nil {
		c.log.Error().Err(err).Str("user_id", state.UserID.String()).Msg("failed to record notification history")
	}

	next := cooldownMap[state.CooldownLevel]
	state.BufferActive = false
	state.BufferStartedAt = time.Time{}
	state.FailingEndpointIDs = nil
	state.CooldownLevel = next.nextLevel
	state.CooldownExpiresAt = time.Now().Add(next.duration)

	if err := c.store.UpsertUserNotificationState(ctx, state); err != nil {
		c.log.Error().Err(err).Str("user_id", state.UserID.String()).Msg("failed to persist post-flush cooldown state")
	}
	observability.NotificationCooldownLevel.WithLabelValues(levelLabel(state.CooldownLevel)).Inc()
}

func (c *Coordinator) resetToReady(ctx context.Context, state *domain.NotificationUserState) {
	state.BufferActive = false
	state.BufferStartedAt = time.Time{}
	state.FailingEndpointIDs = nil
	state.CooldownExpiresAt = time.Time{}

	if err := c.store.UpsertUserNotificationState(ctx, state); err != nil {
		c.log.Error().Err(err).Str("user_id", state.UserID.String()).Msg("failed to reset notification state to ready")
	}
}

func (c *Coordinator) loadState(ctx context.Context, userID uuid.UUID) (*domain.NotificationUserState, error) {
	state, err := c.store.SelectUserNotificationState(ctx, userID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		state = &domain.NotificationUserState{UserID: userID}
	}
	return state, nil
}

func buildEmail(to string, views []domain.EndpointWorkspaceView, dashboardURL string) email.Message {
	workspace := views[0].WorkspaceName
	workspaces := make(map[string]struct{})
	for _, v := range views {
		workspaces[v.WorkspaceName] = struct{}{}
	}
	if len(workspaces) > 1 {
		workspace = "Multiple Workspaces"
	}

	subject := email.Subject(len(views), workspace)
	text := renderText(views, dashboardURL)
	return email.Message{
		To:      to,
		Subject: subject,
		HTML:    renderHTML(views, dashboardURL),
		Text:    text,
	}
}

func renderText(views []domain.EndpointWorkspaceView, dashboardURL string) string {
	names := make([]string, 0, len(views))
	for _, v := range views {
		names = append(names, v.EndpointName)
	}
	sort.Strings(names)

	out := "The following endpoints are currently failing:\n"
	for _, n := range names {
		out += "- " + n + "\n"
	}
	out += "\nView details: " + dashboardURL
	return out
}

func renderHTML(views []domain.EndpointWorkspaceView, dashboardURL string) string {
	out := "<p>The following endpoints are currently failing:</p><ul>"
	for _, v := range views {
		out += "<li>" + v.EndpointName + "</li>"
	}
	out += "</ul><p><a href=\"" + dashboardURL + "\">View dashboard</a></p>"
	return out
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}

func levelLabel(level int) string {
	switch level {
	case 0:
		return "0"
	case 1:
		return "1"
	case 2:
		return "2"
	case 3:
		return "3"
	default:
		return "4"
	}
}
