package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lookout/monitor/internal/domain"
)

type fakeHealth struct {
	healthy     bool
	overwhelmed bool
}

func (h *fakeHealth) CheckSystemHealth(ctx context.Context) bool { return h.healthy }
func (h *fakeHealth) IsQueueOverwhelmed(size int) bool           { return h.overwhelmed }

type fakeScanner struct {
	due []domain.QueueEntry
}

func (s *fakeScanner) SnapshotDue(now time.Time) []domain.QueueEntry { return s.due }

type fakeQueue struct {
	mu    sync.Mutex
	items []domain.QueueEntry
}

func (q *fakeQueue) Push(item domain.QueueEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
}

func (q *fakeQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func TestTickEnqueuesDueEndpoints(t *testing.T) {
	entry := domain.QueueEntry{EndpointID: uuid.New()}
	health := &fakeHealth{healthy: true}
	scanner := &fakeScanner{due: []domain.QueueEntry{entry}}
	q := &fakeQueue{}
	l := New(health, scanner, q, Config{Interval: time.Hour})

	l.tick(context.Background())

	require.Len(t, q.items, 1)
	assert.Equal(t, entry.EndpointID, q.items[0].EndpointID)
}

func TestTickSkipsWhenUnhealthy(t *testing.T) {
	health := &fakeHealth{healthy: false}
	scanner := &fakeScanner{due: []domain.QueueEntry{{EndpointID: uuid.New()}}}
	q := &fakeQueue{}
	l := New(health, scanner, q, Config{Interval: time.Hour})

	l.tick(context.Background())

	assert.Empty(t, q.items)
}

func TestTickSkipsWhenQueueOverwhelmed(t *testing.T) {
	health := &fakeHealth{healthy: true, overwhelmed: true}
	scanner := &fakeScanner{due: []domain.QueueEntry{{EndpointID: uuid.New()}}}
	q := &fakeQueue{}
	l := New(health, scanner, q, Config{Interval: time.Hour})

	l.tick(context.Background())

	assert.Empty(t, q.items)
}

func TestStartStopTicksUntilCancelled(t *testing.T) {
	health := &fakeHealth{healthy: true}
	scanner := &fakeScanner{}
	q := &fakeQueue{}
	l := New(health, scanner, q, Config{Interval: 10 * time.Millisecond})

	l.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	l.Stop()
}
