package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPinger struct {
	err error
}

func (s *stubPinger) Ping(ctx context.Context) error { return s.err }

func TestHealthyAfterConsecutiveSuccesses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	probeTargets = []string{server.URL}

	m := New(&stubPinger{}, Config{FailureThreshold: 3, SuccessThreshold: 3, CheckInterval: time.Hour})
	require.True(t, m.Status().Healthy)

	healthy := m.ForceCheck(context.Background())
	assert.True(t, healthy)
}

func TestUnhealthyAfterConsecutiveFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()
	probeTargets = []string{server.URL}

	m := New(&stubPinger{err: errors.New("db down")}, Config{FailureThreshold: 2, SuccessThreshold: 2, CheckInterval: time.Hour})

	assert.True(t, m.ForceCheck(context.Background()))
	assert.False(t, m.ForceCheck(context.Background()))
	assert.False(t, m.Status().Healthy)
}

func TestCheckSystemHealthRespectsRateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	probeTargets = []string{server.URL}

	m := New(&stubPinger{}, Config{FailureThreshold: 3, SuccessThreshold: 3, CheckInterval: time.Minute})

	first := m.CheckSystemHealth(context.Background())
	lastCheckAt := m.Status().LastCheckAt

	second := m.CheckSystemHealth(context.Background())
	assert.Equal(t, first, second)
	assert.Equal(t, lastCheckAt, m.Status().LastCheckAt, "second call within interval should not re-probe")
}

func TestIsQueueOverwhelmed(t *testing.T) {
	m := New(&stubPinger{}, Config{QueueOverwhelmedSize: 100})
	assert.False(t, m.IsQueueOverwhelmed(10))
	assert.True(t, m.IsQueueOverwhelmed(100))
	assert.True(t, m.IsQueueOverwhelmed(150))
}
