package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexcal/nexcal/internal/common"
	"github.com/nexcal/nexcal/internal/logging"
	"github.com/nexcal/nexcal/internal/models"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func key(id string) models.Key {
	return models.Key{Kind: models.KindEvent, Author: "alice", ID: id}
}

// advance moves the mock clock in coarse steps so every jittered delay
// (at most MaxSyncDelay +20%) elapses.
func advance(mock *clock.Mock, total time.Duration) {
	step := common.MaxSyncDelay * 2
	for elapsed := time.Duration(0); elapsed < total; elapsed += step {
		mock.Add(step)
	}
}

func TestSchedule_FirstCheckAfterInitialDelay(t *testing.T) {
	mock := clock.NewMock()
	var calls int32
	s := New(mock, func(ctx context.Context, k models.Key) bool {
		atomic.AddInt32(&calls, 1)
		return true
	}, nil, testLogger())
	s.Start(context.Background())

	s.Schedule(key("e1"))
	require.True(t, s.Active(key("e1")))

	// Jitter keeps the first check within ±20% of the initial delay.
	mock.Add(common.InitialSyncDelay * 2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.False(t, s.Active(key("e1")), "done check removes the task")
}

func TestSchedule_RetriesUntilDone(t *testing.T) {
	mock := clock.NewMock()
	var calls int32
	s := New(mock, func(ctx context.Context, k models.Key) bool {
		return atomic.AddInt32(&calls, 1) >= 3
	}, nil, testLogger())
	s.Start(context.Background())

	s.Schedule(key("e1"))
	advance(mock, 30*time.Second)

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.False(t, s.Active(key("e1")))
}

func TestSchedule_AbandonsAfterBudget(t *testing.T) {
	mock := clock.NewMock()
	var calls int32
	var abandoned int32
	s := New(mock, func(ctx context.Context, k models.Key) bool {
		atomic.AddInt32(&calls, 1)
		return false
	}, func(k models.Key) {
		atomic.AddInt32(&abandoned, 1)
	}, testLogger())
	s.Start(context.Background())

	s.Schedule(key("e1"))
	for i := 0; i < 20 && s.Active(key("e1")); i++ {
		advance(mock, 30*time.Second)
	}

	assert.False(t, s.Active(key("e1")))
	assert.Equal(t, int32(1), atomic.LoadInt32(&abandoned))
	got := atomic.LoadInt32(&calls)
	assert.LessOrEqual(t, got, int32(common.MaxSyncAttempts))
	assert.Positive(t, got)
}

func TestCancel_StopsFurtherChecks(t *testing.T) {
	mock := clock.NewMock()
	var calls int32
	s := New(mock, func(ctx context.Context, k models.Key) bool {
		atomic.AddInt32(&calls, 1)
		return false
	}, nil, testLogger())
	s.Start(context.Background())

	s.Schedule(key("e1"))
	s.Cancel(key("e1"))
	advance(mock, 60*time.Second)

	assert.Zero(t, atomic.LoadInt32(&calls))
	assert.False(t, s.Active(key("e1")))
}

func TestSchedule_NewWriteResetsCadence(t *testing.T) {
	mock := clock.NewMock()
	var calls int32
	s := New(mock, func(ctx context.Context, k models.Key) bool {
		atomic.AddInt32(&calls, 1)
		return false
	}, nil, testLogger())
	s.Start(context.Background())

	s.Schedule(key("e1"))
	s.Schedule(key("e1"))
	assert.Equal(t, 1, s.Len(), "one task per key")

	// Only the replacement's timer fires.
	mock.Add(common.InitialSyncDelay * 2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.True(t, s.Active(key("e1")))
}

func TestStop_ClearsAllTasks(t *testing.T) {
	mock := clock.NewMock()
	s := New(mock, func(ctx context.Context, k models.Key) bool { return false }, nil, testLogger())
	s.Start(context.Background())

	s.Schedule(key("e1"))
	s.Schedule(key("e2"))
	require.Equal(t, 2, s.Len())

	s.Stop()
	assert.Zero(t, s.Len())
}
