package auction

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"gavel/models"
)

type firedRecorder struct {
	mu    sync.Mutex
	fired []uuid.UUID
}

func (r *firedRecorder) fire(_ context.Context, auctionID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fired = append(r.fired, auctionID)
}

func (r *firedRecorder) count(auctionID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, id := range r.fired {
		if id == auctionID {
			n++
		}
	}
	return n
}

func newTestRegistry() (*TimerRegistry, *clock.Mock, *firedRecorder) {
	mock := clock.NewMock()
	mock.Set(baseTime)
	recorder := &firedRecorder{}
	return NewTimerRegistry(mock, recorder.fire, nil, discardLogger()), mock, recorder
}

func TestTimerRegistry_Schedule(t *testing.T) {
	defer goleak.VerifyNone(t)

	registry, mock, recorder := newTestRegistry()
	defer registry.Stop()
	id := uuid.New()

	assert.True(t, registry.Schedule(id, baseTime.Add(time.Minute)))
	fireAt, ok := registry.FireAt(id)
	require.True(t, ok)
	assert.Equal(t, baseTime.Add(time.Minute), fireAt)

	mock.Add(59 * time.Second)
	assert.Never(t, func() bool { return recorder.count(id) > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	mock.Add(time.Second)
	assert.Eventually(t, func() bool { return recorder.count(id) == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, registry.Len())
}

func TestTimerRegistry_Reschedule(t *testing.T) {
	defer goleak.VerifyNone(t)

	registry, mock, recorder := newTestRegistry()
	defer registry.Stop()
	id := uuid.New()

	registry.Schedule(id, baseTime.Add(time.Minute))
	registry.Schedule(id, baseTime.Add(6*time.Minute))
	assert.Equal(t, 1, registry.Len())

	// 舊的計時器已被取消，不會在原本的時間觸發
	mock.Add(time.Minute)
	assert.Never(t, func() bool { return recorder.count(id) > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	mock.Add(5 * time.Minute)
	assert.Eventually(t, func() bool { return recorder.count(id) == 1 }, time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool { return recorder.count(id) > 1 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestTimerRegistry_PastDue(t *testing.T) {
	registry, _, _ := newTestRegistry()
	defer registry.Stop()

	tests := []struct {
		name    string
		endTime time.Time
	}{
		{name: "already ended", endTime: baseTime.Add(-time.Second)},
		{name: "ends now", endTime: baseTime},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, registry.Schedule(uuid.New(), tt.endTime))
		})
	}
	assert.Zero(t, registry.Len())
}

func TestTimerRegistry_CancelAndStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	registry, mock, recorder := newTestRegistry()
	cancelled, stopped := uuid.New(), uuid.New()

	registry.Schedule(cancelled, baseTime.Add(time.Minute))
	registry.Schedule(stopped, baseTime.Add(2*time.Minute))
	registry.Cancel(cancelled)
	registry.Cancel(uuid.New())
	assert.Equal(t, 1, registry.Len())

	registry.Stop()
	assert.Zero(t, registry.Len())
	assert.False(t, registry.Schedule(uuid.New(), baseTime.Add(time.Hour)))

	mock.Add(time.Hour)
	assert.Never(t, func() bool {
		return recorder.count(cancelled)+recorder.count(stopped) > 0
	}, 50*time.Millisecond, 5*time.Millisecond)
}

func TestTimerRegistry_Rebuild(t *testing.T) {
	env, cleanup := setupTest(t)
	defer cleanup()

	future := env.seedAuction(t, nil)
	env.seedAuction(t, func(a *models.Auction) {
		a.EndTime = baseTime.Add(-time.Minute)
	})
	env.seedAuction(t, func(a *models.Auction) {
		a.IsActive = false
		a.EndTime = baseTime.Add(time.Hour)
	})

	registry, _, _ := newTestRegistry()
	defer registry.Stop()

	scheduled, err := registry.Rebuild(context.Background(), NewStore(env.db))
	require.NoError(t, err)
	assert.Equal(t, 1, scheduled)
	_, ok := registry.FireAt(future.ID)
	assert.True(t, ok)
}
