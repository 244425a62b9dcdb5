package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedSleeps struct {
	delays []time.Duration
}

func (r *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func TestJitterPacerStaysInRange(t *testing.T) {
	rec := &recordedSleeps{}
	pacer := NewJitterPacer(3*time.Second, 7*time.Second).WithSeed(42).WithSleep(rec.sleep)

	for i := 0; i < 200; i++ {
		require.NoError(t, pacer.Wait(context.Background()))
	}

	require.Len(t, rec.delays, 200)
	distinct := map[time.Duration]struct{}{}
	for _, d := range rec.delays {
		assert.GreaterOrEqual(t, d, 3*time.Second)
		assert.Less(t, d, 7*time.Second)
		distinct[d] = struct{}{}
	}
	assert.Greater(t, len(distinct), 1)
}

func TestJitterPacerZeroRangeDoesNotWait(t *testing.T) {
	rec := &recordedSleeps{}
	pacer := NewJitterPacer(0, 0).WithSleep(rec.sleep)

	require.NoError(t, pacer.Wait(context.Background()))
	assert.Empty(t, rec.delays)
}

func TestJitterPacerFixedDelay(t *testing.T) {
	pacer := NewJitterPacer(2*time.Second, 2*time.Second)
	assert.Equal(t, 2*time.Second, pacer.Next())
}

func TestJitterPacerCancelled(t *testing.T) {
	pacer := NewJitterPacer(time.Hour, 2*time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pacer.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := Sleep(ctx, time.Minute)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestAdaptivePacerBacksOff(t *testing.T) {
	pacer := NewAdaptivePacer(2*time.Second, 4*time.Second)

	pacer.RecordError()
	pacer.RecordError()
	minDelay, maxDelay := pacer.Bounds()
	assert.Equal(t, 2*time.Second, minDelay)
	assert.Equal(t, 4*time.Second, maxDelay)

	pacer.RecordError()
	minDelay, maxDelay = pacer.Bounds()
	assert.Equal(t, 3*time.Second, minDelay)
	assert.Equal(t, 6*time.Second, maxDelay)
}

func TestAdaptivePacerRecoversToFloor(t *testing.T) {
	pacer := NewAdaptivePacer(2*time.Second, 4*time.Second)
	for i := 0; i < 3; i++ {
		pacer.RecordError()
	}

	for i := 0; i < 60; i++ {
		pacer.RecordSuccess()
	}

	minDelay, _ := pacer.Bounds()
	assert.Equal(t, 2*time.Second, minDelay)
}

func TestNewCeiling(t *testing.T) {
	unlimited := NewCeiling(0, 0)
	for i := 0; i < 100; i++ {
		assert.True(t, unlimited.Allow())
	}

	limited := NewCeiling(1, 1)
	assert.True(t, limited.Allow())
	assert.False(t, limited.Allow())
}
