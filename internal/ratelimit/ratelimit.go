package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer blocks between requests.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Feedback is implemented by pacers that adapt to request outcomes.
type Feedback interface {
	RecordSuccess()
	RecordError()
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// JitterPacer waits a uniformly random duration in [min, max) on every call.
type JitterPacer struct {
	minDelay time.Duration
	maxDelay time.Duration
	mu       sync.Mutex
	rng      *rand.Rand
	sleep    SleepFunc
}

func NewJitterPacer(minDelay, maxDelay time.Duration) *JitterPacer {
	return &JitterPacer{
		minDelay: minDelay,
		maxDelay: maxDelay,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:    Sleep,
	}
}

// WithSleep replaces the wait primitive, mainly for tests.
func (p *JitterPacer) WithSleep(sleep SleepFunc) *JitterPacer {
	p.sleep = sleep
	return p
}

// WithSeed makes the delay sequence deterministic.
func (p *JitterPacer) WithSeed(seed int64) *JitterPacer {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rng = rand.New(rand.NewSource(seed))
	return p
}

func (p *JitterPacer) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	delay := p.Next()
	if delay <= 0 {
		return nil
	}
	return p.sleep(ctx, delay)
}

// Next draws the next delay without waiting.
func (p *JitterPacer) Next() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.maxDelay <= p.minDelay {
		return p.minDelay
	}
	delta := p.maxDelay - p.minDelay
	return p.minDelay + time.Duration(p.rng.Int63n(int64(delta)))
}

func (p *JitterPacer) SetDelay(minDelay, maxDelay time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.minDelay = minDelay
	p.maxDelay = maxDelay
}

// Bounds returns the current delay range.
func (p *JitterPacer) Bounds() (time.Duration, time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.minDelay, p.maxDelay
}

// AdaptivePacer widens the delay range after repeated errors and narrows
// the lower bound again after a run of successes.
type AdaptivePacer struct {
	*JitterPacer
	errorCount    int
	successCount  int
	maxErrorCount int
	backoffFactor float64
	floor         time.Duration
	ceiling       time.Duration
}

func NewAdaptivePacer(minDelay, maxDelay time.Duration) *AdaptivePacer {
	return &AdaptivePacer{
		JitterPacer:   NewJitterPacer(minDelay, maxDelay),
		maxErrorCount: 3,
		backoffFactor: 1.5,
		floor:         minDelay,
		ceiling:       60 * time.Second,
	}
}

func (a *AdaptivePacer) RecordSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.successCount++
	a.errorCount = 0

	if a.successCount > 5 {
		newMin := time.Duration(float64(a.minDelay) * 0.9)
		if newMin < a.floor {
			newMin = a.floor
		}
		a.minDelay = newMin
		a.successCount = 0
	}
}

func (a *AdaptivePacer) RecordError() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.errorCount++
	a.successCount = 0

	if a.errorCount >= a.maxErrorCount {
		newMin := time.Duration(float64(a.minDelay) * a.backoffFactor)
		newMax := time.Duration(float64(a.maxDelay) * a.backoffFactor)

		if newMin > a.ceiling {
			newMin = a.ceiling
		}
		if newMax > 2*a.ceiling {
			newMax = 2 * a.ceiling
		}

		a.minDelay = newMin
		a.maxDelay = newMax
		a.errorCount = 0
	}
}

// NewCeiling returns a limiter allowing perMinute requests with the given
// burst. A non-positive perMinute disables the ceiling.
func NewCeiling(perMinute, burst int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst)
}

var (
	_ Pacer    = (*JitterPacer)(nil)
	_ Pacer    = (*AdaptivePacer)(nil)
	_ Feedback = (*AdaptivePacer)(nil)
)
