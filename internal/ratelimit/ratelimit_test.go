package ratelimit

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 14, 9, 0, 0, 0, time.Local)}
}

const fp = "0123456789abcdef0123456789abcdef"

func TestAdmitDailyLimit(t *testing.T) {
	clock := newClock()
	l := New(5, 100, WithClock(clock.Now))

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Admit(fp), "request %d", i+1)
		clock.Advance(time.Hour) // stay under the hourly ceiling
		if clock.Now().Day() != 14 {
			t.Fatalf("test clock crossed midnight")
		}
	}
	err := l.Admit(fp)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRateLimited))
	var le *LimitError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, KindDaily, le.Kind)
	assert.Equal(t, 5, le.Limit)
	assert.Contains(t, le.Error(), "Max 5 requests per day")
}

func TestDailyCounterResetsOnNewDate(t *testing.T) {
	clock := newClock()
	l := New(2, 100, WithClock(clock.Now))

	require.NoError(t, l.Admit(fp))
	require.NoError(t, l.Admit(fp))
	require.Error(t, l.Admit(fp))

	clock.Advance(24 * time.Hour)
	require.NoError(t, l.Admit(fp))
	assert.Equal(t, 1, l.Usage(fp).DailyCount)
}

func TestAdmitHourlyLimitIndependentOfDaily(t *testing.T) {
	clock := newClock()
	l := New(50, 3, WithClock(clock.Now))

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Admit(fp))
	}
	err := l.Admit(fp)
	var le *LimitError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, KindHourly, le.Kind)
	assert.Equal(t, 3, le.Limit)

	clock.Advance(time.Hour)
	require.NoError(t, l.Admit(fp))

	u := l.Usage(fp)
	assert.Equal(t, 4, u.DailyCount)
	assert.Equal(t, 1, u.HourlyCount)
}

func TestRejectedRequestIsNotCounted(t *testing.T) {
	clock := newClock()
	l := New(50, 1, WithClock(clock.Now))

	require.NoError(t, l.Admit(fp))
	require.Error(t, l.Admit(fp))
	require.Error(t, l.Admit(fp))
	assert.Equal(t, 1, l.Usage(fp).DailyCount)
}

func TestFingerprintsAreIsolated(t *testing.T) {
	l := New(1, 1, WithClock(newClock().Now))
	require.NoError(t, l.Admit("a"))
	require.Error(t, l.Admit("a"))
	require.NoError(t, l.Admit("b"))
}

func TestUsageDoesNotCount(t *testing.T) {
	clock := newClock()
	l := New(10, 5, WithClock(clock.Now))

	u := l.Usage(fp)
	assert.Equal(t, Usage{DailyLimit: 10, HourlyLimit: 5, DailyRemaining: 10, HourlyRemaining: 5}, u)

	require.NoError(t, l.Admit(fp))
	for i := 0; i < 3; i++ {
		u = l.Usage(fp)
	}
	assert.Equal(t, 1, u.DailyCount)
	assert.Equal(t, 9, u.DailyRemaining)
	assert.Equal(t, 4, u.HourlyRemaining)

	clock.Advance(time.Hour)
	u = l.Usage(fp)
	assert.Equal(t, 0, u.HourlyCount)
	assert.Equal(t, 1, u.DailyCount)
}

func TestOnlyCurrentBucketRetained(t *testing.T) {
	clock := newClock()
	l := New(100, 100, WithClock(clock.Now))
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Admit(fp))
		clock.Advance(time.Hour)
	}
	c := l.clients[fp]
	assert.Equal(t, clock.Now().Add(-time.Hour).Format(hourLayout), c.hour.key)
	assert.Equal(t, 1, c.hour.count)
}

func TestStaleFingerprintsAreForgotten(t *testing.T) {
	clock := newClock()
	l := New(100, 100, WithClock(clock.Now))
	for _, f := range []string{"a", "b", "c"} {
		require.NoError(t, l.Admit(f))
	}
	clock.Advance(time.Hour)
	require.NoError(t, l.Admit("a"))
	assert.Len(t, l.clients, 3, "same-day fingerprints are kept")

	clock.Advance(24 * time.Hour)
	require.NoError(t, l.Admit(fp))
	assert.Len(t, l.clients, 1)
	assert.Contains(t, l.clients, fp)
	assert.Equal(t, 0, l.Usage("a").DailyCount)
}

func TestUsageDropsEmptyFingerprint(t *testing.T) {
	clock := newClock()
	l := New(100, 100, WithClock(clock.Now))
	l.Usage(fp)
	assert.Empty(t, l.clients)

	require.NoError(t, l.Admit(fp))
	clock.Advance(24 * time.Hour)
	assert.Equal(t, 0, l.Usage(fp).DailyCount)
	assert.Empty(t, l.clients)
}

func TestAdmitConcurrent(t *testing.T) {
	l := New(1000, 40, WithClock(newClock().Now))

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Admit(fp) == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 40, admitted)
}

func TestNewAppliesDefaults(t *testing.T) {
	d, h := New(0, -1).Limits()
	assert.Equal(t, DefaultDailyLimit, d)
	assert.Equal(t, DefaultHourlyLimit, h)
}
