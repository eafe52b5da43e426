// Package ratelimit admits or rejects requests per client fingerprint using a
// calendar-day window and a calendar-hour window. Only the current bucket of
// each window is retained, so memory is bounded by the number of active
// fingerprints rather than by history.
package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	DefaultDailyLimit  = 50
	DefaultHourlyLimit = 10

	dayLayout  = "2006-01-02"
	hourLayout = "2006-01-02-15"
)

// Kind names the window that rejected a request.
type Kind string

const (
	KindDaily  Kind = "daily"
	KindHourly Kind = "hourly"
)

// ErrRateLimited is matched by every *LimitError.
var ErrRateLimited = errors.New("rate limited")

// LimitError reports which window rejected the request and its ceiling.
type LimitError struct {
	Kind  Kind
	Limit int
}

func (e *LimitError) Error() string {
	switch e.Kind {
	case KindDaily:
		return fmt.Sprintf("Daily limit exceeded. Max %d requests per day.", e.Limit)
	default:
		return fmt.Sprintf("Hourly limit exceeded. Max %d requests per hour.", e.Limit)
	}
}

func (e *LimitError) Is(target error) bool { return target == ErrRateLimited }

// Usage is a diagnostic snapshot for one fingerprint.
type Usage struct {
	DailyCount      int `json:"daily_count"`
	DailyLimit      int `json:"daily_limit"`
	HourlyCount     int `json:"hourly_count"`
	HourlyLimit     int `json:"hourly_limit"`
	DailyRemaining  int `json:"daily_remaining"`
	HourlyRemaining int `json:"hourly_remaining"`
}

// bucket is the single live counter of a window: key is the bucket id.
type bucket struct {
	key   string
	count int
}

type counters struct {
	day  bucket
	hour bucket
}

// Limiter is safe for concurrent use. One mutex guards every fingerprint;
// hold time is a couple of map operations.
type Limiter struct {
	daily  int
	hourly int
	now    func() time.Time

	mu      sync.Mutex
	clients map[string]*counters
	// swept is the day key of the last sweep of clients.
	swept string
}

// Option customises a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New builds a Limiter. Non-positive ceilings fall back to the defaults.
func New(daily, hourly int, opts ...Option) *Limiter {
	if daily <= 0 {
		daily = DefaultDailyLimit
	}
	if hourly <= 0 {
		hourly = DefaultHourlyLimit
	}
	l := &Limiter{
		daily:   daily,
		hourly:  hourly,
		now:     time.Now,
		clients: make(map[string]*counters),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Admit counts one request for fingerprint or rejects it with a *LimitError.
// A request arriving when a window is already at its ceiling is rejected and
// not counted.
func (l *Limiter) Admit(fingerprint string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)
	c := l.current(fingerprint, now)
	if c.day.count >= l.daily {
		return &LimitError{Kind: KindDaily, Limit: l.daily}
	}
	if c.hour.count >= l.hourly {
		return &LimitError{Kind: KindHourly, Limit: l.hourly}
	}
	c.day.count++
	c.hour.count++
	return nil
}

// Usage returns current counts without counting a request. Stale buckets are
// still rotated out so a read after the hour or day changes sees zero.
func (l *Limiter) Usage(fingerprint string) Usage {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)
	var day, hour int
	if c, ok := l.clients[fingerprint]; ok {
		l.rotate(c, now)
		day, hour = c.day.count, c.hour.count
		if day == 0 && hour == 0 {
			delete(l.clients, fingerprint)
		}
	}
	return Usage{
		DailyCount:      day,
		DailyLimit:      l.daily,
		HourlyCount:     hour,
		HourlyLimit:     l.hourly,
		DailyRemaining:  max(0, l.daily-day),
		HourlyRemaining: max(0, l.hourly-hour),
	}
}

// Limits returns the configured daily and hourly ceilings.
func (l *Limiter) Limits() (daily, hourly int) { return l.daily, l.hourly }

// current returns the fingerprint's counters with stale buckets dropped.
// Caller holds l.mu.
func (l *Limiter) current(fingerprint string, now time.Time) *counters {
	c, ok := l.clients[fingerprint]
	if !ok {
		c = &counters{}
		l.clients[fingerprint] = c
	}
	l.rotate(c, now)
	return c
}

// sweep forgets every fingerprint whose day bucket is stale; both of its
// counts would read zero anyway. It runs once per calendar day. Caller holds
// l.mu.
func (l *Limiter) sweep(now time.Time) {
	dk := now.Format(dayLayout)
	if l.swept == dk {
		return
	}
	l.swept = dk
	for fingerprint, c := range l.clients {
		if c.day.key != dk {
			delete(l.clients, fingerprint)
		}
	}
}

// rotate resets any bucket whose key is not the current one. Caller holds l.mu.
func (l *Limiter) rotate(c *counters, now time.Time) {
	if dk := now.Format(dayLayout); c.day.key != dk {
		c.day = bucket{key: dk}
	}
	if hk := now.Format(hourLayout); c.hour.key != hk {
		c.hour = bucket{key: hk}
	}
}
