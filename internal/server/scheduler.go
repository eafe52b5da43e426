package server

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"
)

const purgeLockKey = "olexi:sched:purge"

// Purger deletes history older than a cutoff.
type Purger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Scheduler purges expired research history on a cron schedule. When Rdb
// is set, a short redis lock keeps replicas from purging concurrently.
type Scheduler struct {
	Store     Purger
	Schedule  string
	Retention time.Duration
	Interval  time.Duration
	Rdb       *redis.Client
	Logger    *log.Logger
	Stop      chan struct{}

	now  func() time.Time
	last time.Time
}

func (s *Scheduler) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func (s *Scheduler) Start() {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-s.Stop:
				ticker.Stop()
				return
			case <-ticker.C:
				s.tick(context.Background())
			}
		}
	}()
}

// tick runs one purge when the schedule says it is due.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.clock()
	if !isDue(s.Schedule, s.last, now) {
		return
	}
	if s.Rdb != nil {
		ok, err := s.Rdb.SetNX(ctx, purgeLockKey, "1", 2*time.Minute).Result()
		if err != nil || !ok {
			return
		}
		defer s.Rdb.Del(ctx, purgeLockKey)
	}
	s.last = now
	n, err := s.Store.PurgeBefore(ctx, now.Add(-s.Retention))
	if err != nil {
		s.Logger.Printf("purge failed: %v", err)
		return
	}
	if n > 0 {
		s.Logger.Printf("purged %d research sessions older than %s", n, s.Retention)
	}
}

// isDue reports whether schedule has fired since last. A zero last is always due.
func isDue(schedule string, last, now time.Time) bool {
	if schedule == "" {
		return false
	}
	if last.IsZero() {
		return true
	}
	expr, err := cronexpr.Parse(schedule)
	if err != nil {
		return false
	}
	next := expr.Next(last)
	return !next.IsZero() && !next.After(now)
}
