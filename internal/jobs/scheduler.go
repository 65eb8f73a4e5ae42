// Package jobs runs famboard's background work on a cron schedule: the
// nightly streak reset and periodic housekeeping.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const cleanupSpec = "@hourly"

type StreakResetter interface {
	ResetStaleStreaks(cutoff time.Time) (int64, error)
}

type Cleaner interface {
	Cleanup() int
}

type Scheduler struct {
	cron    *cron.Cron
	loc     *time.Location
	streaks StreakResetter
	limiter Cleaner
	logger  *slog.Logger
	now     func() time.Time
}

// NewScheduler registers the streak reset on streakSpec and the rate limiter
// cleanup hourly, both evaluated in loc.
func NewScheduler(loc *time.Location, streakSpec string, streaks StreakResetter, limiter Cleaner, logger *slog.Logger) (*Scheduler, error) {
	cl := cronLogger{logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		loc:     loc,
		streaks: streaks,
		limiter: limiter,
		logger:  logger,
		now:     time.Now,
	}

	if _, err := s.cron.AddFunc(streakSpec, func() { s.ResetStreaks() }); err != nil {
		return nil, fmt.Errorf("schedule streak reset: %w", err)
	}
	if limiter != nil {
		if _, err := s.cron.AddFunc(cleanupSpec, s.cleanup); err != nil {
			return nil, fmt.Errorf("schedule cleanup: %w", err)
		}
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "location", s.loc.String(), "jobs", len(s.cron.Entries()))
}

// Stop waits for running jobs or until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
	s.logger.Info("scheduler stopped")
}

// StreakCutoff returns the start of the local day before now. A member whose
// last completion is earlier missed that whole day.
func StreakCutoff(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	y, m, d := local.Date()
	return time.Date(y, m, d-1, 0, 0, 0, 0, loc)
}

// ResetStreaks clears the streak of every member who completed nothing on
// the previous local day.
func (s *Scheduler) ResetStreaks() (int64, error) {
	cutoff := StreakCutoff(s.now(), s.loc)
	n, err := s.streaks.ResetStaleStreaks(cutoff)
	if err != nil {
		s.logger.Error("streak reset", "cutoff", cutoff, "error", err)
		return 0, err
	}
	s.logger.Info("streak reset", "cutoff", cutoff, "members", n)
	return n, nil
}

func (s *Scheduler) cleanup() {
	if n := s.limiter.Cleanup(); n > 0 {
		s.logger.Debug("rate limiter cleanup", "removed", n)
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
