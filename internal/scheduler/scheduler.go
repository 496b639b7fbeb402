// Package scheduler wires the daily jobs onto gocron.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"

	"ourmate-bot/internal/birthday"
	"ourmate-bot/internal/config"
)

type Birthdays interface {
	DailyRun(ctx context.Context, now time.Time)
	RefreshOptIn(ctx context.Context) birthday.Delta
}

type Schedule interface {
	Reload(now time.Time)
	Maintain(ctx context.Context, today time.Time) error
	DailyNotice(ctx context.Context, today time.Time) error
}

type Times struct {
	Greeting      config.AtClock
	OptIn         config.AtClock
	Notice        config.AtClock
	Pinned        config.AtClock
	PinnedEnabled bool
}

// Start registers every job and starts the scheduler. Each job runs in
// singleton mode so a slow run is never overlapped by the next trigger.
// The greeting catches up at start when today's send time has passed; the
// pinned summary is refreshed at start unconditionally.
func Start(ctx context.Context, t Times, b Birthdays, s Schedule, loc *time.Location, clock clockwork.Clock, log *slog.Logger) (gocron.Scheduler, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	log = log.With("component", "scheduler")

	sch, err := gocron.NewScheduler(
		gocron.WithLocation(loc),
		gocron.WithClock(clock),
		gocron.WithLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("new scheduler: %w", err)
	}

	now := clock.Now().In(loc)
	jobs := []struct {
		name    string
		at      config.AtClock
		enabled bool
		atStart bool
		run     func()
	}{
		{"greeting", t.Greeting, true, passed(now, t.Greeting), func() {
			b.DailyRun(ctx, clock.Now().In(loc))
		}},
		{"optin_refresh", t.OptIn, true, false, func() {
			b.RefreshOptIn(ctx)
		}},
		{"schedule_notice", t.Notice, true, false, func() {
			if err := s.DailyNotice(ctx, clock.Now().In(loc)); err != nil {
				log.Error("schedule notice", "error", err)
			}
		}},
		{"pinned_refresh", t.Pinned, t.PinnedEnabled, true, func() {
			now := clock.Now().In(loc)
			s.Reload(now)
			if err := s.Maintain(ctx, now); err != nil {
				log.Error("pinned refresh", "error", err)
			}
		}},
	}

	for _, j := range jobs {
		if !j.enabled {
			log.Info("job disabled", "job", j.name)
			continue
		}
		opts := []gocron.JobOption{
			gocron.WithName(j.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		}
		if j.atStart {
			opts = append(opts, gocron.WithStartAt(gocron.WithStartImmediately()))
		}
		_, err := sch.NewJob(
			gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(uint(j.at.Hour), uint(j.at.Minute), 0))),
			gocron.NewTask(j.run),
			opts...,
		)
		if err != nil {
			return nil, fmt.Errorf("register %s: %w", j.name, err)
		}
		log.Info("job scheduled", "job", j.name, "at", j.at.String(), "at_start", j.atStart)
	}

	sch.Start()
	return sch, nil
}

// passed reports whether today's at has already gone by.
func passed(now time.Time, at config.AtClock) bool {
	t := time.Date(now.Year(), now.Month(), now.Day(), at.Hour, at.Minute, 0, 0, now.Location())
	return !now.Before(t)
}
