// Package scheduler runs the two daily cycles on exchange time: entry at
// 9:32 and exit at 11:30 America/New_York, weekdays that are not US
// market holidays.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"condortrader/internal/calendar"
	"condortrader/internal/config"
)

// Jobs are the engine operations the scheduler drives.
type Jobs interface {
	RunEntryCycle(ctx context.Context)
	RunExitCycle(ctx context.Context)
}

type Scheduler struct {
	cron    *cron.Cron
	jobs    Jobs
	logger  *zap.Logger
	cfg     config.ScheduleConfig
	loc     *time.Location
	baseCtx context.Context

	entryID cron.EntryID
	exitID  cron.EntryID
	paused  atomic.Bool
	running atomic.Bool
}

func New(jobs Jobs, cfg config.ScheduleConfig, logger *zap.Logger, baseCtx context.Context) (*Scheduler, error) {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	tz := cfg.Timezone
	if tz == "" {
		tz = "America/New_York"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		jobs:    jobs,
		logger:  logger,
		cfg:     cfg,
		loc:     loc,
		baseCtx: baseCtx,
	}
	s.cron = cron.New(
		cron.WithSeconds(),
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	s.entryID, err = s.cron.AddFunc(cronSpec(cfg.EntryHour, cfg.EntryMinute), func() {
		s.runGuarded("entry", s.jobs.RunEntryCycle)
	})
	if err != nil {
		return nil, err
	}
	s.exitID, err = s.cron.AddFunc(cronSpec(cfg.ExitHour, cfg.ExitMinute), func() {
		s.runGuarded("exit", s.jobs.RunExitCycle)
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// cronSpec fires once a day at the given wall time, Monday to Friday.
// Holidays are filtered at run time since they change year to year.
func cronSpec(hour, minute int) string {
	return fmt.Sprintf("0 %d %d * * MON-FRI", minute, hour)
}

// runGuarded applies the trading-day gate and the pause switch, and
// keeps panics inside the job from killing the cron goroutine.
func (s *Scheduler) runGuarded(name string, job func(context.Context)) {
	if s.paused.Load() {
		if s.logger != nil {
			s.logger.Info("scheduler paused, skipping cycle", zap.String("job", name))
		}
		return
	}
	today := time.Now().In(s.loc)
	if !calendar.IsTradingDay(today) {
		if s.logger != nil {
			s.logger.Info("not a trading day, skipping cycle",
				zap.String("job", name),
				zap.String("date", today.Format("2006-01-02")),
			)
		}
		return
	}

	defer func() {
		if r := recover(); r != nil && s.logger != nil {
			s.logger.Error("scheduled cycle panicked", zap.String("job", name), zap.Any("panic", r))
		}
	}()

	if s.logger != nil {
		s.logger.Info("running scheduled cycle", zap.String("job", name))
	}
	job(s.baseCtx)
}

func (s *Scheduler) Start() {
	s.running.Store(true)
	if s.logger != nil {
		s.logger.Info("scheduler started",
			zap.String("timezone", s.loc.String()),
			zap.String("entry", cronSpec(s.cfg.EntryHour, s.cfg.EntryMinute)),
			zap.String("exit", cronSpec(s.cfg.ExitHour, s.cfg.ExitMinute)),
		)
	}
	s.cron.Start()
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running.Store(false)
	if s.logger != nil {
		s.logger.Info("scheduler stopped")
	}
}

// Pause keeps the cron entries registered but skips both cycles until
// Resume. Pausing twice is harmless.
func (s *Scheduler) Pause() {
	s.paused.Store(true)
	if s.logger != nil {
		s.logger.Info("scheduler paused")
	}
}

func (s *Scheduler) Resume() {
	s.paused.Store(false)
	if s.logger != nil {
		s.logger.Info("scheduler resumed")
	}
}

func (s *Scheduler) Paused() bool  { return s.paused.Load() }
func (s *Scheduler) Running() bool { return s.running.Load() }

// NextRuns reports the next scheduled fire times for the entry and exit
// jobs. Zero times before Start.
func (s *Scheduler) NextRuns() (entry, exit time.Time) {
	for _, e := range s.cron.Entries() {
		switch e.ID {
		case s.entryID:
			entry = e.Next
		case s.exitID:
			exit = e.Next
		}
	}
	return entry, exit
}
