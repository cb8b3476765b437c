package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/trezcool/kipindi/core"
)

// Scheduler owns the cron triggers of the recalculation jobs.
// It is built and torn down by the process owner: Start, then Stop on shutdown.
type Scheduler struct {
	runner *Runner
	logger core.Logger
	cron   *cron.Cron
	ids    map[Job]cron.EntryID

	// scheduled runs derive their context from ctx; Stop cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.RWMutex
	last map[Job]BatchReport
}

func NewScheduler(runner *Runner, logger core.Logger, conf *core.Config) (*Scheduler, error) {
	vala.BeginValidation().Validate(
		vala.IsNotNil(runner, "runner"),
		vala.IsNotNil(logger, "logger"),
		vala.IsNotNil(conf, "conf"),
	).CheckAndPanic()

	loc := conf.TimeZone
	if loc == nil {
		loc = time.UTC
	}
	cl := cronLogger{logger: logger}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		runner: runner,
		logger: logger,
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		ids:    make(map[Job]cron.EntryID, 2),
		ctx:    ctx,
		cancel: cancel,
		last:   make(map[Job]BatchReport),
	}

	schedules := []struct {
		job      Job
		schedule string
		run      func(context.Context) (BatchReport, error)
	}{
		{job: JobDaily, schedule: conf.Batch.DailySchedule, run: runner.RunDaily},
		{job: JobWeekly, schedule: conf.Batch.WeeklySchedule, run: runner.RunWeekly},
	}
	for _, sch := range schedules {
		id, err := s.cron.AddJob(sch.schedule, s.scheduledJob(sch.job, sch.run))
		if err != nil {
			cancel()
			return nil, errors.Wrapf(err, "scheduling %s recalculation (%q)", sch.job, sch.schedule)
		}
		s.ids[sch.job] = id
	}
	return s, nil
}

func (s *Scheduler) scheduledJob(job Job, run func(context.Context) (BatchReport, error)) cron.Job {
	return cron.FuncJob(func() {
		report, err := run(s.ctx)
		s.remember(report)
		if err != nil {
			s.logger.Error(fmt.Sprintf("scheduled %s recalculation failed: %v", job, err), err)
		}
	})
}

// Start starts the cron triggers in their own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	for job, next := range s.NextRuns() {
		s.logger.Info(fmt.Sprintf("%s recalculation scheduled, next run at %s", job, next.Format(time.RFC3339)))
	}
}

// Stop stops the triggers and cancels running jobs.
// The returned context is done once the running jobs have returned.
func (s *Scheduler) Stop() context.Context {
	s.cancel()
	return s.cron.Stop()
}

// NextRuns returns the next activation of each scheduled job (zero if the scheduler is not started).
func (s *Scheduler) NextRuns() map[Job]time.Time {
	next := make(map[Job]time.Time, len(s.ids))
	for job, id := range s.ids {
		next[job] = s.cron.Entry(id).Next
	}
	return next
}

// TriggerDailyCalculation runs the daily job now and waits for its report.
func (s *Scheduler) TriggerDailyCalculation(ctx context.Context) (BatchReport, error) {
	report, err := s.runner.RunDaily(ctx)
	s.remember(report)
	return report, err
}

// TriggerWeeklyCalculation runs the weekly job now and waits for its report.
func (s *Scheduler) TriggerWeeklyCalculation(ctx context.Context) (BatchReport, error) {
	report, err := s.runner.RunWeekly(ctx)
	s.remember(report)
	return report, err
}

// TriggerDateRangeCalculation recomputes [start, end] for every active student and waits for the report.
func (s *Scheduler) TriggerDateRangeCalculation(ctx context.Context, start, end time.Time) (BatchReport, error) {
	report, err := s.runner.RunRange(ctx, start, end)
	if !core.IsValidation(err) {
		s.remember(report)
	}
	return report, err
}

func (s *Scheduler) remember(report BatchReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[report.Job] = report
}

// LastReport returns the report of the last run of a job.
func (s *Scheduler) LastReport(job Job) (BatchReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	report, ok := s.last[job]
	return report, ok
}

// cronLogger adapts core.Logger to cron.Logger.
type cronLogger struct {
	logger core.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(formatCronMsg(msg, keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(formatCronMsg(msg, keysAndValues), err)
}

func formatCronMsg(msg string, keysAndValues []interface{}) string {
	out := "cron: " + msg
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		out += fmt.Sprintf(" %v=%v", keysAndValues[i], keysAndValues[i+1])
	}
	return out
}
