package batch

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/kipindi/core"
	"github.com/trezcool/kipindi/core/attendance"
	"github.com/trezcool/kipindi/core/student"
)

const (
	defaultWorkers        = 8
	defaultStudentTimeout = 30 * time.Second

	// weeklyDays is how many days before today the weekly job re-aggregates.
	weeklyDays = 7
	// maxReportedErrors bounds the failures listed in a report email.
	maxReportedErrors = 50
)

// Engine computes summaries and streaks. attendance.Service implements it.
type Engine interface {
	CalculateDays(ctx context.Context, studentID string, from, to time.Time) error
	GetStreak(ctx context.Context, studentID string) (int, error)
	Today() time.Time
}

var _ Engine = (*attendance.Service)(nil)

// Runner runs recalculation jobs over every active student, with a bounded number of workers.
// A failing student never aborts a run: the error is recorded in the BatchReport.
type Runner struct {
	students   student.Directory
	engine     Engine
	logger     core.Logger
	mailSvc    core.EmailService // optional
	recipients []mail.Address
	workers    int
	timeout    time.Duration
	nowFunc    func() time.Time
}

func NewRunner(students student.Directory, engine Engine, logger core.Logger, mailSvc core.EmailService, conf *core.Config) *Runner {
	vala.BeginValidation().Validate(
		vala.IsNotNil(students, "students"),
		vala.IsNotNil(engine, "engine"),
		vala.IsNotNil(logger, "logger"),
		vala.IsNotNil(conf, "conf"),
	).CheckAndPanic()

	r := &Runner{
		students:   students,
		engine:     engine,
		logger:     logger,
		mailSvc:    mailSvc,
		recipients: core.ParseAddresses(conf.Batch.ReportRecipients),
		workers:    conf.Batch.Workers,
		timeout:    conf.Batch.StudentTimeout,
		nowFunc:    time.Now,
	}
	if r.workers <= 0 {
		r.workers = defaultWorkers
	}
	if r.timeout <= 0 {
		r.timeout = defaultStudentTimeout
	}
	return r
}

// RunDaily recomputes yesterday (late markings) and today, then the streak, of every active student.
func (r *Runner) RunDaily(ctx context.Context) (BatchReport, error) {
	today := r.engine.Today()
	yesterday := attendance.AddDays(today, -1)
	return r.run(ctx, JobDaily, yesterday, today, func(ctx context.Context, stu student.Student) error {
		if err := r.calculateDays(ctx, stu, yesterday, today); err != nil {
			return err
		}
		return r.streak(ctx, stu)
	})
}

// RunWeekly re-aggregates the 7 days before today of every active student,
// picking up backfilled or corrected records.
func (r *Runner) RunWeekly(ctx context.Context) (BatchReport, error) {
	today := r.engine.Today()
	from, to := attendance.AddDays(today, -weeklyDays), attendance.AddDays(today, -1)
	return r.run(ctx, JobWeekly, from, to, func(ctx context.Context, stu student.Student) error {
		return r.calculateDays(ctx, stu, from, to)
	})
}

// RunRange recomputes every day of [start, end] then the streak, of every active student.
func (r *Runner) RunRange(ctx context.Context, start, end time.Time) (BatchReport, error) {
	start, end = attendance.Day(start, nil), attendance.Day(end, nil)
	if err := attendance.ValidateRange(start, end); err != nil {
		return newReport(JobRange, start, end, r.nowFunc()), err
	}
	return r.run(ctx, JobRange, start, end, func(ctx context.Context, stu student.Student) error {
		if err := r.calculateDays(ctx, stu, start, end); err != nil {
			return err
		}
		return r.streak(ctx, stu)
	})
}

func (r *Runner) calculateDays(ctx context.Context, stu student.Student, from, to time.Time) error {
	return r.engine.CalculateDays(ctx, stu.ID, from, to)
}

func (r *Runner) streak(ctx context.Context, stu student.Student) error {
	n, err := r.engine.GetStreak(ctx, stu.ID)
	if err != nil {
		return errors.Wrap(err, "computing streak")
	}
	r.logger.Debug(fmt.Sprintf("student %s streak: %d", stu.ID, n))
	return nil
}

func (r *Runner) run(
	ctx context.Context,
	job Job,
	from, to time.Time,
	work func(ctx context.Context, stu student.Student) error,
) (BatchReport, error) {
	report := newReport(job, from, to, r.nowFunc())

	students, err := r.students.ListActiveStudents(ctx)
	if err != nil {
		report.FinishedAt = r.nowFunc().UTC()
		return report, errors.Wrap(err, "listing active students")
	}
	report.Students = len(students)
	r.logger.Info(fmt.Sprintf("%s recalculation %s started for %d students", job, report.RunID, len(students)))

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(r.workers)
	for _, stu := range students {
		if ctx.Err() != nil {
			break
		}
		stu := stu
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			stuCtx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()

			err := work(stuCtx, stu)
			if err != nil {
				r.logger.Error(fmt.Sprintf("%s recalculation failed for student %s: %v", job, stu.ID, err), err, stu)
			}
			mu.Lock()
			report.record(stu, err)
			mu.Unlock()
			return nil // never abort the group
		})
	}
	_ = g.Wait()

	report.FinishedAt = r.nowFunc().UTC()
	if ctx.Err() != nil {
		report.Cancelled = true
		r.logger.Warn(report.Summary())
		return report, errors.Wrapf(ctx.Err(), "%s recalculation cancelled", job)
	}

	r.logger.Info(report.Summary())
	r.notify(report)
	return report, nil
}

// notify mails the operators about failed students.
func (r *Runner) notify(report BatchReport) {
	if report.ErrorCount == 0 || r.mailSvc == nil || len(r.recipients) == 0 {
		return
	}

	var body strings.Builder
	body.WriteString(report.Summary())
	body.WriteString("\n\nFailed students:\n")
	for i, e := range report.Errors {
		if i == maxReportedErrors {
			fmt.Fprintf(&body, "... and %d more\n", len(report.Errors)-maxReportedErrors)
			break
		}
		fmt.Fprintf(&body, "- %s: %s\n", e.StudentID, e.Message)
	}

	r.mailSvc.SendMessages(&core.EmailMessage{
		To:      r.recipients,
		Subject: fmt.Sprintf("%s attendance recalculation: %d errors", report.Job, report.ErrorCount),
		Body:    body.String(),
	})
}
