package attendance

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/kipindi/core"
	"github.com/trezcool/kipindi/core/student"
)

// Service computes daily attendance summaries, streaks and stats.
// It is the only writer of DailySummary documents.
type Service struct {
	students  student.Directory
	records   RecordSource
	summaries SummaryRepository
	logger    core.Logger
	loc       *time.Location
	locks     *keyLocks
	nowFunc   func() time.Time
}

func NewService(
	students student.Directory,
	records RecordSource,
	summaries SummaryRepository,
	logger core.Logger,
	conf *core.Config,
) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(students, "students"),
		vala.IsNotNil(records, "records"),
		vala.IsNotNil(summaries, "summaries"),
		vala.IsNotNil(logger, "logger"),
		vala.IsNotNil(conf, "conf"),
	).CheckAndPanic()

	loc := conf.TimeZone
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		students:  students,
		records:   records,
		summaries: summaries,
		logger:    logger,
		loc:       loc,
		locks:     newKeyLocks(),
		nowFunc:   time.Now,
	}
}

// SetNowFunc replaces the clock of the service. Tests only.
func (svc *Service) SetNowFunc(now func() time.Time) {
	svc.nowFunc = now
}

// Today returns the current calendar day in the school's time zone.
func (svc *Service) Today() time.Time {
	return Day(svc.nowFunc(), svc.loc)
}

// resolveStudent fails with a NotFoundError for unknown or inactive students.
func (svc *Service) resolveStudent(ctx context.Context, studentID string) (student.Student, error) {
	stu, err := svc.students.GetStudent(ctx, studentID)
	if err != nil {
		return student.Student{}, errors.Wrap(err, "resolving student")
	}
	if !stu.IsActive {
		return student.Student{}, student.NotFound(studentID)
	}
	return stu, nil
}

// Calculate (re)computes the summary of a student for a calendar day from the raw records,
// and upserts it.
func (svc *Service) Calculate(ctx context.Context, studentID string, date time.Time) (DailySummary, error) {
	if _, err := svc.resolveStudent(ctx, studentID); err != nil {
		return DailySummary{}, err
	}
	return svc.calculate(ctx, studentID, Day(date, nil))
}

// CalculateDays (re)computes the summaries of a student for every day of [from, to], oldest first.
func (svc *Service) CalculateDays(ctx context.Context, studentID string, from, to time.Time) error {
	if _, err := svc.resolveStudent(ctx, studentID); err != nil {
		return err
	}
	for _, day := range DaysInRange(Day(from, nil), Day(to, nil)) {
		if _, err := svc.calculate(ctx, studentID, day); err != nil {
			return errors.Wrapf(err, "calculating %s", FormatDate(day))
		}
	}
	return nil
}

// calculate holds the in-process lock of the key, then the store's own lock if it has one,
// from the raw read to the upsert.
func (svc *Service) calculate(ctx context.Context, studentID string, day time.Time) (DailySummary, error) {
	unlock := svc.locks.lock(keyOf(studentID, day))
	defer unlock()

	var saved DailySummary
	err := svc.withStoreLock(ctx, studentID, day, func(records RecordSource, summaries SummaryRepository) error {
		found, err := records.FindRecordsForStudentOnDate(ctx, studentID, day)
		if err != nil {
			return errors.Wrapf(err, "finding attendance records of %s", FormatDate(day))
		}

		summary := svc.aggregate(studentID, day, found)
		summary.LastUpdated = svc.nowFunc().UTC()
		if err = summary.Check(); err != nil {
			return err
		}

		if saved, err = summaries.UpsertSummary(ctx, summary); err != nil {
			return errors.Wrapf(err, "saving daily summary of %s", FormatDate(day))
		}
		return nil
	})
	if err != nil {
		return DailySummary{}, err
	}
	return saved, nil
}

func (svc *Service) withStoreLock(
	ctx context.Context,
	studentID string,
	day time.Time,
	fn func(records RecordSource, summaries SummaryRepository) error,
) error {
	if locker, ok := svc.summaries.(KeyLocker); ok {
		return locker.WithKeyLock(ctx, studentID, day, fn)
	}
	return fn(svc.records, svc.summaries)
}

// aggregate fills the hour slots of a fresh summary from the records mentioning the student.
// Records are applied oldest submission first, so the latest marking of an hour wins.
func (svc *Service) aggregate(studentID string, day time.Time, records []RawRecord) DailySummary {
	summary := newSummary(studentID, day)

	sorted := make([]RawRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].MarkedAt.Equal(sorted[j].MarkedAt) {
			return sorted[i].MarkedAt.Before(sorted[j].MarkedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	for _, rec := range sorted {
		entry, ok := rec.EntryFor(studentID)
		if !ok {
			continue
		}
		if rec.Hour < 1 || rec.Hour > TotalHours {
			svc.logger.Warn(fmt.Sprintf("attendance record %s has invalid hour %d; skipped", rec.ID, rec.Hour))
			continue
		}
		status, ok := entry.Status.SlotStatus()
		if !ok {
			svc.logger.Warn(fmt.Sprintf("attendance record %s has unknown status %q for student %s; skipped", rec.ID, entry.Status, studentID))
			continue
		}
		summary.HourlyAttendance[rec.Hour-1] = HourSlot{
			Hour:      rec.Hour,
			Status:    status,
			SubjectID: rec.SubjectID,
			MarkedBy:  rec.MarkedBy,
			MarkedAt:  rec.MarkedAt.UTC(),
		}
	}

	summary.tally()
	return summary
}

// GetSummary returns the stored summary of a student for a calendar day,
// computing and storing it first if it does not exist yet.
func (svc *Service) GetSummary(ctx context.Context, studentID string, date time.Time) (DailySummary, error) {
	if _, err := svc.resolveStudent(ctx, studentID); err != nil {
		return DailySummary{}, err
	}
	return svc.readThrough(ctx, studentID, Day(date, nil))
}

func (svc *Service) readThrough(ctx context.Context, studentID string, day time.Time) (DailySummary, error) {
	summary, err := svc.summaries.GetSummary(ctx, studentID, day)
	switch {
	case err == nil:
		return summary, nil
	case errors.Cause(err) == ErrSummaryNotFound:
		return svc.calculate(ctx, studentID, day)
	default:
		return DailySummary{}, errors.Wrapf(err, "reading daily summary of %s", FormatDate(day))
	}
}
