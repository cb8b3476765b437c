package attendance

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	// TotalHours is the number of teaching periods in a school day.
	TotalHours = 6

	// StreakChainCap bounds a streak chain, the anchor day included.
	StreakChainCap = 7
	// StreakSearchWindow is how many days before today the fallback branch may look at.
	StreakSearchWindow = 30

	// MaxRangeDays bounds administrative range recalculations.
	MaxRangeDays = 366
	// StatsMaxWindow bounds GetStats windows.
	StatsMaxWindow = 366
)

var (
	// ErrSummaryNotFound is returned by a SummaryRepository when no summary exists for a key.
	ErrSummaryNotFound = errors.New("daily summary not found")

	errInvalidSummary = errors.New("invalid daily summary")
)

// Status of a student for one hour slot of a DailySummary.
type Status string

const (
	StatusPresent   Status = "present"
	StatusAbsent    Status = "absent"
	StatusNotMarked Status = "not_marked"
)

// RawStatus is a status as submitted by the staff member who marked the hour.
type RawStatus string

const (
	RawPresent RawStatus = "present"
	RawAbsent  RawStatus = "absent"
	RawLate    RawStatus = "late"
)

// SlotStatus maps a submitted status to the status stored in a summary.
// A late student attended the hour. Unknown statuses report ok=false.
func (rs RawStatus) SlotStatus() (st Status, ok bool) {
	switch rs {
	case RawPresent, RawLate:
		return StatusPresent, true
	case RawAbsent:
		return StatusAbsent, true
	}
	return StatusNotMarked, false
}

type (
	// RawRecord is one attendance submission: one hour, one subject, one section, many students.
	// Records are owned by the portal; this package only reads them.
	RawRecord struct {
		ID         string     `json:"id"`
		Date       time.Time  `json:"date"`
		Hour       int        `json:"hour"`
		SubjectID  string     `json:"subject_id"`
		Section    string     `json:"section"`
		Department string     `json:"department"`
		MarkedBy   string     `json:"marked_by"`
		MarkedAt   time.Time  `json:"marked_at"` // UTC
		Entries    []RawEntry `json:"entries"`
	}

	RawEntry struct {
		StudentID string    `json:"student_id"`
		Status    RawStatus `json:"status"`
	}
)

// EntryFor returns the entry of the given student, if the record mentions them.
func (r RawRecord) EntryFor(studentID string) (RawEntry, bool) {
	for _, e := range r.Entries {
		if e.StudentID == studentID {
			return e, true
		}
	}
	return RawEntry{}, false
}

type (
	HourSlot struct {
		Hour      int       `json:"hour"`
		Status    Status    `json:"status"`
		SubjectID string    `json:"subject_id,omitempty"`
		MarkedBy  string    `json:"marked_by,omitempty"`
		MarkedAt  time.Time `json:"marked_at,omitempty"` // UTC
	}

	// DailySummary is the per student, per calendar day aggregate of the raw hourly records.
	// There is exactly one per (StudentID, Date).
	DailySummary struct {
		StudentID         string               `json:"student_id"`
		Date              time.Time            `json:"date"`
		TotalHours        int                  `json:"total_hours"`
		HourlyAttendance  [TotalHours]HourSlot `json:"hourly_attendance"`
		AttendedHours     int                  `json:"attended_hours"`
		AbsentHours       int                  `json:"absent_hours"`
		NotMarkedHours    int                  `json:"not_marked_hours"`
		FullDayAttendance bool                 `json:"full_day_attendance"`
		LastUpdated       time.Time            `json:"last_updated"` // UTC
	}
)

// newSummary returns a summary with every hour not marked.
func newSummary(studentID string, date time.Time) DailySummary {
	s := DailySummary{
		StudentID:  studentID,
		Date:       date,
		TotalHours: TotalHours,
	}
	for i := range s.HourlyAttendance {
		s.HourlyAttendance[i] = HourSlot{Hour: i + 1, Status: StatusNotMarked}
	}
	return s
}

// tally derives the counters and the full day flag from the hour slots.
func (s *DailySummary) tally() {
	s.AttendedHours, s.AbsentHours, s.NotMarkedHours = 0, 0, 0
	for _, slot := range s.HourlyAttendance {
		switch slot.Status {
		case StatusPresent:
			s.AttendedHours++
		case StatusAbsent:
			s.AbsentHours++
		default:
			s.NotMarkedHours++
		}
	}
	s.FullDayAttendance = s.AttendedHours == s.TotalHours && s.NotMarkedHours == 0
}

// Check verifies the summary invariants.
func (s DailySummary) Check() error {
	if s.TotalHours != TotalHours {
		return errors.Wrapf(errInvalidSummary, "total hours = %d, want %d", s.TotalHours, TotalHours)
	}
	for i, slot := range s.HourlyAttendance {
		if slot.Hour != i+1 {
			return errors.Wrapf(errInvalidSummary, "slot %d holds hour %d", i, slot.Hour)
		}
	}
	if s.AttendedHours+s.AbsentHours+s.NotMarkedHours != s.TotalHours {
		return errors.Wrapf(errInvalidSummary, "%d attended + %d absent + %d not marked != %d",
			s.AttendedHours, s.AbsentHours, s.NotMarkedHours, s.TotalHours)
	}
	if s.FullDayAttendance != (s.AttendedHours == s.TotalHours && s.NotMarkedHours == 0) {
		return errors.Wrapf(errInvalidSummary, "full day attendance = %t with %d attended hours", s.FullDayAttendance, s.AttendedHours)
	}
	return nil
}

// IsComplete reports whether every hour of the day has been marked.
func (s DailySummary) IsComplete() bool {
	return s.NotMarkedHours == 0
}

// Stats aggregates the stored summaries of a student over a trailing window.
type Stats struct {
	StudentID            string          `json:"student_id"`
	WindowDays           int             `json:"window_days"`
	From                 time.Time       `json:"from"`
	To                   time.Time       `json:"to"`
	TotalDays            int             `json:"total_days"`
	FullAttendanceDays   int             `json:"full_attendance_days"`
	TotalHours           int             `json:"total_hours"`
	TotalPossibleHours   int             `json:"total_possible_hours"`
	AttendancePercentage decimal.Decimal `json:"attendance_percentage"`
}

type (
	// RecordSource gives access to the raw attendance submissions.
	RecordSource interface {
		FindRecordsForStudentOnDate(ctx context.Context, studentID string, date time.Time) ([]RawRecord, error)
	}

	// SummaryRepository persists DailySummary documents keyed by (StudentID, Date).
	SummaryRepository interface {
		// GetSummary returns ErrSummaryNotFound if no summary exists for the key.
		GetSummary(ctx context.Context, studentID string, date time.Time) (DailySummary, error)
		// UpsertSummary atomically creates or overwrites the summary for its key.
		UpsertSummary(ctx context.Context, summary DailySummary) (DailySummary, error)
		// ListSummaries returns the summaries of [from, to] (inclusive), in ascending date order.
		ListSummaries(ctx context.Context, studentID string, from, to time.Time) ([]DailySummary, error)
	}

	// KeyLocker is implemented by summary repositories shared between processes.
	// WithKeyLock runs fn while holding the lock of the (studentID, date) summary in the store itself,
	// handing fn the record source and repository to use while the lock is held.
	KeyLocker interface {
		WithKeyLock(ctx context.Context, studentID string, date time.Time, fn func(records RecordSource, summaries SummaryRepository) error) error
	}
)
