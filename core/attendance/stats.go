package attendance

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/kipindi/core"
)

var hundred = decimal.NewFromInt(100)

// GetStats aggregates the stored summaries of the last `windowDays` days (today included).
// Days without a summary are not counted.
func (svc *Service) GetStats(ctx context.Context, studentID string, windowDays int) (Stats, error) {
	if windowDays < 1 || windowDays > StatsMaxWindow {
		return Stats{}, core.NewValidationError(
			errors.Errorf("window of %d days is out of range [1, %d]", windowDays, StatsMaxWindow),
			core.FieldError{Field: "window_days", Error: "out of range"},
		)
	}
	if _, err := svc.resolveStudent(ctx, studentID); err != nil {
		return Stats{}, err
	}

	to := svc.Today()
	from := AddDays(to, -(windowDays - 1))
	summaries, err := svc.summaries.ListSummaries(ctx, studentID, from, to)
	if err != nil {
		return Stats{}, errors.Wrap(err, "listing daily summaries")
	}

	stats := Stats{
		StudentID:  studentID,
		WindowDays: windowDays,
		From:       from,
		To:         to,
	}
	for _, s := range summaries {
		stats.TotalDays++
		if s.FullDayAttendance {
			stats.FullAttendanceDays++
		}
		stats.TotalHours += s.AttendedHours
		stats.TotalPossibleHours += s.TotalHours
	}
	stats.AttendancePercentage = percentage(stats.TotalHours, stats.TotalPossibleHours)
	return stats, nil
}

// percentage returns 100*part/whole rounded to 2 decimal places, or 0 when whole is 0.
func percentage(part, whole int) decimal.Decimal {
	if whole == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(part)).Mul(hundred).DivRound(decimal.NewFromInt(int64(whole)), 2)
}
