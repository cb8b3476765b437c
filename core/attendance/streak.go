package attendance

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// GetStreak returns the full attendance streak of a student.
//
// When today is a full day, the streak is today plus the consecutive full days before it,
// capped at StreakChainCap. Otherwise today does not count and the best chain anchored on a
// full day of the last StreakSearchWindow days is returned (0 if there is none).
func (svc *Service) GetStreak(ctx context.Context, studentID string) (int, error) {
	if _, err := svc.resolveStudent(ctx, studentID); err != nil {
		return 0, err
	}
	ev := &streakEvaluator{
		ctx:       ctx,
		svc:       svc,
		studentID: studentID,
		today:     svc.Today(),
		full:      make(map[string]bool),
	}
	return ev.evaluate()
}

type streakEvaluator struct {
	ctx       context.Context
	svc       *Service
	studentID string
	today     time.Time
	full      map[string]bool // YYYY-MM-DD -> full day attendance
}

func (ev *streakEvaluator) evaluate() (int, error) {
	todayFull, err := ev.isTodayFull()
	if err != nil {
		return 0, err
	}
	if todayFull {
		n, err := ev.chainLength(AddDays(ev.today, -1), StreakChainCap-1, time.Time{})
		if err != nil {
			return 0, err
		}
		return 1 + n, nil
	}
	return ev.bestRecentChain()
}

// isTodayFull recomputes today's summary whenever it is missing or still has hours to be marked.
func (ev *streakEvaluator) isTodayFull() (bool, error) {
	summary, err := ev.svc.summaries.GetSummary(ev.ctx, ev.studentID, ev.today)
	if err != nil && errors.Cause(err) != ErrSummaryNotFound {
		return false, errors.Wrap(err, "reading today's summary")
	}
	if err != nil || !summary.IsComplete() {
		if summary, err = ev.svc.calculate(ev.ctx, ev.studentID, ev.today); err != nil {
			return false, err
		}
	}
	ev.full[FormatDate(ev.today)] = summary.FullDayAttendance
	return summary.FullDayAttendance, nil
}

// bestRecentChain scans the search window, newest day first, and keeps the longest chain
// anchored on a full day.
func (ev *streakEvaluator) bestRecentChain() (int, error) {
	floor := AddDays(ev.today, -StreakSearchWindow)
	best := 0

	it := NewDayIterator(AddDays(ev.today, -1), StreakSearchWindow)
	for day, ok := it.Next(); ok; day, ok = it.Next() {
		full, err := ev.isFull(day)
		if err != nil {
			return 0, err
		}
		if !full {
			continue
		}
		n, err := ev.chainLength(AddDays(day, -1), StreakChainCap-1, floor)
		if err != nil {
			return 0, err
		}
		if n+1 > best {
			best = n + 1
		}
		if best == StreakChainCap {
			break
		}
	}
	return best, nil
}

// chainLength counts consecutive full days walking back from `from`, visiting at most `limit` days
// and never going past `floor` (if set).
func (ev *streakEvaluator) chainLength(from time.Time, limit int, floor time.Time) (int, error) {
	n := 0
	it := NewDayIterator(from, limit)
	for day, ok := it.Next(); ok; day, ok = it.Next() {
		if !floor.IsZero() && day.Before(floor) {
			break
		}
		full, err := ev.isFull(day)
		if err != nil {
			return 0, err
		}
		if !full {
			break
		}
		n++
	}
	return n, nil
}

// isFull reads a past day through the summary store, lazily computing missing days.
func (ev *streakEvaluator) isFull(day time.Time) (bool, error) {
	key := FormatDate(day)
	if full, ok := ev.full[key]; ok {
		return full, nil
	}
	summary, err := ev.svc.readThrough(ev.ctx, ev.studentID, day)
	if err != nil {
		return false, err
	}
	ev.full[key] = summary.FullDayAttendance
	return summary.FullDayAttendance, nil
}
