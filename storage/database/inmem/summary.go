package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/kipindi/core/attendance"
)

type summaryRepository struct {
	db *summaryTable
}

var _ attendance.SummaryRepository = (*summaryRepository)(nil) // interface compliance check

func NewSummaryRepository(db *DB) *summaryRepository {
	return &summaryRepository{db: db.summary}
}

func keyOf(studentID string, date time.Time) summaryKey {
	return summaryKey{studentID: studentID, date: attendance.FormatDate(date)}
}

func (repo *summaryRepository) GetSummary(_ context.Context, studentID string, date time.Time) (attendance.DailySummary, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if s, ok := repo.db.table[keyOf(studentID, date)]; ok {
		return *s, nil
	}
	return attendance.DailySummary{}, attendance.ErrSummaryNotFound
}

func (repo *summaryRepository) UpsertSummary(_ context.Context, summary attendance.DailySummary) (attendance.DailySummary, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.table[keyOf(summary.StudentID, summary.Date)] = &summary
	return summary, nil
}

func (repo *summaryRepository) ListSummaries(_ context.Context, studentID string, from, to time.Time) ([]attendance.DailySummary, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	summaries := make([]attendance.DailySummary, 0)
	for key, s := range repo.db.table {
		if key.studentID != studentID || s.Date.Before(from) || s.Date.After(to) {
			continue
		}
		summaries = append(summaries, *s)
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Date.Before(summaries[j].Date) })
	return summaries, nil
}

// Count returns the number of stored summaries.
func (repo *summaryRepository) Count() int {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return len(repo.db.table)
}
