package inmemdb

import (
	"context"
	"time"

	"github.com/trezcool/kipindi/core/attendance"
)

type recordSource struct {
	db *recordTable
}

var _ attendance.RecordSource = (*recordSource)(nil) // interface compliance check

func NewRecordSource(db *DB) *recordSource {
	return &recordSource{db: db.record}
}

// SaveRecord stores a submission, replacing any previous one with the same ID.
func (src *recordSource) SaveRecord(rec attendance.RawRecord) attendance.RawRecord {
	src.db.Lock()
	defer src.db.Unlock()

	rec.Date = attendance.Day(rec.Date, nil)
	key := attendance.FormatDate(rec.Date)
	records := src.db.table[key]
	for i := range records {
		if records[i].ID == rec.ID {
			records[i] = rec
			return rec
		}
	}
	src.db.table[key] = append(records, rec)
	return rec
}

func (src *recordSource) FindRecordsForStudentOnDate(_ context.Context, studentID string, date time.Time) ([]attendance.RawRecord, error) {
	src.db.RLock()
	defer src.db.RUnlock()

	var found []attendance.RawRecord
	for _, rec := range src.db.table[attendance.FormatDate(date)] {
		if _, ok := rec.EntryFor(studentID); ok {
			entries := make([]attendance.RawEntry, len(rec.Entries))
			copy(entries, rec.Entries)
			rec.Entries = entries
			found = append(found, rec)
		}
	}
	return found, nil
}
