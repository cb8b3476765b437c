package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/kipindi/core/attendance"
)

type recordSource struct {
	db sqlx.QueryerContext
}

var _ attendance.RecordSource = (*recordSource)(nil) // interface compliance check

func NewRecordSource(db sqlx.QueryerContext) *recordSource {
	return &recordSource{db: db}
}

// markRow is one student's entry joined with its record.
type markRow struct {
	RecordID   string      `db:"record_id"`
	Date       time.Time   `db:"date"`
	Hour       int         `db:"hour"`
	SubjectID  null.String `db:"subject_id"`
	Section    string      `db:"section"`
	Department string      `db:"department"`
	MarkedBy   null.String `db:"marked_by"`
	MarkedAt   null.Time   `db:"marked_at"`
	StudentID  string      `db:"student_id"`
	Status     string      `db:"status"`
}

func (row markRow) record() attendance.RawRecord {
	return attendance.RawRecord{
		ID:         row.RecordID,
		Date:       attendance.Day(row.Date, nil),
		Hour:       row.Hour,
		SubjectID:  row.SubjectID.String,
		Section:    row.Section,
		Department: row.Department,
		MarkedBy:   row.MarkedBy.String,
		MarkedAt:   row.MarkedAt.Time.UTC(),
		Entries: []attendance.RawEntry{
			{StudentID: row.StudentID, Status: attendance.RawStatus(row.Status)},
		},
	}
}

// FindRecordsForStudentOnDate returns the records of the day mentioning the student.
// Each record only carries the entry of that student.
func (src recordSource) FindRecordsForStudentOnDate(ctx context.Context, studentID string, date time.Time) ([]attendance.RawRecord, error) {
	q := `
		SELECT r.id AS record_id, r.date, r.hour, r.subject_id, COALESCE(r.section, '') AS section,
			COALESCE(r.department, '') AS department, r.marked_by, r.marked_at, e.student_id, e.status
		FROM attendance_records r
		JOIN attendance_entries e ON e.record_id = r.id
		WHERE r.date = $1::date AND e.student_id = $2
		ORDER BY r.marked_at NULLS FIRST, r.id`

	rows := make([]markRow, 0)
	if err := sqlx.SelectContext(ctx, src.db, &rows, q, attendance.FormatDate(date), studentID); err != nil {
		return nil, wrapErr(err, "finding attendance records")
	}

	records := make([]attendance.RawRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.record())
	}
	return records, nil
}
