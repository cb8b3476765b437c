package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/kipindi/core/attendance"
)

const summaryColumns = `student_id, date, total_hours, hourly_attendance, attended_hours, absent_hours,
	not_marked_hours, full_day_attendance, last_updated`

const (
	// upsertSummaryQuery conflicts on the primary key of the table.
	upsertSummaryQuery = `
		INSERT INTO daily_attendance_summaries (` + summaryColumns + `)
		VALUES (:student_id, :date, :total_hours, :hourly_attendance, :attended_hours, :absent_hours,
			:not_marked_hours, :full_day_attendance, :last_updated)
		ON CONFLICT (student_id, date) DO UPDATE SET
			total_hours = EXCLUDED.total_hours,
			hourly_attendance = EXCLUDED.hourly_attendance,
			attended_hours = EXCLUDED.attended_hours,
			absent_hours = EXCLUDED.absent_hours,
			not_marked_hours = EXCLUDED.not_marked_hours,
			full_day_attendance = EXCLUDED.full_day_attendance,
			last_updated = EXCLUDED.last_updated`

	listSummariesQuery = `SELECT ` + summaryColumns + ` FROM daily_attendance_summaries
		WHERE student_id = $1 AND date BETWEEN $2::date AND $3::date
		ORDER BY date`
)

type summaryRepository struct {
	db sqlx.ExtContext
}

// interface compliance checks
var (
	_ attendance.SummaryRepository = (*summaryRepository)(nil)
	_ attendance.KeyLocker         = (*summaryRepository)(nil)
)

func NewSummaryRepository(db sqlx.ExtContext) *summaryRepository {
	return &summaryRepository{db: db}
}

type (
	summaryRow struct {
		StudentID         string         `db:"student_id"`
		Date              time.Time      `db:"date"`
		TotalHours        int            `db:"total_hours"`
		HourlyAttendance  types.JSONText `db:"hourly_attendance"`
		AttendedHours     int            `db:"attended_hours"`
		AbsentHours       int            `db:"absent_hours"`
		NotMarkedHours    int            `db:"not_marked_hours"`
		FullDayAttendance bool           `db:"full_day_attendance"`
		LastUpdated       time.Time      `db:"last_updated"`
	}

	// slotDoc is the JSONB shape of one hour slot.
	slotDoc struct {
		Hour      int         `json:"hour"`
		Status    string      `json:"status"`
		SubjectID null.String `json:"subject_id"`
		MarkedBy  null.String `json:"marked_by"`
		MarkedAt  null.Time   `json:"marked_at"`
	}
)

func toRow(s attendance.DailySummary) (summaryRow, error) {
	docs := make([]slotDoc, 0, len(s.HourlyAttendance))
	for _, slot := range s.HourlyAttendance {
		docs = append(docs, slotDoc{
			Hour:      slot.Hour,
			Status:    string(slot.Status),
			SubjectID: null.NewString(slot.SubjectID, slot.SubjectID != ""),
			MarkedBy:  null.NewString(slot.MarkedBy, slot.MarkedBy != ""),
			MarkedAt:  null.NewTime(slot.MarkedAt.UTC(), !slot.MarkedAt.IsZero()),
		})
	}
	hourly, err := json.Marshal(docs)
	if err != nil {
		return summaryRow{}, errors.Wrap(err, "encoding hourly attendance")
	}
	return summaryRow{
		StudentID:         s.StudentID,
		Date:              s.Date,
		TotalHours:        s.TotalHours,
		HourlyAttendance:  types.JSONText(hourly),
		AttendedHours:     s.AttendedHours,
		AbsentHours:       s.AbsentHours,
		NotMarkedHours:    s.NotMarkedHours,
		FullDayAttendance: s.FullDayAttendance,
		LastUpdated:       s.LastUpdated.UTC(),
	}, nil
}

func fromRow(row summaryRow) (attendance.DailySummary, error) {
	var docs []slotDoc
	if err := row.HourlyAttendance.Unmarshal(&docs); err != nil {
		return attendance.DailySummary{}, errors.Wrap(err, "decoding hourly attendance")
	}
	if len(docs) != attendance.TotalHours {
		return attendance.DailySummary{}, errors.Errorf("decoding hourly attendance: got %d slots, want %d", len(docs), attendance.TotalHours)
	}

	s := attendance.DailySummary{
		StudentID:         row.StudentID,
		Date:              attendance.Day(row.Date, nil),
		TotalHours:        row.TotalHours,
		AttendedHours:     row.AttendedHours,
		AbsentHours:       row.AbsentHours,
		NotMarkedHours:    row.NotMarkedHours,
		FullDayAttendance: row.FullDayAttendance,
		LastUpdated:       row.LastUpdated.UTC(),
	}
	for i, doc := range docs {
		slot := attendance.HourSlot{
			Hour:      doc.Hour,
			Status:    attendance.Status(doc.Status),
			SubjectID: doc.SubjectID.String,
			MarkedBy:  doc.MarkedBy.String,
		}
		if doc.MarkedAt.Valid {
			slot.MarkedAt = doc.MarkedAt.Time.UTC()
		}
		s.HourlyAttendance[i] = slot
	}
	return s, nil
}

func (repo summaryRepository) GetSummary(ctx context.Context, studentID string, date time.Time) (attendance.DailySummary, error) {
	var row summaryRow
	q := `SELECT ` + summaryColumns + ` FROM daily_attendance_summaries WHERE student_id = $1 AND date = $2::date`
	if err := sqlx.GetContext(ctx, repo.db, &row, q, studentID, attendance.FormatDate(date)); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return attendance.DailySummary{}, attendance.ErrSummaryNotFound
		}
		return attendance.DailySummary{}, wrapErr(err, "getting daily summary")
	}
	return fromRow(row)
}

// summaryLockClass namespaces the advisory locks taken on summary keys.
const summaryLockClass = "daily_attendance_summaries"

const lockSummaryQuery = `SELECT pg_advisory_xact_lock(hashtext($1::text), hashtext($2::text || '/' || $3::text))`

type txBeginner interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// WithKeyLock runs fn in a transaction holding the advisory lock of the (studentID, date) summary,
// so every process sharing the database serializes its computations of that summary.
// fn gets a record source and a repository bound to the transaction.
// When the repository already runs inside a transaction, the lock is held until that one ends.
func (repo summaryRepository) WithKeyLock(
	ctx context.Context,
	studentID string,
	date time.Time,
	fn func(records attendance.RecordSource, summaries attendance.SummaryRepository) error,
) error {
	db, ok := repo.db.(txBeginner)
	if !ok {
		if err := lockSummary(ctx, repo.db, studentID, date); err != nil {
			return err
		}
		return fn(NewRecordSource(repo.db), repo)
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return wrapErr(err, "beginning summary transaction")
	}
	if err = lockSummary(ctx, tx, studentID, date); err == nil {
		err = fn(NewRecordSource(tx), summaryRepository{db: tx})
	}
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	return wrapErr(tx.Commit(), "committing summary transaction")
}

func lockSummary(ctx context.Context, db sqlx.ExecerContext, studentID string, date time.Time) error {
	if _, err := db.ExecContext(ctx, lockSummaryQuery, summaryLockClass, studentID, attendance.FormatDate(date)); err != nil {
		return wrapErr(err, "locking daily summary")
	}
	return nil
}

// UpsertSummary writes the whole document in one statement: a concurrent reader sees either the
// previous summary or the new one, never a mix.
func (repo summaryRepository) UpsertSummary(ctx context.Context, summary attendance.DailySummary) (attendance.DailySummary, error) {
	row, err := toRow(summary)
	if err != nil {
		return attendance.DailySummary{}, err
	}

	if _, err = sqlx.NamedExecContext(ctx, repo.db, upsertSummaryQuery, row); err != nil {
		return attendance.DailySummary{}, wrapErr(err, "upserting daily summary")
	}
	return summary, nil
}

func (repo summaryRepository) ListSummaries(ctx context.Context, studentID string, from, to time.Time) ([]attendance.DailySummary, error) {
	rows := make([]summaryRow, 0)
	if err := sqlx.SelectContext(ctx, repo.db, &rows, listSummariesQuery, studentID, attendance.FormatDate(from), attendance.FormatDate(to)); err != nil {
		return nil, wrapErr(err, "listing daily summaries")
	}

	summaries := make([]attendance.DailySummary, 0, len(rows))
	for _, row := range rows {
		s, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}
