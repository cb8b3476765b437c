package sqlxrepos

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"net"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/kipindi/core"
	"github.com/trezcool/kipindi/core/attendance"
)

func Test_summaryRow(t *testing.T) {
	markedAt := time.Date(2026, 3, 20, 8, 15, 0, 0, time.UTC)
	want := attendance.DailySummary{
		StudentID:      "stu-1",
		Date:           time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC),
		TotalHours:     attendance.TotalHours,
		AttendedHours:  1,
		AbsentHours:    1,
		NotMarkedHours: 4,
		LastUpdated:    time.Date(2026, 3, 20, 20, 5, 0, 0, time.UTC),
	}
	for i := range want.HourlyAttendance {
		want.HourlyAttendance[i] = attendance.HourSlot{Hour: i + 1, Status: attendance.StatusNotMarked}
	}
	want.HourlyAttendance[0] = attendance.HourSlot{Hour: 1, Status: attendance.StatusPresent, SubjectID: "math", MarkedBy: "staff-1", MarkedAt: markedAt}
	want.HourlyAttendance[1] = attendance.HourSlot{Hour: 2, Status: attendance.StatusAbsent, SubjectID: "bio", MarkedBy: "staff-2", MarkedAt: markedAt.Add(time.Hour)}

	row, err := toRow(want)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"hour":1,"status":"present","subject_id":"math","marked_by":"staff-1","marked_at":"2026-03-20T08:15:00Z"},
		{"hour":2,"status":"absent","subject_id":"bio","marked_by":"staff-2","marked_at":"2026-03-20T09:15:00Z"},
		{"hour":3,"status":"not_marked","subject_id":null,"marked_by":null,"marked_at":null},
		{"hour":4,"status":"not_marked","subject_id":null,"marked_by":null,"marked_at":null},
		{"hour":5,"status":"not_marked","subject_id":null,"marked_by":null,"marked_at":null},
		{"hour":6,"status":"not_marked","subject_id":null,"marked_by":null,"marked_at":null}
	]`, string(row.HourlyAttendance))

	got, err := fromRow(row)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.NoError(t, got.Check())
}

func Test_fromRow_invalid(t *testing.T) {
	tests := []struct {
		name   string
		hourly string
	}{
		{name: "not json", hourly: `{`},
		{name: "missing slots", hourly: `[{"hour":1,"status":"present"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := fromRow(summaryRow{HourlyAttendance: []byte(tt.hourly)}); err == nil {
				t.Error("fromRow() expected an error")
			}
		})
	}
}

func Test_markRow_record(t *testing.T) {
	kinshasa := time.FixedZone("WAT", 60*60)
	row := markRow{
		RecordID:  "rec-1",
		Date:      time.Date(2026, 3, 20, 0, 0, 0, 0, kinshasa),
		Hour:      3,
		SubjectID: null.StringFrom("math"),
		Section:   "6A",
		MarkedAt:  null.TimeFrom(time.Date(2026, 3, 20, 10, 0, 0, 0, kinshasa)),
		StudentID: "stu-1",
		Status:    "late",
	}

	rec := row.record()
	assert.Equal(t, "2026-03-20", attendance.FormatDate(rec.Date))
	assert.Equal(t, time.UTC, rec.Date.Location())
	assert.Equal(t, "math", rec.SubjectID)
	assert.Empty(t, rec.MarkedBy)
	assert.Equal(t, 9, rec.MarkedAt.Hour())
	entry, ok := rec.EntryFor("stu-1")
	require.True(t, ok)
	assert.Equal(t, attendance.RawLate, entry.Status)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func Test_isTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "bad conn", err: driver.ErrBadConn, want: true},
		{name: "conn done", err: errors.Wrap(sql.ErrConnDone, "querying"), want: true},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "net error", err: &net.OpError{Op: "dial", Net: "tcp", Err: timeoutErr{}}, want: true},
		{name: "connection failure", err: &pq.Error{Code: "08006"}, want: true},
		{name: "serialization failure", err: &pq.Error{Code: "40001"}, want: true},
		{name: "admin shutdown", err: &pq.Error{Code: "57P01"}, want: true},
		{name: "undefined table", err: &pq.Error{Code: "42P01"}},
		{name: "check violation", err: &pq.Error{Code: "23514"}},
		{name: "no rows", err: sql.ErrNoRows},
		{name: "cancelled", err: context.Canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isTransient(tt.err); got != tt.want {
				t.Errorf("isTransient() = %t, want %t", got, tt.want)
			}
			if got := core.IsTransient(wrapErr(tt.err, "op")); got != tt.want {
				t.Errorf("IsTransient(wrapErr()) = %t, want %t", got, tt.want)
			}
		})
	}
	if wrapErr(nil, "op") != nil {
		t.Error("wrapErr(nil) must be nil")
	}
}

// failingQueryer fails every query with err.
type failingQueryer struct {
	err error
}

var _ sqlx.QueryerContext = failingQueryer{}

func (q failingQueryer) QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error) {
	return nil, q.err
}

func (q failingQueryer) QueryxContext(context.Context, string, ...interface{}) (*sqlx.Rows, error) {
	return nil, q.err
}

func (q failingQueryer) QueryRowxContext(context.Context, string, ...interface{}) *sqlx.Row {
	return nil
}

func TestRepositories_queryErrors(t *testing.T) {
	ctx := context.Background()
	down := failingQueryer{err: driver.ErrBadConn}
	broken := failingQueryer{err: &pq.Error{Code: "42P01", Message: `relation "students" does not exist`}}

	_, err := NewRecordSource(down).FindRecordsForStudentOnDate(ctx, "stu-1", time.Now())
	assert.True(t, core.IsTransient(err), "FindRecordsForStudentOnDate() error = %v", err)

	_, err = NewStudentDirectory(down).ListActiveStudents(ctx)
	assert.True(t, core.IsTransient(err), "ListActiveStudents() error = %v", err)

	_, err = NewStudentDirectory(broken).ListActiveStudents(ctx)
	require.Error(t, err)
	assert.False(t, core.IsTransient(err))
	assert.Contains(t, err.Error(), "listing active students")
}
