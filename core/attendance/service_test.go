package attendance_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/kipindi/core"
	. "github.com/trezcool/kipindi/core/attendance"
	"github.com/trezcool/kipindi/core/student"
	"github.com/trezcool/kipindi/testutil"
)

var (
	ctx   = context.Background()
	today = testutil.Date(2026, time.March, 20)
	now   = today.Add(15 * time.Hour)
)

func checkInvariants(t *testing.T, s DailySummary) {
	t.Helper()
	if err := s.Check(); err != nil {
		t.Errorf("Check() error = %v", err)
	}
	if s.AttendedHours+s.AbsentHours+s.NotMarkedHours != TotalHours {
		t.Errorf("hours sum = %d, want %d", s.AttendedHours+s.AbsentHours+s.NotMarkedHours, TotalHours)
	}
	if s.FullDayAttendance != (s.AttendedHours == TotalHours && s.NotMarkedHours == 0) {
		t.Errorf("FullDayAttendance = %t with %d attended, %d not marked", s.FullDayAttendance, s.AttendedHours, s.NotMarkedHours)
	}
}

func TestService_Calculate(t *testing.T) {
	type want struct {
		attended, absent, notMarked int
		full                        bool
	}
	tests := []struct {
		name string
		mark func(t *testing.T, env *testutil.Env, studentID string)
		want want
	}{
		{
			name: "all hours present",
			mark: func(t *testing.T, env *testutil.Env, id string) {
				testutil.MarkDay(t, env.Records, today, RawPresent, id)
			},
			want: want{attended: 6, full: true},
		},
		{
			name: "half present half absent",
			mark: func(t *testing.T, env *testutil.Env, id string) {
				for h := 1; h <= 3; h++ {
					testutil.MarkHour(t, env.Records, today, h, RawPresent, id)
				}
				for h := 4; h <= 6; h++ {
					testutil.MarkHour(t, env.Records, today, h, RawAbsent, id)
				}
			},
			want: want{attended: 3, absent: 3},
		},
		{
			name: "no records",
			mark: func(t *testing.T, env *testutil.Env, id string) {},
			want: want{notMarked: 6},
		},
		{
			name: "late counts as attended",
			mark: func(t *testing.T, env *testutil.Env, id string) {
				testutil.MarkDay(t, env.Records, today, RawLate, id)
			},
			want: want{attended: 6, full: true},
		},
		{
			name: "records of other students are ignored",
			mark: func(t *testing.T, env *testutil.Env, id string) {
				testutil.MarkDay(t, env.Records, today, RawPresent, "someone-else")
				testutil.MarkHour(t, env.Records, today, 1, RawAbsent, id, "someone-else")
			},
			want: want{absent: 1, notMarked: 5},
		},
		{
			name: "records of other days are ignored",
			mark: func(t *testing.T, env *testutil.Env, id string) {
				testutil.MarkDay(t, env.Records, AddDays(today, -1), RawPresent, id)
			},
			want: want{notMarked: 6},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := testutil.NewEnv(t, now)
			stu := testutil.CreateStudent(t, env.Students, "Awe Some", true)
			tt.mark(t, env, stu.ID)

			got, err := env.Service.Calculate(ctx, stu.ID, today)
			require.NoError(t, err)
			checkInvariants(t, got)

			assert.Equal(t, stu.ID, got.StudentID)
			assert.Equal(t, today, got.Date)
			assert.Equal(t, TotalHours, got.TotalHours)
			assert.Equal(t, tt.want.attended, got.AttendedHours, "AttendedHours")
			assert.Equal(t, tt.want.absent, got.AbsentHours, "AbsentHours")
			assert.Equal(t, tt.want.notMarked, got.NotMarkedHours, "NotMarkedHours")
			assert.Equal(t, tt.want.full, got.FullDayAttendance, "FullDayAttendance")
			assert.Equal(t, now.UTC(), got.LastUpdated)

			stored, err := env.Summaries.GetSummary(ctx, stu.ID, today)
			require.NoError(t, err)
			assert.Equal(t, got, stored)
		})
	}
}

func TestService_Calculate_unknownStudents(t *testing.T) {
	env := testutil.NewEnv(t, now)
	inactive := testutil.CreateStudent(t, env.Students, "In Active", false)
	testutil.MarkDay(t, env.Records, today, RawPresent, inactive.ID)

	tests := []struct {
		name      string
		studentID string
	}{
		{name: "unknown student", studentID: "nope"},
		{name: "inactive student", studentID: inactive.ID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.Service.Calculate(ctx, tt.studentID, today)
			if !core.IsNotFound(err) {
				t.Errorf("Calculate() error = %v, want a NotFoundError", err)
			}
		})
	}
	if n := env.Summaries.Count(); n != 0 {
		t.Errorf("summaries written = %d, want 0", n)
	}
}

func TestService_Calculate_slots(t *testing.T) {
	env := testutil.NewEnv(t, now)
	stu := testutil.CreateStudent(t, env.Students, "Awe Some", true)

	first := testutil.MarkHour(t, env.Records, today, 2, RawAbsent, stu.ID)
	second := testutil.MarkHour(t, env.Records, today, 2, RawPresent, stu.ID) // corrected later
	env.Records.SaveRecord(RawRecord{ID: "bogus", Date: today, Hour: 9, MarkedAt: second.MarkedAt,
		Entries: []RawEntry{{StudentID: stu.ID, Status: RawPresent}}})

	got, err := env.Service.Calculate(ctx, stu.ID, today)
	require.NoError(t, err)
	checkInvariants(t, got)

	for i, slot := range got.HourlyAttendance {
		assert.Equal(t, i+1, slot.Hour)
		if slot.Hour == 2 {
			continue
		}
		assert.Equal(t, StatusNotMarked, slot.Status, "hour %d", slot.Hour)
		assert.True(t, slot.MarkedAt.IsZero(), "hour %d", slot.Hour)
	}

	slot := got.HourlyAttendance[1]
	assert.Equal(t, StatusPresent, slot.Status)
	assert.Equal(t, second.SubjectID, slot.SubjectID)
	assert.Equal(t, second.MarkedBy, slot.MarkedBy)
	assert.Equal(t, second.MarkedAt, slot.MarkedAt)
	assert.True(t, second.MarkedAt.After(first.MarkedAt))

	assert.Equal(t, 1, got.AttendedHours)
	assert.Equal(t, 5, got.NotMarkedHours)
	assert.Equal(t, 1, env.Logger.Count("warn"), "invalid hour should be reported")
}

func TestService_Calculate_idempotent(t *testing.T) {
	env := testutil.NewEnv(t, now)
	stu := testutil.CreateStudent(t, env.Students, "Awe Some", true)
	testutil.MarkHour(t, env.Records, today, 1, RawPresent, stu.ID)
	testutil.MarkHour(t, env.Records, today, 4, RawAbsent, stu.ID)

	first, err := env.Service.Calculate(ctx, stu.ID, today)
	require.NoError(t, err)
	second, err := env.Service.Calculate(ctx, stu.ID, today)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, env.Summaries.Count(), "recomputing must overwrite the summary")
}

func TestService_Calculate_monotonic(t *testing.T) {
	env := testutil.NewEnv(t, now)
	stu := testutil.CreateStudent(t, env.Students, "Awe Some", true)
	for h := 1; h < TotalHours; h++ {
		testutil.MarkHour(t, env.Records, today, h, RawPresent, stu.ID)
	}

	before, err := env.Service.Calculate(ctx, stu.ID, today)
	require.NoError(t, err)
	require.False(t, before.FullDayAttendance)

	testutil.MarkHour(t, env.Records, today, TotalHours, RawPresent, stu.ID)
	after, err := env.Service.Calculate(ctx, stu.ID, today)
	require.NoError(t, err)

	assert.Equal(t, before.AttendedHours+1, after.AttendedHours)
	assert.Equal(t, before.NotMarkedHours-1, after.NotMarkedHours)
	assert.Equal(t, before.AbsentHours, after.AbsentHours)
	assert.True(t, after.FullDayAttendance)
}

func TestService_Calculate_transientFailure(t *testing.T) {
	env := testutil.NewEnv(t, now)
	stu := testutil.CreateStudent(t, env.Students, "Awe Some", true)
	svc := NewService(env.Students, failingSource{}, env.Summaries, env.Logger, env.Conf)

	_, err := svc.Calculate(ctx, stu.ID, today)
	if !core.IsTransient(err) {
		t.Errorf("Calculate() error = %v, want a TransientError", err)
	}
	if n := env.Summaries.Count(); n != 0 {
		t.Errorf("summaries written = %d, want 0", n)
	}
}

func TestService_GetSummary(t *testing.T) {
	env := testutil.NewEnv(t, now)
	stu := testutil.CreateStudent(t, env.Students, "Awe Some", true)
	day := AddDays(today, -3)
	testutil.MarkDay(t, env.Records, day, RawPresent, stu.ID)

	// miss: computed and stored
	got, err := env.Service.GetSummary(ctx, stu.ID, day)
	require.NoError(t, err)
	assert.True(t, got.FullDayAttendance)
	assert.Equal(t, 1, env.Summaries.Count())

	// hit: the stored summary is returned as is, even if raw records changed since
	testutil.MarkHour(t, env.Records, day, 1, RawAbsent, stu.ID)
	got, err = env.Service.GetSummary(ctx, stu.ID, day)
	require.NoError(t, err)
	assert.True(t, got.FullDayAttendance)

	_, err = env.Service.GetSummary(ctx, "nope", day)
	assert.True(t, core.IsNotFound(err), "GetSummary() error = %v", err)
}

type failingSource struct{}

func (failingSource) FindRecordsForStudentOnDate(context.Context, string, time.Time) ([]RawRecord, error) {
	return nil, core.NewTransientError("finding attendance records", context.DeadlineExceeded)
}

// sharedStore is a summary store used by several services at once, as processes share a database.
// Its key lock is held by the store, not by any of the services.
type sharedStore struct {
	SummaryRepository
	records RecordSource
	mu      sync.Mutex
}

var _ KeyLocker = (*sharedStore)(nil)

func (s *sharedStore) WithKeyLock(_ context.Context, _ string, _ time.Time, fn func(RecordSource, SummaryRepository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.records, s.SummaryRepository)
}

// stalledSource holds the result of its first read until release is closed.
type stalledSource struct {
	RecordSource
	first   int32
	reading chan struct{}
	release chan struct{}
}

func (src *stalledSource) FindRecordsForStudentOnDate(ctx context.Context, studentID string, date time.Time) ([]RawRecord, error) {
	records, err := src.RecordSource.FindRecordsForStudentOnDate(ctx, studentID, date)
	if atomic.CompareAndSwapInt32(&src.first, 0, 1) {
		close(src.reading)
		<-src.release
	}
	return records, err
}

func TestService_Calculate_sharedStoreLock(t *testing.T) {
	env := testutil.NewEnv(t, now)
	stu := testutil.CreateStudent(t, env.Students, "Awe Some", true)
	testutil.MarkDay(t, env.Records, today, RawAbsent, stu.ID)

	src := &stalledSource{RecordSource: env.Records, reading: make(chan struct{}), release: make(chan struct{})}
	store := &sharedStore{SummaryRepository: env.Summaries, records: src}
	first := NewService(env.Students, env.Records, store, env.Logger, env.Conf)
	first.SetNowFunc(testutil.Clock(now))
	second := NewService(env.Students, env.Records, store, env.Logger, env.Conf)
	second.SetNowFunc(testutil.Clock(now))

	firstDone := make(chan error, 1)
	go func() {
		_, err := first.Calculate(ctx, stu.ID, today)
		firstDone <- err
	}()
	<-src.reading // the first service read the absences and has not saved yet

	testutil.MarkDay(t, env.Records, today, RawPresent, stu.ID) // corrected meanwhile

	secondDone := make(chan error, 1)
	go func() {
		_, err := second.Calculate(ctx, stu.ID, today)
		secondDone <- err
	}()
	select {
	case err := <-secondDone:
		t.Fatalf("second Calculate() returned (error = %v) while the first one held the key", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(src.release)
	require.NoError(t, <-firstDone)
	require.NoError(t, <-secondDone)

	got, err := env.Summaries.GetSummary(ctx, stu.ID, today)
	require.NoError(t, err)
	assert.True(t, got.FullDayAttendance, "stored summary = %+v, want the corrected full day", got)
	checkInvariants(t, got)
}

// countingDirectory counts student lookups.
type countingDirectory struct {
	student.Directory
	lookups int32
}

func (dir *countingDirectory) GetStudent(ctx context.Context, id string) (student.Student, error) {
	atomic.AddInt32(&dir.lookups, 1)
	return dir.Directory.GetStudent(ctx, id)
}

func TestService_CalculateDays(t *testing.T) {
	env := testutil.NewEnv(t, now)
	stu := testutil.CreateStudent(t, env.Students, "Awe Some", true)
	from := AddDays(today, -4)
	testutil.MarkFullDays(t, env.Records, from, today, stu.ID)

	dir := &countingDirectory{Directory: env.Students}
	svc := NewService(dir, env.Records, env.Summaries, env.Logger, env.Conf)
	svc.SetNowFunc(testutil.Clock(now))

	require.NoError(t, svc.CalculateDays(ctx, stu.ID, from, today))
	assert.Equal(t, int32(1), atomic.LoadInt32(&dir.lookups), "the student must be resolved once per call")
	assert.Equal(t, 5, env.Summaries.Count())
	for _, day := range DaysInRange(from, today) {
		got, err := env.Summaries.GetSummary(ctx, stu.ID, day)
		require.NoError(t, err, FormatDate(day))
		assert.True(t, got.FullDayAttendance, FormatDate(day))
	}

	err := svc.CalculateDays(ctx, "nope", from, today)
	assert.True(t, core.IsNotFound(err), "CalculateDays() error = %v", err)

	failing := NewService(env.Students, failingSource{}, env.Summaries, env.Logger, env.Conf)
	err = failing.CalculateDays(ctx, stu.ID, from, today)
	assert.True(t, core.IsTransient(err), "CalculateDays() error = %v", err)
	assert.Contains(t, err.Error(), "calculating "+FormatDate(from))
}
