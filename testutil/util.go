package testutil

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/kipindi/core"
	"github.com/trezcool/kipindi/core/attendance"
	"github.com/trezcool/kipindi/core/student"
)

// NewConfig returns a config fit for tests: UTC, small worker pool, short timeouts.
func NewConfig() *core.Config {
	return &core.Config{
		Env:      "TEST",
		TestMode: true,
		AppName:  "Kipindi",
		TimeZone: time.UTC,
		Batch: core.BatchConfig{
			Workers:        4,
			StudentTimeout: 5 * time.Second,
			DailySchedule:  "5 20 * * *",
			WeeklySchedule: "30 2 * * 0",
		},
		Email: core.EmailConfig{DefaultFrom: "noreply@test.cd"},
	}
}

// Date returns the calendar day y-m-d.
func Date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Clock returns a now func frozen at t.
func Clock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

type (
	StudentSaver interface {
		SaveStudent(stu student.Student) student.Student
	}

	RecordSaver interface {
		SaveRecord(rec attendance.RawRecord) attendance.RawRecord
	}
)

func CreateStudent(t *testing.T, dir StudentSaver, name string, isActive bool) student.Student {
	t.Helper()
	return dir.SaveStudent(student.Student{
		ID:        uuid.New().String(),
		Name:      name,
		Email:     strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@test.cd",
		Section:   "6A",
		IsActive:  isActive,
		CreatedAt: time.Now().UTC(),
	})
}

var markSeq int64

// MarkHour submits a record for one hour of a day, marking every given student with status.
// Each submission is marked one second after the previous one.
func MarkHour(t *testing.T, src RecordSaver, date time.Time, hour int, status attendance.RawStatus, studentIDs ...string) attendance.RawRecord {
	t.Helper()
	seq := atomic.AddInt64(&markSeq, 1)
	entries := make([]attendance.RawEntry, 0, len(studentIDs))
	for _, id := range studentIDs {
		entries = append(entries, attendance.RawEntry{StudentID: id, Status: status})
	}
	return src.SaveRecord(attendance.RawRecord{
		ID:         fmt.Sprintf("rec-%06d", seq),
		Date:       date,
		Hour:       hour,
		SubjectID:  fmt.Sprintf("subject-%d", hour),
		Section:    "6A",
		Department: "sciences",
		MarkedBy:   "staff-1",
		MarkedAt:   date.Add(7*time.Hour + time.Duration(seq)*time.Second),
		Entries:    entries,
	})
}

// MarkDay marks every hour of a day with status.
func MarkDay(t *testing.T, src RecordSaver, date time.Time, status attendance.RawStatus, studentIDs ...string) {
	t.Helper()
	for hour := 1; hour <= attendance.TotalHours; hour++ {
		MarkHour(t, src, date, hour, status, studentIDs...)
	}
}

// MarkFullDays marks every hour of each day of [from, to] present.
func MarkFullDays(t *testing.T, src RecordSaver, from, to time.Time, studentIDs ...string) {
	t.Helper()
	for _, day := range attendance.DaysInRange(from, to) {
		MarkDay(t, src, day, attendance.RawPresent, studentIDs...)
	}
}

// Logger is a core.Logger that keeps messages in memory.
type Logger struct {
	mu       sync.Mutex
	Messages []LogEntry
}

type LogEntry struct {
	Level string
	Msg   string
	Args  []interface{}
}

var _ core.Logger = (*Logger)(nil)

func NewLogger() *Logger { return &Logger{} }

func (l *Logger) log(level, msg string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Messages = append(l.Messages, LogEntry{Level: level, Msg: msg, Args: args})
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("debug", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log("info", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log("warn", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log("error", msg, args) }
func (l *Logger) Fatal(msg string, args ...interface{}) { l.log("fatal", msg, args) }

// Count returns the number of messages logged at level.
func (l *Logger) Count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.Messages {
		if e.Level == level {
			n++
		}
	}
	return n
}
