package batch

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/kipindi/core/student"
)

// Job names a recalculation job.
type Job string

const (
	JobDaily  Job = "daily"
	JobWeekly Job = "weekly"
	JobRange  Job = "range"
)

// StudentError is the failure of one student within a run.
type StudentError struct {
	StudentID string `json:"student_id"`
	Err       error  `json:"-"`
	Message   string `json:"error"`
}

// BatchReport is the outcome of one run over the active students.
type BatchReport struct {
	RunID      uuid.UUID      `json:"run_id"`
	Job        Job            `json:"job"`
	From       time.Time      `json:"from"`
	To         time.Time      `json:"to"`
	StartedAt  time.Time      `json:"started_at"`  // UTC
	FinishedAt time.Time      `json:"finished_at"` // UTC
	Students   int            `json:"students"`
	Processed  int            `json:"processed"`
	ErrorCount int            `json:"error_count"`
	Errors     []StudentError `json:"errors"`
	Cancelled  bool           `json:"cancelled"`
}

func newReport(job Job, from, to, now time.Time) BatchReport {
	return BatchReport{
		RunID:     uuid.New(),
		Job:       job,
		From:      from,
		To:        to,
		StartedAt: now.UTC(),
		Errors:    make([]StudentError, 0),
	}
}

func (r *BatchReport) record(stu student.Student, err error) {
	if err == nil {
		r.Processed++
		return
	}
	r.ErrorCount++
	r.Errors = append(r.Errors, StudentError{StudentID: stu.ID, Err: err, Message: err.Error()})
}

// Skipped returns the number of students never attempted (cancelled runs only).
func (r BatchReport) Skipped() int {
	return r.Students - r.Processed - r.ErrorCount
}

// Summary returns a one-line description of the run, for logs.
func (r BatchReport) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s recalculation %s [%s..%s]: %d students, %d processed, %d errors",
		r.Job, r.RunID, r.From.Format("2006-01-02"), r.To.Format("2006-01-02"), r.Students, r.Processed, r.ErrorCount)
	if r.Cancelled {
		fmt.Fprintf(&b, ", cancelled (%d skipped)", r.Skipped())
	}
	if !r.FinishedAt.IsZero() {
		fmt.Fprintf(&b, " in %s", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	}
	return b.String()
}
