package testutil

import (
	"testing"
	"time"

	"github.com/trezcool/kipindi/core"
	"github.com/trezcool/kipindi/core/attendance"
	"github.com/trezcool/kipindi/core/student"
	inmemdb "github.com/trezcool/kipindi/storage/database/inmem"
)

// Env is an in-memory attendance service with its stores, frozen at a given time.
type Env struct {
	Conf     *core.Config
	Logger   *Logger
	Students interface {
		student.Directory
		StudentSaver
	}
	Records interface {
		attendance.RecordSource
		RecordSaver
	}
	Summaries interface {
		attendance.SummaryRepository
		Count() int
	}
	Service *attendance.Service
}

func NewEnv(t *testing.T, now time.Time) *Env {
	t.Helper()
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("inmemdb.Open() failed: %v", err)
	}
	env := &Env{
		Conf:      NewConfig(),
		Logger:    NewLogger(),
		Students:  inmemdb.NewStudentDirectory(db),
		Records:   inmemdb.NewRecordSource(db),
		Summaries: inmemdb.NewSummaryRepository(db),
	}
	env.Service = attendance.NewService(env.Students, env.Records, env.Summaries, env.Logger, env.Conf)
	env.Service.SetNowFunc(Clock(now))
	return env
}
