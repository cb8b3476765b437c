package storage

import (
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/kipindi/core"
	"github.com/trezcool/kipindi/core/attendance"
	"github.com/trezcool/kipindi/core/student"
	"github.com/trezcool/kipindi/storage/database"
	inmemdb "github.com/trezcool/kipindi/storage/database/inmem"
	sqlxrepos "github.com/trezcool/kipindi/storage/database/sqlx"
)

// Stores groups the collaborators of attendance.Service for one backend.
type Stores struct {
	Students  student.Directory
	Records   attendance.RecordSource
	Summaries attendance.SummaryRepository

	// DB is nil for the in-memory backend.
	DB *sqlx.DB
}

// Open returns the Postgres stores, creating and migrating the database first,
// or in-memory stores when conf.Database.InMemory is set.
func Open(conf *core.Config, migrate bool) (*Stores, error) {
	if conf.Database.InMemory {
		mem, err := inmemdb.Open()
		if err != nil {
			return nil, errors.Wrap(err, "opening in-memory database")
		}
		return &Stores{
			Students:  inmemdb.NewStudentDirectory(mem),
			Records:   inmemdb.NewRecordSource(mem),
			Summaries: inmemdb.NewSummaryRepository(mem),
		}, nil
	}

	if migrate {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}
	}
	db, err := database.Open(conf)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if migrate {
		if err = database.Migrate(db.DB, "up"); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return &Stores{
		Students:  sqlxrepos.NewStudentDirectory(db),
		Records:   sqlxrepos.NewRecordSource(db),
		Summaries: sqlxrepos.NewSummaryRepository(db),
		DB:        db,
	}, nil
}

func (s *Stores) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}
