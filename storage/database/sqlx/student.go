package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/kipindi/core/student"
)

const studentColumns = `id, name, COALESCE(email, '') AS email, COALESCE(section, '') AS section,
	COALESCE(department, '') AS department, is_active, created_at`

type studentDirectory struct {
	db sqlx.QueryerContext
}

var _ student.Directory = (*studentDirectory)(nil) // interface compliance check

func NewStudentDirectory(db sqlx.QueryerContext) *studentDirectory {
	return &studentDirectory{db: db}
}

func (dir studentDirectory) ListActiveStudents(ctx context.Context) ([]student.Student, error) {
	students := make([]student.Student, 0)
	q := `SELECT ` + studentColumns + ` FROM students WHERE is_active ORDER BY id`
	if err := sqlx.SelectContext(ctx, dir.db, &students, q); err != nil {
		return nil, wrapErr(err, "listing active students")
	}
	return students, nil
}

func (dir studentDirectory) GetStudent(ctx context.Context, id string) (student.Student, error) {
	var stu student.Student
	q := `SELECT ` + studentColumns + ` FROM students WHERE id = $1`
	if err := sqlx.GetContext(ctx, dir.db, &stu, q, id); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return student.Student{}, student.NotFound(id)
		}
		return student.Student{}, wrapErr(err, "getting student")
	}
	if !stu.IsActive {
		return student.Student{}, student.NotFound(id)
	}
	return stu, nil
}
