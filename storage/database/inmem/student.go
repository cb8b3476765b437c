package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/kipindi/core/student"
)

type studentDirectory struct {
	db *studentTable
}

var _ student.Directory = (*studentDirectory)(nil) // interface compliance check

func NewStudentDirectory(db *DB) *studentDirectory {
	return &studentDirectory{db: db.student}
}

// SaveStudent creates or replaces a student.
func (dir *studentDirectory) SaveStudent(stu student.Student) student.Student {
	dir.db.Lock()
	defer dir.db.Unlock()

	dir.db.table[stu.ID] = &stu
	return stu
}

func (dir *studentDirectory) ListActiveStudents(_ context.Context) ([]student.Student, error) {
	dir.db.RLock()
	defer dir.db.RUnlock()

	students := make([]student.Student, 0, len(dir.db.table))
	for _, stu := range dir.db.table {
		if stu.IsActive {
			students = append(students, *stu)
		}
	}
	sort.Slice(students, func(i, j int) bool { return students[i].ID < students[j].ID })
	return students, nil
}

func (dir *studentDirectory) GetStudent(_ context.Context, id string) (student.Student, error) {
	dir.db.RLock()
	defer dir.db.RUnlock()

	if stu, ok := dir.db.table[id]; ok && stu.IsActive {
		return *stu, nil
	}
	return student.Student{}, student.NotFound(id)
}
