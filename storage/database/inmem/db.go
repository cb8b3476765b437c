package inmemdb

import (
	"sync"

	"github.com/trezcool/kipindi/core/attendance"
	"github.com/trezcool/kipindi/core/student"
)

type (
	DB struct {
		student *studentTable
		record  *recordTable
		summary *summaryTable
	}

	studentTable struct {
		sync.RWMutex
		table map[string]*student.Student
	}

	recordTable struct {
		sync.RWMutex
		table map[string][]attendance.RawRecord // {YYYY-MM-DD: records}
	}

	summaryTable struct {
		sync.RWMutex
		table map[summaryKey]*attendance.DailySummary
	}

	summaryKey struct {
		studentID string
		date      string
	}
)

func Open() (*DB, error) {
	db := &DB{
		student: &studentTable{table: make(map[string]*student.Student)},
		record:  &recordTable{table: make(map[string][]attendance.RawRecord)},
		summary: &summaryTable{table: make(map[summaryKey]*attendance.DailySummary)},
	}
	return db, nil
}
