package student

import (
	"context"
	"time"

	"github.com/trezcool/kipindi/core"
)

// NotFound returns a core.NotFoundError for the given student ID.
func NotFound(id string) error {
	return core.NewNotFoundError("student", id)
}

type Student struct {
	ID         string    `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	Email      string    `json:"email" db:"email"`
	Section    string    `json:"section" db:"section"`
	Department string    `json:"department" db:"department"`
	IsActive   bool      `json:"is_active" db:"is_active"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"` // UTC
}

// Directory is the read-only view of the portal's student records.
type Directory interface {
	ListActiveStudents(ctx context.Context) ([]Student, error)
	// GetStudent returns NotFound for unknown AND inactive students.
	GetStudent(ctx context.Context, id string) (Student, error)
}
