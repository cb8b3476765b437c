package echoapi

import (
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/kipindi/core"
	"github.com/trezcool/kipindi/core/attendance"
)

const (
	windowDaysParam   = "window_days"
	defaultWindowDays = 30
)

type (
	RangeRequest struct {
		StartDate string `json:"start_date" validate:"required,isodate"`
		EndDate   string `json:"end_date" validate:"required,isodate"`
	}

	StatsQuery struct {
		WindowDays int `query:"window_days" validate:"min=1,max=366"`
	}

	StreakResponse struct {
		StudentID string `json:"student_id"`
		Streak    int    `json:"streak"`
	}
)

// Validate checks the payload and returns the parsed range.
func (r RangeRequest) Validate(validate *validator.Validate) (start, end time.Time, err error) {
	if err = validate.Struct(r); err != nil {
		return time.Time{}, time.Time{}, err
	}
	return attendance.ParseRange(r.StartDate, r.EndDate)
}

// Bind reads the query string; the window defaults to 30 days.
func (q *StatsQuery) Bind(ctx echo.Context) error {
	q.WindowDays = defaultWindowDays
	val := core.CleanString(ctx.QueryParam(windowDaysParam))
	if val == "" {
		return nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return core.NewValidationError(
			errors.Wrapf(err, "parsing %s", windowDaysParam),
			core.FieldError{Field: windowDaysParam, Error: "must be an integer"},
		)
	}
	q.WindowDays = n
	return nil
}

func (q StatsQuery) Validate(validate *validator.Validate) error {
	return validate.Struct(q)
}

// pathDate parses the `:date` path parameter.
func pathDate(ctx echo.Context) (time.Time, error) {
	return attendance.ParseDate(ctx.Param("date"))
}
