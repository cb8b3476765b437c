package echoapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/kipindi/core/attendance"
	"github.com/trezcool/kipindi/core/batch"
)

var errHttpNotFound = echo.NewHTTPError(http.StatusNotFound, "not found")

type (
	AttendanceService interface {
		GetSummary(ctx context.Context, studentID string, date time.Time) (attendance.DailySummary, error)
		Calculate(ctx context.Context, studentID string, date time.Time) (attendance.DailySummary, error)
		GetStreak(ctx context.Context, studentID string) (int, error)
		GetStats(ctx context.Context, studentID string, windowDays int) (attendance.Stats, error)
	}

	Recalculator interface {
		TriggerDailyCalculation(ctx context.Context) (batch.BatchReport, error)
		TriggerDateRangeCalculation(ctx context.Context, start, end time.Time) (batch.BatchReport, error)
		LastReport(job batch.Job) (batch.BatchReport, bool)
	}
)

var (
	_ AttendanceService = (*attendance.Service)(nil)
	_ Recalculator      = (*batch.Scheduler)(nil)
)

type attendanceApi struct {
	svc      AttendanceService
	recalc   Recalculator
	validate *validator.Validate
}

func registerAttendanceAPI(g *echo.Group, svc AttendanceService, recalc Recalculator, validate *validator.Validate) {
	api := attendanceApi{
		svc:      svc,
		recalc:   recalc,
		validate: validate,
	}

	sg := g.Group("/students/:id")
	sg.GET("/attendance/:date", api.summary)
	sg.POST("/attendance/:date/recalculate", api.recalculate)
	sg.GET("/streak", api.streak)
	sg.GET("/stats", api.stats)

	rg := g.Group("/attendance/recalculations")
	rg.POST("/daily", api.recalculateDaily)
	rg.POST("/range", api.recalculateRange)
	rg.GET("/:job/last", api.lastReport)
}

// Handlers

func (api *attendanceApi) summary(ctx echo.Context) error {
	date, err := pathDate(ctx)
	if err != nil {
		return err
	}
	summary, err := api.svc.GetSummary(ctx.Request().Context(), ctx.Param("id"), date)
	if err != nil {
		return errors.Wrap(err, "getting daily summary")
	}
	return ctx.JSON(http.StatusOK, summary)
}

func (api *attendanceApi) recalculate(ctx echo.Context) error {
	date, err := pathDate(ctx)
	if err != nil {
		return err
	}
	summary, err := api.svc.Calculate(ctx.Request().Context(), ctx.Param("id"), date)
	if err != nil {
		return errors.Wrap(err, "calculating daily summary")
	}
	return ctx.JSON(http.StatusOK, summary)
}

func (api *attendanceApi) streak(ctx echo.Context) error {
	id := ctx.Param("id")
	n, err := api.svc.GetStreak(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting streak")
	}
	return ctx.JSON(http.StatusOK, StreakResponse{StudentID: id, Streak: n})
}

func (api *attendanceApi) stats(ctx echo.Context) error {
	var query StatsQuery
	if err := query.Bind(ctx); err != nil {
		return err
	}
	if err := query.Validate(api.validate); err != nil {
		return err
	}
	stats, err := api.svc.GetStats(ctx.Request().Context(), ctx.Param("id"), query.WindowDays)
	if err != nil {
		return errors.Wrap(err, "getting stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *attendanceApi) recalculateDaily(ctx echo.Context) error {
	report, err := api.recalc.TriggerDailyCalculation(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "running daily recalculation")
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *attendanceApi) recalculateRange(ctx echo.Context) error {
	var data RangeRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RangeRequest")
	}
	start, end, err := data.Validate(api.validate)
	if err != nil {
		return err
	}
	report, err := api.recalc.TriggerDateRangeCalculation(ctx.Request().Context(), start, end)
	if err != nil {
		return errors.Wrap(err, "running range recalculation")
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *attendanceApi) lastReport(ctx echo.Context) error {
	job := batch.Job(ctx.Param("job"))
	switch job {
	case batch.JobDaily, batch.JobWeekly, batch.JobRange:
	default:
		return errHttpNotFound
	}
	report, ok := api.recalc.LastReport(job)
	if !ok {
		return errHttpNotFound
	}
	return ctx.JSON(http.StatusOK, report)
}
