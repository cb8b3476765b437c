package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/trezcool/kipindi/core/attendance"
	"github.com/trezcool/kipindi/core/batch"
)

var errHelp = errors.New("help provided")

type (
	engine interface {
		GetStreak(ctx context.Context, studentID string) (int, error)
		GetStats(ctx context.Context, studentID string, windowDays int) (attendance.Stats, error)
	}

	recalculator interface {
		RunDaily(ctx context.Context) (batch.BatchReport, error)
		RunWeekly(ctx context.Context) (batch.BatchReport, error)
		RunRange(ctx context.Context, start, end time.Time) (batch.BatchReport, error)
	}
)

var (
	_ engine       = (*attendance.Service)(nil)
	_ recalculator = (*batch.Runner)(nil)
)

type commandLine struct {
	db     *sql.DB // nil with the in-memory backend
	svc    engine
	runner recalculator
	out    io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS...]             - run a goose command (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  recalc daily|weekly                   - run a recalculation job now")
	fmt.Fprintln(cli.out, "  recalc range -from DATE -to DATE      - recalculate every day of a range (YYYY-MM-DD)")
	fmt.Fprintln(cli.out, "  streak -student ID                    - print the streak of a student")
	fmt.Fprintln(cli.out, "  stats -student ID [-window DAYS]      - print the attendance stats of a student")
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	streakCmd := flag.NewFlagSet("streak", flag.ContinueOnError)
	streakCmd.SetOutput(cli.out)
	streakStudent := streakCmd.String("student", "", "The student's ID.")

	statsCmd := flag.NewFlagSet("stats", flag.ContinueOnError)
	statsCmd.SetOutput(cli.out)
	statsStudent := statsCmd.String("student", "", "The student's ID.")
	statsWindow := statsCmd.Int("window", 30, "The number of days to aggregate, today included.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "recalc":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.recalc(ctx, args[2], args[3:])
	case "streak":
		if err := streakCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *streakStudent == "" {
			streakCmd.Usage()
			return errHelp
		}
		n, err := cli.svc.GetStreak(ctx, *streakStudent)
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "streak of %s: %d\n", *streakStudent, n)
		return nil
	case "stats":
		if err := statsCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *statsStudent == "" {
			statsCmd.Usage()
			return errHelp
		}
		stats, err := cli.svc.GetStats(ctx, *statsStudent, *statsWindow)
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "stats of %s [%s..%s]: %d days, %d full days, %d/%d hours, %s%%\n",
			stats.StudentID, attendance.FormatDate(stats.From), attendance.FormatDate(stats.To),
			stats.TotalDays, stats.FullAttendanceDays, stats.TotalHours, stats.TotalPossibleHours,
			stats.AttendancePercentage.StringFixed(2))
		return nil
	default:
		cli.printUsage()
		return errHelp
	}
}
