package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/trezcool/kipindi/core/attendance"
	"github.com/trezcool/kipindi/core/batch"
)

func (cli *commandLine) recalc(ctx context.Context, job string, args []string) error {
	var (
		report batch.BatchReport
		err    error
	)
	switch batch.Job(job) {
	case batch.JobDaily:
		report, err = cli.runner.RunDaily(ctx)
	case batch.JobWeekly:
		report, err = cli.runner.RunWeekly(ctx)
	case batch.JobRange:
		rangeCmd := flag.NewFlagSet("recalc range", flag.ContinueOnError)
		rangeCmd.SetOutput(cli.out)
		from := rangeCmd.String("from", "", "The first day to recalculate (YYYY-MM-DD).")
		to := rangeCmd.String("to", "", "The last day to recalculate (YYYY-MM-DD).")
		if err = rangeCmd.Parse(args); err != nil {
			return err
		}
		if *from == "" || *to == "" {
			rangeCmd.Usage()
			return errHelp
		}
		start, end, perr := attendance.ParseRange(*from, *to)
		if perr != nil {
			return perr
		}
		report, err = cli.runner.RunRange(ctx, start, end)
	default:
		cli.printUsage()
		return errHelp
	}
	if err != nil {
		if report.Cancelled {
			cli.printReport(report)
		}
		return err
	}

	cli.printReport(report)
	return nil
}

func (cli *commandLine) printReport(report batch.BatchReport) {
	fmt.Fprintln(cli.out, report.Summary())
	for _, e := range report.Errors {
		fmt.Fprintf(cli.out, "  %s: %s\n", e.StudentID, e.Message)
	}
}
