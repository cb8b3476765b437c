package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/trezcool/kipindi/core"
	"github.com/trezcool/kipindi/core/attendance"
	"github.com/trezcool/kipindi/core/batch"
	emailsvc "github.com/trezcool/kipindi/services/email"
	logsvc "github.com/trezcool/kipindi/services/logger"
	"github.com/trezcool/kipindi/storage"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up DB; migrations are run on demand by the `migrate` command
	stores, err := storage.Open(conf, false /* migrate */)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}

	// set up services
	svc := attendance.NewService(stores.Students, stores.Records, stores.Summaries, logger, conf)
	runner := batch.NewRunner(stores.Students, svc, logger, emailsvc.NewConsoleService(conf), conf)

	// start CLI
	cli := commandLine{
		svc:    svc,
		runner: runner,
		out:    os.Stdout,
	}
	if stores.DB != nil {
		cli.db = stores.DB.DB
	}
	// a shutdown signal cancels the running command; recalculations stop dispatching students
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = cli.run(ctx, os.Args)
	stop()
	_ = stores.Close()
	if err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
