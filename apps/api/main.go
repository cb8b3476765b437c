package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	echoapi "github.com/trezcool/kipindi/apps/api/echo"
	"github.com/trezcool/kipindi/core"
	"github.com/trezcool/kipindi/core/attendance"
	"github.com/trezcool/kipindi/core/batch"
	emailsvc "github.com/trezcool/kipindi/services/email"
	logsvc "github.com/trezcool/kipindi/services/logger"
	"github.com/trezcool/kipindi/storage"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	batchLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "BATCH : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	// set up DB
	stores, err := storage.Open(conf, true /* migrate */)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = stores.Close(); err != nil {
			logger.Error("failed to close database", err)
		}
	}()

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	attendanceSvc := attendance.NewService(stores.Students, stores.Records, stores.Summaries, logger, conf)
	runner := batch.NewRunner(stores.Students, attendanceSvc, batchLogger, mailSvc, conf)
	scheduler, err := batch.NewScheduler(runner, batchLogger, conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up scheduler: %v", err), err)
	}

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.Publish("batch", expvar.Func(func() interface{} {
		return lastReports(scheduler)
	}))

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start Scheduler & API Service

	scheduler.Start()

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:         conf,
			Logger:       logger,
			Attendance:   attendanceSvc,
			Recalculator: scheduler,
			Validate:     validate,
			Translator:   translator,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		<-scheduler.Stop().Done()
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests and running jobs a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		jobsDone := scheduler.Stop()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}

		select {
		case <-jobsDone.Done():
		case <-ctx.Done():
			logger.Warn("recalculation jobs still running at shutdown deadline")
		}
	}
}

type reportVars struct {
	RunID      string `json:"run_id"`
	FinishedAt string `json:"finished_at"`
	Students   int    `json:"students"`
	Processed  int    `json:"processed"`
	Errors     int    `json:"errors"`
	Cancelled  bool   `json:"cancelled"`
}

// lastReports returns the counters of the last run of each job, for /debug/vars.
func lastReports(scheduler *batch.Scheduler) map[batch.Job]reportVars {
	out := make(map[batch.Job]reportVars, 3)
	for _, job := range []batch.Job{batch.JobDaily, batch.JobWeekly, batch.JobRange} {
		if r, ok := scheduler.LastReport(job); ok {
			out[job] = reportVars{
				RunID:      r.RunID.String(),
				FinishedAt: r.FinishedAt.Format("2006-01-02T15:04:05Z07:00"),
				Students:   r.Students,
				Processed:  r.Processed,
				Errors:     r.ErrorCount,
				Cancelled:  r.Cancelled,
			}
		}
	}
	return out
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
