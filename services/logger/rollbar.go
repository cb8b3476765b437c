package logsvc

import (
	"log"
	"sync"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/trezcool/kipindi/core"
	"github.com/trezcool/kipindi/core/student"
)

// rollbar's person is global: serialize prepare+send so concurrent workers don't swap persons.
var mu sync.Mutex

type RollbarLogger struct {
	std *log.Logger
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	return &RollbarLogger{std: std}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// expected fmt: msg | error, map[string]interface{}, student.Student
func (l RollbarLogger) prepare(msg string, args []interface{}) []interface{} {
	var stuSet bool
	newArgs := make([]interface{}, 0, len(args)+1)
	newArgs = append(newArgs, msg)
	for _, arg := range args {
		// the student being processed
		if stu, ok := arg.(student.Student); ok {
			if !stuSet { // only set one Student
				rollbar.SetPerson(stu.ID, stu.Name, stu.Email)
				stuSet = true
			}
		} else {
			newArgs = append(newArgs, arg)
		}
	}
	if !stuSet {
		rollbar.ClearPerson()
	}
	return newArgs
}

func (l RollbarLogger) print(msg string, args []interface{}) {
	l.std.Println(msg)
	for _, arg := range args {
		if _, ok := arg.(student.Student); ok {
			continue
		}
		l.std.Printf("%+v\n", arg)
	}
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	mu.Lock()
	rollbar.Debug(l.prepare(msg, args)...)
	mu.Unlock()
	l.print(msg, args)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	mu.Lock()
	rollbar.Info(l.prepare(msg, args)...)
	mu.Unlock()
	l.print(msg, args)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	mu.Lock()
	rollbar.Warning(l.prepare(msg, args)...)
	mu.Unlock()
	l.print(msg, args)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	mu.Lock()
	rollbar.Error(l.prepare(msg, args)...)
	mu.Unlock()
	l.print(msg, args)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	mu.Lock()
	rollbar.Critical(l.prepare(msg, args)...)
	mu.Unlock()
	l.print(msg, args)
	l.std.Fatal(msg)
}
