package sqlxrepos

import (
	"context"
	"database/sql"
	"database/sql/driver"
	stderrors "errors"
	"net"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/kipindi/core"
)

// pq error classes worth a retry.
var transientClasses = map[pq.ErrorClass]bool{
	"08": true, // connection exception
	"40": true, // transaction rollback (serialization failure, deadlock)
	"53": true, // insufficient resources
	"57": true, // operator intervention (admin shutdown, cannot connect now)
}

// wrapErr wraps err with msg, marking it as a core.TransientError if the store was unreachable.
func wrapErr(err error, msg string) error {
	if err == nil {
		return nil
	}
	if isTransient(err) {
		return core.NewTransientError(msg, err)
	}
	return errors.Wrap(err, msg)
}

func isTransient(err error) bool {
	cause := errors.Cause(err)
	switch cause {
	case driver.ErrBadConn, sql.ErrConnDone, context.DeadlineExceeded:
		return true
	}
	if pqErr, ok := cause.(*pq.Error); ok {
		return transientClasses[pqErr.Code.Class()]
	}
	var netErr net.Error
	return stderrors.As(cause, &netErr)
}
