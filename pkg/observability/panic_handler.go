package observability

import (
	"fmt"
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

// RecoverPanic recovers from a panic and logs it with the stack trace.
// Call it in a defer; the panic is not re-raised.
func RecoverPanic(logger *logrus.Logger, where string) {
	if r := recover(); r != nil {
		logger.WithFields(logrus.Fields{
			"panic": fmt.Sprintf("%v", r),
			"stack": string(debug.Stack()),
			"where": where,
		}).Error("Panic recovered")
	}
}

// RecoverPanicWithCallback recovers from a panic, logs it, and then runs the
// callback. Use the callback to close channels or release locks that would
// otherwise deadlock waiters.
func RecoverPanicWithCallback(logger *logrus.Logger, where string, callback func()) {
	if r := recover(); r != nil {
		logger.WithFields(logrus.Fields{
			"panic": fmt.Sprintf("%v", r),
			"stack": string(debug.Stack()),
			"where": where,
		}).Error("Panic recovered")
		if callback != nil {
			callback()
		}
	}
}

// PanicToError converts a recovered panic value to an error. Returns nil when
// r is nil.
func PanicToError(r interface{}) error {
	if r != nil {
		return fmt.Errorf("panic: %v", r)
	}
	return nil
}
