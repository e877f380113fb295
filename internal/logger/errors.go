package logger

import (
	"errors"
	"fmt"
	"os"
)

var (
	// ErrAppNameIsEmpty is returned if Log.AppName was not defined.
	ErrAppNameIsEmpty = errors.New("config Log.AppName can not be empty")

	// ErrServiceNameIsEmpty is returned if Log.ServiceName was not defined.
	ErrServiceNameIsEmpty = errors.New("config Log.ServiceName can not be empty")
)

// ErrorHandler reports events zerolog failed to write, e.g. a full disk below the rolling files.
func ErrorHandler(err error) {
	writeFailures.Inc()

	_, _ = fmt.Fprintf(os.Stderr, "rolemirror: log event dropped: %v\n", err)
}
