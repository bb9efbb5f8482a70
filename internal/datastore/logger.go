package datastore

import (
	"log/slog"
	"sync"

	"github.com/retracehq/retrace/internal/logging"
)

var (
	serviceLogger *slog.Logger
	loggerOnce    sync.Once
)

// getLogger returns the datastore service logger, falling back to the
// default slog logger before logging.Init has run.
func getLogger() *slog.Logger {
	loggerOnce.Do(func() {
		serviceLogger = logging.ForService("datastore")
	})
	if serviceLogger == nil {
		return slog.Default().With("service", "datastore")
	}
	return serviceLogger
}
