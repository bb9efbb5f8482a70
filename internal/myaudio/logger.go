package myaudio

import (
	"log/slog"
	"sync"

	"github.com/retracehq/retrace/internal/logging"
)

var (
	serviceLogger *slog.Logger
	loggerOnce    sync.Once
)

func getLogger() *slog.Logger {
	loggerOnce.Do(func() {
		serviceLogger = logging.ForService("myaudio")
	})
	if serviceLogger == nil {
		return slog.Default().With("service", "myaudio")
	}
	return serviceLogger
}
