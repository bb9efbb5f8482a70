// Package httpcontroller exposes the HTTP control and query surface of the
// recording pipeline.
package httpcontroller

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/retracehq/retrace/internal/conf"
	"github.com/retracehq/retrace/internal/datastore"
	"github.com/retracehq/retrace/internal/logging"
	"github.com/retracehq/retrace/internal/myaudio"
	"github.com/retracehq/retrace/internal/observability"
)

// DeviceController is the supervisor surface the API needs: command
// submission and the published device table.
type DeviceController interface {
	Push(device myaudio.AudioDevice, control myaudio.DeviceControl)
	DeviceStatus(id string) (myaudio.DeviceControl, bool)
	Devices() []myaudio.DeviceState
}

// Controller manages the API routes and handlers.
type Controller struct {
	Echo     *echo.Echo
	DS       datastore.Interface
	Settings *conf.Settings

	visionControl *atomic.Bool
	devices       DeviceController
	metrics       *observability.Metrics
	startTime     time.Time

	apiLogger      *slog.Logger
	apiLevelVar    *slog.LevelVar
	apiLoggerClose func() error
}

// New creates the API controller and registers all routes.
func New(settings *conf.Settings, ds datastore.Interface, visionControl *atomic.Bool, devices DeviceController, metrics *observability.Metrics) *Controller {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	c := &Controller{
		Echo:          e,
		DS:            ds,
		Settings:      settings,
		visionControl: visionControl,
		devices:       devices,
		metrics:       metrics,
		startTime:     time.Now(),
	}

	c.apiLevelVar = new(slog.LevelVar)
	c.apiLevelVar.Set(slog.LevelInfo)
	apiLogger, closeFunc, err := logging.NewFileLogger("logs/web.log", "api", c.apiLevelVar)
	if err != nil {
		c.apiLogger = logging.DiscardLogger("api", c.apiLevelVar)
		c.apiLoggerClose = func() error { return nil }
	} else {
		c.apiLogger = apiLogger
		c.apiLoggerClose = closeFunc
	}

	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(c.LoggingMiddleware())

	c.initRoutes()
	return c
}

// initRoutes registers the control/query endpoints.
func (c *Controller) initRoutes() {
	c.Echo.GET("/search", c.Search)
	c.Echo.POST("/audio/start", c.StartDevice)
	c.Echo.POST("/audio/stop", c.StopDevice)
	c.Echo.POST("/audio/status", c.DeviceStatus)
	c.Echo.GET("/audio/list", c.ListDevices)
	c.Echo.POST("/vision/start", c.StartRecording)
	c.Echo.POST("/vision/stop", c.StopRecording)
	c.Echo.GET("/vision/status", c.RecordingStatus)
	c.Echo.GET("/health", c.Health)

	if c.metrics != nil {
		c.Echo.GET("/metrics", echo.WrapHandler(c.metrics.Handler()))
	}
}

// LoggingMiddleware records request outcomes to the API log file.
func (c *Controller) LoggingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)
			c.apiLogger.Info("Handled request",
				"method", ctx.Request().Method,
				"path", ctx.Request().URL.Path,
				"status", ctx.Response().Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"ip", ctx.RealIP())
			return err
		}
	}
}

// Start serves the API on the configured port; it blocks until the server
// stops.
func (c *Controller) Start() error {
	addr := ":" + c.Settings.WebServer.Port
	c.apiLogger.Info("Starting HTTP server", "addr", addr)
	err := c.Echo.Start(addr)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server and closes the API log.
func (c *Controller) Shutdown(ctx context.Context) error {
	err := c.Echo.Shutdown(ctx)
	if closeErr := c.apiLoggerClose(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
