package httpcontroller

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

const (
	healthLoadingWindow  = 120 * time.Second
	healthStaleThreshold = 60 * time.Second
)

// Stream and overall health labels.
const (
	healthLoading   = "Loading"
	healthOK        = "OK"
	healthStale     = "Stale"
	healthNoData    = "No data"
	healthHealthy   = "Healthy"
	healthUnhealthy = "Unhealthy"
)

// HealthResponse classifies the freshness of both capture streams.
type HealthResponse struct {
	Status             string     `json:"status"`
	LastFrameTimestamp *time.Time `json:"last_frame_timestamp"`
	LastAudioTimestamp *time.Time `json:"last_audio_timestamp"`
	FrameStatus        string     `json:"frame_status"`
	AudioStatus        string     `json:"audio_status"`
	Message            string     `json:"message"`
	VerboseInstructions *string   `json:"verbose_instructions"`
}

// Health handles GET /health.
func (c *Controller) Health(ctx echo.Context) error {
	lastFrame, lastAudio, err := c.DS.GetLatestTimestamps()
	if err != nil {
		c.apiLogger.Error("Failed to get latest timestamps", "error", err)
		lastFrame, lastAudio = nil, nil
	}

	now := time.Now()

	if now.Sub(c.startTime) < healthLoadingWindow {
		return ctx.JSON(http.StatusOK, HealthResponse{
			Status:             healthLoading,
			LastFrameTimestamp: lastFrame,
			LastAudioTimestamp: lastAudio,
			FrameStatus:        healthLoading,
			AudioStatus:        healthLoading,
			Message:            "The application is still initializing. Please wait...",
		})
	}

	frameStatus := classifyStream(lastFrame, now)
	audioStatus := classifyStream(lastAudio, now)

	if frameStatus == healthOK && audioStatus == healthOK {
		return ctx.JSON(http.StatusOK, HealthResponse{
			Status:             healthHealthy,
			LastFrameTimestamp: lastFrame,
			LastAudioTimestamp: lastAudio,
			FrameStatus:        frameStatus,
			AudioStatus:        audioStatus,
			Message:            "All systems are functioning normally.",
		})
	}

	instructions := "If you're experiencing issues, please try the following steps:\n" +
		"1. Restart the service.\n" +
		"2. Check your OS screen recording and microphone permissions.\n" +
		"3. Verify that recording is enabled (/vision/status) and at least one audio device is running (/audio/list).\n" +
		"4. Inspect logs/retrace.log for capture or database errors."
	return ctx.JSON(http.StatusOK, HealthResponse{
		Status:             healthUnhealthy,
		LastFrameTimestamp: lastFrame,
		LastAudioTimestamp: lastAudio,
		FrameStatus:        frameStatus,
		AudioStatus:        audioStatus,
		Message: fmt.Sprintf("Some systems are not functioning properly. Frame status: %s, Audio status: %s",
			frameStatus, audioStatus),
		VerboseInstructions: &instructions,
	})
}

func classifyStream(last *time.Time, now time.Time) string {
	switch {
	case last == nil:
		return healthNoData
	case now.Sub(*last) < healthStaleThreshold:
		return healthOK
	default:
		return healthStale
	}
}
