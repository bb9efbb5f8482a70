package httpcontroller

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/retracehq/retrace/internal/datastore"
	"github.com/retracehq/retrace/internal/myaudio"
)

const defaultSearchLimit = 20

// PaginatedResponse wraps search results with paging metadata.
type PaginatedResponse struct {
	Data       []ContentItem  `json:"data"`
	Pagination PaginationInfo `json:"pagination"`
}

// PaginationInfo echoes the paging parameters plus the total row count.
type PaginationInfo struct {
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
	Total  int64 `json:"total"`
}

// ContentItem is the tagged union of search results on the wire.
type ContentItem struct {
	Type    string `json:"type"`
	Content any    `json:"content"`
}

// DeviceRequest is the body of the audio control endpoints.
type DeviceRequest struct {
	DeviceID string `json:"device_id"`
}

// DeviceStatusResponse reports a device's run state.
type DeviceStatusResponse struct {
	ID        string `json:"id"`
	IsRunning bool   `json:"is_running"`
}

// RecordingStatusResponse reports the vision recording flag.
type RecordingStatusResponse struct {
	IsRunning bool `json:"is_running"`
}

func errorJSON(message string) map[string]string {
	return map[string]string{"error": message}
}

// parsePositiveInt parses a numeric-string query parameter.
func parsePositiveInt(raw string, def int) (int, bool) {
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func parseTimeParam(raw string) (*time.Time, bool) {
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, false
	}
	utc := t.UTC()
	return &utc, true
}

// Search handles GET /search.
func (c *Controller) Search(ctx echo.Context) error {
	q := ctx.QueryParam("q")

	limit, ok := parsePositiveInt(ctx.QueryParam("limit"), defaultSearchLimit)
	if !ok {
		return ctx.JSON(http.StatusBadRequest, errorJSON("invalid limit"))
	}
	offset, ok := parsePositiveInt(ctx.QueryParam("offset"), 0)
	if !ok {
		return ctx.JSON(http.StatusBadRequest, errorJSON("invalid offset"))
	}
	startTime, ok := parseTimeParam(ctx.QueryParam("start_time"))
	if !ok {
		return ctx.JSON(http.StatusBadRequest, errorJSON("invalid start_time"))
	}
	endTime, ok := parseTimeParam(ctx.QueryParam("end_time"))
	if !ok {
		return ctx.JSON(http.StatusBadRequest, errorJSON("invalid end_time"))
	}

	appName := ctx.QueryParam("app_name")
	contentType := datastore.ParseContentType(ctx.QueryParam("content_type"))
	// Audio has no foreground app; an app filter implies OCR.
	if appName != "" {
		contentType = datastore.ContentTypeOCR
	}

	results, err := c.DS.Search(q, contentType, limit, offset, startTime, endTime, appName)
	if err != nil {
		c.apiLogger.Error("Search failed", "error", err)
		return ctx.JSON(http.StatusInternalServerError, errorJSON("Failed to search for content: "+err.Error()))
	}
	total, err := c.DS.CountSearchResults(q, contentType, startTime, endTime, appName)
	if err != nil {
		c.apiLogger.Error("Count failed", "error", err)
		return ctx.JSON(http.StatusInternalServerError, errorJSON("Failed to count search results: "+err.Error()))
	}

	items := make([]ContentItem, 0, len(results))
	for _, result := range results {
		items = append(items, intoContentItem(result))
	}

	return ctx.JSON(http.StatusOK, PaginatedResponse{
		Data: items,
		Pagination: PaginationInfo{
			Limit:  limit,
			Offset: offset,
			Total:  total,
		},
	})
}

func intoContentItem(result datastore.SearchResult) ContentItem {
	switch v := result.(type) {
	case datastore.OCRResult:
		return ContentItem{Type: "OCR", Content: v}
	case datastore.AudioResult:
		return ContentItem{Type: "Audio", Content: v}
	default:
		return ContentItem{Type: "Unknown"}
	}
}

// StartDevice handles POST /audio/start.
func (c *Controller) StartDevice(ctx echo.Context) error {
	return c.pushDeviceControl(ctx, true)
}

// StopDevice handles POST /audio/stop.
func (c *Controller) StopDevice(ctx echo.Context) error {
	return c.pushDeviceControl(ctx, false)
}

func (c *Controller) pushDeviceControl(ctx echo.Context, running bool) error {
	var payload DeviceRequest
	if err := ctx.Bind(&payload); err != nil {
		return ctx.JSON(http.StatusBadRequest, errorJSON("Invalid request body"))
	}
	device, err := myaudio.ParseDevice(payload.DeviceID)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, errorJSON("Invalid device ID"))
	}

	c.devices.Push(device, myaudio.DeviceControl{IsRunning: running})

	return ctx.JSON(http.StatusOK, DeviceStatusResponse{
		ID:        payload.DeviceID,
		IsRunning: running,
	})
}

// DeviceStatus handles POST /audio/status. The POST-with-body shape is kept
// for compatibility with existing clients.
func (c *Controller) DeviceStatus(ctx echo.Context) error {
	var payload DeviceRequest
	if err := ctx.Bind(&payload); err != nil {
		return ctx.JSON(http.StatusBadRequest, errorJSON("Invalid request body"))
	}
	if _, err := myaudio.ParseDevice(payload.DeviceID); err != nil {
		return ctx.JSON(http.StatusBadRequest, errorJSON("Invalid device ID"))
	}

	control, ok := c.devices.DeviceStatus(payload.DeviceID)
	if !ok {
		return ctx.JSON(http.StatusNotFound, errorJSON("Device not found"))
	}
	return ctx.JSON(http.StatusOK, DeviceStatusResponse{
		ID:        payload.DeviceID,
		IsRunning: control.IsRunning,
	})
}

// ListDevices handles GET /audio/list.
func (c *Controller) ListDevices(ctx echo.Context) error {
	states := c.devices.Devices()
	out := make([]DeviceStatusResponse, 0, len(states))
	for _, state := range states {
		out = append(out, DeviceStatusResponse{ID: state.ID, IsRunning: state.IsRunning})
	}
	return ctx.JSON(http.StatusOK, out)
}

// StartRecording handles POST /vision/start.
func (c *Controller) StartRecording(ctx echo.Context) error {
	c.visionControl.Store(true)
	return ctx.JSON(http.StatusOK, RecordingStatusResponse{IsRunning: true})
}

// StopRecording handles POST /vision/stop.
func (c *Controller) StopRecording(ctx echo.Context) error {
	c.visionControl.Store(false)
	return ctx.JSON(http.StatusOK, RecordingStatusResponse{IsRunning: false})
}

// RecordingStatus handles GET /vision/status.
func (c *Controller) RecordingStatus(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, RecordingStatusResponse{IsRunning: c.visionControl.Load()})
}
