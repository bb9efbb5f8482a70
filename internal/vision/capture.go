package vision

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os/exec"
	"runtime"
	"strings"

	"github.com/retracehq/retrace/internal/errors"
)

// FFmpegCapturer grabs a single frame of the active monitor through the
// platform screen-grab input device of ffmpeg. The foreground application
// name comes from an optional provider; platforms without one report "".
type FFmpegCapturer struct {
	FFmpegPath string
	Monitor    string // display identifier, e.g. ":0.0" on X11
	AppName    func() string
}

// NewFFmpegCapturer creates a screen capturer for the current platform.
func NewFFmpegCapturer(ffmpegPath, monitor string) *FFmpegCapturer {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if monitor == "" {
		monitor = defaultMonitor()
	}
	return &FFmpegCapturer{FFmpegPath: ffmpegPath, Monitor: monitor}
}

func defaultMonitor() string {
	switch runtime.GOOS {
	case "darwin":
		return "1"
	case "windows":
		return "desktop"
	default:
		return ":0.0"
	}
}

// grabArgs returns the ffmpeg input arguments for the platform grab device.
func (c *FFmpegCapturer) grabArgs() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"-f", "avfoundation", "-capture_cursor", "1", "-i", c.Monitor}
	case "windows":
		return []string{"-f", "gdigrab", "-i", c.Monitor}
	default:
		return []string{"-f", "x11grab", "-i", c.Monitor}
	}
}

// MonitorID implements Capturer.
func (c *FFmpegCapturer) MonitorID() string { return c.Monitor }

// Capture implements Capturer.
func (c *FFmpegCapturer) Capture(ctx context.Context) (image.Image, string, error) {
	args := append(c.grabArgs(),
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-")

	cmd := exec.CommandContext(ctx, c.FFmpegPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, "", errors.New(err).
			Component("vision").
			Category(errors.CategoryCapture).
			Context("operation", "grab_frame").
			Context("monitor", c.Monitor).
			Context("stderr", lastLine(stderr.String())).
			Build()
	}

	img, err := png.Decode(&stdout)
	if err != nil {
		return nil, "", errors.New(err).
			Component("vision").
			Category(errors.CategoryCapture).
			Context("operation", "decode_frame").
			Build()
	}

	appName := ""
	if c.AppName != nil {
		appName = c.AppName()
	}
	return img, appName, nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}
