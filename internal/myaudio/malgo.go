package myaudio

import (
	"context"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/retracehq/retrace/internal/errors"
	"github.com/smallnest/ringbuffer"
)

// MalgoEnumerator lists soundcard devices through miniaudio.
type MalgoEnumerator struct{}

// Devices implements Enumerator.
func (MalgoEnumerator) Devices() ([]AudioDevice, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, errors.New(err).
			Component("myaudio").
			Category(errors.CategoryAudioDevice).
			Context("operation", "init_context").
			Build()
	}
	defer func() {
		_ = mctx.Uninit()
		mctx.Free()
	}()

	var devices []AudioDevice

	captures, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return nil, errors.New(err).
			Component("myaudio").
			Category(errors.CategoryAudioDevice).
			Context("operation", "enumerate_capture_devices").
			Build()
	}
	for _, info := range captures {
		devices = append(devices, AudioDevice{Name: info.Name(), Type: DeviceTypeInput})
	}

	playbacks, err := mctx.Devices(malgo.Playback)
	if err != nil {
		return nil, errors.New(err).
			Component("myaudio").
			Category(errors.CategoryAudioDevice).
			Context("operation", "enumerate_playback_devices").
			Build()
	}
	for _, info := range playbacks {
		devices = append(devices, AudioDevice{Name: info.Name(), Type: DeviceTypeOutput})
	}

	return devices, nil
}

// CaptureSource records raw PCM from a device for a bounded duration.
type CaptureSource interface {
	// Record captures s16le mono PCM for the given duration. It returns
	// whatever was captured when ctx ends early.
	Record(ctx context.Context, device AudioDevice, duration time.Duration) ([]byte, error)
}

// MalgoSource captures PCM through miniaudio. Output devices are captured
// via the loopback device type where the backend supports it.
type MalgoSource struct {
	SampleRate int
}

// bytesPerSample for s16le mono.
const bytesPerSample = 2

// Record implements CaptureSource.
func (s *MalgoSource) Record(ctx context.Context, device AudioDevice, duration time.Duration) ([]byte, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, errors.New(err).
			Component("myaudio").
			Category(errors.CategoryAudioDevice).
			Context("operation", "init_context").
			Context("device", device.String()).
			Build()
	}
	defer func() {
		_ = mctx.Uninit()
		mctx.Free()
	}()

	deviceType := malgo.Capture
	if device.Type == DeviceTypeOutput {
		deviceType = malgo.Loopback
	}

	deviceConfig := malgo.DefaultDeviceConfig(deviceType)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(s.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	if id, ok := s.findDeviceID(mctx, device); ok {
		deviceConfig.Capture.DeviceID = id.Pointer()
	}

	targetBytes := int(float64(s.SampleRate) * duration.Seconds() * bytesPerSample)

	// The ring buffer decouples the realtime miniaudio callback from the
	// chunk assembly below; the callback must never block.
	rb := ringbuffer.New(targetBytes + s.SampleRate*bytesPerSample)

	onRecvFrames := func(pOutput, pInput []byte, frameCount uint32) {
		_, _ = rb.Write(pInput)
	}

	dev, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onRecvFrames})
	if err != nil {
		return nil, errors.New(err).
			Component("myaudio").
			Category(errors.CategoryAudioDevice).
			Context("operation", "init_device").
			Context("device", device.String()).
			Build()
	}
	defer dev.Uninit()

	if err := dev.Start(); err != nil {
		return nil, errors.New(err).
			Component("myaudio").
			Category(errors.CategoryCapture).
			Context("operation", "start_device").
			Context("device", device.String()).
			Build()
	}

	pcm := make([]byte, 0, targetBytes)
	buf := make([]byte, 4096)
	deadline := time.NewTimer(duration)
	defer deadline.Stop()
	poll := time.NewTicker(20 * time.Millisecond)
	defer poll.Stop()

collect:
	for len(pcm) < targetBytes {
		select {
		case <-ctx.Done():
			break collect
		case <-deadline.C:
			break collect
		case <-poll.C:
			n, _ := rb.Read(buf)
			if n > 0 {
				pcm = append(pcm, buf[:n]...)
			}
		}
	}

	if err := dev.Stop(); err != nil {
		return nil, errors.New(err).
			Component("myaudio").
			Category(errors.CategoryCapture).
			Context("operation", "stop_device").
			Context("device", device.String()).
			Build()
	}

	// Drain whatever the callback wrote after the last poll.
	for {
		n, _ := rb.Read(buf)
		if n == 0 {
			break
		}
		pcm = append(pcm, buf[:n]...)
	}
	if len(pcm) > targetBytes {
		pcm = pcm[:targetBytes]
	}

	return pcm, nil
}

// findDeviceID resolves the miniaudio device ID by name; the backend
// default device is used when the name is not found.
func (s *MalgoSource) findDeviceID(mctx *malgo.AllocatedContext, device AudioDevice) (malgo.DeviceID, bool) {
	kind := malgo.Capture
	if device.Type == DeviceTypeOutput {
		kind = malgo.Playback
	}
	infos, err := mctx.Devices(kind)
	if err != nil {
		return malgo.DeviceID{}, false
	}
	for _, info := range infos {
		if info.Name() == device.Name {
			return info.ID, true
		}
	}
	return malgo.DeviceID{}, false
}
