// Package myaudio manages audio capture devices: enumeration, per-device
// chunk recording and the supervisor that owns the capture workers.
package myaudio

import (
	"fmt"
	"strings"

	"github.com/retracehq/retrace/internal/errors"
)

// DeviceType distinguishes microphones from system-audio (output) devices.
type DeviceType string

const (
	DeviceTypeInput  DeviceType = "input"
	DeviceTypeOutput DeviceType = "output"
)

// AudioDevice identifies a capturable audio device. Its string form
// "Name (input)" doubles as the wire device_id.
type AudioDevice struct {
	Name string
	Type DeviceType
}

// String renders the canonical device ID.
func (d AudioDevice) String() string {
	return fmt.Sprintf("%s (%s)", d.Name, d.Type)
}

// ParseDevice is the inverse of String. It rejects IDs without the
// "(input)"/"(output)" suffix.
func ParseDevice(id string) (AudioDevice, error) {
	trimmed := strings.TrimSpace(id)
	switch {
	case strings.HasSuffix(trimmed, " (input)"):
		return AudioDevice{
			Name: strings.TrimSuffix(trimmed, " (input)"),
			Type: DeviceTypeInput,
		}, nil
	case strings.HasSuffix(trimmed, " (output)"):
		return AudioDevice{
			Name: strings.TrimSuffix(trimmed, " (output)"),
			Type: DeviceTypeOutput,
		}, nil
	default:
		return AudioDevice{}, errors.Newf("invalid device ID %q", id).
			Component("myaudio").
			Category(errors.CategoryValidation).
			Context("operation", "parse_device").
			Build()
	}
}

// DeviceControl is the per-device control state carried on the command
// queue and published in the status table. IsPaused is carried through but
// informational only.
type DeviceControl struct {
	IsRunning bool
	IsPaused  bool
}

// Command pairs a device with the control state requested for it.
type Command struct {
	Device  AudioDevice
	Control DeviceControl
}

// Enumerator lists the capturable audio devices of the host.
type Enumerator interface {
	Devices() ([]AudioDevice, error)
}
