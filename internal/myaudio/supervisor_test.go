package myaudio

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/retracehq/retrace/internal/transcribe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func startSupervisor(t *testing.T, record RecordFunc, known []AudioDevice) *Supervisor {
	t.Helper()

	out := make(chan transcribe.Input, 16)
	s := NewSupervisor(SupervisorConfig{
		OutputDir:     t.TempDir(),
		ChunkDuration: 10 * time.Millisecond,
	}, out, record, known, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("supervisor did not stop")
		}
	})
	return s
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatal(msg)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func blockingRecord(active *atomic.Int32) RecordFunc {
	return func(ctx context.Context, device AudioDevice, duration time.Duration, filePath string, out chan<- transcribe.Input) error {
		active.Add(1)
		defer active.Add(-1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(duration):
			return nil
		}
	}
}

func TestStartTwiceYieldsOneWorker(t *testing.T) {
	var active atomic.Int32
	var peak atomic.Int32
	record := func(ctx context.Context, device AudioDevice, duration time.Duration, filePath string, out chan<- transcribe.Input) error {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(duration):
			return nil
		}
	}

	mic := AudioDevice{Name: "mic", Type: DeviceTypeInput}
	s := startSupervisor(t, record, nil)

	s.Push(mic, DeviceControl{IsRunning: true})
	s.Push(mic, DeviceControl{IsRunning: true})

	waitFor(t, func() bool { return active.Load() >= 1 }, "worker never started")
	time.Sleep(100 * time.Millisecond)
	assert.EqualValues(t, 1, peak.Load(), "duplicate start must coalesce")

	control, ok := s.DeviceStatus(mic.String())
	require.True(t, ok)
	assert.True(t, control.IsRunning)
}

func TestStopRemovesWorker(t *testing.T) {
	var active atomic.Int32
	mic := AudioDevice{Name: "mic", Type: DeviceTypeInput}
	s := startSupervisor(t, blockingRecord(&active), nil)

	s.Push(mic, DeviceControl{IsRunning: true})
	waitFor(t, func() bool { return active.Load() == 1 }, "worker never started")

	s.Push(mic, DeviceControl{IsRunning: false})
	waitFor(t, func() bool { return active.Load() == 0 }, "worker never stopped")

	control, ok := s.DeviceStatus(mic.String())
	require.True(t, ok)
	assert.False(t, control.IsRunning)
}

func TestStopUnknownDeviceIsNoOp(t *testing.T) {
	var active atomic.Int32
	s := startSupervisor(t, blockingRecord(&active), nil)

	ghost := AudioDevice{Name: "ghost", Type: DeviceTypeInput}
	s.Push(ghost, DeviceControl{IsRunning: false})

	time.Sleep(50 * time.Millisecond)
	_, ok := s.DeviceStatus(ghost.String())
	assert.False(t, ok, "stop must not create a status entry")
}

func TestFatalWorkerIsReapedAndNotRestarted(t *testing.T) {
	var calls atomic.Int32
	record := func(ctx context.Context, device AudioDevice, duration time.Duration, filePath string, out chan<- transcribe.Input) error {
		calls.Add(1)
		return assert.AnError
	}

	mic := AudioDevice{Name: "mic", Type: DeviceTypeInput}
	s := startSupervisor(t, record, nil)

	s.Push(mic, DeviceControl{IsRunning: true})
	waitFor(t, func() bool {
		control, ok := s.DeviceStatus(mic.String())
		return ok && !control.IsRunning
	}, "failed worker never reaped")

	before := calls.Load()
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, before, calls.Load(), "failed worker must not self-restart")

	// A new start command revives the device.
	s.Push(mic, DeviceControl{IsRunning: true})
	waitFor(t, func() bool { return calls.Load() > before }, "start command did not revive device")
}

func TestKnownDevicesSeedStatusTable(t *testing.T) {
	var active atomic.Int32
	known := []AudioDevice{
		{Name: "mic", Type: DeviceTypeInput},
		{Name: "speakers", Type: DeviceTypeOutput},
	}
	s := startSupervisor(t, blockingRecord(&active), known)

	devices := s.Devices()
	require.Len(t, devices, 2)
	assert.Equal(t, "mic (input)", devices[0].ID)
	assert.False(t, devices[0].IsRunning)
	assert.Equal(t, "speakers (output)", devices[1].ID)
}

func TestWavDebugCopyRoundTrip(t *testing.T) {
	// 100 samples of a simple ramp, s16le.
	pcm := make([]byte, 200)
	for i := 0; i < 100; i++ {
		v := int16(i * 100)
		pcm[2*i] = byte(uint16(v) & 0xff)
		pcm[2*i+1] = byte(uint16(v) >> 8)
	}

	path := filepath.Join(t.TempDir(), "chunk.wav")
	require.NoError(t, writeWavDebugCopy(pcm, path, 48000))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	dec := wav.NewDecoder(f)
	dec.ReadInfo()
	require.True(t, dec.IsValidFile())
	assert.EqualValues(t, 48000, dec.SampleRate)
	assert.EqualValues(t, 16, dec.BitDepth)
	assert.EqualValues(t, 1, dec.NumChans)

	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	require.Len(t, buf.Data, 100)
	assert.Equal(t, 0, buf.Data[0])
	assert.Equal(t, 9900, buf.Data[99])
}
