// Package audio owns the microphone and speaker devices: real-time capture of
// fixed-size frames and gapless scheduling of decoded playback buffers.
package audio

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/charvoice/platform/internal/errors"
)

// Frame is one fixed-size block of mono samples produced per capture read.
type Frame struct {
	Samples    []float32
	SampleRate int
}

// FrameHandler receives captured frames on the capture goroutine. It must
// hand off without blocking longer than the frame's real-time duration;
// encoding plus a queued send is fine, network I/O is not.
type FrameHandler func(Frame)

// Microphone owns exclusive access to the default input device.
type Microphone struct {
	stream     *portaudio.Stream
	buf        []float32
	sampleRate int

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// OpenMicrophone acquires the default input device at the given rate with
// fixed-size frames. Acquisition failure is fatal for session start and is
// reported before any network activity.
func OpenMicrophone(sampleRate, frameSize int) (*Microphone, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, errors.Wrap(err, errors.CodeDeviceUnavailable, "portaudio init failed")
	}

	m := &Microphone{
		buf:        make([]float32, frameSize),
		sampleRate: sampleRate,
	}
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), frameSize, m.buf)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, errors.Wrap(err, errors.CodeDeviceUnavailable, "cannot open microphone")
	}
	m.stream = stream
	return m, nil
}

// Start begins the capture loop, invoking onFrame once per frame on a
// dedicated goroutine until Stop is called or ctx is cancelled.
func (m *Microphone) Start(ctx context.Context, onFrame FrameHandler) error {
	if err := m.stream.Start(); err != nil {
		return errors.Wrap(err, errors.CodeDeviceUnavailable, "cannot start capture stream")
	}

	capCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		for {
			select {
			case <-capCtx.Done():
				return
			default:
			}

			if err := m.stream.Read(); err != nil {
				// Stop() closes the stream out from under this read.
				select {
				case <-capCtx.Done():
				default:
					slog.Debug("capture read error", "error", err)
				}
				return
			}

			frame := Frame{
				Samples:    append([]float32(nil), m.buf...),
				SampleRate: m.sampleRate,
			}
			onFrame(frame)
		}
	}()

	return nil
}

// Stop halts capture callbacks and releases the device. Idempotent; the
// capture goroutine is cancelled before the stream handle is released so no
// read fires against a closed device.
func (m *Microphone) Stop() {
	m.stopOnce.Do(func() {
		if m.cancel != nil {
			m.cancel()
		}
		if m.stream != nil {
			_ = m.stream.Abort()
		}
		if m.done != nil {
			<-m.done
		}
		if m.stream != nil {
			_ = m.stream.Close()
		}
		_ = portaudio.Terminate()
	})
}
