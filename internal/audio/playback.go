package audio

import (
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/charvoice/platform/internal/errors"
)

// Speaker owns the default output device and drives its Scheduler from the
// device's render callback.
type Speaker struct {
	stream    *portaudio.Stream
	sched     *Scheduler
	closeOnce sync.Once
}

// OpenSpeaker acquires the default output device at the given rate. The
// returned speaker is not rendering until Start is called.
func OpenSpeaker(sampleRate int) (*Speaker, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, errors.Wrap(err, errors.CodeDeviceUnavailable, "portaudio init failed")
	}

	sched := NewScheduler(sampleRate)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), 0, sched.Fill)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, errors.Wrap(err, errors.CodeDeviceUnavailable, "cannot open output device")
	}
	return &Speaker{stream: stream, sched: sched}, nil
}

// Start begins rendering scheduled buffers.
func (s *Speaker) Start() error {
	if err := s.stream.Start(); err != nil {
		return errors.Wrap(err, errors.CodeDeviceUnavailable, "cannot start output stream")
	}
	return nil
}

// Scheduler returns the playback scheduler owned by this device.
func (s *Speaker) Scheduler() *Scheduler { return s.sched }

// Close force-stops in-flight playback and releases the device. Idempotent.
func (s *Speaker) Close() {
	s.closeOnce.Do(func() {
		s.sched.StopAll()
		if s.stream != nil {
			_ = s.stream.Abort()
			_ = s.stream.Close()
		}
		_ = portaudio.Terminate()
	})
}
