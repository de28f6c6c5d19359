// Package voice orchestrates one live conversation: microphone capture,
// the duplex model transport, gapless playback, and transcript aggregation.
package voice

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/charvoice/platform/internal/audio"
	"github.com/charvoice/platform/internal/errors"
	"github.com/charvoice/platform/internal/gemini"
	"github.com/charvoice/platform/internal/metrics"
	"github.com/charvoice/platform/internal/pcm"
	"github.com/charvoice/platform/internal/syncx"
	"github.com/charvoice/platform/internal/trace"
	"github.com/charvoice/platform/internal/voice/transcript"
)

// State is the session lifecycle position.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateActive
	StateClosing
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// terminal reports whether no further transitions can happen.
func (s State) terminal() bool { return s == StateClosed || s == StateFailed }

// Status is the coarse connection state surfaced to the UI.
type Status string

const (
	StatusConnecting Status = "connecting"
	StatusConnected  Status = "connected"
	StatusFailed     Status = "failed"
)

// Callbacks deliver session output to the UI layer. Both are invoked from the
// session's single dispatch goroutine and must not block materially.
type Callbacks struct {
	// OnTranscript fires once per aggregated line update.
	OnTranscript func(line transcript.Line)
	// OnStatus fires on every status change.
	OnStatus func(status Status)
}

// Capturer is the microphone seam.
type Capturer interface {
	Start(ctx context.Context, onFrame audio.FrameHandler) error
	Stop()
}

// Player is the output device seam.
type Player interface {
	Start() error
	Scheduler() *audio.Scheduler
	Close()
}

// Transport is the duplex model channel seam.
type Transport interface {
	Open()
	Events() <-chan gemini.Event
	Send(pcm.Chunk) error
	Close()
}

// Devices produces the three scoped resources a session owns. Acquisition
// order is fixed: microphone, then speaker, then transport; any device
// failure aborts start before the transport is ever created.
type Devices struct {
	OpenMicrophone func() (Capturer, error)
	OpenSpeaker    func() (Player, error)
	NewTransport   func(gemini.Config) Transport
}

// Config for one session.
type Config struct {
	CaptureRate  int
	PlaybackRate int
	Live         gemini.Config
}

// Session runs one live conversation. It owns the microphone, output device,
// and transport for its lifetime; at most one session is active per
// conversation.
type Session struct {
	ID string

	cfg     Config
	devices Devices
	cb      Callbacks
	m       *metrics.Metrics

	state  *syncx.Guard[State]
	status *syncx.Guard[Status]

	mic     Capturer
	speaker Player
	ch      Transport
	agg     *transcript.Aggregator

	startedAt  time.Time
	firstAudio sync.Once

	// resMu orders start-phase resource adoption against teardown, so a
	// Stop racing Start cannot strand a device or transport acquired after
	// teardown snapshotted the fields.
	resMu   sync.Mutex
	stopped bool

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// NewSession builds an idle session.
func NewSession(id string, cfg Config, devices Devices, cb Callbacks, m *metrics.Metrics) *Session {
	return &Session{
		ID:      id,
		cfg:     cfg,
		devices: devices,
		cb:      cb,
		m:       m,
		state:   syncx.NewGuard(StateIdle),
		status:  syncx.NewGuard(Status("")),
		agg:     transcript.New(),
		done:    make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State { return s.state.Get() }

// Status returns the UI-facing status.
func (s *Session) Status() Status { return s.status.Get() }

// Done closes when the session reaches a terminal state with all resources
// released.
func (s *Session) Done() <-chan struct{} { return s.done }

// Start acquires both audio devices, then opens the transport. Device
// acquisition failure is fatal and happens before any network activity.
// When Stop lands mid-acquisition, Start releases whatever it holds and
// returns nil; the session is already Closed.
func (s *Session) Start(ctx context.Context) error {
	if !s.state.CompareAndSwap(StateConnecting, func(st State) bool { return st == StateIdle }) {
		return errors.Newf(errors.CodeSessionActive, "session %s already started", s.ID)
	}
	ctx = trace.WithID(ctx, trace.ID(s.ID))
	s.setStatus(StatusConnecting)
	s.startedAt = time.Now()

	mic, err := s.devices.OpenMicrophone()
	if err != nil {
		s.fail(err)
		return err
	}
	if !s.adopt(func() { s.mic = mic }) {
		mic.Stop()
		return nil
	}

	speaker, err := s.devices.OpenSpeaker()
	if err != nil {
		s.fail(err)
		return err
	}
	if !s.adopt(func() { s.speaker = speaker }) {
		speaker.Close()
		return nil
	}

	// The transport is created and opened under the adoption lock: either
	// teardown has already run and no connection is ever attempted, or it
	// runs later and closes the transport it sees here.
	var runCtx context.Context
	ok := s.adopt(func() {
		s.ch = s.devices.NewTransport(s.cfg.Live)
		var cancel context.CancelFunc
		runCtx, cancel = context.WithCancel(context.WithoutCancel(ctx))
		s.cancel = cancel
		s.ch.Open()
	})
	if !ok {
		return nil
	}

	go s.dispatch(runCtx)
	return nil
}

// adopt registers a start-phase resource unless teardown has already run.
// On false the caller still owns the resource and must release it.
func (s *Session) adopt(register func()) bool {
	s.resMu.Lock()
	defer s.resMu.Unlock()
	if s.stopped {
		return false
	}
	register()
	return true
}

// dispatch drains the transport's event stream strictly in arrival order.
// It is the only goroutine touching the aggregator and the scheduler's
// submission side.
func (s *Session) dispatch(ctx context.Context) {
	log := trace.Logger(trace.WithID(ctx, trace.ID(s.ID)))

	for ev := range s.ch.Events() {
		if s.state.Get() != StateConnecting && s.state.Get() != StateActive {
			continue // stop has begun; drain without processing
		}

		switch ev.Kind {
		case gemini.EventOpen:
			s.onOpen(ctx, log)

		case gemini.EventInputTranscript:
			s.pushTranscript(ev.Text, transcript.User)

		case gemini.EventOutputTranscript:
			s.pushTranscript(ev.Text, transcript.Model)

		case gemini.EventAudio:
			s.onAudio(ev, log)

		case gemini.EventClosed:
			log.Info("live session closed by server")
			s.teardown(StateClosed)

		case gemini.EventError:
			if errors.IsRecoverable(ev.Err) {
				log.Warn("recoverable channel error", "error", ev.Err)
				continue
			}
			log.Error("live session failed", "error", ev.Err)
			s.setStatus(StatusFailed)
			s.teardown(StateFailed)
		}
	}

	// Stream ended without a lifecycle event; make sure resources go.
	s.teardown(StateClosed)
}

func (s *Session) onOpen(ctx context.Context, log *slog.Logger) {
	if !s.state.CompareAndSwap(StateActive, func(st State) bool { return st == StateConnecting }) {
		return
	}

	if err := s.speaker.Start(); err != nil {
		log.Error("cannot start playback", "error", err)
		s.setStatus(StatusFailed)
		s.teardown(StateFailed)
		return
	}

	err := s.mic.Start(ctx, func(frame audio.Frame) {
		// Real-time capture context: encode and queue, never touch the network.
		chunk := pcm.Encode(frame.Samples, frame.SampleRate)
		if err := s.ch.Send(chunk); err != nil {
			log.Debug("frame dropped by transport", "error", err)
			return
		}
		if s.m != nil {
			s.m.FramesSent.Inc()
		}
	})
	if err != nil {
		log.Error("cannot start capture", "error", err)
		s.setStatus(StatusFailed)
		s.teardown(StateFailed)
		return
	}

	log.Info("live session active", "session", s.ID)
	s.setStatus(StatusConnected)
	if s.m != nil {
		s.m.SessionEvents.WithLabelValues("active").Inc()
	}
}

func (s *Session) onAudio(ev gemini.Event, log *slog.Logger) {
	samples, err := pcm.DecodeMono(ev.Audio.Data)
	if err != nil {
		// A malformed chunk is dropped; playback continues and nextStart
		// is untouched by the skipped chunk.
		log.Warn("dropping malformed audio chunk", "error", err)
		if s.m != nil {
			s.m.DecodeFailures.Inc()
		}
		return
	}
	s.speaker.Scheduler().Schedule(samples)
	s.firstAudio.Do(func() {
		if s.m != nil {
			s.m.ObserveFirstAudioLatency(time.Since(s.startedAt))
		}
	})
	if s.m != nil {
		s.m.AudioChunks.Inc()
	}
}

func (s *Session) pushTranscript(text string, speaker transcript.Speaker) {
	line := s.agg.Push(text, speaker)
	if s.m != nil {
		s.m.TranscriptLines.WithLabelValues(speaker.String()).Inc()
	}
	if s.cb.OnTranscript != nil {
		s.cb.OnTranscript(line)
	}
}

// Transcript returns the aggregated lines so far.
func (s *Session) Transcript() []transcript.Line { return s.agg.Lines() }

// Stop tears the session down. Safe to call at any point, from any state,
// any number of times.
func (s *Session) Stop() { s.teardown(StateClosed) }

// fail handles start-phase device failures: no transport exists yet.
func (s *Session) fail(err error) {
	if s.State().terminal() {
		return
	}
	slog.Error("session start failed", "session", s.ID, "error", err)
	s.setStatus(StatusFailed)
	if s.m != nil {
		s.m.SessionEvents.WithLabelValues("start_failed").Inc()
	}
	s.teardown(StateFailed)
}

// teardown releases everything in the required order: stop capture first so
// no callback fires against a released device, then force-stop playback,
// then close the devices, then request transport close. Every release is
// unconditional; one failing never blocks the rest.
func (s *Session) teardown(final State) {
	s.stopOnce.Do(func() {
		s.state.Set(StateClosing)

		s.resMu.Lock()
		s.stopped = true
		mic, speaker, ch, cancel := s.mic, s.speaker, s.ch, s.cancel
		s.resMu.Unlock()

		if mic != nil {
			mic.Stop()
		}
		if speaker != nil {
			speaker.Scheduler().StopAll()
			speaker.Close()
		}
		if ch != nil {
			ch.Close()
		}
		if cancel != nil {
			cancel()
		}

		s.state.Set(final)
		if s.m != nil {
			s.m.SessionEvents.WithLabelValues(final.String()).Inc()
		}
		close(s.done)
	})
}

func (s *Session) setStatus(st Status) {
	if s.status.Swap(st) == st {
		return
	}
	if s.cb.OnStatus != nil {
		s.cb.OnStatus(st)
	}
}
