package voice

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/charvoice/platform/internal/audio"
	"github.com/charvoice/platform/internal/character"
	"github.com/charvoice/platform/internal/config"
	"github.com/charvoice/platform/internal/errors"
	"github.com/charvoice/platform/internal/gemini"
	"github.com/charvoice/platform/internal/metrics"
)

// Manager enforces at most one active session per character and owns the
// device factories shared by all sessions.
type Manager struct {
	cfg     *config.Config
	chars   *character.Store
	m       *metrics.Metrics
	devices Devices

	mu       sync.Mutex
	sessions map[string]*Session // keyed by character id
}

// NewManager builds a manager backed by the real audio devices and the live
// model transport.
func NewManager(cfg *config.Config, chars *character.Store, m *metrics.Metrics) *Manager {
	mgr := &Manager{
		cfg:      cfg,
		chars:    chars,
		m:        m,
		sessions: make(map[string]*Session),
	}
	mgr.devices = Devices{
		OpenMicrophone: func() (Capturer, error) {
			mic, err := audio.OpenMicrophone(cfg.CaptureSampleRate, cfg.FrameSize)
			if err != nil {
				return nil, err
			}
			return mic, nil
		},
		OpenSpeaker: func() (Player, error) {
			speaker, err := audio.OpenSpeaker(cfg.PlaybackSampleRate)
			if err != nil {
				return nil, err
			}
			return speaker, nil
		},
		NewTransport: func(live gemini.Config) Transport {
			return gemini.NewChannel(live)
		},
	}
	return mgr
}

// NewManagerWithDevices is the injection point for tests.
func NewManagerWithDevices(cfg *config.Config, chars *character.Store, m *metrics.Metrics, devices Devices) *Manager {
	return &Manager{
		cfg:      cfg,
		chars:    chars,
		m:        m,
		devices:  devices,
		sessions: make(map[string]*Session),
	}
}

// Start launches a session for the given character. At most one session may
// be live per character; a second Start returns SESSION_ACTIVE until the
// first reaches a terminal state.
func (mgr *Manager) Start(ctx context.Context, characterID string, cb Callbacks) (*Session, error) {
	char, err := mgr.chars.Get(characterID)
	if err != nil {
		return nil, err
	}

	mgr.mu.Lock()
	if existing, ok := mgr.sessions[characterID]; ok && !existing.State().terminal() {
		mgr.mu.Unlock()
		return nil, errors.Newf(errors.CodeSessionActive, "character %s already has a live session", characterID)
	}

	s := NewSession(uuid.NewString(), mgr.sessionConfig(char), mgr.devices, cb, mgr.m)
	mgr.sessions[characterID] = s
	mgr.mu.Unlock()

	if err := s.Start(ctx); err != nil {
		mgr.release(characterID, s)
		return nil, err
	}

	if mgr.m != nil {
		mgr.m.ActiveSessions.Inc()
	}
	go func() {
		<-s.Done()
		if mgr.m != nil {
			mgr.m.ActiveSessions.Dec()
		}
		mgr.release(characterID, s)
	}()
	return s, nil
}

// Stop tears down the character's session if one is live.
func (mgr *Manager) Stop(characterID string) {
	mgr.mu.Lock()
	s := mgr.sessions[characterID]
	mgr.mu.Unlock()
	if s != nil {
		s.Stop()
	}
}

// StopAll tears down every live session and waits for their resources to be
// released. Used on server shutdown.
func (mgr *Manager) StopAll() {
	mgr.mu.Lock()
	live := make([]*Session, 0, len(mgr.sessions))
	for _, s := range mgr.sessions {
		live = append(live, s)
	}
	mgr.mu.Unlock()

	for _, s := range live {
		s.Stop()
		<-s.Done()
	}
}

// Session returns the character's current session, live or not.
func (mgr *Manager) Session(characterID string) (*Session, bool) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	s, ok := mgr.sessions[characterID]
	return s, ok
}

func (mgr *Manager) release(characterID string, s *Session) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	if mgr.sessions[characterID] == s {
		delete(mgr.sessions, characterID)
	}
}

func (mgr *Manager) sessionConfig(char character.Character) Config {
	return Config{
		CaptureRate:  mgr.cfg.CaptureSampleRate,
		PlaybackRate: mgr.cfg.PlaybackSampleRate,
		Live: gemini.Config{
			APIKey:              mgr.cfg.GeminiAPIKey,
			Host:                mgr.cfg.LiveHost,
			Model:               mgr.cfg.LiveModel,
			Voice:               char.Voice(mgr.cfg.DefaultVoice),
			SystemInstruction:   char.SystemInstruction(),
			InputTranscription:  true,
			OutputTranscription: true,
		},
	}
}
