package touchpiano

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	intaudio "github.com/cbegin/touchpiano-go/internal/audio"
	"github.com/cbegin/touchpiano-go/internal/samples"
	"github.com/cbegin/touchpiano-go/internal/voice"
)

// Re-exported so callers outside the module can drive a session.
type (
	TouchID    = voice.TouchID
	TouchPoint = voice.TouchPoint
	HitTester  = voice.HitTester
	Observer   = voice.Observer
	LoadError  = samples.LoadError
)

type SessionOption func(*sessionConfig)

type sessionConfig struct {
	notes           []string
	sampleRate      int
	decoder         samples.Decoder
	releaseDuration time.Duration
	tickRate        int
	concurrency     int
	observer        voice.Observer
	log             zerolog.Logger
	volume          float64
	headless        bool
}

func defaultSessionConfig() sessionConfig {
	return sessionConfig{
		notes:           samples.DefaultNotes,
		sampleRate:      48000,
		releaseDuration: voice.DefaultReleaseDuration,
		tickRate:        voice.DefaultTickRate,
		concurrency:     1,
		log:             zerolog.Nop(),
		volume:          1,
	}
}

func WithNotes(notes []string) SessionOption {
	return func(cfg *sessionConfig) {
		cfg.notes = notes
	}
}

func WithSampleRate(rate int) SessionOption {
	return func(cfg *sessionConfig) {
		cfg.sampleRate = rate
	}
}

// WithDecoder overrides the MP3 decoder used for assets.
func WithDecoder(d samples.Decoder) SessionOption {
	return func(cfg *sessionConfig) {
		cfg.decoder = d
	}
}

// WithReleaseDuration sets how long a released voice takes to fade out.
func WithReleaseDuration(d time.Duration) SessionOption {
	return func(cfg *sessionConfig) {
		cfg.releaseDuration = d
	}
}

// WithTickRate sets how often Update is called per second.
func WithTickRate(tps int) SessionOption {
	return func(cfg *sessionConfig) {
		cfg.tickRate = tps
	}
}

func WithLoadConcurrency(n int) SessionOption {
	return func(cfg *sessionConfig) {
		cfg.concurrency = n
	}
}

// WithObserver receives key on/off notifications for visual feedback.
func WithObserver(obs voice.Observer) SessionOption {
	return func(cfg *sessionConfig) {
		cfg.observer = obs
	}
}

func WithLogger(log zerolog.Logger) SessionOption {
	return func(cfg *sessionConfig) {
		cfg.log = log
	}
}

func WithMasterVolume(v float64) SessionOption {
	return func(cfg *sessionConfig) {
		cfg.volume = v
	}
}

// WithHeadless keeps the mixer off the audio device. Output can still be
// pulled with Session.Render.
func WithHeadless() SessionOption {
	return func(cfg *sessionConfig) {
		cfg.headless = true
	}
}

// Session owns everything that lives between the start gesture and
// teardown: the sample table, the mixer and the voice manager.
type Session struct {
	mu       sync.Mutex
	starting bool
	id       string
	cfg      sessionConfig
	fetcher  samples.Fetcher
	keys     voice.HitTester
	log      zerolog.Logger
	mixer    *intaudio.Mixer
	audio    *intaudio.Player
	table    *samples.Table
	voices   *voice.Manager
}

func NewSession(fetcher samples.Fetcher, keys voice.HitTester, opts ...SessionOption) (*Session, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if keys == nil {
		return nil, errors.New("hit tester is required")
	}
	cfg := defaultSessionConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	if cfg.decoder == nil {
		cfg.decoder = samples.MP3Decoder{SampleRate: cfg.sampleRate}
	}
	id := uuid.NewString()
	mixer := intaudio.NewMixer()
	mixer.SetMasterVolume(cfg.volume)
	return &Session{
		id:      id,
		cfg:     cfg,
		fetcher: fetcher,
		keys:    keys,
		log:     cfg.log.With().Str("session_id", id).Logger(),
		mixer:   mixer,
	}, nil
}

func (s *Session) ID() string { return s.id }

// Start loads every sample and then opens audio output. On failure the
// session stays unstarted and the *LoadError is returned.
func (s *Session) Start(ctx context.Context, progress samples.ProgressFunc) error {
	s.mu.Lock()
	if s.starting || s.voices != nil {
		s.mu.Unlock()
		return errors.New("session already started")
	}
	s.starting = true
	s.mu.Unlock()
	started := false
	defer func() {
		if !started {
			s.mu.Lock()
			s.starting = false
			s.mu.Unlock()
		}
	}()

	loader := samples.NewLoader(s.fetcher, s.cfg.decoder,
		samples.WithConcurrency(s.cfg.concurrency),
		samples.WithLogger(s.log))
	table, err := loader.Load(ctx, s.cfg.notes, progress)
	if err != nil {
		return err
	}

	var backend *intaudio.Player
	if !s.cfg.headless {
		backend, err = intaudio.NewPlayer(s.cfg.sampleRate, s.mixer)
		if err != nil {
			s.log.Error().Err(err).Msg("Failed to open audio output")
			return err
		}
		backend.Play()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	started = true
	s.starting = false
	s.table = table
	s.audio = backend
	s.voices = voice.NewManager(table, s.mixer, s.keys, voice.Options{
		ReleaseSteps: voice.ReleaseSteps(s.cfg.releaseDuration, s.cfg.tickRate),
		Observer:     s.cfg.observer,
		Log:          s.log,
	})
	s.log.Info().Int("samples", table.Len()).Msg("Session started")
	return nil
}

// Started reports whether Start completed successfully.
func (s *Session) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voices != nil
}

func (s *Session) Table() *samples.Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table
}

func (s *Session) withVoices(fn func(m *voice.Manager)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.voices != nil {
		fn(s.voices)
	}
}

// TouchStart is a no-op until the session has started.
func (s *Session) TouchStart(points ...voice.TouchPoint) {
	s.withVoices(func(m *voice.Manager) { m.TouchStart(points...) })
}

func (s *Session) TouchMove(points ...voice.TouchPoint) {
	s.withVoices(func(m *voice.Manager) { m.TouchMove(points...) })
}

func (s *Session) TouchEnd(points ...voice.TouchPoint) {
	s.withVoices(func(m *voice.Manager) { m.TouchEnd(points...) })
}

func (s *Session) TouchCancel(points ...voice.TouchPoint) {
	s.withVoices(func(m *voice.Manager) { m.TouchCancel(points...) })
}

// CancelAll releases every live touch, e.g. when the window loses focus.
func (s *Session) CancelAll() {
	s.withVoices(func(m *voice.Manager) { m.CancelAll() })
}

// Update advances release ramps by one tick.
func (s *Session) Update() {
	s.withVoices(func(m *voice.Manager) { m.Advance() })
}

// Stats reports live touches, sounding voices and releasing voices.
func (s *Session) Stats() (active, sounding, releasing int) {
	s.withVoices(func(m *voice.Manager) {
		active, sounding, releasing = m.ActiveTouches(), m.SoundingVoices(), m.ReleasingVoices()
	})
	return
}

// Render pulls mixed output directly. Only meaningful for headless sessions.
func (s *Session) Render(dst []float32) {
	s.mixer.Process(dst)
}

func (s *Session) SetMasterVolume(v float64) { s.mixer.SetMasterVolume(v) }

func (s *Session) MasterVolume() float64 { return s.mixer.MasterVolume() }

// Close stops all voices and the audio output.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.voices == nil {
		return nil
	}
	s.voices.Close()
	s.voices = nil
	var err error
	if s.audio != nil {
		err = s.audio.Stop()
		s.audio = nil
	}
	s.log.Info().Msg("Session closed")
	return err
}
