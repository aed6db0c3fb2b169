package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/semanticdata/whisper-web/internal/media"
)

// State represents the capture state machine position.
type State string

const (
	StateIdle       State = "idle"
	StateAcquiring  State = "acquiring"
	StateRecording  State = "recording"
	StateFinalizing State = "finalizing"
)

// Capture errors. Both are terminal for the start attempt that produced
// them and are reported to the caller rather than retried.
var (
	ErrDeviceUnavailable = errors.New("capture: input device unavailable")
	ErrNoSupportedFormat = errors.New("capture: no supported container format")
	ErrAlreadyRecording  = errors.New("capture: recording already in progress")
)

// mimeCandidates is the preference-ordered set of container formats. The
// first one the runtime supports wins.
var mimeCandidates = []string{
	"audio/webm",
	"audio/mp4",
	"audio/ogg",
	"audio/wav",
	"audio/aac",
}

// DefaultFormats returns the built-in container preference order.
func DefaultFormats() []string {
	formats := make([]string, len(mimeCandidates))
	copy(formats, mimeCandidates)
	return formats
}

// Recording is one finalized capture: a single playable blob tagged with
// its container type and wall-clock duration.
type Recording struct {
	Data     []byte        `json:"-"`
	MIMEType string        `json:"mime_type"`
	Duration time.Duration `json:"duration"`
}

// Session manages acquisition of a live audio input device, buffers
// streamed fragments, and finalizes them into a single blob with a
// corrected duration header. States loop Idle -> Acquiring -> Recording ->
// Finalizing -> Idle; every failure path returns to Idle.
type Session struct {
	device     Device
	logger     *slog.Logger
	onComplete func(Recording)
	formats    []string

	mu            sync.Mutex
	state         State
	stream        Stream
	mimeType      string
	fragments     [][]byte
	startTime     time.Time
	elapsed       int
	tickerStop    chan struct{}
	lastRecording *Recording

	// Injectable clock; the finalized duration is wall-clock based.
	now func() time.Time
}

// SessionStats reports the session state for monitoring.
type SessionStats struct {
	State          State  `json:"state"`
	MIMEType       string `json:"mime_type,omitempty"`
	ElapsedSeconds int    `json:"elapsed_seconds"`
	Fragments      int    `json:"buffered_fragments"`
	HasRecording   bool   `json:"has_recording"`
}

// NewSession creates a capture session over the given device. onComplete
// receives every finalized recording; it may be nil.
func NewSession(device Device, logger *slog.Logger, onComplete func(Recording)) *Session {
	return &Session{
		device:     device,
		logger:     logger,
		onComplete: onComplete,
		formats:    mimeCandidates,
		state:      StateIdle,
		now:        time.Now,
	}
}

// SetFormats overrides the container preference order. It has no effect on
// a recording already in progress.
func (s *Session) SetFormats(formats []string) {
	if len(formats) == 0 {
		return
	}
	s.mu.Lock()
	s.formats = formats
	s.mu.Unlock()
}

// Start acquires the input device if needed and begins recording. It fails
// with ErrDeviceUnavailable when acquisition is denied and with
// ErrNoSupportedFormat when none of the candidate container formats is
// supported. A previously finalized recording is discarded.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrAlreadyRecording
	}
	s.state = StateAcquiring
	stream := s.stream
	formats := s.formats
	s.mu.Unlock()

	if stream == nil {
		acquired, err := s.device.Acquire(ctx)
		if err != nil {
			s.mu.Lock()
			s.state = StateIdle
			s.mu.Unlock()

			s.logger.Error("Failed to acquire input device", slog.String("error", err.Error()))
			return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
		stream = acquired
	}

	mimeType := ""
	for _, candidate := range formats {
		if s.device.Supports(candidate) {
			mimeType = candidate
			break
		}
	}
	if mimeType == "" {
		stream.Close()

		s.mu.Lock()
		s.stream = nil
		s.state = StateIdle
		s.mu.Unlock()

		s.logger.Error("No supported container format among candidates")
		return ErrNoSupportedFormat
	}

	s.mu.Lock()
	s.stream = stream
	s.mimeType = mimeType
	s.fragments = nil
	s.lastRecording = nil
	s.startTime = s.now()
	s.elapsed = 0
	s.state = StateRecording
	s.tickerStop = make(chan struct{})
	go s.runTicker(s.tickerStop)
	s.mu.Unlock()

	if err := stream.Start(mimeType, s.handleFragment, s.handleStop); err != nil {
		s.mu.Lock()
		s.state = StateIdle
		close(s.tickerStop)
		s.tickerStop = nil
		s.releaseLocked()
		s.mu.Unlock()

		s.logger.Error("Failed to start recording", slog.String("error", err.Error()))
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	s.logger.Info("Recording started", slog.String("mime_type", mimeType))
	return nil
}

// Stop requests finalization of the current recording. Calling it while
// not recording is a no-op, not an error. The finalized blob is emitted
// through the completion callback once the stream confirms the stop.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.state != StateRecording {
		s.mu.Unlock()
		return nil
	}
	s.state = StateFinalizing
	close(s.tickerStop)
	s.tickerStop = nil
	stream := s.stream
	s.mu.Unlock()

	if err := stream.Stop(); err != nil {
		return fmt.Errorf("stop recording: %w", err)
	}
	return nil
}

// Close stops any active recording and releases the input device so it is
// not left open while capture is inactive.
func (s *Session) Close() error {
	s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked()
	return nil
}

// State returns the current state machine position.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Elapsed returns the observational elapsed-seconds counter. It is for
// live display only and never feeds the finalized duration.
func (s *Session) Elapsed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsed
}

// LastRecording returns the most recent finalized recording, if any.
// Starting a new recording discards it.
func (s *Session) LastRecording() *Recording {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRecording
}

// GetStats returns a snapshot of the session for monitoring.
func (s *Session) GetStats() SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return SessionStats{
		State:          s.state,
		MIMEType:       s.mimeType,
		ElapsedSeconds: s.elapsed,
		Fragments:      len(s.fragments),
		HasRecording:   s.lastRecording != nil,
	}
}

// handleFragment receives one streamed data fragment. Fragments are
// appended in arrival order; zero-length fragments are discarded.
func (s *Session) handleFragment(data []byte) {
	if len(data) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRecording && s.state != StateFinalizing {
		return
	}

	fragment := make([]byte, len(data))
	copy(fragment, data)
	s.fragments = append(s.fragments, fragment)
}

// handleStop is the stream's stop confirmation. It concatenates the
// buffered fragments into one blob, patches the container duration where
// the format does not self-report it, and emits the finalized recording.
func (s *Session) handleStop() {
	s.mu.Lock()

	if s.state != StateFinalizing {
		s.mu.Unlock()
		return
	}

	duration := s.now().Sub(s.startTime)

	total := 0
	for _, f := range s.fragments {
		total += len(f)
	}
	blob := make([]byte, 0, total)
	for _, f := range s.fragments {
		blob = append(blob, f...)
	}

	fragmentCount := len(s.fragments)
	mimeType := s.mimeType
	s.fragments = nil
	s.elapsed = 0

	// A streamed webm container never learns its own length, so playback
	// controls and duration queries would report infinity without the
	// patched header. Other formats self-report and pass through as-is.
	if mimeType == "audio/webm" && len(blob) > 0 {
		patched, err := media.FixWebMDuration(blob, duration)
		if err != nil {
			s.logger.Warn("Failed to patch webm duration, using blob as-is",
				slog.String("error", err.Error()),
			)
		} else {
			blob = patched
		}
	}

	if mimeType == "audio/wav" && len(blob) > 0 {
		if info, err := media.InspectWAV(blob); err != nil {
			s.logger.Warn("Finalized wav blob has a malformed header",
				slog.String("error", err.Error()),
			)
		} else {
			s.logger.Debug("Finalized wav blob",
				slog.Int("sample_rate", int(info.SampleRate)),
				slog.Duration("content_duration", info.Duration),
			)
		}
	}

	recording := Recording{Data: blob, MIMEType: mimeType, Duration: duration}
	s.lastRecording = &recording
	s.state = StateIdle
	onComplete := s.onComplete
	s.mu.Unlock()

	s.logger.Info("Recording finalized",
		slog.String("mime_type", mimeType),
		slog.Duration("duration", duration),
		slog.Int("fragments", fragmentCount),
		slog.Int("bytes", len(blob)),
	)

	if onComplete != nil {
		onComplete(recording)
	}
}

// runTicker increments the elapsed-seconds counter once per second while
// recording is active.
func (s *Session) runTicker(stop chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.state == StateRecording {
				s.elapsed++
			}
			s.mu.Unlock()
		}
	}
}

// releaseLocked closes and forgets the device stream. Callers hold s.mu.
func (s *Session) releaseLocked() {
	if s.stream != nil {
		if err := s.stream.Close(); err != nil {
			s.logger.Warn("Failed to release input device", slog.String("error", err.Error()))
		}
		s.stream = nil
	}
}
