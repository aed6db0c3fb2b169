package capture

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/semanticdata/whisper-web/internal/media"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeStream exposes the capture callbacks so tests can play the device.
type fakeStream struct {
	mimeType   string
	onFragment func([]byte)
	onStop     func()
	startErr   error
	stopped    bool
	closed     bool
}

func (f *fakeStream) Start(mimeType string, onFragment func([]byte), onStop func()) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.mimeType = mimeType
	f.onFragment = onFragment
	f.onStop = onStop
	return nil
}

func (f *fakeStream) Stop() error {
	f.stopped = true
	f.onStop()
	return nil
}

func (f *fakeStream) Close() error {
	f.closed = true
	return nil
}

type fakeDevice struct {
	stream     *fakeStream
	acquireErr error
	supported  map[string]bool
	acquires   int
}

func (f *fakeDevice) Acquire(ctx context.Context) (Stream, error) {
	f.acquires++
	if f.acquireErr != nil {
		return nil, f.acquireErr
	}
	return f.stream, nil
}

func (f *fakeDevice) Supports(mimeType string) bool {
	return f.supported[mimeType]
}

// fakeClock advances only when told, so finalized durations are exact.
type fakeClock struct {
	current time.Time
}

func (c *fakeClock) now() time.Time {
	return c.current
}

func (c *fakeClock) advance(d time.Duration) {
	c.current = c.current.Add(d)
}

func newTestSession(device Device, onComplete func(Recording)) (*Session, *fakeClock) {
	clock := &fakeClock{current: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	session := NewSession(device, testLogger(), onComplete)
	session.now = clock.now
	return session, clock
}

func TestCaptureScenario(t *testing.T) {
	stream := &fakeStream{}
	device := &fakeDevice{stream: stream, supported: map[string]bool{"audio/wav": true}}

	var completed []Recording
	session, clock := newTestSession(device, func(r Recording) {
		completed = append(completed, r)
	})

	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start recording: %v", err)
	}
	if session.State() != StateRecording {
		t.Fatalf("Expected recording state, got %s", session.State())
	}

	// Three fragments arrive in order; the empty one must be discarded.
	stream.onFragment(make([]byte, 10))
	stream.onFragment([]byte{})
	stream.onFragment(make([]byte, 20))

	clock.advance(2 * time.Second)
	if err := session.Stop(); err != nil {
		t.Fatalf("Failed to stop recording: %v", err)
	}

	if len(completed) != 1 {
		t.Fatalf("Expected 1 finalized recording, got %d", len(completed))
	}

	rec := completed[0]
	if len(rec.Data) != 30 {
		t.Errorf("Expected 30-byte blob from the 10 and 20 byte fragments, got %d", len(rec.Data))
	}
	if rec.Duration != 2*time.Second {
		t.Errorf("Expected 2s duration, got %v", rec.Duration)
	}
	if rec.MIMEType != "audio/wav" {
		t.Errorf("Expected audio/wav, got %s", rec.MIMEType)
	}

	if session.State() != StateIdle {
		t.Errorf("Expected idle state after finalization, got %s", session.State())
	}
	if session.Elapsed() != 0 {
		t.Errorf("Expected elapsed counter reset to 0, got %d", session.Elapsed())
	}
}

func TestStartDeviceUnavailable(t *testing.T) {
	device := &fakeDevice{acquireErr: errors.New("permission denied")}
	session, _ := newTestSession(device, nil)

	err := session.Start(context.Background())
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("Expected ErrDeviceUnavailable, got %v", err)
	}
	if session.State() != StateIdle {
		t.Errorf("Expected idle state after failure, got %s", session.State())
	}

	// The failure is terminal per attempt, not retried automatically.
	if device.acquires != 1 {
		t.Errorf("Expected one acquire attempt, got %d", device.acquires)
	}
}

func TestStartNoSupportedFormat(t *testing.T) {
	stream := &fakeStream{}
	device := &fakeDevice{stream: stream, supported: map[string]bool{}}
	session, _ := newTestSession(device, nil)

	err := session.Start(context.Background())
	if !errors.Is(err, ErrNoSupportedFormat) {
		t.Fatalf("Expected ErrNoSupportedFormat, got %v", err)
	}
	if session.State() != StateIdle {
		t.Errorf("Expected idle state after failure, got %s", session.State())
	}
	if !stream.closed {
		t.Error("Expected device stream to be released after format failure")
	}
}

func TestFormatPreferenceOrder(t *testing.T) {
	stream := &fakeStream{}
	device := &fakeDevice{stream: stream, supported: map[string]bool{
		"audio/wav": true,
		"audio/mp4": true,
	}}
	session, _ := newTestSession(device, nil)

	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start recording: %v", err)
	}

	// audio/mp4 precedes audio/wav in the candidate list.
	if stream.mimeType != "audio/mp4" {
		t.Errorf("Expected audio/mp4 to be chosen, got %s", stream.mimeType)
	}
}

func TestSetFormatsOverridesPreference(t *testing.T) {
	stream := &fakeStream{}
	device := &fakeDevice{stream: stream, supported: map[string]bool{
		"audio/wav": true,
		"audio/mp4": true,
	}}
	session, _ := newTestSession(device, nil)
	session.SetFormats([]string{"audio/wav", "audio/mp4"})

	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start recording: %v", err)
	}
	if stream.mimeType != "audio/wav" {
		t.Errorf("Expected configured preference to win, got %s", stream.mimeType)
	}
}

func TestStopWhenNotRecordingIsNoop(t *testing.T) {
	device := &fakeDevice{stream: &fakeStream{}, supported: map[string]bool{"audio/wav": true}}
	session, _ := newTestSession(device, nil)

	if err := session.Stop(); err != nil {
		t.Errorf("Expected no-op stop to succeed, got %v", err)
	}
	if session.State() != StateIdle {
		t.Errorf("Expected idle state, got %s", session.State())
	}
}

func TestNewRecordingDiscardsPrevious(t *testing.T) {
	stream := &fakeStream{}
	device := &fakeDevice{stream: stream, supported: map[string]bool{"audio/wav": true}}
	session, clock := newTestSession(device, nil)

	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start first recording: %v", err)
	}
	stream.onFragment([]byte{1, 2, 3})
	clock.advance(time.Second)
	if err := session.Stop(); err != nil {
		t.Fatalf("Failed to stop first recording: %v", err)
	}

	if session.LastRecording() == nil {
		t.Fatal("Expected a finalized recording")
	}

	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start second recording: %v", err)
	}
	if session.LastRecording() != nil {
		t.Error("Expected previous recording to be discarded on new start")
	}

	// The held stream is reused rather than re-acquired.
	if device.acquires != 1 {
		t.Errorf("Expected a single acquire across recordings, got %d", device.acquires)
	}
}

func TestStartWhileRecording(t *testing.T) {
	stream := &fakeStream{}
	device := &fakeDevice{stream: stream, supported: map[string]bool{"audio/wav": true}}
	session, _ := newTestSession(device, nil)

	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start recording: %v", err)
	}
	if err := session.Start(context.Background()); !errors.Is(err, ErrAlreadyRecording) {
		t.Errorf("Expected ErrAlreadyRecording, got %v", err)
	}
}

func TestWebMDurationPatchedOnFinalize(t *testing.T) {
	// Minimal streamed container: EBML header, unknown-size Segment, Info
	// with a 1 ms timecode scale and no Duration element.
	webm := []byte{
		0x1A, 0x45, 0xDF, 0xA3, 0x80, // EBML header, empty body
		0x18, 0x53, 0x80, 0x67, // Segment id
		0x01, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, // unknown size
		0x15, 0x49, 0xA9, 0x66, 0x87, // Info, 7-byte body
		0x2A, 0xD7, 0xB1, 0x83, 0x0F, 0x42, 0x40, // TimecodeScale = 1e6
	}

	stream := &fakeStream{}
	device := &fakeDevice{stream: stream, supported: map[string]bool{"audio/webm": true}}

	var completed []Recording
	session, clock := newTestSession(device, func(r Recording) {
		completed = append(completed, r)
	})

	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start recording: %v", err)
	}
	stream.onFragment(webm[:12])
	stream.onFragment(webm[12:])
	clock.advance(3 * time.Second)
	if err := session.Stop(); err != nil {
		t.Fatalf("Failed to stop recording: %v", err)
	}

	if len(completed) != 1 {
		t.Fatalf("Expected 1 finalized recording, got %d", len(completed))
	}

	d, ok, err := media.WebMDuration(completed[0].Data)
	if err != nil {
		t.Fatalf("Failed to read patched duration: %v", err)
	}
	if !ok {
		t.Fatal("Expected the finalized blob to carry a duration element")
	}
	if d != 3*time.Second {
		t.Errorf("Expected 3s container duration, got %v", d)
	}
}

func TestWAVBlobFinalizedAsIs(t *testing.T) {
	// Canonical mono 16-bit PCM header with one second of 8 kHz samples.
	wav := []byte("RIFF")
	wav = binary.LittleEndian.AppendUint32(wav, 36+16000)
	wav = append(wav, "WAVEfmt "...)
	wav = binary.LittleEndian.AppendUint32(wav, 16)
	wav = binary.LittleEndian.AppendUint16(wav, 1)
	wav = binary.LittleEndian.AppendUint16(wav, 1)
	wav = binary.LittleEndian.AppendUint32(wav, 8000)
	wav = binary.LittleEndian.AppendUint32(wav, 16000)
	wav = binary.LittleEndian.AppendUint16(wav, 2)
	wav = binary.LittleEndian.AppendUint16(wav, 16)
	wav = append(wav, "data"...)
	wav = binary.LittleEndian.AppendUint32(wav, 16000)
	wav = append(wav, make([]byte, 16000)...)

	stream := &fakeStream{}
	device := &fakeDevice{stream: stream, supported: map[string]bool{"audio/wav": true}}

	var completed []Recording
	session, clock := newTestSession(device, func(r Recording) {
		completed = append(completed, r)
	})

	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start recording: %v", err)
	}
	stream.onFragment(wav[:100])
	stream.onFragment(wav[100:])
	clock.advance(time.Second)
	if err := session.Stop(); err != nil {
		t.Fatalf("Failed to stop recording: %v", err)
	}

	if len(completed) != 1 {
		t.Fatalf("Expected 1 finalized recording, got %d", len(completed))
	}
	if len(completed[0].Data) != len(wav) {
		t.Errorf("Expected wav blob to pass through unmodified, got %d bytes", len(completed[0].Data))
	}

	info, err := media.InspectWAV(completed[0].Data)
	if err != nil {
		t.Fatalf("Failed to inspect finalized blob: %v", err)
	}
	if info.SampleRate != 8000 {
		t.Errorf("Expected sample rate 8000, got %d", info.SampleRate)
	}
}

func TestCloseReleasesStream(t *testing.T) {
	stream := &fakeStream{}
	device := &fakeDevice{stream: stream, supported: map[string]bool{"audio/wav": true}}
	session, _ := newTestSession(device, nil)

	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start recording: %v", err)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("Failed to close session: %v", err)
	}

	if !stream.stopped {
		t.Error("Expected close to stop the active recording")
	}
	if !stream.closed {
		t.Error("Expected close to release the device stream")
	}
	if session.State() != StateIdle {
		t.Errorf("Expected idle state after close, got %s", session.State())
	}
}
