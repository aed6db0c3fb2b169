package capture

import (
	"context"
	"sync"
)

// PushDevice is an input source fed by the caller. It serves deployments
// where the audio originates on a remote client and fragments arrive over
// the network instead of from local hardware.
type PushDevice struct {
	mu      sync.Mutex
	formats map[string]bool
	stream  *PushStream
}

// NewPushDevice creates a push-fed device that records into the given
// container formats.
func NewPushDevice(formats []string) *PushDevice {
	supported := make(map[string]bool, len(formats))
	for _, f := range formats {
		supported[f] = true
	}
	return &PushDevice{formats: supported}
}

// Acquire returns the device's single stream, creating it on first use.
func (d *PushDevice) Acquire(ctx context.Context) (Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stream == nil {
		d.stream = &PushStream{}
	}
	return d.stream, nil
}

// Supports reports whether the device records the mime type.
func (d *PushDevice) Supports(mimeType string) bool {
	return d.formats[mimeType]
}

// Push delivers one fragment to the active recording. It reports false
// when no recording is in progress.
func (d *PushDevice) Push(data []byte) bool {
	d.mu.Lock()
	stream := d.stream
	d.mu.Unlock()

	if stream == nil {
		return false
	}
	return stream.push(data)
}

// PushStream is the stream side of a PushDevice.
type PushStream struct {
	mu         sync.Mutex
	active     bool
	onFragment func([]byte)
	onStop     func()
}

// Start begins accepting pushed fragments.
func (s *PushStream) Start(mimeType string, onFragment func([]byte), onStop func()) error {
	s.mu.Lock()
	s.active = true
	s.onFragment = onFragment
	s.onStop = onStop
	s.mu.Unlock()
	return nil
}

// Stop stops accepting fragments and fires the stop confirmation.
func (s *PushStream) Stop() error {
	s.mu.Lock()
	s.active = false
	onStop := s.onStop
	s.onStop = nil
	s.mu.Unlock()

	if onStop != nil {
		onStop()
	}
	return nil
}

// Close releases the stream.
func (s *PushStream) Close() error {
	s.mu.Lock()
	s.active = false
	s.onFragment = nil
	s.onStop = nil
	s.mu.Unlock()
	return nil
}

func (s *PushStream) push(data []byte) bool {
	s.mu.Lock()
	active := s.active
	onFragment := s.onFragment
	s.mu.Unlock()

	if !active || onFragment == nil {
		return false
	}
	onFragment(data)
	return true
}
