package capture

import "context"

// Stream is an acquired audio input stream. Fragments are delivered through
// the callback passed to Start, strictly in arrival order; after Stop is
// requested the mechanism flushes any remaining fragments and then fires
// the stop confirmation exactly once.
type Stream interface {
	// Start begins recording in the given container format.
	Start(mimeType string, onFragment func(data []byte), onStop func()) error

	// Stop requests finalization of the current recording.
	Stop() error

	// Close releases the underlying input device.
	Close() error
}

// Device is the capture mechanism contract: it acquires an input stream
// and reports which container formats the runtime can record into.
type Device interface {
	// Acquire obtains the input stream. It fails when permission is
	// denied or no input device exists.
	Acquire(ctx context.Context) (Stream, error)

	// Supports reports whether the runtime can record the mime type.
	Supports(mimeType string) bool
}
