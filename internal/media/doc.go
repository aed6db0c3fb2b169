// Package media provides audio container helpers: WebM duration patching
// for streamed recordings and WAV header inspection.
package media
