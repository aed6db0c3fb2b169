// Package capture turns a live audio input device into finalized,
// duration-correct recordings. It owns the device stream exclusively: the
// stream is acquired on start and released whenever recording is no longer
// active.
package capture
