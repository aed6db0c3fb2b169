package media

import (
	"encoding/binary"
	"fmt"
	"time"
)

// wavHeaderSize is the size of a canonical PCM WAV header.
const wavHeaderSize = 44

// WAVInfo describes a PCM WAV blob without decoding its samples.
type WAVInfo struct {
	SampleRate    uint32        `json:"sample_rate"`
	Channels      uint16        `json:"channels"`
	BitsPerSample uint16        `json:"bits_per_sample"`
	DataSize      uint32        `json:"data_size_bytes"`
	Duration      time.Duration `json:"duration"`
}

// IsWAV reports whether data carries a RIFF/WAVE signature.
func IsWAV(data []byte) bool {
	return len(data) >= 12 &&
		string(data[0:4]) == "RIFF" &&
		string(data[8:12]) == "WAVE"
}

// ValidateWAV checks the canonical PCM WAV header layout.
func ValidateWAV(data []byte) error {
	if len(data) < wavHeaderSize {
		return fmt.Errorf("WAV data too short: need at least %d bytes, got %d", wavHeaderSize, len(data))
	}

	if !IsWAV(data) {
		return fmt.Errorf("invalid WAV file: missing RIFF/WAVE signature")
	}

	if string(data[12:16]) != "fmt " {
		return fmt.Errorf("invalid WAV file: missing fmt chunk")
	}

	if string(data[36:40]) != "data" {
		return fmt.Errorf("invalid WAV file: missing data chunk")
	}

	return nil
}

// InspectWAV extracts header metadata from a PCM WAV blob. Unlike WebM, a
// WAV container self-reports its duration, so recordings in this format
// need no patching after capture.
func InspectWAV(data []byte) (*WAVInfo, error) {
	if err := ValidateWAV(data); err != nil {
		return nil, err
	}

	sampleRate := binary.LittleEndian.Uint32(data[24:28])
	channels := binary.LittleEndian.Uint16(data[22:24])
	bitsPerSample := binary.LittleEndian.Uint16(data[34:36])
	dataSize := binary.LittleEndian.Uint32(data[40:44])

	if sampleRate == 0 {
		return nil, fmt.Errorf("invalid sample rate: 0")
	}

	bytesPerFrame := uint32(channels) * uint32(bitsPerSample) / 8
	if bytesPerFrame == 0 {
		return nil, fmt.Errorf("invalid frame size: %d channels at %d bits", channels, bitsPerSample)
	}

	frames := dataSize / bytesPerFrame
	duration := time.Duration(float64(frames) / float64(sampleRate) * float64(time.Second))

	return &WAVInfo{
		SampleRate:    sampleRate,
		Channels:      channels,
		BitsPerSample: bitsPerSample,
		DataSize:      dataSize,
		Duration:      duration,
	}, nil
}
