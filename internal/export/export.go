// Package export renders a transcription snapshot into the downloadable
// plain-text and JSON transcript formats.
package export

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/semanticdata/whisper-web/internal/annotation"
)

const (
	TextFilename = "transcript.txt"
	JSONFilename = "transcript.json"

	TextContentType = "text/plain"
	JSONContentType = "application/json"
)

// timestampPattern collapses a pretty-printed two-element timestamp array
// onto a single line, so each chunk stays readable at a glance.
var timestampPattern = regexp.MustCompile(`(?m)( {4}"timestamp": )\[\s+(\S+)\s+(\S+)\s+\]`)

// Text renders the transcript as plain text: chunk texts joined in order
// with surrounding whitespace trimmed.
func Text(t annotation.Transcription) string {
	var b strings.Builder
	for _, chunk := range t.Chunks {
		b.WriteString(chunk.Text)
	}
	return strings.TrimSpace(b.String())
}

// JSON renders the chunk list as indented JSON with each timestamp array
// compacted onto one line.
func JSON(t annotation.Transcription) ([]byte, error) {
	chunks := t.Chunks
	if chunks == nil {
		chunks = []annotation.Chunk{}
	}

	data, err := json.MarshalIndent(chunks, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode transcript: %w", err)
	}
	return timestampPattern.ReplaceAll(data, []byte("${1}[${2} ${3}]")), nil
}
