package transcription

import "github.com/semanticdata/whisper-web/internal/annotation"

// Output is the engine's produced value. Updates arrive incrementally
// while IsBusy is true; the final update has IsBusy false. Consumers treat
// it as read-only input.
type Output struct {
	IsBusy bool               `json:"isBusy"`
	Text   string             `json:"text"`
	Chunks []annotation.Chunk `json:"chunks"`
}

// Complete reports whether the output is finished and carries at least one
// transcript segment, which is the precondition for saving an annotation
// from it.
func (o *Output) Complete() bool {
	return o != nil && !o.IsBusy && len(o.Chunks) > 0
}

// Snapshot freezes the output into an immutable transcription value.
func (o *Output) Snapshot() annotation.Transcription {
	if o == nil {
		return annotation.Transcription{Chunks: []annotation.Chunk{}}
	}
	return annotation.Transcription{Text: o.Text, Chunks: o.Chunks}.Clone()
}
