package annotation

import (
	"encoding/json"
	"fmt"
	"time"
)

// Chunk is one timestamped segment of recognized text. End is nil when the
// engine had not yet closed the segment at snapshot time.
type Chunk struct {
	Text  string
	Start float64
	End   *float64
}

// chunkJSON is the wire representation of a Chunk: the timestamp is a
// two-element array [start, end] where end may be null.
type chunkJSON struct {
	Text      string      `json:"text"`
	Timestamp [2]*float64 `json:"timestamp"`
}

// MarshalJSON encodes the chunk with its timestamp as [start, end|null].
func (c Chunk) MarshalJSON() ([]byte, error) {
	start := c.Start
	return json.Marshal(chunkJSON{
		Text:      c.Text,
		Timestamp: [2]*float64{&start, c.End},
	})
}

// UnmarshalJSON decodes the [start, end|null] timestamp form.
func (c *Chunk) UnmarshalJSON(data []byte) error {
	var raw chunkJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode chunk: %w", err)
	}

	c.Text = raw.Text
	if raw.Timestamp[0] != nil {
		c.Start = *raw.Timestamp[0]
	} else {
		c.Start = 0
	}
	c.End = raw.Timestamp[1]
	return nil
}

// Transcription is an immutable snapshot of a completed transcription.
type Transcription struct {
	Text   string  `json:"text"`
	Chunks []Chunk `json:"chunks"`
}

// Clone returns a deep copy so that callers can hold a snapshot without
// sharing the chunk slice with the producer.
func (t Transcription) Clone() Transcription {
	chunks := make([]Chunk, len(t.Chunks))
	for i, c := range t.Chunks {
		chunks[i] = c
		if c.End != nil {
			end := *c.End
			chunks[i].End = &end
		}
	}
	return Transcription{Text: t.Text, Chunks: chunks}
}

// FormData carries the user-editable fields of a record. All fields are
// free-form text and may be empty.
type FormData struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
	Notes   string `json:"notes"`
}

// Record is a persisted annotation: contact metadata plus a transcript
// snapshot. ID, CreatedAt and Transcription are set at creation and never
// change afterwards.
type Record struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Address       string        `json:"address"`
	Phone         string        `json:"phone"`
	Notes         string        `json:"notes"`
	Transcription Transcription `json:"transcription"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// New builds a record from form data and a completed transcription
// snapshot. The caller supplies the id; ids are the store's responsibility.
func New(id string, form FormData, transcription Transcription, now time.Time) Record {
	return Record{
		ID:            id,
		Name:          form.Name,
		Address:       form.Address,
		Phone:         form.Phone,
		Notes:         form.Notes,
		Transcription: transcription.Clone(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Update returns a copy of existing with the editable fields replaced and
// UpdatedAt refreshed. ID, CreatedAt and Transcription are preserved.
func Update(existing Record, form FormData, now time.Time) Record {
	updated := existing
	updated.Name = form.Name
	updated.Address = form.Address
	updated.Phone = form.Phone
	updated.Notes = form.Notes
	updated.UpdatedAt = now
	return updated
}
