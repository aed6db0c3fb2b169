package session

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/semanticdata/whisper-web/internal/annotation"
	"github.com/semanticdata/whisper-web/internal/storage"
	"github.com/semanticdata/whisper-web/internal/transcription"
)

var (
	ErrIncompleteTranscription = errors.New("session: transcription is not complete")
	ErrUnknownAnnotation       = errors.New("session: unknown annotation")
)

// Coordinator mediates between the live transcription pipeline and the
// annotation store. It holds a cursor that is either empty, meaning the
// form reflects a new transcription in progress, or points at a saved
// record being viewed. Audio captured while a record is selected flips
// the cursor back to creation so a save never silently overwrites the
// viewed record with unrelated content.
type Coordinator struct {
	store   *storage.Store
	logger  *slog.Logger
	onReset func()

	mu       sync.RWMutex
	selected *annotation.Record
	output   *transcription.Output
	fresh    bool

	now func() time.Time
}

// View is the derived read model the presentation layer renders from.
type View struct {
	Records       []annotation.Record       `json:"records"`
	Selected      *annotation.Record        `json:"selected,omitempty"`
	Transcription *annotation.Transcription `json:"transcription,omitempty"`
	Busy          bool                      `json:"busy"`
	ReadyToSave   bool                      `json:"readyToSave"`
}

// CoordinatorStats is a snapshot of coordinator state for monitoring.
type CoordinatorStats struct {
	RecordCount int    `json:"record_count"`
	SelectedID  string `json:"selected_id,omitempty"`
	HasOutput   bool   `json:"has_output"`
}

// NewCoordinator creates a coordinator over the given store. onReset is
// invoked whenever the cursor moves in a way that invalidates the live
// pipeline state, so the caller can clear the transcriber and player. It
// may be nil.
func NewCoordinator(store *storage.Store, logger *slog.Logger, onReset func()) *Coordinator {
	return &Coordinator{
		store:   store,
		logger:  logger,
		onReset: onReset,
		now:     time.Now,
	}
}

// Select moves the cursor onto a saved record. The live pipeline is reset
// so the form shows the record's stored transcription rather than leftover
// engine output.
func (c *Coordinator) Select(id string) error {
	record, ok := c.store.GetByID(id)
	if !ok {
		return ErrUnknownAnnotation
	}

	c.mu.Lock()
	c.selected = &record
	c.output = nil
	c.fresh = false
	onReset := c.onReset
	c.mu.Unlock()

	c.logger.Info("Annotation selected", slog.String("annotation_id", id))

	if onReset != nil {
		onReset()
	}
	return nil
}

// Deselect clears the cursor and returns to new-transcription mode.
func (c *Coordinator) Deselect() {
	c.mu.Lock()
	wasSelected := c.selected != nil
	c.selected = nil
	c.output = nil
	c.fresh = false
	onReset := c.onReset
	c.mu.Unlock()

	if wasSelected {
		c.logger.Info("Annotation deselected")
	}
	if onReset != nil {
		onReset()
	}
}

// SetOutput records the latest engine output. New output arriving while a
// saved record is viewed marks the transcription as fresh, so the next
// save creates a new record instead of updating the viewed one.
func (c *Coordinator) SetOutput(output *transcription.Output) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.output = output
	if c.selected != nil && output != nil {
		c.fresh = true
	}
}

// Save persists the form. With the cursor on a saved record and no fresh
// transcription it updates that record in place, preserving its identity,
// creation time and stored transcription. Otherwise it creates a new
// record from the completed engine output and moves the cursor onto it.
func (c *Coordinator) Save(form annotation.FormData) (annotation.Record, error) {
	c.mu.Lock()

	var record annotation.Record
	if c.selected != nil && !c.fresh {
		record = annotation.Update(*c.selected, form, c.now())
	} else {
		if !c.output.Complete() {
			c.mu.Unlock()
			return annotation.Record{}, ErrIncompleteTranscription
		}
		record = annotation.New(c.store.GenerateID(), form, c.output.Snapshot(), c.now())
	}
	c.mu.Unlock()

	if err := c.store.Save(record); err != nil {
		return annotation.Record{}, err
	}

	// The store is the source of truth; re-read the record rather than
	// trusting that the write round-trips unchanged.
	if stored, ok := c.store.GetByID(record.ID); ok {
		record = stored
	}

	c.mu.Lock()
	saved := record
	c.selected = &saved
	c.fresh = false
	c.mu.Unlock()

	c.logger.Info("Annotation saved",
		slog.String("annotation_id", record.ID),
		slog.String("name", record.Name),
	)
	return record, nil
}

// Delete removes a record from the store. Deleting the viewed record
// resets the cursor to new-transcription mode.
func (c *Coordinator) Delete(id string) error {
	if err := c.store.Delete(id); err != nil {
		return err
	}

	c.mu.Lock()
	var onReset func()
	if c.selected != nil && c.selected.ID == id {
		c.selected = nil
		c.output = nil
		c.fresh = false
		onReset = c.onReset
	}
	c.mu.Unlock()

	if onReset != nil {
		onReset()
	}

	c.logger.Info("Annotation deleted", slog.String("annotation_id", id))
	return nil
}

// Selected returns the record under the cursor, or nil in
// new-transcription mode.
func (c *Coordinator) Selected() *annotation.Record {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.selected == nil {
		return nil
	}
	record := *c.selected
	return &record
}

// View derives the current read model. The transcription shown is the
// selected record's stored one, unless fresh engine output has replaced
// it or nothing is selected.
func (c *Coordinator) View() View {
	records := c.store.GetAll()

	c.mu.RLock()
	defer c.mu.RUnlock()

	view := View{Records: records}

	if c.selected != nil {
		record := *c.selected
		view.Selected = &record
	}

	switch {
	case c.selected != nil && !c.fresh:
		t := c.selected.Transcription.Clone()
		view.Transcription = &t
		view.ReadyToSave = true
	case c.output != nil:
		t := c.output.Snapshot()
		view.Transcription = &t
		view.Busy = c.output.IsBusy
		view.ReadyToSave = c.output.Complete()
	}

	return view
}

// GetStats returns a state snapshot for the stats endpoint.
func (c *Coordinator) GetStats() CoordinatorStats {
	records := c.store.GetAll()

	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := CoordinatorStats{
		RecordCount: len(records),
		HasOutput:   c.output != nil,
	}
	if c.selected != nil {
		stats.SelectedID = c.selected.ID
	}
	return stats
}
