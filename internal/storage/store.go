package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/semanticdata/whisper-web/internal/annotation"
)

// StorageKey is the single key under which the whole annotation collection
// is serialized.
const StorageKey = "whisper-web-annotations"

// Store provides CRUD over the annotation collection. Every write is a
// read-modify-write of the entire serialized collection, so the design
// assumes a single logical writer; multi-writer safety is an explicit
// non-goal rather than something recovered here.
type Store struct {
	medium    Medium
	logger    *slog.Logger
	onCorrupt func()
}

// NewStore creates a store over the given medium.
func NewStore(medium Medium, logger *slog.Logger) *Store {
	return &Store{medium: medium, logger: logger}
}

// OnCorrupt registers a callback invoked whenever a corrupt payload is
// replaced by the empty collection. Register before first use.
func (s *Store) OnCorrupt(fn func()) {
	s.onCorrupt = fn
}

// GetAll returns the persisted collection in stored order. A missing or
// corrupt collection yields an empty slice: a broken store must never
// block the rest of the application, so corruption is logged and recovered
// locally.
func (s *Store) GetAll() []annotation.Record {
	raw, ok, err := s.medium.Get(StorageKey)
	if err != nil {
		s.logger.Warn("Failed to read annotation collection",
			slog.String("key", StorageKey),
			slog.String("error", err.Error()),
		)
		return []annotation.Record{}
	}
	if !ok {
		return []annotation.Record{}
	}

	var records []annotation.Record
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		s.logger.Warn("Corrupt annotation collection, substituting empty list",
			slog.String("key", StorageKey),
			slog.Int("raw_bytes", len(raw)),
			slog.String("error", err.Error()),
		)
		if s.onCorrupt != nil {
			s.onCorrupt()
		}
		return []annotation.Record{}
	}
	if records == nil {
		records = []annotation.Record{}
	}

	return records
}

// Save writes record into the collection: an existing id is replaced in
// place, preserving its position; a new id is appended. The caller must
// supply a complete, already-merged record.
func (s *Store) Save(record annotation.Record) error {
	records := s.GetAll()

	replaced := false
	for i := range records {
		if records[i].ID == record.ID {
			records[i] = record
			replaced = true
			break
		}
	}
	if !replaced {
		records = append(records, record)
	}

	if err := s.writeAll(records); err != nil {
		return fmt.Errorf("save annotation %s: %w", record.ID, err)
	}

	s.logger.Debug("Annotation saved",
		slog.String("id", record.ID),
		slog.Bool("replaced", replaced),
		slog.Int("total", len(records)),
	)
	return nil
}

// Delete removes the record with the given id. An absent id is a no-op.
func (s *Store) Delete(id string) error {
	records := s.GetAll()

	filtered := records[:0]
	for _, r := range records {
		if r.ID != id {
			filtered = append(filtered, r)
		}
	}

	if err := s.writeAll(filtered); err != nil {
		return fmt.Errorf("delete annotation %s: %w", id, err)
	}

	s.logger.Debug("Annotation deleted",
		slog.String("id", id),
		slog.Int("total", len(filtered)),
	)
	return nil
}

// GetByID returns the record with the given id; a miss is reported as
// absence, never an error.
func (s *Store) GetByID(id string) (annotation.Record, bool) {
	for _, r := range s.GetAll() {
		if r.ID == id {
			return r, true
		}
	}
	return annotation.Record{}, false
}

// GenerateID produces an identifier combining a monotonic millisecond
// timestamp with a random component. The store never trusts
// caller-supplied ids for new records.
func (s *Store) GenerateID() string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("annotation_%d_%s", time.Now().UnixMilli(), random)
}

func (s *Store) writeAll(records []annotation.Record) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("serialize collection: %w", err)
	}
	if err := s.medium.Set(StorageKey, string(data)); err != nil {
		return fmt.Errorf("write collection: %w", err)
	}
	return nil
}
