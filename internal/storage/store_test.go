package storage

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/semanticdata/whisper-web/internal/annotation"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRecord(id, name string) annotation.Record {
	end := 1.5
	return annotation.New(id, annotation.FormData{Name: name}, annotation.Transcription{
		Text:   " hello",
		Chunks: []annotation.Chunk{{Text: " hello", Start: 0, End: &end}},
	}, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
}

func TestGetAllEmptyStore(t *testing.T) {
	store := NewStore(NewMemoryMedium(), testLogger())

	records := store.GetAll()
	if records == nil {
		t.Fatal("Expected empty slice, got nil")
	}
	if len(records) != 0 {
		t.Errorf("Expected 0 records, got %d", len(records))
	}
}

func TestGetAllCorruptStore(t *testing.T) {
	medium := NewMemoryMedium()
	if err := medium.Set(StorageKey, "{not json"); err != nil {
		t.Fatalf("Failed to seed corrupt data: %v", err)
	}

	store := NewStore(medium, testLogger())
	recoveries := 0
	store.OnCorrupt(func() { recoveries++ })

	records := store.GetAll()
	if len(records) != 0 {
		t.Errorf("Expected corrupt store to yield 0 records, got %d", len(records))
	}
	if recoveries != 1 {
		t.Errorf("Expected 1 corrupt recovery, got %d", recoveries)
	}

	// The store must stay usable after recovery.
	if err := store.Save(testRecord("annotation_1_aaa", "Alice")); err != nil {
		t.Fatalf("Failed to save after corruption: %v", err)
	}
	if len(store.GetAll()) != 1 {
		t.Error("Expected save to succeed after corrupt read")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	store := NewStore(NewMemoryMedium(), testLogger())
	rec := testRecord("annotation_1_aaa", "Alice")

	if err := store.Save(rec); err != nil {
		t.Fatalf("Failed to save record: %v", err)
	}

	got, ok := store.GetByID(rec.ID)
	if !ok {
		t.Fatal("Expected record to be found")
	}

	if got.ID != rec.ID || got.Name != rec.Name {
		t.Errorf("Expected %s/%s, got %s/%s", rec.ID, rec.Name, got.ID, got.Name)
	}
	if !got.CreatedAt.Equal(rec.CreatedAt) {
		t.Errorf("Expected createdAt %v, got %v", rec.CreatedAt, got.CreatedAt)
	}
	if !got.UpdatedAt.Equal(rec.UpdatedAt) {
		t.Errorf("Expected updatedAt %v, got %v", rec.UpdatedAt, got.UpdatedAt)
	}
	if len(got.Transcription.Chunks) != 1 {
		t.Fatalf("Expected 1 chunk, got %d", len(got.Transcription.Chunks))
	}
	chunk := got.Transcription.Chunks[0]
	if chunk.Text != " hello" || chunk.Start != 0 || chunk.End == nil || *chunk.End != 1.5 {
		t.Errorf("Chunk did not round-trip: %+v", chunk)
	}
}

func TestSaveReplacesInPlace(t *testing.T) {
	store := NewStore(NewMemoryMedium(), testLogger())

	for _, r := range []annotation.Record{
		testRecord("annotation_1_aaa", "Alice"),
		testRecord("annotation_2_bbb", "Bob"),
		testRecord("annotation_3_ccc", "Carol"),
	} {
		if err := store.Save(r); err != nil {
			t.Fatalf("Failed to save %s: %v", r.ID, err)
		}
	}

	updated := testRecord("annotation_2_bbb", "Bobby")
	if err := store.Save(updated); err != nil {
		t.Fatalf("Failed to replace record: %v", err)
	}

	records := store.GetAll()
	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}
	if records[1].ID != "annotation_2_bbb" || records[1].Name != "Bobby" {
		t.Errorf("Expected replaced record to keep position 1, got %s/%s at 1", records[1].ID, records[1].Name)
	}
}

func TestNoDuplicateIDs(t *testing.T) {
	store := NewStore(NewMemoryMedium(), testLogger())

	ops := []struct {
		save bool
		id   string
	}{
		{true, "annotation_1_aaa"},
		{true, "annotation_2_bbb"},
		{true, "annotation_1_aaa"},
		{false, "annotation_2_bbb"},
		{true, "annotation_3_ccc"},
		{true, "annotation_3_ccc"},
		{false, "annotation_9_zzz"}, // never existed
	}

	for _, op := range ops {
		var err error
		if op.save {
			err = store.Save(testRecord(op.id, "n"))
		} else {
			err = store.Delete(op.id)
		}
		if err != nil {
			t.Fatalf("Operation on %s failed: %v", op.id, err)
		}
	}

	seen := make(map[string]int)
	for _, r := range store.GetAll() {
		seen[r.ID]++
	}
	for id, count := range seen {
		if count != 1 {
			t.Errorf("Expected exactly one record for %s, got %d", id, count)
		}
	}
	if len(seen) != 2 {
		t.Errorf("Expected 2 surviving ids, got %d", len(seen))
	}
	if _, ok := seen["annotation_2_bbb"]; ok {
		t.Error("Expected annotation_2_bbb to be deleted")
	}
}

func TestDeleteIdempotent(t *testing.T) {
	store := NewStore(NewMemoryMedium(), testLogger())

	if err := store.Save(testRecord("annotation_1_aaa", "Alice")); err != nil {
		t.Fatalf("Failed to save record: %v", err)
	}
	if err := store.Save(testRecord("annotation_2_bbb", "Bob")); err != nil {
		t.Fatalf("Failed to save record: %v", err)
	}

	if err := store.Delete("annotation_1_aaa"); err != nil {
		t.Fatalf("First delete failed: %v", err)
	}
	after := store.GetAll()

	if err := store.Delete("annotation_1_aaa"); err != nil {
		t.Fatalf("Second delete failed: %v", err)
	}
	again := store.GetAll()

	if len(after) != len(again) {
		t.Errorf("Expected identical state after repeated delete: %d vs %d", len(after), len(again))
	}
	if len(again) != 1 || again[0].ID != "annotation_2_bbb" {
		t.Errorf("Expected only annotation_2_bbb to survive, got %+v", again)
	}
}

func TestGetByIDMiss(t *testing.T) {
	store := NewStore(NewMemoryMedium(), testLogger())

	if _, ok := store.GetByID("annotation_0_nope"); ok {
		t.Error("Expected miss for unknown id")
	}
}

func TestGenerateID(t *testing.T) {
	store := NewStore(NewMemoryMedium(), testLogger())

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := store.GenerateID()
		if !strings.HasPrefix(id, "annotation_") {
			t.Fatalf("Expected annotation_ prefix, got %s", id)
		}
		if seen[id] {
			t.Fatalf("Duplicate id generated: %s", id)
		}
		seen[id] = true
	}
}
