package store

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "audit.db"), true)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestStatsAggregatesEvents(t *testing.T) {
	db := openTestDB(t)
	for _, archetype := range []string{"switch", "soft_dom", "switch", "slave"} {
		if err := db.SaveGeneration(&GenerationEvent{Archetype: archetype, Decisions: 3}); err != nil {
			t.Fatalf("save generation: %v", err)
		}
	}
	first := &RecognitionEvent{Detector: "fixture", Images: 1, Detected: 2, Tags: 2}
	first.SetTagIDs([]string{"bdsm.impact", "bdsm.bondage"})
	second := &RecognitionEvent{Detector: "fixture", Images: 3, Detected: 1, Tags: 1, NSFW: true}
	second.SetTagIDs([]string{"bdsm.bondage"})
	for _, event := range []*RecognitionEvent{first, second, {Detector: "http", Images: 1}} {
		if err := db.SaveRecognition(event); err != nil {
			t.Fatalf("save recognition: %v", err)
		}
	}

	stats, err := db.Stats(time.Time{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Generations != 4 {
		t.Fatalf("expected 4 generations got %d", stats.Generations)
	}
	if len(stats.Archetypes) != 3 || stats.Archetypes[0] != (ArchetypeCount{Archetype: "switch", Total: 2}) {
		t.Fatalf("unexpected archetype counts %+v", stats.Archetypes)
	}
	if stats.Archetypes[1].Archetype != "slave" {
		t.Fatalf("ties should be ordered by archetype, got %+v", stats.Archetypes)
	}
	want := RecognitionTotals{Requests: 3, Images: 5, Detected: 3, Tags: 3, NSFW: 1}
	if stats.Recognition != want {
		t.Fatalf("expected totals %+v got %+v", want, stats.Recognition)
	}
	if len(stats.Tags) != 2 || stats.Tags[0] != (TagCount{TagID: "bdsm.bondage", Total: 2}) {
		t.Fatalf("unexpected tag counts %+v", stats.Tags)
	}
}

func TestStatsSinceFilter(t *testing.T) {
	db := openTestDB(t)
	old := &GenerationEvent{Archetype: "switch", CreatedAt: time.Now().Add(-48 * time.Hour)}
	if err := db.SaveGeneration(old); err != nil {
		t.Fatalf("save generation: %v", err)
	}
	if err := db.SaveGeneration(&GenerationEvent{Archetype: "soft_dom"}); err != nil {
		t.Fatalf("save generation: %v", err)
	}

	counts, err := db.ArchetypeCounts(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("archetype counts: %v", err)
	}
	if len(counts) != 1 || counts[0].Archetype != "soft_dom" {
		t.Fatalf("expected only the recent event, got %+v", counts)
	}
}

func TestEmptyStoreStats(t *testing.T) {
	db := openTestDB(t)
	stats, err := db.Stats(time.Time{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Generations != 0 || len(stats.Archetypes) != 0 || len(stats.Tags) != 0 {
		t.Fatalf("expected empty stats got %+v", stats)
	}
	if stats.Recognition != (RecognitionTotals{}) {
		t.Fatalf("expected zero totals got %+v", stats.Recognition)
	}
}

func TestClearEvents(t *testing.T) {
	db := openTestDB(t)
	if err := db.SaveGeneration(&GenerationEvent{Archetype: "switch"}); err != nil {
		t.Fatalf("save generation: %v", err)
	}
	if err := db.ClearEvents(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	counts, err := db.ArchetypeCounts(time.Time{})
	if err != nil {
		t.Fatalf("archetype counts: %v", err)
	}
	if len(counts) != 0 {
		t.Fatalf("expected no events after clear, got %+v", counts)
	}
}

func TestNilDatabase(t *testing.T) {
	var db *Database
	if err := db.SaveGeneration(&GenerationEvent{}); err == nil {
		t.Fatalf("expected error saving to nil database")
	}
	if _, err := db.Stats(time.Time{}); err == nil {
		t.Fatalf("expected error reading nil database")
	}
	if err := db.Close(); err != nil {
		t.Fatalf("closing nil database should be a no-op: %v", err)
	}
}

func TestTagIDsRoundTrip(t *testing.T) {
	var event RecognitionEvent
	event.SetTagIDs(nil)
	if event.TagIDsJSON != "[]" || len(event.TagIDs()) != 0 {
		t.Fatalf("nil tag list should persist as empty array, got %q", event.TagIDsJSON)
	}
	event.TagIDsJSON = "not json"
	if event.TagIDs() != nil {
		t.Fatalf("corrupt tag json should read as nil")
	}
}
