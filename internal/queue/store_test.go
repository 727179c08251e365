package queue

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/deifactor/deimos/internal/library"
)

func TestStoreRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())

	q := New()
	q.SetTracks(testTracks(3))
	q.SetIndex(1)
	q.SetLoop(LoopQueue)
	q.SetShuffle(true)

	if err := store.Save(q.Snapshot()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	st, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if st == nil {
		t.Fatal("Load returned nil state for an existing file")
	}

	restored := New()
	restored.Restore(st)

	if restored.Len() != 3 {
		t.Errorf("Expected 3 tracks, got %d", restored.Len())
	}
	if idx, ok := restored.Index(); !ok || idx != 1 {
		t.Errorf("Expected cursor 1, got %d (ok=%v)", idx, ok)
	}
	if restored.Loop() != LoopQueue {
		t.Errorf("Expected LoopQueue, got %v", restored.Loop())
	}
	if !restored.Shuffle() {
		t.Error("Shuffle flag lost in round trip")
	}
}

func TestStoreLoadMissingFile(t *testing.T) {
	store := NewStore(t.TempDir())

	st, err := store.Load()
	if err != nil {
		t.Fatalf("Load of missing file should not error, got %v", err)
	}
	if st != nil {
		t.Errorf("Expected nil state, got %+v", st)
	}
}

func TestStoreLoadCorruptFile(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	if err := os.WriteFile(filepath.Join(dir, "queue.json"), []byte("{broken"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := store.Load(); err == nil {
		t.Error("Expected error for corrupt queue file")
	}
}

func TestRestoreClearsOutOfRangeCursor(t *testing.T) {
	q := New()
	q.Restore(&State{
		Tracks: []library.Track{{ID: 1, Path: "/a.mp3"}},
		Index:  5,
		Loop:   "track",
	})

	if _, ok := q.Index(); ok {
		t.Error("Out-of-range saved cursor should be cleared")
	}
	if q.Loop() != LoopTrack {
		t.Errorf("Expected LoopTrack, got %v", q.Loop())
	}
}
