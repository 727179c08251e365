package library

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDisplayTitle(t *testing.T) {
	tests := []struct {
		name     string
		track    Track
		expected string
	}{
		{
			name:     "tagged title wins",
			track:    Track{Path: "/music/01 - song.flac", Title: "Actual Title"},
			expected: "Actual Title",
		},
		{
			name:     "falls back to file stem",
			track:    Track{Path: "/music/01 - song.flac"},
			expected: "01 - song",
		},
		{
			name:     "stem without extension stays whole",
			track:    Track{Path: "/music/noext"},
			expected: "noext",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.track.DisplayTitle(); got != tt.expected {
				t.Errorf("Expected title %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestDisplayArtist(t *testing.T) {
	if got := (Track{Artist: "Foals"}).DisplayArtist(); got != "Foals" {
		t.Errorf("Expected Foals, got %q", got)
	}
	if got := (Track{}).DisplayArtist(); got != "<unknown>" {
		t.Errorf("Expected <unknown>, got %q", got)
	}
}

func TestDuration(t *testing.T) {
	tr := Track{Length: 3.5}
	if got := tr.Duration(); got != 3500*time.Millisecond {
		t.Errorf("Expected 3.5s, got %v", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	lib, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load of missing file should not error, got %v", err)
	}
	if lib.Len() != 0 {
		t.Errorf("Expected empty library, got %d tracks", lib.Len())
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lib", "library.json")

	lib := &Library{Tracks: []Track{
		{ID: 1, Path: "/music/a.mp3", Title: "A", Artist: "Artist", Length: 180},
		{ID: 2, Path: "/music/b.ogg", Title: "B", Album: "Album"},
	}}
	if err := lib.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Len() != 2 {
		t.Fatalf("Expected 2 tracks, got %d", loaded.Len())
	}
	if loaded.Tracks[0].Title != "A" || loaded.Tracks[1].Album != "Album" {
		t.Errorf("Round trip lost fields: %+v", loaded.Tracks)
	}

	tr, ok := loaded.TrackByID(2)
	if !ok || tr.Path != "/music/b.ogg" {
		t.Errorf("TrackByID(2) = %+v, %v", tr, ok)
	}
}

func TestLoadAssignsMissingIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library.json")
	raw := `{"tracks":[{"id":7,"path":"/a.mp3"},{"path":"/b.mp3"},{"path":"/c.mp3"}]}`
	if err := os.WriteFile(path, []byte(raw), 0600); err != nil {
		t.Fatal(err)
	}

	lib, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if lib.Tracks[1].ID != 8 || lib.Tracks[2].ID != 9 {
		t.Errorf("Expected assigned IDs 8 and 9, got %d and %d", lib.Tracks[1].ID, lib.Tracks[2].ID)
	}
}

func TestLoadRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Expected error for corrupt library file, got nil")
	}
}

func TestReplaceKeepsIDsForSurvivingPaths(t *testing.T) {
	lib := &Library{Tracks: []Track{
		{ID: 3, Path: "/music/a.mp3", Title: "Old A"},
		{ID: 7, Path: "/music/gone.mp3"},
	}}

	lib.Replace([]Track{
		{Path: "/music/a.mp3", Title: "New A"},
		{Path: "/music/new.mp3"},
	})

	if lib.Len() != 2 {
		t.Fatalf("Expected 2 tracks, got %d", lib.Len())
	}
	if lib.Tracks[0].ID != 3 {
		t.Errorf("Expected surviving path to keep ID 3, got %d", lib.Tracks[0].ID)
	}
	if lib.Tracks[0].Title != "New A" {
		t.Errorf("Expected rescanned metadata, got %q", lib.Tracks[0].Title)
	}
	if lib.Tracks[1].ID != 8 {
		t.Errorf("Expected new path to get ID 8, got %d", lib.Tracks[1].ID)
	}
	if _, ok := lib.TrackByID(7); ok {
		t.Error("Expected removed path to be gone")
	}
}

func TestReplaceDedupsByPath(t *testing.T) {
	lib := &Library{}
	lib.Replace([]Track{
		{Path: "/music/a.mp3", Title: "First"},
		{Path: "/music/a.mp3", Title: "Second"},
	})

	if lib.Len() != 1 {
		t.Fatalf("Expected 1 track, got %d", lib.Len())
	}
	if lib.Tracks[0].Title != "First" {
		t.Errorf("Expected first occurrence to win, got %q", lib.Tracks[0].Title)
	}
}
