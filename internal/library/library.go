package library

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Library is an ordered, deduplicated collection of tracks. The daemon
// loads it once at startup and serves it read-only to clients.
type Library struct {
	Tracks []Track `json:"tracks"`
}

// Load reads a library file. A missing file is not an error and yields an
// empty library. Tracks without an ID are assigned one past the highest
// present so every record is addressable.
func Load(path string) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Library{}, nil
		}
		return nil, fmt.Errorf("failed to read library file: %w", err)
	}

	var lib Library
	if err := json.Unmarshal(data, &lib); err != nil {
		return nil, fmt.Errorf("failed to parse library file: %w", err)
	}

	var next uint64
	for _, t := range lib.Tracks {
		if t.ID > next {
			next = t.ID
		}
	}
	for i := range lib.Tracks {
		if lib.Tracks[i].ID == 0 {
			next++
			lib.Tracks[i].ID = next
		}
	}

	return &lib, nil
}

// Save writes the library to disk, creating parent directories as needed.
func (l *Library) Save(path string) error {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal library: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create library directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write library file: %w", err)
	}

	return nil
}

// Replace swaps in a freshly scanned track list. Tracks whose path was
// already present keep their old ID so queue entries and MPRIS track
// references stay stable across rescans; new paths get fresh IDs.
// Duplicate paths in the input collapse to their first occurrence.
func (l *Library) Replace(tracks []Track) {
	byPath := make(map[string]uint64, len(l.Tracks))
	var next uint64
	for _, t := range l.Tracks {
		byPath[t.Path] = t.ID
		if t.ID > next {
			next = t.ID
		}
	}

	seen := make(map[string]bool, len(tracks))
	out := make([]Track, 0, len(tracks))
	for _, t := range tracks {
		if seen[t.Path] {
			continue
		}
		seen[t.Path] = true

		if id, ok := byPath[t.Path]; ok {
			t.ID = id
		} else {
			next++
			t.ID = next
		}
		out = append(out, t)
	}

	l.Tracks = out
}

// Len returns the number of tracks.
func (l *Library) Len() int {
	return len(l.Tracks)
}

// TrackByID looks a track up by its identifier.
func (l *Library) TrackByID(id uint64) (Track, bool) {
	for _, t := range l.Tracks {
		if t.ID == id {
			return t, true
		}
	}
	return Track{}, false
}
