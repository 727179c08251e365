package queue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/deifactor/deimos/internal/library"
)

// State is the queue snapshot that gets persisted to disk so a restarted
// daemon can pick up where it left off.
type State struct {
	Tracks  []library.Track `json:"tracks"`
	Index   int             `json:"index"`
	Loop    string          `json:"loop"` // "none", "track", "queue"
	Shuffle bool            `json:"shuffle"`
}

// Snapshot captures the queue into a persistable State.
func (q *PlayQueue) Snapshot() *State {
	return &State{
		Tracks:  q.Tracks(),
		Index:   q.index,
		Loop:    q.loop.String(),
		Shuffle: q.shuffle,
	}
}

// Restore overwrites the queue from a saved State. Out-of-range cursors
// (a shrunken or hand-edited file) are cleared rather than trusted.
func (q *PlayQueue) Restore(st *State) {
	q.SetTracks(st.Tracks)
	if st.Index >= 0 && st.Index < len(q.tracks) {
		q.index = st.Index
	}
	q.loop = ParseLoopMode(st.Loop)
	q.shuffle = st.Shuffle
}

// Store persists queue state to a JSON file under the data directory.
type Store struct {
	filePath string
}

// NewStore creates a store writing to dataDir/queue.json.
func NewStore(dataDir string) *Store {
	return &Store{filePath: filepath.Join(dataDir, "queue.json")}
}

// Load reads the saved state. A missing file yields (nil, nil).
func (s *Store) Load() (*State, error) {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read queue file: %w", err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to parse queue file: %w", err)
	}
	return &st, nil
}

// Save writes the state to disk, creating the directory as needed.
func (s *Store) Save(st *State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal queue state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0700); err != nil {
		return fmt.Errorf("failed to create queue directory: %w", err)
	}

	if err := os.WriteFile(s.filePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write queue file: %w", err)
	}

	return nil
}

// FilePath returns the path of the queue file.
func (s *Store) FilePath() string {
	return s.filePath
}
