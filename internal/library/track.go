// Package library defines the immutable track records the playback engine
// consumes and the ordered collection the daemon loads them from.
//
// Records are produced elsewhere (a scanner, a client sending them inline
// over IPC); this package never inspects audio files itself.
package library

import (
	"path/filepath"
	"strings"
	"time"
)

// Track is a single playable entry. Tracks are shared by reference across
// the library, the queue, and now-playing state and are never mutated after
// construction.
type Track struct {
	// ID uniquely identifies the track within one library. Used for
	// MPRIS track object paths and IPC references.
	ID uint64 `json:"id"`

	// Number is the track number within its album, 0 when unknown.
	Number int `json:"number,omitempty"`

	// Path is the absolute path to the audio file.
	Path string `json:"path"`

	Title  string `json:"title,omitempty"`
	Album  string `json:"album,omitempty"`
	Artist string `json:"artist,omitempty"`

	// Length is the track duration in seconds, 0 when unknown.
	Length float64 `json:"length,omitempty"`
}

// DisplayTitle returns the title, falling back to the file name without its
// extension when no title is tagged.
func (t Track) DisplayTitle() string {
	if t.Title != "" {
		return t.Title
	}
	base := filepath.Base(t.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// DisplayArtist returns the artist, or "<unknown>" when none is tagged.
func (t Track) DisplayArtist() string {
	if t.Artist != "" {
		return t.Artist
	}
	return "<unknown>"
}

// Duration converts the tagged length to a time.Duration.
func (t Track) Duration() time.Duration {
	return time.Duration(t.Length * float64(time.Second))
}
