// Package queue implements the playback queue: an ordered track list with
// a current-position cursor, a loop policy, and a shuffle flag.
//
// The queue is pure sequencing state. It performs no I/O and holds no
// locks; the owning Player serializes access to it.
package queue

import (
	"fmt"

	"github.com/deifactor/deimos/internal/library"
)

// LoopMode governs what Next and Previous return at queue boundaries.
type LoopMode int

const (
	// LoopNone stops at either end of the queue.
	LoopNone LoopMode = iota
	// LoopTrack repeats the selected track.
	LoopTrack
	// LoopQueue wraps around both ends of the queue.
	LoopQueue
)

// String returns the persisted/wire name of the mode.
func (m LoopMode) String() string {
	switch m {
	case LoopTrack:
		return "track"
	case LoopQueue:
		return "queue"
	default:
		return "none"
	}
}

// ParseLoopMode is the inverse of String; unknown names mean LoopNone.
func ParseLoopMode(s string) LoopMode {
	switch s {
	case "track":
		return LoopTrack
	case "queue":
		return LoopQueue
	default:
		return LoopNone
	}
}

// NoIndex marks the cursor as unset.
const NoIndex = -1

// PlayQueue is the ordered list of tracks with an optional cursor.
// Invariant: when the cursor is set it is always < len(tracks).
type PlayQueue struct {
	tracks  []library.Track
	index   int // NoIndex when nothing is selected
	loop    LoopMode
	shuffle bool
}

// New returns an empty queue with no selection.
func New() *PlayQueue {
	return &PlayQueue{index: NoIndex}
}

// SetTracks replaces the track list and clears the cursor.
func (q *PlayQueue) SetTracks(tracks []library.Track) {
	q.tracks = make([]library.Track, len(tracks))
	copy(q.tracks, tracks)
	q.index = NoIndex
}

// Push appends a track without disturbing the cursor.
func (q *PlayQueue) Push(t library.Track) {
	q.tracks = append(q.tracks, t)
}

// Tracks returns a copy of the track list.
func (q *PlayQueue) Tracks() []library.Track {
	out := make([]library.Track, len(q.tracks))
	copy(out, q.tracks)
	return out
}

// Len returns the number of queued tracks.
func (q *PlayQueue) Len() int {
	return len(q.tracks)
}

// Index returns the cursor, with ok false when nothing is selected.
func (q *PlayQueue) Index() (int, bool) {
	if q.index == NoIndex {
		return 0, false
	}
	return q.index, true
}

// SetIndex moves the cursor. Panics when the index is outside the track
// list; passing an out-of-range index is a programming error, not a
// recoverable condition.
func (q *PlayQueue) SetIndex(i int) {
	if i != NoIndex && (i < 0 || i >= len(q.tracks)) {
		panic(fmt.Sprintf("queue: index %d out of range for %d tracks", i, len(q.tracks)))
	}
	q.index = i
}

// CurrentTrack returns the track under the cursor.
func (q *PlayQueue) CurrentTrack() (library.Track, bool) {
	if q.index == NoIndex {
		return library.Track{}, false
	}
	return q.tracks[q.index], true
}

// Next computes the index that follows the cursor under the loop policy.
// ok is false when sequencing runs off the end (or nothing is selected).
// The cursor itself is not moved.
func (q *PlayQueue) Next() (int, bool) {
	if q.index == NoIndex || len(q.tracks) == 0 {
		return 0, false
	}
	switch q.loop {
	case LoopTrack:
		return q.index, true
	case LoopQueue:
		return (q.index + 1) % len(q.tracks), true
	default:
		if q.index+1 >= len(q.tracks) {
			return 0, false
		}
		return q.index + 1, true
	}
}

// Previous computes the index preceding the cursor under the loop policy,
// wrapping one-before-the-first to the last element under LoopQueue.
func (q *PlayQueue) Previous() (int, bool) {
	if q.index == NoIndex || len(q.tracks) == 0 {
		return 0, false
	}
	switch q.loop {
	case LoopTrack:
		return q.index, true
	case LoopQueue:
		return (q.index - 1 + len(q.tracks)) % len(q.tracks), true
	default:
		if q.index == 0 {
			return 0, false
		}
		return q.index - 1, true
	}
}

// Loop returns the loop policy.
func (q *PlayQueue) Loop() LoopMode {
	return q.loop
}

// SetLoop replaces the loop policy.
func (q *PlayQueue) SetLoop(m LoopMode) {
	q.loop = m
}

// Shuffle reports the shuffle flag. The flag is a control hook surfaced to
// session managers; reordering is the collaborator's concern, so flipping
// it never rearranges the track list here.
func (q *PlayQueue) Shuffle() bool {
	return q.shuffle
}

// SetShuffle sets the shuffle flag.
func (q *PlayQueue) SetShuffle(enabled bool) {
	q.shuffle = enabled
}
