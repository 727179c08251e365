package audio

import "time"

// Event is a notification the player pushes toward the application's event
// loop.
type Event interface {
	playerEvent()
}

// ProgressEvent is emitted once per decoded fragment. Buffer holds the
// interleaved samples the decoder just produced, in the track's native
// layout, and Timestamp is the stream position at the fragment's end.
type ProgressEvent struct {
	Timestamp  time.Duration
	Buffer     []float32
	Channels   int
	SampleRate int
}

// FinishedEvent is emitted exactly once per track, when its decoder reaches
// end of stream. Whether to advance to another track is the receiver's
// decision; the player itself stays put and plays silence.
type FinishedEvent struct{}

func (ProgressEvent) playerEvent() {}
func (FinishedEvent) playerEvent() {}
