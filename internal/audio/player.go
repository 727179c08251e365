// Package audio implements the playback engine. A selected track is decoded
// by internal/codec, flattened through a SampleBridge, and pushed by a
// decode worker into a bounded ring that the output device drains on its own
// schedule. Pause, volume, and seeks never block the device's pull path.
package audio

import (
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/deifactor/deimos/internal/codec"
	"github.com/deifactor/deimos/internal/library"
	"github.com/deifactor/deimos/internal/media"
	"github.com/deifactor/deimos/internal/queue"
)

// PlaybackState represents the current state of the player
type PlaybackState string

const (
	StateStopped PlaybackState = "stopped"
	StatePlaying PlaybackState = "playing"
	StatePaused  PlaybackState = "paused"
)

// DefaultBufferMillis is how much decoded audio the ring holds ahead of the
// device when the config does not say otherwise.
const DefaultBufferMillis = 100

// Status is a point-in-time snapshot of the player, shaped for the IPC
// status response.
type Status struct {
	State      PlaybackState  `json:"state"`
	Track      *library.Track `json:"track,omitempty"`
	QueueIndex int            `json:"queueIndex"` // -1 when no track is selected
	QueueLen   int            `json:"queueLen"`
	Position   int64          `json:"position"` // milliseconds
	Duration   int64          `json:"duration"` // milliseconds
	Volume     float64        `json:"volume"`   // 0.0 - 1.0
	Loop       string         `json:"loop"`
	Shuffle    bool           `json:"shuffle"`
}

// Player owns the play queue and at most one live playback session. All
// commands are serialized on p.mu; the flags the device pull path needs are
// atomics so it never contends with them.
type Player struct {
	mu      sync.RWMutex
	queue   *queue.PlayQueue
	session *session

	device       Device
	events       chan<- Event
	mediaSession media.Session

	bufferMs int

	paused   atomic.Bool
	volume   atomic.Uint64 // math.Float64bits
	position atomic.Int64  // nanoseconds into the current track
}

// NewPlayer creates a player over the given output device. Progress and
// finished notifications are delivered on events, which may be nil when the
// caller does not care.
func NewPlayer(device Device, events chan<- Event) *Player {
	p := &Player{
		queue:    queue.New(),
		device:   device,
		events:   events,
		bufferMs: DefaultBufferMillis,
	}
	p.volume.Store(math.Float64bits(1.0))
	return p
}

// SetMediaSession attaches an OS media session that mirrors player state.
func (p *Player) SetMediaSession(s media.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mediaSession = s
}

// SetBufferMillis sets how much decoded audio the ring may hold ahead of
// the device. Takes effect for the next track.
func (p *Player) SetBufferMillis(ms int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ms > 0 {
		p.bufferMs = ms
	}
}

// SetQueue replaces the queue contents. Any current playback stops and the
// selection is cleared.
func (p *Player) SetQueue(tracks []library.Track) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue.SetTracks(tracks)
	p.teardownLocked()
	p.updateMediaLocked()
}

// QueuePush appends a track without disturbing playback or the selection.
func (p *Player) QueuePush(t library.Track) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue.Push(t)
}

// QueueTracks returns a copy of the queue contents.
func (p *Player) QueueTracks() []library.Track {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.queue.Tracks()
}

// QueueSnapshot captures the queue for persistence.
func (p *Player) QueueSnapshot() *queue.State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.queue.Snapshot()
}

// RestoreQueue loads a saved snapshot without starting playback. A restored
// selection stays dormant until Play or an explicit jump opens it.
func (p *Player) RestoreQueue(st *queue.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue.Restore(st)
	p.updateMediaLocked()
}

// QueueIndex returns the selected index, if any.
func (p *Player) QueueIndex() (int, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.queue.Index()
}

// CurrentTrack returns the selected track, if any.
func (p *Player) CurrentTrack() (library.Track, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.queue.CurrentTrack()
}

// LoopMode returns the queue's loop mode.
func (p *Player) LoopMode() queue.LoopMode {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.queue.Loop()
}

// SetLoopMode changes how Next and Previous sequence the queue.
func (p *Player) SetLoopMode(m queue.LoopMode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue.SetLoop(m)
	log.Printf("[PLAYER] Loop mode: %s", m)
	if p.mediaSession != nil {
		p.mediaSession.UpdateLoopStatus(loopToMediaStatus(m))
	}
}

// ShuffleEnabled returns the queue's shuffle flag.
func (p *Player) ShuffleEnabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.queue.Shuffle()
}

// SetShuffle records the shuffle flag. Track selection under shuffle is the
// frontend's job; the flag only has to survive round trips through status
// queries and the OS media session.
func (p *Player) SetShuffle(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue.SetShuffle(enabled)
	log.Printf("[PLAYER] Shuffle: %v", enabled)
	if p.mediaSession != nil {
		p.mediaSession.UpdateShuffle(enabled)
	}
}

// SetQueueIndex selects the track at index i and starts decoding it from
// the beginning, tearing down any previous pipeline first. queue.NoIndex
// clears the selection and stops playback. Panics if i is otherwise out of
// range.
func (p *Player) SetQueueIndex(i int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.setQueueIndexLocked(i)
}

func (p *Player) setQueueIndexLocked(i int) error {
	p.queue.SetIndex(i)
	p.teardownLocked()
	if i == queue.NoIndex {
		p.updateMediaLocked()
		return nil
	}

	track, _ := p.queue.CurrentTrack()
	s, err := p.startSession(track)
	if err != nil {
		// Leave the player cleanly stopped; whether to try another track
		// is the caller's call.
		p.queue.SetIndex(queue.NoIndex)
		p.updateMediaLocked()
		return fmt.Errorf("starting %s: %w", track.Path, err)
	}
	p.session = s
	log.Printf("[PLAYER] Now decoding: %s", track.Path)
	p.updateMediaLocked()
	return nil
}

func (p *Player) teardownLocked() {
	if p.session != nil {
		p.session.stop()
		p.session = nil
	}
	p.position.Store(0)
}

func (p *Player) startSession(track library.Track) (*session, error) {
	dec, err := codec.Open(track.Path)
	if err != nil {
		return nil, err
	}

	rate := p.device.SampleRate()
	ringBlocks := p.bufferMs * rate / (1000 * blockFrames)
	if ringBlocks < 2 {
		ringBlocks = 2
	}

	s := newSession(dec, rate, ringBlocks, &p.paused, &p.volume)
	srcRate := dec.Format().SampleRate
	s.bridge.SetOnFragment(func(f *codec.Fragment) {
		p.position.Store(int64(f.Timestamp))
		if p.events == nil {
			return
		}
		ev := ProgressEvent{
			Timestamp:  f.Timestamp,
			Buffer:     f.Samples,
			Channels:   f.Channels,
			SampleRate: srcRate,
		}
		// Progress is advisory; drop it if the consumer is behind.
		select {
		case p.events <- ev:
		case <-s.quit:
		default:
		}
	})
	s.bridge.SetOnFinished(func() {
		log.Printf("[PLAYER] Track finished: %s", track.Path)
		if p.events == nil {
			return
		}
		select {
		case p.events <- FinishedEvent{}:
		case <-s.quit:
		}
	})

	if err := s.start(p.device); err != nil {
		dec.Close()
		return nil, err
	}
	return s, nil
}

// Play begins playback. With no track selected it selects the first queue
// entry; an empty queue is a no-op. A selection without a live pipeline
// (a freshly restored queue) is opened here. Always clears the paused flag.
func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i, ok := p.queue.Index(); !ok {
		if p.queue.Len() == 0 {
			return nil
		}
		if err := p.setQueueIndexLocked(0); err != nil {
			return err
		}
	} else if p.session == nil {
		if err := p.setQueueIndexLocked(i); err != nil {
			return err
		}
	}
	p.paused.Store(false)
	p.updateMediaLocked()
	return nil
}

// Pause suspends output without touching the decode pipeline; the device
// keeps pulling and receives silence. Idempotent.
func (p *Player) Pause() {
	p.setPaused(true)
}

// Resume clears the paused flag. Unlike Play it never selects a track.
func (p *Player) Resume() {
	p.setPaused(false)
}

// PlayPause toggles the paused flag.
func (p *Player) PlayPause() {
	p.setPaused(!p.paused.Load())
}

func (p *Player) setPaused(paused bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused.Swap(paused) != paused {
		log.Printf("[PLAYER] Paused: %v", paused)
	}
	p.updateMediaLocked()
}

// Stop tears down playback and clears the selection. The queue itself is
// untouched.
func (p *Player) Stop() error {
	return p.SetQueueIndex(queue.NoIndex)
}

// Next moves to the next track under the current loop mode, stopping
// cleanly when the queue runs out.
func (p *Player) Next() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if next, ok := p.queue.Next(); ok {
		return p.setQueueIndexLocked(next)
	}
	return p.setQueueIndexLocked(queue.NoIndex)
}

// Previous is Next, backwards.
func (p *Player) Previous() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if prev, ok := p.queue.Previous(); ok {
		return p.setQueueIndexLocked(prev)
	}
	return p.setQueueIndexLocked(queue.NoIndex)
}

// Seek repositions the current track to the absolute target. Negative
// targets clamp to the start. With nothing loaded it is a no-op. A target
// past the end of the track returns codec.ErrSeekOutOfRange and playback
// continues unaffected.
func (p *Player) Seek(target time.Duration) error {
	if target < 0 {
		target = 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return nil
	}
	if err := p.session.seek(target); err != nil {
		return err
	}
	p.position.Store(int64(target))
	log.Printf("[PLAYER] Seeked to %v", target)
	p.updateMediaLocked()
	return nil
}

// Position is the decode position of the current track. It runs slightly
// ahead of the audible position by however much the ring holds.
func (p *Player) Position() time.Duration {
	return time.Duration(p.position.Load())
}

// State returns the current playback state.
func (p *Player) State() PlaybackState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stateLocked()
}

func (p *Player) stateLocked() PlaybackState {
	switch {
	case p.session == nil:
		return StateStopped
	case p.paused.Load():
		return StatePaused
	default:
		return StatePlaying
	}
}

// SetVolume sets the playback volume, clamped to 0.0 - 1.0. It is applied
// on the device pull path, so it takes effect within one buffer.
func (p *Player) SetVolume(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	p.volume.Store(math.Float64bits(v))
}

// Volume returns the current volume.
func (p *Player) Volume() float64 {
	return math.Float64frombits(p.volume.Load())
}

// Status returns a snapshot of the current playback status.
func (p *Player) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()

	st := Status{
		State:      p.stateLocked(),
		QueueIndex: queue.NoIndex,
		QueueLen:   p.queue.Len(),
		Position:   p.Position().Milliseconds(),
		Volume:     p.Volume(),
		Loop:       p.queue.Loop().String(),
		Shuffle:    p.queue.Shuffle(),
	}
	if i, ok := p.queue.Index(); ok {
		st.QueueIndex = i
	}
	if tr, ok := p.queue.CurrentTrack(); ok {
		t := tr
		st.Track = &t
		if p.session != nil {
			st.Duration = p.session.dec.Duration().Milliseconds()
		} else {
			st.Duration = tr.Duration().Milliseconds()
		}
	}
	return st
}

// Close stops playback and releases the pipeline. The device context itself
// is process-wide and stays up.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.teardownLocked()
	p.queue.SetIndex(queue.NoIndex)
	return nil
}

func (p *Player) updateMediaLocked() {
	if p.mediaSession == nil {
		return
	}
	if tr, ok := p.queue.CurrentTrack(); ok {
		p.mediaSession.UpdateMetadata(media.Metadata{
			Title:    tr.DisplayTitle(),
			Artist:   tr.DisplayArtist(),
			Album:    tr.Album,
			Duration: tr.Duration(),
			ArtPath:  FindAlbumArt(tr.Path),
		})
	} else {
		p.mediaSession.UpdateMetadata(media.Metadata{})
	}
	p.mediaSession.UpdatePlaybackState(stateToMediaState(p.stateLocked()), p.Position())
	p.mediaSession.UpdateLoopStatus(loopToMediaStatus(p.queue.Loop()))
	p.mediaSession.UpdateShuffle(p.queue.Shuffle())
}

func stateToMediaState(state PlaybackState) media.PlaybackState {
	switch state {
	case StatePlaying:
		return media.StatePlaying
	case StatePaused:
		return media.StatePaused
	default:
		return media.StateStopped
	}
}

func loopToMediaStatus(m queue.LoopMode) media.LoopStatus {
	switch m {
	case queue.LoopTrack:
		return media.LoopTrack
	case queue.LoopQueue:
		return media.LoopPlaylist
	default:
		return media.LoopNone
	}
}

func mediaStatusToLoop(s media.LoopStatus) queue.LoopMode {
	switch s {
	case media.LoopTrack:
		return queue.LoopTrack
	case media.LoopPlaylist:
		return queue.LoopQueue
	default:
		return queue.LoopNone
	}
}

// OnCommand implements media.CommandHandler so OS media controls drive the
// player directly.
func (p *Player) OnCommand(cmd media.Command, data interface{}) error {
	if cmd != media.CmdSeek {
		log.Printf("[PLAYER] OS media command: %s", cmd)
	}

	switch cmd {
	case media.CmdPlay:
		return p.Play()
	case media.CmdPause:
		p.Pause()
	case media.CmdPlayPause:
		p.PlayPause()
	case media.CmdStop:
		return p.Stop()
	case media.CmdNext:
		return p.Next()
	case media.CmdPrevious:
		return p.Previous()
	case media.CmdSeek:
		// MPRIS Seek is an offset from the current position.
		if offset, ok := data.(time.Duration); ok {
			return p.Seek(p.Position() + offset)
		}
	case media.CmdSetPosition:
		if pos, ok := data.(time.Duration); ok {
			return p.Seek(pos)
		}
	case media.CmdSetShuffle:
		if enabled, ok := data.(bool); ok {
			p.SetShuffle(enabled)
		}
	case media.CmdSetLoopStatus:
		if status, ok := data.(media.LoopStatus); ok {
			p.SetLoopMode(mediaStatusToLoop(status))
		}
	case media.CmdSetVolume:
		if v, ok := data.(float64); ok {
			p.SetVolume(v)
		}
	}
	return nil
}

// FindAlbumArt looks for album art next to the track, checking the track's
// directory and then its parent for common art filenames.
func FindAlbumArt(trackPath string) string {
	if trackPath == "" {
		return ""
	}

	dir := filepath.Dir(trackPath)

	artFilenames := []string{
		"folder.jpg", "folder.png",
		"cover.jpg", "cover.png",
		"album.jpg", "album.png",
		"front.jpg", "front.png",
		"Folder.jpg", "Folder.png",
		"Cover.jpg", "Cover.png",
	}

	for _, name := range artFilenames {
		artPath := filepath.Join(dir, name)
		if _, err := os.Stat(artPath); err == nil {
			return artPath
		}
	}

	// Artist folder, one level up.
	parentDir := filepath.Dir(dir)
	for _, name := range []string{"folder.jpg", "folder.png", "Folder.jpg", "Folder.png"} {
		artPath := filepath.Join(parentDir, name)
		if _, err := os.Stat(artPath); err == nil {
			return artPath
		}
	}

	return ""
}
