package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"github.com/deifactor/deimos/internal/audio"
	"github.com/deifactor/deimos/internal/auth"
	"github.com/deifactor/deimos/internal/config"
	"github.com/deifactor/deimos/internal/library"
	"github.com/deifactor/deimos/internal/queue"
	"github.com/deifactor/deimos/internal/scanner"
	"github.com/deifactor/deimos/internal/spectrum"
)

// previousRestartThreshold is how far into a track "previous" restarts it
// instead of moving back through the queue.
const previousRestartThreshold = 5 * time.Second

// Server handles IPC communication with clients
type Server struct {
	socketPath string
	auth       *auth.Manager
	configMgr  *config.Manager
	player     *audio.Player
	vis        *spectrum.Visualizer

	// The library is shared with rescans, which rewrite it in place.
	libMu       sync.Mutex
	lib         *library.Library
	libraryPath string
	scan        *scanner.Scanner

	listener net.Listener
	mu       sync.Mutex
	clients  map[net.Conn]struct{}

	// Clients subscribed to spectrum pushes.
	audioSubsMu sync.RWMutex
	audioSubs   map[*connWriter]bool
}

// connWriter serializes writes to one connection so push messages never
// interleave with command responses.
type connWriter struct {
	mu   sync.Mutex
	conn net.Conn
}

func (w *connWriter) writeLine(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := w.conn.Write(append(data, '\n'))
	return err
}

// NewServer creates an IPC server. The visualizer's per-window callback is
// claimed here so spectrum bands stream to subscribed clients.
func NewServer(
	socketPath string,
	authManager *auth.Manager,
	configMgr *config.Manager,
	player *audio.Player,
	lib *library.Library,
	libraryPath string,
	vis *spectrum.Visualizer,
) *Server {
	s := &Server{
		socketPath:  socketPath,
		auth:        authManager,
		configMgr:   configMgr,
		player:      player,
		vis:         vis,
		lib:         lib,
		libraryPath: libraryPath,
		scan:        scanner.New(),
		clients:     make(map[net.Conn]struct{}),
		audioSubs:   make(map[*connWriter]bool),
	}

	if vis != nil {
		vis.SetCallback(s.pushAudioData)
	}

	return s
}

// Start listens on the unix socket and serves clients until ctx is
// cancelled, then tears everything down including the socket file.
func (s *Server) Start(ctx context.Context) error {
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	log.Printf("[IPC] Creating socket at %s", s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}
	s.listener = listener

	// Restrict the socket to the owning user.
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	log.Printf("[IPC] Server listening, waiting for connections...")

	go s.acceptLoop(ctx)

	<-ctx.Done()

	log.Printf("[IPC] Shutting down server...")

	s.mu.Lock()
	clientCount := len(s.clients)
	for conn := range s.clients {
		conn.Close()
	}
	s.mu.Unlock()

	log.Printf("[IPC] Closed %d client connections", clientCount)

	listener.Close()
	os.RemoveAll(s.socketPath)

	log.Printf("[IPC] Server stopped")

	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				log.Printf("[IPC] Accept error: %v", err)
				continue
			}
		}

		s.mu.Lock()
		s.clients[conn] = struct{}{}
		clientCount := len(s.clients)
		s.mu.Unlock()

		log.Printf("[IPC] Client connected (active: %d)", clientCount)

		go s.handleConnection(ctx, conn)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	w := &connWriter{conn: conn}

	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.clients, conn)
		clientCount := len(s.clients)
		s.mu.Unlock()
		s.audioSubsMu.Lock()
		delete(s.audioSubs, w)
		s.audioSubsMu.Unlock()
		log.Printf("[IPC] Client disconnected (active: %d)", clientCount)
	}()

	reader := bufio.NewReader(conn)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Newline-delimited JSON.
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err != io.EOF {
				log.Printf("[IPC] Read error: %v", err)
			}
			return
		}

		req, err := DecodeRequest(line)
		if err != nil {
			log.Printf("[IPC] Invalid request: %v", err)
			s.sendResponse(w, NewErrorResponse("invalid request format"))
			continue
		}

		// Status and spectrum polls arrive too often to log.
		isPollingCmd := req.Cmd == CmdStatus || req.Cmd == CmdGetAudioData

		if !isPollingCmd {
			log.Printf("[IPC] Command: %s", req.Cmd)
		}

		resp := s.handleRequest(ctx, w, req)

		if !isPollingCmd {
			if resp.Success {
				log.Printf("[IPC] Response: success")
			} else {
				log.Printf("[IPC] Response: error=%q", resp.Error)
			}
		}

		if err := s.sendResponse(w, resp); err != nil {
			log.Printf("[IPC] Send error: %v", err)
			return
		}
	}
}

func (s *Server) handleRequest(ctx context.Context, w *connWriter, req *Request) *Response {
	if s.auth.IsLockedOut() {
		return NewErrorResponse("too many failed attempts, try again later")
	}

	// Pairing is the one command that works without a token.
	if req.Cmd == CmdPair {
		return s.handlePair(req)
	}

	if !s.auth.ValidateToken(req.Token) {
		s.auth.RecordFailure()
		return NewErrorResponse("unauthorized")
	}

	switch req.Cmd {
	case CmdPlay:
		return s.handlePlay()
	case CmdPause:
		s.player.Pause()
		return s.handleStatus()
	case CmdResume:
		s.player.Resume()
		return s.handleStatus()
	case CmdPlayPause:
		s.player.PlayPause()
		return s.handleStatus()
	case CmdStop:
		return s.handleStop()
	case CmdNext:
		return s.handleNext()
	case CmdPrevious:
		return s.handlePrevious()
	case CmdSeek:
		return s.handleSeek(req)
	case CmdVolume:
		return s.handleVolume(req)
	case CmdStatus:
		return s.handleStatus()
	case CmdSetQueue:
		return s.handleSetQueue(req)
	case CmdEnqueue:
		return s.handleEnqueue(req)
	case CmdQueueJump:
		return s.handleQueueJump(req)
	case CmdGetQueue:
		return s.handleGetQueue()
	case CmdSetLoop:
		return s.handleSetLoop(req)
	case CmdSetShuffle:
		return s.handleSetShuffle(req)
	case CmdGetLibrary:
		return s.handleGetLibrary()
	case CmdRescanLibrary:
		return s.handleRescanLibrary(ctx)
	case CmdGetConfig:
		return s.handleGetConfig()
	case CmdSetConfig:
		return s.handleSetConfig(req)
	case CmdGetAudioData:
		return s.handleGetAudioData()
	case CmdSubscribeAudioData:
		return s.handleSubscribeAudioData(w)
	case CmdUnsubscribeAudioData:
		return s.handleUnsubscribeAudioData(w)
	default:
		return NewErrorResponse("unknown command")
	}
}

func (s *Server) handlePair(req *Request) *Response {
	var pairReq PairRequest
	if req.Data != nil {
		if err := json.Unmarshal(req.Data, &pairReq); err != nil {
			return NewErrorResponse("invalid pair request")
		}
	}
	if pairReq.ClientName == "" {
		pairReq.ClientName = "unknown"
	}

	log.Printf("[AUTH] Pairing request from client: %q", pairReq.ClientName)

	token, clientID, requiresApproval, err := s.auth.Pair(pairReq.ClientName)
	if err != nil {
		log.Printf("[AUTH] Pairing failed: %v", err)
		return NewErrorResponse(err.Error())
	}

	resp, err := NewSuccessResponse(PairResponse{
		Token:            token,
		ClientID:         clientID,
		RequiresApproval: requiresApproval,
	})
	if err != nil {
		return NewErrorResponse("internal error")
	}

	return resp
}

func (s *Server) handlePlay() *Response {
	if err := s.player.Play(); err != nil {
		log.Printf("[PLAYER] Play failed: %v", err)
		return NewErrorResponse(err.Error())
	}
	return s.handleStatus()
}

func (s *Server) handleStop() *Response {
	if err := s.player.Stop(); err != nil {
		log.Printf("[PLAYER] Stop failed: %v", err)
		return NewErrorResponse(err.Error())
	}
	return s.handleStatus()
}

func (s *Server) handleNext() *Response {
	if err := s.player.Next(); err != nil {
		log.Printf("[PLAYER] Next failed: %v", err)
		return NewErrorResponse(err.Error())
	}
	return s.handleStatus()
}

// handlePrevious restarts the current track when it is more than a few
// seconds in, and only steps back through the queue near the start.
func (s *Server) handlePrevious() *Response {
	if s.player.Position() > previousRestartThreshold {
		if err := s.player.Seek(0); err != nil {
			log.Printf("[PLAYER] Restart failed: %v", err)
			return NewErrorResponse(err.Error())
		}
		return s.handleStatus()
	}

	if err := s.player.Previous(); err != nil {
		log.Printf("[PLAYER] Previous failed: %v", err)
		return NewErrorResponse(err.Error())
	}
	return s.handleStatus()
}

func (s *Server) handleSeek(req *Request) *Response {
	var seekReq SeekRequest
	if err := json.Unmarshal(req.Data, &seekReq); err != nil {
		return NewErrorResponse("invalid seek request")
	}
	if (seekReq.PositionMs == nil) == (seekReq.OffsetMs == nil) {
		return NewErrorResponse("seek needs exactly one of positionMs or offsetMs")
	}

	var target time.Duration
	if seekReq.PositionMs != nil {
		target = time.Duration(*seekReq.PositionMs) * time.Millisecond
	} else {
		target = s.player.Position() + time.Duration(*seekReq.OffsetMs)*time.Millisecond
	}

	if err := s.player.Seek(target); err != nil {
		log.Printf("[PLAYER] Seek failed: %v", err)
		return NewErrorResponse(err.Error())
	}

	return s.handleStatus()
}

func (s *Server) handleVolume(req *Request) *Response {
	var volReq VolumeRequest
	if err := json.Unmarshal(req.Data, &volReq); err != nil {
		return NewErrorResponse("invalid volume request")
	}

	s.player.SetVolume(volReq.Level)
	return s.handleStatus()
}

func (s *Server) handleStatus() *Response {
	resp, err := NewSuccessResponse(s.player.Status())
	if err != nil {
		return NewErrorResponse("internal error")
	}
	return resp
}

func (s *Server) handleSetQueue(req *Request) *Response {
	var setReq SetQueueRequest
	if err := json.Unmarshal(req.Data, &setReq); err != nil {
		return NewErrorResponse("invalid setQueue request")
	}

	tracks := s.resolveTracks(setReq.Paths)
	s.player.SetQueue(tracks)
	log.Printf("[QUEUE] Queue replaced with %d tracks", len(tracks))

	return s.handleStatus()
}

func (s *Server) handleEnqueue(req *Request) *Response {
	var enqReq EnqueueRequest
	if err := json.Unmarshal(req.Data, &enqReq); err != nil {
		return NewErrorResponse("invalid enqueue request")
	}

	for _, track := range s.resolveTracks(enqReq.Paths) {
		s.player.QueuePush(track)
	}
	log.Printf("[QUEUE] Enqueued %d tracks", len(enqReq.Paths))

	return s.handleStatus()
}

func (s *Server) handleQueueJump(req *Request) *Response {
	var jumpReq QueueJumpRequest
	if err := json.Unmarshal(req.Data, &jumpReq); err != nil {
		return NewErrorResponse("invalid queueJump request")
	}

	if jumpReq.Index < 0 || jumpReq.Index >= len(s.player.QueueTracks()) {
		return NewErrorResponse("queue index out of range")
	}

	if err := s.player.SetQueueIndex(jumpReq.Index); err != nil {
		log.Printf("[PLAYER] Jump to %d failed: %v", jumpReq.Index, err)
		return NewErrorResponse(err.Error())
	}

	return s.handleStatus()
}

func (s *Server) handleGetQueue() *Response {
	index := queue.NoIndex
	if i, ok := s.player.QueueIndex(); ok {
		index = i
	}

	resp, err := NewSuccessResponse(GetQueueResponse{
		Tracks:  s.player.QueueTracks(),
		Index:   index,
		Loop:    s.player.LoopMode().String(),
		Shuffle: s.player.ShuffleEnabled(),
	})
	if err != nil {
		return NewErrorResponse("internal error")
	}
	return resp
}

func (s *Server) handleSetLoop(req *Request) *Response {
	var loopReq SetLoopRequest
	if err := json.Unmarshal(req.Data, &loopReq); err != nil {
		return NewErrorResponse("invalid setLoop request")
	}

	switch loopReq.Mode {
	case "none", "track", "queue":
	default:
		return NewErrorResponse("loop mode must be none, track, or queue")
	}

	s.player.SetLoopMode(queue.ParseLoopMode(loopReq.Mode))
	return s.handleStatus()
}

func (s *Server) handleSetShuffle(req *Request) *Response {
	var shuffleReq SetShuffleRequest
	if err := json.Unmarshal(req.Data, &shuffleReq); err != nil {
		return NewErrorResponse("invalid setShuffle request")
	}

	s.player.SetShuffle(shuffleReq.Enabled)
	return s.handleStatus()
}

func (s *Server) handleGetLibrary() *Response {
	s.libMu.Lock()
	tracks := make([]library.Track, len(s.lib.Tracks))
	copy(tracks, s.lib.Tracks)
	s.libMu.Unlock()

	resp, err := NewSuccessResponse(LibraryResponse{Tracks: tracks})
	if err != nil {
		return NewErrorResponse("internal error")
	}
	return resp
}

func (s *Server) handleRescanLibrary(ctx context.Context) *Response {
	cfg := s.configMgr.Get()
	if cfg.MusicDir == "" {
		return NewErrorResponse("no music directory configured")
	}

	result, err := s.scan.Scan(ctx, cfg.MusicDir)
	if err != nil {
		log.Printf("[SCANNER] Rescan failed: %v", err)
		return NewErrorResponse(err.Error())
	}

	s.libMu.Lock()
	s.lib.Replace(result.Tracks)
	saveErr := s.lib.Save(s.libraryPath)
	s.libMu.Unlock()
	if saveErr != nil {
		log.Printf("[LIBRARY] Failed to save library: %v", saveErr)
		return NewErrorResponse(saveErr.Error())
	}

	resp, err := NewSuccessResponse(RescanResponse{
		Tracks:    len(result.Tracks),
		Skipped:   result.Skipped,
		ElapsedMs: result.Elapsed.Milliseconds(),
	})
	if err != nil {
		return NewErrorResponse("internal error")
	}
	return resp
}

func (s *Server) handleGetConfig() *Response {
	resp, err := NewSuccessResponse(ConfigResponse{
		ConfigPath: s.configMgr.ConfigPath(),
		Config:     s.configMgr.Get(),
	})
	if err != nil {
		return NewErrorResponse("internal error")
	}
	return resp
}

func (s *Server) handleSetConfig(req *Request) *Response {
	var cfgReq SetConfigRequest
	if err := json.Unmarshal(req.Data, &cfgReq); err != nil {
		return NewErrorResponse("invalid config request")
	}

	cfg := s.configMgr.Get()

	if cfgReq.MusicDir != nil {
		cfg.MusicDir = *cfgReq.MusicDir
	}
	if cfgReq.SampleRate != nil {
		cfg.Audio.SampleRate = *cfgReq.SampleRate
	}
	if cfgReq.BufferSizeMs != nil {
		cfg.Audio.BufferSizeMs = *cfgReq.BufferSizeMs
	}
	if cfgReq.DefaultVolume != nil {
		cfg.Audio.DefaultVolume = *cfgReq.DefaultVolume
	}
	if cfgReq.RememberQueue != nil {
		cfg.Behavior.RememberQueue = *cfgReq.RememberQueue
	}
	if cfgReq.ResumeOnStart != nil {
		cfg.Behavior.ResumeOnStart = *cfgReq.ResumeOnStart
	}

	if err := s.configMgr.Update(cfg); err != nil {
		log.Printf("[CONFIG] Failed to save config: %v", err)
		return NewErrorResponse(fmt.Sprintf("failed to save config: %v", err))
	}

	log.Printf("[CONFIG] Config updated and saved")
	return s.handleGetConfig()
}

func (s *Server) handleGetAudioData() *Response {
	var bands []uint8
	if s.vis != nil {
		bands = s.vis.Bands()
	}

	resp, err := NewSuccessResponse(AudioDataResponse{
		Bands:     bandsToInts(bands),
		Position:  s.player.Position().Milliseconds(),
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return NewErrorResponse("internal error")
	}
	return resp
}

func (s *Server) handleSubscribeAudioData(w *connWriter) *Response {
	s.audioSubsMu.Lock()
	s.audioSubs[w] = true
	count := len(s.audioSubs)
	s.audioSubsMu.Unlock()

	log.Printf("[AUDIO] Client subscribed to audio data (total: %d)", count)

	resp, _ := NewSuccessResponse(map[string]bool{"subscribed": true})
	return resp
}

func (s *Server) handleUnsubscribeAudioData(w *connWriter) *Response {
	s.audioSubsMu.Lock()
	delete(s.audioSubs, w)
	count := len(s.audioSubs)
	s.audioSubsMu.Unlock()

	log.Printf("[AUDIO] Client unsubscribed from audio data (remaining: %d)", count)

	resp, _ := NewSuccessResponse(map[string]bool{"subscribed": false})
	return resp
}

// pushAudioData runs on the visualizer's callback for every analysis
// window and fans the bands out to subscribers.
func (s *Server) pushAudioData(bands []uint8) {
	s.audioSubsMu.RLock()
	if len(s.audioSubs) == 0 {
		s.audioSubsMu.RUnlock()
		return
	}
	subs := make([]*connWriter, 0, len(s.audioSubs))
	for w := range s.audioSubs {
		subs = append(subs, w)
	}
	s.audioSubsMu.RUnlock()

	msg, err := NewPushMessage(PushAudioData, AudioDataResponse{
		Bands:     bandsToInts(bands),
		Position:  s.player.Position().Milliseconds(),
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return
	}

	for _, w := range subs {
		if err := w.writeLine(msg); err != nil {
			s.audioSubsMu.Lock()
			delete(s.audioSubs, w)
			s.audioSubsMu.Unlock()
		}
	}
}

// resolveTracks maps request paths onto library tracks, falling back to a
// bare record for paths the library does not know.
func (s *Server) resolveTracks(paths []string) []library.Track {
	s.libMu.Lock()
	byPath := make(map[string]library.Track, s.lib.Len())
	for _, t := range s.lib.Tracks {
		byPath[t.Path] = t
	}
	s.libMu.Unlock()

	tracks := make([]library.Track, 0, len(paths))
	for _, p := range paths {
		if t, ok := byPath[p]; ok {
			tracks = append(tracks, t)
		} else {
			tracks = append(tracks, library.Track{Path: p})
		}
	}
	return tracks
}

func (s *Server) sendResponse(w *connWriter, resp *Response) error {
	data, err := EncodeResponse(resp)
	if err != nil {
		return err
	}
	return w.writeLine(data)
}

func bandsToInts(bands []uint8) []int {
	out := make([]int, len(bands))
	for i, b := range bands {
		out[i] = int(b)
	}
	return out
}
