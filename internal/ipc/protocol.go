// Package ipc implements the daemon's control protocol: newline-delimited
// JSON requests over a local unix socket, plus server-initiated push
// messages for subscribed streams.
package ipc

import (
	"encoding/json"
	"fmt"

	"github.com/deifactor/deimos/internal/config"
	"github.com/deifactor/deimos/internal/library"
)

// CommandType represents the type of command
type CommandType string

const (
	CmdPair      CommandType = "pair"
	CmdPlay      CommandType = "play"
	CmdPause     CommandType = "pause"
	CmdResume    CommandType = "resume"
	CmdPlayPause CommandType = "playPause"
	CmdStop      CommandType = "stop"
	CmdNext      CommandType = "next"
	CmdPrevious  CommandType = "previous"
	CmdSeek      CommandType = "seek"
	CmdVolume    CommandType = "volume"
	CmdStatus    CommandType = "status"

	// Queue management commands
	CmdSetQueue   CommandType = "setQueue"
	CmdEnqueue    CommandType = "enqueue"
	CmdQueueJump  CommandType = "queueJump"
	CmdGetQueue   CommandType = "getQueue"
	CmdSetLoop    CommandType = "setLoop"
	CmdSetShuffle CommandType = "setShuffle"

	// Library and configuration
	CmdGetLibrary    CommandType = "getLibrary"
	CmdRescanLibrary CommandType = "rescanLibrary"
	CmdGetConfig     CommandType = "getConfig"
	CmdSetConfig     CommandType = "setConfig"

	// Audio visualization
	CmdGetAudioData         CommandType = "getAudioData"
	CmdSubscribeAudioData   CommandType = "subscribeAudioData"
	CmdUnsubscribeAudioData CommandType = "unsubscribeAudioData"
)

// PushAudioData is the type of push messages carrying spectrum bands.
const PushAudioData = "audioData"

// Request represents a client request
type Request struct {
	Cmd   CommandType     `json:"cmd"`
	Token string          `json:"token,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Response represents a server response
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// PushMessage represents a server-initiated message (no request needed)
type PushMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// PairRequest is the data for a pair command
type PairRequest struct {
	ClientName string `json:"clientName"`
}

// PairResponse is the response to a pair command
type PairResponse struct {
	Token            string `json:"token"`
	ClientID         string `json:"clientId"`
	RequiresApproval bool   `json:"requiresApproval"`
}

// SeekRequest is the data for a seek command. Exactly one of Position
// (absolute) or Offset (relative to the current position, may be
// negative) must be set.
type SeekRequest struct {
	PositionMs *int64 `json:"positionMs,omitempty"`
	OffsetMs   *int64 `json:"offsetMs,omitempty"`
}

// VolumeRequest is the data for a volume command
type VolumeRequest struct {
	Level float64 `json:"level"` // 0.0 - 1.0
}

// SetQueueRequest replaces the play queue. Paths present in the library
// carry their library metadata; unknown paths are queued bare.
type SetQueueRequest struct {
	Paths []string `json:"paths"`
}

// EnqueueRequest appends tracks to the play queue.
type EnqueueRequest struct {
	Paths []string `json:"paths"`
}

// QueueJumpRequest is the data for a queueJump command
type QueueJumpRequest struct {
	Index int `json:"index"`
}

// SetLoopRequest is the data for a setLoop command
type SetLoopRequest struct {
	Mode string `json:"mode"` // "none", "track", "queue"
}

// SetShuffleRequest is the data for a setShuffle command
type SetShuffleRequest struct {
	Enabled bool `json:"enabled"`
}

// GetQueueResponse is the response to a getQueue command
type GetQueueResponse struct {
	Tracks  []library.Track `json:"tracks"`
	Index   int             `json:"index"` // -1 when no track is selected
	Loop    string          `json:"loop"`
	Shuffle bool            `json:"shuffle"`
}

// LibraryResponse is the response to a getLibrary command
type LibraryResponse struct {
	Tracks []library.Track `json:"tracks"`
}

// RescanResponse is the response to a rescanLibrary command
type RescanResponse struct {
	Tracks    int   `json:"tracks"`
	Skipped   int   `json:"skipped"`
	ElapsedMs int64 `json:"elapsedMs"`
}

// ConfigResponse is the response to a getConfig command
type ConfigResponse struct {
	ConfigPath string        `json:"configPath"`
	Config     config.Config `json:"config"`
}

// SetConfigRequest patches the configuration; only non-nil fields are
// applied. The socket and data paths are fixed for the life of the
// process and cannot be patched.
type SetConfigRequest struct {
	MusicDir      *string  `json:"musicDir,omitempty"`
	SampleRate    *int     `json:"sampleRate,omitempty"`
	BufferSizeMs  *int     `json:"bufferSizeMs,omitempty"`
	DefaultVolume *float64 `json:"defaultVolume,omitempty"`
	RememberQueue *bool    `json:"rememberQueue,omitempty"`
	ResumeOnStart *bool    `json:"resumeOnStart,omitempty"`
}

// AudioDataResponse contains real-time frequency data for visualization
type AudioDataResponse struct {
	// Bands contains frequency band magnitudes (0-255).
	// Note: Using []int instead of []uint8 because Go's json package
	// base64-encodes []byte/[]uint8
	Bands []int `json:"bands"`
	// Position is the playback position in milliseconds when these
	// samples were analyzed, so a UI can sync drawing with audio
	Position int64 `json:"position"`
	// Timestamp is when the data was captured (Unix ms)
	Timestamp int64 `json:"timestamp"`
}

// EncodeRequest encodes a request to JSON
func EncodeRequest(req *Request) ([]byte, error) {
	return json.Marshal(req)
}

// DecodeRequest decodes a request from JSON
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}
	return &req, nil
}

// EncodeResponse encodes a response to JSON
func EncodeResponse(resp *Response) ([]byte, error) {
	return json.Marshal(resp)
}

// DecodeResponse decodes a response from JSON
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &resp, nil
}

// NewSuccessResponse creates a successful response
func NewSuccessResponse(data interface{}) (*Response, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, err
		}
	}
	return &Response{
		Success: true,
		Data:    rawData,
	}, nil
}

// NewErrorResponse creates an error response
func NewErrorResponse(err string) *Response {
	return &Response{
		Success: false,
		Error:   err,
	}
}

// NewPushMessage creates a push message for streaming data
func NewPushMessage(msgType string, data interface{}) ([]byte, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, err
		}
	}
	msg := PushMessage{
		Type: msgType,
		Data: rawData,
	}
	return json.Marshal(msg)
}
