// Package wsserver implements the WebSocket variant of the stream
// server: protocol state machine, frame (de)serialization, and the
// per-connection handler.
package wsserver

import "github.com/voicebridge/gateway/internal/session"

// ConfigFrame is the first JSON text frame a client must send within
// the config timeout, establishing the session's language and audio
// parameters — mirrors the original gateway's initial config message.
type ConfigFrame struct {
	Type         string `json:"type"` // "config"
	LanguageCode string `json:"language_code"`
	SampleRateHz int    `json:"sample_rate_hz"`
}

// ControlFrame carries session-lifecycle actions that aren't raw audio:
// ending a turn early, switching language mid-session, or a
// client-initiated ping.
type ControlFrame struct {
	Type         string `json:"type"` // "end_turn", "change_language", "ping", "clear_history", "get_state", "text_input"
	LanguageCode string `json:"language_code,omitempty"`
	Text         string `json:"text,omitempty"`
}

// Server -> client frame types.
const (
	ServerFrameSessionCreated = "session_created"
	ServerFrameStatus         = "status"
	ServerFrameASRPartial     = "asr_partial"
	ServerFrameASRFinal       = "asr_final"
	ServerFrameLLMToken       = "llm_token"
	ServerFrameTurnComplete   = "turn_complete"
	ServerFrameHistoryCleared = "history_cleared"
	ServerFrameState          = "state"
	ServerFrameError          = "error"
	ServerFramePong           = "pong"
)

// ServerFrame is the JSON text frame shape sent back to the client for
// every event except raw synthesized audio, which is sent as a binary
// frame on the same connection.
type ServerFrame struct {
	Type         string `json:"type"`
	SessionID    string `json:"session_id,omitempty"`
	Language     string `json:"language,omitempty"`
	State        string `json:"state,omitempty"`
	Stage        string `json:"stage,omitempty"`
	Text         string `json:"text,omitempty"`
	ErrorKind    string `json:"error_kind,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	ASRMs        int64  `json:"asr_ms,omitempty"`
	LLMMs        int64  `json:"llm_ms,omitempty"`
	TTSMs        int64  `json:"tts_ms,omitempty"`
	TotalMs      int64  `json:"total_ms,omitempty"`
}

// StateSnapshotFrame is the reply to a get_state control frame: a
// serialized view of the session's current lifecycle state and
// conversation history.
type StateSnapshotFrame struct {
	Type      string         `json:"type"`
	SessionID string         `json:"session_id"`
	Language  string         `json:"language"`
	State     string         `json:"state"`
	History   []session.Turn `json:"history"`
}

// Close codes for abnormal session termination, matching the original
// gateway's 4000 (config timeout) / 4001 (internal error) convention.
const (
	CloseCodeConfigTimeout = 4000
	CloseCodeInternalError = 4001
)
