// Package session implements the two-tier session store: an
// authoritative in-process map plus a TTL-replicated Redis cache, and
// the session state machine.
package session

import (
	"fmt"
	"time"

	"golang.org/x/text/language"
)

// State is one of the six lifecycle states a session can occupy.
type State string

const (
	StateInitialized State = "INITIALIZED"
	StateListening    State = "LISTENING"
	StateProcessing   State = "PROCESSING"
	StateSpeaking      State = "SPEAKING"
	StateIdle          State = "IDLE"
	StateClosed        State = "CLOSED"
)

// validTransitions enumerates the legal edges of the state machine.
// Any state may transition to CLOSED; everything else is listed
// explicitly so an illegal transition is a caught bug, not a silent
// state corruption.
var validTransitions = map[State]map[State]bool{
	StateInitialized: {StateListening: true},
	StateListening:    {StateProcessing: true, StateIdle: true}, // mid-ASR provider failure
	StateProcessing:   {StateSpeaking: true, StateListening: true, StateIdle: true}, // no-speech / filtered result / mid-LLM-TTS provider failure
	StateSpeaking:      {StateIdle: true},
	StateIdle:          {StateListening: true},
	StateClosed:        {},
}

// CanTransition reports whether moving from 'from' to 'to' is legal.
func CanTransition(from, to State) bool {
	if to == StateClosed {
		return from != StateClosed
	}
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	return allowed[to]
}

// Turn is one exchange in a session's conversation history, stored in
// the OpenAI {role, content} shape so it can be fed straight into an
// LLM request.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Session is the durable-enough-to-cache record of one active call.
type Session struct {
	ID           string  `json:"id"`
	Language     string  `json:"language"`
	State        State   `json:"state"`
	History      []Turn  `json:"history"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// MaxHistoryTurns bounds how many turns (user+assistant pairs) a
// session keeps; older turns are dropped first.
const MaxHistoryTurns = 10

// AppendTurn adds a turn to history, truncating from the front once
// the cap is exceeded.
func (s *Session) AppendTurn(t Turn) {
	s.History = append(s.History, t)
	max := MaxHistoryTurns * 2 // user + assistant per turn
	if len(s.History) > max {
		s.History = s.History[len(s.History)-max:]
	}
	s.LastActivity = time.Now()
}

// Transition validates and applies a state change.
func (s *Session) Transition(to State) error {
	if !CanTransition(s.State, to) {
		return fmt.Errorf("session %s: illegal transition %s -> %s", s.ID, s.State, to)
	}
	s.State = to
	s.LastActivity = time.Now()
	return nil
}

// SupportedLanguages is the set of BCP-47 primary language subtags this
// deployment has ASR/TTS voices for.
var SupportedLanguages = []string{"en", "hi"}

// ValidateLanguage parses code as a BCP-47 tag and confirms its base
// language is in SupportedLanguages, returning a descriptive error
// otherwise so the caller can map it onto ErrKindUnsupportedLanguage.
func ValidateLanguage(code string) error {
	tag, err := language.Parse(code)
	if err != nil {
		return fmt.Errorf("invalid language code %q: %w", code, err)
	}
	base, _ := tag.Base()
	for _, supported := range SupportedLanguages {
		if base.String() == supported {
			return nil
		}
	}
	return fmt.Errorf("Unsupported language %q", code)
}
