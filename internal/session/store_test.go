package session

import (
	"context"
	"testing"
	"time"
)

func TestStoreCreateGetLocalOnly(t *testing.T) {
	s := NewStore(nil)
	sess := &Session{ID: "abc", Language: "en", State: StateInitialized, CreatedAt: time.Now(), LastActivity: time.Now()}

	if err := s.Create(context.Background(), sess); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, ok := s.Get(context.Background(), "abc")
	if !ok {
		t.Fatalf("expected session to be found")
	}
	if got.ID != "abc" {
		t.Fatalf("got id %q, want abc", got.ID)
	}
}

func TestStoreHistoryBound(t *testing.T) {
	sess := &Session{ID: "x"}
	for i := 0; i < MaxHistoryTurns*2+5; i++ {
		sess.AppendTurn(Turn{Role: "user", Content: "hi"})
	}
	if len(sess.History) != MaxHistoryTurns*2 {
		t.Fatalf("history len = %d, want %d", len(sess.History), MaxHistoryTurns*2)
	}
}

func TestStateMachineTransitions(t *testing.T) {
	cases := []struct {
		from, to State
		ok       bool
	}{
		{StateInitialized, StateListening, true},
		{StateListening, StateProcessing, true},
		{StateProcessing, StateSpeaking, true},
		{StateSpeaking, StateIdle, true},
		{StateIdle, StateListening, true},
		{StateListening, StateSpeaking, false},
		{StateIdle, StateProcessing, false},
		{StateProcessing, StateClosed, true},
		{StateClosed, StateListening, false},
		{StateListening, StateIdle, true},  // mid-ASR provider failure / empty transcript
		{StateProcessing, StateIdle, true}, // mid-LLM/TTS provider failure
		{StateListening, StateListening, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.ok {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.ok)
		}
	}
}

func TestValidateLanguage(t *testing.T) {
	if err := ValidateLanguage("en-US"); err != nil {
		t.Errorf("expected en-US to be supported: %v", err)
	}
	if err := ValidateLanguage("hi-IN"); err != nil {
		t.Errorf("expected hi-IN to be supported: %v", err)
	}
	if err := ValidateLanguage("fr-FR"); err == nil {
		t.Errorf("expected fr-FR to be rejected as unsupported")
	}
	if err := ValidateLanguage("not-a-tag!!"); err == nil {
		t.Errorf("expected malformed tag to be rejected")
	}
}

func TestGetCancelsGraceDelete(t *testing.T) {
	s := NewStore(nil)
	sess := &Session{ID: "g1", State: StateIdle}
	_ = s.Create(context.Background(), sess)

	s.ScheduleGraceDelete("g1")
	// Access before the grace period elapses should cancel the timer
	// and keep the session resident.
	if _, ok := s.Get(context.Background(), "g1"); !ok {
		t.Fatalf("expected session still present after access")
	}
	if _, pending := s.pending["g1"]; pending {
		t.Fatalf("expected access to cancel the pending grace delete")
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 resident session, got %d", s.Len())
	}
}
