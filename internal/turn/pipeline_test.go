package turn

import "testing"

func TestAudioDurationMs(t *testing.T) {
	cases := []struct {
		byteLen, sampleRate int
		wantMs              int64
	}{
		{32000, 16000, 1000}, // 1 second of 16-bit mono PCM at 16kHz
		{16000, 16000, 500},
		{0, 16000, 0},
		{1000, 0, 0},
	}
	for _, c := range cases {
		if got := AudioDurationMs(c.byteLen, c.sampleRate); got != c.wantMs {
			t.Errorf("AudioDurationMs(%d, %d) = %d, want %d", c.byteLen, c.sampleRate, got, c.wantMs)
		}
	}
}

func TestSystemPromptForFallsBackToEnglish(t *testing.T) {
	if got := SystemPromptFor("fr-FR"); got != defaultSystemPrompt {
		t.Errorf("expected fallback to default prompt for unsupported language, got %q", got)
	}
	if got := SystemPromptFor("hi-IN"); got != systemPrompts["hi"] {
		t.Errorf("expected Hindi prompt for hi-IN, got %q", got)
	}
}
