package turn

import (
	"reflect"
	"testing"
)

func TestSentenceBufferSplitsOnAscii(t *testing.T) {
	b := &SentenceBuffer{}
	var got []string
	for _, tok := range []string{"Hello ", "there. ", "How are ", "you? ", "Good"} {
		got = append(got, b.Add(tok)...)
	}
	got = append(got, b.Flush())

	want := []string{"Hello there.", "How are you?", "Good"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestSentenceBufferSplitsOnDanda(t *testing.T) {
	b := &SentenceBuffer{}
	got := b.Add("नमस्ते। आप कैसे हैं।")
	got = append(got, b.Flush())

	want := []string{"नमस्ते।", "आप कैसे हैं।"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestSentenceBufferHoldsTerminatorAtEnd(t *testing.T) {
	b := &SentenceBuffer{}
	got := b.Add("wait for it.")
	if len(got) != 0 {
		t.Fatalf("expected no complete sentence while terminator is last rune, got %v", got)
	}
	if flushed := b.Flush(); flushed != "wait for it." {
		t.Fatalf("flush mismatch: %q", flushed)
	}
}
