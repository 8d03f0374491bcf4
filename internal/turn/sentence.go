// Package turn orchestrates a single conversational turn: streaming
// ASR transcript in, streaming LLM tokens through a sentence splitter,
// and streaming TTS audio back out sentence by sentence so synthesis
// can begin before the model has finished talking.
package turn

import "strings"

// sentenceEnders are the runes that terminate a sentence. Grounded on
// the teacher's ASCII-only set ('.', '!', '?'), extended with the
// Devanagari danda and double danda (U+0964, U+0965) so Hindi turns
// pipeline sentence-by-sentence too. This still mis-splits on
// abbreviations ("डॉ." etc.) exactly like the ASCII version does on
// "Mr." — a known, accepted limitation rather than a bug to fix here.
// A newline also ends a sentence; splitAtSentence handles it separately.
var sentenceEnders = map[rune]bool{
	'.': true, '!': true, '?': true,
	'।': true, // U+0964 danda
	'॥': true, // U+0965 double danda
}

// SentenceBuffer accumulates streamed text and yields complete
// sentences as soon as a newline, or a terminator followed by a word
// boundary, is seen, buffering the remainder for the next Add call.
type SentenceBuffer struct {
	buf strings.Builder
}

// Add appends token to the buffer and returns any complete sentences
// extracted from it, in order.
func (b *SentenceBuffer) Add(token string) []string {
	b.buf.WriteString(token)
	var out []string
	for {
		complete, remainder, ok := splitAtSentence(b.buf.String())
		if !ok {
			break
		}
		out = append(out, complete)
		b.buf.Reset()
		b.buf.WriteString(remainder)
	}
	return out
}

// Flush returns whatever remains in the buffer (a partial, unterminated
// sentence), clearing it.
func (b *SentenceBuffer) Flush() string {
	s := strings.TrimSpace(b.buf.String())
	b.buf.Reset()
	return s
}

// splitAtSentence scans s for the first sentence terminator followed by
// a word boundary (space, tab, newline, or end of string), and returns
// the sentence up to and including the terminator plus the remainder.
// A newline ends a sentence on its own; blank lines yield no sentence.
func splitAtSentence(s string) (complete, remainder string, ok bool) {
	runes := []rune(s)
	for i, r := range runes {
		if r == '\n' {
			if complete := strings.TrimSpace(string(runes[:i+1])); complete != "" {
				return complete, string(runes[i+1:]), true
			}
			continue
		}
		if !sentenceEnders[r] {
			continue
		}
		if i == len(runes)-1 {
			continue // terminator is the last rune so far; wait for a boundary
		}
		next := runes[i+1]
		if isWordBoundary(next) {
			return strings.TrimSpace(string(runes[:i+1])), string(runes[i+1:]), true
		}
	}
	return "", s, false
}

func isWordBoundary(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t'
}
