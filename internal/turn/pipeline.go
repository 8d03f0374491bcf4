package turn

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/voicebridge/gateway/internal/metrics"
	"github.com/voicebridge/gateway/internal/provider"
	"github.com/voicebridge/gateway/internal/session"
)

// sentenceChannelBuffer mirrors the teacher's buffered hand-off between
// the LLM producer and the TTS consumer goroutine.
const sentenceChannelBuffer = 8

// Event is one thing worth telling the WebSocket handler about as a
// turn progresses: an interim/final transcript, an LLM token, or a
// synthesized audio chunk ready to forward to the client.
type Event struct {
	Type    string // "asr_partial", "asr_final", "llm_token", "tts_audio", "turn_complete", "status"
	Text    string
	Audio   []byte
	State   string // populated for Type=="status": "processing", "idle"
	Stage   string // populated for Type=="status" alongside State=="processing": "asr"
	ASRMs   int64
	LLMMs   int64
	TTSMs   int64
	TotalMs int64
}

type EventCallback func(Event)

// Config wires the three provider adapters and session context a
// Pipeline needs for one session's worth of turns.
type Config struct {
	ASR          *provider.ASRAdapter
	LLM          *provider.LLMAdapter
	TTS          *provider.TTSAdapter
	Metrics      *metrics.Recorder
	SessionID    string
	LanguageCode string
	SampleRateHz int
	Log          *slog.Logger
}

// Pipeline orchestrates one session's turns: ASR streaming in,
// sentence-pipelined LLM+TTS streaming out. Grounded on the teacher's
// Pipeline (pipeline/pipeline.go), generalized so TTS audio streams
// sentence-by-sentence through the provider adapter's own channel
// rather than one collected buffer per sentence.
type Pipeline struct {
	cfg Config
	log *slog.Logger
}

func New(cfg Config) *Pipeline {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{cfg: cfg, log: log}
}

var markdownStrip = regexp.MustCompile(`[*_` + "`" + `#]+`)

func normalizeForSpeech(s string) string {
	s = markdownStrip.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// RunTurn drives one full turn: consumes ASR results from chunks until
// a final transcript, sends the accumulated conversation to the LLM,
// and streams TTS audio for each sentence as it completes. sess is
// mutated (history, state) as the turn progresses; the caller is
// responsible for persisting it via the session store afterward.
func (p *Pipeline) RunTurn(ctx context.Context, sess *session.Session, chunks <-chan []byte, onEvent EventCallback) error {
	if err := sess.Transition(session.StateListening); err != nil {
		return err
	}

	asrStart := time.Now()
	results, err := p.cfg.ASR.RecognizeStreaming(ctx, chunks, provider.RecognitionConfig{
		LanguageCode:   p.cfg.LanguageCode,
		SampleRateHz:   p.cfg.SampleRateHz,
		InterimResults: true,
	})
	if err != nil {
		if tErr := sess.Transition(session.StateIdle); tErr != nil {
			return tErr
		}
		onEvent(Event{Type: "status", State: "idle"})
		return fmt.Errorf("turn: asr: %w", err)
	}

	onEvent(Event{Type: "status", State: "processing", Stage: "asr"})

	var transcript string
	var asrErr error
	for r := range results {
		if r.Err != nil {
			asrErr = r.Err
			break
		}
		if r.IsFinal {
			transcript = r.Transcript
			onEvent(Event{Type: "asr_final", Text: transcript})
			break
		}
		onEvent(Event{Type: "asr_partial", Text: r.Transcript})
	}
	asrMs := time.Since(asrStart).Milliseconds()

	if asrErr != nil {
		if tErr := sess.Transition(session.StateIdle); tErr != nil {
			return tErr
		}
		onEvent(Event{Type: "status", State: "idle"})
		return fmt.Errorf("turn: asr: %w", asrErr)
	}

	if strings.TrimSpace(transcript) == "" {
		// Nothing recognized worth acting on; end the turn silently
		// and return straight to idle without invoking the LLM/TTS.
		if err := sess.Transition(session.StateIdle); err != nil {
			return err
		}
		onEvent(Event{Type: "status", State: "idle"})
		return nil
	}

	if err := sess.Transition(session.StateProcessing); err != nil {
		return err
	}
	sess.AppendTurn(session.Turn{Role: "user", Content: transcript})

	// The first forwarded audio chunk moves the session to SPEAKING and
	// ends the E2E interval that starts at the final transcript.
	turnStart := time.Now()
	var firstAudio time.Time
	var firstAudioOnce sync.Once
	trackedEvent := func(ev Event) {
		if ev.Type == "tts_audio" {
			firstAudioOnce.Do(func() {
				firstAudio = time.Now()
				if tErr := sess.Transition(session.StateSpeaking); tErr != nil {
					p.log.Warn("state transition failed", "error", tErr, "session_id", p.cfg.SessionID)
				}
			})
		}
		onEvent(ev)
	}
	assistantText, llmMs, ttsMs, err := p.streamLLMWithTTS(ctx, sess, trackedEvent)
	if err != nil {
		if tErr := sess.Transition(session.StateIdle); tErr != nil {
			return tErr
		}
		onEvent(Event{Type: "status", State: "idle"})
		return fmt.Errorf("turn: llm/tts: %w", err)
	}
	sess.AppendTurn(session.Turn{Role: "assistant", Content: assistantText})

	totalMs := time.Since(turnStart).Milliseconds() + asrMs
	if p.cfg.Metrics != nil && !firstAudio.IsZero() {
		p.cfg.Metrics.E2ELatency.Observe(firstAudio.Sub(turnStart).Seconds())
	}
	onEvent(Event{Type: "turn_complete", ASRMs: asrMs, LLMMs: llmMs, TTSMs: ttsMs, TotalMs: totalMs})

	if err := sess.Transition(session.StateIdle); err != nil {
		return err
	}
	onEvent(Event{Type: "status", State: "idle"})
	return nil
}

// streamLLMWithTTS is the central concurrency pattern: an LLM producer
// streams tokens through a sentence buffer; complete sentences are
// pushed onto a channel a dedicated TTS consumer goroutine drains,
// synthesizing and forwarding audio for each as soon as it's ready.
// Grounded on the teacher's streamLLMWithTTS/consumeSentences pair.
func (p *Pipeline) streamLLMWithTTS(ctx context.Context, sess *session.Session, onEvent EventCallback) (assistantText string, llmMs, ttsMs int64, err error) {
	sentenceCh := make(chan string, sentenceChannelBuffer)
	var ttsWg sync.WaitGroup
	var ttsMu sync.Mutex
	var ttsTotal time.Duration
	var ttsErr error

	ttsWg.Add(1)
	go func() {
		defer ttsWg.Done()
		p.consumeSentences(ctx, sentenceCh, onEvent, &ttsMu, &ttsTotal, &ttsErr)
	}()

	messages := p.buildMessages(sess)

	var sb SentenceBuffer
	var full strings.Builder
	llmStart := time.Now()

	result, genErr := p.cfg.LLM.Generate(ctx, messages, func(token string) {
		full.WriteString(token)
		onEvent(Event{Type: "llm_token", Text: token})
		for _, complete := range sb.Add(token) {
			select {
			case sentenceCh <- complete:
			case <-ctx.Done():
			}
		}
	})
	llmMs = time.Since(llmStart).Milliseconds()

	if genErr != nil {
		close(sentenceCh)
		ttsWg.Wait()
		return "", llmMs, 0, genErr
	}

	if remainder := sb.Flush(); remainder != "" {
		select {
		case sentenceCh <- remainder:
		case <-ctx.Done():
		}
	}
	close(sentenceCh)
	ttsWg.Wait()

	if p.cfg.Metrics != nil {
		p.cfg.Metrics.LLMTotalLatency.Observe(float64(llmMs) / 1000)
	}

	ttsMu.Lock()
	ttsMs = ttsTotal.Milliseconds()
	capturedErr := ttsErr
	ttsMu.Unlock()

	if capturedErr != nil {
		return "", llmMs, ttsMs, capturedErr
	}

	if full.Len() == 0 {
		return result.Text, llmMs, ttsMs, nil
	}
	return full.String(), llmMs, ttsMs, nil
}

// consumeSentences drains sentences as they're produced, synthesizing
// each in turn. Once a synthesis failure has been recorded, remaining
// sentences are drained without further upstream calls so the LLM
// producer never blocks on a full sentenceCh.
func (p *Pipeline) consumeSentences(ctx context.Context, sentenceCh <-chan string, onEvent EventCallback, mu *sync.Mutex, total *time.Duration, errOut *error) {
	for sentence := range sentenceCh {
		mu.Lock()
		failed := *errOut != nil
		mu.Unlock()
		if failed {
			continue
		}
		p.synthesizeSentence(ctx, sentence, onEvent, mu, total, errOut)
	}
}

func (p *Pipeline) synthesizeSentence(ctx context.Context, sentence string, onEvent EventCallback, mu *sync.Mutex, total *time.Duration, errOut *error) {
	text := normalizeForSpeech(sentence)
	if text == "" {
		return
	}
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.TTSTextLength.Observe(float64(len(text)))
	}

	start := time.Now()
	audioCh, err := p.cfg.TTS.SynthesizeStreaming(ctx, text, provider.SynthesisConfig{
		LanguageCode: p.cfg.LanguageCode,
		SampleRateHz: p.cfg.SampleRateHz,
	})
	if err != nil {
		p.log.Warn("tts synthesis failed", "error", err, "session_id", p.cfg.SessionID)
		mu.Lock()
		if *errOut == nil {
			*errOut = err
		}
		mu.Unlock()
		return
	}
	for chunk := range audioCh {
		if chunk.Err != nil {
			p.log.Warn("tts stream failed mid-sentence", "error", chunk.Err, "session_id", p.cfg.SessionID)
			mu.Lock()
			if *errOut == nil {
				*errOut = chunk.Err
			}
			mu.Unlock()
			return
		}
		onEvent(Event{Type: "tts_audio", Audio: chunk.Data})
	}
	elapsed := time.Since(start)
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.TTSLatency.Observe(elapsed.Seconds())
	}

	mu.Lock()
	*total += elapsed
	mu.Unlock()
}

// buildMessages turns session history plus the language's system
// prompt into the message list the LLM adapter sends upstream.
func (p *Pipeline) buildMessages(sess *session.Session) []provider.ChatMessage {
	msgs := make([]provider.ChatMessage, 0, len(sess.History)+1)
	msgs = append(msgs, provider.ChatMessage{Role: "system", Content: SystemPromptFor(p.cfg.LanguageCode)})
	for _, t := range sess.History {
		msgs = append(msgs, provider.ChatMessage{Role: t.Role, Content: t.Content})
	}
	return msgs
}

// AudioDurationMs computes the duration, in milliseconds, of a raw
// 16-bit mono PCM buffer at the given sample rate.
func AudioDurationMs(byteLen, sampleRateHz int) int64 {
	if sampleRateHz <= 0 {
		return 0
	}
	return int64(float64(byteLen) / float64(sampleRateHz*2) * 1000)
}
