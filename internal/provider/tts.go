package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/voicebridge/gateway/internal/bridge"
)

// TTSAdapter synthesizes speech for text and streams the resulting PCM
// audio back in fixed-size chunks, generalizing the teacher's one-shot
// Synthesize call (pipeline/tts.go) into a streaming read.
type TTSAdapter struct {
	baseURL   string
	pool      *Pool
	chunkSize int
}

func NewTTSAdapter(baseURL string, pool *Pool, chunkSize int) *TTSAdapter {
	if chunkSize <= 0 {
		chunkSize = 4096
	}
	return &TTSAdapter{baseURL: baseURL, pool: pool, chunkSize: chunkSize}
}

type synthesizeRequest struct {
	Text         string `json:"text"`
	Voice        string `json:"voice,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
	SampleRateHz int    `json:"sample_rate_hz,omitempty"`
}

// SynthesizeStreaming posts text and returns a channel of raw PCM audio
// chunks as the upstream TTS service streams its response body.
func (a *TTSAdapter) SynthesizeStreaming(ctx context.Context, text string, cfg SynthesisConfig) (<-chan AudioChunk, error) {
	client, err := a.pool.Acquire(ctx)
	if err != nil {
		return nil, NewError("tts", ErrKindProviderUnavailable, err)
	}

	body, err := json.Marshal(synthesizeRequest{
		Text:         text,
		Voice:        cfg.Voice,
		LanguageCode: cfg.LanguageCode,
		SampleRateHz: cfg.SampleRateHz,
	})
	if err != nil {
		a.pool.Release(client)
		return nil, NewError("tts", ErrKindInternal, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/tts/synthesize", bytes.NewReader(body))
	if err != nil {
		a.pool.Release(client)
		return nil, NewError("tts", ErrKindInternal, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		a.pool.Release(client)
		return nil, NewError("tts", ErrKindProviderRPC, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		a.pool.Release(client)
		return nil, NewError("tts", ErrKindProviderRPC, fmt.Errorf("tts upstream status %d", resp.StatusCode))
	}

	chunkSize := a.chunkSize
	iter := bridge.Func[[]byte](func() ([]byte, error, bool) {
		buf := make([]byte, chunkSize)
		n, err := resp.Body.Read(buf)
		if n > 0 {
			return buf[:n], nil, true
		}
		if err == io.EOF {
			return nil, nil, false
		}
		if err != nil {
			return nil, NewError("tts", ErrKindProviderRPC, err), false
		}
		return nil, nil, true
	})

	raw := bridge.Bridge[[]byte](ctx, iter, 4)
	out := make(chan AudioChunk, 4)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		defer a.pool.Release(client)
		for item := range raw {
			if item.Err != nil {
				select {
				case out <- AudioChunk{Err: item.Err}:
				case <-ctx.Done():
				}
				return
			}
			if item.Done {
				return
			}
			select {
			case out <- AudioChunk{Data: item.Value}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// SynthesizeFull collects the entire synthesized utterance into one
// buffer of raw PCM, for callers that don't need incremental audio.
func (a *TTSAdapter) SynthesizeFull(ctx context.Context, text string, cfg SynthesisConfig) ([]byte, error) {
	ch, err := a.SynthesizeStreaming(ctx, text, cfg)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	for chunk := range ch {
		if chunk.Err != nil {
			return nil, chunk.Err
		}
		buf.Write(chunk.Data)
	}
	return buf.Bytes(), nil
}
