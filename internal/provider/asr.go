package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/voicebridge/gateway/internal/bridge"
)

// ASRAdapter streams audio to a Riva-compatible ASR sidecar over a
// single chunked HTTP connection and returns a channel of incremental
// recognition results, generalizing the teacher's single-shot
// multipart-upload client (pipeline/asr.go) into a long-lived
// streaming one — matching the blocking-iterator-bridge shape the
// original Python client used a thread and a queue.Queue for.
type ASRAdapter struct {
	baseURL string
	pool    *Pool
}

func NewASRAdapter(baseURL string, pool *Pool) *ASRAdapter {
	return &ASRAdapter{baseURL: baseURL, pool: pool}
}

type asrResultLine struct {
	Transcript string  `json:"transcript"`
	IsFinal    bool    `json:"is_final"`
	Confidence float64 `json:"confidence"`
}

// chunkReader turns a channel of raw PCM chunks into an io.Reader the
// streaming HTTP request body can consume, ending the body once chunks
// is closed.
type chunkReader struct {
	ctx    context.Context
	chunks <-chan []byte
	buf    []byte
}

func (r *chunkReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		select {
		case b, ok := <-r.chunks:
			if !ok {
				return 0, io.EOF
			}
			r.buf = b
		case <-r.ctx.Done():
			return 0, r.ctx.Err()
		}
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

// RecognizeStreaming posts audio chunks as they arrive on the chunks
// channel and returns a channel of RecognitionResult populated as the
// upstream service emits newline-delimited JSON result lines.
func (a *ASRAdapter) RecognizeStreaming(ctx context.Context, chunks <-chan []byte, cfg RecognitionConfig) (<-chan RecognitionResult, error) {
	client, err := a.pool.Acquire(ctx)
	if err != nil {
		return nil, NewError("asr", ErrKindProviderUnavailable, err)
	}

	url := fmt.Sprintf("%s/v1/asr/stream?lang=%s&sample_rate=%d", a.baseURL, cfg.LanguageCode, cfg.SampleRateHz)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &chunkReader{ctx: ctx, chunks: chunks})
	if err != nil {
		a.pool.Release(client)
		return nil, NewError("asr", ErrKindInternal, err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Transfer-Encoding", "chunked")

	resp, err := client.Do(req)
	if err != nil {
		a.pool.Release(client)
		return nil, NewError("asr", ErrKindProviderRPC, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		a.pool.Release(client)
		return nil, NewError("asr", ErrKindProviderRPC, fmt.Errorf("asr upstream status %d", resp.StatusCode))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	iter := bridge.Func[asrResultLine](func() (asrResultLine, error, bool) {
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return asrResultLine{}, NewError("asr", ErrKindProviderRPC, err), false
			}
			return asrResultLine{}, nil, false
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			return asrResultLine{}, nil, true // caller skips via empty transcript
		}
		var r asrResultLine
		if err := json.Unmarshal(line, &r); err != nil {
			// Malformed line: skip rather than abort the whole stream,
			// matching the SSE parser's "skip malformed, keep going"
			// posture used for the LLM stage.
			return asrResultLine{}, nil, true
		}
		return r, nil, true
	})

	raw := bridge.Bridge[asrResultLine](ctx, iter, 8)
	out := make(chan RecognitionResult, 8)

	go func() {
		defer close(out)
		defer resp.Body.Close()
		defer a.pool.Release(client)
		for item := range raw {
			if item.Err != nil {
				select {
				case out <- RecognitionResult{Err: item.Err}:
				case <-ctx.Done():
				}
				return
			}
			if item.Done {
				return
			}
			if item.Value.Transcript == "" {
				continue
			}
			select {
			case out <- RecognitionResult{
				Transcript: item.Value.Transcript,
				IsFinal:    item.Value.IsFinal,
				Confidence: item.Value.Confidence,
			}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}
