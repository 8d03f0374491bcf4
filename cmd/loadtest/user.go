package main

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/gorilla/websocket"
)

// wsConfigFrame/wsServerFrame mirror wsserver's wire frames closely
// enough for the harness to drive a real gateway instance without
// importing internal packages across module boundaries.
type wsConfigFrame struct {
	Type         string `json:"type"`
	LanguageCode string `json:"language_code"`
	SampleRateHz int     `json:"sample_rate_hz"`
}

type wsServerFrame struct {
	Type    string `json:"type"`
	ASRMs   int64  `json:"asr_ms"`
	LLMMs   int64  `json:"llm_ms"`
	TTSMs   int64  `json:"tts_ms"`
	TotalMs int64  `json:"total_ms"`
}

// runCall drives one full voice turn against the target gateway,
// grounded on the teacher's services/loadtest/main.go runCall:
// dial, send config, stream audio at real-time pace, read the result
// frame.
func runCall(cfg LoadConfig, workerID, requestID int, audio []byte, rng *rand.Rand) RequestResult {
	result := RequestResult{WorkerID: workerID, RequestID: requestID, StartTime: time.Now()}

	conn, _, err := websocket.DefaultDialer.Dial(cfg.TargetURL, nil)
	if err != nil {
		result.Status = "error"
		result.ErrorMessage = fmt.Sprintf("dial: %v", err)
		result.EndTime = time.Now()
		return result
	}
	defer conn.Close()

	if err := conn.WriteJSON(wsConfigFrame{Type: "config", LanguageCode: cfg.LanguageCode, SampleRateHz: cfg.SampleRateHz}); err != nil {
		result.Status = "error"
		result.ErrorMessage = fmt.Sprintf("send config: %v", err)
		result.EndTime = time.Now()
		return result
	}

	// session_created ack
	conn.SetReadDeadline(time.Now().Add(cfg.RequestTimeout))
	if _, _, err := conn.ReadMessage(); err != nil {
		result.Status = "error"
		result.ErrorMessage = fmt.Sprintf("await session_created: %v", err)
		result.EndTime = time.Now()
		return result
	}

	go streamAudio(conn, audio, cfg.ChunkSize, cfg.ChunkDelay)

	for {
		conn.SetReadDeadline(time.Now().Add(cfg.RequestTimeout))
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			result.Status = "error"
			result.ErrorMessage = fmt.Sprintf("read: %v", err)
			break
		}
		if msgType != websocket.TextMessage {
			continue // binary audio frame, not a metrics frame
		}
		var frame wsServerFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		if frame.Type == "turn_complete" {
			result.Status = "success"
			result.ASRLatencyMs = frame.ASRMs
			result.LLMTotalMs = frame.LLMMs
			result.TTSLatencyMs = frame.TTSMs
			result.E2ELatencyMs = frame.TotalMs
			break
		}
		if frame.Type == "error" {
			result.Status = "error"
			result.ErrorMessage = "server reported an error frame"
			break
		}
	}

	result.EndTime = time.Now()
	return result
}

// streamAudio paces 20ms chunks out over the connection in real time,
// matching the original harness's send cadence so the server sees
// realistic audio timing rather than a burst.
func streamAudio(conn *websocket.Conn, audio []byte, chunkSize int, delay time.Duration) {
	for i := 0; i < len(audio); i += chunkSize {
		end := i + chunkSize
		if end > len(audio) {
			end = len(audio)
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, audio[i:end]); err != nil {
			return
		}
		time.Sleep(delay)
	}
}

// generateSyntheticAudio synthesizes a sine wave plus noise as 16-bit
// PCM, for runs where no fixture audio directory is supplied —
// grounded on the teacher's generateSyntheticAudio helper.
func generateSyntheticAudio(durationMs, sampleRateHz int, rng *rand.Rand) []byte {
	n := sampleRateHz * durationMs / 1000
	out := make([]byte, n*2)
	const freq = 220.0
	for i := 0; i < n; i++ {
		t := float64(i) / float64(sampleRateHz)
		sample := math.Sin(2*math.Pi*freq*t) * 0.6
		sample += (rng.Float64()*2 - 1) * 0.05
		v := int16(sample * 32767)
		out[2*i] = byte(v)
		out[2*i+1] = byte(v >> 8)
	}
	return out
}
