// Command loadtest drives a gateway instance with many simulated
// virtual users across a named scenario, collecting per-stage latency
// percentiles — grounded on the teacher's services/loadtest/main.go and
// the original tests/load/{config,collector}.py.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func main() {
	targetURL := flag.String("url", "ws://localhost:8080/ws/voice", "gateway WebSocket URL")
	scenarioName := flag.String("scenario", "light", "scenario: baseline|light|medium|heavy|spike|endurance")
	audioDir := flag.String("audio-dir", "", "directory of WAV fixtures to replay (synthetic audio if empty)")
	languageCode := flag.String("language", "en-US", "language code to negotiate per session")
	outputFile := flag.String("output", "", "optional path to write JSON results to")
	flag.Parse()

	cfg := DefaultLoadConfig().WithScenario(Scenario(*scenarioName))
	cfg.TargetURL = *targetURL
	cfg.AudioDir = *audioDir
	cfg.LanguageCode = *languageCode
	cfg.OutputFile = *outputFile

	audioFixtures, err := loadAudioFixtures(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loadtest: %v\n", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	collector := &Collector{}
	stop := make(chan struct{})

	go func() {
		<-sigCh
		close(stop)
	}()

	runScenario(cfg, audioFixtures, collector, stop)

	results := collector.Snapshot()
	summary := Summarize(results)
	printSummary(*scenarioName, summary)

	if cfg.OutputFile != "" {
		writeResultsJSON(cfg.OutputFile, results, summary)
	}

	select {
	case <-stop:
		os.Exit(130)
	default:
	}
	if summary.Total > 0 && summary.SuccessRate < 0.95 {
		os.Exit(1)
	}
}

// runScenario starts virtual users at an even cadence over RampUpTime;
// each then runs RequestsPerUser requests with ThinkTime pauses, and
// the run ends when every user has finished. HoldTime and RampDownTime
// are not used: there is no timed hold or ramp-down phase.
func runScenario(cfg LoadConfig, fixtures [][]byte, collector *Collector, stop <-chan struct{}) {
	var wg sync.WaitGroup
	rampInterval := time.Duration(0)
	if cfg.MaxUsers > 0 {
		rampInterval = cfg.RampUpTime / time.Duration(cfg.MaxUsers)
	}

	for u := 0; u < cfg.MaxUsers; u++ {
		select {
		case <-stop:
			wg.Wait()
			return
		default:
		}
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			runVirtualUser(cfg, workerID, fixtures, collector, stop)
		}(u)

		if rampInterval > 0 {
			time.Sleep(rampInterval)
		}
	}

	wg.Wait()
}

func runVirtualUser(cfg LoadConfig, workerID int, fixtures [][]byte, collector *Collector, stop <-chan struct{}) {
	rng := rand.New(rand.NewSource(int64(workerID) + time.Now().UnixNano()))
	for reqID := 0; reqID < cfg.RequestsPerUser; reqID++ {
		select {
		case <-stop:
			return
		default:
		}

		audioBytes := fixtures[rng.Intn(len(fixtures))]
		result := runCall(cfg, workerID, reqID, audioBytes, rng)
		collector.Add(result)

		if cfg.ThinkTime > 0 {
			time.Sleep(cfg.ThinkTime)
		}
	}
}

// loadAudioFixtures decodes WAV files from cfg.AudioDir if given,
// otherwise returns a single synthetic clip — grounded on the
// teacher's findAudioFiles/getAudioData pair.
func loadAudioFixtures(cfg LoadConfig) ([][]byte, error) {
	if cfg.AudioDir == "" {
		return [][]byte{generateSyntheticAudio(2000, cfg.SampleRateHz, rand.New(rand.NewSource(1)))}, nil
	}

	paths, err := findAudioFiles(cfg.AudioDir)
	if err != nil {
		return nil, fmt.Errorf("scan audio dir: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no .wav fixtures found in %s", cfg.AudioDir)
	}

	var out [][]byte
	for _, p := range paths {
		pcm, err := decodeWAVToPCM(p)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", p, err)
		}
		out = append(out, pcm)
	}
	return out, nil
}

func findAudioFiles(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".wav") {
			out = append(out, path)
		}
		return nil
	})
	return out, err
}

func decodeWAVToPCM(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("not a valid WAV file")
	}

	out := make([]byte, 0)
	chunk := &audio.IntBuffer{Data: make([]int, 4096), Format: &audio.Format{SampleRate: int(dec.SampleRate), NumChannels: int(dec.NumChans)}}
	for {
		n, err := dec.PCMBuffer(chunk)
		if n == 0 || err != nil {
			break
		}
		for i := 0; i < n; i++ {
			v := int16(chunk.Data[i])
			out = append(out, byte(v), byte(v>>8))
		}
	}
	return out, nil
}

func printSummary(scenario string, s Summary) {
	fmt.Printf("scenario=%s total=%d success=%d failures=%d success_rate=%.2f%%\n",
		scenario, s.Total, s.Successes, s.Failures, s.SuccessRate*100)
	fmt.Printf("e2e_ms   min=%.0f p50=%.0f p90=%.0f p95=%.0f p99=%.0f max=%.0f stddev=%.1f\n",
		s.E2E.Min, s.E2E.Median, s.E2E.P90, s.E2E.P95, s.E2E.P99, s.E2E.Max, s.E2E.StdDev)
	fmt.Printf("asr_ms   min=%.0f p50=%.0f p90=%.0f p95=%.0f p99=%.0f max=%.0f\n",
		s.ASR.Min, s.ASR.Median, s.ASR.P90, s.ASR.P95, s.ASR.P99, s.ASR.Max)
	fmt.Printf("ttft_ms  min=%.0f p50=%.0f p90=%.0f p95=%.0f p99=%.0f max=%.0f\n",
		s.LLMTTFT.Min, s.LLMTTFT.Median, s.LLMTTFT.P90, s.LLMTTFT.P95, s.LLMTTFT.P99, s.LLMTTFT.Max)
	fmt.Printf("tts_ms   min=%.0f p50=%.0f p90=%.0f p95=%.0f p99=%.0f max=%.0f\n",
		s.TTS.Min, s.TTS.Median, s.TTS.P90, s.TTS.P95, s.TTS.P99, s.TTS.Max)
}

func writeResultsJSON(path string, results []RequestResult, summary Summary) {
	f, err := os.Create(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loadtest: write results: %v\n", err)
		return
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	_ = enc.Encode(map[string]any{"summary": summary, "results": results})
}
