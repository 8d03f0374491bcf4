// Package config loads the gateway's deployment configuration: first
// its defaults, then an optional JSON tuning file, then environment
// variable overrides — mirroring the teacher's cmd/gateway/main.go
// tuning/loadTuning pattern.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/voicebridge/gateway/internal/env"
)

// Config is the full set of knobs the gateway process needs at
// startup.
type Config struct {
	ListenAddr string `json:"listen_addr"`

	ASRBaseURL string `json:"asr_base_url"`
	LLMBaseURL string `json:"llm_base_url"`
	LLMModel   string `json:"llm_model"`
	TTSBaseURL string `json:"tts_base_url"`

	ProviderPoolSize int `json:"provider_pool_size"`

	RedisAddr string `json:"redis_addr"`
	RedisDB   int    `json:"redis_db"`

	SessionTTLSeconds  int `json:"session_ttl_seconds"`
	LLMCacheTTLSeconds int `json:"llm_cache_ttl_seconds"`

	TraceDatabaseURL string `json:"trace_database_url"` // empty disables the trace store

	ShutdownGracePeriod time.Duration `json:"-"`
}

func Default() Config {
	return Config{
		ListenAddr:          ":8080",
		ASRBaseURL:          "http://localhost:9000",
		LLMBaseURL:          "http://localhost:9001",
		LLMModel:            "default",
		TTSBaseURL:          "http://localhost:9002",
		ProviderPoolSize:    8,
		RedisAddr:           "localhost:6379",
		RedisDB:             0,
		SessionTTLSeconds:   3600,
		LLMCacheTTLSeconds:  3600,
		ShutdownGracePeriod: 30 * time.Second,
	}
}

// Load builds a Config from defaults, an optional tuning file at path
// (skipped silently if it doesn't exist), then environment variables,
// in that precedence order, matching the teacher's loadTuning.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if b, err := os.ReadFile(path); err == nil {
			if err := json.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("config: parse %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	cfg.ListenAddr = env.Str("LISTEN_ADDR", cfg.ListenAddr)
	cfg.ASRBaseURL = env.Str("ASR_BASE_URL", cfg.ASRBaseURL)
	cfg.LLMBaseURL = env.Str("LLM_BASE_URL", cfg.LLMBaseURL)
	cfg.LLMModel = env.Str("LLM_MODEL", cfg.LLMModel)
	cfg.TTSBaseURL = env.Str("TTS_BASE_URL", cfg.TTSBaseURL)
	cfg.RedisAddr = env.Str("REDIS_ADDR", cfg.RedisAddr)
	cfg.TraceDatabaseURL = env.Str("TRACE_DATABASE_URL", cfg.TraceDatabaseURL)

	if v := os.Getenv("PROVIDER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ProviderPoolSize = n
		}
	}
	if v := os.Getenv("SESSION_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SessionTTLSeconds = n
		}
	}
	if v := os.Getenv("LLM_CACHE_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LLMCacheTTLSeconds = n
		}
	}

	return cfg, nil
}
