// Command gateway runs the voice-to-voice conversational gateway:
// accepts WebSocket connections, orchestrates ASR/LLM/TTS per session,
// and exposes an HTTP admin surface alongside Prometheus metrics.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/voicebridge/gateway/internal/config"
	"github.com/voicebridge/gateway/internal/metrics"
	"github.com/voicebridge/gateway/internal/provider"
	"github.com/voicebridge/gateway/internal/session"
	"github.com/voicebridge/gateway/internal/trace"
	"github.com/voicebridge/gateway/internal/wsserver"
)

func main() {
	tuningPath := flag.String("config", "", "path to an optional JSON tuning file")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load(*tuningPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		slog.Error("gateway exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	ctx := context.Background()
	met := metrics.NewRecorder()

	asrPool := provider.NewPool(cfg.ASRBaseURL, poolConfig(cfg), slog.Default())
	llmPool := provider.NewPool(cfg.LLMBaseURL, poolConfig(cfg), slog.Default())
	ttsPool := provider.NewPool(cfg.TTSBaseURL, poolConfig(cfg), slog.Default())

	if err := asrPool.Initialize(ctx); err != nil {
		return err
	}
	if err := llmPool.Initialize(ctx); err != nil {
		return err
	}
	if err := ttsPool.Initialize(ctx); err != nil {
		return err
	}
	defer asrPool.Close()
	defer llmPool.Close()
	defer ttsPool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer redisClient.Close()

	llmCache := provider.NewLLMCache(redisClient, time.Duration(cfg.LLMCacheTTLSeconds)*time.Second, slog.Default())

	asrAdapter := provider.NewASRAdapter(cfg.ASRBaseURL, asrPool)
	llmAdapter := provider.NewLLMAdapter(cfg.LLMBaseURL, cfg.LLMModel, llmPool, llmCache)
	ttsAdapter := provider.NewTTSAdapter(cfg.TTSBaseURL, ttsPool, 4096)

	store := session.NewStore(slog.Default(),
		session.WithRedis(redisClient),
		session.WithTTL(time.Duration(cfg.SessionTTLSeconds)*time.Second),
	)

	var traceStore *trace.Store
	if cfg.TraceDatabaseURL != "" {
		ts, err := trace.Open(ctx, cfg.TraceDatabaseURL)
		if err != nil {
			slog.Warn("trace store unavailable, continuing without turn tracing", "error", err)
		} else {
			traceStore = ts
			defer traceStore.Close()
		}
	}

	handler := wsserver.NewHandler(wsserver.HandlerConfig{
		ASR:     asrAdapter,
		LLM:     llmAdapter,
		TTS:     ttsAdapter,
		Store:   store,
		Metrics: met,
		Log:     slog.Default(),
	})

	mux := registerRoutes(deps{
		wsHandler:  handler,
		store:      store,
		traceStore: traceStore,
		asrPool:    asrPool,
		llmPool:    llmPool,
		ttsPool:    ttsPool,
		redis:      redisClient,
	})

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("gateway listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	return awaitShutdown(srv, errCh, cfg.ShutdownGracePeriod)
}

func poolConfig(cfg config.Config) provider.PoolConfig {
	pc := provider.DefaultPoolConfig()
	pc.Size = cfg.ProviderPoolSize
	return pc
}

func awaitShutdown(srv *http.Server, errCh <-chan error, grace time.Duration) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	return srv.Shutdown(ctx)
}
