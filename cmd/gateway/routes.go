package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/voicebridge/gateway/internal/provider"
	"github.com/voicebridge/gateway/internal/session"
	"github.com/voicebridge/gateway/internal/trace"
)

type deps struct {
	wsHandler  http.Handler
	store      *session.Store
	traceStore *trace.Store
	asrPool    *provider.Pool
	llmPool    *provider.Pool
	ttsPool    *provider.Pool
	redis      *redis.Client
}

func registerRoutes(d deps) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /ready", d.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /sessions/{id}", d.handleSessionByID)
	mux.Handle("/ws/voice", d.wsHandler)

	if d.traceStore != nil {
		registerTraceRoutes(mux, d.traceStore)
	}

	return mux
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (d deps) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{}
	ready := true

	if err := d.redis.Ping(ctx).Err(); err != nil {
		status["redis"] = err.Error()
		ready = false
	} else {
		status["redis"] = "ok"
	}

	status["resident_sessions"] = strconv.Itoa(d.store.Len())

	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (d deps) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, ok := d.store.Get(r.Context(), id)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func registerTraceRoutes(mux *http.ServeMux, store *trace.Store) {
	mux.HandleFunc("GET /api/traces/sessions", func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = n
			}
		}
		sessions, err := store.ListSessions(r.Context(), limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, sessions)
	})

	mux.HandleFunc("GET /api/traces/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		sum, err := store.GetSession(r.Context(), r.PathValue("id"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, sum)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
