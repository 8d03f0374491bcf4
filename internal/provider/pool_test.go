package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestPoolAcquireRelease(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := DefaultPoolConfig()
	cfg.Size = 2
	cfg.PingInterval = 0
	cfg.HealthCheckPath = "/"

	p := NewPool(srv.URL, cfg, nil)
	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	defer p.Close()

	c1, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire 1: %v", err)
	}
	c2, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire 2: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := p.Acquire(ctx); err == nil {
		t.Fatalf("expected acquire to block when pool exhausted")
	}

	p.Release(c1)
	p.Release(c2)

	if _, err := p.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}

func TestPoolInitializeFailsOnBadHealthProbe(t *testing.T) {
	cfg := DefaultPoolConfig()
	cfg.Size = 1
	cfg.PingInterval = 0
	cfg.HealthCheckPath = "/health"
	cfg.DialTimeout = 50 * time.Millisecond

	p := NewPool("http://127.0.0.1:1", cfg, nil)
	if err := p.Initialize(context.Background()); err == nil {
		t.Fatalf("expected initialize to fail against an unreachable host")
	}
}
