package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// PoolConfig tunes a Pool's sizing and keepalive behaviour. The
// keepalive numbers mirror the gRPC channel options the original
// Python gateway set on its ServiceClient (10s ping interval, 5s ping
// timeout, pings permitted with no active calls).
type PoolConfig struct {
	Size            int
	DialTimeout     time.Duration
	RequestTimeout  time.Duration
	PingInterval    time.Duration
	PingTimeout     time.Duration
	HealthCheckPath string
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Size:           8,
		DialTimeout:    5 * time.Second,
		RequestTimeout: 30 * time.Second,
		PingInterval:   10 * time.Second,
		PingTimeout:    5 * time.Second,
	}
}

// Pool leases *http.Client values (each backed by its own tuned
// transport) out of a bounded channel, matching the spec's
// acquire/release bounded-queue semantics rather than relying on
// http.Transport's implicit connection pooling alone.
type Pool struct {
	baseURL string
	cfg     PoolConfig
	leases  chan *http.Client
	closing chan struct{}
	log     *slog.Logger

	initialized bool
}

func NewPool(baseURL string, cfg PoolConfig, log *slog.Logger) *Pool {
	if log == nil {
		log = slog.Default()
	}
	return &Pool{
		baseURL: baseURL,
		cfg:     cfg,
		leases:  make(chan *http.Client, cfg.Size),
		closing: make(chan struct{}),
		log:     log,
	}
}

// Initialize is idempotent; it fills the pool with leased clients and
// fails fatally (returns a non-nil error) only if the very first dial
// attempt — a health probe, if HealthCheckPath is set — fails, per the
// "fatal on first failure, fine thereafter" semantics the pool owner
// relies on at startup.
func (p *Pool) Initialize(ctx context.Context) error {
	if p.initialized {
		return nil
	}
	for i := 0; i < p.cfg.Size; i++ {
		client := newPooledHTTPClient(p.cfg)
		if i == 0 && p.cfg.HealthCheckPath != "" {
			if err := probe(ctx, client, p.baseURL+p.cfg.HealthCheckPath, p.cfg.DialTimeout); err != nil {
				return fmt.Errorf("provider pool: initial health probe failed: %w", err)
			}
		}
		select {
		case p.leases <- client:
		default:
			return fmt.Errorf("provider pool: capacity exceeded during initialize")
		}
		p.startKeepalive(client)
	}
	p.initialized = true
	return nil
}

// Acquire blocks until a client is available or ctx is done.
func (p *Pool) Acquire(ctx context.Context) (*http.Client, error) {
	select {
	case c := <-p.leases:
		return c, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("provider pool: acquire: %w", ctx.Err())
	case <-p.closing:
		return nil, fmt.Errorf("provider pool: closed")
	}
}

// Release returns a client to the pool. It is safe to call at most
// once per successful Acquire; calling it twice for the same lease
// would oversubscribe the pool, so callers must pair exactly one
// Release with each Acquire (idiomatically via defer).
func (p *Pool) Release(c *http.Client) {
	select {
	case p.leases <- c:
	case <-p.closing:
	default:
		// Pool is at capacity already (double-release); drop silently
		// rather than block the caller.
	}
}

func (p *Pool) Close() {
	close(p.closing)
	for {
		select {
		case c := <-p.leases:
			c.CloseIdleConnections()
		default:
			return
		}
	}
}

func (p *Pool) startKeepalive(client *http.Client) {
	if p.cfg.PingInterval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(p.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), p.cfg.PingTimeout)
				if p.cfg.HealthCheckPath != "" {
					if err := probe(ctx, client, p.baseURL+p.cfg.HealthCheckPath, p.cfg.PingTimeout); err != nil {
						p.log.Warn("provider pool keepalive probe failed", "error", err)
					}
				}
				cancel()
			case <-p.closing:
				return
			}
		}
	}()
}

func probe(ctx context.Context, client *http.Client, url string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

// newPooledHTTPClient builds a transport tuned for many concurrent
// long-lived streaming requests to one upstream host, generalizing the
// teacher's NewPooledHTTPClient helper.
func newPooledHTTPClient(cfg PoolConfig) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: cfg.RequestTimeout,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   0, // streaming bodies: timeouts are enforced via context instead
	}
}
