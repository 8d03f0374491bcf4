package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// GraceDeletePeriod is how long a session survives in the local map
// after its connection closes before being evicted, cancellable by any
// access in the meantime — mirroring the original gateway's pattern of
// keeping a session reachable briefly after disconnect for reconnects.
const GraceDeletePeriod = 300 * time.Second

// Store is the two-tier session store: an authoritative in-process map
// guarded by a mutex, backed by a Redis cache (optional — nil client
// disables the cache tier and the store degrades to local-only).
//
// Grounded on AltairaLabs-PromptKit's RedisStore (pipelined SET+EXPIRE,
// prefixed keys) applied to session snapshots instead of conversation
// state, plus the original gateway's local-map-then-redis-fallback
// VoiceGateway.get_session pattern.
type Store struct {
	mu      sync.RWMutex
	local   map[string]*Session
	pending map[string]*time.Timer // grace-delete timers, keyed by session id

	redis  *redis.Client
	ttl    time.Duration
	prefix string
	log    *slog.Logger
}

type StoreOption func(*Store)

func WithTTL(ttl time.Duration) StoreOption { return func(s *Store) { s.ttl = ttl } }
func WithPrefix(p string) StoreOption       { return func(s *Store) { s.prefix = p } }
func WithRedis(c *redis.Client) StoreOption { return func(s *Store) { s.redis = c } }

func NewStore(log *slog.Logger, opts ...StoreOption) *Store {
	if log == nil {
		log = slog.Default()
	}
	s := &Store{
		local:   make(map[string]*Session),
		pending: make(map[string]*time.Timer),
		ttl:     3600 * time.Second,
		prefix:  "voicebridge:session:",
		log:     log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(id string) string { return s.prefix + id }

// Create inserts a brand new session into both tiers.
func (s *Store) Create(ctx context.Context, sess *Session) error {
	s.mu.Lock()
	s.local[sess.ID] = sess
	s.mu.Unlock()
	return s.writeThrough(ctx, sess)
}

// Get returns the session for id, first checking the local map, then
// falling back to the Redis cache and rehydrating the local map on a
// hit — the two-tier consult order the spec requires.
func (s *Store) Get(ctx context.Context, id string) (*Session, bool) {
	s.mu.RLock()
	sess, ok := s.local[id]
	s.mu.RUnlock()
	if ok {
		s.cancelGraceDelete(id)
		return sess, true
	}

	if s.redis == nil {
		return nil, false
	}
	val, err := s.redis.Get(ctx, s.key(id)).Result()
	if err != nil {
		if err != redis.Nil {
			s.log.Warn("session store: redis get failed", "error", err, "session_id", id)
		}
		return nil, false
	}
	var rehydrated Session
	if err := json.Unmarshal([]byte(val), &rehydrated); err != nil {
		s.log.Warn("session store: corrupt cached session", "error", err, "session_id", id)
		return nil, false
	}
	s.mu.Lock()
	s.local[id] = &rehydrated
	s.mu.Unlock()
	return &rehydrated, true
}

// Touch persists the current in-memory state of sess to the cache
// tier; call after any mutation (AppendTurn, Transition) that should
// survive a rehydrate.
func (s *Store) Touch(ctx context.Context, sess *Session) error {
	return s.writeThrough(ctx, sess)
}

func (s *Store) writeThrough(ctx context.Context, sess *Session) error {
	if s.redis == nil {
		return nil
	}
	b, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session store: marshal: %w", err)
	}
	pipe := s.redis.Pipeline()
	pipe.Set(ctx, s.key(sess.ID), b, 0)
	pipe.Expire(ctx, s.key(sess.ID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn("session store: redis write-through failed", "error", err, "session_id", sess.ID)
		return nil // cache failures degrade silently, never surfaced to the caller
	}
	return nil
}

// Delete removes a session from both tiers immediately.
func (s *Store) Delete(ctx context.Context, id string) {
	s.mu.Lock()
	delete(s.local, id)
	if t, ok := s.pending[id]; ok {
		t.Stop()
		delete(s.pending, id)
	}
	s.mu.Unlock()

	if s.redis != nil {
		if err := s.redis.Del(ctx, s.key(id)).Err(); err != nil {
			s.log.Warn("session store: redis delete failed", "error", err, "session_id", id)
		}
	}
}

// ScheduleGraceDelete arms a deferred delete for id, cancellable by any
// subsequent Get on the same id before it fires.
func (s *Store) ScheduleGraceDelete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.pending[id]; ok {
		t.Stop()
	}
	s.pending[id] = time.AfterFunc(GraceDeletePeriod, func() {
		s.Delete(context.Background(), id)
	})
}

func (s *Store) cancelGraceDelete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.pending[id]; ok {
		t.Stop()
		delete(s.pending, id)
	}
}

// Len returns the number of locally-resident sessions, for the /ready
// admin endpoint.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.local)
}
