package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/retailcore/checkout-engine/internal/redisx"
)

var ErrStoreUnavailable = errors.New("cart store unavailable")

// LineStore is the durable client-local cart cache: session id to
// ordered lines, surviving process restarts within the TTL.
type LineStore interface {
	Get(ctx context.Context, sessionID string) ([]Line, error)
	Save(ctx context.Context, sessionID string, lines []Line) error
	Delete(ctx context.Context, sessionID string) error
}

// RedisLines stores each session's lines as a JSON array. TTL gets a
// little jitter so a burst of carts does not expire at once.
type RedisLines struct {
	Client  *redis.Client
	BaseTTL time.Duration
}

func (r *RedisLines) Get(ctx context.Context, sessionID string) ([]Line, error) {
	data, err := r.Client.Get(ctx, lineKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get: %v", ErrStoreUnavailable, err)
	}
	var lines []Line
	if err := json.Unmarshal(data, &lines); err != nil {
		return nil, fmt.Errorf("unmarshal cart lines: %w", err)
	}
	return lines, nil
}

func (r *RedisLines) Save(ctx context.Context, sessionID string, lines []Line) error {
	b, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("marshal cart lines: %w", err)
	}
	jitter := time.Duration(rand.Intn(60)) * time.Second
	if err := r.Client.Set(ctx, lineKey(sessionID), b, r.BaseTTL+jitter).Err(); err != nil {
		return fmt.Errorf("%w: set: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (r *RedisLines) Delete(ctx context.Context, sessionID string) error {
	if err := r.Client.Del(ctx, lineKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("%w: del: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func lineKey(sessionID string) string {
	return fmt.Sprintf(redisx.KeyCartLines, sessionID)
}

// MemoryLines is the in-process LineStore for tests.
type MemoryLines struct {
	mu    sync.Mutex
	lines map[string][]Line
}

func NewMemoryLines() *MemoryLines {
	return &MemoryLines{lines: make(map[string][]Line)}
}

func (m *MemoryLines) Get(_ context.Context, sessionID string) ([]Line, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Line, len(m.lines[sessionID]))
	copy(out, m.lines[sessionID])
	return out, nil
}

func (m *MemoryLines) Save(_ context.Context, sessionID string, lines []Line) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]Line, len(lines))
	copy(cp, lines)
	m.lines[sessionID] = cp
	return nil
}

func (m *MemoryLines) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.lines, sessionID)
	return nil
}
