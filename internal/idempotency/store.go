package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultTTL は記録したレスポンスを保持する期間です
const DefaultTTL = 24 * time.Hour

const keyPrefix = "idempotency:"

// ErrInFlight は同じキーのリクエストが処理中であることを表します
var ErrInFlight = errors.New("a request with this idempotency key is still in progress")

// Response は記録したレスポンスです
type Response struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

type entry struct {
	Done     bool      `json:"done"`
	Response *Response `json:"response,omitempty"`
}

// Store は冪等キーごとのレスポンスを保持します
type Store interface {
	// Claim はキーを処理中として確保します
	// 既に完了している場合は記録したレスポンスを返し、処理中の場合は ErrInFlight を返します
	Claim(ctx context.Context, key string) (*Response, error)
	// Complete はレスポンスを記録します
	Complete(ctx context.Context, key string, resp Response) error
	// Release はキーを解放し、同じキーで再試行できるようにします
	Release(ctx context.Context, key string) error
}

// NewRedisClient はREDIS_URLからクライアントを作成します
// redis:// 形式のURLとホスト:ポート形式の両方を受け付けます
func NewRedisClient(url string) (*redis.Client, error) {
	if strings.HasPrefix(url, "redis://") || strings.HasPrefix(url, "rediss://") {
		opts, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{
		Addr: url,
		DB:   0,
	}), nil
}

// RedisStore はRedisを使ったStoreです。複数のサーバーで同じキーを共有できます
type RedisStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisStore(client redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Claim(ctx context.Context, key string) (*Response, error) {
	pending, err := json.Marshal(entry{})
	if err != nil {
		return nil, err
	}

	ok, err := s.client.SetNX(ctx, keyPrefix+key, pending, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to claim idempotency key: %w", err)
	}
	if ok {
		return nil, nil
	}

	raw, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// 期限切れと競合した場合は処理中として扱う
			return nil, ErrInFlight
		}
		return nil, fmt.Errorf("failed to read idempotency key: %w", err)
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("failed to decode idempotency record: %w", err)
	}
	if !e.Done || e.Response == nil {
		return nil, ErrInFlight
	}
	return e.Response, nil
}

func (s *RedisStore) Complete(ctx context.Context, key string, resp Response) error {
	raw, err := json.Marshal(entry{Done: true, Response: &resp})
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, keyPrefix+key, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to record idempotent response: %w", err)
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}

// MemoryStore はプロセス内で完結するStoreです。REDIS_URLが未設定の場合に使います
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

type memoryEntry struct {
	entry
	expiresAt time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		now:     time.Now,
		entries: map[string]memoryEntry{},
	}
}

func (s *MemoryStore) Claim(ctx context.Context, key string) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.entries[key]; ok && now.Before(e.expiresAt) {
		if !e.Done {
			return nil, ErrInFlight
		}
		resp := *e.Response
		return &resp, nil
	}

	s.entries[key] = memoryEntry{expiresAt: now.Add(s.ttl)}
	return nil, nil
}

func (s *MemoryStore) Complete(ctx context.Context, key string, resp Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{
		entry:     entry{Done: true, Response: &resp},
		expiresAt: s.now().Add(s.ttl),
	}
	return nil
}

func (s *MemoryStore) Release(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}
