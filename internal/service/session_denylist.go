package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionDenylist guarda jti de sesiones revocadas hasta su expiracion natural.
// El token de sesion es una asercion firmada sin estado; el denylist hace
// efectivo el logout del lado del servidor.
type SessionDenylist interface {
	Revoke(jti string, ttl time.Duration) error
	IsRevoked(jti string) (bool, error)
}

type memorySessionDenylist struct {
	mu    sync.Mutex
	items map[string]time.Time
}

func NewMemorySessionDenylist() SessionDenylist {
	return &memorySessionDenylist{
		items: make(map[string]time.Time),
	}
}

func (s *memorySessionDenylist) Revoke(jti string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(jti) == "" {
		return nil
	}
	s.items[jti] = time.Now().UTC().Add(ttl)
	return nil
}

func (s *memorySessionDenylist) IsRevoked(jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.items[jti]
	if !ok {
		return false, nil
	}
	if time.Now().UTC().After(exp) {
		delete(s.items, jti)
		return false, nil
	}
	return true, nil
}

type redisKVClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
}

type redisSessionDenylist struct {
	client redisKVClient
	prefix string
}

func NewRedisSessionDenylist(client *redis.Client) SessionDenylist {
	if client == nil {
		return nil
	}
	return &redisSessionDenylist{
		client: client,
		prefix: "auth:denylist:",
	}
}

func (s *redisSessionDenylist) Revoke(jti string, ttl time.Duration) error {
	if strings.TrimSpace(jti) == "" {
		return nil
	}
	if ttl <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	return s.client.Set(ctx, s.prefix+jti, "1", ttl).Err()
}

func (s *redisSessionDenylist) IsRevoked(jti string) (bool, error) {
	if strings.TrimSpace(jti) == "" {
		return false, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	n, err := s.client.Exists(ctx, s.prefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
