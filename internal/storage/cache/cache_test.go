package cache

import (
	"context"
	"testing"
	"time"

	"scholar-agent/pkg/config"
)

func TestNewCache_DefaultsToMemory(t *testing.T) {
	ctx := context.Background()
	for _, typ := range []string{"", "memory"} {
		store, err := NewCache(ctx, config.CacheConfig{Type: typ}, nil)
		if err != nil {
			t.Fatalf("NewCache(%q): %v", typ, err)
		}
		if _, ok := store.(*MemoryStore); !ok {
			t.Errorf("NewCache(%q): got %T, want *MemoryStore", typ, store)
		}
	}
}

func TestNewCache_RedisFallback(t *testing.T) {
	// 指向一个没人监听的端口，连接被拒后应回退内存而不是报错
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	store, err := NewCache(ctx, config.CacheConfig{Type: "redis", Addr: "127.0.0.1:1"}, nil)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	if _, ok := store.(*MemoryStore); !ok {
		t.Errorf("got %T, want memory fallback", store)
	}
}

func TestNewCache_UnknownType(t *testing.T) {
	if _, err := NewCache(context.Background(), config.CacheConfig{Type: "memcached"}, nil); err == nil {
		t.Error("unknown cache type should error")
	}
}

func TestRedisOptions(t *testing.T) {
	opts := redisOptions(config.CacheConfig{Addr: "redis:6380", DB: 3, Password: "pw"})
	if opts.Addr != "redis:6380" || opts.DB != 3 || opts.Password != "pw" {
		t.Errorf("options: %+v", opts)
	}
	if got := redisOptions(config.CacheConfig{}).Addr; got != "localhost:6379" {
		t.Errorf("default addr: %q", got)
	}
}
