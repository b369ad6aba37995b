package eviction

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type recordingEvictor struct {
	mu      sync.Mutex
	evicted []string
}

func (r *recordingEvictor) Evict(configID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evicted = append(r.evicted, configID)
}

func (r *recordingEvictor) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.evicted...)
}

func newTestRedisClient(t *testing.T) *goredis.Client {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := goredis.NewClient(&goredis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		_ = rdb.Close()
	})

	return rdb
}

func TestEvictionRoundTrip(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)

	configCache := &recordingEvictor{}
	storageCache := &recordingEvictor{}

	sub, err := NewSubscriber(rdb, "config-topic", "storage-topic", zap.NewNop())
	if err != nil {
		t.Fatalf("NewSubscriber() error = %v", err)
	}
	sub.RegisterConfigEvictor(configCache)
	sub.RegisterStorageEvictor(storageCache)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = sub.Run(ctx)
	}()
	time.Sleep(100 * time.Millisecond)

	pub, err := NewPublisher(rdb, "config-topic", "storage-topic")
	if err != nil {
		t.Fatalf("NewPublisher() error = %v", err)
	}
	if err := pub.EvictConfig(context.Background(), "cfg-1"); err != nil {
		t.Fatalf("EvictConfig() error = %v", err)
	}
	if err := pub.EvictStorageConfig(context.Background(), "fs-1"); err != nil {
		t.Fatalf("EvictStorageConfig() error = %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if len(configCache.snapshot()) == 1 && len(storageCache.snapshot()) == 1 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	if got := configCache.snapshot(); len(got) != 1 || got[0] != "cfg-1" {
		t.Errorf("config evictions = %v, want [cfg-1]", got)
	}
	if got := storageCache.snapshot(); len(got) != 1 || got[0] != "fs-1" {
		t.Errorf("storage evictions = %v, want [fs-1]", got)
	}
}

func TestMalformedEventIsIgnored(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)

	cache := &recordingEvictor{}
	sub, _ := NewSubscriber(rdb, "config-topic", "storage-topic", zap.NewNop())
	sub.RegisterConfigEvictor(cache)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = sub.Run(ctx)
	}()
	time.Sleep(100 * time.Millisecond)

	if err := rdb.Publish(context.Background(), "config-topic", "not-json").Err(); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := rdb.Publish(context.Background(), "config-topic", `{"notificationConfigId":""}`).Err(); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	time.Sleep(200 * time.Millisecond)
	if got := cache.snapshot(); len(got) != 0 {
		t.Errorf("evictions = %v, want none", got)
	}
}
