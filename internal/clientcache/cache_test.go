package clientcache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kursadbilgin/notification-hub/internal/domain"
	"go.uber.org/zap"
)

type fakeClient struct {
	host string
}

func testConfig(id string, props map[string]any) domain.ProviderConfig {
	return domain.ProviderConfig{
		ID:         id,
		ClientName: "acme",
		Channel:    domain.ChannelEmail,
		Provider:   "smtp",
		Properties: props,
		Active:     true,
	}
}

func TestHashPropertiesStableAcrossKeyOrder(t *testing.T) {
	t.Parallel()

	a, err := HashProperties(map[string]any{"host": "smtp.acme.io", "port": 587, "nested": map[string]any{"b": 2, "a": 1}})
	if err != nil {
		t.Fatalf("HashProperties() error = %v", err)
	}
	b, err := HashProperties(map[string]any{"nested": map[string]any{"a": 1, "b": 2}, "port": 587, "host": "smtp.acme.io"})
	if err != nil {
		t.Fatalf("HashProperties() error = %v", err)
	}
	if a != b {
		t.Fatalf("hash differs for equal maps: %s vs %s", a, b)
	}

	changed, err := HashProperties(map[string]any{"host": "smtp.other.io", "port": 587, "nested": map[string]any{"a": 1, "b": 2}})
	if err != nil {
		t.Fatalf("HashProperties() error = %v", err)
	}
	if changed == a {
		t.Fatal("hash unchanged after property change")
	}
}

func TestGetClientCachesUnchangedConfig(t *testing.T) {
	t.Parallel()

	builds := 0
	cache, err := New("email", func(cfg domain.ProviderConfig) (*fakeClient, error) {
		builds++
		return &fakeClient{host: cfg.StringProperty("host")}, nil
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer cache.Close()

	cfg := testConfig("cfg-1", map[string]any{"host": "smtp.acme.io"})

	first, err := cache.GetClient(context.Background(), cfg)
	if err != nil {
		t.Fatalf("GetClient() error = %v", err)
	}
	second, err := cache.GetClient(context.Background(), cfg)
	if err != nil {
		t.Fatalf("GetClient() error = %v", err)
	}

	if builds != 1 {
		t.Fatalf("builds = %d, want 1", builds)
	}
	if first != second {
		t.Fatal("expected the same cached client instance")
	}
}

func TestGetClientRebuildsOnHashChange(t *testing.T) {
	t.Parallel()

	builds := 0
	cache, err := New("email", func(cfg domain.ProviderConfig) (*fakeClient, error) {
		builds++
		return &fakeClient{host: cfg.StringProperty("host")}, nil
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer cache.Close()

	if _, err := cache.GetClient(context.Background(), testConfig("cfg-1", map[string]any{"host": "a"})); err != nil {
		t.Fatalf("GetClient() error = %v", err)
	}

	rebuilt, err := cache.GetClient(context.Background(), testConfig("cfg-1", map[string]any{"host": "b"}))
	if err != nil {
		t.Fatalf("GetClient() error = %v", err)
	}

	if builds != 2 {
		t.Fatalf("builds = %d, want 2", builds)
	}
	if rebuilt.host != "b" {
		t.Fatalf("rebuilt client host = %s, want b", rebuilt.host)
	}
}

func TestEvictForcesRebuild(t *testing.T) {
	t.Parallel()

	builds := 0
	cache, err := New("email", func(cfg domain.ProviderConfig) (*fakeClient, error) {
		builds++
		return &fakeClient{}, nil
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer cache.Close()

	cfg := testConfig("cfg-1", map[string]any{"host": "a"})
	if _, err := cache.GetClient(context.Background(), cfg); err != nil {
		t.Fatalf("GetClient() error = %v", err)
	}

	cache.Evict("cfg-1")
	if cache.Len() != 0 {
		t.Fatalf("Len() = %d after evict, want 0", cache.Len())
	}

	if _, err := cache.GetClient(context.Background(), cfg); err != nil {
		t.Fatalf("GetClient() error = %v", err)
	}
	if builds != 2 {
		t.Fatalf("builds = %d, want 2", builds)
	}
}

func TestIdleEntriesExpire(t *testing.T) {
	t.Parallel()

	current := time.Now()
	var mu sync.Mutex
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}

	builds := 0
	cache, err := New("email", func(cfg domain.ProviderConfig) (*fakeClient, error) {
		builds++
		return &fakeClient{}, nil
	}, zap.NewNop(), WithIdleTTL[*fakeClient](time.Minute), WithClock[*fakeClient](now))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer cache.Close()

	cfg := testConfig("cfg-1", map[string]any{"host": "a"})
	if _, err := cache.GetClient(context.Background(), cfg); err != nil {
		t.Fatalf("GetClient() error = %v", err)
	}

	mu.Lock()
	current = current.Add(2 * time.Minute)
	mu.Unlock()

	if _, err := cache.GetClient(context.Background(), cfg); err != nil {
		t.Fatalf("GetClient() error = %v", err)
	}
	if builds != 2 {
		t.Fatalf("builds = %d, want 2 (idle entry must rebuild)", builds)
	}
}

func TestPrivacyFallbackConfigNeverCached(t *testing.T) {
	t.Parallel()

	builds := 0
	cache, err := New("email", func(cfg domain.ProviderConfig) (*fakeClient, error) {
		builds++
		return &fakeClient{}, nil
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer cache.Close()

	inline := testConfig("", map[string]any{"host": "a"})
	for i := 0; i < 3; i++ {
		if _, err := cache.GetClient(context.Background(), inline); err != nil {
			t.Fatalf("GetClient() error = %v", err)
		}
	}

	if builds != 3 {
		t.Fatalf("builds = %d, want 3", builds)
	}
	if cache.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", cache.Len())
	}
}

func TestConcurrentHitsOnWarmEntry(t *testing.T) {
	t.Parallel()

	builds := 0
	cache, err := New("email", func(cfg domain.ProviderConfig) (*fakeClient, error) {
		builds++
		return &fakeClient{}, nil
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer cache.Close()

	cfg := testConfig("cfg-1", map[string]any{"host": "a"})
	if _, err := cache.GetClient(context.Background(), cfg); err != nil {
		t.Fatalf("GetClient() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if _, err := cache.GetClient(context.Background(), cfg); err != nil {
					t.Errorf("GetClient() error = %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if builds != 1 {
		t.Fatalf("builds = %d, want 1", builds)
	}
}

func TestConcurrentLookupsAreSafe(t *testing.T) {
	t.Parallel()

	cache, err := New("email", func(cfg domain.ProviderConfig) (*fakeClient, error) {
		return &fakeClient{}, nil
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer cache.Close()

	cfg := testConfig("cfg-1", map[string]any{"host": "a"})

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.GetClient(context.Background(), cfg); err != nil {
				t.Errorf("GetClient() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if cache.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", cache.Len())
	}
}
