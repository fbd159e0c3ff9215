package config

import (
	"reflect"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"HTTP_ADDR", "HOT_CACHE_TTL", "FETCH_CHUNK_SIZE", "CACHE_INVALIDATION", "KAFKA_BROKERS"} {
		t.Setenv(k, "")
	}
	cfg := Load()

	if cfg.HTTPAddr != ":8081" {
		t.Errorf("expected :8081, got %s", cfg.HTTPAddr)
	}
	if cfg.HotCacheTTL != 8*time.Second {
		t.Errorf("expected 8s hot ttl, got %s", cfg.HotCacheTTL)
	}
	if cfg.StaleCacheTTL != 30*time.Second {
		t.Errorf("expected 30s stale ttl, got %s", cfg.StaleCacheTTL)
	}
	if cfg.FetchChunkSize != 50 {
		t.Errorf("expected chunk size 50, got %d", cfg.FetchChunkSize)
	}
	if !cfg.InvalidationEnabled {
		t.Error("expected invalidation enabled by default")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("HOT_CACHE_TTL", "2s")
	t.Setenv("FETCH_CHUNK_SIZE", "25")
	t.Setenv("CACHE_INVALIDATION", "false")
	t.Setenv("KAFKA_BROKERS", "k1:9092, ,k2:9092")
	t.Setenv("HOT_CACHE_MAX_ENTRIES", "-3")

	cfg := Load()

	if cfg.HotCacheTTL != 2*time.Second {
		t.Errorf("expected 2s, got %s", cfg.HotCacheTTL)
	}
	if cfg.FetchChunkSize != 25 {
		t.Errorf("expected 25, got %d", cfg.FetchChunkSize)
	}
	if cfg.InvalidationEnabled {
		t.Error("expected invalidation disabled")
	}
	if !reflect.DeepEqual(cfg.KafkaBrokers, []string{"k1:9092", "k2:9092"}) {
		t.Errorf("unexpected brokers: %v", cfg.KafkaBrokers)
	}
	if cfg.HotCacheMaxItems != 200 {
		t.Errorf("negative override should fall back to default, got %d", cfg.HotCacheMaxItems)
	}
}
