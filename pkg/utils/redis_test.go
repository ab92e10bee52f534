package utils

import (
	"context"
	"testing"
)

func TestOpenRedis_RequiresAddr(t *testing.T) {
	if _, err := OpenRedis(context.Background(), RedisConfig{}); err == nil {
		t.Fatalf("expected error for missing addr")
	}
}

func TestRedisConfig_Defaults(t *testing.T) {
	cfg := RedisConfig{Addr: "localhost:6379"}.withDefaults()
	if cfg.PoolSize != 20 {
		t.Fatalf("expected default pool size 20, got %d", cfg.PoolSize)
	}
	if cfg.PingTimeout <= 0 {
		t.Fatalf("expected a default ping timeout")
	}
}
