package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LOCAL_AUTH_SHARED_SECRET", "s")
	t.Setenv("REDIS_CONNECTION_STRING", "localhost:6379")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend != BackendMemory || cfg.BoardID != "default" || cfg.ListenAddr != ":8080" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.CacheTTL != 30*time.Second || cfg.SessionTTL != 12*time.Hour || cfg.AttemptsPerMinute != 5 {
		t.Fatalf("unexpected duration defaults %+v", cfg)
	}
}

func TestLoadCollectsErrors(t *testing.T) {
	t.Setenv("STORE_BACKEND", "tables")
	t.Setenv("CACHE_TTL", "soon")
	t.Setenv("LOGIN_ATTEMPTS_PER_MINUTE", "-1")
	t.Setenv("LOCAL_AUTH_SHARED_SECRET", "")
	_, err := Load()
	if err == nil {
		t.Fatalf("expected error")
	}
	for _, want := range []string{"STORAGE_CONNECTION_STRING", "CACHE_TTL", "LOGIN_ATTEMPTS_PER_MINUTE", "LOCAL_AUTH_SHARED_SECRET"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in %v", want, err)
		}
	}
}

func TestLoadReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.env")
	content := "BOARD_ID=team-a\nAUTH_MODE=jwks\nAUTH0_AUDIENCE=api\nAUTH0_DOMAIN=example.auth0.com\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	for _, k := range []string{"BOARD_ID", "AUTH_MODE", "AUTH0_AUDIENCE", "AUTH0_DOMAIN"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BoardID != "team-a" || cfg.AuthMode != AuthJWKS {
		t.Fatalf("expected values from env file, got %+v", cfg)
	}
}

func TestRedisOptions(t *testing.T) {
	opts, err := RedisOptions("redis://:pw@localhost:6380/2")
	if err != nil || opts.Addr != "localhost:6380" || opts.Password != "pw" || opts.DB != 2 {
		t.Fatalf("unexpected url options %+v %v", opts, err)
	}
	opts, err = RedisOptions("cache.redis.example.net:6380,password=abc,ssl=True,abortConnect=False")
	if err != nil || opts.Addr != "cache.redis.example.net:6380" || opts.Password != "abc" || opts.TLSConfig == nil {
		t.Fatalf("unexpected azure options %+v %v", opts, err)
	}
	if _, err := RedisOptions(""); err == nil {
		t.Fatalf("expected error for empty connection string")
	}
}
