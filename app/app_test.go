package app

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/azzy787/task-board-mvp/config"
	"github.com/azzy787/task-board-mvp/domain"
)

func memoryConfig(redisAddr string) config.Config {
	return config.Config{
		BoardID:           "b1",
		Backend:           config.BackendMemory,
		RedisConnStr:      "redis://" + redisAddr,
		CacheTTL:          time.Minute,
		UpdatesChannel:    "board-updates",
		RefreshSchedule:   "@every 1h",
		AuthMode:          config.AuthLocal,
		AuthSecret:        "app-secret",
		AuthIssuer:        "board",
		SessionTTL:        time.Hour,
		AttemptsPerMinute: 5,
	}
}

func TestNewMemoryBoardWithLocalAuth(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a, err := New(ctx, memoryConfig(mr.Addr()), prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer a.Close(context.Background())

	deps := a.Deps()
	if deps.Sessions == nil || deps.Auth == nil || deps.Live == nil || deps.Board == nil {
		t.Fatalf("expected all dependencies wired, got %+v", deps)
	}

	go func() { _ = a.Run(ctx) }()
	sub := a.Hub.Subscribe(ctx)
	defer sub.Cancel()

	create := time.NewTicker(50 * time.Millisecond)
	defer create.Stop()
	for {
		select {
		case <-ctx.Done():
			t.Fatalf("no snapshot with tasks arrived")
		case <-create.C:
			if _, err := a.Service.Create(ctx, domain.TaskInput{Title: "live"}); err != nil {
				t.Fatalf("create: %v", err)
			}
		case snap := <-sub.C:
			if snap.Err != nil {
				t.Fatalf("snapshot error: %v", snap.Err)
			}
			if len(snap.Records) > 0 {
				return
			}
		}
	}
}

func TestNewLocalAuthRequiresRedis(t *testing.T) {
	cfg := memoryConfig("")
	cfg.RedisConnStr = ""
	if _, err := New(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected error without redis")
	}
}
