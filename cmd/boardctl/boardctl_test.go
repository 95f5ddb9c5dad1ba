package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/azzy787/task-board-mvp/api"
	"github.com/azzy787/task-board-mvp/board"
	"github.com/azzy787/task-board-mvp/config"
	"github.com/azzy787/task-board-mvp/domain"
	"github.com/azzy787/task-board-mvp/identity"
)

func TestReadAccounts(t *testing.T) {
	accounts, err := readAccounts(strings.NewReader(`
users:
  - email: ana@example.com
    name: Ana
    password: s3cret
  - email: bo@example.com
    password: pw
    disabled: true
`))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(accounts) != 2 || accounts[0].Name != "Ana" || !accounts[1].Disabled {
		t.Fatalf("unexpected accounts %+v", accounts)
	}

	if _, err := readAccounts(strings.NewReader("users:\n  - email: x@example.com\n")); err == nil {
		t.Fatalf("expected missing password to fail")
	}
	if _, err := readAccounts(strings.NewReader("users:\n  - email: x@example.com\n    pass: y\n")); err == nil {
		t.Fatalf("expected unknown field to fail")
	}
}

func TestImportAccounts(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	local := identity.NewLocal(client, identity.Config{Secret: []byte("s")})

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())

	err = importAccounts(cmd, local, []identity.Account{{Email: "ana@example.com", Password: "s3cret"}})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(out.String(), "ana@example.com\tactive") {
		t.Fatalf("unexpected output %q", out.String())
	}
	if _, err := local.SignIn(context.Background(), "ana@example.com", "s3cret"); err != nil {
		t.Fatalf("imported user cannot sign in: %v", err)
	}
}

func TestPrintBoard(t *testing.T) {
	v := board.NewViewState()
	v.Title = "Sprint"
	due := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	v.Render([]domain.Record{
		{ID: "a", Fields: map[string]any{"title": "Write docs", "status": "todo", "priority": "high", "assignee": "Ana", "due_date": due, "order": 1.0}},
		{ID: "b", Fields: map[string]any{"title": "Ship", "status": "done", "priority": "low", "order": 2.0}},
	})
	v.SetFilter(board.Filter{Status: domain.StatusTodo})

	var out bytes.Buffer
	printBoard(&out, v.Snapshot())
	got := out.String()
	if !strings.Contains(got, "To Do (1)") || !strings.Contains(got, "[high] Write docs @Ana due 2024-05-01") {
		t.Fatalf("unexpected board:\n%s", got)
	}
	if strings.Contains(got, "Ship") {
		t.Fatalf("filtered card printed:\n%s", got)
	}
}

func TestSignTokenIsAcceptedByAPI(t *testing.T) {
	cfg := config.Config{AuthSecret: "cli-secret", AuthIssuer: "board"}
	token, err := signToken(cfg, "load-user-1", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	auth := api.NewAuth(api.AuthOptions{Secret: []byte("cli-secret"), Issuer: "board"})
	p, err := auth.PrincipalFromBearer(context.Background(), token)
	if err != nil || p.UserID != "load-user-1" || p.TokenID == "" {
		t.Fatalf("unexpected principal %+v err %v", p, err)
	}

	if _, err := signToken(config.Config{}, "x", time.Hour, time.Now()); err == nil {
		t.Fatalf("expected missing secret to fail")
	}
}

func TestRunStreamLoadCountsEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(": ping\n\ndata: {}\n\ndata: {}\n\n"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	stats := runStreamLoad(ctx, srv.Client(), srv.URL, "tok", 2)
	if stats.events.Load() != 4 {
		t.Fatalf("expected 4 events, got %d", stats.events.Load())
	}
	if stats.attempts.Load() != 2 || stats.failures.Load() != 2 {
		t.Fatalf("expected one closed attempt per connection, got %d/%d", stats.attempts.Load(), stats.failures.Load())
	}

	ctx, cancel = context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if stats := runStreamLoad(ctx, srv.Client(), srv.URL, "", 1); stats.events.Load() != 0 || stats.failureRate() != 1 {
		t.Fatalf("expected unauthorized attempts to fail, got %d events rate %v", stats.events.Load(), stats.failureRate())
	}
}
