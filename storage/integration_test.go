package storage

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/azzy787/task-board-mvp/domain"
)

func exerciseStore(t *testing.T, ctx context.Context, s backend) {
	t.Helper()
	if _, err := s.GetMeta(ctx); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected no meta yet, got %v", err)
	}
	a, err := s.CreateTask(ctx, domain.Task{Title: "a", Status: domain.StatusTodo, Priority: domain.PriorityLow, Order: 1000})
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	b, err := s.CreateTask(ctx, domain.Task{Title: "b", Status: domain.StatusTodo, Priority: domain.PriorityHigh, Order: 2000})
	if err != nil {
		t.Fatalf("create b: %v", err)
	}
	status, order := domain.StatusDone, 1500.5
	if err := s.UpdateTask(ctx, a.ID, domain.TaskPatch{Status: &status, Order: &order}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := s.UpdateTask(ctx, "missing-"+uuid.NewString(), domain.TaskPatch{Status: &status}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	recs, err := s.ListTasks(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	for _, r := range recs {
		if r.ID == a.ID {
			task := r.Task()
			if task.Status != domain.StatusDone || task.Order != 1500.5 || task.UpdatedAt == nil {
				t.Fatalf("unexpected updated task %+v", task)
			}
		}
	}
	if err := s.PutMeta(ctx, domain.BoardMeta{Title: "Sprint"}); err != nil {
		t.Fatalf("put meta: %v", err)
	}
	if meta, err := s.GetMeta(ctx); err != nil || meta.Title != "Sprint" {
		t.Fatalf("unexpected meta %+v %v", meta, err)
	}
	if err := s.DeleteTasks(ctx, []string{a.ID, b.ID, "missing-" + uuid.NewString()}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if recs, _ := s.ListTasks(ctx); len(recs) != 0 {
		t.Fatalf("expected empty board, got %d", len(recs))
	}
}

func TestTablesIntegration(t *testing.T) {
	conn := os.Getenv("AZURE_TEST_CONNECTION_STRING")
	if conn == "" {
		t.Skip("AZURE_TEST_CONNECTION_STRING not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := CreateTables(ctx, conn, "boardtasks", "boardmeta"); err != nil {
		t.Fatalf("create tables: %v", err)
	}
	s, err := NewTables(conn, "it-"+uuid.NewString(), "boardtasks", "boardmeta", nil)
	if err != nil {
		t.Fatalf("new tables: %v", err)
	}
	exerciseStore(t, ctx, s)
}

func TestMongoIntegration(t *testing.T) {
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	s, err := NewMongo(ctx, uri, "board_test", "it-"+uuid.NewString(), nil)
	if err != nil {
		t.Fatalf("new mongo: %v", err)
	}
	defer s.Close(context.Background())
	if err := s.EnsureIndexes(ctx); err != nil {
		t.Fatalf("indexes: %v", err)
	}
	exerciseStore(t, ctx, s)
}
