package board

import (
	"context"

	"github.com/azzy787/task-board-mvp/domain"
)

// Store persists the tasks and metadata of one board.
type Store interface {
	ListTasks(ctx context.Context) ([]domain.Record, error)
	CreateTask(ctx context.Context, task domain.Task) (domain.Record, error)
	// UpdateTask merges the patch into an existing task and stamps updated_at.
	UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) error
	// DeleteTasks removes all ids in one batch; missing ids are ignored.
	DeleteTasks(ctx context.Context, ids []string) error
	// GetMeta returns domain.ErrNotFound when the board has no metadata yet.
	GetMeta(ctx context.Context) (domain.BoardMeta, error)
	PutMeta(ctx context.Context, meta domain.BoardMeta) error
}
