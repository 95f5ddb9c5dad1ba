package api

import (
	"context"

	"github.com/azzy787/task-board-mvp/board"
	"github.com/azzy787/task-board-mvp/domain"
	"github.com/azzy787/task-board-mvp/identity"
	"github.com/azzy787/task-board-mvp/subscription"
)

// Board runs board operations for handlers.
type Board interface {
	Tasks(ctx context.Context) ([]domain.Task, error)
	Create(ctx context.Context, in domain.TaskInput) (domain.Task, error)
	Update(ctx context.Context, id string, p domain.TaskPatch) error
	DeleteTasks(ctx context.Context, ids []string) (int, error)
	Move(ctx context.Context, id string, status domain.Status, beforeID string) (domain.Task, error)
	MoveAt(ctx context.Context, id string, status domain.Status, layout []board.CardBox, y float64) (domain.Task, error)
	Refresh(ctx context.Context) (board.Report, error)
	Title(ctx context.Context) (string, error)
	SetTitle(ctx context.Context, title string) (string, error)
	View(ctx context.Context, f board.Filter) (*board.ViewState, error)
	RenderView(ctx context.Context, recs []domain.Record, f board.Filter) *board.ViewState
}

// Authenticator resolves the caller from an Authorization header.
type Authenticator interface {
	PrincipalFromAuthHeader(ctx context.Context, header string) (Principal, error)
}

// Sessions signs users in and out.
type Sessions interface {
	SignIn(ctx context.Context, email, password string) (identity.Session, error)
	SignOut(ctx context.Context, token string) error
	CurrentUser(ctx context.Context, token string) (identity.User, error)
}

// Subscriber opens live queries.
type Subscriber interface {
	Subscribe(ctx context.Context) *subscription.Subscription
}

// Deps are the collaborators of the HTTP surface. Sessions and Live may be
// nil, which leaves their routes unregistered. Without Idempotency the
// Idempotency-Key header is ignored.
type Deps struct {
	Board       Board
	Auth        Authenticator
	Sessions    Sessions
	Live        Subscriber
	Idempotency Idempotency
}
