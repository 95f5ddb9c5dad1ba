package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/azzy787/task-board-mvp/board"
	"github.com/azzy787/task-board-mvp/domain"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, deps Deps, logger *log.Logger) {
	svc, auth := deps.Board, deps.Auth

	e.GET("/api/tasks", getTasks(svc, auth, logger))
	e.POST("/api/tasks", postTask(svc, auth, deps.Idempotency, logger))
	e.PATCH("/api/tasks/:id", patchTask(svc, auth, logger))
	e.DELETE("/api/tasks/:id", deleteTask(svc, auth, logger))
	e.POST("/api/tasks/batch-delete", batchDelete(svc, auth, logger))
	e.POST("/api/tasks/:id/move", moveTask(svc, auth, logger))
	e.POST("/api/refresh", postRefresh(svc, auth, logger))
	e.GET("/api/board", getBoard(svc, auth, logger))
	e.GET("/api/board/title", getTitle(svc, auth, logger))
	e.PUT("/api/board/title", putTitle(svc, auth, logger))

	if deps.Sessions != nil {
		e.POST("/api/session", postSession(deps.Sessions, logger))
		e.GET("/api/session", getSession(deps.Sessions, auth, logger))
		e.DELETE("/api/session", deleteSession(deps.Sessions, auth, logger))
	}
	if deps.Live != nil {
		e.GET("/api/stream", streamBoard(svc, deps.Live, auth))
	}
	e.GET("/healthz", healthz())
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

type operation func(ctx context.Context, p Principal, m *requestMetrics) error

// authorized traces the request, authenticates the bearer token and runs op.
func authorized(c echo.Context, name string, auth Authenticator, logger *log.Logger, op operation) (err error) {
	m, ctx := newRequestMetrics(c.Request().Context(), logger, name, c.Path())
	c.SetRequest(c.Request().WithContext(ctx))
	defer func() {
		m.Log(c.Response().Status, err)
	}()

	authStart := time.Now()
	p, authErr := auth.PrincipalFromAuthHeader(ctx, c.Request().Header.Get(echo.HeaderAuthorization))
	m.ObserveAuth(time.Since(authStart))
	if authErr != nil {
		return unauthorized(c, m)
	}
	return op(ctx, p, m)
}

func getTasks(svc Board, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		return authorized(c, "tasks.list", auth, logger, func(ctx context.Context, _ Principal, m *requestMetrics) error {
			status := domain.Status(strings.TrimSpace(c.QueryParam("status")))
			if status != "" && !status.Valid() {
				return writeError(c, m, &domain.ValidationError{Field: "status", Message: "Unknown status " + string(status)})
			}

			start := time.Now()
			tasks, err := svc.Tasks(ctx)
			m.ObserveStore(time.Since(start))
			if err != nil {
				return writeError(c, m, err)
			}
			if status != "" {
				kept := tasks[:0]
				for _, t := range tasks {
					if t.Status == status {
						kept = append(kept, t)
					}
				}
				tasks = kept
			}
			m.Set("tasks_returned", len(tasks))
			return c.JSON(http.StatusOK, tasksResponse{Tasks: tasks})
		})
	}
}

type tasksResponse struct {
	Tasks []domain.Task `json:"tasks"`
}

type createRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Status      string   `json:"status"`
	Priority    string   `json:"priority"`
	Assignee    string   `json:"assignee"`
	DueDate     string   `json:"due_date"`
	Order       *float64 `json:"order"`
}

func (r createRequest) input() (domain.TaskInput, error) {
	in := domain.TaskInput{
		Title:       r.Title,
		Description: r.Description,
		Status:      domain.Status(r.Status),
		Priority:    domain.Priority(r.Priority),
		Assignee:    r.Assignee,
		Order:       r.Order,
	}
	due, err := parseDue(r.DueDate)
	if err != nil {
		return domain.TaskInput{}, err
	}
	in.DueDate = due
	return in, nil
}

func parseDue(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, ok := domain.ParseDate(raw)
	if !ok {
		return nil, &domain.ValidationError{Field: "due_date", Message: "Invalid due date"}
	}
	return &t, nil
}

func postTask(svc Board, auth Authenticator, idem Idempotency, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		return authorized(c, "tasks.create", auth, logger, func(ctx context.Context, p Principal, m *requestMetrics) error {
			var req createRequest
			if err := decodeBody(c, &req); err != nil {
				return writeError(c, m, err)
			}
			in, err := req.input()
			if err != nil {
				return writeError(c, m, err)
			}

			key := strings.TrimSpace(c.Request().Header.Get(HeaderIdempotencyKey))
			if idem == nil || key == "" {
				return createTask(ctx, c, svc, m, in)
			}
			m.Set("idempotency_key", true)
			claimed, err := idem.Claim(ctx, p.UserID, key)
			if err != nil {
				log.WithError(err).Warn("idempotency claim failed; creating without dedupe")
				return createTask(ctx, c, svc, m, in)
			}
			if !claimed {
				return replayCreate(ctx, c, idem, m, p.UserID, key)
			}

			start := time.Now()
			task, err := svc.Create(ctx, in)
			m.ObserveStore(time.Since(start))
			if err != nil {
				if rerr := idem.Release(ctx, p.UserID, key); rerr != nil {
					log.WithError(rerr).Warn("idempotency release failed")
				}
				return writeError(c, m, err)
			}
			if body, err := sonic.Marshal(task); err == nil {
				if err := idem.Complete(ctx, p.UserID, key, body); err != nil {
					log.WithError(err).Warn("idempotency complete failed")
				}
			}
			return c.JSON(http.StatusCreated, task)
		})
	}
}

func createTask(ctx context.Context, c echo.Context, svc Board, m *requestMetrics, in domain.TaskInput) error {
	start := time.Now()
	task, err := svc.Create(ctx, in)
	m.ObserveStore(time.Since(start))
	if err != nil {
		return writeError(c, m, err)
	}
	return c.JSON(http.StatusCreated, task)
}

// replayCreate answers a repeated create with the stored first response.
func replayCreate(ctx context.Context, c echo.Context, idem Idempotency, m *requestMetrics, scope, key string) error {
	m.Set("idempotent_replay", true)
	body, done, err := idem.Lookup(ctx, scope, key)
	if err != nil {
		return writeError(c, m, err)
	}
	if !done {
		m.SetErrorStage("idempotency")
		return c.JSON(http.StatusConflict, errorResponse{Message: "request with this key is still in progress"})
	}
	return c.JSONBlob(http.StatusOK, body)
}

// patchRequest is a field level edit. An empty due_date string or
// clear_due_date clears the due date.
type patchRequest struct {
	Title        *string  `json:"title"`
	Description  *string  `json:"description"`
	Status       *string  `json:"status"`
	Priority     *string  `json:"priority"`
	Assignee     *string  `json:"assignee"`
	DueDate      *string  `json:"due_date"`
	ClearDueDate bool     `json:"clear_due_date"`
	Order        *float64 `json:"order"`
}

func (r patchRequest) patch() (domain.TaskPatch, error) {
	p := domain.TaskPatch{
		Title:        r.Title,
		Description:  r.Description,
		Assignee:     r.Assignee,
		Order:        r.Order,
		ClearDueDate: r.ClearDueDate,
	}
	if r.Status != nil {
		s := domain.Status(*r.Status)
		p.Status = &s
	}
	if r.Priority != nil {
		pr := domain.Priority(*r.Priority)
		p.Priority = &pr
	}
	if r.DueDate != nil && !p.ClearDueDate {
		due, err := parseDue(*r.DueDate)
		if err != nil {
			return domain.TaskPatch{}, err
		}
		if due == nil {
			p.ClearDueDate = true
		} else {
			p.DueDate = due
		}
	}
	return p, nil
}

func patchTask(svc Board, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		return authorized(c, "tasks.update", auth, logger, func(ctx context.Context, _ Principal, m *requestMetrics) error {
			var req patchRequest
			if err := decodeBody(c, &req); err != nil {
				return writeError(c, m, err)
			}
			p, err := req.patch()
			if err != nil {
				return writeError(c, m, err)
			}
			start := time.Now()
			err = svc.Update(ctx, c.Param("id"), p)
			m.ObserveStore(time.Since(start))
			if err != nil {
				return writeError(c, m, err)
			}
			return c.NoContent(http.StatusNoContent)
		})
	}
}

type deleteResponse struct {
	Deleted int `json:"deleted"`
}

func deleteTask(svc Board, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		return authorized(c, "tasks.delete", auth, logger, func(ctx context.Context, _ Principal, m *requestMetrics) error {
			start := time.Now()
			n, err := svc.DeleteTasks(ctx, []string{c.Param("id")})
			m.ObserveStore(time.Since(start))
			if err != nil {
				return writeError(c, m, err)
			}
			return c.JSON(http.StatusOK, deleteResponse{Deleted: n})
		})
	}
}

type batchDeleteRequest struct {
	IDs []string `json:"ids"`
}

func batchDelete(svc Board, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		return authorized(c, "tasks.batch_delete", auth, logger, func(ctx context.Context, _ Principal, m *requestMetrics) error {
			var req batchDeleteRequest
			if err := decodeBody(c, &req); err != nil {
				return writeError(c, m, err)
			}
			start := time.Now()
			n, err := svc.DeleteTasks(ctx, req.IDs)
			m.ObserveStore(time.Since(start))
			if err != nil {
				return writeError(c, m, err)
			}
			m.Set("deleted", n)
			return c.JSON(http.StatusOK, deleteResponse{Deleted: n})
		})
	}
}

// moveRequest drops a task either before a known card or at a pointer
// position over the target column layout.
type moveRequest struct {
	Status   string          `json:"status"`
	BeforeID string          `json:"beforeId"`
	PointerY *float64        `json:"pointerY"`
	Layout   []board.CardBox `json:"layout"`
}

func moveTask(svc Board, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		return authorized(c, "tasks.move", auth, logger, func(ctx context.Context, _ Principal, m *requestMetrics) error {
			var req moveRequest
			if err := decodeBody(c, &req); err != nil {
				return writeError(c, m, err)
			}
			status := domain.Status(req.Status)
			m.Set("status", req.Status)

			start := time.Now()
			var (
				task domain.Task
				err  error
			)
			if req.PointerY != nil {
				task, err = svc.MoveAt(ctx, c.Param("id"), status, req.Layout, *req.PointerY)
			} else {
				task, err = svc.Move(ctx, c.Param("id"), status, req.BeforeID)
			}
			m.ObserveStore(time.Since(start))
			if err != nil {
				return writeError(c, m, err)
			}
			return c.JSON(http.StatusOK, task)
		})
	}
}

type refreshResponse struct {
	board.Report
	Message string `json:"message,omitempty"`
}

func postRefresh(svc Board, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		return authorized(c, "refresh", auth, logger, func(ctx context.Context, _ Principal, m *requestMetrics) error {
			start := time.Now()
			rep, err := svc.Refresh(ctx)
			m.ObserveStore(time.Since(start))
			m.Set("updated", rep.Updated)
			m.Set("unchanged", rep.Unchanged)
			if err != nil {
				m.SetErrorStage("storage")
				log.WithError(err).Error("refresh failed")
				return c.JSON(http.StatusBadGateway, refreshResponse{Report: rep, Message: board.RefreshFailedMessage})
			}
			return c.JSON(http.StatusOK, refreshResponse{Report: rep})
		})
	}
}

func filterFromQuery(c echo.Context) (board.Filter, error) {
	f := board.Filter{
		Search:   c.QueryParam("search"),
		Status:   domain.Status(strings.TrimSpace(c.QueryParam("status"))),
		Assignee: c.QueryParam("assignee"),
	}
	if f.Status != "" && !f.Status.Valid() {
		return board.Filter{}, &domain.ValidationError{Field: "status", Message: "Unknown status " + string(f.Status)}
	}
	return f, nil
}

func getBoard(svc Board, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		return authorized(c, "board.view", auth, logger, func(ctx context.Context, _ Principal, m *requestMetrics) error {
			f, err := filterFromQuery(c)
			if err != nil {
				return writeError(c, m, err)
			}
			start := time.Now()
			v, err := svc.View(ctx, f)
			m.ObserveStore(time.Since(start))
			if err != nil {
				return writeError(c, m, err)
			}
			return c.JSON(http.StatusOK, v.Snapshot())
		})
	}
}

type titleBody struct {
	Title string `json:"title"`
}

func getTitle(svc Board, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		return authorized(c, "board.title", auth, logger, func(ctx context.Context, _ Principal, m *requestMetrics) error {
			title, err := svc.Title(ctx)
			if err != nil {
				return writeError(c, m, err)
			}
			return c.JSON(http.StatusOK, titleBody{Title: title})
		})
	}
}

func putTitle(svc Board, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		return authorized(c, "board.rename", auth, logger, func(ctx context.Context, _ Principal, m *requestMetrics) error {
			var req titleBody
			if err := decodeBody(c, &req); err != nil {
				return writeError(c, m, err)
			}
			title, err := svc.SetTitle(ctx, req.Title)
			if err != nil {
				return writeError(c, m, err)
			}
			return c.JSON(http.StatusOK, titleBody{Title: title})
		})
	}
}
