package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/azzy787/task-board-mvp/domain"
)

// maxBatch is the Azure Tables limit on operations per transaction.
const maxBatch = 100

// Notifier receives a change notice after every successful write.
type Notifier interface {
	Notify(ctx context.Context, c domain.Change) error
}

// Tables stores a board in Azure Table Storage. Tasks of a board share one
// partition; the board metadata lives in its own table keyed by board id.
type Tables struct {
	board     string
	taskTable *aztables.Client
	metaTable *aztables.Client
	notify    Notifier
	now       func() time.Time
}

// TablesClientOptions returns the retry policy used for every table client.
func TablesClientOptions() *aztables.ClientOptions {
	return &aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
}

// NewTables connects to the task and metadata tables of one board. notify may
// be nil.
func NewTables(connStr, board, tasksTable, metaTable string, notify Notifier) (*Tables, error) {
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, TablesClientOptions())
	if err != nil {
		return nil, err
	}
	return &Tables{
		board:     board,
		taskTable: svc.NewClient(tasksTable),
		metaTable: svc.NewClient(metaTable),
		notify:    notify,
		now:       time.Now,
	}, nil
}

// ListTasks returns every task of the board in partition order.
func (s *Tables) ListTasks(ctx context.Context) ([]domain.Record, error) {
	filter := "PartitionKey eq '" + escapeODataString(s.board) + "'"
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	recs := []domain.Record{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			rec, err := decodeEntity(e)
			if err != nil {
				return nil, err
			}
			recs = append(recs, rec)
		}
	}
	return recs, nil
}

// CreateTask inserts a task under a fresh id.
func (s *Tables) CreateTask(ctx context.Context, t domain.Task) (domain.Record, error) {
	t.ID = uuid.NewString()
	rec := domain.RecordFromTask(t, s.now().UTC())
	payload, err := encodeEntity(s.board, rec.ID, rec.Fields)
	if err != nil {
		return domain.Record{}, err
	}
	if _, err := s.taskTable.AddEntity(ctx, payload, nil); err != nil {
		return domain.Record{}, err
	}
	s.publish(ctx, domain.ChangeCreate, rec.ID)
	return rec, nil
}

// UpdateTask merges the patch into an existing entity. Clearing the due date
// needs a property removal, which merge cannot express, so it replaces the
// entity guarded by its ETag.
func (s *Tables) UpdateTask(ctx context.Context, id string, p domain.TaskPatch) error {
	fields := domain.PatchFields(p, s.now().UTC())
	if p.ClearDueDate {
		if err := s.replaceTask(ctx, id, fields); err != nil {
			return err
		}
		s.publish(ctx, domain.ChangeUpdate, id)
		return nil
	}
	payload, err := encodeEntity(s.board, id, fields)
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.taskTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	if err != nil {
		return mapTableError(err)
	}
	s.publish(ctx, domain.ChangeUpdate, id)
	return nil
}

func (s *Tables) replaceTask(ctx context.Context, id string, fields map[string]any) error {
	resp, err := s.taskTable.GetEntity(ctx, s.board, id, nil)
	if err != nil {
		return mapTableError(err)
	}
	cur, err := decodeEntity(resp.Value)
	if err != nil {
		return err
	}
	for k, v := range fields {
		if v == nil {
			delete(cur.Fields, k)
			delete(cur.Fields, domain.FieldLegacyDue)
			continue
		}
		cur.Fields[k] = v
	}
	payload, err := encodeEntity(s.board, id, cur.Fields)
	if err != nil {
		return err
	}
	et := resp.ETag
	_, err = s.taskTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeReplace})
	return mapTableError(err)
}

// DeleteTasks removes the ids in transactions of at most 100 deletes. Ids
// that no longer exist are skipped.
func (s *Tables) DeleteTasks(ctx context.Context, ids []string) error {
	for start := 0; start < len(ids); start += maxBatch {
		end := start + maxBatch
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]
		err := s.deleteBatch(ctx, chunk)
		if isStatus(err, http.StatusNotFound) {
			chunk, err = s.existing(ctx, chunk)
			if err == nil && len(chunk) > 0 {
				err = s.deleteBatch(ctx, chunk)
			}
		}
		if err != nil {
			return err
		}
	}
	s.publish(ctx, domain.ChangeDelete, ids...)
	return nil
}

func (s *Tables) deleteBatch(ctx context.Context, ids []string) error {
	actions := make([]aztables.TransactionAction, 0, len(ids))
	for _, id := range ids {
		payload, err := encodeEntity(s.board, id, nil)
		if err != nil {
			return err
		}
		actions = append(actions, aztables.TransactionAction{ActionType: aztables.TransactionTypeDelete, Entity: payload})
	}
	_, err := s.taskTable.SubmitTransaction(ctx, actions, nil)
	return err
}

func (s *Tables) existing(ctx context.Context, ids []string) ([]string, error) {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		_, err := s.taskTable.GetEntity(ctx, s.board, id, nil)
		if isStatus(err, http.StatusNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// GetMeta reads the board metadata.
func (s *Tables) GetMeta(ctx context.Context) (domain.BoardMeta, error) {
	resp, err := s.metaTable.GetEntity(ctx, s.board, s.board, nil)
	if err != nil {
		return domain.BoardMeta{}, mapTableError(err)
	}
	rec, err := decodeEntity(resp.Value)
	if err != nil {
		return domain.BoardMeta{}, err
	}
	title, _ := rec.Fields["title"].(string)
	return domain.BoardMeta{Title: title}, nil
}

// PutMeta merges the metadata, creating the entity on first write.
func (s *Tables) PutMeta(ctx context.Context, meta domain.BoardMeta) error {
	payload, err := encodeEntity(s.board, s.board, map[string]any{
		"title":               meta.Title,
		domain.FieldUpdatedAt: s.now().UTC(),
	})
	if err != nil {
		return err
	}
	if _, err := s.metaTable.UpsertEntity(ctx, payload, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeMerge}); err != nil {
		return err
	}
	s.publish(ctx, domain.ChangeMeta)
	return nil
}

func (s *Tables) publish(ctx context.Context, op domain.ChangeOp, ids ...string) {
	if s.notify == nil {
		return
	}
	c := domain.Change{Board: s.board, Op: op, IDs: ids, At: s.now().UTC()}
	if err := s.notify.Notify(ctx, c); err != nil {
		log.WithFields(log.Fields{"board": s.board, "op": op}).WithError(err).Warn("change notification failed")
	}
}

// CreateTables creates the task and metadata tables, ignoring ones that
// already exist.
func CreateTables(ctx context.Context, connStr string, names ...string) error {
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, TablesClientOptions())
	if err != nil {
		return err
	}
	for _, name := range names {
		if _, err := svc.CreateTable(ctx, name, nil); err != nil {
			if isCode(err, string(aztables.TableAlreadyExists)) || isStatus(err, http.StatusConflict) {
				log.WithField("table", name).Info("table already exists")
				continue
			}
			return fmt.Errorf("create table %s: %w", name, err)
		}
		log.WithField("table", name).Info("table created")
	}
	return nil
}

func mapTableError(err error) error {
	switch {
	case err == nil:
		return nil
	case isStatus(err, http.StatusNotFound):
		return domain.ErrNotFound
	case isStatus(err, http.StatusPreconditionFailed):
		return domain.ErrConcurrencyConflict
	}
	return err
}

func isStatus(err error, code int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == code
}

func isCode(err error, code string) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.ErrorCode == code
}

func escapeODataString(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\'')
		}
		out = append(out, s[i])
	}
	return string(out)
}
