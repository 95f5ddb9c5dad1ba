package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"github.com/azzy787/task-board-mvp/domain"
)

// ChangeQueue carries change notices through an Azure storage queue so
// every instance hears about writes made by any other.
type ChangeQueue struct {
	queue      *azqueue.QueueClient
	visibility time.Duration
}

// ChangeMessage is a dequeued change notice.
type ChangeMessage struct {
	Change     domain.Change
	ID         string
	PopReceipt string
}

// NewChangeQueue connects to the named queue.
func NewChangeQueue(connStr, name string) (*ChangeQueue, error) {
	opts := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, name, &opts)
	if err != nil {
		return nil, err
	}
	return &ChangeQueue{queue: q, visibility: 30 * time.Second}, nil
}

// Notify enqueues a change notice.
func (q *ChangeQueue) Notify(ctx context.Context, c domain.Change) error {
	data, err := sonic.Marshal(c)
	if err != nil {
		return err
	}
	_, err = q.queue.EnqueueMessage(ctx, string(data), nil)
	return err
}

// Receive dequeues up to n notices. Messages that do not decode are
// deleted and skipped.
func (q *ChangeQueue) Receive(ctx context.Context, n int32) ([]ChangeMessage, error) {
	resp, err := q.queue.DequeueMessages(ctx, &azqueue.DequeueMessagesOptions{
		NumberOfMessages:  to.Ptr(n),
		VisibilityTimeout: to.Ptr(int32(q.visibility / time.Second)),
	})
	if err != nil {
		return nil, err
	}
	out := make([]ChangeMessage, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		if m == nil || m.MessageID == nil || m.PopReceipt == nil {
			continue
		}
		var c domain.Change
		if m.MessageText == nil || sonic.UnmarshalString(*m.MessageText, &c) != nil {
			log.WithField("message", *m.MessageID).Warn("dropping undecodable change notice")
			_ = q.Delete(ctx, *m.MessageID, *m.PopReceipt)
			continue
		}
		out = append(out, ChangeMessage{Change: c, ID: *m.MessageID, PopReceipt: *m.PopReceipt})
	}
	return out, nil
}

// Delete removes a processed message.
func (q *ChangeQueue) Delete(ctx context.Context, id, receipt string) error {
	_, err := q.queue.DeleteMessage(ctx, id, receipt, nil)
	return err
}

// CreateQueue creates the queue unless it already exists.
func CreateQueue(ctx context.Context, connStr, name string) error {
	svc, err := azqueue.NewServiceClientFromConnectionString(connStr, nil)
	if err != nil {
		return err
	}
	if _, err := svc.CreateQueue(ctx, name, nil); err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.ErrorCode == "QueueAlreadyExists" {
			log.WithField("queue", name).Info("queue already exists")
			return nil
		}
		return fmt.Errorf("create queue %s: %w", name, err)
	}
	log.WithField("queue", name).Info("queue created")
	return nil
}
