package main

import (
	"context"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
)

// queueMessage is a dequeued task event awaiting acknowledgement.
type queueMessage struct {
	ID           string
	PopReceipt   string
	Text         string
	DequeueCount int64
}

// eventQueue wraps the task events queue.
type eventQueue struct {
	client     *azqueue.QueueClient
	visibility time.Duration
}

func newEventQueue(connStr, name string, visibility time.Duration) (*eventQueue, error) {
	opts := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: 30 * time.Second,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	client, err := azqueue.NewQueueClientFromConnectionString(connStr, name, &opts)
	if err != nil {
		return nil, err
	}
	return &eventQueue{client: client, visibility: visibility}, nil
}

// Dequeue fetches up to n messages and hides them for the visibility timeout.
func (q *eventQueue) Dequeue(ctx context.Context, n int32) ([]queueMessage, error) {
	resp, err := q.client.DequeueMessages(ctx, &azqueue.DequeueMessagesOptions{
		NumberOfMessages:  to.Ptr(n),
		VisibilityTimeout: to.Ptr(int32(q.visibility / time.Second)),
	})
	if err != nil {
		return nil, err
	}
	out := make([]queueMessage, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		if m == nil || m.MessageID == nil || m.PopReceipt == nil {
			continue
		}
		msg := queueMessage{ID: *m.MessageID, PopReceipt: *m.PopReceipt}
		if m.MessageText != nil {
			msg.Text = *m.MessageText
		}
		if m.DequeueCount != nil {
			msg.DequeueCount = *m.DequeueCount
		}
		out = append(out, msg)
	}
	return out, nil
}

// Delete acknowledges a processed message.
func (q *eventQueue) Delete(ctx context.Context, msg queueMessage) error {
	_, err := q.client.DeleteMessage(ctx, msg.ID, msg.PopReceipt, nil)
	return err
}
