package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"

	"prism-todo/todo-api/domain"
)

const (
	edmInt64 = "Edm.Int64"

	maxUpdateAttempts = 3
)

// Storage provides access to the task table and the task events queue.
type Storage struct {
	taskTable   *aztables.Client
	eventsQueue *azqueue.QueueClient
}

// New creates a Storage instance from the given connection string.
func New(connStr, tasksTable, eventsQueue string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
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
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	queueClientOptions := azqueue.ClientOptions{
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
	eq, err := azqueue.NewQueueClientFromConnectionString(connStr, eventsQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{taskTable: svc.NewClient(tasksTable), eventsQueue: eq}, nil
}

type entityKeys struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
}

// taskEntity is the table row for a task. PartitionKey is the owner, RowKey the task id.
type taskEntity struct {
	entityKeys
	Title                 string `json:"Title"`
	Description           string `json:"Description,omitempty"`
	State                 string `json:"State"`
	DueDate               int64  `json:"DueDate,string"`
	DueDateType           string `json:"DueDate@odata.type"`
	PlannedFinishDate     int64  `json:"PlannedFinishDate,string"`
	PlannedFinishDateType string `json:"PlannedFinishDate@odata.type"`
	Order                 int    `json:"Order"`
	CreatedAt             int64  `json:"CreatedAt,string"`
	CreatedAtType         string `json:"CreatedAt@odata.type"`
	UpdatedAt             int64  `json:"UpdatedAt,string"`
	UpdatedAtType         string `json:"UpdatedAt@odata.type"`
}

// taskUpdate carries a merge update; nil fields are not sent.
type taskUpdate struct {
	entityKeys
	Title                 *string `json:"Title,omitempty"`
	Description           *string `json:"Description,omitempty"`
	State                 *string `json:"State,omitempty"`
	DueDate               *int64  `json:"DueDate,omitempty,string"`
	DueDateType           *string `json:"DueDate@odata.type,omitempty"`
	PlannedFinishDate     *int64  `json:"PlannedFinishDate,omitempty,string"`
	PlannedFinishDateType *string `json:"PlannedFinishDate@odata.type,omitempty"`
	Order                 *int    `json:"Order,omitempty"`
	UpdatedAt             *int64  `json:"UpdatedAt,omitempty,string"`
	UpdatedAtType         *string `json:"UpdatedAt@odata.type,omitempty"`
}

func entityFromTask(t domain.Task) taskEntity {
	return taskEntity{
		entityKeys:            entityKeys{PartitionKey: t.Owner, RowKey: t.ID},
		Title:                 t.Title,
		Description:           t.Description,
		State:                 string(t.State),
		DueDate:               t.DueDate,
		DueDateType:           edmInt64,
		PlannedFinishDate:     t.PlannedFinishDate,
		PlannedFinishDateType: edmInt64,
		Order:                 t.Order,
		CreatedAt:             t.CreatedAt,
		CreatedAtType:         edmInt64,
		UpdatedAt:             t.UpdatedAt,
		UpdatedAtType:         edmInt64,
	}
}

func (e taskEntity) task() domain.Task {
	return domain.Task{
		ID:                e.RowKey,
		Title:             e.Title,
		Description:       e.Description,
		State:             domain.State(e.State),
		DueDate:           e.DueDate,
		PlannedFinishDate: e.PlannedFinishDate,
		Order:             e.Order,
		Owner:             e.PartitionKey,
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
	}
}

func updateFromPatch(owner, id string, p domain.TaskPatch) taskUpdate {
	t := edmInt64
	upd := taskUpdate{
		entityKeys:  entityKeys{PartitionKey: owner, RowKey: id},
		Title:       p.Title,
		Description: p.Description,
		Order:       p.Order,
	}
	if p.State != nil {
		s := string(*p.State)
		upd.State = &s
	}
	if p.DueDate != nil {
		upd.DueDate = p.DueDate
		upd.DueDateType = &t
	}
	if p.PlannedFinishDate != nil {
		upd.PlannedFinishDate = p.PlannedFinishDate
		upd.PlannedFinishDateType = &t
	}
	if p.UpdatedAt != 0 {
		ts := p.UpdatedAt
		upd.UpdatedAt = &ts
		upd.UpdatedAtType = &t
	}
	return upd
}

func decodeTaskEntity(data []byte) (domain.Task, error) {
	var ent taskEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, err
	}
	return ent.task(), nil
}

// ownerFilter builds an OData filter for one partition, quoting the owner id.
func ownerFilter(owner string) string {
	return "PartitionKey eq '" + strings.ReplaceAll(owner, "'", "''") + "'"
}

func isStatus(err error, status int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == status
}

// ListTasks retrieves all tasks owned by the given user in board order.
func (s *Storage) ListTasks(ctx context.Context, owner string) ([]domain.Task, error) {
	filter := ownerFilter(owner)
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			t, err := decodeTaskEntity(e)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, t)
		}
	}
	domain.SortTasks(tasks)
	return tasks, nil
}

// GetTask returns the task when owned by owner, or nil when no such record exists.
func (s *Storage) GetTask(ctx context.Context, owner, id string) (*domain.Task, error) {
	t, _, err := s.getTask(ctx, owner, id)
	return t, err
}

func (s *Storage) getTask(ctx context.Context, owner, id string) (*domain.Task, azcore.ETag, error) {
	resp, err := s.taskTable.GetEntity(ctx, owner, id, nil)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, "", nil
		}
		return nil, "", err
	}
	t, err := decodeTaskEntity(resp.Value)
	if err != nil {
		return nil, "", err
	}
	return &t, resp.ETag, nil
}

// InsertTask adds a new task row.
func (s *Storage) InsertTask(ctx context.Context, t domain.Task) error {
	payload, err := json.Marshal(entityFromTask(t))
	if err != nil {
		return err
	}
	_, err = s.taskTable.AddEntity(ctx, payload, nil)
	return err
}

// UpdateTask merges the patch into the owned task, retrying when the row changed
// between read and write.
func (s *Storage) UpdateTask(ctx context.Context, owner, id string, patch domain.TaskPatch) error {
	payload, err := json.Marshal(updateFromPatch(owner, id, patch))
	if err != nil {
		return err
	}
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		current, etag, err := s.getTask(ctx, owner, id)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}
		_, err = s.taskTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{
			IfMatch:    &etag,
			UpdateMode: aztables.UpdateModeMerge,
		})
		switch {
		case err == nil:
			return nil
		case isStatus(err, http.StatusNotFound):
			return domain.ErrNotFound
		case isStatus(err, http.StatusPreconditionFailed):
			continue
		default:
			return err
		}
	}
	return fmt.Errorf("update task %s: %w", id, domain.ErrConcurrencyConflict)
}

// DeleteTask removes the owned task.
func (s *Storage) DeleteTask(ctx context.Context, owner, id string) error {
	_, err := s.taskTable.DeleteEntity(ctx, owner, id, nil)
	if err != nil && isStatus(err, http.StatusNotFound) {
		return domain.ErrNotFound
	}
	return err
}

// PublishTaskEvent sends the event to the task events queue.
func (s *Storage) PublishTaskEvent(ctx context.Context, ev domain.TaskEvent) error {
	data, err := sonic.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = s.eventsQueue.EnqueueMessage(ctx, string(data), nil)
	return err
}
