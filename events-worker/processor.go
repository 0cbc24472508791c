package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"prism-todo/todo-api/domain"
	"prism-todo/todo-api/storage"
)

var errMalformedEvent = errors.New("malformed task event")

type messageQueue interface {
	Dequeue(ctx context.Context, n int32) ([]queueMessage, error)
	Delete(ctx context.Context, msg queueMessage) error
}

// processor relays task events from the queue onto the Redis updates channel.
type processor struct {
	queue       messageQueue
	redis       *redis.Client
	channel     string
	log         *log.Logger
	batchSize   int32
	maxAttempts int64
	idleDelay   time.Duration
}

// processEvent evicts the owner's cached task list and announces the change.
func (p *processor) processEvent(ctx context.Context, payload string) error {
	var ev domain.TaskEvent
	if err := sonic.UnmarshalString(payload, &ev); err != nil {
		return fmt.Errorf("%w: %v", errMalformedEvent, err)
	}
	if ev.UserID == "" || ev.TaskID == "" {
		return fmt.Errorf("%w: missing user or task id", errMalformedEvent)
	}
	if err := p.redis.Del(ctx, storage.TasksCacheKey(ev.UserID)).Err(); err != nil {
		return fmt.Errorf("evict tasks cache: %w", err)
	}
	if err := p.redis.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.channel, err)
	}
	p.log.WithFields(log.Fields{"type": ev.Type, "task": ev.TaskID, "user": ev.UserID}).Debug("task event relayed")
	return nil
}

// handle processes one message and decides whether it is acknowledged. Failed
// messages become visible again after the queue visibility timeout, unless they
// are malformed or have exhausted their attempts.
func (p *processor) handle(ctx context.Context, msg queueMessage) {
	err := p.processEvent(ctx, msg.Text)
	switch {
	case err == nil:
	case errors.Is(err, errMalformedEvent):
		p.log.WithError(err).WithField("message", msg.ID).Error("dropping malformed event")
	case p.maxAttempts > 0 && msg.DequeueCount >= p.maxAttempts:
		p.log.WithError(err).WithFields(log.Fields{"message": msg.ID, "attempts": msg.DequeueCount}).Error("dropping event after max attempts")
	default:
		p.log.WithError(err).WithField("message", msg.ID).Warn("event processing failed, will retry")
		return
	}
	if derr := p.queue.Delete(ctx, msg); derr != nil {
		p.log.WithError(derr).WithField("message", msg.ID).Error("delete message failed")
	}
}

// run polls the queue until ctx is done.
func (p *processor) run(ctx context.Context) {
	for ctx.Err() == nil {
		msgs, err := p.queue.Dequeue(ctx, p.batchSize)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Errorf("receive: %v", err)
			p.sleep(ctx)
			continue
		}
		if len(msgs) == 0 {
			p.sleep(ctx)
			continue
		}
		for _, msg := range msgs {
			p.handle(ctx, msg)
		}
	}
}

func (p *processor) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(p.idleDelay):
	}
}
