package storage

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"prism-todo/todo-api/domain"
)

type backend interface {
	ListTasks(ctx context.Context, owner string) ([]domain.Task, error)
	GetTask(ctx context.Context, owner, id string) (*domain.Task, error)
	InsertTask(ctx context.Context, t domain.Task) error
	UpdateTask(ctx context.Context, owner, id string, patch domain.TaskPatch) error
	DeleteTask(ctx context.Context, owner, id string) error
	PublishTaskEvent(ctx context.Context, ev domain.TaskEvent) error
}

// Cache wraps a backend with a Redis-backed cache of each owner's task list.
// Every mutation evicts the owner's entry; reads never fail because of Redis.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) ListTasks(ctx context.Context, owner string) ([]domain.Task, error) {
	if tasks, ok := c.loadTasks(ctx, owner); ok {
		return tasks, nil
	}

	tasks, err := c.base.ListTasks(ctx, owner)
	if err != nil {
		return nil, err
	}

	c.storeTasks(ctx, owner, tasks)
	return tasks, nil
}

func (c *Cache) GetTask(ctx context.Context, owner, id string) (*domain.Task, error) {
	return c.base.GetTask(ctx, owner, id)
}

func (c *Cache) InsertTask(ctx context.Context, t domain.Task) error {
	if err := c.base.InsertTask(ctx, t); err != nil {
		return err
	}
	c.Evict(ctx, t.Owner)
	return nil
}

func (c *Cache) UpdateTask(ctx context.Context, owner, id string, patch domain.TaskPatch) error {
	if err := c.base.UpdateTask(ctx, owner, id, patch); err != nil {
		return err
	}
	c.Evict(ctx, owner)
	return nil
}

func (c *Cache) DeleteTask(ctx context.Context, owner, id string) error {
	if err := c.base.DeleteTask(ctx, owner, id); err != nil {
		return err
	}
	c.Evict(ctx, owner)
	return nil
}

func (c *Cache) PublishTaskEvent(ctx context.Context, ev domain.TaskEvent) error {
	return c.base.PublishTaskEvent(ctx, ev)
}

func (c *Cache) loadTasks(ctx context.Context, owner string) ([]domain.Task, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, TasksCacheKey(owner)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, TasksCacheKey(owner)).Err()
		}
		return nil, false
	}
	var tasks []domain.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.Del(ctx, TasksCacheKey(owner)).Err()
		return nil, false
	}
	return tasks, true
}

func (c *Cache) storeTasks(ctx context.Context, owner string, tasks []domain.Task) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(tasks)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, TasksCacheKey(owner), data, c.ttl).Err()
}

// Evict drops the cached task list of owner.
func (c *Cache) Evict(ctx context.Context, owner string) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, TasksCacheKey(owner)).Err()
}

// TasksCacheKey is the Redis key holding owner's cached task list.
func TasksCacheKey(owner string) string {
	return "tasks:" + owner
}

// RedisOptions parses either a redis:// URL or an Azure style
// "host:port,password=...,ssl=True" connection string.
func RedisOptions(conn string) (*redis.Options, error) {
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts, nil
	}
	parts := strings.Split(conn, ",")
	if strings.TrimSpace(parts[0]) == "" {
		return nil, errors.New("redis connection string has no address")
	}
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(kv[1], "true") {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	}
	return opts, nil
}
