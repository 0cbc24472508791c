package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"prism-todo/todo-api/storage"
)

func main() {
	logger := log.New()
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		logger.SetLevel(log.DebugLevel)
	}
	logger.Info("events worker starting")

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	eventsQueue := os.Getenv("TASK_EVENTS_QUEUE")
	if connStr == "" || eventsQueue == "" {
		log.Fatal("missing storage config")
	}
	queue, err := newEventQueue(connStr, eventsQueue, envDur("EVENT_VISIBILITY_TIMEOUT", 30*time.Second))
	if err != nil {
		log.Fatalf("queue client: %v", err)
	}

	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		log.Fatal("missing redis config")
	}
	redisOpts, err := storage.RedisOptions(redisConn)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	rc := redis.NewClient(redisOpts)
	defer rc.Close()

	channel := os.Getenv("TASK_UPDATES_CHANNEL")
	if channel == "" {
		channel = "task-updates"
	}

	batch := envInt("EVENT_BATCH_SIZE", 16)
	if batch > 32 {
		batch = 32
	}

	p := &processor{
		queue:       queue,
		redis:       rc,
		channel:     channel,
		log:         logger,
		batchSize:   int32(batch),
		maxAttempts: int64(envInt("EVENT_MAX_ATTEMPTS", 5)),
		idleDelay:   envDur("EVENT_IDLE_DELAY", time.Second),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	p.run(ctx)
	logger.Info("events worker stopped")
}

func envInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		log.Fatalf("invalid %s: %q", key, raw)
	}
	return v
}

func envDur(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		log.Fatalf("invalid %s: %q", key, raw)
	}
	return d
}
