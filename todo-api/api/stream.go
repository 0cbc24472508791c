package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"prism-todo/todo-api/domain"
)

const (
	streamKeepAlive   = 25 * time.Second
	streamClientQueue = 4
	resubscribeDelay  = time.Second
)

// Hub fans serialized task lists out to the open stream connections of each user.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[chan []byte]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]map[chan []byte]struct{})}
}

func (h *Hub) add(userID string, ch chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[userID]
	if !ok {
		set = make(map[chan []byte]struct{})
		h.clients[userID] = set
	}
	set[ch] = struct{}{}
}

func (h *Hub) remove(userID string, ch chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[userID]
	delete(set, ch)
	if len(set) == 0 {
		delete(h.clients, userID)
	}
}

// Connected reports whether userID has at least one open stream.
func (h *Hub) Connected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// Broadcast delivers data to every stream of userID. Slow clients drop messages
// instead of blocking the others.
func (h *Hub) Broadcast(userID string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.clients[userID] {
		select {
		case ch <- data:
		default:
		}
	}
}

// SubscribeUpdates listens on the task updates channel and pushes the fresh task list
// of the affected user to its open streams. It reconnects until ctx is done.
func SubscribeUpdates(ctx context.Context, logger *log.Logger, rc *redis.Client, channel string, store Storage, hub *Hub) {
	for {
		sub := rc.Subscribe(ctx, channel)
		relayUpdates(ctx, logger, sub.Channel(), store, hub)
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		logger.Errorf("task updates subscription on %s closed, reconnecting", channel)
		select {
		case <-ctx.Done():
			return
		case <-time.After(resubscribeDelay):
		}
	}
}

func relayUpdates(ctx context.Context, logger *log.Logger, ch <-chan *redis.Message, store Storage, hub *Hub) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev domain.TaskEvent
			if err := sonic.UnmarshalString(msg.Payload, &ev); err != nil {
				logger.Errorf("unable to parse task update: %v", err)
				continue
			}
			if ev.UserID == "" || !hub.Connected(ev.UserID) {
				continue
			}
			data, err := encodeTaskList(ctx, store, ev.UserID)
			if err != nil {
				logger.Errorf("load tasks for stream, user: %s, err: %v", ev.UserID, err)
				continue
			}
			hub.Broadcast(ev.UserID, data)
		}
	}
}

func encodeTaskList(ctx context.Context, store Storage, userID string) ([]byte, error) {
	tasks, err := store.ListTasks(ctx, userID)
	if err != nil {
		return nil, err
	}
	return sonic.Marshal(listTasksResponse{Tasks: tasks})
}

func streamTasks(store Storage, auth Authenticator, hub *Hub, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		m := metricsFrom(c)
		id, err := authenticate(c, auth)
		if err != nil {
			return c.String(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		}

		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			m.SetErrorStage("stream_unsupported")
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}

		ctx := c.Request().Context()
		start := time.Now()
		first, err := encodeTaskList(ctx, store, id.UserID)
		m.ObserveStore(time.Since(start))
		if err != nil {
			return internalError(c, logger, "storage", err)
		}

		ch := make(chan []byte, streamClientQueue)
		hub.add(id.UserID, ch)
		defer hub.remove(id.UserID, ch)

		res := c.Response()
		res.Header().Set(echo.HeaderContentType, "text/event-stream")
		res.Header().Set(echo.HeaderCacheControl, "no-cache")
		res.Header().Set(echo.HeaderConnection, "keep-alive")
		res.Header().Set("X-Accel-Buffering", "no")
		res.WriteHeader(http.StatusOK)

		if err := writeEvent(res, first); err != nil {
			return nil
		}
		flusher.Flush()

		keepAlive := time.NewTicker(streamKeepAlive)
		defer keepAlive.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case data := <-ch:
				if err := writeEvent(res, data); err != nil {
					logger.Debugf("stream write failed, user: %s, err: %v", id.UserID, err)
					return nil
				}
			case <-keepAlive.C:
				if _, err := res.Write([]byte(": keep-alive\n\n")); err != nil {
					return nil
				}
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, data []byte) error {
	if _, err := w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err := w.Write([]byte("\n\n"))
	return err
}
