package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"prism-todo/todo-api/domain"
)

const maxStreamBackoff = 30 * time.Second

// Stream opens the task update stream and calls fn with every task list pushed by the
// server. It returns when ctx is cancelled or the token is rejected; other failures
// reconnect with exponential backoff.
func (c *Client) Stream(ctx context.Context, logger *log.Logger, fn func([]domain.Task)) error {
	if logger == nil {
		logger = log.StandardLogger()
	}
	backoff := time.Second
	for {
		err := c.streamOnce(ctx, fn, func() { backoff = time.Second })
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrUnauthorized) {
			return err
		}
		logger.WithError(err).Warnf("task stream interrupted; retrying in %v", backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxStreamBackoff)
	}
}

func (c *Client) streamOnce(ctx context.Context, fn func([]domain.Task), connected func()) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/todo/stream", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	// The shared client has a timeout that would cut the stream.
	httpClient := *c.HTTP
	httpClient.Timeout = 0
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Code: resp.StatusCode}
	}
	connected()
	return readEvents(resp.Body, fn)
}

// readEvents joins data lines until a blank line ends the event. Comment lines are
// keep-alives and are skipped.
func readEvents(body io.Reader, fn func([]domain.Task)) error {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	var data strings.Builder
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if data.Len() > 0 {
				if err := deliver(data.String(), fn); err != nil {
					return err
				}
				data.Reset()
			}
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return errors.New("stream closed")
}

func deliver(payload string, fn func([]domain.Task)) error {
	var msg struct {
		Tasks []domain.Task `json:"tasks"`
	}
	if err := sonic.UnmarshalString(payload, &msg); err != nil {
		return fmt.Errorf("decode stream event: %w", err)
	}
	fn(msg.Tasks)
	return nil
}
