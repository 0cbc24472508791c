package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	log "github.com/sirupsen/logrus"
)

const queueAlreadyExists = "QueueAlreadyExists"

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("storage init starting")

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	if connStr == "" {
		log.Fatal("missing STORAGE_CONNECTION_STRING")
	}
	tables := nonEmpty(os.Getenv("TASKS_TABLE"))
	queues := nonEmpty(os.Getenv("TASK_EVENTS_QUEUE"))
	if len(tables) == 0 && len(queues) == 0 {
		log.Fatal("nothing to create: set TASKS_TABLE and/or TASK_EVENTS_QUEUE")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	err := withRetry(ctx, 5, 2*time.Second, func() error {
		if err := createTables(ctx, connStr, tables); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}
		if err := createQueues(ctx, connStr, queues); err != nil {
			return fmt.Errorf("create queues: %w", err)
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	log.WithFields(log.Fields{"tables": tables, "queues": queues}).Info("storage init complete")
}

func nonEmpty(names ...string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != "" {
			out = append(out, n)
		}
	}
	return out
}

// withRetry runs fn until it succeeds or attempts are exhausted. The storage
// emulator often starts after this job in local environments.
func withRetry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts {
			break
		}
		log.WithError(err).Warnf("attempt %d/%d failed, retrying in %v", i, attempts, delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

func alreadyExists(err error, code string) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.ErrorCode == code
}

func createTables(ctx context.Context, connStr string, names []string) error {
	if len(names) == 0 {
		return nil
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, nil)
	if err != nil {
		return err
	}
	for _, name := range names {
		if _, err := svc.NewClient(name).CreateTable(ctx, nil); err != nil && !alreadyExists(err, string(aztables.TableAlreadyExists)) {
			return fmt.Errorf("%s: %w", name, err)
		}
		log.Debugf("table %s ready", name)
	}
	return nil
}

func createQueues(ctx context.Context, connStr string, names []string) error {
	for _, name := range names {
		q, err := azqueue.NewQueueClientFromConnectionString(connStr, name, nil)
		if err != nil {
			return err
		}
		if _, err := q.Create(ctx, nil); err != nil && !alreadyExists(err, queueAlreadyExists) {
			return fmt.Errorf("%s: %w", name, err)
		}
		log.Debugf("queue %s ready", name)
	}
	return nil
}
