package api

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"prism-todo/todo-api/domain"
)

type recordingPublisher struct {
	mu        sync.Mutex
	published []domain.TaskEvent
	err       error
}

func (p *recordingPublisher) PublishTaskEvent(_ context.Context, ev domain.TaskEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, ev)
	return p.err
}

func (p *recordingPublisher) Published() []domain.TaskEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.TaskEvent(nil), p.published...)
}

func waitForPublished(t *testing.T, p *recordingPublisher, expected int) []domain.TaskEvent {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for {
		evs := p.Published()
		if len(evs) >= expected {
			return evs
		}
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %d events, got %d", expected, len(evs))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEventPoolPublishesThroughWorkers(t *testing.T) {
	logger, _ := test.NewNullLogger()
	pub := &recordingPublisher{}
	pool := NewEventPool(pub, PoolConfig{Workers: 2, Buffer: 4}, logger)
	t.Cleanup(pool.Close)

	pool.Send(domain.TaskEvent{ID: "1", Type: domain.TaskCreated})
	pool.Send(domain.TaskEvent{ID: "2", Type: domain.TaskDeleted})

	waitForPublished(t, pub, 2)
}

// newIdlePool builds a pool without workers so tests control the job channel.
func newIdlePool(t *testing.T, pub EventPublisher, buffer int, handoff time.Duration) (*EventPool, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	return &EventPool{
		publisher: pub,
		log:       logger,
		cfg:       PoolConfig{PublishTimeout: time.Second, HandoffTimeout: handoff},
		jobs:      make(chan domain.TaskEvent, buffer),
	}, hook
}

func TestTryHandoffWaitsForCapacity(t *testing.T) {
	pool, _ := newIdlePool(t, &recordingPublisher{}, 1, 50*time.Millisecond)
	pool.jobs <- domain.TaskEvent{ID: "queued"}

	done := make(chan bool, 1)
	go func() {
		done <- pool.tryHandoff(domain.TaskEvent{ID: "next"})
	}()

	select {
	case <-done:
		t.Fatal("tryHandoff returned before capacity was freed")
	case <-time.After(20 * time.Millisecond):
	}

	<-pool.jobs

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("expected successful handoff after capacity freed")
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for handoff completion")
	}
}

func TestTryHandoffTimesOut(t *testing.T) {
	pool, _ := newIdlePool(t, &recordingPublisher{}, 1, 30*time.Millisecond)
	pool.jobs <- domain.TaskEvent{ID: "queued"}

	if pool.tryHandoff(domain.TaskEvent{ID: "next"}) {
		t.Fatal("expected handoff to fail when timeout elapsed")
	}
	if got := <-pool.jobs; got.ID != "queued" {
		t.Fatalf("expected queued event to remain, got %#v", got)
	}
}

func TestTryHandoffNoWaitWhenZeroTimeout(t *testing.T) {
	pool, _ := newIdlePool(t, &recordingPublisher{}, 1, 0)
	pool.jobs <- domain.TaskEvent{ID: "queued"}

	start := time.Now()
	if pool.tryHandoff(domain.TaskEvent{ID: "next"}) {
		t.Fatal("expected handoff to fail immediately")
	}
	if time.Since(start) > 20*time.Millisecond {
		t.Fatal("expected no wait with zero handoff timeout")
	}
}

func TestSendPublishesInlineWhenSaturated(t *testing.T) {
	pub := &recordingPublisher{}
	pool, hook := newIdlePool(t, pub, 1, 5*time.Millisecond)
	pool.jobs <- domain.TaskEvent{ID: "queued"}

	pool.Send(domain.TaskEvent{ID: "inline"})

	evs := pub.Published()
	if len(evs) != 1 || evs[0].ID != "inline" {
		t.Fatalf("expected inline publish, got %#v", evs)
	}
	warned := false
	for _, e := range hook.AllEntries() {
		if e.Message == "event buffer saturated; publishing inline" {
			warned = true
		}
	}
	if !warned {
		t.Fatal("expected saturation warning")
	}
}

func TestEventPoolSendAfterCloseIsInline(t *testing.T) {
	logger, _ := test.NewNullLogger()
	pub := &recordingPublisher{}
	pool := NewEventPool(pub, PoolConfig{Workers: 1, Buffer: 1}, logger)
	pool.Close()
	pool.Close()

	pool.Send(domain.TaskEvent{ID: "late"})
	evs := pub.Published()
	if len(evs) != 1 || evs[0].ID != "late" {
		t.Fatalf("expected inline publish after close, got %#v", evs)
	}
}

func TestEventPoolLogsPublishFailures(t *testing.T) {
	logger, hook := test.NewNullLogger()
	pub := &recordingPublisher{err: errors.New("queue down")}
	pool := NewEventPool(pub, PoolConfig{Workers: 1, Buffer: 1, PublishAttempts: 2, RetryInitial: time.Millisecond}, logger)

	pool.Send(domain.TaskEvent{ID: "1", Type: domain.TaskUpdated})
	pool.Close()

	if entry := hook.LastEntry(); entry == nil || entry.Level.String() != "error" {
		t.Fatalf("expected error log, got %#v", entry)
	}
	if got := len(pub.Published()); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}

type flakyPublisher struct {
	recordingPublisher
	failures int
}

func (p *flakyPublisher) PublishTaskEvent(ctx context.Context, ev domain.TaskEvent) error {
	p.mu.Lock()
	fail := p.failures > 0
	if fail {
		p.failures--
	}
	p.mu.Unlock()
	if fail {
		return errors.New("transient")
	}
	return p.recordingPublisher.PublishTaskEvent(ctx, ev)
}

func TestEventPoolRetriesTransientFailures(t *testing.T) {
	logger, hook := test.NewNullLogger()
	pub := &flakyPublisher{failures: 2}
	pool := NewEventPool(pub, PoolConfig{Workers: 1, Buffer: 1, PublishAttempts: 3, RetryInitial: time.Millisecond, RetryMax: 5 * time.Millisecond}, logger)

	pool.Send(domain.TaskEvent{ID: "1", Type: domain.TaskCreated})
	pool.Close()

	if evs := pub.Published(); len(evs) != 1 || evs[0].ID != "1" {
		t.Fatalf("expected event published after retries, got %#v", evs)
	}
	for _, e := range hook.AllEntries() {
		if e.Level.String() == "error" {
			t.Fatalf("unexpected error log %q", e.Message)
		}
	}
}

func TestExponentialBackoff(t *testing.T) {
	if got := exponentialBackoff(0, 100*time.Millisecond, time.Second); got != 100*time.Millisecond {
		t.Fatalf("attempt 0 should return initial, got %v", got)
	}
	for attempt, base := range map[int]time.Duration{1: 100 * time.Millisecond, 2: 200 * time.Millisecond, 10: time.Second} {
		got := exponentialBackoff(attempt, 100*time.Millisecond, time.Second)
		lo, hi := time.Duration(float64(base)*0.8), time.Duration(float64(base)*1.2)
		if got < lo || got > hi {
			t.Fatalf("attempt %d: %v outside [%v, %v]", attempt, got, lo, hi)
		}
	}
}
