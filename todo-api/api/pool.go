package api

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"prism-todo/todo-api/domain"
)

// PoolConfig sizes the change event pool.
type PoolConfig struct {
	Workers         int
	Buffer          int
	PublishTimeout  time.Duration
	HandoffTimeout  time.Duration
	// PublishAttempts bounds worker retries. Inline publishes are attempted once.
	PublishAttempts int
	RetryInitial    time.Duration
	RetryMax        time.Duration
}

// DefaultPoolConfig returns the settings used when no overrides are configured.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Workers:         8,
		Buffer:          1024,
		PublishTimeout:  30 * time.Second,
		HandoffTimeout:  15 * time.Millisecond,
		PublishAttempts: 3,
		RetryInitial:    200 * time.Millisecond,
		RetryMax:        5 * time.Second,
	}
}

// EventPool publishes task change events from a fixed set of workers. When the
// buffer stays full past the handoff timeout the event is published inline.
type EventPool struct {
	publisher EventPublisher
	log       *log.Logger
	cfg       PoolConfig

	mu     sync.RWMutex
	jobs   chan domain.TaskEvent
	closed bool
	wg     sync.WaitGroup
}

// NewEventPool starts the workers.
func NewEventPool(publisher EventPublisher, cfg PoolConfig, logger *log.Logger) *EventPool {
	if publisher == nil {
		panic("api.NewEventPool: publisher is nil")
	}
	if logger == nil {
		panic("api.NewEventPool: logger is nil")
	}
	def := DefaultPoolConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.Buffer < 0 {
		cfg.Buffer = def.Buffer
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = def.PublishTimeout
	}
	if cfg.PublishAttempts <= 0 {
		cfg.PublishAttempts = def.PublishAttempts
	}
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = def.RetryInitial
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = def.RetryMax
	}

	p := &EventPool{
		publisher: publisher,
		log:       logger,
		cfg:       cfg,
		jobs:      make(chan domain.TaskEvent, cfg.Buffer),
	}
	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	logger.Infof("event pool started, workers: %d, buffer: %d, timeout: %v, handoff: %v", cfg.Workers, cfg.Buffer, cfg.PublishTimeout, cfg.HandoffTimeout)
	return p
}

func (p *EventPool) worker(id int) {
	defer p.wg.Done()
	for ev := range p.jobs {
		if err := p.publishWithRetry(ev); err != nil {
			p.log.Errorf("publish event failed, err: %v, type: %s, task: %s, user: %s, worker: %d", err, ev.Type, ev.TaskID, ev.UserID, id)
		}
	}
}

func (p *EventPool) publish(ev domain.TaskEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.PublishTimeout)
	defer cancel()
	return p.publisher.PublishTaskEvent(ctx, ev)
}

func (p *EventPool) publishWithRetry(ev domain.TaskEvent) error {
	var err error
	for attempt := 0; attempt < max(p.cfg.PublishAttempts, 1); attempt++ {
		if attempt > 0 {
			time.Sleep(exponentialBackoff(attempt, p.cfg.RetryInitial, p.cfg.RetryMax))
		}
		if err = p.publish(ev); err == nil {
			return nil
		}
		p.log.Debugf("publish event attempt %d failed, err: %v, task: %s", attempt+1, err, ev.TaskID)
	}
	return err
}

// exponentialBackoff doubles initial per attempt up to max, with 20% jitter.
func exponentialBackoff(attempt int, initial, max time.Duration) time.Duration {
	if initial <= 0 {
		initial = time.Second
	}
	if attempt <= 0 {
		return initial
	}
	if max <= 0 {
		max = 10 * time.Second
	}
	backoff := float64(initial) * math.Pow(2, float64(attempt-1))
	if backoff > float64(max) {
		backoff = float64(max)
	}
	jitter := 0.2 * backoff
	return time.Duration(backoff + (rand.Float64()-0.5)*2*jitter)
}

// Send hands the event to a worker, falling back to an inline publish when the
// pool is saturated or closed. Failures are logged; events are advisory.
func (p *EventPool) Send(ev domain.TaskEvent) {
	if p.tryHandoff(ev) {
		return
	}
	p.log.Warn("event buffer saturated; publishing inline")
	if err := p.publish(ev); err != nil {
		p.log.Errorf("publish event inline failed, err: %v, type: %s, task: %s, user: %s", err, ev.Type, ev.TaskID, ev.UserID)
	}
}

func (p *EventPool) tryHandoff(ev domain.TaskEvent) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}

	select {
	case p.jobs <- ev:
		return true
	default:
	}

	if p.cfg.HandoffTimeout <= 0 {
		return false
	}
	timer := time.NewTimer(p.cfg.HandoffTimeout)
	defer timer.Stop()
	select {
	case p.jobs <- ev:
		return true
	case <-timer.C:
		return false
	}
}

// Close stops accepting events and waits for queued ones to be published.
func (p *EventPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}
