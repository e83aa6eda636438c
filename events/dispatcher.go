package events

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"prism-todo/domain"
	"prism-todo/store"
)

// DispatcherConfig sizes the background publishing pool.
type DispatcherConfig struct {
	Workers int
	Buffer  int
	// Timeout bounds a single downstream publish.
	Timeout time.Duration
	// HandoffTimeout is how long Publish waits for buffer space before
	// publishing inline. Zero means no wait.
	HandoffTimeout time.Duration
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.Buffer <= 0 {
		c.Buffer = 64
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.HandoffTimeout < 0 {
		c.HandoffTimeout = 0
	}
	return c
}

// Dispatcher publishes events asynchronously so slow transports never hold
// up a store mutation. When the buffer stays full past the handoff timeout
// the event is published inline instead of being dropped.
type Dispatcher struct {
	next   store.Publisher
	cfg    DispatcherConfig
	logger *log.Logger

	mu     sync.RWMutex
	jobs   chan domain.Event
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher starts the worker pool.
func NewDispatcher(next store.Publisher, cfg DispatcherConfig, logger *log.Logger) *Dispatcher {
	if next == nil {
		panic("events.NewDispatcher: publisher is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	cfg = cfg.withDefaults()
	d := &Dispatcher{
		next:   next,
		cfg:    cfg,
		logger: logger,
		jobs:   make(chan domain.Event, cfg.Buffer),
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	logger.Debugf("event dispatcher started, workers: %d, buffer: %d, timeout: %v, handoff: %v", cfg.Workers, cfg.Buffer, cfg.Timeout, cfg.HandoffTimeout)
	return d
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for ev := range d.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Timeout)
		err := d.next.Publish(ctx, ev)
		cancel()
		if err != nil {
			d.logger.WithError(err).WithFields(log.Fields{"event": ev.Type, "task": ev.EntityID, "worker": id}).Error("event publish failed")
		}
	}
}

// Publish queues ev for a worker, falling back to an inline publish.
func (d *Dispatcher) Publish(ctx context.Context, ev domain.Event) error {
	if d.tryEnqueue(ev) {
		return nil
	}
	d.logger.WithField("event", ev.Type).Warn("event buffer saturated; publishing inline")
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.Timeout)
	defer cancel()
	return d.next.Publish(ctx, ev)
}

func (d *Dispatcher) tryEnqueue(ev domain.Event) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}

	select {
	case d.jobs <- ev:
		return true
	default:
	}

	if d.cfg.HandoffTimeout <= 0 {
		return false
	}
	timer := time.NewTimer(d.cfg.HandoffTimeout)
	defer timer.Stop()
	select {
	case d.jobs <- ev:
		return true
	case <-timer.C:
		return false
	}
}

// Close stops accepting work, drains queued events and waits for workers.
// Publish keeps working after Close by publishing inline.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
