// Package dispatch decouples the protocol receive path from consumer
// callbacks: events are queued in arrival order and delivered serially by a
// single worker, so a slow callback delays later events but never blocks the
// connection.
package dispatch

import (
	"context"
	"sync"

	"bybitflow/logger"
	"bybitflow/models"
)

// Handler consumes one event payload. The owner handle is whatever the
// embedding component registered itself as, typically the live session.
type Handler[S any] func(owner S, payload interface{})

// Queue is a many-producer single-consumer FIFO of topic events. Topics with
// no registered handler are dropped silently. The backlog is unbounded so
// producers never wait on the consumer.
type Queue[S any] struct {
	owner    S
	handlers map[models.Topic]Handler[S]
	log      *logger.Entry

	mu      sync.Mutex
	cond    *sync.Cond
	events  []models.Event
	closed  bool
	running bool
	done    chan struct{}
}

// New creates a queue. The capacity is a pre-allocation hint for the backlog,
// not a limit. Handlers with a nil value suppress dispatch for their topic,
// same as an absent entry.
func New[S any](log *logger.Log, capacity int, handlers map[models.Topic]Handler[S]) *Queue[S] {
	if capacity <= 0 {
		capacity = 256
	}
	hs := make(map[models.Topic]Handler[S], len(handlers))
	for topic, h := range handlers {
		if h != nil {
			hs[topic] = h
		}
	}
	q := &Queue[S]{
		handlers: hs,
		events:   make([]models.Event, 0, capacity),
		log:      log.WithComponent("dispatch"),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Bind sets the owner handle passed to every handler. Must be called before
// Start.
func (q *Queue[S]) Bind(owner S) {
	q.owner = owner
}

// Empty reports whether any handler is registered at all. Callers may skip
// queueing entirely when nothing listens.
func (q *Queue[S]) Empty() bool {
	return len(q.handlers) == 0
}

// Publish enqueues one event in arrival order. It never blocks: the backlog
// grows as needed, so a slow callback delays delivery but not the producer.
// Events published after Stop are discarded.
func (q *Queue[S]) Publish(ev models.Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.events = append(q.events, ev)
	q.mu.Unlock()
	q.cond.Signal()
}

// Start launches the worker goroutine. It returns immediately; the worker
// runs until the context is canceled or Stop is called.
func (q *Queue[S]) Start(ctx context.Context) {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.done = make(chan struct{})
	q.mu.Unlock()

	go q.worker(ctx)
	q.log.WithFields(logger.Fields{"handlers": len(q.handlers)}).Info("dispatch worker started")
}

func (q *Queue[S]) worker(ctx context.Context) {
	defer close(q.done)

	// Context cancellation has to wake a worker parked on the condition.
	go func() {
		<-ctx.Done()
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
		q.cond.Broadcast()
	}()

	for {
		q.mu.Lock()
		for len(q.events) == 0 && !q.closed {
			q.cond.Wait()
		}
		if q.closed {
			q.mu.Unlock()
			return
		}
		ev := q.events[0]
		q.events[0] = models.Event{}
		q.events = q.events[1:]
		q.mu.Unlock()

		q.deliver(ev)
	}
}

func (q *Queue[S]) deliver(ev models.Event) {
	h, ok := q.handlers[ev.Topic]
	if !ok {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			q.log.WithFields(logger.Fields{"topic": ev.Topic, "panic": r}).Error("callback panicked")
		}
	}()
	h(q.owner, ev.Payload)
}

// Stop wakes the worker and waits for it to exit. Pending events are
// abandoned.
func (q *Queue[S]) Stop() {
	q.mu.Lock()
	q.closed = true
	done := q.done
	running := q.running
	q.running = false
	q.mu.Unlock()
	q.cond.Broadcast()

	if !running || done == nil {
		return
	}
	<-done
	q.log.Info("dispatch worker stopped")
}
