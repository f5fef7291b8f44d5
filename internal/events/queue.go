package events

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

var (
	ErrQueueClosed = errors.New("notification queue is closed")
	// ErrQueueFull means every worker is busy and the buffer is used up. The work the
	// notification stood for is picked up by the next trigger.
	ErrQueueFull = errors.New("notification queue is full")
)

// Handler processes one notification. It must not return errors; failures end there.
type Handler interface {
	Handle(ctx context.Context, n Notification)
}

// Queue is an in-memory channel of notifications consumed by a fixed worker pool.
// Publishers return once the notification is buffered and never see rebuild results.
type Queue struct {
	ch        chan Notification
	closeChan chan struct{}
	handler   Handler
	workers   int
	log       zerolog.Logger
	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
	stopOnce  sync.Once
}

func NewQueue(size, workers int, handler Handler, log zerolog.Logger) *Queue {
	if size < 1 {
		size = 1
	}
	if workers < 1 {
		workers = 1
	}
	return &Queue{
		ch:        make(chan Notification, size),
		closeChan: make(chan struct{}),
		handler:   handler,
		workers:   workers,
		log:       log.With().Str("component", "queue").Logger(),
	}
}

// Publish enqueues n without waiting. A full buffer is reported as ErrQueueFull
// rather than waiting for a worker to finish a rebuild.
func (q *Queue) Publish(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.ch <- n:
		q.log.Debug().Str("event_id", n.EventID().String()).Str("kind", n.Kind()).Msg("Notification queued")
		return nil
	default:
		q.log.Warn().Str("event_id", n.EventID().String()).Str("kind", n.Kind()).Msg("Notification queue full, dropping notification")
		return ErrQueueFull
	}
}

// Start launches the workers. They run until Stop is called or ctx is cancelled.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
	q.log.Info().Int("workers", q.workers).Msg("Notification queue started")
	return nil
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case n := <-q.ch:
			q.handler.Handle(ctx, n)
		case <-q.closeChan:
			q.drain(ctx)
			return
		}
	}
}

// drain handles whatever was buffered before Stop
func (q *Queue) drain(ctx context.Context) {
	for {
		select {
		case n := <-q.ch:
			q.handler.Handle(ctx, n)
		default:
			return
		}
	}
}

// Stop refuses new notifications, lets workers finish buffered ones and waits for
// them until ctx expires.
func (q *Queue) Stop(ctx context.Context) error {
	q.stopOnce.Do(func() { close(q.closeChan) })

	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		q.drain(ctx)
		close(done)
	}()

	select {
	case <-done:
		q.log.Info().Msg("Notification queue stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
