package chat

import (
	"context"
	"log"
	"sync"
	"time"

	"chatsurvey/internal/model"
)

const (
	queueDepth  = 32
	workerIdle  = 5 * time.Minute
	handleLimit = 2 * time.Minute
)

// HandlerFunc processes one inbound message event
type HandlerFunc func(ctx context.Context, ev *model.MessageEvent) error

// Dispatcher fans inbound events out to one worker goroutine per respondent,
// so a respondent's messages are processed strictly in arrival order while
// different respondents run concurrently. Idle workers exit after a timeout
// so the map does not grow with lifetime respondent count.
type Dispatcher struct {
	handler HandlerFunc
	idle    time.Duration

	mu     sync.Mutex
	queues map[string]chan *model.MessageEvent
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(handler HandlerFunc) *Dispatcher {
	return &Dispatcher{
		handler: handler,
		idle:    workerIdle,
		queues:  make(map[string]chan *model.MessageEvent),
	}
}

// Enqueue hands an event to the sender's worker, starting one if needed.
// The send happens under the same lock the idle reap takes, so a queue
// looked up here is still drained by its worker: it cannot be removed
// between lookup and send. When the sender's queue is full the event is
// dropped with a log line; the transport redelivers on its own schedule.
func (d *Dispatcher) Enqueue(ev *model.MessageEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	queue, ok := d.queues[ev.From]
	if !ok {
		queue = make(chan *model.MessageEvent, queueDepth)
		d.queues[ev.From] = queue
		go d.worker(ev.From, queue)
	}

	select {
	case queue <- ev:
	default:
		log.Printf("[Dispatch] queue full for %s, dropping message %s", ev.From, ev.MessageID)
	}
}

func (d *Dispatcher) worker(key string, queue chan *model.MessageEvent) {
	idle := time.NewTimer(d.idle)
	defer idle.Stop()

	for {
		select {
		case ev := <-queue:
			ctx, cancel := context.WithTimeout(context.Background(), handleLimit)
			if err := d.handler(ctx, ev); err != nil {
				log.Printf("[Dispatch] handling message %s from %s: %v", ev.MessageID, ev.From, err)
			}
			cancel()

			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(d.idle)

		case <-idle.C:
			d.mu.Lock()
			// A message may have raced in while the timer fired; keep the
			// worker alive if so.
			if len(queue) == 0 {
				delete(d.queues, key)
				d.mu.Unlock()
				return
			}
			d.mu.Unlock()
			idle.Reset(d.idle)
		}
	}
}
