// Package eventbus fans appliance events out to slow consumers (ledger,
// NATS, metrics) on a bounded worker pool, so merge-cycle listeners never
// block on I/O.
//
// Each worker owns its own queue and every device is pinned to one worker,
// so handlers see one device's events in publish order.
package eventbus

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// EventType represents the type of event
type EventType string

const (
	EventStateChanged EventType = "state_changed"
	EventCommand      EventType = "command"
	EventAutoAdjust   EventType = "auto_adjust"
	EventPoll         EventType = "poll"
)

// Default configuration
const (
	DefaultWorkerCount = 4
	DefaultQueueSize   = 256
)

// Event is one occurrence on one appliance. Payload holds the typed
// value of the producing package (state.Change, command.Result,
// autocontrol.Adjustment, poller.Result).
type Event struct {
	Type     EventType
	DeviceID string
	At       time.Time
	Payload  any
}

// Handler is a function that handles events
type Handler func(Event)

type work struct {
	event   Event
	handler Handler
}

// Bus provides event routing with a bounded worker pool
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler

	// closed and the queue close are guarded by mu; Publish holds the
	// read lock while sending so it never sends on a closed queue.
	queues []chan work
	closed bool
	wg     sync.WaitGroup

	dropped atomic.Uint64
}

// New creates a new event bus with default settings
func New() *Bus {
	return NewWithConfig(DefaultWorkerCount, DefaultQueueSize)
}

// NewWithConfig creates a new event bus with custom worker count and queue size
func NewWithConfig(workerCount, queueSize int) *Bus {
	if workerCount <= 0 {
		workerCount = DefaultWorkerCount
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	b := &Bus{
		handlers: make(map[EventType][]Handler),
		queues:   make([]chan work, workerCount),
	}

	for i := range b.queues {
		b.queues[i] = make(chan work, queueSize)
		b.wg.Add(1)
		go b.worker(i, b.queues[i])
	}

	log.Debug().Int("workers", workerCount).Int("queue_size", queueSize).Msg("Event bus worker pool started")
	return b
}

func (b *Bus) worker(id int, queue <-chan work) {
	defer b.wg.Done()

	for w := range queue {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Interface("panic", r).
						Str("event_type", string(w.event.Type)).
						Str("device", w.event.DeviceID).
						Int("worker", id).
						Msg("Event handler panicked")
				}
			}()
			w.handler(w.event)
		}()
	}
}

// Subscribe registers a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// queueFor pins a device to one worker queue.
func (b *Bus) queueFor(deviceID string) chan work {
	h := fnv.New32a()
	_, _ = h.Write([]byte(deviceID))
	return b.queues[h.Sum32()%uint32(len(b.queues))]
}

// Publish queues the event for every subscribed handler. It never blocks:
// when the device's queue is full or the bus is closing the event is dropped.
// Events published in order for one device are handled in that order.
func (b *Bus) Publish(event Event) {
	if event.At.IsZero() {
		event.At = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	handlers := b.handlers[event.Type]
	if b.closed {
		if len(handlers) > 0 {
			b.dropped.Add(uint64(len(handlers)))
			log.Warn().Str("event_type", string(event.Type)).Msg("Event bus closed, dropping event")
		}
		return
	}

	queue := b.queueFor(event.DeviceID)
	for _, handler := range handlers {
		select {
		case queue <- work{event: event, handler: handler}:
		default:
			b.dropped.Add(1)
			log.Warn().
				Str("event_type", string(event.Type)).
				Str("device", event.DeviceID).
				Msg("Event bus queue full, dropping event")
		}
	}
}

// Dropped returns how many handler deliveries were dropped so far.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

// Close stops accepting events, drains the queue and waits for workers
// until ctx is done.
func (b *Bus) Close(ctx context.Context) {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		for _, q := range b.queues {
			close(q)
		}
	}
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Debug().Msg("Event bus workers stopped gracefully")
	case <-ctx.Done():
		log.Warn().Msg("Event bus shutdown timed out, some events may be lost")
	}
}
