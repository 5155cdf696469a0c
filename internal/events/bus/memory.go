package bus

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/kandev/voicectl/internal/common/logger"
)

// subscriberBuffer is how many undelivered events a subscriber may lag behind
// before new events for it are dropped.
const subscriberBuffer = 256

// MemoryEventBus implements EventBus in-process. Every subscription owns a
// delivery goroutine, so one subscriber sees events in publish order.
type MemoryEventBus struct {
	mu     sync.RWMutex
	subs   []*memorySubscription
	queues map[string]*queueGroup
	logger *logger.Logger
	closed bool
}

type memorySubscription struct {
	bus     *MemoryEventBus
	pattern string
	queue   string
	handler EventHandler
	inbox   chan delivery

	mu       sync.Mutex
	active   bool
	draining bool
	done     chan struct{}
	finished chan struct{}
}

type delivery struct {
	ctx     context.Context
	subject string
	event   *Event
}

// queueGroup round-robins deliveries across its members.
type queueGroup struct {
	members []*memorySubscription
	next    int
}

// NewMemoryEventBus creates a new in-memory event bus
func NewMemoryEventBus(log *logger.Logger) *MemoryEventBus {
	return &MemoryEventBus{
		queues: make(map[string]*queueGroup),
		logger: log,
	}
}

// Publish enqueues the event for every matching subscriber.
func (b *MemoryEventBus) Publish(ctx context.Context, subject string, event *Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("event bus is closed")
	}

	d := delivery{ctx: context.WithoutCancel(ctx), subject: subject, event: event}
	seenQueues := make(map[string]bool)
	for _, sub := range b.subs {
		if !subjectMatches(sub.pattern, subject) {
			continue
		}
		if sub.queue == "" {
			b.enqueue(sub, d)
			continue
		}
		key := queueKey(sub.queue, sub.pattern)
		if seenQueues[key] {
			continue
		}
		seenQueues[key] = true
		if member := b.queues[key].pick(); member != nil {
			b.enqueue(member, d)
		}
	}

	b.logger.Debug("Published event",
		zap.String("subject", subject),
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type))
	return nil
}

func (b *MemoryEventBus) enqueue(sub *memorySubscription, d delivery) {
	select {
	case sub.inbox <- d:
	default:
		b.logger.Warn("Dropping event for slow subscriber",
			zap.String("subject", d.subject),
			zap.String("pattern", sub.pattern),
			zap.String("event_type", d.event.Type))
	}
}

// Subscribe creates a subscription to a subject pattern
func (b *MemoryEventBus) Subscribe(subject string, handler EventHandler) (Subscription, error) {
	return b.subscribe(subject, "", handler)
}

// QueueSubscribe creates a queue subscription; one member of the group gets each event.
func (b *MemoryEventBus) QueueSubscribe(subject, queue string, handler EventHandler) (Subscription, error) {
	return b.subscribe(subject, queue, handler)
}

func (b *MemoryEventBus) subscribe(subject, queue string, handler EventHandler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("event bus is closed")
	}

	sub := &memorySubscription{
		bus:     b,
		pattern: subject,
		queue:   queue,
		handler: handler,
		inbox:   make(chan delivery, subscriberBuffer),
		active:   true,
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	b.subs = append(b.subs, sub)
	if queue != "" {
		key := queueKey(queue, subject)
		qg, ok := b.queues[key]
		if !ok {
			qg = &queueGroup{}
			b.queues[key] = qg
		}
		qg.members = append(qg.members, sub)
	}
	go sub.run()

	b.logger.Debug("Subscribed to subject",
		zap.String("subject", subject),
		zap.String("queue", queue))
	return sub, nil
}

// Close deactivates every subscription; later publishes fail.
func (b *MemoryEventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, sub := range b.subs {
		sub.stop()
	}
	b.subs = nil
	b.queues = make(map[string]*queueGroup)

	b.logger.Debug("Memory event bus closed")
}

// IsConnected returns true until Close is called.
func (b *MemoryEventBus) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.closed
}

func (s *memorySubscription) run() {
	defer close(s.finished)
	for {
		select {
		case <-s.done:
			return
		case d, ok := <-s.inbox:
			if !ok {
				return
			}
			if err := s.handler(d.ctx, d.event); err != nil {
				s.bus.logger.Error("Event handler error",
					zap.String("subject", d.subject),
					zap.String("event_type", d.event.Type),
					zap.Error(err))
			}
		}
	}
}

// stop must be called with the bus lock held.
func (s *memorySubscription) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		s.active = false
		close(s.done)
	}
}

// Unsubscribe removes the subscription; queued but undelivered events are discarded.
func (s *memorySubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	s.stop()
	s.detach()
	return nil
}

// Drain detaches the subscription and waits for its queued events to be handled.
func (s *memorySubscription) Drain(ctx context.Context) error {
	s.bus.mu.Lock()
	s.detach()
	s.mu.Lock()
	if s.active && !s.draining {
		s.draining = true
		// Publish only writes to attached subscriptions under the bus lock.
		close(s.inbox)
	}
	s.mu.Unlock()
	s.bus.mu.Unlock()

	select {
	case <-s.finished:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
	return nil
}

// detach must be called with the bus lock held.
func (s *memorySubscription) detach() {
	for i, sub := range s.bus.subs {
		if sub == s {
			s.bus.subs = append(s.bus.subs[:i], s.bus.subs[i+1:]...)
			break
		}
	}
	if s.queue != "" {
		if qg, ok := s.bus.queues[queueKey(s.queue, s.pattern)]; ok {
			qg.remove(s)
		}
	}
}

// IsValid returns whether the subscription is still active
func (s *memorySubscription) IsValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func queueKey(queue, pattern string) string {
	return queue + ":" + pattern
}

func (q *queueGroup) pick() *memorySubscription {
	if q == nil || len(q.members) == 0 {
		return nil
	}
	member := q.members[q.next%len(q.members)]
	q.next = (q.next + 1) % len(q.members)
	return member
}

func (q *queueGroup) remove(s *memorySubscription) {
	for i, m := range q.members {
		if m == s {
			q.members = append(q.members[:i], q.members[i+1:]...)
			break
		}
	}
	if q.next >= len(q.members) {
		q.next = 0
	}
}
