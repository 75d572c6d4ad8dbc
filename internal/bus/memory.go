package bus

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryBus is an in-process Bus. Publish dispatches synchronously on the
// caller's goroutine against a snapshot of the subscriber list, so handlers
// may themselves publish without deadlocking.
type MemoryBus struct {
	mu       sync.RWMutex
	subs     map[string][]memorySub
	seq      atomic.Uint64
	closed   atomic.Bool
	emitted  atomic.Uint64
}

type memorySub struct {
	id      uint64
	handler Handler
}

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]memorySub)}
}

// Publish delivers msg to every current subscriber of msg.Type.
func (b *MemoryBus) Publish(msg *Message) error {
	if b.closed.Load() {
		return errors.New("bus: publish on closed bus")
	}
	if msg == nil || msg.Type == "" {
		return errors.New("bus: publish requires a typed message")
	}

	b.mu.RLock()
	snapshot := make([]memorySub, len(b.subs[msg.Type]))
	copy(snapshot, b.subs[msg.Type])
	b.mu.RUnlock()

	b.emitted.Add(1)
	for _, sub := range snapshot {
		sub.handler(msg)
	}
	return nil
}

// Subscribe registers h for topic.
func (b *MemoryBus) Subscribe(topic string, h Handler) Subscription {
	id := b.seq.Add(1)
	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], memorySub{id: id, handler: h})
	b.mu.Unlock()
	return Subscription{topic: topic, id: id}
}

// Unsubscribe removes the handler identified by sub.
func (b *MemoryBus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[sub.topic]
	for i, s := range subs {
		if s.id == sub.id {
			b.subs[sub.topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

// Request performs a correlated round trip over the in-process bus.
func (b *MemoryBus) Request(msg *Message, replyTopic string, timeout time.Duration) (*Message, error) {
	return awaitReply(b, msg, replyTopic, timeout)
}

// Close marks the bus closed and drops all subscribers.
func (b *MemoryBus) Close() error {
	b.closed.Store(true)
	b.mu.Lock()
	b.subs = make(map[string][]memorySub)
	b.mu.Unlock()
	return nil
}

// Emitted reports the number of messages published, for tests and stats.
func (b *MemoryBus) Emitted() uint64 { return b.emitted.Load() }

// awaitReply implements the correlated request pattern shared by every
// transport: subscribe to the reply topic, publish the request, wait for the
// first reply whose ident matches (or that carries no ident at all).
func awaitReply(b Bus, msg *Message, replyTopic string, timeout time.Duration) (*Message, error) {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	ident := msg.EnsureIdent()

	replyCh := make(chan *Message, 1)
	sub := b.Subscribe(replyTopic, func(reply *Message) {
		if rid := reply.Ident(); rid != "" && rid != ident {
			return
		}
		select {
		case replyCh <- reply:
		default:
		}
	})
	defer b.Unsubscribe(sub)

	if err := b.Publish(msg); err != nil {
		return nil, err
	}

	select {
	case reply := <-replyCh:
		return reply, nil
	case <-time.After(timeout):
		return nil, ErrTimeout
	}
}
