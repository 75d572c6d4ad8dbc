package bus

import (
	"errors"
	"time"
)

// Handler consumes one delivered message. Handlers must not retain the
// message past the call unless they copy it.
type Handler func(msg *Message)

// ErrTimeout is returned by Request when no correlated reply arrives within
// the configured wait.
var ErrTimeout = errors.New("bus: request timed out")

// DefaultRequestTimeout bounds every correlated round trip unless the caller
// supplies its own.
const DefaultRequestTimeout = 10 * time.Second

// Bus is the transport contract. Delivery may happen on one or more
// goroutines owned by the transport; subscribers must be safe for concurrent
// invocation.
type Bus interface {
	// Publish emits a message to every subscriber of its type.
	Publish(msg *Message) error

	// Subscribe registers a handler for a topic and returns a token for
	// Unsubscribe.
	Subscribe(topic string, h Handler) Subscription

	// Unsubscribe removes a previously registered handler.
	Unsubscribe(sub Subscription)

	// Request publishes msg (stamping a correlation ident if absent) and
	// waits for a reply on replyTopic carrying the same ident, or any reply
	// on that topic if the responder did not echo the ident. Returns
	// ErrTimeout when the wait expires.
	Request(msg *Message, replyTopic string, timeout time.Duration) (*Message, error)

	// Close releases transport resources. Publish after Close is an error.
	Close() error
}

// Subscription identifies one registered handler.
type Subscription struct {
	topic string
	id    uint64
}

// Topic reports the topic this subscription is attached to.
func (s Subscription) Topic() string { return s.topic }
