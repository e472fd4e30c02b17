package event

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/kamstrup/intmap"
)

var (
	// ErrBufferFull is returned by Publish when the ring buffer has no free slot. The event is dropped.
	ErrBufferFull = errors.New("event: buffer full, event dropped")

	// ErrBusClosed is returned by operations on a bus that has been closed.
	ErrBusClosed = errors.New("event: bus closed")

	// ErrDuplicateSubscription is returned when a listener subscribes twice to the same code.
	ErrDuplicateSubscription = errors.New("event: listener already subscribed to code")

	// ErrUnknownSubscription is returned by Unsubscribe for a token that is not registered.
	ErrUnknownSubscription = errors.New("event: unknown subscription")

	// ErrNilHandler is returned when subscribing a nil handler.
	ErrNilHandler = errors.New("event: nil handler")
)

// DefaultCapacity is the ring buffer size used when no capacity option is given.
const DefaultCapacity = 4096

// ListenerID identifies a producer or consumer of events. The zero value is anonymous.
type ListenerID uint64

var lastListenerID atomic.Uint64

// NewListenerID returns a process-unique listener identity.
//
// Returns:
//   - ListenerID: a fresh non-zero identity
func NewListenerID() ListenerID {
	return ListenerID(lastListenerID.Add(1))
}

// Event is a single buffered notification.
type Event struct {
	Code    Code
	Sender  ListenerID
	Payload Payload
}

// Handler is invoked on the dispatching goroutine for every event of the subscribed code.
type Handler func(ev Event)

// Subscription is the token returned by Subscribe and consumed by Unsubscribe.
type Subscription struct {
	code Code
	id   uint64
}

// Code returns the event code the subscription is registered for.
func (s Subscription) Code() Code {
	return s.code
}

// Valid reports whether the token was issued by a bus.
func (s Subscription) Valid() bool {
	return s.id != 0
}

type subscriber struct {
	id       uint64
	listener ListenerID
	handler  Handler
}

// bus is the implementation of the Bus interface.
type bus struct {
	mu sync.Mutex

	// subscriber lists are copy-on-write so Dispatch can run handlers without holding mu.
	subscribers *intmap.Map[Code, []subscriber]
	nextSubID   uint64

	queue    *ring[Event]
	capacity int
	closed   bool

	logger *slog.Logger
}

// Bus is an in-process publish/subscribe queue with deferred dispatch.
//
// Publish only enqueues; nothing runs until Dispatch drains the queue in FIFO order and calls
// every subscriber of each event's code in registration order. Publish may be called from any
// goroutine. Dispatch, Subscribe and Unsubscribe are meant for the frame goroutine, though they
// are safe to call concurrently.
type Bus interface {
	// Subscribe registers a handler for a code.
	// A non-zero listener may hold at most one subscription per code.
	//
	// Parameters:
	//   - code: the event code to listen for
	//   - listener: identity of the subscriber, or 0 for an anonymous subscription
	//   - handler: the function to call for each dispatched event
	//
	// Returns:
	//   - Subscription: token used to unsubscribe
	//   - error: ErrDuplicateSubscription, ErrNilHandler or ErrBusClosed
	Subscribe(code Code, listener ListenerID, handler Handler) (Subscription, error)

	// Unsubscribe removes a registration.
	//
	// Parameters:
	//   - sub: the token returned by Subscribe
	//
	// Returns:
	//   - error: ErrUnknownSubscription if the token is not registered
	Unsubscribe(sub Subscription) error

	// Publish enqueues an event. It never runs handlers.
	//
	// Parameters:
	//   - code: the event code
	//   - sender: identity of the producer
	//   - payload: fixed-size event data
	//
	// Returns:
	//   - error: ErrBufferFull when the event was dropped, ErrBusClosed after Close
	Publish(code Code, sender ListenerID, payload Payload) error

	// Dispatch drains the events that were queued when it was called and runs their handlers
	// on the calling goroutine. Events published by handlers are kept for the next Dispatch.
	//
	// Returns:
	//   - int: the number of events dispatched
	Dispatch() int

	// Pending returns the number of queued, undispatched events.
	Pending() int

	// Capacity returns the ring buffer size.
	Capacity() int

	// Subscribers returns the number of subscriptions registered for a code.
	Subscribers(code Code) int

	// Close drops all subscribers and buffered events. Further publishes fail with ErrBusClosed.
	Close()
}

var _ Bus = &bus{}

// NewBus creates an operational Bus.
//
// Parameters:
//   - options: functional options to configure the bus
//
// Returns:
//   - Bus: the newly created bus
func NewBus(options ...BusBuilderOption) Bus {
	b := &bus{
		capacity: DefaultCapacity,
		logger:   slog.Default(),
	}
	for _, option := range options {
		option(b)
	}
	if b.capacity <= 0 {
		panic("event: NewBus requires a positive capacity")
	}
	b.queue = newRing[Event](b.capacity)
	b.subscribers = intmap.New[Code, []subscriber](32)
	return b
}

func (b *bus) Subscribe(code Code, listener ListenerID, handler Handler) (Subscription, error) {
	if handler == nil {
		return Subscription{}, ErrNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return Subscription{}, ErrBusClosed
	}

	current, _ := b.subscribers.Get(code)
	if listener != 0 {
		for _, s := range current {
			if s.listener == listener {
				b.logger.Warn("duplicate event subscription", "code", code, "listener", listener)
				return Subscription{}, ErrDuplicateSubscription
			}
		}
	}

	b.nextSubID++
	next := make([]subscriber, len(current), len(current)+1)
	copy(next, current)
	next = append(next, subscriber{id: b.nextSubID, listener: listener, handler: handler})
	b.subscribers.Put(code, next)

	return Subscription{code: code, id: b.nextSubID}, nil
}

func (b *bus) Unsubscribe(sub Subscription) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	current, _ := b.subscribers.Get(sub.code)
	for i, s := range current {
		if s.id != sub.id {
			continue
		}
		if len(current) == 1 {
			b.subscribers.Del(sub.code)
			return nil
		}
		next := make([]subscriber, 0, len(current)-1)
		next = append(next, current[:i]...)
		next = append(next, current[i+1:]...)
		b.subscribers.Put(sub.code, next)
		return nil
	}

	b.logger.Warn("unsubscribe of unknown subscription", "code", sub.code)
	return ErrUnknownSubscription
}

func (b *bus) Publish(code Code, sender ListenerID, payload Payload) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	if !b.queue.push(Event{Code: code, Sender: sender, Payload: payload}) {
		b.logger.Warn("event dropped", "code", code, "sender", sender, "capacity", b.capacity)
		return ErrBufferFull
	}
	return nil
}

func (b *bus) Dispatch() int {
	b.mu.Lock()
	n := b.queue.len()
	b.mu.Unlock()

	dispatched := 0
	for range n {
		b.mu.Lock()
		ev, ok := b.queue.pop()
		var subs []subscriber
		if ok {
			subs, _ = b.subscribers.Get(ev.Code)
		}
		b.mu.Unlock()

		// Close from a handler empties the queue.
		if !ok {
			break
		}
		for _, s := range subs {
			s.handler(ev)
		}
		dispatched++
	}
	return dispatched
}

func (b *bus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queue.len()
}

func (b *bus) Capacity() int {
	return b.capacity
}

func (b *bus) Subscribers(code Code) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs, _ := b.subscribers.Get(code)
	return len(subs)
}

func (b *bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	if dropped := b.queue.len(); dropped > 0 {
		b.logger.Debug("event bus closed with pending events", "dropped", dropped)
	}
	b.closed = true
	b.queue.reset()
	b.subscribers.Clear()
}
