package eventbus

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/resilient-client/go/internal/core/ports"
)

const DefaultHistoryCapacity = 50

// Subscription identifies one registered handler. Handlers are funcs and
// cannot be compared, so callers keep the Subscription to unsubscribe.
type Subscription struct {
	id        uint64
	eventType reflect.Type
}

type handlerEntry struct {
	id     uint64
	invoke func(any)
}

// Bus is a typed publish/subscribe hub. Subscribers are keyed by the Go type of the event.
type Bus struct {
	mu       sync.RWMutex
	handlers map[reflect.Type][]handlerEntry
	nextID   uint64

	historyMu sync.Mutex
	history   *ring

	clock  clockwork.Clock
	logger *logrus.Logger
}

// New creates a bus keeping at most historyCapacity records (default 50).
func New(historyCapacity int, clock clockwork.Clock, logger *logrus.Logger) *Bus {
	if historyCapacity <= 0 {
		historyCapacity = DefaultHistoryCapacity
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Bus{
		handlers: make(map[reflect.Type][]handlerEntry),
		history:  newRing(historyCapacity),
		clock:    clock,
		logger:   logger,
	}
}

var _ ports.EventPublisher = (*Bus)(nil)

// Subscribe registers handler for events of type T. Handlers run in registration order.
func Subscribe[T any](b *Bus, handler func(T)) Subscription {
	t := reflect.TypeFor[T]()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.handlers[t] = append(b.handlers[t], handlerEntry{
		id:     id,
		invoke: func(evt any) { handler(evt.(T)) },
	})
	return Subscription{id: id, eventType: t}
}

// Unsubscribe removes the handler behind sub. Unknown subscriptions are ignored.
func (b *Bus) Unsubscribe(sub Subscription) {
	if sub.eventType == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.handlers[sub.eventType]
	for i, h := range list {
		if h.id != sub.id {
			continue
		}
		// copy so in-flight snapshots keep their view
		next := make([]handlerEntry, 0, len(list)-1)
		next = append(next, list[:i]...)
		next = append(next, list[i+1:]...)
		if len(next) == 0 {
			delete(b.handlers, sub.eventType)
		} else {
			b.handlers[sub.eventType] = next
		}
		return
	}
}

// Unsubscribe is the typed form of Bus.Unsubscribe.
func Unsubscribe[T any](b *Bus, sub Subscription) {
	if sub.eventType != reflect.TypeFor[T]() {
		return
	}
	b.Unsubscribe(sub)
}

// Publish delivers evt to the subscribers of T.
func Publish[T any](b *Bus, evt T) {
	b.publish(reflect.TypeFor[T](), evt)
}

// Publish delivers event to the subscribers of its dynamic type.
func (b *Bus) Publish(event any) {
	if event == nil {
		return
	}
	b.publish(reflect.TypeOf(event), event)
}

func (b *Bus) publish(t reflect.Type, event any) {
	name := t.String()

	b.historyMu.Lock()
	b.history.push(Record{EventType: name, Payload: event, Timestamp: b.clock.Now()})
	b.historyMu.Unlock()
	eventsPublished.WithLabelValues(name).Inc()

	b.mu.RLock()
	snapshot := b.handlers[t]
	b.mu.RUnlock()

	for _, h := range snapshot {
		b.invoke(name, h, event)
	}
}

func (b *Bus) invoke(name string, h handlerEntry, event any) {
	defer func() {
		if r := recover(); r != nil {
			handlerFailures.WithLabelValues(name).Inc()
			if b.logger != nil {
				b.logger.WithFields(logrus.Fields{"event_type": name, "subscription": h.id}).WithError(fmt.Errorf("%v", r)).Error("event handler failed")
			}
		}
	}()
	h.invoke(event)
}

// HandlerCount returns the number of handlers registered for T.
func HandlerCount[T any](b *Bus) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[reflect.TypeFor[T]()])
}

// Clear removes every handler registered for T.
func Clear[T any](b *Bus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, reflect.TypeFor[T]())
}

// ClearAll removes every subscription. History is kept.
func (b *Bus) ClearAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[reflect.Type][]handlerEntry)
}

// History returns a copy of the recorded events, oldest first.
func (b *Bus) History() []Record {
	b.historyMu.Lock()
	defer b.historyMu.Unlock()
	return b.history.snapshot()
}

// ClearHistory drops all recorded events.
func (b *Bus) ClearHistory() {
	b.historyMu.Lock()
	defer b.historyMu.Unlock()
	b.history.reset()
}
