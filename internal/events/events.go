// Package events carries change notifications from the watcher and the
// document service to their consumers.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Kind identifies an event type.
type Kind string

const (
	FileCreated Kind = "file:created"
	FileChanged Kind = "file:changed"
	FileDeleted Kind = "file:deleted"
	// IgnoreChanged fires when the ignore file is created, modified or removed.
	IgnoreChanged Kind = "ignore:changed"
	// All subscribes a handler to every kind.
	All Kind = "*"
)

// Event is a single change notification. Path is relative to the content root.
type Event struct {
	Kind      Kind
	Path      string
	Timestamp time.Time
}

// New returns an event stamped with the current time.
func New(kind Kind, path string) Event {
	return Event{Kind: kind, Path: path, Timestamp: time.Now()}
}

type wireEvent struct {
	Type      Kind   `json:"type"`
	Path      string `json:"path,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// MarshalJSON encodes the event as {"type","path","timestamp"} with the
// timestamp in Unix milliseconds.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireEvent{Type: e.Kind, Path: e.Path, Timestamp: e.Timestamp.UnixMilli()})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	e.Kind = w.Type
	e.Path = w.Path
	e.Timestamp = time.UnixMilli(w.Timestamp)
	return nil
}

func (e Event) String() string {
	return fmt.Sprintf("%s %s", e.Kind, e.Path)
}

// Handler receives events. It runs on the emitting goroutine.
type Handler func(Event)

// Publisher is what event sources depend on.
type Publisher interface {
	Emit(Event)
}

// Subscription identifies a registered handler.
type Subscription struct {
	kind Kind
	id   uint64
}

type entry struct {
	id uint64
	h  Handler
}

// Bus is a synchronous in-process publish/subscribe registry.
type Bus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[Kind][]entry
	logger   *slog.Logger
}

// NewBus creates an empty bus. A nil logger falls back to slog.Default.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{handlers: make(map[Kind][]entry), logger: logger}
}

// On registers h for kind (or All) and returns a handle for Off.
func (b *Bus) On(kind Kind, h Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.handlers[kind] = append(b.handlers[kind], entry{id: b.nextID, h: h})
	return Subscription{kind: kind, id: b.nextID}
}

// Off removes a handler. Unknown subscriptions are ignored.
func (b *Bus) Off(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.handlers[sub.kind]
	for i, e := range list {
		if e.id == sub.id {
			b.handlers[sub.kind] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(b.handlers[sub.kind]) == 0 {
		delete(b.handlers, sub.kind)
	}
}

// Emit delivers e to every handler registered for its kind and to All
// handlers, in registration order. Handlers run outside the bus lock so
// they may subscribe or unsubscribe. A panicking handler is logged and
// does not stop delivery to the rest.
func (b *Bus) Emit(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	b.mu.RLock()
	targets := make([]Handler, 0, len(b.handlers[e.Kind])+len(b.handlers[All]))
	for _, en := range b.handlers[e.Kind] {
		targets = append(targets, en.h)
	}
	for _, en := range b.handlers[All] {
		targets = append(targets, en.h)
	}
	b.mu.RUnlock()

	for _, h := range targets {
		b.call(h, e)
	}
}

// Subscribers returns the number of handlers registered for kind.
func (b *Bus) Subscribers(kind Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[kind])
}

func (b *Bus) call(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("events: handler panicked",
				slog.String("event", e.String()),
				slog.String("panic", fmt.Sprint(r)))
		}
	}()
	h(e)
}
