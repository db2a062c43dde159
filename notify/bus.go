// Package notify is a process-wide toast bus. Views subscribe when they come
// up and unsubscribe on teardown; publishers never see who is listening.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultLimit is the number of toasts a scope shows at once.
	DefaultLimit = 1

	// DefaultRemoveDelay is how long a dismissed toast is kept before removal.
	DefaultRemoveDelay = 1000 * time.Second
)

// Variant selects how a toast is rendered.
type Variant string

const (
	VariantDefault     Variant = "default"
	VariantDestructive Variant = "destructive"
)

// Toast is a transient, dismissible notification.
type Toast struct {
	ID          string  `json:"id"`
	Scope       string  `json:"scope,omitempty"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Variant     Variant `json:"variant"`
	Open        bool    `json:"open"`
}

// EventType says what happened to a toast.
type EventType string

const (
	EventAdd     EventType = "add"
	EventDismiss EventType = "dismiss"
	EventRemove  EventType = "remove"
)

// Event is delivered to subscribers for every change on the bus.
type Event struct {
	Type  EventType `json:"type"`
	Toast Toast     `json:"toast"`
}

// Option configures a Bus.
type Option func(*Bus)

// WithLimit sets how many toasts a scope keeps. Older ones are removed.
func WithLimit(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.limit = n
		}
	}
}

// WithRemoveDelay sets how long a dismissed toast lingers.
func WithRemoveDelay(d time.Duration) Option {
	return func(b *Bus) { b.removeDelay = d }
}

// WithLogger sets the bus logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Bus) { b.logger = logger.Named("notify") }
}

// Bus fans toast events out to subscribers. Delivery is synchronous and
// ordered; subscribers must not block or publish from inside a callback.
type Bus struct {
	limit       int
	removeDelay time.Duration
	logger      *zap.Logger

	mu      sync.Mutex
	emitMu  sync.Mutex
	subs    map[uint64]func(Event)
	nextSub uint64
	toasts  []Toast
	timers  map[string]*time.Timer
	closed  bool
}

// NewBus creates an empty bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		limit:       DefaultLimit,
		removeDelay: DefaultRemoveDelay,
		logger:      zap.NewNop(),
		subs:        make(map[uint64]func(Event)),
		timers:      make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers fn for every future event and returns a function that
// removes it. The returned function is safe to call more than once.
func (b *Bus) Subscribe(fn func(Event)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}
	b.nextSub++
	id := b.nextSub
	b.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
		})
	}
}

// Toast publishes t and returns its ID. When the scope is at its limit the
// oldest toasts in that scope are removed first.
func (b *Bus) Toast(t Toast) string {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Variant == "" {
		t.Variant = VariantDefault
	}
	t.Open = true

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.logger.Debug("dropping toast on closed bus", zap.String("title", t.Title))
		return t.ID
	}

	var events []Event
	kept := b.toasts[:0]
	inScope := 0
	for _, existing := range b.toasts {
		if existing.Scope == t.Scope {
			inScope++
		}
	}
	drop := inScope - (b.limit - 1)
	for _, existing := range b.toasts {
		if drop > 0 && existing.Scope == t.Scope {
			drop--
			b.stopTimer(existing.ID)
			events = append(events, Event{Type: EventRemove, Toast: existing})
			continue
		}
		kept = append(kept, existing)
	}
	b.toasts = append(kept, t)
	events = append(events, Event{Type: EventAdd, Toast: t})

	b.publish(events...)
	return t.ID
}

// Dismiss closes the toast with id and removes it after the remove delay.
// Unknown ids are ignored.
func (b *Bus) Dismiss(id string) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	i := b.index(id)
	if i < 0 || !b.toasts[i].Open {
		b.mu.Unlock()
		return
	}
	b.toasts[i].Open = false
	t := b.toasts[i]
	b.timers[id] = time.AfterFunc(b.removeDelay, func() { b.remove(id) })

	b.publish(Event{Type: EventDismiss, Toast: t})
}

// DismissScope dismisses every open toast in scope.
func (b *Bus) DismissScope(scope string) {
	for _, t := range b.Active(scope) {
		b.Dismiss(t.ID)
	}
}

// Active returns the open toasts of scope, oldest first.
func (b *Bus) Active(scope string) []Toast {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Toast
	for _, t := range b.toasts {
		if t.Scope == scope && t.Open {
			out = append(out, t)
		}
	}
	return out
}

// Close drops all subscribers and pending removals. Later publications are
// ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for id := range b.timers {
		b.stopTimer(id)
	}
	b.subs = make(map[uint64]func(Event))
	b.toasts = nil
}

func (b *Bus) remove(id string) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	delete(b.timers, id)
	i := b.index(id)
	if i < 0 {
		b.mu.Unlock()
		return
	}
	t := b.toasts[i]
	b.toasts = append(b.toasts[:i], b.toasts[i+1:]...)

	b.publish(Event{Type: EventRemove, Toast: t})
}

// publish must be called with b.mu held; it releases it.
func (b *Bus) publish(events ...Event) {
	subs := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.emitMu.Lock()
	b.mu.Unlock()
	defer b.emitMu.Unlock()

	for _, ev := range events {
		for _, fn := range subs {
			fn(ev)
		}
	}
}

func (b *Bus) index(id string) int {
	for i, t := range b.toasts {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (b *Bus) stopTimer(id string) {
	if timer, ok := b.timers[id]; ok {
		timer.Stop()
		delete(b.timers, id)
	}
}
