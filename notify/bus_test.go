package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func TestBus_ToastDeliversToSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	rec := &recorder{}
	unsubscribe := bus.Subscribe(rec.record)
	defer unsubscribe()

	id := bus.Toast(Toast{Scope: "s1", Title: "Success!", Description: "Your image has been generated."})

	require.NotEmpty(t, id)
	require.Len(t, rec.events, 1)
	ev := rec.events[0]
	assert.Equal(t, EventAdd, ev.Type)
	assert.Equal(t, id, ev.Toast.ID)
	assert.Equal(t, VariantDefault, ev.Toast.Variant)
	assert.True(t, ev.Toast.Open)
	assert.Len(t, bus.Active("s1"), 1)
}

func TestBus_LimitPerScope(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	rec := &recorder{}
	bus.Subscribe(rec.record)

	first := bus.Toast(Toast{Scope: "s1", Title: "first"})
	other := bus.Toast(Toast{Scope: "s2", Title: "other scope"})
	second := bus.Toast(Toast{Scope: "s1", Title: "second"})

	active := bus.Active("s1")
	require.Len(t, active, 1)
	assert.Equal(t, second, active[0].ID)
	assert.Equal(t, other, bus.Active("s2")[0].ID)

	assert.Equal(t, []EventType{EventAdd, EventAdd, EventRemove, EventAdd}, rec.types())
	assert.Equal(t, first, rec.events[2].Toast.ID)
}

func TestBus_DismissThenRemove(t *testing.T) {
	bus := NewBus(WithRemoveDelay(10 * time.Millisecond))
	defer bus.Close()

	rec := &recorder{}
	bus.Subscribe(rec.record)

	id := bus.Toast(Toast{Scope: "s1", Title: "Uh oh! Something went wrong.", Variant: VariantDestructive})
	bus.Dismiss(id)
	bus.Dismiss(id)

	assert.Empty(t, bus.Active("s1"))
	assert.Eventually(t, func() bool {
		types := rec.types()
		return len(types) == 3 && types[2] == EventRemove
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []EventType{EventAdd, EventDismiss, EventRemove}, rec.types())
}

func TestBus_DismissScope(t *testing.T) {
	bus := NewBus(WithLimit(3))
	defer bus.Close()

	bus.Toast(Toast{Scope: "s1", Title: "a"})
	bus.Toast(Toast{Scope: "s1", Title: "b"})
	bus.Toast(Toast{Scope: "s2", Title: "c"})

	bus.DismissScope("s1")

	assert.Empty(t, bus.Active("s1"))
	assert.Len(t, bus.Active("s2"), 1)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	rec := &recorder{}
	unsubscribe := bus.Subscribe(rec.record)
	unsubscribe()
	unsubscribe()

	bus.Toast(Toast{Title: "nobody listening"})

	assert.Empty(t, rec.types())
}

func TestBus_ClosedDropsPublications(t *testing.T) {
	bus := NewBus()
	rec := &recorder{}
	bus.Subscribe(rec.record)
	bus.Close()

	id := bus.Toast(Toast{Title: "late"})
	bus.Dismiss(id)

	assert.NotEmpty(t, id)
	assert.Empty(t, rec.types())
	assert.Empty(t, bus.Active(""))
}
