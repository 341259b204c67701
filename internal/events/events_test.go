package events

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestBus_DeliversByKind(t *testing.T) {
	b := NewBus(nil)
	var created, deleted int
	b.On(FileCreated, func(Event) { created++ })
	b.On(FileDeleted, func(Event) { deleted++ })

	b.Emit(New(FileCreated, "a.md"))
	b.Emit(New(FileCreated, "b.md"))
	b.Emit(New(FileDeleted, "a.md"))

	if created != 2 || deleted != 1 {
		t.Errorf("created=%d deleted=%d", created, deleted)
	}
}

func TestBus_AllReceivesEverything(t *testing.T) {
	b := NewBus(nil)
	var got []Kind
	b.On(All, func(e Event) { got = append(got, e.Kind) })

	b.Emit(New(FileChanged, "x.md"))
	b.Emit(New(IgnoreChanged, ".mdumbignore"))

	if len(got) != 2 || got[0] != FileChanged || got[1] != IgnoreChanged {
		t.Errorf("got %v", got)
	}
}

func TestBus_Off(t *testing.T) {
	b := NewBus(nil)
	calls := 0
	sub := b.On(FileChanged, func(Event) { calls++ })
	other := b.On(FileChanged, func(Event) {})
	if n := b.Subscribers(FileChanged); n != 2 {
		t.Fatalf("Subscribers = %d, want 2", n)
	}

	b.Off(sub)
	b.Emit(New(FileChanged, "x.md"))
	if calls != 0 {
		t.Error("handler called after Off")
	}
	b.Off(other)
	if n := b.Subscribers(FileChanged); n != 0 {
		t.Errorf("Subscribers = %d, want 0", n)
	}
	// Double Off is a no-op.
	b.Off(sub)
}

func TestBus_OrderPreserved(t *testing.T) {
	b := NewBus(nil)
	var paths []string
	b.On(FileChanged, func(e Event) { paths = append(paths, e.Path) })
	for _, p := range []string{"1", "2", "3"} {
		b.Emit(New(FileChanged, p))
	}
	if len(paths) != 3 || paths[0] != "1" || paths[2] != "3" {
		t.Errorf("paths = %v", paths)
	}
}

func TestBus_HandlerMayUnsubscribeDuringEmit(t *testing.T) {
	b := NewBus(nil)
	var sub Subscription
	calls := 0
	sub = b.On(FileCreated, func(Event) {
		calls++
		b.Off(sub)
	})
	b.Emit(New(FileCreated, "a.md"))
	b.Emit(New(FileCreated, "b.md"))
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestBus_PanicIsolated(t *testing.T) {
	b := NewBus(nil)
	reached := false
	b.On(FileCreated, func(Event) { panic("boom") })
	b.On(FileCreated, func(Event) { reached = true })
	b.Emit(New(FileCreated, "a.md"))
	if !reached {
		t.Error("second handler not reached after panic")
	}
}

func TestBus_ConcurrentEmit(t *testing.T) {
	b := NewBus(nil)
	var mu sync.Mutex
	n := 0
	b.On(All, func(Event) {
		mu.Lock()
		n++
		mu.Unlock()
	})
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				b.Emit(New(FileChanged, "c.md"))
			}
		}()
	}
	wg.Wait()
	if n != 100 {
		t.Errorf("n = %d, want 100", n)
	}
}

func TestEvent_JSON(t *testing.T) {
	ts := time.UnixMilli(1700000000123)
	data, err := json.Marshal(Event{Kind: FileDeleted, Path: "dir/a.md", Timestamp: ts})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"type":"file:deleted","path":"dir/a.md","timestamp":1700000000123}`
	if string(data) != want {
		t.Errorf("json = %s, want %s", data, want)
	}

	var back Event
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back.Kind != FileDeleted || back.Path != "dir/a.md" || !back.Timestamp.Equal(ts) {
		t.Errorf("decoded = %+v", back)
	}
}

func TestBus_EmitStampsZeroTimestamp(t *testing.T) {
	b := NewBus(nil)
	var got Event
	b.On(FileCreated, func(e Event) { got = e })
	b.Emit(Event{Kind: FileCreated, Path: "a.md"})
	if got.Timestamp.IsZero() {
		t.Error("timestamp should be filled in")
	}
}
