package event

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
)

func TestTopic_SyncDeliveryOrder(t *testing.T) {
	topic := NewTopic[int]("test", nil)

	var got []string
	topic.Subscribe(func(v int) { got = append(got, "a") })
	topic.Subscribe(func(v int) { got = append(got, "b") })

	if n := topic.Publish(1); n != 2 {
		t.Fatalf("Publish() = %d, want 2", n)
	}
	if strings.Join(got, "") != "ab" {
		t.Errorf("delivery order = %v, want [a b]", got)
	}
}

func TestTopic_Unsubscribe(t *testing.T) {
	topic := NewTopic[string]("test", nil)
	calls := 0
	sub := topic.Subscribe(func(string) { calls++ })

	if !topic.Unsubscribe(sub) {
		t.Fatal("Unsubscribe() = false for a live subscription")
	}
	if topic.Unsubscribe(sub) {
		t.Error("second Unsubscribe() = true")
	}
	topic.Publish("x")
	if calls != 0 {
		t.Errorf("calls = %d after unsubscribe, want 0", calls)
	}
	if sub.State() != SubscriptionStateCancelled {
		t.Errorf("State() = %v, want cancelled", sub.State())
	}
	if topic.Len() != 0 {
		t.Errorf("Len() = %d, want 0", topic.Len())
	}
}

func TestTopic_PanickingSubscriberStays(t *testing.T) {
	var buf bytes.Buffer
	log := hclog.New(&hclog.LoggerOptions{Output: &buf, Level: hclog.Error})
	topic := NewTopic[int]("panicky", log)

	topic.Subscribe(func(int) { panic("boom") })
	other := 0
	topic.Subscribe(func(int) { other++ })

	topic.Publish(1)
	topic.Publish(2)

	if other != 2 {
		t.Errorf("healthy subscriber saw %d events, want 2", other)
	}
	if topic.Len() != 2 {
		t.Errorf("Len() = %d, want the panicking subscriber kept", topic.Len())
	}
	if topic.Stats().Panicked != 2 {
		t.Errorf("Panicked = %d, want 2", topic.Stats().Panicked)
	}
	if !strings.Contains(buf.String(), "event handler panicked") {
		t.Errorf("log = %q", buf.String())
	}
}

func TestTopic_PauseResume(t *testing.T) {
	topic := NewTopic[int]("test", nil)
	var got []int
	sub := topic.Subscribe(func(v int) { got = append(got, v) })

	topic.Publish(1)
	sub.Pause()
	topic.Publish(2)
	sub.Resume()
	topic.Publish(3)

	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Errorf("got %v, want [1 3]", got)
	}
}

func TestTopic_FilterAndOnce(t *testing.T) {
	topic := NewTopic[int]("test", nil)
	var evens, first []int
	topic.Subscribe(func(v int) { evens = append(evens, v) },
		WithFilter(func(v int) bool { return v%2 == 0 }))
	topic.Subscribe(func(v int) { first = append(first, v) }, WithOnce[int]())

	for i := 1; i <= 4; i++ {
		topic.Publish(i)
	}

	if len(evens) != 2 || evens[0] != 2 || evens[1] != 4 {
		t.Errorf("evens = %v", evens)
	}
	if len(first) != 1 || first[0] != 1 {
		t.Errorf("once subscriber got %v, want [1]", first)
	}
	if topic.Len() != 1 {
		t.Errorf("Len() = %d, want once subscription removed", topic.Len())
	}
}

func TestTopic_AsyncDeliveryKeepsOrder(t *testing.T) {
	topic := NewTopic[int]("async", nil)

	var mu sync.Mutex
	var got []int
	done := make(chan struct{})
	const n = 100
	topic.Subscribe(func(v int) {
		mu.Lock()
		got = append(got, v)
		full := len(got) == n
		mu.Unlock()
		if full {
			close(done)
		}
	}, WithDeliveryMode[int](DeliveryAsync))

	for i := 0; i < n; i++ {
		topic.Publish(i)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("async subscriber did not receive all events")
	}
	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		if v != i {
			t.Fatalf("event %d delivered at position %d", v, i)
		}
	}
}

func TestTopic_Close(t *testing.T) {
	topic := NewTopic[int]("test", nil)
	sub := topic.Subscribe(func(int) {})
	topic.Close()

	if sub.State() != SubscriptionStateCancelled {
		t.Errorf("State() = %v after Close, want cancelled", sub.State())
	}
	late := topic.Subscribe(func(int) { t.Error("delivered on a closed topic") })
	if late.State() != SubscriptionStateCancelled {
		t.Errorf("late State() = %v, want cancelled", late.State())
	}
	if n := topic.Publish(1); n != 0 {
		t.Errorf("Publish() = %d on a closed topic", n)
	}
}

func TestBus(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	var got PanelCreated
	bus.PanelCreated.Subscribe(func(e PanelCreated) { got = e })
	bus.PanelCreated.Publish(PanelCreated{Handle: "w1", ViewType: "chat", Title: "Untitled"})

	if got.Handle != "w1" || got.Title != "Untitled" {
		t.Errorf("got %+v", got)
	}
	if bus.PanelCreated.Name() != "panel.created" {
		t.Errorf("Name() = %q", bus.PanelCreated.Name())
	}
}
