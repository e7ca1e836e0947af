package event

import (
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"
)

// Topic delivers events of one type to its subscribers.
type Topic[T any] struct {
	name string
	log  hclog.Logger

	mu     sync.RWMutex
	subs   []*subscription[T]
	closed bool
	nextID atomic.Uint64

	published atomic.Uint64
	delivered atomic.Uint64
	panicked  atomic.Uint64
}

// NewTopic creates a topic. A nil logger discards output.
func NewTopic[T any](name string, log hclog.Logger) *Topic[T] {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Topic[T]{name: name, log: log}
}

// Name returns the topic name.
func (t *Topic[T]) Name() string {
	return t.name
}

// Subscribe registers fn. On a closed topic the returned subscription is
// already cancelled.
func (t *Topic[T]) Subscribe(fn func(T), opts ...SubscriptionOption[T]) Subscription {
	s := &subscription[T]{
		id:      t.nextID.Add(1),
		topic:   t,
		handler: fn,
	}
	for _, opt := range opts {
		opt(&s.config)
	}
	if s.config.DeliveryMode == DeliveryAsync {
		s.wake = make(chan struct{}, 1)
		s.stopped = make(chan struct{})
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		s.cancel()
		return s
	}
	t.subs = append(t.subs, s)
	if s.config.DeliveryMode == DeliveryAsync {
		go s.run()
	}
	return s
}

// Unsubscribe removes a subscription. It reports whether the subscription
// was still registered.
func (t *Topic[T]) Unsubscribe(sub Subscription) bool {
	s, ok := sub.(*subscription[T])
	if !ok || s.topic != t {
		return false
	}

	t.mu.Lock()
	idx := slices.Index(t.subs, s)
	if idx >= 0 {
		t.subs = slices.Delete(t.subs, idx, idx+1)
	}
	t.mu.Unlock()

	s.cancel()
	return idx >= 0
}

// Publish delivers v to every active subscriber and returns how many
// subscribers accepted it. Sync handlers have run when Publish returns.
func (t *Topic[T]) Publish(v T) int {
	t.published.Add(1)

	t.mu.RLock()
	subs := slices.Clone(t.subs)
	t.mu.RUnlock()

	n := 0
	for _, s := range subs {
		if !s.shouldDeliver(v) {
			continue
		}
		if s.config.Once && !s.fired.CompareAndSwap(false, true) {
			continue
		}
		n++
		if s.config.DeliveryMode == DeliveryAsync {
			s.enqueue(v)
			continue
		}
		t.invoke(s, v)
		if s.config.Once {
			t.Unsubscribe(s)
		}
	}
	return n
}

// invoke runs the handler, recovering panics so one faulty subscriber cannot
// break delivery to the others.
func (t *Topic[T]) invoke(s *subscription[T], v T) {
	defer func() {
		if r := recover(); r != nil {
			t.panicked.Add(1)
			t.log.Error("event handler panicked",
				"topic", t.name, "subscription", s.id, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	s.handler(v)
	t.delivered.Add(1)
}

// Len returns the number of registered subscriptions.
func (t *Topic[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}

// Close cancels every subscription. Later subscriptions are cancelled
// immediately.
func (t *Topic[T]) Close() {
	t.mu.Lock()
	subs := t.subs
	t.subs = nil
	t.closed = true
	t.mu.Unlock()

	for _, s := range subs {
		s.cancel()
	}
}

// TopicStats holds topic counters.
type TopicStats struct {
	Published uint64
	Delivered uint64
	Panicked  uint64
}

// Stats returns topic counters.
func (t *Topic[T]) Stats() TopicStats {
	return TopicStats{
		Published: t.published.Load(),
		Delivered: t.delivered.Load(),
		Panicked:  t.panicked.Load(),
	}
}

// Bus holds the topics published by a host session.
type Bus struct {
	PanelCreated          *Topic[PanelCreated]
	PanelUpdated          *Topic[PanelUpdated]
	PanelDisposed         *Topic[PanelDisposed]
	SerializerChanged     *Topic[SerializerChanged]
	WebviewMessage        *Topic[WebviewMessage]
	WebviewContentChanged *Topic[WebviewContentChanged]
	EditorProviderChanged *Topic[EditorProviderChanged]
	CustomDocumentEdited  *Topic[CustomDocumentEdited]
	CommandsChanged       *Topic[CommandsChanged]
	DocumentsSynced       *Topic[DocumentsSynced]
	TabsSynced            *Topic[TabsSynced]
	ConnectionChanged     *Topic[ConnectionChanged]
}

// NewBus creates the session topics.
func NewBus(log hclog.Logger) *Bus {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	log = log.Named("event")
	return &Bus{
		PanelCreated:          NewTopic[PanelCreated]("panel.created", log),
		PanelUpdated:          NewTopic[PanelUpdated]("panel.updated", log),
		PanelDisposed:         NewTopic[PanelDisposed]("panel.disposed", log),
		SerializerChanged:     NewTopic[SerializerChanged]("panel.serializer", log),
		WebviewMessage:        NewTopic[WebviewMessage]("webview.message", log),
		WebviewContentChanged: NewTopic[WebviewContentChanged]("webview.content", log),
		EditorProviderChanged: NewTopic[EditorProviderChanged]("editor.provider", log),
		CustomDocumentEdited:  NewTopic[CustomDocumentEdited]("editor.custom.edited", log),
		CommandsChanged:       NewTopic[CommandsChanged]("commands.changed", log),
		DocumentsSynced:       NewTopic[DocumentsSynced]("sync.documents", log),
		TabsSynced:            NewTopic[TabsSynced]("sync.tabs", log),
		ConnectionChanged:     NewTopic[ConnectionChanged]("connection", log),
	}
}

// Close closes every topic.
func (b *Bus) Close() {
	b.PanelCreated.Close()
	b.PanelUpdated.Close()
	b.PanelDisposed.Close()
	b.SerializerChanged.Close()
	b.WebviewMessage.Close()
	b.WebviewContentChanged.Close()
	b.EditorProviderChanged.Close()
	b.CustomDocumentEdited.Close()
	b.CommandsChanged.Close()
	b.DocumentsSynced.Close()
	b.TabsSynced.Close()
	b.ConnectionChanged.Close()
}
