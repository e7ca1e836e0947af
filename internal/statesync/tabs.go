package statesync

import (
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"

	"github.com/dshills/extbridge/internal/event"
	"github.com/dshills/extbridge/internal/promise"
	"github.com/dshills/extbridge/internal/protocol"
)

// TabsPeer receives the tab model and its changes.
type TabsPeer interface {
	AcceptEditorTabModel(groups []protocol.TabGroup) *promise.Future[struct{}]
	AcceptTabGroupUpdate(group protocol.TabGroup) *promise.Future[struct{}]
	AcceptTabOperation(op protocol.TabOperation) *promise.Future[struct{}]
}

// Tabs is the host's source of truth for tab groups and their tabs.
type Tabs struct {
	log    hclog.Logger
	events *event.Bus
	peer   TabsPeer

	mu      sync.Mutex
	groups  []protocol.TabGroup
	started bool

	resync atomic.Bool
}

// NewTabs creates an empty tab model.
func NewTabs(peer TabsPeer, bus *event.Bus, log hclog.Logger) *Tabs {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	if bus == nil {
		bus = event.NewBus(log)
	}
	return &Tabs{log: log.Named("tabs"), events: bus, peer: peer}
}

// Start sends the whole model. Calling it again resends it.
func (t *Tabs) Start() {
	t.mu.Lock()
	t.started = true
	t.sendModel()
	n := len(t.groups)
	t.mu.Unlock()

	t.events.TabsSynced.Publish(event.TabsSynced{Reset: true, Groups: n})
}

// Groups returns a copy of the model.
func (t *Tabs) Groups() []protocol.TabGroup {
	t.mu.Lock()
	defer t.mu.Unlock()
	return protocol.CloneGroups(t.groups)
}

// Update passes a copy of the model to fn and replaces the model with the
// result. Once started, the change is sent as an ordered list of tab
// operations and group updates. If fn fails or returns an invalid model
// nothing changes.
func (t *Tabs) Update(fn func(groups []protocol.TabGroup) ([]protocol.TabGroup, error)) error {
	t.mu.Lock()
	next, err := fn(protocol.CloneGroups(t.groups))
	if err != nil {
		t.mu.Unlock()
		return err
	}
	if err := validateGroups(next); err != nil {
		t.mu.Unlock()
		return err
	}
	next = protocol.CloneGroups(next)

	if !t.started {
		t.groups = next
		t.mu.Unlock()
		return nil
	}

	if t.resync.Swap(false) {
		t.groups = next
		t.sendModel()
		t.mu.Unlock()
		t.events.TabsSynced.Publish(event.TabsSynced{Reset: true, Groups: len(next)})
		return nil
	}

	steps, err := diffTabs(t.groups, next)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	t.groups = next
	var ops []protocol.TabOperation
	for _, s := range steps {
		if s.group != nil {
			t.watch("group update", t.peer.AcceptTabGroupUpdate(*s.group))
			continue
		}
		ops = append(ops, *s.op)
		t.watch("tab operation", t.peer.AcceptTabOperation(*s.op))
	}
	t.mu.Unlock()

	if len(steps) > 0 {
		t.events.TabsSynced.Publish(event.TabsSynced{Groups: len(next), Operations: ops})
	}
	return nil
}

// sendModel must be called with mu held.
func (t *Tabs) sendModel() {
	groups := protocol.CloneGroups(t.groups)
	if groups == nil {
		groups = []protocol.TabGroup{}
	}
	t.watch("tab model", t.peer.AcceptEditorTabModel(groups))
}

func (t *Tabs) watch(what string, f *promise.Future[struct{}]) {
	f.OnSettle(func() {
		if _, err, _ := f.Result(); err != nil {
			t.log.Warn("tab change rejected, resending model on next change", "message", what, "error", err)
			t.resync.Store(true)
		}
	})
}
