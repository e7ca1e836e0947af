package statesync

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/dshills/extbridge/internal/event"
	"github.com/dshills/extbridge/internal/protocol"
)

func tab(id string) protocol.Tab {
	return protocol.Tab{ID: protocol.TabID(id), Label: id, Input: protocol.TabInput{Kind: protocol.TabInputText, URI: protocol.URI("file:///" + id)}}
}

func group(id protocol.GroupID, tabs ...string) protocol.TabGroup {
	g := protocol.TabGroup{GroupID: id, ViewColumn: protocol.ViewColumn(id), Tabs: []protocol.Tab{}}
	for _, t := range tabs {
		g.Tabs = append(g.Tabs, tab(t))
	}
	return g
}

func setModel(groups ...protocol.TabGroup) func([]protocol.TabGroup) ([]protocol.TabGroup, error) {
	return func([]protocol.TabGroup) ([]protocol.TabGroup, error) { return groups, nil }
}

func TestTabs_StartSendsModel(t *testing.T) {
	peer := newMirrorPeer()
	tabs := NewTabs(peer, nil, nil)
	_ = tabs.Update(setModel(group(1, "a", "b")))

	if peer.models != 0 || len(peer.ops) != 0 {
		t.Fatal("sent before Start")
	}
	tabs.Start()
	if peer.models != 1 {
		t.Fatalf("models = %d, want 1", peer.models)
	}
	if !sameGroups(tabs.Groups(), peer.tabs.Groups()) {
		t.Error("mirror differs from source")
	}
}

func TestTabs_MoveEmitsSingleOperation(t *testing.T) {
	peer := newMirrorPeer()
	bus := event.NewBus(nil)
	tabs := NewTabs(peer, bus, nil)
	_ = tabs.Update(setModel(group(1, "a", "b", "c")))
	tabs.Start()

	var synced event.TabsSynced
	bus.TabsSynced.Subscribe(func(e event.TabsSynced) { synced = e })

	if err := tabs.Update(setModel(group(1, "c", "a", "b"))); err != nil {
		t.Fatal(err)
	}
	if len(peer.ops) != 1 {
		t.Fatalf("ops = %+v, want one move", peer.ops)
	}
	op := peer.ops[0]
	if op.Kind != protocol.TabOpMove || op.OldIndex != 2 || op.Index != 0 || op.Tab.ID != "c" {
		t.Errorf("op = %+v", op)
	}
	if len(synced.Operations) != 1 || synced.Reset {
		t.Errorf("event = %+v", synced)
	}
}

func TestTabs_OperationOrder(t *testing.T) {
	peer := newMirrorPeer()
	tabs := NewTabs(peer, nil, nil)
	_ = tabs.Update(setModel(group(1, "a", "b"), group(2, "x")))
	tabs.Start()

	g1 := group(1, "b", "c")
	g1.IsActive = true
	g1.Tabs[0].IsDirty = true
	if err := tabs.Update(setModel(group(3, "n"), g1)); err != nil {
		t.Fatal(err)
	}

	var kinds []string
	for _, op := range peer.ops {
		kinds = append(kinds, op.Kind.String())
	}
	want := []string{"group-close", "group-open", "tab-close", "tab-update", "tab-open"}
	if !slices.Equal(kinds, want) {
		t.Errorf("ops = %v, want %v", kinds, want)
	}
	if len(peer.updates) != 1 || !peer.updates[0].IsActive {
		t.Errorf("group updates = %+v", peer.updates)
	}
	if !sameGroups(tabs.Groups(), peer.tabs.Groups()) {
		t.Errorf("mirror %+v\nsource %+v", peer.tabs.Groups(), tabs.Groups())
	}
}

func TestTabs_InvalidModelRejected(t *testing.T) {
	tabs := NewTabs(newMirrorPeer(), nil, nil)
	err := tabs.Update(setModel(group(1, "a", "a")))
	if !errors.Is(err, ErrInvalidTabModel) {
		t.Fatalf("Update() error = %v", err)
	}
	err = tabs.Update(setModel(group(1), group(1)))
	if !errors.Is(err, ErrInvalidTabModel) {
		t.Fatalf("Update() error = %v", err)
	}
	if len(tabs.Groups()) != 0 {
		t.Error("invalid model applied")
	}
}

func TestTabs_ResendModelAfterRejection(t *testing.T) {
	peer := newMirrorPeer()
	tabs := NewTabs(peer, nil, nil)
	tabs.Start()

	peer.reject = true
	_ = tabs.Update(setModel(group(1, "a")))
	peer.reject = false
	_ = tabs.Update(setModel(group(1, "a", "b")))

	if peer.models != 2 {
		t.Fatalf("models = %d, want a resend", peer.models)
	}
	if !sameGroups(tabs.Groups(), peer.tabs.Groups()) {
		t.Error("mirror not resynchronized")
	}
}

func TestTabs_RandomMutationsReplay(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	peer := newMirrorPeer()
	tabs := NewTabs(peer, nil, nil)
	tabs.Start()

	for step := 0; step < 300; step++ {
		err := tabs.Update(func(groups []protocol.TabGroup) ([]protocol.TabGroup, error) {
			return randomEdit(rng, groups), nil
		})
		if err != nil {
			t.Fatalf("step %d: Update() error = %v", step, err)
		}
		if !sameGroups(tabs.Groups(), peer.tabs.Groups()) {
			t.Fatalf("step %d: replay diverged\nsource %+v\nmirror %+v", step, tabs.Groups(), peer.tabs.Groups())
		}
	}
	if peer.models != 1 {
		t.Errorf("models = %d, every change should go out as operations", peer.models)
	}
}

// randomEdit makes a few random changes to a valid model.
func randomEdit(rng *rand.Rand, groups []protocol.TabGroup) []protocol.TabGroup {
	for n := rng.IntN(4) + 1; n > 0; n-- {
		switch rng.IntN(8) {
		case 0:
			id := protocol.GroupID(rng.IntN(5))
			if groupIndex(groups, id) < 0 {
				groups = slices.Insert(groups, rng.IntN(len(groups)+1), group(id, "g"+fmt.Sprint(id)))
			}
		case 1:
			if len(groups) > 0 {
				i := rng.IntN(len(groups))
				groups = slices.Delete(groups, i, i+1)
			}
		case 2:
			rng.Shuffle(len(groups), func(i, j int) { groups[i], groups[j] = groups[j], groups[i] })
		case 3:
			if len(groups) > 0 {
				g := &groups[rng.IntN(len(groups))]
				g.IsActive = !g.IsActive
				g.ViewColumn = protocol.ViewColumn(rng.IntN(3))
			}
		case 4, 5:
			if len(groups) > 0 {
				g := &groups[rng.IntN(len(groups))]
				id := fmt.Sprintf("t%d", rng.IntN(8))
				if tabIndex(g.Tabs, protocol.TabID(id)) < 0 {
					g.Tabs = slices.Insert(g.Tabs, rng.IntN(len(g.Tabs)+1), tab(id))
				}
			}
		case 6:
			if len(groups) > 0 {
				g := &groups[rng.IntN(len(groups))]
				if len(g.Tabs) > 0 {
					i := rng.IntN(len(g.Tabs))
					g.Tabs = slices.Delete(g.Tabs, i, i+1)
				}
			}
		case 7:
			if len(groups) > 0 {
				g := &groups[rng.IntN(len(groups))]
				rng.Shuffle(len(g.Tabs), func(i, j int) { g.Tabs[i], g.Tabs[j] = g.Tabs[j], g.Tabs[i] })
				if len(g.Tabs) > 0 {
					t := &g.Tabs[rng.IntN(len(g.Tabs))]
					t.IsDirty = !t.IsDirty
					t.IsPinned = rng.IntN(2) == 0
				}
			}
		}
	}
	return groups
}

func TestTabsMirror_RejectsMismatch(t *testing.T) {
	m := NewTabsMirror(nil)
	if err := m.AcceptModel([]protocol.TabGroup{group(1, "a", "b")}); err != nil {
		t.Fatal(err)
	}
	b := tab("b")

	tests := []struct {
		name string
		op   protocol.TabOperation
	}{
		{"close wrong id", protocol.TabOperation{Kind: protocol.TabOpClose, GroupID: 1, Index: 0, Tab: &b}},
		{"open out of range", protocol.TabOperation{Kind: protocol.TabOpOpen, GroupID: 1, Index: 5, Tab: &protocol.Tab{ID: "z"}}},
		{"open duplicate", protocol.TabOperation{Kind: protocol.TabOpOpen, GroupID: 1, Index: 0, Tab: &b}},
		{"unknown group", protocol.TabOperation{Kind: protocol.TabOpUpdate, GroupID: 9, Index: 0, Tab: &b}},
		{"move wrong old index", protocol.TabOperation{Kind: protocol.TabOpMove, GroupID: 1, Index: 0, OldIndex: 0, Tab: &b}},
		{"close group wrong index", protocol.TabOperation{Kind: protocol.GroupOpClose, GroupID: 2, Index: 0}},
		{"missing tab", protocol.TabOperation{Kind: protocol.TabOpUpdate, GroupID: 1, Index: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := m.Apply(tt.op); !errors.Is(err, ErrTabMismatch) {
				t.Fatalf("Apply() error = %v, want ErrTabMismatch", err)
			}
			if !sameGroups(m.Groups(), []protocol.TabGroup{group(1, "a", "b")}) {
				t.Error("failed Apply() changed the mirror")
			}
		})
	}

	if err := m.AcceptGroupUpdate(group(7)); !errors.Is(err, ErrTabMismatch) {
		t.Errorf("AcceptGroupUpdate(unknown) error = %v", err)
	}
}
