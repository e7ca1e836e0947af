package statesync

import (
	"fmt"
	"slices"

	"github.com/dshills/extbridge/internal/protocol"
)

func groupIndex(groups []protocol.TabGroup, id protocol.GroupID) int {
	return slices.IndexFunc(groups, func(g protocol.TabGroup) bool { return g.GroupID == id })
}

func tabIndex(tabs []protocol.Tab, id protocol.TabID) int {
	return slices.IndexFunc(tabs, func(t protocol.Tab) bool { return t.ID == id })
}

// validateGroups rejects duplicate group ids and duplicate tab ids within a
// group.
func validateGroups(groups []protocol.TabGroup) error {
	seen := make(map[protocol.GroupID]bool, len(groups))
	for _, g := range groups {
		if seen[g.GroupID] {
			return fmt.Errorf("%w: duplicate group %d", ErrInvalidTabModel, g.GroupID)
		}
		seen[g.GroupID] = true
		tabs := make(map[protocol.TabID]bool, len(g.Tabs))
		for _, t := range g.Tabs {
			if tabs[t.ID] {
				return fmt.Errorf("%w: duplicate tab %q in group %d", ErrInvalidTabModel, t.ID, g.GroupID)
			}
			tabs[t.ID] = true
		}
	}
	return nil
}

func mismatch(op protocol.TabOperation, format string, args ...any) error {
	return fmt.Errorf("%s group %d index %d: %s: %w", op.Kind, op.GroupID, op.Index, fmt.Sprintf(format, args...), ErrTabMismatch)
}

// applyTabOp returns groups with op applied. groups is not modified.
func applyTabOp(groups []protocol.TabGroup, op protocol.TabOperation) ([]protocol.TabGroup, error) {
	out := protocol.CloneGroups(groups)

	switch op.Kind {
	case protocol.GroupOpOpen:
		if op.Group == nil {
			return nil, mismatch(op, "missing group")
		}
		if op.Index < 0 || op.Index > len(out) {
			return nil, mismatch(op, "index out of range")
		}
		if groupIndex(out, op.Group.GroupID) >= 0 {
			return nil, mismatch(op, "group already open")
		}
		return slices.Insert(out, op.Index, op.Group.Clone()), nil

	case protocol.GroupOpClose:
		if op.Index < 0 || op.Index >= len(out) || out[op.Index].GroupID != op.GroupID {
			return nil, mismatch(op, "no such group at index")
		}
		return slices.Delete(out, op.Index, op.Index+1), nil

	case protocol.GroupOpMove:
		if op.OldIndex < 0 || op.OldIndex >= len(out) || out[op.OldIndex].GroupID != op.GroupID {
			return nil, mismatch(op, "no such group at old index %d", op.OldIndex)
		}
		if op.Index < 0 || op.Index >= len(out) {
			return nil, mismatch(op, "index out of range")
		}
		g := out[op.OldIndex]
		out = slices.Delete(out, op.OldIndex, op.OldIndex+1)
		return slices.Insert(out, op.Index, g), nil
	}

	gi := groupIndex(out, op.GroupID)
	if gi < 0 {
		return nil, mismatch(op, "unknown group")
	}
	if op.Tab == nil {
		return nil, mismatch(op, "missing tab")
	}
	tabs := out[gi].Tabs

	switch op.Kind {
	case protocol.TabOpOpen:
		if op.Index < 0 || op.Index > len(tabs) {
			return nil, mismatch(op, "index out of range")
		}
		if tabIndex(tabs, op.Tab.ID) >= 0 {
			return nil, mismatch(op, "tab %q already open", op.Tab.ID)
		}
		tabs = slices.Insert(tabs, op.Index, *op.Tab)

	case protocol.TabOpClose:
		if op.Index < 0 || op.Index >= len(tabs) || tabs[op.Index].ID != op.Tab.ID {
			return nil, mismatch(op, "tab %q not at index", op.Tab.ID)
		}
		tabs = slices.Delete(tabs, op.Index, op.Index+1)

	case protocol.TabOpMove:
		if op.OldIndex < 0 || op.OldIndex >= len(tabs) || tabs[op.OldIndex].ID != op.Tab.ID {
			return nil, mismatch(op, "tab %q not at old index %d", op.Tab.ID, op.OldIndex)
		}
		if op.Index < 0 || op.Index >= len(tabs) {
			return nil, mismatch(op, "index out of range")
		}
		t := tabs[op.OldIndex]
		tabs = slices.Delete(tabs, op.OldIndex, op.OldIndex+1)
		tabs = slices.Insert(tabs, op.Index, t)

	case protocol.TabOpUpdate:
		if op.Index < 0 || op.Index >= len(tabs) || tabs[op.Index].ID != op.Tab.ID {
			return nil, mismatch(op, "tab %q not at index", op.Tab.ID)
		}
		tabs[op.Index] = *op.Tab

	default:
		return nil, mismatch(op, "unknown operation")
	}

	out[gi].Tabs = tabs
	return out, nil
}

// tabStep is one message of a tab model change: an operation or a group
// property update.
type tabStep struct {
	op    *protocol.TabOperation
	group *protocol.TabGroup
}

// diffTabs returns the steps that turn from into to. Replaying them in
// order with applyTabOp and group updates yields exactly to.
//
// Groups are handled first: closes from the highest index down, then for
// each target position an open or a move. Property changes of surviving
// groups follow. Tabs of every surviving group are then diffed the same way,
// with an update after any tab whose properties differ.
func diffTabs(from, to []protocol.TabGroup) ([]tabStep, error) {
	work := protocol.CloneGroups(from)
	var steps []tabStep

	emit := func(op protocol.TabOperation) error {
		next, err := applyTabOp(work, op)
		if err != nil {
			return err
		}
		work = next
		steps = append(steps, tabStep{op: &op})
		return nil
	}

	for i := len(work) - 1; i >= 0; i-- {
		if groupIndex(to, work[i].GroupID) < 0 {
			if err := emit(protocol.TabOperation{Kind: protocol.GroupOpClose, GroupID: work[i].GroupID, Index: i}); err != nil {
				return nil, err
			}
		}
	}

	opened := make(map[protocol.GroupID]bool)
	for i, g := range to {
		j := groupIndex(work, g.GroupID)
		var op protocol.TabOperation
		switch {
		case j < 0:
			g := g.Clone()
			op = protocol.TabOperation{Kind: protocol.GroupOpOpen, GroupID: g.GroupID, Index: i, Group: &g}
			opened[g.GroupID] = true
		case j != i:
			op = protocol.TabOperation{Kind: protocol.GroupOpMove, GroupID: g.GroupID, Index: i, OldIndex: j}
		default:
			continue
		}
		if err := emit(op); err != nil {
			return nil, err
		}
	}

	for i, g := range to {
		if opened[g.GroupID] || work[i].SameProperties(g) {
			continue
		}
		work[i].IsActive = g.IsActive
		work[i].ViewColumn = g.ViewColumn
		upd := work[i].Clone()
		steps = append(steps, tabStep{group: &upd})
	}

	for gi, g := range to {
		if opened[g.GroupID] {
			continue
		}
		for k := len(work[gi].Tabs) - 1; k >= 0; k-- {
			t := work[gi].Tabs[k]
			if tabIndex(g.Tabs, t.ID) >= 0 {
				continue
			}
			if err := emit(protocol.TabOperation{Kind: protocol.TabOpClose, GroupID: g.GroupID, Index: k, Tab: &t}); err != nil {
				return nil, err
			}
		}
		for k, t := range g.Tabs {
			j := tabIndex(work[gi].Tabs, t.ID)
			switch {
			case j < 0:
				if err := emit(protocol.TabOperation{Kind: protocol.TabOpOpen, GroupID: g.GroupID, Index: k, Tab: &t}); err != nil {
					return nil, err
				}
				continue
			case j != k:
				moved := work[gi].Tabs[j]
				if err := emit(protocol.TabOperation{Kind: protocol.TabOpMove, GroupID: g.GroupID, Index: k, OldIndex: j, Tab: &moved}); err != nil {
					return nil, err
				}
			}
			if work[gi].Tabs[k] != t {
				if err := emit(protocol.TabOperation{Kind: protocol.TabOpUpdate, GroupID: g.GroupID, Index: k, Tab: &t}); err != nil {
					return nil, err
				}
			}
		}
	}
	return steps, nil
}
