package protocol

import "slices"

// TabID identifies a tab within the tab model.
type TabID string

// GroupID identifies a tab group.
type GroupID int

// TabInputKind is the kind of editor a tab shows.
type TabInputKind int

// Tab input kinds.
const (
	TabInputUnknown TabInputKind = iota
	TabInputText
	TabInputTextDiff
	TabInputCustom
	TabInputWebview
	TabInputTerminal
)

// TabInput describes what a tab shows.
type TabInput struct {
	Kind     TabInputKind `json:"kind"`
	URI      URI          `json:"uri,omitzero"`
	Original URI          `json:"original,omitzero"`
	Modified URI          `json:"modified,omitzero"`
	ViewType string       `json:"viewType,omitzero"`
}

// Tab is one tab in a group.
type Tab struct {
	ID        TabID    `json:"id"`
	Label     string   `json:"label"`
	Input     TabInput `json:"input"`
	IsActive  bool     `json:"isActive"`
	IsDirty   bool     `json:"isDirty"`
	IsPinned  bool     `json:"isPinned"`
	IsPreview bool     `json:"isPreview"`
}

// TabGroup is an ordered list of tabs.
type TabGroup struct {
	GroupID    GroupID    `json:"groupId"`
	IsActive   bool       `json:"isActive"`
	ViewColumn ViewColumn `json:"viewColumn"`
	Tabs       []Tab      `json:"tabs"`
}

// Clone returns a deep copy of g.
func (g TabGroup) Clone() TabGroup {
	g.Tabs = slices.Clone(g.Tabs)
	return g
}

// SameProperties reports whether g and o differ only in their tabs.
func (g TabGroup) SameProperties(o TabGroup) bool {
	return g.GroupID == o.GroupID && g.IsActive == o.IsActive && g.ViewColumn == o.ViewColumn
}

// CloneGroups returns a deep copy of a tab model.
func CloneGroups(groups []TabGroup) []TabGroup {
	if groups == nil {
		return nil
	}
	out := make([]TabGroup, len(groups))
	for i, g := range groups {
		out[i] = g.Clone()
	}
	return out
}

// TabOperationKind is the kind of a primitive tab model edit.
type TabOperationKind int

// Tab operations. Group operations address Index in the group list; tab
// operations address Index in the tab list of GroupID.
const (
	TabOpOpen TabOperationKind = iota
	TabOpClose
	TabOpMove
	TabOpUpdate
	GroupOpOpen
	GroupOpClose
	GroupOpMove
)

var tabOpNames = map[TabOperationKind]string{
	TabOpOpen:    "tab-open",
	TabOpClose:   "tab-close",
	TabOpMove:    "tab-move",
	TabOpUpdate:  "tab-update",
	GroupOpOpen:  "group-open",
	GroupOpClose: "group-close",
	GroupOpMove:  "group-move",
}

// String returns the operation name.
func (k TabOperationKind) String() string {
	if s, ok := tabOpNames[k]; ok {
		return s
	}
	return "unknown"
}

// TabOperation is one primitive edit of the tab model. Replaying a sequence
// of operations in order is literal: every index refers to the model as left
// by the previous operation.
//
//   - TabOpOpen inserts Tab at Index.
//   - TabOpClose removes the tab at Index, which must be Tab.ID.
//   - TabOpMove moves Tab from OldIndex to Index.
//   - TabOpUpdate replaces the tab at Index with Tab.
//   - GroupOpOpen inserts Group at Index.
//   - GroupOpClose removes the group at Index, which must be GroupID.
//   - GroupOpMove moves group GroupID from OldIndex to Index.
type TabOperation struct {
	Kind     TabOperationKind `json:"kind"`
	GroupID  GroupID          `json:"groupId"`
	Index    int              `json:"index"`
	OldIndex int              `json:"oldIndex"`
	Tab      *Tab             `json:"tab,omitzero"`
	Group    *TabGroup        `json:"group,omitzero"`
}
