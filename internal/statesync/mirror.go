package statesync

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/dshills/extbridge/internal/protocol"
	"github.com/dshills/extbridge/internal/rpc"
)

// DocumentsMirror is the receiving side of Documents.
type DocumentsMirror struct {
	log hclog.Logger

	mu    sync.RWMutex
	state docState
}

// NewDocumentsMirror creates an empty mirror.
func NewDocumentsMirror(log hclog.Logger) *DocumentsMirror {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &DocumentsMirror{log: log.Named("documents-mirror"), state: newDocState()}
}

// Apply applies a delta atomically. An inconsistent delta leaves the mirror
// unchanged.
func (m *DocumentsMirror) Apply(delta protocol.DocumentsAndEditorsDelta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.state.clone()
	if err := next.apply(delta); err != nil {
		m.log.Warn("rejecting documents delta", "error", err)
		return err
	}
	m.state = next
	return nil
}

// Snapshot returns the mirrored state.
func (m *DocumentsMirror) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.snapshot()
}

// Document returns a mirrored document.
func (m *DocumentsMirror) Document(uri protocol.URI) (protocol.DocumentData, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.state.docs[uri]
	return d, ok
}

// Editor returns a mirrored editor.
func (m *DocumentsMirror) Editor(id protocol.EditorID) (protocol.EditorData, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.state.editors[id]
	return e, ok
}

// ActiveEditor returns the focused editor, or "" when none is.
func (m *DocumentsMirror) ActiveEditor() protocol.EditorID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.active
}

// Methods exposes the mirror as ExtHostDocumentsAndEditors.
func (m *DocumentsMirror) Methods() rpc.MethodTable {
	return rpc.MethodTable{
		protocol.MethodAcceptDocumentsAndEditorsDelta: rpc.Method1(func(_ context.Context, delta protocol.DocumentsAndEditorsDelta) (any, error) {
			return nil, m.Apply(delta)
		}),
	}
}

// TabsMirror is the receiving side of Tabs.
type TabsMirror struct {
	log hclog.Logger

	mu     sync.RWMutex
	groups []protocol.TabGroup
}

// NewTabsMirror creates an empty mirror.
func NewTabsMirror(log hclog.Logger) *TabsMirror {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &TabsMirror{log: log.Named("tabs-mirror")}
}

// AcceptModel replaces the whole model.
func (m *TabsMirror) AcceptModel(groups []protocol.TabGroup) error {
	if err := validateGroups(groups); err != nil {
		return err
	}
	m.mu.Lock()
	m.groups = protocol.CloneGroups(groups)
	m.mu.Unlock()
	return nil
}

// AcceptGroupUpdate replaces the properties of an existing group.
func (m *TabsMirror) AcceptGroupUpdate(g protocol.TabGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := groupIndex(m.groups, g.GroupID)
	if i < 0 {
		return fmt.Errorf("update group %d: %w", g.GroupID, ErrTabMismatch)
	}
	m.groups[i].IsActive = g.IsActive
	m.groups[i].ViewColumn = g.ViewColumn
	return nil
}

// Apply replays one operation. A mismatching operation leaves the mirror
// unchanged.
func (m *TabsMirror) Apply(op protocol.TabOperation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	groups, err := applyTabOp(m.groups, op)
	if err != nil {
		m.log.Warn("rejecting tab operation", "op", op.Kind, "group", op.GroupID, "error", err)
		return err
	}
	m.groups = groups
	return nil
}

// Groups returns a copy of the mirrored model.
func (m *TabsMirror) Groups() []protocol.TabGroup {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return protocol.CloneGroups(m.groups)
}

// Methods exposes the mirror as ExtHostEditorTabs.
func (m *TabsMirror) Methods() rpc.MethodTable {
	return rpc.MethodTable{
		protocol.MethodAcceptEditorTabModel: rpc.Method1(func(_ context.Context, groups []protocol.TabGroup) (any, error) {
			return nil, m.AcceptModel(groups)
		}),
		protocol.MethodAcceptTabGroupUpdate: rpc.Method1(func(_ context.Context, g protocol.TabGroup) (any, error) {
			return nil, m.AcceptGroupUpdate(g)
		}),
		protocol.MethodAcceptTabOperation: rpc.Method1(func(_ context.Context, op protocol.TabOperation) (any, error) {
			return nil, m.Apply(op)
		}),
	}
}
