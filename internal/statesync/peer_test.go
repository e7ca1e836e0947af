package statesync

import (
	"errors"
	"slices"

	"github.com/dshills/extbridge/internal/promise"
	"github.com/dshills/extbridge/internal/protocol"
)

var errRejected = errors.New("rejected by test")

// mirrorPeer applies everything it receives to mirrors, synchronously.
type mirrorPeer struct {
	docs *DocumentsMirror
	tabs *TabsMirror

	deltas  []protocol.DocumentsAndEditorsDelta
	models  int
	updates []protocol.TabGroup
	ops     []protocol.TabOperation

	reject bool
}

func newMirrorPeer() *mirrorPeer {
	return &mirrorPeer{docs: NewDocumentsMirror(nil), tabs: NewTabsMirror(nil)}
}

func settle(err error) *promise.Future[struct{}] {
	if err != nil {
		return promise.Rejected[struct{}](err)
	}
	return promise.Resolved(struct{}{})
}

func (p *mirrorPeer) AcceptDocumentsAndEditorsDelta(d protocol.DocumentsAndEditorsDelta) *promise.Future[struct{}] {
	p.deltas = append(p.deltas, d)
	if p.reject {
		return settle(errRejected)
	}
	return settle(p.docs.Apply(d))
}

func (p *mirrorPeer) AcceptEditorTabModel(groups []protocol.TabGroup) *promise.Future[struct{}] {
	p.models++
	if p.reject {
		return settle(errRejected)
	}
	return settle(p.tabs.AcceptModel(groups))
}

func (p *mirrorPeer) AcceptTabGroupUpdate(g protocol.TabGroup) *promise.Future[struct{}] {
	p.updates = append(p.updates, g)
	if p.reject {
		return settle(errRejected)
	}
	return settle(p.tabs.AcceptGroupUpdate(g))
}

func (p *mirrorPeer) AcceptTabOperation(op protocol.TabOperation) *promise.Future[struct{}] {
	p.ops = append(p.ops, op)
	if p.reject {
		return settle(errRejected)
	}
	return settle(p.tabs.Apply(op))
}

// sameSnapshot compares snapshots treating nil and empty lists as equal.
func sameSnapshot(a, b Snapshot) bool {
	if a.ActiveEditor != b.ActiveEditor || len(a.Documents) != len(b.Documents) || len(a.Editors) != len(b.Editors) {
		return false
	}
	for i, d := range a.Documents {
		o := b.Documents[i]
		if d.URI != o.URI || d.LanguageID != o.LanguageID || d.VersionID != o.VersionID ||
			d.EOL != o.EOL || d.IsDirty != o.IsDirty || !slices.Equal(d.Lines, o.Lines) {
			return false
		}
	}
	for i, e := range a.Editors {
		o := b.Editors[i]
		if e.ID != o.ID || e.DocumentURI != o.DocumentURI || e.Options != o.Options || e.ViewColumn != o.ViewColumn ||
			!slices.Equal(e.Selections, o.Selections) || !slices.Equal(e.VisibleRanges, o.VisibleRanges) {
			return false
		}
	}
	return true
}

// sameGroups compares tab models treating nil and empty tab lists as equal.
func sameGroups(a, b []protocol.TabGroup) bool {
	return slices.EqualFunc(a, b, func(x, y protocol.TabGroup) bool {
		return x.SameProperties(y) && slices.Equal(x.Tabs, y.Tabs)
	})
}
