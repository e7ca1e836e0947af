package statesync

import (
	"cmp"
	"fmt"
	"maps"
	"slices"

	"github.com/dshills/extbridge/internal/protocol"
)

// docState is one snapshot of open documents and editors.
type docState struct {
	docs    map[protocol.URI]protocol.DocumentData
	editors map[protocol.EditorID]protocol.EditorData
	active  protocol.EditorID
}

func newDocState() docState {
	return docState{
		docs:    make(map[protocol.URI]protocol.DocumentData),
		editors: make(map[protocol.EditorID]protocol.EditorData),
	}
}

// clone copies the maps. Slices inside values are never mutated in place,
// so sharing them is safe.
func (s docState) clone() docState {
	return docState{
		docs:    maps.Clone(s.docs),
		editors: maps.Clone(s.editors),
		active:  s.active,
	}
}

// Snapshot is an ordered copy of documents and editors state.
type Snapshot struct {
	Documents    []protocol.DocumentData
	Editors      []protocol.EditorData
	ActiveEditor protocol.EditorID
}

func (s docState) snapshot() Snapshot {
	return Snapshot{
		Documents:    sortedValues(s.docs, func(d protocol.DocumentData) protocol.URI { return d.URI }),
		Editors:      sortedValues(s.editors, func(e protocol.EditorData) protocol.EditorID { return e.ID }),
		ActiveEditor: s.active,
	}
}

func sortedValues[K cmp.Ordered, V any](m map[K]V, key func(V) K) []V {
	out := make([]V, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b V) int { return cmp.Compare(key(a), key(b)) })
	return out
}

func sortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	return slices.Sorted(maps.Keys(m))
}

// resetDelta describes s in full.
func (s docState) resetDelta() protocol.DocumentsAndEditorsDelta {
	snap := s.snapshot()
	return protocol.DocumentsAndEditorsDelta{
		Reset:               true,
		AddedDocuments:      snap.Documents,
		AddedEditors:        snap.Editors,
		ActiveEditorChanged: true,
		NewActiveEditor:     s.active,
	}
}

// diffDocs returns the delta that turns from into to. A document whose
// language or line ending changed, and an editor that moved to another
// document, are removed and added again.
func diffDocs(from, to docState) protocol.DocumentsAndEditorsDelta {
	var d protocol.DocumentsAndEditorsDelta

	for _, id := range sortedKeys(from.editors) {
		old := from.editors[id]
		cur, ok := to.editors[id]
		if !ok || cur.DocumentURI != old.DocumentURI {
			d.RemovedEditors = append(d.RemovedEditors, id)
		}
	}

	for _, uri := range sortedKeys(from.docs) {
		old := from.docs[uri]
		cur, ok := to.docs[uri]
		if !ok || replacesDocument(old, cur) {
			d.RemovedDocuments = append(d.RemovedDocuments, uri)
		}
	}

	for _, uri := range sortedKeys(to.docs) {
		cur := to.docs[uri]
		old, ok := from.docs[uri]
		switch {
		case !ok || replacesDocument(old, cur):
			d.AddedDocuments = append(d.AddedDocuments, cur)
		case old.VersionID != cur.VersionID || old.IsDirty != cur.IsDirty || !slices.Equal(old.Lines, cur.Lines):
			ch := protocol.DocumentChange{URI: uri, VersionID: cur.VersionID, IsDirty: cur.IsDirty}
			if !slices.Equal(old.Lines, cur.Lines) {
				ch.Lines = nonNil(cur.Lines)
			}
			d.ChangedDocuments = append(d.ChangedDocuments, ch)
		}
	}

	for _, id := range sortedKeys(to.editors) {
		cur := to.editors[id]
		old, ok := from.editors[id]
		if !ok || old.DocumentURI != cur.DocumentURI {
			d.AddedEditors = append(d.AddedEditors, cur)
			continue
		}
		if ch, changed := diffEditor(old, cur); changed {
			d.ChangedEditors = append(d.ChangedEditors, ch)
		}
	}

	if from.active != to.active {
		d.ActiveEditorChanged = true
		d.NewActiveEditor = to.active
	}
	return d
}

func replacesDocument(old, cur protocol.DocumentData) bool {
	return old.LanguageID != cur.LanguageID || old.EOL != cur.EOL
}

func diffEditor(old, cur protocol.EditorData) (protocol.EditorChange, bool) {
	ch := protocol.EditorChange{ID: cur.ID}
	changed := false
	if old.Options != cur.Options {
		opts := cur.Options
		ch.Options = &opts
		changed = true
	}
	if !slices.Equal(old.Selections, cur.Selections) {
		ch.Selections = nonNil(cur.Selections)
		changed = true
	}
	if !slices.Equal(old.VisibleRanges, cur.VisibleRanges) {
		ch.VisibleRanges = nonNil(cur.VisibleRanges)
		changed = true
	}
	if old.ViewColumn != cur.ViewColumn {
		col := cur.ViewColumn
		ch.ViewColumn = &col
		changed = true
	}
	return ch, changed
}

// nonNil keeps an emptied list distinguishable from an unchanged one.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// apply applies d to s in the documented order. s is left partially
// updated on error; callers apply to a clone.
func (s *docState) apply(d protocol.DocumentsAndEditorsDelta) error {
	if d.Reset {
		*s = newDocState()
	}
	for _, id := range d.RemovedEditors {
		if _, ok := s.editors[id]; !ok {
			return fmt.Errorf("remove editor %s: %w", id, ErrUnknownEditor)
		}
		delete(s.editors, id)
		if s.active == id {
			s.active = ""
		}
	}
	for _, uri := range d.RemovedDocuments {
		if _, ok := s.docs[uri]; !ok {
			return fmt.Errorf("remove document %s: %w", uri, ErrUnknownDocument)
		}
		delete(s.docs, uri)
	}
	for _, doc := range d.AddedDocuments {
		if _, ok := s.docs[doc.URI]; ok {
			return fmt.Errorf("add document %s: %w", doc.URI, ErrDocumentOpen)
		}
		s.docs[doc.URI] = doc
	}
	for _, ch := range d.ChangedDocuments {
		doc, ok := s.docs[ch.URI]
		if !ok {
			return fmt.Errorf("change document %s: %w", ch.URI, ErrUnknownDocument)
		}
		doc.VersionID = ch.VersionID
		doc.IsDirty = ch.IsDirty
		if ch.Lines != nil {
			doc.Lines = ch.Lines
		}
		s.docs[ch.URI] = doc
	}
	for _, e := range d.AddedEditors {
		if _, ok := s.editors[e.ID]; ok {
			return fmt.Errorf("add editor %s: %w", e.ID, ErrDuplicateEditor)
		}
		if _, ok := s.docs[e.DocumentURI]; !ok {
			return fmt.Errorf("add editor %s for %s: %w", e.ID, e.DocumentURI, ErrUnknownDocument)
		}
		s.editors[e.ID] = e
	}
	for _, ch := range d.ChangedEditors {
		e, ok := s.editors[ch.ID]
		if !ok {
			return fmt.Errorf("change editor %s: %w", ch.ID, ErrUnknownEditor)
		}
		if ch.Options != nil {
			e.Options = *ch.Options
		}
		if ch.Selections != nil {
			e.Selections = ch.Selections
		}
		if ch.VisibleRanges != nil {
			e.VisibleRanges = ch.VisibleRanges
		}
		if ch.ViewColumn != nil {
			e.ViewColumn = *ch.ViewColumn
		}
		s.editors[ch.ID] = e
	}
	if d.ActiveEditorChanged {
		if d.NewActiveEditor != "" {
			if _, ok := s.editors[d.NewActiveEditor]; !ok {
				return fmt.Errorf("activate editor %s: %w", d.NewActiveEditor, ErrUnknownEditor)
			}
		}
		s.active = d.NewActiveEditor
	}
	return s.check()
}

// check verifies that every editor shows an open document.
func (s *docState) check() error {
	for _, id := range sortedKeys(s.editors) {
		e := s.editors[id]
		if _, ok := s.docs[e.DocumentURI]; !ok {
			return fmt.Errorf("editor %s shows %s: %w", id, e.DocumentURI, ErrDocumentInUse)
		}
	}
	return nil
}
