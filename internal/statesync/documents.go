package statesync

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"

	"github.com/dshills/extbridge/internal/event"
	"github.com/dshills/extbridge/internal/promise"
	"github.com/dshills/extbridge/internal/protocol"
)

// DocumentsPeer receives document deltas.
type DocumentsPeer interface {
	AcceptDocumentsAndEditorsDelta(delta protocol.DocumentsAndEditorsDelta) *promise.Future[struct{}]
}

// Documents is the host's source of truth for open documents and editors.
// Mutations before Start only change local state; Start sends everything as
// one reset delta.
type Documents struct {
	log    hclog.Logger
	events *event.Bus
	peer   DocumentsPeer

	// mu is also the send lock: a delta is computed, sent and made the new
	// baseline without another mutation in between.
	mu      sync.Mutex
	state   docState
	sent    docState
	started bool

	// set when the peer rejected a delta; the next send is a reset
	resync atomic.Bool
}

// NewDocuments creates an empty document set.
func NewDocuments(peer DocumentsPeer, bus *event.Bus, log hclog.Logger) *Documents {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	if bus == nil {
		bus = event.NewBus(log)
	}
	return &Documents{
		log:    log.Named("documents"),
		events: bus,
		peer:   peer,
		state:  newDocState(),
		sent:   newDocState(),
	}
}

// Start sends the full state as a reset delta. Calling it again, for example
// after a reconnect, resends everything.
func (d *Documents) Start() {
	d.mu.Lock()
	d.started = true
	delta := d.state.resetDelta()
	d.send(delta)
	d.mu.Unlock()

	d.events.DocumentsSynced.Publish(event.DocumentsSynced{Delta: delta})
}

// Snapshot returns the current state.
func (d *Documents) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.snapshot()
}

// Batch runs fn against a transaction and sends all of its mutations as one
// delta. If fn returns an error nothing is applied.
func (d *Documents) Batch(fn func(tx *DocumentsTx) error) error {
	d.mu.Lock()
	tx := &DocumentsTx{state: d.state.clone()}
	if err := fn(tx); err != nil {
		d.mu.Unlock()
		return err
	}
	d.state = tx.state

	var (
		delta protocol.DocumentsAndEditorsDelta
		sent  bool
	)
	if d.started {
		if d.resync.Swap(false) {
			delta = d.state.resetDelta()
		} else {
			delta = diffDocs(d.sent, d.state)
		}
		if sent = !delta.IsEmpty(); sent {
			d.send(delta)
		}
	}
	d.mu.Unlock()

	if sent {
		d.events.DocumentsSynced.Publish(event.DocumentsSynced{Delta: delta})
	}
	return nil
}

// send must be called with mu held.
func (d *Documents) send(delta protocol.DocumentsAndEditorsDelta) {
	d.sent = d.state.clone()
	f := d.peer.AcceptDocumentsAndEditorsDelta(delta)
	f.OnSettle(func() {
		if _, err, _ := f.Result(); err != nil {
			d.log.Warn("documents delta rejected, resyncing on next change", "error", err)
			d.resync.Store(true)
		}
	})
}

// OpenDocument adds a document.
func (d *Documents) OpenDocument(doc protocol.DocumentData) error {
	return d.Batch(func(tx *DocumentsTx) error { return tx.OpenDocument(doc) })
}

// UpdateDocument changes the content or dirty state of a document.
func (d *Documents) UpdateDocument(uri protocol.URI, versionID int, lines []string, isDirty bool) error {
	return d.Batch(func(tx *DocumentsTx) error { return tx.UpdateDocument(uri, versionID, lines, isDirty) })
}

// CloseDocument removes a document and every editor showing it.
func (d *Documents) CloseDocument(uri protocol.URI) error {
	return d.Batch(func(tx *DocumentsTx) error { return tx.CloseDocument(uri) })
}

// AddEditor adds an editor for an open document.
func (d *Documents) AddEditor(e protocol.EditorData) error {
	return d.Batch(func(tx *DocumentsTx) error { return tx.AddEditor(e) })
}

// RemoveEditor removes an editor.
func (d *Documents) RemoveEditor(id protocol.EditorID) error {
	return d.Batch(func(tx *DocumentsTx) error { return tx.RemoveEditor(id) })
}

// SetSelections replaces the selections of an editor.
func (d *Documents) SetSelections(id protocol.EditorID, sel []protocol.Selection) error {
	return d.Batch(func(tx *DocumentsTx) error { return tx.SetSelections(id, sel) })
}

// SetVisibleRanges replaces the visible ranges of an editor.
func (d *Documents) SetVisibleRanges(id protocol.EditorID, ranges []protocol.Range) error {
	return d.Batch(func(tx *DocumentsTx) error { return tx.SetVisibleRanges(id, ranges) })
}

// SetOptions replaces the options of an editor.
func (d *Documents) SetOptions(id protocol.EditorID, opts protocol.EditorOptions) error {
	return d.Batch(func(tx *DocumentsTx) error { return tx.SetOptions(id, opts) })
}

// SetViewColumn moves an editor to another column.
func (d *Documents) SetViewColumn(id protocol.EditorID, col protocol.ViewColumn) error {
	return d.Batch(func(tx *DocumentsTx) error { return tx.SetViewColumn(id, col) })
}

// SetActiveEditor changes the focused editor. An empty id clears it.
func (d *Documents) SetActiveEditor(id protocol.EditorID) error {
	return d.Batch(func(tx *DocumentsTx) error { return tx.SetActiveEditor(id) })
}

// DocumentsTx is a set of mutations sent as one delta.
type DocumentsTx struct {
	state docState
}

// OpenDocument adds a document.
func (tx *DocumentsTx) OpenDocument(doc protocol.DocumentData) error {
	if _, ok := tx.state.docs[doc.URI]; ok {
		return fmt.Errorf("open %s: %w", doc.URI, ErrDocumentOpen)
	}
	doc.Lines = slices.Clone(doc.Lines)
	tx.state.docs[doc.URI] = doc
	return nil
}

// UpdateDocument changes the content or dirty state of a document.
func (tx *DocumentsTx) UpdateDocument(uri protocol.URI, versionID int, lines []string, isDirty bool) error {
	doc, ok := tx.state.docs[uri]
	if !ok {
		return fmt.Errorf("update %s: %w", uri, ErrUnknownDocument)
	}
	doc.VersionID = versionID
	doc.IsDirty = isDirty
	if lines != nil {
		doc.Lines = slices.Clone(lines)
	}
	tx.state.docs[uri] = doc
	return nil
}

// CloseDocument removes a document and every editor showing it.
func (tx *DocumentsTx) CloseDocument(uri protocol.URI) error {
	if _, ok := tx.state.docs[uri]; !ok {
		return fmt.Errorf("close %s: %w", uri, ErrUnknownDocument)
	}
	delete(tx.state.docs, uri)
	for id, e := range tx.state.editors {
		if e.DocumentURI == uri {
			tx.removeEditor(id)
		}
	}
	return nil
}

// AddEditor adds an editor for an open document.
func (tx *DocumentsTx) AddEditor(e protocol.EditorData) error {
	if _, ok := tx.state.editors[e.ID]; ok {
		return fmt.Errorf("add editor %s: %w", e.ID, ErrDuplicateEditor)
	}
	if _, ok := tx.state.docs[e.DocumentURI]; !ok {
		return fmt.Errorf("add editor %s for %s: %w", e.ID, e.DocumentURI, ErrUnknownDocument)
	}
	e.Selections = slices.Clone(e.Selections)
	e.VisibleRanges = slices.Clone(e.VisibleRanges)
	tx.state.editors[e.ID] = e
	return nil
}

// RemoveEditor removes an editor.
func (tx *DocumentsTx) RemoveEditor(id protocol.EditorID) error {
	if _, ok := tx.state.editors[id]; !ok {
		return fmt.Errorf("remove editor %s: %w", id, ErrUnknownEditor)
	}
	tx.removeEditor(id)
	return nil
}

func (tx *DocumentsTx) removeEditor(id protocol.EditorID) {
	delete(tx.state.editors, id)
	if tx.state.active == id {
		tx.state.active = ""
	}
}

func (tx *DocumentsTx) editor(id protocol.EditorID, fn func(*protocol.EditorData)) error {
	e, ok := tx.state.editors[id]
	if !ok {
		return fmt.Errorf("editor %s: %w", id, ErrUnknownEditor)
	}
	fn(&e)
	tx.state.editors[id] = e
	return nil
}

// SetSelections replaces the selections of an editor.
func (tx *DocumentsTx) SetSelections(id protocol.EditorID, sel []protocol.Selection) error {
	return tx.editor(id, func(e *protocol.EditorData) { e.Selections = slices.Clone(sel) })
}

// SetVisibleRanges replaces the visible ranges of an editor.
func (tx *DocumentsTx) SetVisibleRanges(id protocol.EditorID, ranges []protocol.Range) error {
	return tx.editor(id, func(e *protocol.EditorData) { e.VisibleRanges = slices.Clone(ranges) })
}

// SetOptions replaces the options of an editor.
func (tx *DocumentsTx) SetOptions(id protocol.EditorID, opts protocol.EditorOptions) error {
	return tx.editor(id, func(e *protocol.EditorData) { e.Options = opts })
}

// SetViewColumn moves an editor to another column.
func (tx *DocumentsTx) SetViewColumn(id protocol.EditorID, col protocol.ViewColumn) error {
	return tx.editor(id, func(e *protocol.EditorData) { e.ViewColumn = col })
}

// SetActiveEditor changes the focused editor. An empty id clears it.
func (tx *DocumentsTx) SetActiveEditor(id protocol.EditorID) error {
	if id != "" {
		if _, ok := tx.state.editors[id]; !ok {
			return fmt.Errorf("activate %s: %w", id, ErrUnknownEditor)
		}
	}
	tx.state.active = id
	return nil
}
