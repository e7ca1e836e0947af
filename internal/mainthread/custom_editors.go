package mainthread

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/dshills/extbridge/internal/event"
	"github.com/dshills/extbridge/internal/protocol"
)

// EditorProvider is an editor provider registered by the extension.
type EditorProvider struct {
	ViewType                           string
	Kind                               event.EditorProviderKind
	Extension                          protocol.WebviewExtension
	Options                            protocol.WebviewPanelOptions
	Capabilities                       protocol.CustomTextEditorCapabilities
	SupportsMultipleEditorsPerDocument bool
	SerializeBuffers                   bool
}

// CustomDocument is the host view of a document open in provider editors.
type CustomDocument struct {
	Resource protocol.URI
	ViewType string
	Kind     event.EditorProviderKind
	Editable bool
	Editors  []protocol.WebviewHandle
	Dirty    bool
	CanUndo  bool
	CanRedo  bool
}

type documentKey struct {
	resource protocol.URI
	viewType string
}

type documentRecord struct {
	mu       sync.Mutex
	doc      CustomDocument
	applied  []int
	undone   []int
	labels   map[int]string
	savedAt  int
	changed  bool
	disposed bool
}

func (r *documentRecord) top() int {
	if len(r.applied) == 0 {
		return 0
	}
	return r.applied[len(r.applied)-1]
}

func (r *documentRecord) dirty() bool {
	return r.changed || r.top() != r.savedAt
}

func (r *documentRecord) snapshot() CustomDocument {
	d := r.doc
	d.Editors = slices.Clone(r.doc.Editors)
	d.Dirty = r.dirty()
	d.CanUndo = len(r.applied) > 0
	d.CanRedo = len(r.undone) > 0
	return d
}

// CustomEditors manages editor providers, the documents open in them and
// the edit stack of each custom document.
type CustomEditors struct {
	log      hclog.Logger
	events   *event.Bus
	peer     CustomEditorPeer
	webviews *Webviews

	mu        sync.RWMutex
	providers map[string]EditorProvider
	documents map[documentKey]*documentRecord
	editors   map[protocol.WebviewHandle]documentKey
	// serializes Open per document so two opens of one resource share it
	opening map[documentKey]*openLock
}

type openLock struct {
	mu   sync.Mutex
	refs int
}

// NewCustomEditors creates an empty custom editor manager.
func NewCustomEditors(peer CustomEditorPeer, webviews *Webviews, bus *event.Bus, log hclog.Logger) *CustomEditors {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	if bus == nil {
		bus = event.NewBus(log)
	}
	return &CustomEditors{
		log:       log.Named("custom-editors"),
		events:    bus,
		peer:      peer,
		webviews:  webviews,
		providers: make(map[string]EditorProvider),
		documents: make(map[documentKey]*documentRecord),
		editors:   make(map[protocol.WebviewHandle]documentKey),
		opening:   make(map[documentKey]*openLock),
	}
}

// RegisterTextEditorProvider registers a provider that renders text
// documents in a webview.
func (c *CustomEditors) RegisterTextEditorProvider(ext protocol.WebviewExtension, viewType string, opts protocol.WebviewPanelOptions, caps protocol.CustomTextEditorCapabilities, serializeBuffers bool) error {
	return c.register(EditorProvider{
		ViewType:         viewType,
		Kind:             event.ProviderText,
		Extension:        ext,
		Options:          opts,
		Capabilities:     caps,
		SerializeBuffers: serializeBuffers,
	})
}

// RegisterCustomEditorProvider registers a provider that owns its document
// model.
func (c *CustomEditors) RegisterCustomEditorProvider(ext protocol.WebviewExtension, viewType string, opts protocol.WebviewPanelOptions, supportsMultipleEditorsPerDocument, serializeBuffers bool) error {
	return c.register(EditorProvider{
		ViewType:                           viewType,
		Kind:                               event.ProviderCustom,
		Extension:                          ext,
		Options:                            opts,
		SupportsMultipleEditorsPerDocument: supportsMultipleEditorsPerDocument,
		SerializeBuffers:                   serializeBuffers,
	})
}

func (c *CustomEditors) register(p EditorProvider) error {
	c.mu.Lock()
	if _, ok := c.providers[p.ViewType]; ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateProvider, p.ViewType)
	}
	c.providers[p.ViewType] = p
	c.mu.Unlock()

	c.log.Debug("editor provider registered", "view_type", p.ViewType, "kind", p.Kind)
	c.events.EditorProviderChanged.Publish(event.EditorProviderChanged{ViewType: p.ViewType, Kind: p.Kind, Registered: true})
	return nil
}

// UnregisterEditorProvider removes the provider for viewType. Documents
// already open stay open until their editors close.
func (c *CustomEditors) UnregisterEditorProvider(viewType string) error {
	c.mu.Lock()
	p, ok := c.providers[viewType]
	delete(c.providers, viewType)
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, viewType)
	}
	c.events.EditorProviderChanged.Publish(event.EditorProviderChanged{ViewType: viewType, Kind: p.Kind})
	return nil
}

// Provider returns the provider for viewType.
func (c *CustomEditors) Provider(viewType string) (EditorProvider, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.providers[viewType]
	return p, ok
}

// Providers returns every provider ordered by view type.
func (c *CustomEditors) Providers() []EditorProvider {
	c.mu.RLock()
	out := make([]EditorProvider, 0, len(c.providers))
	for _, p := range c.providers {
		out = append(out, p)
	}
	c.mu.RUnlock()
	slices.SortFunc(out, func(a, b EditorProvider) int { return strings.Compare(a.ViewType, b.ViewType) })
	return out
}

// document runs fn on a live document record under its lock.
func (c *CustomEditors) document(op string, resource protocol.URI, viewType string, fn func(*documentRecord) error) error {
	c.mu.RLock()
	rec, ok := c.documents[documentKey{resource, viewType}]
	c.mu.RUnlock()
	if ok {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		if !rec.disposed {
			return fn(rec)
		}
	}
	c.log.Warn("ignoring operation on unknown document", "op", op, "resource", resource, "view_type", viewType)
	return handleErr(op, "custom document", string(resource), ErrUnknownHandle)
}

func (c *CustomEditors) publishEdit(rec *documentRecord, editID int) {
	c.events.CustomDocumentEdited.Publish(event.CustomDocumentEdited{
		Resource: rec.doc.Resource,
		ViewType: rec.doc.ViewType,
		EditID:   editID,
		Label:    rec.labels[editID],
		Dirty:    rec.dirty(),
	})
}

// OnDidEdit records an edit made by the extension. A new edit discards the
// redo stack.
func (c *CustomEditors) OnDidEdit(resource protocol.URI, viewType string, editID int, label string) error {
	return c.document("onDidEdit", resource, viewType, func(rec *documentRecord) error {
		rec.applied = append(rec.applied, editID)
		rec.undone = nil
		if label != "" {
			rec.labels[editID] = label
		}
		c.publishEdit(rec, editID)
		return nil
	})
}

// OnContentChange marks a document dirty without an undoable edit.
func (c *CustomEditors) OnContentChange(resource protocol.URI, viewType string) error {
	return c.document("onContentChange", resource, viewType, func(rec *documentRecord) error {
		rec.changed = true
		c.publishEdit(rec, 0)
		return nil
	})
}

// Open opens resource in a new editor of viewType and returns the editor's
// webview handle. Providers without multi-editor support return the
// existing editor of an open document.
func (c *CustomEditors) Open(ctx context.Context, resource protocol.URI, viewType, title string, column protocol.ViewColumn) (protocol.WebviewHandle, error) {
	p, ok := c.Provider(viewType)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownProvider, viewType)
	}
	key := documentKey{resource, viewType}
	defer c.lockOpen(key)()

	c.mu.RLock()
	rec, exists := c.documents[key]
	c.mu.RUnlock()

	if exists {
		rec.mu.Lock()
		if p.Kind == event.ProviderCustom && !p.SupportsMultipleEditorsPerDocument && len(rec.doc.Editors) > 0 {
			h := rec.doc.Editors[0]
			rec.mu.Unlock()
			return h, nil
		}
		rec.mu.Unlock()
	} else {
		doc := CustomDocument{Resource: resource, ViewType: viewType, Kind: p.Kind}
		if p.Kind == event.ProviderCustom {
			res, err := c.peer.CreateCustomDocument(resource, viewType).AwaitOrCancel(ctx)
			if err != nil {
				return "", fmt.Errorf("create custom document %s: %w", resource, err)
			}
			doc.Editable = res.Editable
		}
		rec = &documentRecord{doc: doc, labels: make(map[int]string)}
		c.mu.Lock()
		c.documents[key] = rec
		c.mu.Unlock()
	}

	handle := protocol.WebviewHandle(uuid.NewString())
	if err := c.webviews.add(Webview{Handle: handle, Extension: p.Extension, SerializeBuffers: p.SerializeBuffers}); err != nil {
		return "", err
	}
	c.mu.Lock()
	c.editors[handle] = key
	c.mu.Unlock()
	rec.mu.Lock()
	rec.doc.Editors = append(rec.doc.Editors, handle)
	rec.mu.Unlock()

	init := protocol.CustomEditorInitData{Title: title, Options: p.Options, Active: true}
	if _, err := c.peer.ResolveCustomEditor(resource, handle, viewType, init, column).AwaitOrCancel(ctx); err != nil {
		c.log.Warn("resolve custom editor failed", "resource", resource, "view_type", viewType, "error", err)
		if cerr := c.CloseEditor(handle); cerr != nil {
			c.log.Warn("closing unresolved editor failed", "handle", handle, "error", cerr)
		}
		return "", fmt.Errorf("resolve %s editor for %s: %w", viewType, resource, err)
	}
	return handle, nil
}

// lockOpen holds the open lock of key until the returned func runs.
func (c *CustomEditors) lockOpen(key documentKey) func() {
	c.mu.Lock()
	l, ok := c.opening[key]
	if !ok {
		l = &openLock{}
		c.opening[key] = l
	}
	l.refs++
	c.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		c.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(c.opening, key)
		}
		c.mu.Unlock()
	}
}

// CloseEditor closes one editor. Closing the last editor of a document
// disposes the document.
func (c *CustomEditors) CloseEditor(handle protocol.WebviewHandle) error {
	c.mu.Lock()
	key, ok := c.editors[handle]
	if !ok {
		c.mu.Unlock()
		c.log.Warn("ignoring close of unknown editor", "handle", handle)
		return handleErr("closeEditor", "custom editor", string(handle), ErrUnknownHandle)
	}
	delete(c.editors, handle)
	rec := c.documents[key]
	rec.mu.Lock()
	rec.doc.Editors = slices.DeleteFunc(rec.doc.Editors, func(h protocol.WebviewHandle) bool { return h == handle })
	last := len(rec.doc.Editors) == 0
	if last {
		rec.disposed = true
		delete(c.documents, key)
	}
	kind := rec.doc.Kind
	rec.mu.Unlock()
	c.mu.Unlock()

	c.webviews.remove(handle)
	if !last || kind != event.ProviderCustom {
		return nil
	}

	f := c.peer.DisposeCustomDocument(key.resource, key.viewType)
	f.OnSettle(func() {
		if _, err, _ := f.Result(); err != nil {
			c.log.Warn("dispose custom document failed", "resource", key.resource, "error", err)
		}
	})
	return nil
}

// Undo reverts the most recent edit of a document.
func (c *CustomEditors) Undo(ctx context.Context, resource protocol.URI, viewType string) error {
	return c.step(ctx, "undo", resource, viewType, true)
}

// Redo reapplies the most recently undone edit of a document.
func (c *CustomEditors) Redo(ctx context.Context, resource protocol.URI, viewType string) error {
	return c.step(ctx, "redo", resource, viewType, false)
}

func (c *CustomEditors) step(ctx context.Context, op string, resource protocol.URI, viewType string, undo bool) error {
	var (
		editID int
		dirty  bool
	)
	err := c.document(op, resource, viewType, func(rec *documentRecord) error {
		from, to := &rec.applied, &rec.undone
		if !undo {
			from, to = to, from
		}
		if len(*from) == 0 {
			return fmt.Errorf("%s %s: %w", op, resource, ErrNoEdit)
		}
		editID = (*from)[len(*from)-1]
		*from = (*from)[:len(*from)-1]
		*to = append(*to, editID)
		dirty = rec.dirty()
		return nil
	})
	if err != nil {
		return err
	}

	peerCall := c.peer.Undo
	if !undo {
		peerCall = c.peer.Redo
	}
	_, callErr := peerCall(resource, viewType, editID, dirty).AwaitOrCancel(ctx)

	return c.document(op, resource, viewType, func(rec *documentRecord) error {
		if callErr != nil {
			// put the edit back where it came from
			from, to := &rec.undone, &rec.applied
			if !undo {
				from, to = to, from
			}
			if n := len(*from); n > 0 && (*from)[n-1] == editID {
				*from = (*from)[:n-1]
				*to = append(*to, editID)
			}
			return fmt.Errorf("%s edit %d of %s: %w", op, editID, resource, callErr)
		}
		c.publishEdit(rec, editID)
		return nil
	})
}

// Save asks the extension to save a document and marks it clean.
func (c *CustomEditors) Save(ctx context.Context, resource protocol.URI, viewType string) error {
	if _, ok := c.Document(resource, viewType); !ok {
		return handleErr("save", "custom document", string(resource), ErrUnknownHandle)
	}
	if _, err := c.peer.OnSave(resource, viewType).AwaitOrCancel(ctx); err != nil {
		return fmt.Errorf("save %s: %w", resource, err)
	}
	return c.document("save", resource, viewType, func(rec *documentRecord) error {
		rec.savedAt = rec.top()
		rec.changed = false
		c.publishEdit(rec, rec.top())
		return nil
	})
}

// Document returns a snapshot of an open document.
func (c *CustomEditors) Document(resource protocol.URI, viewType string) (CustomDocument, bool) {
	c.mu.RLock()
	rec, ok := c.documents[documentKey{resource, viewType}]
	c.mu.RUnlock()
	if !ok {
		return CustomDocument{}, false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.snapshot(), !rec.disposed
}
