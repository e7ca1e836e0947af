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

// Panel is the host state of one webview panel.
type Panel struct {
	Handle    protocol.WebviewHandle
	ViewType  string
	Title     string
	Extension protocol.WebviewExtension
	IconPath  *protocol.IconPath
	Options   protocol.WebviewPanelOptions
	ViewState protocol.WebviewViewState
	Restored  bool
}

type panelRecord struct {
	mu       sync.Mutex
	panel    Panel
	disposed bool
}

// WebviewPanels manages the webview panels of one session.
type WebviewPanels struct {
	log      hclog.Logger
	events   *event.Bus
	peer     PanelPeer
	webviews *Webviews

	mu          sync.RWMutex
	panels      map[protocol.WebviewHandle]*panelRecord
	serializers map[string]protocol.SerializerOptions
}

// NewWebviewPanels creates an empty panel manager. Panel content lives in
// webviews.
func NewWebviewPanels(peer PanelPeer, webviews *Webviews, bus *event.Bus, log hclog.Logger) *WebviewPanels {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	if bus == nil {
		bus = event.NewBus(log)
	}
	return &WebviewPanels{
		log:         log.Named("panels"),
		events:      bus,
		peer:        peer,
		webviews:    webviews,
		panels:      make(map[protocol.WebviewHandle]*panelRecord),
		serializers: make(map[string]protocol.SerializerOptions),
	}
}

// Create adds a panel under a handle allocated by the extension.
func (w *WebviewPanels) Create(ext protocol.WebviewExtension, handle protocol.WebviewHandle, viewType string, init protocol.WebviewInitData, show protocol.ShowOptions) error {
	p := Panel{
		Handle:    handle,
		ViewType:  viewType,
		Title:     init.Title,
		Extension: ext,
		Options:   init.PanelOptions,
		ViewState: protocol.WebviewViewState{
			Active:   !show.PreserveFocus,
			Visible:  true,
			Position: show.ViewColumn,
		},
	}
	view := Webview{
		Handle:           handle,
		Extension:        ext,
		Options:          init.WebviewOptions,
		SerializeBuffers: init.SerializeBuffersForPostMessage,
	}
	if err := w.insert(p, view); err != nil {
		return err
	}
	w.log.Debug("panel created", "handle", handle, "view_type", viewType)
	w.events.PanelCreated.Publish(event.PanelCreated{
		Handle:    handle,
		ViewType:  viewType,
		Title:     p.Title,
		Extension: ext.ID,
	})
	return nil
}

func (w *WebviewPanels) insert(p Panel, view Webview) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.panels[p.Handle]; ok {
		w.log.Warn("duplicate panel handle", "handle", p.Handle)
		return handleErr("create", "webview panel", string(p.Handle), ErrDuplicateHandle)
	}
	if err := w.webviews.add(view); err != nil {
		return err
	}
	w.panels[p.Handle] = &panelRecord{panel: p}
	return nil
}

// remove deletes a panel and its webview. It reports the removed panel.
func (w *WebviewPanels) remove(handle protocol.WebviewHandle) (Panel, bool) {
	w.mu.Lock()
	rec, ok := w.panels[handle]
	delete(w.panels, handle)
	w.mu.Unlock()
	if !ok {
		return Panel{}, false
	}
	rec.mu.Lock()
	rec.disposed = true
	p := rec.panel
	rec.mu.Unlock()
	w.webviews.remove(handle)
	return p, true
}

// Dispose removes a panel at the extension's request. Disposing an unknown
// handle does nothing.
func (w *WebviewPanels) Dispose(handle protocol.WebviewHandle) {
	p, ok := w.remove(handle)
	if !ok {
		w.log.Debug("dispose of unknown panel", "handle", handle)
		return
	}
	w.log.Debug("panel disposed", "handle", handle)
	w.events.PanelDisposed.Publish(event.PanelDisposed{Handle: handle, ViewType: p.ViewType})
}

// update runs fn on a live panel and publishes the result.
func (w *WebviewPanels) update(op string, handle protocol.WebviewHandle, fn func(*Panel)) (Panel, error) {
	w.mu.RLock()
	rec, ok := w.panels[handle]
	w.mu.RUnlock()
	if ok {
		rec.mu.Lock()
		if !rec.disposed {
			fn(&rec.panel)
			p := rec.panel
			rec.mu.Unlock()
			w.events.PanelUpdated.Publish(event.PanelUpdated{
				Handle:     handle,
				Title:      p.Title,
				IconPath:   p.IconPath,
				Visible:    p.ViewState.Visible,
				Active:     p.ViewState.Active,
				ViewColumn: p.ViewState.Position,
			})
			return p, nil
		}
		rec.mu.Unlock()
	}
	w.log.Warn("ignoring operation on unknown panel", "op", op, "handle", handle)
	return Panel{}, handleErr(op, "webview panel", string(handle), ErrUnknownHandle)
}

// Reveal shows a panel, optionally moving it to another column.
func (w *WebviewPanels) Reveal(handle protocol.WebviewHandle, show protocol.ShowOptions) error {
	p, err := w.update("reveal", handle, func(p *Panel) {
		p.ViewState.Visible = true
		p.ViewState.Active = !show.PreserveFocus
		if show.ViewColumn != protocol.ViewColumnNone {
			p.ViewState.Position = show.ViewColumn
		}
	})
	if err != nil {
		return err
	}
	w.pushViewStates(map[protocol.WebviewHandle]protocol.WebviewViewState{handle: p.ViewState})
	return nil
}

// SetTitle changes a panel's title.
func (w *WebviewPanels) SetTitle(handle protocol.WebviewHandle, title string) error {
	_, err := w.update("setTitle", handle, func(p *Panel) { p.Title = title })
	return err
}

// SetIconPath changes a panel's icon. Nil clears it.
func (w *WebviewPanels) SetIconPath(handle protocol.WebviewHandle, icon *protocol.IconPath) error {
	_, err := w.update("setIconPath", handle, func(p *Panel) { p.IconPath = icon })
	return err
}

// RegisterSerializer records that the extension can restore panels of
// viewType.
func (w *WebviewPanels) RegisterSerializer(viewType string, opts protocol.SerializerOptions) error {
	w.mu.Lock()
	if _, ok := w.serializers[viewType]; ok {
		w.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateSerializer, viewType)
	}
	w.serializers[viewType] = opts
	w.mu.Unlock()

	w.events.SerializerChanged.Publish(event.SerializerChanged{ViewType: viewType, Registered: true})
	return nil
}

// UnregisterSerializer removes the serializer for viewType. Removing an
// unknown serializer does nothing.
func (w *WebviewPanels) UnregisterSerializer(viewType string) {
	w.mu.Lock()
	_, ok := w.serializers[viewType]
	delete(w.serializers, viewType)
	w.mu.Unlock()

	if ok {
		w.events.SerializerChanged.Publish(event.SerializerChanged{ViewType: viewType})
	}
}

// HasSerializer reports whether panels of viewType can be restored.
func (w *WebviewPanels) HasSerializer(viewType string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.serializers[viewType]
	return ok
}

// Get returns a copy of a live panel.
func (w *WebviewPanels) Get(handle protocol.WebviewHandle) (Panel, bool) {
	w.mu.RLock()
	rec, ok := w.panels[handle]
	w.mu.RUnlock()
	if !ok {
		return Panel{}, false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.panel, !rec.disposed
}

// Count returns the number of live panels.
func (w *WebviewPanels) Count() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.panels)
}

// List returns every live panel ordered by handle.
func (w *WebviewPanels) List() []Panel {
	w.mu.RLock()
	recs := make([]*panelRecord, 0, len(w.panels))
	for _, rec := range w.panels {
		recs = append(recs, rec)
	}
	w.mu.RUnlock()

	out := make([]Panel, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		if !rec.disposed {
			out = append(out, rec.panel)
		}
		rec.mu.Unlock()
	}
	slices.SortFunc(out, func(a, b Panel) int { return strings.Compare(string(a.Handle), string(b.Handle)) })
	return out
}

// Close disposes a panel on the host's initiative, for example when the
// user closes its tab, and tells the extension.
func (w *WebviewPanels) Close(handle protocol.WebviewHandle) error {
	p, ok := w.remove(handle)
	if !ok {
		w.log.Warn("ignoring close of unknown panel", "handle", handle)
		return handleErr("close", "webview panel", string(handle), ErrUnknownHandle)
	}
	w.events.PanelDisposed.Publish(event.PanelDisposed{Handle: handle, ViewType: p.ViewType, ByHost: true})

	f := w.peer.OnDidDisposeWebviewPanel(handle)
	f.OnSettle(func() {
		if _, err, _ := f.Result(); err != nil {
			w.log.Warn("extension did not acknowledge panel close", "handle", handle, "error", err)
		}
	})
	return nil
}

// Restore recreates a panel of viewType from saved state. The host allocates
// the handle and the extension's serializer fills the panel in. On failure
// the panel is removed again.
func (w *WebviewPanels) Restore(ctx context.Context, viewType, title, state string, column protocol.ViewColumn) (protocol.WebviewHandle, error) {
	w.mu.RLock()
	opts, ok := w.serializers[viewType]
	w.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoSerializer, viewType)
	}

	handle := protocol.WebviewHandle(uuid.NewString())
	p := Panel{
		Handle:    handle,
		ViewType:  viewType,
		Title:     title,
		ViewState: protocol.WebviewViewState{Visible: true, Position: column},
		Restored:  true,
	}
	if err := w.insert(p, Webview{Handle: handle, SerializeBuffers: opts.SerializeBuffersForPostMessage}); err != nil {
		return "", err
	}
	w.events.PanelCreated.Publish(event.PanelCreated{Handle: handle, ViewType: viewType, Title: title, Restored: true})

	init := protocol.DeserializeInitData{Title: title, State: state}
	if _, err := w.peer.DeserializeWebviewPanel(handle, viewType, init, column).AwaitOrCancel(ctx); err != nil {
		w.log.Warn("panel restore failed", "handle", handle, "view_type", viewType, "error", err)
		w.Dispose(handle)
		return "", fmt.Errorf("restore %s panel: %w", viewType, err)
	}
	return handle, nil
}

// SetViewStates applies view states decided by the host layout and reports
// them to the extension. Unknown handles are skipped.
func (w *WebviewPanels) SetViewStates(states map[protocol.WebviewHandle]protocol.WebviewViewState) {
	applied := make(map[protocol.WebviewHandle]protocol.WebviewViewState, len(states))
	for handle, state := range states {
		if _, err := w.update("setViewState", handle, func(p *Panel) { p.ViewState = state }); err == nil {
			applied[handle] = state
		}
	}
	w.pushViewStates(applied)
}

func (w *WebviewPanels) pushViewStates(states map[protocol.WebviewHandle]protocol.WebviewViewState) {
	if len(states) == 0 {
		return
	}
	if err := w.peer.OnDidChangeWebviewPanelViewStates(states); err != nil {
		w.log.Debug("view states not sent", "error", err)
	}
}
