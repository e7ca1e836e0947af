package extension

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/dshills/extbridge/internal/protocol"
	"github.com/dshills/extbridge/internal/rpc"
	"github.com/dshills/extbridge/internal/statesync"
)

// CommandFunc implements a contributed command. args holds the arguments
// after the command id.
type CommandFunc func(ctx context.Context, args *rpc.Args) (any, error)

// Command is a command the extension contributes to the host.
type Command struct {
	ID       string
	Metadata protocol.CommandMetadata
	Run      CommandFunc
}

// Serializer restores a panel the host asks to deserialize into handle.
type Serializer func(ctx context.Context, handle protocol.WebviewHandle, init protocol.DeserializeInitData, column protocol.ViewColumn) error

// MessageHandler receives messages posted by webview content.
type MessageHandler func(handle protocol.WebviewHandle, message string, buffers []rpc.Buffer)

// ActivateFunc runs once when the host initializes the extension. Commands
// contributed from it are announced to the host before $initialize returns.
type ActivateFunc func(ctx context.Context, r *Runtime) error

// Panel is the extension's view of a webview panel.
type Panel struct {
	Handle    protocol.WebviewHandle
	ViewType  string
	Title     string
	ViewState protocol.WebviewViewState
	Restored  bool
}

// CustomDocument is the extension's model of an open custom document.
// Applied and Undone hold edit ids, most recent last.
type CustomDocument struct {
	Resource protocol.URI
	ViewType string
	Editors  []protocol.WebviewHandle
	Applied  []int
	Undone   []int
	SavedAt  int

	nextEdit int
}

// Dirty reports whether the document changed since it was saved.
func (d *CustomDocument) Dirty() bool {
	return d.top() != d.SavedAt
}

func (d *CustomDocument) top() int {
	if len(d.Applied) == 0 {
		return 0
	}
	return d.Applied[len(d.Applied)-1]
}

// step moves editID from the top of from to the top of to.
func (d *CustomDocument) step(editID int, from, to *[]int) error {
	n := len(*from)
	if n == 0 || (*from)[n-1] != editID {
		return fmt.Errorf("edit %d is not next on %s", editID, d.Resource)
	}
	*from = (*from)[:n-1]
	*to = append(*to, editID)
	return nil
}

type docKey struct {
	resource protocol.URI
	viewType string
}

// Runtime serves the extension side of one connection.
type Runtime struct {
	log   hclog.Logger
	proto *rpc.Protocol
	host  *Host
	ext   protocol.WebviewExtension

	documents *statesync.DocumentsMirror
	tabs      *statesync.TabsMirror

	mu          sync.RWMutex
	commands    map[string]Command
	serializers map[string]Serializer
	panels      map[protocol.WebviewHandle]*Panel
	customDocs  map[docKey]*CustomDocument
	missingCsp  []protocol.WebviewHandle
	onMessage   MessageHandler
	activate    ActivateFunc
	init        *protocol.InitData
	activated   bool
}

// New creates a runtime on p. Register must be called before p starts.
func New(p *rpc.Protocol, ext protocol.WebviewExtension, log hclog.Logger) *Runtime {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Runtime{
		log:         log.Named("extension"),
		proto:       p,
		host:        NewHost(p),
		ext:         ext,
		documents:   statesync.NewDocumentsMirror(log),
		tabs:        statesync.NewTabsMirror(log),
		commands:    make(map[string]Command),
		serializers: make(map[string]Serializer),
		panels:      make(map[protocol.WebviewHandle]*Panel),
		customDocs:  make(map[docKey]*CustomDocument),
	}
}

// Host returns the stubs for host capabilities.
func (r *Runtime) Host() *Host { return r.host }

// Documents returns the mirror of the host's documents and editors.
func (r *Runtime) Documents() *statesync.DocumentsMirror { return r.documents }

// Tabs returns the mirror of the host's tab model.
func (r *Runtime) Tabs() *statesync.TabsMirror { return r.tabs }

// OnActivate sets the activation hook.
func (r *Runtime) OnActivate(fn ActivateFunc) {
	r.mu.Lock()
	r.activate = fn
	r.mu.Unlock()
}

// OnWebviewMessage sets the receiver of webview messages.
func (r *Runtime) OnWebviewMessage(fn MessageHandler) {
	r.mu.Lock()
	r.onMessage = fn
	r.mu.Unlock()
}

// InitData returns what the host sent with $initialize.
func (r *Runtime) InitData() (protocol.InitData, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.init == nil {
		return protocol.InitData{}, false
	}
	return *r.init, true
}

// Contribute adds a command. After activation the host is told about it
// right away; before, it is announced when $initialize completes.
func (r *Runtime) Contribute(ctx context.Context, cmd Command) error {
	r.mu.Lock()
	if _, ok := r.commands[cmd.ID]; ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateCommand, cmd.ID)
	}
	r.commands[cmd.ID] = cmd
	live := r.activated
	r.mu.Unlock()

	if !live {
		return nil
	}
	if _, err := r.host.Commands.Register(cmd.ID).Await(ctx); err != nil {
		r.mu.Lock()
		delete(r.commands, cmd.ID)
		r.mu.Unlock()
		return fmt.Errorf("register command %s: %w", cmd.ID, err)
	}
	return nil
}

// Withdraw removes a contributed command.
func (r *Runtime) Withdraw(ctx context.Context, id string) error {
	r.mu.Lock()
	_, ok := r.commands[id]
	delete(r.commands, id)
	live := r.activated
	r.mu.Unlock()

	if !ok || !live {
		return nil
	}
	_, err := r.host.Commands.Unregister(id).Await(ctx)
	return err
}

// CommandIDs lists the contributed commands in order.
func (r *Runtime) CommandIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.commands))
	for id := range r.commands {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// RegisterSerializer makes panels of viewType restorable and tells the
// host.
func (r *Runtime) RegisterSerializer(ctx context.Context, viewType string, opts protocol.SerializerOptions, fn Serializer) error {
	r.mu.Lock()
	r.serializers[viewType] = fn
	r.mu.Unlock()

	if _, err := r.host.Panels.RegisterSerializer(viewType, opts).Await(ctx); err != nil {
		r.mu.Lock()
		delete(r.serializers, viewType)
		r.mu.Unlock()
		return err
	}
	return nil
}

// CreatePanel opens a panel with html as its content and returns the
// handle allocated for it.
func (r *Runtime) CreatePanel(ctx context.Context, viewType, title, html string, show protocol.ShowOptions) (protocol.WebviewHandle, error) {
	handle := protocol.WebviewHandle(uuid.NewString())
	init := protocol.WebviewInitData{
		Title:          title,
		WebviewOptions: protocol.WebviewContentOptions{EnableScripts: true},
		PanelOptions:   protocol.WebviewPanelOptions{RetainContextWhenHidden: true},
	}
	if _, err := r.host.Panels.Create(r.ext, handle, viewType, init, show).Await(ctx); err != nil {
		return "", fmt.Errorf("create panel %s: %w", viewType, err)
	}

	r.mu.Lock()
	r.panels[handle] = &Panel{Handle: handle, ViewType: viewType, Title: title}
	r.mu.Unlock()

	if html != "" {
		if _, err := r.host.Webviews.SetHTML(handle, html).Await(ctx); err != nil {
			return handle, fmt.Errorf("set html for %s: %w", handle, err)
		}
	}
	return handle, nil
}

// Panel returns the extension's record of a live panel.
func (r *Runtime) Panel(handle protocol.WebviewHandle) (Panel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.panels[handle]
	if !ok {
		return Panel{}, false
	}
	return *p, true
}

// Panels lists live panels ordered by handle.
func (r *Runtime) Panels() []Panel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Panel, 0, len(r.panels))
	for _, p := range r.panels {
		out = append(out, *p)
	}
	slices.SortFunc(out, func(a, b Panel) int {
		switch {
		case a.Handle < b.Handle:
			return -1
		case a.Handle > b.Handle:
			return 1
		}
		return 0
	})
	return out
}

// CustomDocument returns an open custom document.
func (r *Runtime) CustomDocument(resource protocol.URI, viewType string) (CustomDocument, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.customDocs[docKey{resource, viewType}]
	if !ok {
		return CustomDocument{}, false
	}
	out := *d
	out.Editors = slices.Clone(d.Editors)
	out.Applied = slices.Clone(d.Applied)
	out.Undone = slices.Clone(d.Undone)
	return out, true
}

// MissingCsp lists the webviews the host reported as lacking a content
// security policy.
func (r *Runtime) MissingCsp() []protocol.WebviewHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.missingCsp)
}

// Register serves every ExtHost capability on the protocol.
func (r *Runtime) Register() error {
	handlers := []struct {
		name rpc.Capability
		h    rpc.Handler
	}{
		{protocol.ExtHostExtensionService, r.extensionMethods()},
		{protocol.ExtHostCommands, r.commandMethods()},
		{protocol.ExtHostDocumentsAndEditors, r.documents.Methods()},
		{protocol.ExtHostEditorTabs, r.tabs.Methods()},
		{protocol.ExtHostWebviews, r.webviewMethods()},
		{protocol.ExtHostWebviewPanels, r.panelMethods()},
		{protocol.ExtHostCustomEditors, r.customEditorMethods()},
	}
	for _, h := range handlers {
		if err := r.proto.Register(h.name, h.h); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runtime) initialize(ctx context.Context, data protocol.InitData) (protocol.InitResult, error) {
	if ok, err := protocol.IsCompatible(data.ProtocolVersion); !ok {
		return protocol.InitResult{}, fmt.Errorf("%w: %w", ErrIncompatibleHost, err)
	}

	r.mu.Lock()
	if r.init != nil {
		r.mu.Unlock()
		return protocol.InitResult{}, ErrAlreadyInitialized
	}
	r.init = &data
	activate := r.activate
	r.mu.Unlock()

	r.log.Info("initializing", "host", data.HostVersion, "protocol", data.ProtocolVersion, "extension", data.Extension.ID)

	if activate != nil {
		if err := activate(ctx, r); err != nil {
			return protocol.InitResult{}, fmt.Errorf("activate: %w", err)
		}
	}

	ids := r.CommandIDs()
	for _, id := range ids {
		if _, err := r.host.Commands.Register(id).Await(ctx); err != nil {
			return protocol.InitResult{}, fmt.Errorf("register command %s: %w", id, err)
		}
	}

	r.mu.Lock()
	r.activated = true
	r.mu.Unlock()

	return protocol.InitResult{
		ProtocolVersion: protocol.ProtocolVersion,
		Activated:       true,
		Commands:        ids,
	}, nil
}

func (r *Runtime) runCommand(ctx context.Context, args *rpc.Args) (any, error) {
	var id string
	if err := args.Decode(0, &id); err != nil {
		return nil, err
	}
	r.mu.RLock()
	cmd, ok := r.commands[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, id)
	}

	tail, err := rpc.NewArgs(args.Envelope(1))
	if err != nil {
		return nil, err
	}
	r.log.Debug("running command", "id", id, "args", tail.Len())
	return cmd.Run(ctx, tail)
}

func (r *Runtime) commandMetadata() map[string]protocol.CommandMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]protocol.CommandMetadata, len(r.commands))
	for id, c := range r.commands {
		out[id] = c.Metadata
	}
	return out
}

func (r *Runtime) receiveMessage(handle protocol.WebviewHandle, message string, buffers []rpc.Buffer) {
	r.mu.RLock()
	fn := r.onMessage
	r.mu.RUnlock()
	if fn == nil {
		r.log.Debug("webview message dropped", "handle", handle)
		return
	}
	fn(handle, message, buffers)
}

func (r *Runtime) applyViewStates(states map[protocol.WebviewHandle]protocol.WebviewViewState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for h, s := range states {
		if p, ok := r.panels[h]; ok {
			p.ViewState = s
		}
	}
}

func (r *Runtime) forgetPanel(handle protocol.WebviewHandle) {
	r.mu.Lock()
	delete(r.panels, handle)
	r.mu.Unlock()
}

func (r *Runtime) deserialize(ctx context.Context, handle protocol.WebviewHandle, viewType string, init protocol.DeserializeInitData, column protocol.ViewColumn) error {
	r.mu.RLock()
	fn, ok := r.serializers[viewType]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSerializer, viewType)
	}
	if err := fn(ctx, handle, init, column); err != nil {
		return err
	}

	r.mu.Lock()
	r.panels[handle] = &Panel{
		Handle:    handle,
		ViewType:  viewType,
		Title:     init.Title,
		ViewState: protocol.WebviewViewState{Position: column},
		Restored:  true,
	}
	r.mu.Unlock()
	return nil
}

func (r *Runtime) withDocument(resource protocol.URI, viewType string, fn func(d *CustomDocument) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.customDocs[docKey{resource, viewType}]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDocument, resource)
	}
	return fn(d)
}

// Edit records a new edit on an open custom document and reports it to the
// host. It returns the edit id.
func (r *Runtime) Edit(ctx context.Context, resource protocol.URI, viewType, label string) (int, error) {
	var id int
	err := r.withDocument(resource, viewType, func(d *CustomDocument) error {
		d.nextEdit++
		id = d.nextEdit
		d.Applied = append(d.Applied, id)
		d.Undone = nil
		return nil
	})
	if err != nil {
		return 0, err
	}
	if _, err := r.host.CustomEditors.OnDidEdit(resource, viewType, id, label).Await(ctx); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *Runtime) createDocument(resource protocol.URI, viewType string) protocol.CustomDocumentResult {
	r.mu.Lock()
	key := docKey{resource, viewType}
	if _, ok := r.customDocs[key]; !ok {
		r.customDocs[key] = &CustomDocument{Resource: resource, ViewType: viewType}
	}
	r.mu.Unlock()
	return protocol.CustomDocumentResult{Editable: true}
}

func (r *Runtime) disposeDocument(resource protocol.URI, viewType string) {
	r.mu.Lock()
	delete(r.customDocs, docKey{resource, viewType})
	r.mu.Unlock()
}
