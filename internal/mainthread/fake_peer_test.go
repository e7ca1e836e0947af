package mainthread

import (
	"fmt"
	"sync"

	"github.com/dshills/extbridge/internal/event"
	"github.com/dshills/extbridge/internal/promise"
	"github.com/dshills/extbridge/internal/protocol"
	"github.com/dshills/extbridge/internal/rpc"
)

// fakePeer records every call made to the extension side and answers
// immediately.
type fakePeer struct {
	mu    sync.Mutex
	calls []string

	viewStates []map[protocol.WebviewHandle]protocol.WebviewViewState
	messages   []string
	buffers    [][]rpc.Buffer
	steps      []int

	deserializeErr error
	resolveErr     error
	editable       bool
	// resolveGates holds resolves of a resource until the channel closes
	resolveGates map[protocol.URI]chan struct{}
}

func (p *fakePeer) record(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, fmt.Sprintf(format, args...))
}

func (p *fakePeer) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakePeer) OnDidChangeWebviewPanelViewStates(states map[protocol.WebviewHandle]protocol.WebviewViewState) error {
	p.mu.Lock()
	p.viewStates = append(p.viewStates, states)
	p.mu.Unlock()
	p.record("viewStates %d", len(states))
	return nil
}

func (p *fakePeer) OnDidDisposeWebviewPanel(handle protocol.WebviewHandle) *promise.Future[struct{}] {
	p.record("disposePanel %s", handle)
	return promise.Resolved(struct{}{})
}

func (p *fakePeer) DeserializeWebviewPanel(handle protocol.WebviewHandle, viewType string, init protocol.DeserializeInitData, _ protocol.ViewColumn) *promise.Future[struct{}] {
	p.record("deserialize %s %s", viewType, init.State)
	if p.deserializeErr != nil {
		return promise.Rejected[struct{}](p.deserializeErr)
	}
	return promise.Resolved(struct{}{})
}

func (p *fakePeer) OnMessage(handle protocol.WebviewHandle, message string, buffers []rpc.Buffer) error {
	p.mu.Lock()
	p.messages = append(p.messages, message)
	p.buffers = append(p.buffers, buffers)
	p.mu.Unlock()
	p.record("message %s", handle)
	return nil
}

func (p *fakePeer) OnMissingCsp(handle protocol.WebviewHandle, extensionID string) error {
	p.record("missingCsp %s %s", handle, extensionID)
	return nil
}

func (p *fakePeer) CreateCustomDocument(resource protocol.URI, viewType string) *promise.Future[protocol.CustomDocumentResult] {
	p.record("createDocument %s", resource)
	return promise.Resolved(protocol.CustomDocumentResult{Editable: p.editable})
}

func (p *fakePeer) ResolveCustomEditor(resource protocol.URI, _ protocol.WebviewHandle, viewType string, _ protocol.CustomEditorInitData, _ protocol.ViewColumn) *promise.Future[struct{}] {
	p.record("resolveEditor %s", resource)
	p.mu.Lock()
	gate, ok := p.resolveGates[resource]
	p.mu.Unlock()
	if ok {
		f, r := promise.New[struct{}]()
		go func() {
			<-gate
			if p.resolveErr != nil {
				r.Reject(p.resolveErr)
				return
			}
			r.Resolve(struct{}{})
		}()
		return f
	}
	if p.resolveErr != nil {
		return promise.Rejected[struct{}](p.resolveErr)
	}
	return promise.Resolved(struct{}{})
}

func (p *fakePeer) DisposeCustomDocument(resource protocol.URI, viewType string) *promise.Future[struct{}] {
	p.record("disposeDocument %s", resource)
	return promise.Resolved(struct{}{})
}

func (p *fakePeer) Undo(resource protocol.URI, viewType string, editID int, isDirty bool) *promise.Future[struct{}] {
	p.record("undo %d dirty=%t", editID, isDirty)
	return promise.Resolved(struct{}{})
}

func (p *fakePeer) Redo(resource protocol.URI, viewType string, editID int, isDirty bool) *promise.Future[struct{}] {
	p.record("redo %d dirty=%t", editID, isDirty)
	return promise.Resolved(struct{}{})
}

func (p *fakePeer) OnSave(resource protocol.URI, viewType string) *promise.Future[struct{}] {
	p.record("save %s", resource)
	return promise.Resolved(struct{}{})
}

func (p *fakePeer) ExecuteContributedCommand(id string, args ...any) *promise.Future[rpc.Value] {
	p.record("execute %s %v", id, args)
	v, err := rpc.NewValue("from-extension")
	if err != nil {
		return promise.Rejected[rpc.Value](err)
	}
	return promise.Resolved(v)
}

type managers struct {
	bus      *event.Bus
	peer     *fakePeer
	webviews *Webviews
	panels   *WebviewPanels
	editors  *CustomEditors
	commands *Commands
}

func newManagers() *managers {
	bus := event.NewBus(nil)
	peer := &fakePeer{}
	webviews := NewWebviews(peer, bus, nil)
	return &managers{
		bus:      bus,
		peer:     peer,
		webviews: webviews,
		panels:   NewWebviewPanels(peer, webviews, bus, nil),
		editors:  NewCustomEditors(peer, webviews, bus, nil),
		commands: NewCommands(peer, bus, nil),
	}
}
