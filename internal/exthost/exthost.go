// Package exthost provides typed stubs for the capabilities served by the
// extension process. Each stub wraps an rpc.RemoteProxy and fixes the
// argument list and result type of every method.
//
// Calls return immediately with a pending Future. Notifications return only
// the local encoding error, if any.
package exthost

import (
	"github.com/dshills/extbridge/internal/promise"
	"github.com/dshills/extbridge/internal/protocol"
	"github.com/dshills/extbridge/internal/rpc"
)

// Client bundles the stubs for every extension-side capability.
type Client struct {
	Extension           *ExtensionService
	Commands            *Commands
	DocumentsAndEditors *DocumentsAndEditors
	EditorTabs          *EditorTabs
	Webviews            *Webviews
	WebviewPanels       *WebviewPanels
	CustomEditors       *CustomEditors
}

// NewClient creates stubs bound to p.
func NewClient(p *rpc.Protocol) *Client {
	return &Client{
		Extension:           &ExtensionService{remote: p.Remote(protocol.ExtHostExtensionService)},
		Commands:            &Commands{remote: p.Remote(protocol.ExtHostCommands)},
		DocumentsAndEditors: &DocumentsAndEditors{remote: p.Remote(protocol.ExtHostDocumentsAndEditors)},
		EditorTabs:          &EditorTabs{remote: p.Remote(protocol.ExtHostEditorTabs)},
		Webviews:            &Webviews{remote: p.Remote(protocol.ExtHostWebviews)},
		WebviewPanels:       &WebviewPanels{remote: p.Remote(protocol.ExtHostWebviewPanels)},
		CustomEditors:       &CustomEditors{remote: p.Remote(protocol.ExtHostCustomEditors)},
	}
}

// ExtensionService controls the extension lifecycle.
type ExtensionService struct {
	remote *rpc.RemoteProxy
}

// Initialize hands the extension its init data and activates it.
func (s *ExtensionService) Initialize(data protocol.InitData) *promise.Future[protocol.InitResult] {
	return rpc.Decoded[protocol.InitResult](s.remote.Call(protocol.MethodInitialize, data))
}

// Commands runs commands contributed by the extension.
type Commands struct {
	remote *rpc.RemoteProxy
}

// ExecuteContributedCommand runs the command id with args.
func (c *Commands) ExecuteContributedCommand(id string, args ...any) *promise.Future[rpc.Value] {
	return c.remote.Call(protocol.MethodExecuteContributedCommand, append([]any{id}, args...)...)
}

// GetContributedCommandMetadata returns the metadata of every contributed
// command, keyed by id.
func (c *Commands) GetContributedCommandMetadata() *promise.Future[map[string]protocol.CommandMetadata] {
	return rpc.Decoded[map[string]protocol.CommandMetadata](c.remote.Call(protocol.MethodGetContributedCommandMetadata))
}

// DocumentsAndEditors receives document and editor deltas.
type DocumentsAndEditors struct {
	remote *rpc.RemoteProxy
}

// AcceptDocumentsAndEditorsDelta sends one delta.
func (d *DocumentsAndEditors) AcceptDocumentsAndEditorsDelta(delta protocol.DocumentsAndEditorsDelta) *promise.Future[struct{}] {
	return rpc.Discard(d.remote.Call(protocol.MethodAcceptDocumentsAndEditorsDelta, delta))
}

// EditorTabs receives the tab model and its incremental changes.
type EditorTabs struct {
	remote *rpc.RemoteProxy
}

// AcceptEditorTabModel replaces the whole tab model.
func (e *EditorTabs) AcceptEditorTabModel(groups []protocol.TabGroup) *promise.Future[struct{}] {
	return rpc.Discard(e.remote.Call(protocol.MethodAcceptEditorTabModel, groups))
}

// AcceptTabGroupUpdate replaces the properties of one group. Its tabs are
// changed through operations only.
func (e *EditorTabs) AcceptTabGroupUpdate(group protocol.TabGroup) *promise.Future[struct{}] {
	return rpc.Discard(e.remote.Call(protocol.MethodAcceptTabGroupUpdate, group))
}

// AcceptTabOperation applies one tab or group operation.
func (e *EditorTabs) AcceptTabOperation(op protocol.TabOperation) *promise.Future[struct{}] {
	return rpc.Discard(e.remote.Call(protocol.MethodAcceptTabOperation, op))
}

// Webviews delivers webview traffic to the extension.
type Webviews struct {
	remote *rpc.RemoteProxy
}

// OnMessage forwards a message posted by webview content.
func (w *Webviews) OnMessage(handle protocol.WebviewHandle, message string, buffers []rpc.Buffer) error {
	return w.remote.Notify(protocol.MethodOnMessage, handle, message, buffers)
}

// OnMissingCsp reports webview content without a content security policy.
func (w *Webviews) OnMissingCsp(handle protocol.WebviewHandle, extensionID string) error {
	return w.remote.Notify(protocol.MethodOnMissingCsp, handle, extensionID)
}

// WebviewPanels reports panel lifecycle to the extension.
type WebviewPanels struct {
	remote *rpc.RemoteProxy
}

// OnDidChangeWebviewPanelViewStates reports new view states.
func (w *WebviewPanels) OnDidChangeWebviewPanelViewStates(states map[protocol.WebviewHandle]protocol.WebviewViewState) error {
	return w.remote.Notify(protocol.MethodOnDidChangeWebviewPanelViewStates, states)
}

// OnDidDisposeWebviewPanel reports a panel closed by the host.
func (w *WebviewPanels) OnDidDisposeWebviewPanel(handle protocol.WebviewHandle) *promise.Future[struct{}] {
	return rpc.Discard(w.remote.Call(protocol.MethodOnDidDisposeWebviewPanel, handle))
}

// DeserializeWebviewPanel asks the extension to restore a panel into the
// host-allocated handle.
func (w *WebviewPanels) DeserializeWebviewPanel(handle protocol.WebviewHandle, viewType string, init protocol.DeserializeInitData, column protocol.ViewColumn) *promise.Future[struct{}] {
	return rpc.Discard(w.remote.Call(protocol.MethodDeserializeWebviewPanel, handle, viewType, init, column))
}

// CustomEditors drives custom editor documents in the extension.
type CustomEditors struct {
	remote *rpc.RemoteProxy
}

// CreateCustomDocument opens the document model for resource.
func (c *CustomEditors) CreateCustomDocument(resource protocol.URI, viewType string) *promise.Future[protocol.CustomDocumentResult] {
	return rpc.Decoded[protocol.CustomDocumentResult](c.remote.Call(protocol.MethodCreateCustomDocument, resource, viewType))
}

// ResolveCustomEditor binds an editor webview to a document.
func (c *CustomEditors) ResolveCustomEditor(resource protocol.URI, handle protocol.WebviewHandle, viewType string, init protocol.CustomEditorInitData, column protocol.ViewColumn) *promise.Future[struct{}] {
	return rpc.Discard(c.remote.Call(protocol.MethodResolveCustomEditor, resource, handle, viewType, init, column))
}

// DisposeCustomDocument releases the document model.
func (c *CustomEditors) DisposeCustomDocument(resource protocol.URI, viewType string) *promise.Future[struct{}] {
	return rpc.Discard(c.remote.Call(protocol.MethodDisposeCustomDocument, resource, viewType))
}

// Undo reverts edit editID.
func (c *CustomEditors) Undo(resource protocol.URI, viewType string, editID int, isDirty bool) *promise.Future[struct{}] {
	return rpc.Discard(c.remote.Call(protocol.MethodUndo, resource, viewType, editID, isDirty))
}

// Redo reapplies edit editID.
func (c *CustomEditors) Redo(resource protocol.URI, viewType string, editID int, isDirty bool) *promise.Future[struct{}] {
	return rpc.Discard(c.remote.Call(protocol.MethodRedo, resource, viewType, editID, isDirty))
}

// OnSave saves the document.
func (c *CustomEditors) OnSave(resource protocol.URI, viewType string) *promise.Future[struct{}] {
	return rpc.Discard(c.remote.Call(protocol.MethodOnSave, resource, viewType))
}
