package extension

import (
	"github.com/dshills/extbridge/internal/promise"
	"github.com/dshills/extbridge/internal/protocol"
	"github.com/dshills/extbridge/internal/rpc"
)

// Host bundles the stubs for the capabilities served by the host.
type Host struct {
	Panels        *PanelsClient
	Webviews      *WebviewsClient
	CustomEditors *CustomEditorsClient
	Commands      *CommandsClient
}

// NewHost creates host stubs bound to p.
func NewHost(p *rpc.Protocol) *Host {
	return &Host{
		Panels:        &PanelsClient{remote: p.Remote(protocol.MainThreadWebviewPanels)},
		Webviews:      &WebviewsClient{remote: p.Remote(protocol.MainThreadWebviews)},
		CustomEditors: &CustomEditorsClient{remote: p.Remote(protocol.MainThreadCustomEditors)},
		Commands:      &CommandsClient{remote: p.Remote(protocol.MainThreadCommands)},
	}
}

// PanelsClient calls MainThreadWebviewPanels.
type PanelsClient struct {
	remote *rpc.RemoteProxy
}

// Create asks the host to show a new panel under handle.
func (c *PanelsClient) Create(ext protocol.WebviewExtension, handle protocol.WebviewHandle, viewType string, init protocol.WebviewInitData, show protocol.ShowOptions) *promise.Future[struct{}] {
	return rpc.Discard(c.remote.Call(protocol.MethodCreateWebviewPanel, ext, handle, viewType, init, show))
}

// Dispose closes a panel.
func (c *PanelsClient) Dispose(handle protocol.WebviewHandle) *promise.Future[struct{}] {
	return rpc.Discard(c.remote.Call(protocol.MethodDisposeWebview, handle))
}

// Reveal shows a panel.
func (c *PanelsClient) Reveal(handle protocol.WebviewHandle, show protocol.ShowOptions) *promise.Future[struct{}] {
	return rpc.Discard(c.remote.Call(protocol.MethodReveal, handle, show))
}

// SetTitle retitles a panel.
func (c *PanelsClient) SetTitle(handle protocol.WebviewHandle, title string) *promise.Future[struct{}] {
	return rpc.Discard(c.remote.Call(protocol.MethodSetTitle, handle, title))
}

// SetIconPath sets or, with nil, clears a panel icon.
func (c *PanelsClient) SetIconPath(handle protocol.WebviewHandle, icon *protocol.IconPath) *promise.Future[struct{}] {
	return rpc.Discard(c.remote.Call(protocol.MethodSetIconPath, handle, icon))
}

// RegisterSerializer declares that panels of viewType can be restored.
func (c *PanelsClient) RegisterSerializer(viewType string, opts protocol.SerializerOptions) *promise.Future[struct{}] {
	return rpc.Discard(c.remote.Call(protocol.MethodRegisterSerializer, viewType, opts))
}

// UnregisterSerializer withdraws a serializer.
func (c *PanelsClient) UnregisterSerializer(viewType string) *promise.Future[struct{}] {
	return rpc.Discard(c.remote.Call(protocol.MethodUnregisterSerializer, viewType))
}

// WebviewsClient calls MainThreadWebviews.
type WebviewsClient struct {
	remote *rpc.RemoteProxy
}

// SetHTML replaces the content of a webview.
func (c *WebviewsClient) SetHTML(handle protocol.WebviewHandle, html string) *promise.Future[struct{}] {
	return rpc.Discard(c.remote.Call(protocol.MethodSetHTML, handle, html))
}

// SetOptions replaces the content options of a webview.
func (c *WebviewsClient) SetOptions(handle protocol.WebviewHandle, opts protocol.WebviewContentOptions) *promise.Future[struct{}] {
	return rpc.Discard(c.remote.Call(protocol.MethodSetOptions, handle, opts))
}

// PostMessage sends message and buffers to the webview content. The result
// reports whether the host delivered it.
func (c *WebviewsClient) PostMessage(handle protocol.WebviewHandle, message string, buffers ...rpc.Buffer) *promise.Future[bool] {
	if buffers == nil {
		buffers = []rpc.Buffer{}
	}
	return rpc.Decoded[bool](c.remote.Call(protocol.MethodPostMessage, handle, message, buffers))
}

// CustomEditorsClient calls MainThreadCustomEditors.
type CustomEditorsClient struct {
	remote *rpc.RemoteProxy
}

// RegisterTextEditorProvider registers a provider for text documents.
func (c *CustomEditorsClient) RegisterTextEditorProvider(ext protocol.WebviewExtension, viewType string, opts protocol.WebviewPanelOptions, caps protocol.CustomTextEditorCapabilities, serializeBuffers bool) *promise.Future[struct{}] {
	return rpc.Discard(c.remote.Call(protocol.MethodRegisterTextEditorProvider, ext, viewType, opts, caps, serializeBuffers))
}

// RegisterCustomEditorProvider registers a provider with its own document
// model.
func (c *CustomEditorsClient) RegisterCustomEditorProvider(ext protocol.WebviewExtension, viewType string, opts protocol.WebviewPanelOptions, multipleEditors, serializeBuffers bool) *promise.Future[struct{}] {
	return rpc.Discard(c.remote.Call(protocol.MethodRegisterCustomEditorProvider, ext, viewType, opts, multipleEditors, serializeBuffers))
}

// UnregisterEditorProvider removes a provider.
func (c *CustomEditorsClient) UnregisterEditorProvider(viewType string) *promise.Future[struct{}] {
	return rpc.Discard(c.remote.Call(protocol.MethodUnregisterEditorProvider, viewType))
}

// OnDidEdit records edit editID on a custom document.
func (c *CustomEditorsClient) OnDidEdit(resource protocol.URI, viewType string, editID int, label string) *promise.Future[struct{}] {
	return rpc.Discard(c.remote.Call(protocol.MethodOnDidEdit, resource, viewType, editID, label))
}

// OnContentChange marks a custom document changed outside its edit stack.
func (c *CustomEditorsClient) OnContentChange(resource protocol.URI, viewType string) *promise.Future[struct{}] {
	return rpc.Discard(c.remote.Call(protocol.MethodOnContentChange, resource, viewType))
}

// CommandsClient calls MainThreadCommands.
type CommandsClient struct {
	remote *rpc.RemoteProxy
}

// Register announces a command the extension implements.
func (c *CommandsClient) Register(id string) *promise.Future[struct{}] {
	return rpc.Discard(c.remote.Call(protocol.MethodRegisterCommand, id))
}

// Unregister withdraws a command.
func (c *CommandsClient) Unregister(id string) *promise.Future[struct{}] {
	return rpc.Discard(c.remote.Call(protocol.MethodUnregisterCommand, id))
}

// Execute runs any command known to the host.
func (c *CommandsClient) Execute(id string, args ...any) *promise.Future[rpc.Value] {
	return c.remote.Call(protocol.MethodExecuteCommand, append([]any{id}, args...)...)
}

// List returns every command id known to the host.
func (c *CommandsClient) List() *promise.Future[[]string] {
	return rpc.Decoded[[]string](c.remote.Call(protocol.MethodGetCommands))
}
