package mainthread

import (
	"context"

	"github.com/dshills/extbridge/internal/protocol"
	"github.com/dshills/extbridge/internal/rpc"
)

// Methods exposes the panel manager as MainThreadWebviewPanels.
func (w *WebviewPanels) Methods() rpc.MethodTable {
	return rpc.MethodTable{
		protocol.MethodCreateWebviewPanel: rpc.Method5(func(_ context.Context, ext protocol.WebviewExtension, handle protocol.WebviewHandle, viewType string, init protocol.WebviewInitData, show protocol.ShowOptions) (any, error) {
			return nil, w.Create(ext, handle, viewType, init, show)
		}),
		protocol.MethodDisposeWebview: rpc.Method1(func(_ context.Context, handle protocol.WebviewHandle) (any, error) {
			w.Dispose(handle)
			return nil, nil
		}),
		protocol.MethodReveal: rpc.Method2(func(_ context.Context, handle protocol.WebviewHandle, show protocol.ShowOptions) (any, error) {
			return nil, w.Reveal(handle, show)
		}),
		protocol.MethodSetTitle: rpc.Method2(func(_ context.Context, handle protocol.WebviewHandle, title string) (any, error) {
			return nil, w.SetTitle(handle, title)
		}),
		protocol.MethodSetIconPath: rpc.Method2(func(_ context.Context, handle protocol.WebviewHandle, icon *protocol.IconPath) (any, error) {
			return nil, w.SetIconPath(handle, icon)
		}),
		protocol.MethodRegisterSerializer: rpc.Method2(func(_ context.Context, viewType string, opts protocol.SerializerOptions) (any, error) {
			return nil, w.RegisterSerializer(viewType, opts)
		}),
		protocol.MethodUnregisterSerializer: rpc.Method1(func(_ context.Context, viewType string) (any, error) {
			w.UnregisterSerializer(viewType)
			return nil, nil
		}),
	}
}

// Methods exposes webview content as MainThreadWebviews.
func (w *Webviews) Methods() rpc.MethodTable {
	return rpc.MethodTable{
		protocol.MethodSetHTML: rpc.Method2(func(_ context.Context, handle protocol.WebviewHandle, html string) (any, error) {
			return nil, w.SetHTML(handle, html)
		}),
		protocol.MethodSetOptions: rpc.Method2(func(_ context.Context, handle protocol.WebviewHandle, opts protocol.WebviewContentOptions) (any, error) {
			return nil, w.SetOptions(handle, opts)
		}),
		protocol.MethodPostMessage: rpc.Method3(func(_ context.Context, handle protocol.WebviewHandle, message string, buffers []rpc.Buffer) (any, error) {
			return w.PostMessage(handle, message, buffers)
		}),
	}
}

// Methods exposes the custom editor manager as MainThreadCustomEditors.
func (c *CustomEditors) Methods() rpc.MethodTable {
	return rpc.MethodTable{
		protocol.MethodRegisterTextEditorProvider: rpc.Method5(func(_ context.Context, ext protocol.WebviewExtension, viewType string, opts protocol.WebviewPanelOptions, caps protocol.CustomTextEditorCapabilities, serializeBuffers bool) (any, error) {
			return nil, c.RegisterTextEditorProvider(ext, viewType, opts, caps, serializeBuffers)
		}),
		protocol.MethodRegisterCustomEditorProvider: rpc.Method5(func(_ context.Context, ext protocol.WebviewExtension, viewType string, opts protocol.WebviewPanelOptions, multiple, serializeBuffers bool) (any, error) {
			return nil, c.RegisterCustomEditorProvider(ext, viewType, opts, multiple, serializeBuffers)
		}),
		protocol.MethodUnregisterEditorProvider: rpc.Method1(func(_ context.Context, viewType string) (any, error) {
			return nil, c.UnregisterEditorProvider(viewType)
		}),
		protocol.MethodOnDidEdit: rpc.Method4(func(_ context.Context, resource protocol.URI, viewType string, editID int, label string) (any, error) {
			return nil, c.OnDidEdit(resource, viewType, editID, label)
		}),
		protocol.MethodOnContentChange: rpc.Method2(func(_ context.Context, resource protocol.URI, viewType string) (any, error) {
			return nil, c.OnContentChange(resource, viewType)
		}),
	}
}

// Methods exposes the command registry as MainThreadCommands.
func (c *Commands) Methods() rpc.MethodTable {
	return rpc.MethodTable{
		protocol.MethodRegisterCommand: rpc.Method1(func(_ context.Context, id string) (any, error) {
			return nil, c.RegisterContributed(id)
		}),
		protocol.MethodUnregisterCommand: rpc.Method1(func(_ context.Context, id string) (any, error) {
			c.UnregisterContributed(id)
			return nil, nil
		}),
		protocol.MethodExecuteCommand: c.executeForExtension,
		protocol.MethodGetCommands: rpc.Method0(func(context.Context) (any, error) {
			return c.List(), nil
		}),
	}
}

// Register serves every manager on p under its capability name. The
// webview capabilities run on the UI lane.
func Register(p *rpc.Protocol, panels *WebviewPanels, webviews *Webviews, editors *CustomEditors, commands *Commands) error {
	handlers := []struct {
		name rpc.Capability
		h    rpc.Handler
	}{
		{protocol.MainThreadWebviewPanels, panels.Methods()},
		{protocol.MainThreadWebviews, webviews.Methods()},
		{protocol.MainThreadCustomEditors, editors.Methods()},
		{protocol.MainThreadCommands, commands.Methods()},
	}
	for _, h := range handlers {
		var opts []rpc.RegisterOption
		if protocol.UIAffine(h.name) {
			opts = append(opts, rpc.WithUIAffinity())
		}
		if err := p.Register(h.name, h.h, opts...); err != nil {
			return err
		}
	}
	return nil
}
