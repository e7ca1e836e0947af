package extension

import (
	"context"

	"github.com/dshills/extbridge/internal/protocol"
	"github.com/dshills/extbridge/internal/rpc"
)

func (r *Runtime) extensionMethods() rpc.MethodTable {
	return rpc.MethodTable{
		protocol.MethodInitialize: rpc.Method1(func(ctx context.Context, data protocol.InitData) (any, error) {
			return r.initialize(ctx, data)
		}),
	}
}

func (r *Runtime) commandMethods() rpc.MethodTable {
	return rpc.MethodTable{
		protocol.MethodExecuteContributedCommand: r.runCommand,
		protocol.MethodGetContributedCommandMetadata: rpc.Method0(func(context.Context) (any, error) {
			return r.commandMetadata(), nil
		}),
	}
}

func (r *Runtime) webviewMethods() rpc.MethodTable {
	return rpc.MethodTable{
		protocol.MethodOnMessage: rpc.Method3(func(_ context.Context, handle protocol.WebviewHandle, message string, buffers []rpc.Buffer) (any, error) {
			r.receiveMessage(handle, message, buffers)
			return nil, nil
		}),
		protocol.MethodOnMissingCsp: rpc.Method2(func(_ context.Context, handle protocol.WebviewHandle, extensionID string) (any, error) {
			r.log.Warn("webview has no content security policy", "handle", handle, "extension", extensionID)
			r.mu.Lock()
			r.missingCsp = append(r.missingCsp, handle)
			r.mu.Unlock()
			return nil, nil
		}),
	}
}

func (r *Runtime) panelMethods() rpc.MethodTable {
	return rpc.MethodTable{
		protocol.MethodOnDidChangeWebviewPanelViewStates: rpc.Method1(func(_ context.Context, states map[protocol.WebviewHandle]protocol.WebviewViewState) (any, error) {
			r.applyViewStates(states)
			return nil, nil
		}),
		protocol.MethodOnDidDisposeWebviewPanel: rpc.Method1(func(_ context.Context, handle protocol.WebviewHandle) (any, error) {
			r.forgetPanel(handle)
			return nil, nil
		}),
		protocol.MethodDeserializeWebviewPanel: rpc.Method4(func(ctx context.Context, handle protocol.WebviewHandle, viewType string, init protocol.DeserializeInitData, column protocol.ViewColumn) (any, error) {
			return nil, r.deserialize(ctx, handle, viewType, init, column)
		}),
	}
}

func (r *Runtime) customEditorMethods() rpc.MethodTable {
	return rpc.MethodTable{
		protocol.MethodCreateCustomDocument: rpc.Method2(func(_ context.Context, resource protocol.URI, viewType string) (any, error) {
			return r.createDocument(resource, viewType), nil
		}),
		protocol.MethodResolveCustomEditor: rpc.Method5(func(_ context.Context, resource protocol.URI, handle protocol.WebviewHandle, viewType string, init protocol.CustomEditorInitData, column protocol.ViewColumn) (any, error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.panels[handle] = &Panel{
				Handle:    handle,
				ViewType:  viewType,
				Title:     init.Title,
				ViewState: protocol.WebviewViewState{Active: init.Active, Visible: true, Position: column},
			}
			if d, ok := r.customDocs[docKey{resource, viewType}]; ok {
				d.Editors = append(d.Editors, handle)
			}
			return nil, nil
		}),
		protocol.MethodDisposeCustomDocument: rpc.Method2(func(_ context.Context, resource protocol.URI, viewType string) (any, error) {
			r.disposeDocument(resource, viewType)
			return nil, nil
		}),
		protocol.MethodUndo: rpc.Method4(func(_ context.Context, resource protocol.URI, viewType string, editID int, _ bool) (any, error) {
			return nil, r.withDocument(resource, viewType, func(d *CustomDocument) error {
				return d.step(editID, &d.Applied, &d.Undone)
			})
		}),
		protocol.MethodRedo: rpc.Method4(func(_ context.Context, resource protocol.URI, viewType string, editID int, _ bool) (any, error) {
			return nil, r.withDocument(resource, viewType, func(d *CustomDocument) error {
				return d.step(editID, &d.Undone, &d.Applied)
			})
		}),
		protocol.MethodOnSave: rpc.Method2(func(_ context.Context, resource protocol.URI, viewType string) (any, error) {
			return nil, r.withDocument(resource, viewType, func(d *CustomDocument) error {
				d.SavedAt = d.top()
				return nil
			})
		}),
	}
}
