package mainthread

import (
	"github.com/dshills/extbridge/internal/promise"
	"github.com/dshills/extbridge/internal/protocol"
	"github.com/dshills/extbridge/internal/rpc"
)

// PanelPeer is the extension side of webview panels.
type PanelPeer interface {
	OnDidChangeWebviewPanelViewStates(states map[protocol.WebviewHandle]protocol.WebviewViewState) error
	OnDidDisposeWebviewPanel(handle protocol.WebviewHandle) *promise.Future[struct{}]
	DeserializeWebviewPanel(handle protocol.WebviewHandle, viewType string, init protocol.DeserializeInitData, column protocol.ViewColumn) *promise.Future[struct{}]
}

// WebviewPeer is the extension side of webview content.
type WebviewPeer interface {
	OnMessage(handle protocol.WebviewHandle, message string, buffers []rpc.Buffer) error
	OnMissingCsp(handle protocol.WebviewHandle, extensionID string) error
}

// CustomEditorPeer is the extension side of custom editors.
type CustomEditorPeer interface {
	CreateCustomDocument(resource protocol.URI, viewType string) *promise.Future[protocol.CustomDocumentResult]
	ResolveCustomEditor(resource protocol.URI, handle protocol.WebviewHandle, viewType string, init protocol.CustomEditorInitData, column protocol.ViewColumn) *promise.Future[struct{}]
	DisposeCustomDocument(resource protocol.URI, viewType string) *promise.Future[struct{}]
	Undo(resource protocol.URI, viewType string, editID int, isDirty bool) *promise.Future[struct{}]
	Redo(resource protocol.URI, viewType string, editID int, isDirty bool) *promise.Future[struct{}]
	OnSave(resource protocol.URI, viewType string) *promise.Future[struct{}]
}

// CommandPeer runs commands contributed by the extension.
type CommandPeer interface {
	ExecuteContributedCommand(id string, args ...any) *promise.Future[rpc.Value]
}
