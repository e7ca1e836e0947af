package event

import (
	"github.com/dshills/extbridge/internal/protocol"
)

// PanelCreated is published when the extension creates a webview panel.
type PanelCreated struct {
	Handle    protocol.WebviewHandle
	ViewType  string
	Title     string
	Extension string
	Restored  bool
}

// PanelUpdated is published when a panel's title, icon or view state changes.
type PanelUpdated struct {
	Handle     protocol.WebviewHandle
	Title      string
	IconPath   *protocol.IconPath
	Visible    bool
	Active     bool
	ViewColumn protocol.ViewColumn
}

// PanelDisposed is published when a panel is removed, by either side.
type PanelDisposed struct {
	Handle   protocol.WebviewHandle
	ViewType string
	ByHost   bool
}

// SerializerChanged is published when a panel serializer is registered or
// unregistered.
type SerializerChanged struct {
	ViewType   string
	Registered bool
}

// WebviewMessage is a message posted by the extension to a webview.
type WebviewMessage struct {
	Handle  protocol.WebviewHandle
	Message string
	Buffers [][]byte
}

// WebviewContentChanged is published when a webview's HTML or options change.
type WebviewContentChanged struct {
	Handle  protocol.WebviewHandle
	HTML    string
	Options protocol.WebviewContentOptions
}

// EditorProviderKind distinguishes text and custom editor providers.
type EditorProviderKind int

// Editor provider kinds.
const (
	ProviderText EditorProviderKind = iota
	ProviderCustom
)

// EditorProviderChanged is published when an editor provider is registered
// or unregistered.
type EditorProviderChanged struct {
	ViewType   string
	Kind       EditorProviderKind
	Registered bool
}

// CustomDocumentEdited is published when a custom document's edit stack or
// content changes.
type CustomDocumentEdited struct {
	Resource protocol.URI
	ViewType string
	EditID   int
	Label    string
	Dirty    bool
}

// CommandsChanged is published when a command is registered or removed.
type CommandsChanged struct {
	ID          string
	Registered  bool
	Contributed bool
}

// DocumentsSynced is published after a documents delta was sent.
type DocumentsSynced struct {
	Delta protocol.DocumentsAndEditorsDelta
}

// TabsSynced is published after tab model changes were sent. Reset marks the
// initial full model.
type TabsSynced struct {
	Reset      bool
	Groups     int
	Operations []protocol.TabOperation
}

// ConnectionChanged is published when the extension connection opens or
// closes.
type ConnectionChanged struct {
	Connected bool
	Err       error
}
