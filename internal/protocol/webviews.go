package protocol

// WebviewHandle identifies a webview or webview panel. The side that creates
// the webview allocates it.
type WebviewHandle string

// WebviewExtension identifies the extension that owns a webview.
type WebviewExtension struct {
	ID       string `json:"id"`
	Location URI    `json:"location,omitzero"`
}

// WebviewContentOptions control what a webview's content may do.
type WebviewContentOptions struct {
	EnableScripts      bool  `json:"enableScripts"`
	EnableForms        bool  `json:"enableForms"`
	EnableCommandURIs  bool  `json:"enableCommandUris"`
	LocalResourceRoots []URI `json:"localResourceRoots,omitzero"`
}

// WebviewPanelOptions control the panel hosting a webview.
type WebviewPanelOptions struct {
	EnableFindWidget        bool `json:"enableFindWidget"`
	RetainContextWhenHidden bool `json:"retainContextWhenHidden"`
}

// WebviewInitData is sent with $createWebviewPanel.
type WebviewInitData struct {
	Title                          string                `json:"title"`
	WebviewOptions                 WebviewContentOptions `json:"webviewOptions"`
	PanelOptions                   WebviewPanelOptions   `json:"panelOptions"`
	SerializeBuffersForPostMessage bool                  `json:"serializeBuffersForPostMessage"`
}

// ShowOptions control where and how a panel is revealed.
type ShowOptions struct {
	ViewColumn    ViewColumn `json:"viewColumn,omitzero"`
	PreserveFocus bool       `json:"preserveFocus,omitzero"`
}

// IconPath holds theme-specific icons. Nil clears the icon.
type IconPath struct {
	Light URI `json:"light"`
	Dark  URI `json:"dark"`
}

// WebviewViewState is the visibility state of a panel.
type WebviewViewState struct {
	Active   bool       `json:"active"`
	Visible  bool       `json:"visible"`
	Position ViewColumn `json:"position"`
}

// SerializerOptions are passed with $registerSerializer.
type SerializerOptions struct {
	SerializeBuffersForPostMessage bool `json:"serializeBuffersForPostMessage"`
}

// DeserializeInitData is sent with $deserializeWebviewPanel.
type DeserializeInitData struct {
	Title          string                `json:"title"`
	State          string                `json:"state"`
	WebviewOptions WebviewContentOptions `json:"webviewOptions"`
	PanelOptions   WebviewPanelOptions   `json:"panelOptions"`
}

// CustomTextEditorCapabilities are declared by a text editor provider.
type CustomTextEditorCapabilities struct {
	SupportsMove bool `json:"supportsMove"`
}

// CustomDocumentResult is returned by $createCustomDocument.
type CustomDocumentResult struct {
	Editable bool `json:"editable"`
}

// CustomEditorInitData is sent with $resolveCustomEditor.
type CustomEditorInitData struct {
	Title          string                `json:"title"`
	ContentOptions WebviewContentOptions `json:"contentOptions"`
	Options        WebviewPanelOptions   `json:"options"`
	Active         bool                  `json:"active"`
}
