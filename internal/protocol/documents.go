package protocol

// URI identifies a document. It is opaque to the bridge.
type URI string

// EditorID identifies one editor instance. Two editors may show the same
// document.
type EditorID string

// ViewColumn is the editor column a resource is shown in.
type ViewColumn int

// Special view columns.
const (
	ViewColumnBeside ViewColumn = -2
	ViewColumnActive ViewColumn = -1
	ViewColumnNone   ViewColumn = 0
	ViewColumnOne    ViewColumn = 1
	ViewColumnTwo    ViewColumn = 2
	ViewColumnThree  ViewColumn = 3
)

// Position is a zero-based line and character offset.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is a span between two positions.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Selection is a range with a direction.
type Selection struct {
	Anchor Position `json:"anchor"`
	Active Position `json:"active"`
}

// EditorOptions are per-editor presentation options.
type EditorOptions struct {
	TabSize      int  `json:"tabSize"`
	InsertSpaces bool `json:"insertSpaces"`
	LineNumbers  int  `json:"lineNumbers"`
}

// DocumentData describes an open document.
type DocumentData struct {
	URI        URI      `json:"uri"`
	LanguageID string   `json:"languageId"`
	VersionID  int      `json:"versionId"`
	Lines      []string `json:"lines"`
	EOL        string   `json:"eol"`
	IsDirty    bool     `json:"isDirty"`
}

// DocumentChange carries the fields of a document that changed.
type DocumentChange struct {
	URI       URI      `json:"uri"`
	VersionID int      `json:"versionId"`
	IsDirty   bool     `json:"isDirty"`
	Lines     []string `json:"lines,omitzero"`
}

// EditorData describes an editor showing a document.
type EditorData struct {
	ID            EditorID      `json:"id"`
	DocumentURI   URI           `json:"documentUri"`
	Options       EditorOptions `json:"options"`
	Selections    []Selection   `json:"selections"`
	VisibleRanges []Range       `json:"visibleRanges"`
	ViewColumn    ViewColumn    `json:"viewColumn,omitzero"`
}

// EditorChange carries the properties of an editor that changed. Nil fields
// are unchanged.
type EditorChange struct {
	ID            EditorID       `json:"id"`
	Options       *EditorOptions `json:"options,omitzero"`
	Selections    []Selection    `json:"selections,omitzero"`
	VisibleRanges []Range        `json:"visibleRanges,omitzero"`
	ViewColumn    *ViewColumn    `json:"viewColumn,omitzero"`
}

// DocumentsAndEditorsDelta is the transition between two snapshots of open
// documents and editors. The receiver applies it as one atomic update in the
// order: removed editors, removed documents, added documents, changed
// documents, added editors, changed editors, active editor.
//
// A Reset delta replaces the receiver's state entirely and carries only
// additions.
type DocumentsAndEditorsDelta struct {
	Reset               bool             `json:"reset,omitzero"`
	RemovedDocuments    []URI            `json:"removedDocuments,omitzero"`
	AddedDocuments      []DocumentData   `json:"addedDocuments,omitzero"`
	ChangedDocuments    []DocumentChange `json:"changedDocuments,omitzero"`
	RemovedEditors      []EditorID       `json:"removedEditors,omitzero"`
	AddedEditors        []EditorData     `json:"addedEditors,omitzero"`
	ChangedEditors      []EditorChange   `json:"changedEditors,omitzero"`
	ActiveEditorChanged bool             `json:"activeEditorChanged,omitzero"`
	NewActiveEditor     EditorID         `json:"newActiveEditor,omitzero"`
}

// IsEmpty reports whether the delta carries no change.
func (d *DocumentsAndEditorsDelta) IsEmpty() bool {
	return !d.Reset &&
		len(d.RemovedDocuments) == 0 &&
		len(d.AddedDocuments) == 0 &&
		len(d.ChangedDocuments) == 0 &&
		len(d.RemovedEditors) == 0 &&
		len(d.AddedEditors) == 0 &&
		len(d.ChangedEditors) == 0 &&
		!d.ActiveEditorChanged
}
