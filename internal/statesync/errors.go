package statesync

import "errors"

// Errors returned by the synchronizers and mirrors.
var (
	// ErrUnknownDocument indicates a document that is not open.
	ErrUnknownDocument = errors.New("document not open")

	// ErrDocumentOpen indicates a document that is already open.
	ErrDocumentOpen = errors.New("document already open")

	// ErrUnknownEditor indicates an editor that does not exist.
	ErrUnknownEditor = errors.New("unknown editor")

	// ErrDuplicateEditor indicates an editor id already in use.
	ErrDuplicateEditor = errors.New("editor already exists")

	// ErrDocumentInUse indicates a document closed while an editor shows it.
	ErrDocumentInUse = errors.New("document still shown by an editor")

	// ErrInvalidTabModel indicates a tab model with duplicate ids.
	ErrInvalidTabModel = errors.New("invalid tab model")

	// ErrTabMismatch indicates a tab operation that does not match the model.
	ErrTabMismatch = errors.New("tab operation does not match model")
)
