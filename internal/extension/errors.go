package extension

import "errors"

// Errors returned by the runtime.
var (
	// ErrAlreadyInitialized indicates $initialize arrived twice.
	ErrAlreadyInitialized = errors.New("extension already initialized")

	// ErrIncompatibleHost indicates the host speaks an unsupported protocol
	// version.
	ErrIncompatibleHost = errors.New("incompatible host protocol")

	// ErrUnknownCommand indicates no contributed command has the id.
	ErrUnknownCommand = errors.New("command not contributed")

	// ErrDuplicateCommand indicates the id was contributed twice.
	ErrDuplicateCommand = errors.New("command already contributed")

	// ErrNoSerializer indicates no serializer restores the view type.
	ErrNoSerializer = errors.New("no serializer for view type")

	// ErrUnknownDocument indicates the custom document is not open.
	ErrUnknownDocument = errors.New("custom document not open")
)
