package mainthread

import (
	"errors"
	"fmt"

	"github.com/dshills/extbridge/internal/rpc"
)

// Errors returned by the resource managers.
var (
	// ErrUnknownHandle indicates the handle was never created or is disposed.
	ErrUnknownHandle = errors.New("unknown or disposed handle")

	// ErrDuplicateHandle indicates a create reused a live handle.
	ErrDuplicateHandle = errors.New("handle already exists")

	// ErrNoSerializer indicates no serializer is registered for a view type.
	ErrNoSerializer = errors.New("no serializer registered for view type")

	// ErrDuplicateSerializer indicates a view type already has a serializer.
	ErrDuplicateSerializer = errors.New("serializer already registered for view type")

	// ErrUnknownProvider indicates no editor provider serves a view type.
	ErrUnknownProvider = errors.New("no editor provider for view type")

	// ErrDuplicateProvider indicates a view type already has a provider.
	ErrDuplicateProvider = errors.New("editor provider already registered")

	// ErrNoEdit indicates an undo or redo with an empty stack.
	ErrNoEdit = errors.New("nothing to undo or redo")

	// ErrUnknownCommand indicates the command id is not registered.
	ErrUnknownCommand = errors.New("command not found")

	// ErrDuplicateCommand indicates the command id is already registered.
	ErrDuplicateCommand = errors.New("command already registered")
)

// HandleError reports an operation on a resource that does not exist, or no
// longer exists, or already exists.
type HandleError struct {
	Op     string
	Kind   string
	Handle string
	Err    error
}

// Error implements the error interface.
func (e *HandleError) Error() string {
	return fmt.Sprintf("%s %s %q: %v", e.Op, e.Kind, e.Handle, e.Err)
}

// Unwrap returns the underlying error.
func (e *HandleError) Unwrap() error {
	return e.Err
}

// RPCCode maps resource-state errors to their wire code.
func (e *HandleError) RPCCode() int {
	return rpc.CodeResourceState
}

func handleErr(op, kind, handle string, err error) error {
	return &HandleError{Op: op, Kind: kind, Handle: handle, Err: err}
}
