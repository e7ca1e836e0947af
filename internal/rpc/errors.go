package rpc

import (
	"errors"
	"fmt"
)

// Standard errors returned by the protocol.
var (
	// ErrClosed indicates the protocol or connection has been closed.
	ErrClosed = errors.New("rpc connection closed")

	// ErrUnknownCapability indicates no handler is registered for a capability.
	ErrUnknownCapability = errors.New("unknown capability")

	// ErrDuplicateCapability indicates a capability was registered twice.
	ErrDuplicateCapability = errors.New("capability already registered")

	// ErrMethodNotFound indicates the capability has no such method.
	ErrMethodNotFound = errors.New("method not found")

	// ErrInvalidParams indicates the arguments did not match the method schema.
	ErrInvalidParams = errors.New("invalid params")

	// ErrBufferRef indicates a buffer placeholder points outside the buffer list.
	ErrBufferRef = errors.New("invalid buffer reference")

	// ErrCorruptMessage indicates a frame or record could not be decoded.
	ErrCorruptMessage = errors.New("corrupt message")

	// ErrDuplicateRequest indicates a request reused the id of one still in flight.
	ErrDuplicateRequest = errors.New("duplicate request id")

	// ErrTooManyCorruptMessages indicates the corruption threshold was exceeded.
	ErrTooManyCorruptMessages = errors.New("too many corrupt messages")

	// ErrRequestCancelled indicates the caller cancelled the request.
	ErrRequestCancelled = errors.New("request cancelled")
)

// Error codes carried by RemoteError. The negative JSON-RPC range is reused
// so that codes stay recognisable in logs.
const (
	CodeParseError        = -32700
	CodeInvalidRequest    = -32600
	CodeMethodNotFound    = -32601
	CodeInvalidParams     = -32602
	CodeInternalError     = -32603
	CodeUnknownCapability = -32000
	CodeResourceState     = -32001
	CodeRequestCancelled  = -32800
)

// RemoteError is the rejection delivered to a caller when the callee failed.
type RemoteError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("rpc error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Is maps well-known codes back onto the package sentinels.
func (e *RemoteError) Is(target error) bool {
	switch target {
	case ErrUnknownCapability:
		return e.Code == CodeUnknownCapability
	case ErrMethodNotFound:
		return e.Code == CodeMethodNotFound
	case ErrInvalidParams:
		return e.Code == CodeInvalidParams
	case ErrRequestCancelled:
		return e.Code == CodeRequestCancelled
	case ErrCorruptMessage:
		return e.Code == CodeParseError
	}
	return false
}

// RPCCode returns the error code.
func (e *RemoteError) RPCCode() int {
	return e.Code
}

// Coder is implemented by errors that choose their own RemoteError code.
type Coder interface {
	RPCCode() int
}

// BufferRefError reports a placeholder whose index is out of range.
type BufferRefError struct {
	Index int
	Count int
}

// Error implements the error interface.
func (e *BufferRefError) Error() string {
	return fmt.Sprintf("buffer reference %d out of range (have %d buffers)", e.Index, e.Count)
}

// Unwrap returns ErrBufferRef.
func (e *BufferRefError) Unwrap() error {
	return ErrBufferRef
}

// CorruptMessageError reports a record that could not be decoded. Kind and ID
// are filled in when the header could still be read.
type CorruptMessageError struct {
	Kind Kind
	ID   int64
	Err  error
}

// Error implements the error interface.
func (e *CorruptMessageError) Error() string {
	if e.ID != 0 {
		return fmt.Sprintf("corrupt %s message %d: %v", e.Kind, e.ID, e.Err)
	}
	return fmt.Sprintf("corrupt message: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *CorruptMessageError) Unwrap() error {
	return e.Err
}

// Is matches ErrCorruptMessage.
func (e *CorruptMessageError) Is(target error) bool {
	return target == ErrCorruptMessage
}

// toRemoteError converts a handler error into the wire form.
func toRemoteError(err error) *RemoteError {
	var re *RemoteError
	if errors.As(err, &re) {
		return re
	}

	code := CodeInternalError
	var coder Coder
	switch {
	case errors.As(err, &coder):
		code = coder.RPCCode()
	case errors.Is(err, ErrBufferRef), errors.Is(err, ErrCorruptMessage):
		code = CodeParseError
	case errors.Is(err, ErrInvalidParams):
		code = CodeInvalidParams
	case errors.Is(err, ErrMethodNotFound):
		code = CodeMethodNotFound
	case errors.Is(err, ErrUnknownCapability):
		code = CodeUnknownCapability
	case errors.Is(err, ErrRequestCancelled):
		code = CodeRequestCancelled
	}
	return &RemoteError{Code: code, Message: err.Error()}
}
