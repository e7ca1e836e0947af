package rpc

import (
	"github.com/go-json-experiment/json/jsontext"
)

// Capability names a remotely callable interface, such as
// "MainThreadWebviewPanels" or "ExtHostCommands".
type Capability string

// Kind identifies the role of a message on the wire.
type Kind string

// Message kinds.
const (
	KindRequest Kind = "request"
	KindNotify  Kind = "notify"
	KindReply   Kind = "reply"
	KindError   Kind = "error"
	KindCancel  Kind = "cancel"
)

// Message is one record exchanged between peers.
//
// Requests and notifications carry Capability, Method and the argument array
// in Payload. Replies carry the result in Payload and errors carry Error.
// Cancels carry only the ID of the request being abandoned. Buffers hold the
// out-of-band binary data referenced by placeholders in Payload.
type Message struct {
	Kind       Kind           `json:"kind"`
	ID         int64          `json:"id,omitzero"`
	Capability Capability     `json:"cap,omitempty"`
	Method     string         `json:"method,omitempty"`
	Payload    jsontext.Value `json:"payload,omitzero"`
	Error      *RemoteError   `json:"error,omitzero"`
	Buffers    [][]byte       `json:"-"`
}

// envelope returns the payload and buffers as an Envelope.
func (m *Message) envelope() *Envelope {
	return &Envelope{Data: m.Payload, Buffers: m.Buffers}
}

// valid reports whether the record has the fields its kind requires.
func (m *Message) valid() bool {
	switch m.Kind {
	case KindRequest:
		return m.ID != 0 && m.Capability != "" && m.Method != ""
	case KindNotify:
		return m.Capability != "" && m.Method != ""
	case KindReply, KindCancel:
		return m.ID != 0
	case KindError:
		return m.ID != 0 && m.Error != nil
	}
	return false
}

// Conn is an ordered, reliable, bidirectional message transport.
//
// ReadMessage blocks until a message arrives. It returns a
// *CorruptMessageError for a record that could be skipped and any other
// error when the connection can no longer be read. WriteMessage must be safe
// to call concurrently with ReadMessage. Close unblocks a pending read.
type Conn interface {
	ReadMessage() (*Message, error)
	WriteMessage(m *Message) error
	Close() error
}
