package rpc

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"
)

func TestEncodeDecodeFrame(t *testing.T) {
	env, err := Wrap([]any{"w1", Buffer("hello"), Buffer("")})
	if err != nil {
		t.Fatalf("Wrap() error = %v", err)
	}
	in := &Message{
		Kind:       KindRequest,
		ID:         7,
		Capability: "ExtHostWebviews",
		Method:     "$onMessage",
		Payload:    env.Data,
		Buffers:    env.Buffers,
	}

	frame, err := EncodeFrame(in)
	if err != nil {
		t.Fatalf("EncodeFrame() error = %v", err)
	}
	if !bytes.HasPrefix(frame, []byte("Content-Length: ")) {
		t.Errorf("frame does not start with Content-Length: %q", frame[:20])
	}
	if !bytes.Contains(frame, []byte("Buffer-Lengths: 5,0\r\n")) {
		t.Errorf("frame is missing Buffer-Lengths header: %q", frame)
	}

	out, err := DecodeFrame(frame)
	if err != nil {
		t.Fatalf("DecodeFrame() error = %v", err)
	}
	if out.Kind != in.Kind || out.ID != in.ID || out.Capability != in.Capability || out.Method != in.Method {
		t.Errorf("header mismatch: got %+v", out)
	}
	if len(out.Buffers) != 2 || string(out.Buffers[0]) != "hello" || len(out.Buffers[1]) != 0 {
		t.Errorf("Buffers = %q", out.Buffers)
	}

	args, err := NewArgs(out.envelope())
	if err != nil {
		t.Fatalf("NewArgs() error = %v", err)
	}
	var b Buffer
	if err := args.Decode(1, &b); err != nil || string(b) != "hello" {
		t.Errorf("Decode(1) = %q, %v", b, err)
	}
}

func TestReadFrame_SkipsCorruptRecord(t *testing.T) {
	good, err := EncodeFrame(&Message{Kind: KindNotify, Capability: "ExtHostCommands", Method: "$ping"})
	if err != nil {
		t.Fatalf("EncodeFrame() error = %v", err)
	}
	bad := "Content-Length: 33\r\n\r\n" + `{"kind":"request","id":9,"cap":1}`

	r := bufio.NewReader(io.MultiReader(strings.NewReader(bad), bytes.NewReader(good)))

	_, err = ReadFrame(r, 0)
	var ce *CorruptMessageError
	if !errors.As(err, &ce) {
		t.Fatalf("ReadFrame() error = %v, want *CorruptMessageError", err)
	}
	if ce.ID != 9 || ce.Kind != KindRequest {
		t.Errorf("CorruptMessageError = %+v, want request 9", ce)
	}
	if !errors.Is(err, ErrCorruptMessage) {
		t.Error("errors.Is(err, ErrCorruptMessage) = false")
	}

	m, err := ReadFrame(r, 0)
	if err != nil {
		t.Fatalf("ReadFrame() after corrupt frame error = %v", err)
	}
	if m.Method != "$ping" {
		t.Errorf("Method = %q, want $ping", m.Method)
	}

	if _, err := ReadFrame(r, 0); !errors.Is(err, io.EOF) {
		t.Errorf("ReadFrame() at end error = %v, want io.EOF", err)
	}
}

func TestReadFrame_Limits(t *testing.T) {
	tests := []struct {
		name  string
		input string
		max   int
	}{
		{"missing length", "Content-Type: x\r\n\r\n", 0},
		{"oversized", "Content-Length: 10\r\n\r\n0123456789", 4},
		{"buffers exceed body", "Content-Length: 2\r\nBuffer-Lengths: 9\r\n\r\n{}", 0},
		{"incomplete record", "Content-Length: 17\r\n\r\n" + `{"kind":"cancel"}`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadFrame(bufio.NewReader(strings.NewReader(tt.input)), tt.max)
			if !errors.Is(err, ErrCorruptMessage) {
				t.Errorf("ReadFrame() error = %v, want ErrCorruptMessage", err)
			}
		})
	}
}

func TestStreamConn_OverNetPipe(t *testing.T) {
	a, b := net.Pipe()
	ca, cb := NewStreamConn(a), NewStreamConn(b)
	defer ca.Close()
	defer cb.Close()

	go func() {
		_ = ca.WriteMessage(&Message{Kind: KindReply, ID: 1, Payload: []byte(`"ok"`), Buffers: [][]byte{[]byte("x")}})
	}()

	done := make(chan *Message, 1)
	go func() {
		m, err := cb.ReadMessage()
		if err != nil {
			t.Errorf("ReadMessage() error = %v", err)
		}
		done <- m
	}()

	select {
	case m := <-done:
		if m == nil || m.ID != 1 || string(m.Payload) != `"ok"` || len(m.Buffers) != 1 {
			t.Errorf("ReadMessage() = %+v", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	if err := ca.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := ca.WriteMessage(&Message{Kind: KindCancel, ID: 1}); !errors.Is(err, ErrClosed) {
		t.Errorf("WriteMessage() after Close error = %v, want ErrClosed", err)
	}
}
