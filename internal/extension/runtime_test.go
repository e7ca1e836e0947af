package extension

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dshills/extbridge/internal/exthost"
	"github.com/dshills/extbridge/internal/protocol"
	"github.com/dshills/extbridge/internal/rpc"
)

func TestCustomDocument_Step(t *testing.T) {
	d := &CustomDocument{Resource: "file:///a.bin", Applied: []int{1, 2}}
	if !d.Dirty() {
		t.Fatal("document with unsaved edits is clean")
	}

	if err := d.step(1, &d.Applied, &d.Undone); err == nil {
		t.Error("step() accepted an edit that is not on top")
	}
	if err := d.step(2, &d.Applied, &d.Undone); err != nil {
		t.Fatalf("undo step() error = %v", err)
	}
	if d.top() != 1 || len(d.Undone) != 1 {
		t.Errorf("after undo: applied %v, undone %v", d.Applied, d.Undone)
	}

	d.SavedAt = 1
	if d.Dirty() {
		t.Error("document dirty at its saved edit")
	}
	if err := d.step(2, &d.Undone, &d.Applied); err != nil {
		t.Fatalf("redo step() error = %v", err)
	}
	if !d.Dirty() {
		t.Error("document clean after redo past the saved edit")
	}
}

// connect serves a runtime on one end of a pipe and returns a host client
// for the other.
func connect(t *testing.T, activate ActivateFunc) (*Runtime, *exthost.Client) {
	t.Helper()
	a, b := rpc.Pipe()
	hostProto := rpc.New(a)
	extProto := rpc.New(b)

	rt := New(extProto, protocol.WebviewExtension{ID: "test.ext"}, nil)
	rt.OnActivate(activate)
	if err := rt.Register(); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	hostProto.Start(ctx)
	extProto.Start(ctx)
	t.Cleanup(func() {
		cancel()
		hostProto.Close()
		extProto.Close()
	})
	return rt, exthost.NewClient(hostProto)
}

func TestRuntime_Initialize(t *testing.T) {
	activated := 0
	rt, client := connect(t, func(context.Context, *Runtime) error {
		activated++
		return nil
	})

	data := protocol.InitData{ProtocolVersion: protocol.ProtocolVersion, Extension: protocol.ExtensionDescription{ID: "test.ext"}}
	res, err := client.Extension.Initialize(data).AwaitTimeout(time.Second)
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if !res.Activated || len(res.Commands) != 0 {
		t.Errorf("InitResult = %+v", res)
	}
	if got, ok := rt.InitData(); !ok || got.Extension.ID != "test.ext" {
		t.Errorf("InitData() = %+v, %v", got, ok)
	}

	if _, err := client.Extension.Initialize(data).AwaitTimeout(time.Second); err == nil || !strings.Contains(err.Error(), ErrAlreadyInitialized.Error()) {
		t.Errorf("second Initialize() error = %v, want %v", err, ErrAlreadyInitialized)
	}
	if activated != 1 {
		t.Errorf("activated %d times, want 1", activated)
	}
}

func TestRuntime_InitializeRejectsIncompatibleHost(t *testing.T) {
	rt, client := connect(t, nil)

	_, err := client.Extension.Initialize(protocol.InitData{ProtocolVersion: "2.0.0"}).AwaitTimeout(time.Second)
	if err == nil || !strings.Contains(err.Error(), ErrIncompatibleHost.Error()) {
		t.Fatalf("Initialize() error = %v, want %v", err, ErrIncompatibleHost)
	}
	if _, ok := rt.InitData(); ok {
		t.Error("runtime recorded init data from an incompatible host")
	}
}

func TestRuntime_MissingCspAndMessages(t *testing.T) {
	rt, client := connect(t, nil)

	got := make(chan string, 1)
	rt.OnWebviewMessage(func(_ protocol.WebviewHandle, message string, _ []rpc.Buffer) {
		got <- message
	})

	if err := client.Webviews.OnMissingCsp("w1", "test.ext"); err != nil {
		t.Fatalf("OnMissingCsp() error = %v", err)
	}
	if err := client.Webviews.OnMessage("w1", `{"type":"ready"}`, nil); err != nil {
		t.Fatalf("OnMessage() error = %v", err)
	}

	select {
	case m := <-got:
		if m != `{"type":"ready"}` {
			t.Errorf("message = %q", m)
		}
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}

	deadline := time.Now().Add(time.Second)
	for len(rt.MissingCsp()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if csp := rt.MissingCsp(); len(csp) != 1 || csp[0] != "w1" {
		t.Errorf("MissingCsp() = %v", csp)
	}
}
