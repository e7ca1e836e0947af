package mainthread

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/dshills/extbridge/internal/event"
	"github.com/dshills/extbridge/internal/protocol"
)

const imageURI protocol.URI = "file:///img.png"

func openImage(t *testing.T, m *managers) protocol.WebviewHandle {
	t.Helper()
	h, err := m.editors.Open(context.Background(), imageURI, "image.preview", "img.png", protocol.ViewColumnOne)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return h
}

func TestCustomEditors_Providers(t *testing.T) {
	m := newManagers()

	var changes []event.EditorProviderChanged
	m.bus.EditorProviderChanged.Subscribe(func(e event.EditorProviderChanged) { changes = append(changes, e) })

	if err := m.editors.RegisterCustomEditorProvider(chatExt, "image.preview", protocol.WebviewPanelOptions{}, false, false); err != nil {
		t.Fatal(err)
	}
	if err := m.editors.RegisterTextEditorProvider(chatExt, "markdown.preview", protocol.WebviewPanelOptions{}, protocol.CustomTextEditorCapabilities{SupportsMove: true}, false); err != nil {
		t.Fatal(err)
	}
	if err := m.editors.RegisterTextEditorProvider(chatExt, "image.preview", protocol.WebviewPanelOptions{}, protocol.CustomTextEditorCapabilities{}, false); !errors.Is(err, ErrDuplicateProvider) {
		t.Errorf("duplicate register error = %v", err)
	}

	ps := m.editors.Providers()
	if len(ps) != 2 || ps[0].ViewType != "image.preview" || ps[1].Kind != event.ProviderText {
		t.Errorf("Providers() = %+v", ps)
	}

	if err := m.editors.UnregisterEditorProvider("markdown.preview"); err != nil {
		t.Fatal(err)
	}
	if err := m.editors.UnregisterEditorProvider("markdown.preview"); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("second unregister error = %v", err)
	}
	if len(changes) != 3 || changes[2].Registered {
		t.Errorf("events = %+v", changes)
	}
}

func TestCustomEditors_OpenSharesDocument(t *testing.T) {
	m := newManagers()
	m.peer.editable = true
	_ = m.editors.RegisterCustomEditorProvider(chatExt, "image.preview", protocol.WebviewPanelOptions{}, false, false)

	h1 := openImage(t, m)
	h2 := openImage(t, m)
	if h1 != h2 {
		t.Errorf("second Open() = %s, want existing editor %s", h2, h1)
	}
	doc, ok := m.editors.Document(imageURI, "image.preview")
	if !ok || !doc.Editable || len(doc.Editors) != 1 {
		t.Errorf("Document() = %+v, %v", doc, ok)
	}
	if _, ok := m.webviews.Get(h1); !ok {
		t.Error("editor webview not registered")
	}

	want := "createDocument file:///img.png,resolveEditor file:///img.png"
	if got := strings.Join(m.peer.Calls(), ","); got != want {
		t.Errorf("peer calls = %s, want %s", got, want)
	}
}

func TestCustomEditors_MultipleEditors(t *testing.T) {
	m := newManagers()
	_ = m.editors.RegisterCustomEditorProvider(chatExt, "image.preview", protocol.WebviewPanelOptions{}, true, false)

	h1 := openImage(t, m)
	h2 := openImage(t, m)
	if h1 == h2 {
		t.Fatal("multi-editor provider reused the editor")
	}

	if err := m.editors.CloseEditor(h1); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.editors.Document(imageURI, "image.preview"); !ok {
		t.Fatal("document disposed while an editor is open")
	}
	if err := m.editors.CloseEditor(h2); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.editors.Document(imageURI, "image.preview"); ok {
		t.Error("document still open after its last editor closed")
	}
	calls := m.peer.Calls()
	if calls[len(calls)-1] != "disposeDocument file:///img.png" {
		t.Errorf("last peer call = %s", calls[len(calls)-1])
	}
	if m.webviews.Count() != 0 {
		t.Errorf("webview Count() = %d", m.webviews.Count())
	}
}

func TestCustomEditors_OpenFailsToResolve(t *testing.T) {
	m := newManagers()
	m.peer.resolveErr = errors.New("provider crashed")
	_ = m.editors.RegisterCustomEditorProvider(chatExt, "image.preview", protocol.WebviewPanelOptions{}, false, false)

	if _, err := m.editors.Open(context.Background(), imageURI, "image.preview", "img", protocol.ViewColumnOne); err == nil {
		t.Fatal("Open() succeeded")
	}
	if _, ok := m.editors.Document(imageURI, "image.preview"); ok {
		t.Error("document left open after failed resolve")
	}
	if m.webviews.Count() != 0 {
		t.Errorf("webview Count() = %d", m.webviews.Count())
	}
}

func TestCustomEditors_OpenLocksPerDocument(t *testing.T) {
	m := newManagers()
	_ = m.editors.RegisterCustomEditorProvider(chatExt, "image.preview", protocol.WebviewPanelOptions{}, false, false)
	gate := make(chan struct{})
	m.peer.resolveGates = map[protocol.URI]chan struct{}{imageURI: gate}

	slow := make(chan error, 1)
	go func() {
		_, err := m.editors.Open(context.Background(), imageURI, "image.preview", "img", protocol.ViewColumnOne)
		slow <- err
	}()
	waitFor(t, func() bool {
		return strings.Contains(strings.Join(m.peer.Calls(), ","), "resolveEditor "+string(imageURI))
	})

	other := make(chan error, 1)
	go func() {
		_, err := m.editors.Open(context.Background(), "file:///other.png", "image.preview", "other", protocol.ViewColumnOne)
		other <- err
	}()
	select {
	case err := <-other:
		if err != nil {
			t.Fatalf("Open(other) error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Open of another resource waited for a pending resolve")
	}

	close(gate)
	if err := <-slow; err != nil {
		t.Fatalf("Open(image) error = %v", err)
	}
	m.editors.mu.RLock()
	left := len(m.editors.opening)
	m.editors.mu.RUnlock()
	if left != 0 {
		t.Errorf("open locks left = %d, want 0", left)
	}
}

func TestCustomEditors_OpenLogsFailedCleanup(t *testing.T) {
	var logs bytes.Buffer
	m := newManagers()
	m.editors = NewCustomEditors(m.peer, m.webviews, m.bus, hclog.New(&hclog.LoggerOptions{Output: &logs, Level: hclog.Warn}))
	_ = m.editors.RegisterCustomEditorProvider(chatExt, "image.preview", protocol.WebviewPanelOptions{}, false, false)
	gate := make(chan struct{})
	m.peer.resolveGates = map[protocol.URI]chan struct{}{imageURI: gate}
	m.peer.resolveErr = errors.New("provider crashed")

	done := make(chan error, 1)
	go func() {
		_, err := m.editors.Open(context.Background(), imageURI, "image.preview", "img", protocol.ViewColumnOne)
		done <- err
	}()
	waitFor(t, func() bool {
		doc, ok := m.editors.Document(imageURI, "image.preview")
		return ok && len(doc.Editors) == 1
	})

	// The user closes the editor while the extension is still resolving it.
	doc, _ := m.editors.Document(imageURI, "image.preview")
	if err := m.editors.CloseEditor(doc.Editors[0]); err != nil {
		t.Fatal(err)
	}
	close(gate)

	if err := <-done; err == nil {
		t.Fatal("Open() succeeded")
	}
	if !strings.Contains(logs.String(), "closing unresolved editor failed") {
		t.Errorf("log output = %q, want the failed cleanup logged", logs.String())
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before timeout")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestCustomEditors_EditStack(t *testing.T) {
	m := newManagers()
	ctx := context.Background()
	_ = m.editors.RegisterCustomEditorProvider(chatExt, "image.preview", protocol.WebviewPanelOptions{}, false, false)
	openImage(t, m)

	if err := m.editors.Undo(ctx, imageURI, "image.preview"); !errors.Is(err, ErrNoEdit) {
		t.Fatalf("Undo() on empty stack error = %v", err)
	}

	for id := 1; id <= 2; id++ {
		if err := m.editors.OnDidEdit(imageURI, "image.preview", id, "crop"); err != nil {
			t.Fatal(err)
		}
	}
	doc, _ := m.editors.Document(imageURI, "image.preview")
	if !doc.Dirty || !doc.CanUndo || doc.CanRedo {
		t.Fatalf("after edits: %+v", doc)
	}

	if err := m.editors.Save(ctx, imageURI, "image.preview"); err != nil {
		t.Fatal(err)
	}
	doc, _ = m.editors.Document(imageURI, "image.preview")
	if doc.Dirty {
		t.Fatal("dirty after save")
	}

	if err := m.editors.Undo(ctx, imageURI, "image.preview"); err != nil {
		t.Fatal(err)
	}
	doc, _ = m.editors.Document(imageURI, "image.preview")
	if !doc.Dirty || !doc.CanRedo {
		t.Errorf("after undo: %+v", doc)
	}

	if err := m.editors.Redo(ctx, imageURI, "image.preview"); err != nil {
		t.Fatal(err)
	}
	doc, _ = m.editors.Document(imageURI, "image.preview")
	if doc.Dirty || doc.CanRedo {
		t.Errorf("after redo back to the saved edit: %+v", doc)
	}

	calls := m.peer.Calls()
	tail := strings.Join(calls[len(calls)-3:], ",")
	if tail != "save file:///img.png,undo 2 dirty=true,redo 2 dirty=false" {
		t.Errorf("peer calls = %s", tail)
	}

	// A new edit after undo drops the redo stack.
	_ = m.editors.Undo(ctx, imageURI, "image.preview")
	_ = m.editors.OnDidEdit(imageURI, "image.preview", 3, "")
	doc, _ = m.editors.Document(imageURI, "image.preview")
	if doc.CanRedo {
		t.Error("redo stack kept after a new edit")
	}
}

func TestCustomEditors_ContentChange(t *testing.T) {
	m := newManagers()
	_ = m.editors.RegisterCustomEditorProvider(chatExt, "image.preview", protocol.WebviewPanelOptions{}, false, false)

	if err := m.editors.OnContentChange(imageURI, "image.preview"); !errors.Is(err, ErrUnknownHandle) {
		t.Fatalf("OnContentChange() before open error = %v", err)
	}
	openImage(t, m)
	if err := m.editors.OnContentChange(imageURI, "image.preview"); err != nil {
		t.Fatal(err)
	}
	doc, _ := m.editors.Document(imageURI, "image.preview")
	if !doc.Dirty || doc.CanUndo {
		t.Errorf("Document() = %+v", doc)
	}
}

func TestCustomEditors_TextProviderHasNoModel(t *testing.T) {
	m := newManagers()
	_ = m.editors.RegisterTextEditorProvider(chatExt, "markdown.preview", protocol.WebviewPanelOptions{}, protocol.CustomTextEditorCapabilities{}, false)

	h, err := m.editors.Open(context.Background(), "file:///a.md", "markdown.preview", "a.md", protocol.ViewColumnOne)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.editors.CloseEditor(h); err != nil {
		t.Fatal(err)
	}
	for _, c := range m.peer.Calls() {
		if strings.HasPrefix(c, "createDocument") || strings.HasPrefix(c, "disposeDocument") {
			t.Errorf("text provider triggered %s", c)
		}
	}
}
