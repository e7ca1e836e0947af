package statesync

import (
	"context"
	"testing"
	"time"

	"github.com/dshills/extbridge/internal/exthost"
	"github.com/dshills/extbridge/internal/protocol"
	"github.com/dshills/extbridge/internal/rpc"
)

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before timeout")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSync_OverProtocol(t *testing.T) {
	a, b := rpc.Pipe()
	host := rpc.New(a)
	ext := rpc.New(b)
	docsMirror := NewDocumentsMirror(nil)
	tabsMirror := NewTabsMirror(nil)
	if err := ext.Register(protocol.ExtHostDocumentsAndEditors, docsMirror.Methods()); err != nil {
		t.Fatal(err)
	}
	if err := ext.Register(protocol.ExtHostEditorTabs, tabsMirror.Methods()); err != nil {
		t.Fatal(err)
	}
	host.Start(context.Background())
	ext.Start(context.Background())
	t.Cleanup(func() {
		host.Close()
		ext.Close()
	})

	client := exthost.NewClient(host)
	docs := NewDocuments(client.DocumentsAndEditors, nil, nil)
	tabs := NewTabs(client.EditorTabs, nil, nil)

	_ = docs.OpenDocument(doc("file:///a.go"))
	_ = docs.AddEditor(editor("e1", "file:///a.go"))
	docs.Start()
	tabs.Start()

	_ = docs.SetSelections("e1", nil)
	_ = docs.UpdateDocument("file:///a.go", 2, []string{"package a", ""}, true)
	_ = docs.SetActiveEditor("e1")
	_ = tabs.Update(setModel(group(1, "a.go", "b.go"), group(2)))
	_ = tabs.Update(setModel(group(2, "c.go"), group(1, "b.go", "a.go")))

	eventually(t, func() bool { return sameSnapshot(docs.Snapshot(), docsMirror.Snapshot()) })
	eventually(t, func() bool { return sameGroups(tabs.Groups(), tabsMirror.Groups()) })

	if e, _ := docsMirror.Editor("e1"); e.Selections == nil || len(e.Selections) != 0 {
		t.Errorf("cleared selections arrived as %#v", e.Selections)
	}
	eventually(t, func() bool { return host.Stats().Pending == 0 })
}
