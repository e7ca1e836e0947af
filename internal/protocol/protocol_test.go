package protocol

import (
	"strings"
	"testing"

	"github.com/dshills/extbridge/internal/rpc"
)

func TestParse(t *testing.T) {
	tests := []struct {
		version     string
		expectError bool
		want        Version
	}{
		{"1.2.0", false, Version{1, 2, 0}},
		{"10.99.42", false, Version{10, 99, 42}},
		{"1.2", true, Version{}},
		{"a.b.c", true, Version{}},
		{"1.-1.0", true, Version{}},
	}

	for _, tt := range tests {
		v, err := Parse(tt.version)
		if tt.expectError {
			if err == nil {
				t.Errorf("Parse(%q) expected error but got none", tt.version)
			}
			continue
		}
		if err != nil {
			t.Errorf("Parse(%q) unexpected error: %v", tt.version, err)
		}
		if v != tt.want {
			t.Errorf("Parse(%q) = %s, want %s", tt.version, v, tt.want)
		}
	}
}

func TestIsCompatible(t *testing.T) {
	tests := []struct {
		peer          string
		compatible    bool
		errorContains string
	}{
		{ProtocolVersion, true, ""},
		{"1.0.0", true, ""},
		{"1.9.3", true, ""},
		{"2.0.0", false, "incompatible major version"},
		{"0.9.0", false, "incompatible major version"},
		{"garbage", false, "parse peer version"},
	}

	for _, tt := range tests {
		ok, err := IsCompatible(tt.peer)
		if ok != tt.compatible {
			t.Errorf("IsCompatible(%q) = %v, want %v (err: %v)", tt.peer, ok, tt.compatible, err)
		}
		if tt.errorContains != "" && (err == nil || !strings.Contains(err.Error(), tt.errorContains)) {
			t.Errorf("IsCompatible(%q) error = %v, want it to contain %q", tt.peer, err, tt.errorContains)
		}
	}
}

func TestHandshakeUsesMajorVersion(t *testing.T) {
	if Handshake.ProtocolVersion != uint(CurrentVersion().Major) {
		t.Errorf("Handshake.ProtocolVersion = %d, want %d", Handshake.ProtocolVersion, CurrentVersion().Major)
	}
}

func TestUIAffine(t *testing.T) {
	tests := []struct {
		c    rpc.Capability
		want bool
	}{
		{MainThreadWebviewPanels, true},
		{MainThreadCustomEditors, true},
		{MainThreadCommands, false},
		{ExtHostCommands, false},
	}
	for _, tt := range tests {
		if got := UIAffine(tt.c); got != tt.want {
			t.Errorf("UIAffine(%s) = %v, want %v", tt.c, got, tt.want)
		}
	}
}

func TestTabGroupClone(t *testing.T) {
	g := TabGroup{GroupID: 1, Tabs: []Tab{{ID: "a"}}}
	c := g.Clone()
	c.Tabs[0].Label = "changed"
	if g.Tabs[0].Label != "" {
		t.Error("Clone shares the tab slice")
	}
	if !g.SameProperties(c) {
		t.Error("SameProperties() = false for a clone")
	}
	if TabOpMove.String() != "tab-move" || TabOperationKind(99).String() != "unknown" {
		t.Error("unexpected TabOperationKind.String output")
	}
}

func TestDeltaIsEmpty(t *testing.T) {
	var d DocumentsAndEditorsDelta
	if !d.IsEmpty() {
		t.Error("zero delta is not empty")
	}
	d.ActiveEditorChanged = true
	if d.IsEmpty() {
		t.Error("delta with an active editor change is empty")
	}
}
