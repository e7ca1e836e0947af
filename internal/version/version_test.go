package version

import (
	"strings"
	"testing"

	"github.com/dshills/extbridge/internal/protocol"
)

func TestString(t *testing.T) {
	oldCommit, oldDate := Commit, Date
	t.Cleanup(func() { Commit, Date = oldCommit, oldDate })

	tests := []struct {
		name   string
		commit string
		date   string
		want   string
	}{
		{"unstamped", "unknown", "unknown", "extbridge version "},
		{"stamped", "0123456789abcdef", "2026-10-01T00:00:00Z", "commit: 01234567"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Commit, Date = tt.commit, tt.date
			got := String("extbridge")
			if !strings.Contains(got, tt.want) {
				t.Errorf("String() = %q, want it to contain %q", got, tt.want)
			}
			if !strings.Contains(got, "protocol "+protocol.ProtocolVersion) {
				t.Errorf("String() = %q, missing protocol version", got)
			}
		})
	}
}

func TestGetInfo_Platform(t *testing.T) {
	if !strings.Contains(GetInfo().Platform, "/") {
		t.Errorf("Platform = %q", GetInfo().Platform)
	}
}
