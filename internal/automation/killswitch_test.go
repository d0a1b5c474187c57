package automation

import (
	"strings"
	"testing"
)

func TestKillSwitch(t *testing.T) {
	ks := NewKillSwitch()
	if ks.Triggered() {
		t.Fatal("New kill switch should not be triggered")
	}
	ks.Trigger()
	ks.Trigger()
	if !ks.Triggered() {
		t.Error("Expected kill switch to stay triggered")
	}
}

func TestWatchKeys(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"esc", "abc\x1b", true},
		{"ctrl-c", "\x03", true},
		{"ordinary keys", "wasd g", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		ks := NewKillSwitch()
		WatchKeys(strings.NewReader(tt.input), ks)
		if ks.Triggered() != tt.want {
			t.Errorf("%s: triggered = %v, want %v", tt.name, ks.Triggered(), tt.want)
		}
	}
}

func TestStartKillSourcesRejectsBadHotkey(t *testing.T) {
	if _, err := StartKillSources(NewKillSwitch(), KillSourceOptions{Hotkey: "Ctrl+"}); err == nil {
		t.Error("Expected error for malformed hotkey")
	}
}
