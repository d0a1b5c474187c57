package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"webfitts/internal/automation"
	"webfitts/internal/vision"
)

func resolveArgs(t *testing.T, config string, args ...string) (settings, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if config != "" {
		if err := os.WriteFile(path, []byte(config), 0644); err != nil {
			t.Fatal(err)
		}
	}
	flagSet, flags, err := parseFlags(append([]string{"--config", path}, args...))
	if err != nil {
		t.Fatalf("parseFlags returned error: %v", err)
	}
	return resolve(flagSet, flags)
}

func TestSpeedIsRequired(t *testing.T) {
	_, err := resolveArgs(t, "")
	if err == nil || !strings.Contains(err.Error(), "required") {
		t.Errorf("Expected missing speed error, got %v", err)
	}
}

func TestSpeedMustBePositive(t *testing.T) {
	for _, speed := range []string{"0", "-250", "NaN"} {
		if _, err := resolveArgs(t, "", "--speed", speed); err == nil {
			t.Errorf("Speed %s: expected error", speed)
		}
	}
}

func TestShortFlags(t *testing.T) {
	s, err := resolveArgs(t, "", "-s", "750", "-d", "1.5")
	if err != nil {
		t.Fatalf("resolve returned error: %v", err)
	}
	if s.speed != 750 || s.delay != 1500*time.Millisecond {
		t.Errorf("Unexpected settings: speed %v delay %v", s.speed, s.delay)
	}
	if s.detector.Color != vision.TargetColor || s.detector.Tolerance != vision.DefaultTolerance {
		t.Errorf("Unexpected detector: %+v", s.detector)
	}
}

func TestZeroDelayMeansNoPause(t *testing.T) {
	s, err := resolveArgs(t, "", "-s", "500", "-d", "0")
	if err != nil {
		t.Fatalf("resolve returned error: %v", err)
	}
	if s.delay >= 0 {
		t.Errorf("Expected a negative delay for no pause, got %v", s.delay)
	}
}

func TestConfigSuppliesDefaults(t *testing.T) {
	cfg := `{"automation": {"speed": 300, "delay": 0.5, "tolerance": 20, "target_color": "#FF0000", "max_misses": 10}}`
	s, err := resolveArgs(t, cfg)
	if err != nil {
		t.Fatalf("resolve returned error: %v", err)
	}
	if s.speed != 300 || s.delay != 500*time.Millisecond || s.maxMisses != 10 {
		t.Errorf("Unexpected settings: %+v", s)
	}
	if s.detector.Color != (vision.RGB{R: 255}) || s.detector.Tolerance != 20 {
		t.Errorf("Unexpected detector: %+v", s.detector)
	}
}

func TestBadTargetColor(t *testing.T) {
	if _, err := resolveArgs(t, `{"automation": {"target_color": "green"}}`, "-s", "100"); err == nil {
		t.Error("Expected error for invalid target color")
	}
}

func TestRawLineEndingsFollowKillSources(t *testing.T) {
	tests := []struct {
		name    string
		sources *automation.KillSources
		want    bool
	}{
		{"before sources start", nil, false},
		{"global hotkey", &automation.KillSources{Global: true}, false},
		{"stdin fallback", &automation.KillSources{RawStdin: true}, true},
	}
	for _, tt := range tests {
		opts := loggerOptions("debug", tt.sources)
		if opts.RawTerminal != tt.want || opts.Level != "debug" {
			t.Errorf("%s: got %+v, want RawTerminal=%v", tt.name, opts, tt.want)
		}
	}
}
