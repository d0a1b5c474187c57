// Package config provides configuration management for the relay and the
// automation tool.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/tidwall/jsonc"
)

// Config represents the application configuration
type Config struct {
	Relay      RelayConfig      `json:"relay"`
	Automation AutomationConfig `json:"automation"`
	Logging    LoggingConfig    `json:"logging"`
}

// RelayConfig contains the relay server settings
type RelayConfig struct {
	// Host is the interface the relay listens on
	Host string `json:"host"`

	// Port is the relay's TCP port
	Port int `json:"port"`

	// Keyboard enables the terminal keyboard listener
	Keyboard bool `json:"keyboard"`

	// Speed is the initial keyboard step in pixels, clamped to [5, 100]
	Speed int `json:"speed"`

	// Tray shows the system tray menu
	Tray bool `json:"tray"`

	// ServerName is reported in handshake acknowledgements
	ServerName string `json:"server_name"`

	// APIToken is an optional bearer token for /api/ requests
	APIToken string `json:"api_token,omitempty"`
}

// AutomationConfig contains the automation controller settings
type AutomationConfig struct {
	// Speed is the glide speed in pixels per second. Zero means unset;
	// the command line must then supply one.
	Speed float64 `json:"speed"`

	// Delay is the pause before centering, in seconds
	Delay float64 `json:"delay"`

	// Tolerance is the per-channel color tolerance
	Tolerance int `json:"tolerance"`

	// TargetColor is the target fill as #RRGGBB
	TargetColor string `json:"target_color"`

	// PollInterval is the wait between captures without a target, in seconds
	PollInterval float64 `json:"poll_interval"`

	// MaxMisses is the number of consecutive empty captures that ends a run
	MaxMisses int `json:"max_misses"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	// Level is a zap level name such as "debug" or "info"
	Level string `json:"level"`
}

// DelayDuration returns Delay as a time.Duration.
func (a AutomationConfig) DelayDuration() time.Duration {
	return seconds(a.Delay)
}

// PollDuration returns PollInterval as a time.Duration.
func (a AutomationConfig) PollDuration() time.Duration {
	return seconds(a.PollInterval)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// DefaultConfig returns a new Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Relay: RelayConfig{
			Host:       "localhost",
			Port:       8765,
			Speed:      10,
			ServerName: "WebFitts Go Relay",
		},
		Automation: AutomationConfig{
			Delay:        3.0,
			Tolerance:    15,
			TargetColor:  "#3D9970",
			PollInterval: 0.1,
			MaxMisses:    30,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate reports settings that no component can run with.
func (c *Config) Validate() error {
	if c.Relay.Port < 0 || c.Relay.Port > 65535 {
		return fmt.Errorf("relay.port %d out of range", c.Relay.Port)
	}
	if c.Automation.Speed < 0 {
		return fmt.Errorf("automation.speed must not be negative")
	}
	if c.Automation.Tolerance < 0 || c.Automation.Tolerance > 255 {
		return fmt.Errorf("automation.tolerance %d out of range", c.Automation.Tolerance)
	}
	if c.Automation.MaxMisses < 0 {
		return fmt.Errorf("automation.max_misses must not be negative")
	}
	return nil
}

// Manager handles loading and saving configuration
type Manager struct {
	mu         sync.Mutex
	configPath string
	config     *Config
}

// NewManager creates a manager for the per-user config file
func NewManager() (*Manager, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}
	return NewManagerAt(configPath), nil
}

// NewManagerAt creates a manager for an explicit file path
func NewManagerAt(path string) *Manager {
	return &Manager{
		configPath: path,
		config:     DefaultConfig(),
	}
}

// Path returns the file the manager reads and writes
func (m *Manager) Path() string {
	return m.configPath
}

// getConfigPath returns the path to the configuration file
func getConfigPath() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "webfitts")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		configDir = filepath.Join(appData, "webfitts")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			configDir = filepath.Join(xdg, "webfitts")
			break
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, ".config", "webfitts")
	}

	return filepath.Join(configDir, "config.json"), nil
}

// Load reads the configuration from disk. Comments and trailing commas
// are allowed. A missing file leaves the defaults in place.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.configPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
		return fmt.Errorf("parse %s: %w", m.configPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%s: %w", m.configPath, err)
	}
	m.config = cfg
	return nil
}

// Save writes the configuration to disk, creating its directory
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return err
	}
	return os.WriteFile(m.configPath, data, 0644)
}

// Get returns a copy of the current configuration
func (m *Manager) Get() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.config
}

// Set replaces the in-memory configuration. Call Save to persist it.
func (m *Manager) Set(config Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = &config
}
