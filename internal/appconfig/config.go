package appconfig

import (
	"os"
	"path/filepath"

	"pkt.systems/nbmux/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int           `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string        `mapstructure:"state_dir" yaml:"state_dir"`
	Backend       BackendConfig `mapstructure:"backend" yaml:"backend"`
	Panel         PanelConfig   `mapstructure:"panel" yaml:"panel"`
	Notify        NotifyConfig  `mapstructure:"notify" yaml:"notify"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// BackendConfig configures the connection to the Codex backend.
type BackendConfig struct {
	// Network is "unix" or "tcp".
	Network string `mapstructure:"network" yaml:"network"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
	// CommandPath overrides the codex binary the backend launches.
	CommandPath string `mapstructure:"command_path" yaml:"command_path"`
	// ReconnectDelayMS is the coalesced retry delay after a drop.
	ReconnectDelayMS int  `mapstructure:"reconnect_delay_ms" yaml:"reconnect_delay_ms"`
	AutoReconnect    bool `mapstructure:"auto_reconnect" yaml:"auto_reconnect"`
}

// PanelConfig controls conversation behavior.
type PanelConfig struct {
	MaxEntries int    `mapstructure:"max_entries" yaml:"max_entries"`
	Sandbox    string `mapstructure:"sandbox" yaml:"sandbox"`
}

// NotifyConfig controls run-completion notifications.
type NotifyConfig struct {
	OnDone     bool `mapstructure:"on_done" yaml:"on_done"`
	MinSeconds int  `mapstructure:"min_seconds" yaml:"min_seconds"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      filepath.Join(home, ".nbmux", "state"),
		Backend: BackendConfig{
			Network:          "unix",
			Addr:             filepath.Join(home, ".nbmux", "backend.sock"),
			CommandPath:      "",
			ReconnectDelayMS: int(schema.DefaultReconnectDelay.Milliseconds()),
			AutoReconnect:    true,
		},
		Panel: PanelConfig{
			MaxEntries: schema.DefaultMaxEntries,
			Sandbox:    schema.DefaultSandbox,
		},
		Notify: NotifyConfig{
			OnDone:     false,
			MinSeconds: schema.DefaultNotifyMinSeconds,
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".nbmux", "config.yaml"), nil
}
