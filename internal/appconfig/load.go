package appconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("state_dir", cfg.StateDir)
	v.SetDefault("backend.network", cfg.Backend.Network)
	v.SetDefault("backend.addr", cfg.Backend.Addr)
	v.SetDefault("backend.command_path", cfg.Backend.CommandPath)
	v.SetDefault("backend.reconnect_delay_ms", cfg.Backend.ReconnectDelayMS)
	v.SetDefault("backend.auto_reconnect", cfg.Backend.AutoReconnect)
	v.SetDefault("panel.max_entries", cfg.Panel.MaxEntries)
	v.SetDefault("panel.sandbox", cfg.Panel.Sandbox)
	v.SetDefault("notify.on_done", cfg.Notify.OnDone)
	v.SetDefault("notify.min_seconds", cfg.Notify.MinSeconds)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
				err = nil
			} else {
				return Config{}, err
			}
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.IsSet("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
		switch v.GetString("backend.network") {
		case "unix", "tcp":
		default:
			return Config{}, fmt.Errorf("unsupported backend.network %q", v.GetString("backend.network"))
		}
		if v.GetString("backend.addr") == "" {
			return Config{}, fmt.Errorf("backend.addr is required for config_version %d", CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if cfg.Backend.ReconnectDelayMS < 0 {
		return Config{}, fmt.Errorf("backend.reconnect_delay_ms must not be negative")
	}
	if cfg.Panel.MaxEntries < 0 {
		return Config{}, fmt.Errorf("panel.max_entries must not be negative")
	}
	return cfg, nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.StateDir = expandEnv(cfg.StateDir)
	cfg.Backend.Addr = expandEnv(cfg.Backend.Addr)
	cfg.Backend.CommandPath = expandEnv(cfg.Backend.CommandPath)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
