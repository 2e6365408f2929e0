// Package config loads the reachd configuration.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// DefaultPath is where reachd looks for its configuration.
const DefaultPath = "/etc/reach/reach.toml"

// Config is the daemon configuration. Every field has a default; the
// TOML file only overrides.
type Config struct {
	// UnitDir is scanned for unit files at startup and watched after.
	UnitDir string `toml:"unit_dir"`

	// CtlPath is the control FIFO the admin client writes to.
	CtlPath string `toml:"ctl_path"`

	// LogFile receives the daemon log.
	LogFile string `toml:"log_file"`

	// PidFile records the running daemon's pid.
	PidFile string `toml:"pid_file"`

	// LockFile backs the single-instance flock.
	LockFile string `toml:"lock_file"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		UnitDir:  "/etc/reach/system/",
		CtlPath:  "/etc/reach/ipc/ctl",
		LogFile:  "/var/log/reach/reachd.log",
		PidFile:  "/run/reach/reachd.pid",
		LockFile: "/run/reach/reachd.lock",
	}
}

// Load reads the TOML file at path over the defaults. A missing file is
// not an error: the defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}
