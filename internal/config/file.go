// Copyright 2025 Joseph Cumines

package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// loadFile overlays the keys set in the TOML file at path. Durations are
// strings such as "5s"; unknown keys are rejected.
func (c *Config) loadFile(path string) error {
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown keys in config file %s: %s", path, strings.Join(keys, ", "))
	}
	return nil
}
