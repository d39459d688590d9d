// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Practice PracticeConfig `toml:"practice"`
	Race     RaceConfig     `toml:"race"`
	Server   ServerConfig   `toml:"server"`
}

// PracticeConfig maps solo typing settings.
type PracticeConfig struct {
	TimeLimit   *int    `toml:"time-limit"`
	Mode        *string `toml:"mode"`
	WordlistDir *string `toml:"wordlist-dir"`
}

// RaceConfig maps multiplayer client settings.
type RaceConfig struct {
	Server   *string `toml:"server"`
	Username *string `toml:"username"`
}

// ServerConfig maps room server settings.
type ServerConfig struct {
	Addr           *string  `toml:"addr"`
	DB             *string  `toml:"db"`
	AllowedOrigins []string `toml:"allowed-origins"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return FileConfig{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	return cfg, nil
}
