// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Heatmap HeatmapConfig `toml:"heatmap"`
	Session SessionConfig `toml:"session"`
	Source  SourceConfig  `toml:"source"`
}

// HeatmapConfig maps overlay rendering settings.
type HeatmapConfig struct {
	Radius     *float64 `toml:"radius"`
	Blur       *float64 `toml:"blur"`
	MinOpacity *float64 `toml:"min-opacity"`
	MaxOpacity *float64 `toml:"max-opacity"`
	Scale      *int     `toml:"scale"`
	// Gradient maps stop positions ("0.5") to colors ("lime", "#00ff00").
	Gradient map[string]string `toml:"gradient"`
}

// SessionConfig maps tracking and export settings.
type SessionConfig struct {
	OutDir    *string `toml:"out-dir"`
	Locale    *string `toml:"locale"`
	Collision *string `toml:"collision"`
	Route     *string `toml:"route"`
	Viewport  *string `toml:"viewport"`
}

// SourceConfig maps gaze source settings.
type SourceConfig struct {
	Input       *string  `toml:"in"`
	Listen      *string  `toml:"listen"`
	TokenSecret *string  `toml:"token-secret"`
	Synthetic   *bool    `toml:"synthetic"`
	ReplaySpeed *float64 `toml:"replay-speed"`
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
