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
	TTS      TTSConfig      `toml:"tts"`
	Remote   RemoteConfig   `toml:"remote"`
}

// PracticeConfig maps practice-related settings.
type PracticeConfig struct {
	Voice           *string  `toml:"voice"`
	FeedbackDelayMs *int     `toml:"feedback-delay-ms"`
	ShowAnswer      *bool    `toml:"show-answer"`
	Autoplay        *bool    `toml:"autoplay"`
	Effects         *bool    `toml:"effects"`
	Volume          *float64 `toml:"volume"`
	FocusWeak       *bool    `toml:"focus-weak"`
	WeakTop         *int     `toml:"weak-top"`
	WeakFactor      *float64 `toml:"weak-factor"`
	WeakWindow      *int     `toml:"weak-window"`
	ReviewSize      *int     `toml:"review-size"`
}

// TTSConfig maps speech synthesis settings.
type TTSConfig struct {
	Provider          *string `toml:"provider"`
	RequestsPerMinute *int    `toml:"requests-per-minute"`
	DiskCache         *bool   `toml:"disk-cache"`
}

// RemoteConfig maps backend settings.
type RemoteConfig struct {
	URL *string `toml:"url"`
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

// Template is written by `dictype config` when no file exists.
const Template = `# dictype configuration

[practice]
# voice = "Wendy"            # Wendy, William, Olivia, Harry
# feedback-delay-ms = 500
# show-answer = false
# autoplay = true
# effects = true
# volume = 0.5
# focus-weak = false
# weak-top = 10
# weak-factor = 2.0
# weak-window = 20
# review-size = 10

[tts]
# provider = "aliyun"        # aliyun, backend, none
# requests-per-minute = 60
# disk-cache = true

[remote]
# url = "https://example.com/api"
`
