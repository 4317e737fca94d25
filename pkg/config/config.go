// Package config loads and persists the application settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envPrefix = "POPUPGPT"
	appDir    = "popup-gpt"
	fileName  = "popup-gpt.yaml"
)

// Settings is everything the application persists between runs.
// OpenAIToken is the only required field.
type Settings struct {
	OpenAIToken   string  `mapstructure:"openai_token" yaml:"openai_token"`
	Endpoint      string  `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	Model         string  `mapstructure:"model" yaml:"model,omitempty"`
	SystemMessage string  `mapstructure:"system_message" yaml:"system_message,omitempty"`
	Temperature   float64 `mapstructure:"temperature" yaml:"temperature,omitempty"`
	TopP          float64 `mapstructure:"top_p" yaml:"top_p,omitempty"`
	MaxTokens     int     `mapstructure:"max_tokens" yaml:"max_tokens,omitempty"`
	LogLevel      string  `mapstructure:"log_level" yaml:"log_level,omitempty"`
	LogFile       string  `mapstructure:"log_file" yaml:"log_file,omitempty"`
}

// DefaultPath returns the per-user settings file location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve config directory: %w", err)
	}
	return filepath.Join(dir, appDir, fileName), nil
}

// Load reads settings from environment variables (POPUPGPT_*) and,
// when configPath names an existing file, from that file. Environment
// variables win over the file.
func Load(configPath string) (*Settings, error) {
	v := viper.New()

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log_level", "info")

	// Keys only present in the environment are invisible to
	// Unmarshal unless declared.
	for _, key := range []string{
		"openai_token", "endpoint", "model", "system_message",
		"temperature", "top_p", "max_tokens", "log_level", "log_file",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &settings, nil
}

// Save writes the settings to path as YAML, creating the parent
// directory when needed. The token ends up on disk, so the file is
// user-only.
func (s *Settings) Save(path string) error {
	raw, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}

	return nil
}
