package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// ComponentConfig declares one versionable component of the workspace.
type ComponentConfig struct {
	Name      string   `mapstructure:"name"`
	Scope     string   `mapstructure:"scope"`
	Path      string   `mapstructure:"path"`
	DependsOn []string `mapstructure:"depends_on"`
}

// PipelineConfig configures the optional build/test step run before a
// candidate is persisted.
type PipelineConfig struct {
	Command string `mapstructure:"command"`
	Timeout int    `mapstructure:"timeout_seconds"`
}

// Workspace holds runtime configuration for one workspace.
// Values come from .snapver.yaml plus SNAPVER_* env vars.
type Workspace struct {
	Components []ComponentConfig `mapstructure:"components"`
	Pipeline   PipelineConfig    `mapstructure:"pipeline"`
	PreID      string            `mapstructure:"prerelease_id"`
	Workers    int               `mapstructure:"workers"`
}

// LoadWorkspace reads the workspace config. A missing config file is not an
// error; defaults apply.
func LoadWorkspace(path string) (Workspace, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(".snapver")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("SNAPVER")
	v.AutomaticEnv()

	v.SetDefault("prerelease_id", "rc")
	v.SetDefault("workers", 0)
	v.SetDefault("pipeline.timeout_seconds", 600)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return Workspace{}, fmt.Errorf("read workspace config: %w", err)
		}
	}

	var ws Workspace
	if err := v.Unmarshal(&ws); err != nil {
		return Workspace{}, fmt.Errorf("parse workspace config: %w", err)
	}
	return ws, nil
}
