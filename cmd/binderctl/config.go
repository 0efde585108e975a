package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	defaultConfigName = "binderctl.yaml"
	defaultKeyEnv     = "BINDER_NSEC"
)

// cliConfig is the optional YAML configuration file. Flags given on the
// command line win over it.
type cliConfig struct {
	Repo    string `yaml:"repo"`
	KeyEnv  string `yaml:"key_env"`
	Workers int    `yaml:"workers"`
	Verbose bool   `yaml:"verbose"`
}

// loadConfig reads path, or ./binderctl.yaml when path is empty. A missing
// default file is not an error.
func loadConfig(path string) (cliConfig, error) {
	explicit := path != ""
	if !explicit {
		path = defaultConfigName
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return cliConfig{}, nil
		}
		return cliConfig{}, fmt.Errorf("failed to read config: %w", err)
	}

	var c cliConfig
	if err := yaml.Unmarshal(data, &c); err != nil {
		return cliConfig{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if c.Workers < 0 {
		return cliConfig{}, fmt.Errorf("config %s: workers cannot be negative", path)
	}
	return c, nil
}

// merge applies flag values that were set explicitly, then defaults
func (c cliConfig) merge(cmd *cobra.Command, repo, env string, debug bool) cliConfig {
	flags := cmd.Flags()
	if flags.Changed("repo") || c.Repo == "" {
		c.Repo = repo
	}
	if flags.Changed("key-env") || c.KeyEnv == "" {
		c.KeyEnv = env
	}
	if flags.Changed("verbose") {
		c.Verbose = debug
	}
	return c
}
