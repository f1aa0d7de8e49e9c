package main

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"caevo/internal/experiment"
)

// runConfig is the file form of the run command. It holds experiment
// parameters at the top level plus CLI-only settings. JSON files load too.
type runConfig struct {
	Experiment experiment.Config `yaml:",inline"`

	Patterns string `yaml:"patterns"`
	Block    string `yaml:"block"`
	Runs     int    `yaml:"runs"`
	Store    string `yaml:"store"`
	Path     string `yaml:"path"`
	LogLevel string `yaml:"log_level"`
}

func loadRunConfig(path string) (runConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return runConfig{}, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var cfg runConfig
	if err := dec.Decode(&cfg); err != nil {
		return runConfig{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return cfg, nil
}

// flagOverrides applies every override whose flag was set explicitly. Without
// a config file all flags apply so their defaults take effect.
func flagOverrides(setFlags map[string]bool, fromFile bool, overrides map[string]func()) {
	for name, apply := range overrides {
		if !fromFile || setFlags[name] {
			apply()
		}
	}
}
