// Package config loads the device class and actuator tables.
package config

import (
	"fmt"
	"os"

	"github.com/w1xm/servo_bridge/actuator"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// Classes holds the built-in classes plus any defined or overridden
	// in the file, keyed by name.
	Classes   map[string]actuator.Class
	Actuators []ActuatorConfig
}

type ActuatorConfig struct {
	ID    int    `yaml:"id"`
	Class string `yaml:"class"`
}

type file struct {
	Classes   map[string]yaml.Node `yaml:"classes"`
	Actuators []ActuatorConfig     `yaml:"actuators"`
}

// classEntry is one class in the file. Fields left out keep the value of
// the base class: the built-in of the same name, or the one named by base.
type classEntry struct {
	Base           string `yaml:"base"`
	actuator.Class `yaml:",inline"`
}

// Default is the configuration used without a file: twelve XC330s with
// ids 0 through 11.
func Default() *Config {
	cfg := &Config{Classes: builtins()}
	Normalize(cfg)
	return cfg
}

func builtins() map[string]actuator.Class {
	m := make(map[string]actuator.Class, len(actuator.Classes))
	for name, c := range actuator.Classes {
		m[name] = c
	}
	return m
}

// Load reads a YAML configuration file. The result still has to go
// through Validate and Normalize.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	cfg := &Config{Classes: builtins(), Actuators: f.Actuators}
	for name, node := range f.Classes {
		var e classEntry
		if err := node.Decode(&e); err != nil {
			return nil, fmt.Errorf("class %q: %w", name, err)
		}
		base := cfg.Classes[name]
		if e.Base != "" {
			var ok bool
			if base, ok = actuator.Classes[e.Base]; !ok {
				return nil, fmt.Errorf("class %q: unknown base class %q", name, e.Base)
			}
		}
		e = classEntry{Class: base}
		if err := node.Decode(&e); err != nil {
			return nil, fmt.Errorf("class %q: %w", name, err)
		}
		e.Class.Name = name
		cfg.Classes[name] = e.Class
	}
	return cfg, nil
}

// Resolve returns the actuator table in bus order. It must be called after
// Validate.
func (c *Config) Resolve() []actuator.Actuator {
	out := make([]actuator.Actuator, len(c.Actuators))
	for i, a := range c.Actuators {
		out[i] = actuator.Actuator{ID: uint8(a.ID), Class: c.Classes[a.Class]}
	}
	return out
}
