package config

import "github.com/w1xm/servo_bridge/actuator"

// defaultActuators is the size of the default bank.
const defaultActuators = 12

// Normalize fills in defaults. It must only be called after Validate.
func Normalize(cfg *Config) {
	if len(cfg.Actuators) > 0 {
		return
	}
	for id := 0; id < defaultActuators; id++ {
		cfg.Actuators = append(cfg.Actuators, ActuatorConfig{ID: id, Class: actuator.XC330.Name})
	}
}
