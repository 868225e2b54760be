package config

import (
	"fmt"
	"math"

	"github.com/w1xm/servo_bridge/actuator"
	"github.com/w1xm/servo_bridge/dxl"
)

// slotsSize is the span of one indirect address window: one 2-byte slot
// per mapped register byte.
const slotsSize = 2 * actuator.WindowSize

// Validate checks configuration correctness. It does not mutate cfg.
func Validate(cfg *Config) error {
	for name, c := range cfg.Classes {
		if err := validateClass(c); err != nil {
			return fmt.Errorf("class %q: %w", name, err)
		}
	}

	seen := make(map[int]int)
	for i, a := range cfg.Actuators {
		if a.ID < 0 || a.ID > int(dxl.MaxID) {
			return fmt.Errorf("actuator %d: id %d outside 0-%d", i, a.ID, dxl.MaxID)
		}
		if prev, ok := seen[a.ID]; ok {
			return fmt.Errorf("actuator %d: id %d already used by actuator %d", i, a.ID, prev)
		}
		seen[a.ID] = i
		if _, ok := cfg.Classes[a.Class]; !ok {
			return fmt.Errorf("actuator %d: unknown class %q", i, a.Class)
		}
	}
	return nil
}

func validateClass(c actuator.Class) error {
	for _, r := range []struct {
		name string
		v    float64
	}{
		{"position_ratio", c.PositionRatio},
		{"current_ratio", c.CurrentRatio},
		{"torque_ratio", c.TorqueRatio},
	} {
		if !(r.v > 0) || math.IsInf(r.v, 0) {
			return fmt.Errorf("%s must be positive, got %v", r.name, r.v)
		}
	}
	if !actuator.ValidMode(c.DefaultMode) {
		return fmt.Errorf("unknown default_mode %d", c.DefaultMode)
	}
	return validateIndirect(c)
}

type span struct {
	name       string
	addr, size uint16
}

// validateIndirect checks that the indirect address slots and data windows
// overlap neither each other nor the direct registers the class uses.
func validateIndirect(c actuator.Class) error {
	r, in := c.Registers, c.Indirect
	indirect := []span{
		{"read_address", in.ReadAddress, slotsSize},
		{"write_address", in.WriteAddress, slotsSize},
		{"read_data", in.ReadData, actuator.WindowSize},
		{"write_data", in.WriteData, actuator.WindowSize},
	}
	direct := []span{
		{"torque_enable", r.TorqueEnable, 1},
		{"operating_mode", r.OperatingMode, 1},
		{"return_delay", r.ReturnDelay, 1},
		{"goal_current", r.GoalCurrent, 2},
		{"goal_position", r.GoalPosition, 4},
		{"present_current", r.PresentCurrent, 2},
		{"present_position", r.PresentPosition, 4},
	}
	for i, a := range indirect {
		others := append(append([]span(nil), indirect[i+1:]...), direct...)
		for _, b := range others {
			if overlaps(a.addr, a.size, b.addr, b.size) {
				return fmt.Errorf("indirect %s at %d overlaps %s at %d", a.name, a.addr, b.name, b.addr)
			}
		}
	}
	return nil
}

func overlaps(a, asize, b, bsize uint16) bool {
	return int(a) < int(b)+int(bsize) && int(b) < int(a)+int(asize)
}
