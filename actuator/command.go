package actuator

import "fmt"

type Kind int

const (
	// KindPosition sets goal position and goal torque, by index.
	KindPosition Kind = iota
	// KindCurrent sets goal torque only, by index.
	KindCurrent
	// KindTorqueEnable queues a torque enable change, by ID.
	KindTorqueEnable
	// KindMode queues an operating mode change, by ID.
	KindMode
)

func (k Kind) String() string {
	switch k {
	case KindPosition:
		return "position"
	case KindCurrent:
		return "current"
	case KindTorqueEnable:
		return "torque-enable"
	case KindMode:
		return "mode-change"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Command is one decoded controller intent.
type Command struct {
	Kind Kind
	// Index addresses position and current commands.
	Index int
	// ID addresses torque enable and mode commands.
	ID uint8

	Position float64
	Torque   float64
	// Value is the torque enable flag (0 or 1) or the mode code.
	Value uint8
}

// check resolves the addressed proxy and verifies the command would apply.
func (c Command) check(r *Registry) (*Proxy, error) {
	switch c.Kind {
	case KindPosition, KindCurrent:
		p, err := r.At(c.Index)
		if err != nil {
			return nil, err
		}
		cl := p.class
		if c.Kind == KindPosition {
			if _, err := ToRaw(c.Position, cl.PositionRatio); err != nil {
				return nil, err
			}
		}
		if _, err := p.currentToRaw(c.Torque, cl.TorqueRatio*cl.CurrentRatio); err != nil {
			return nil, err
		}
		return p, nil
	case KindTorqueEnable:
		if c.Value > 1 {
			return nil, fmt.Errorf("torque enable must be 0 or 1, got %d", c.Value)
		}
		return r.ByID(c.ID)
	case KindMode:
		if !ValidMode(c.Value) {
			return nil, fmt.Errorf("unknown operating mode %d", c.Value)
		}
		return r.ByID(c.ID)
	}
	return nil, fmt.Errorf("unknown command kind %v", c.Kind)
}

// apply runs on the bus loop.
func (c Command) apply(p *Proxy) {
	switch c.Kind {
	case KindPosition:
		p.UpdateGoalPosition(c.Position)
		p.UpdateGoalTorque(c.Torque)
	case KindCurrent:
		p.UpdateGoalTorque(c.Torque)
	case KindTorqueEnable:
		p.pendingTorqueEnable = Set(c.Value)
	case KindMode:
		p.pendingMode = Set(c.Value)
	}
}
