package actuator

// Operating modes.
const (
	ModeCurrent          uint8 = 0
	ModeVelocity         uint8 = 1
	ModePosition         uint8 = 3
	ModeExtendedPosition uint8 = 4
	ModeCurrentPosition  uint8 = 5
	ModePWM              uint8 = 16
)

// ValidMode reports whether mode is an operating mode the X series accepts.
func ValidMode(mode uint8) bool {
	switch mode {
	case ModeCurrent, ModeVelocity, ModePosition, ModeExtendedPosition, ModeCurrentPosition, ModePWM:
		return true
	}
	return false
}

// WindowSize is the size of the indirect window: present (or goal)
// current, 2 bytes, followed by present (or goal) position, 4 bytes.
const WindowSize = 6

// Registers holds the control table addresses used by the bridge.
type Registers struct {
	TorqueEnable    uint16 `yaml:"torque_enable"`
	OperatingMode   uint16 `yaml:"operating_mode"`
	ReturnDelay     uint16 `yaml:"return_delay"`
	GoalCurrent     uint16 `yaml:"goal_current"`
	GoalPosition    uint16 `yaml:"goal_position"`
	PresentCurrent  uint16 `yaml:"present_current"`
	PresentPosition uint16 `yaml:"present_position"`
}

// Indirect locates the indirect address slots and the data windows they
// expose. The offsets differ between firmware families.
type Indirect struct {
	ReadAddress  uint16 `yaml:"read_address"`
	ReadData     uint16 `yaml:"read_data"`
	WriteAddress uint16 `yaml:"write_address"`
	WriteData    uint16 `yaml:"write_data"`
}

// Class is a family of actuators sharing a control table and unit ratios.
type Class struct {
	Name string `yaml:"-"`
	// PositionRatio is degrees per position unit.
	PositionRatio float64 `yaml:"position_ratio"`
	// CurrentRatio is mA per current unit.
	CurrentRatio float64 `yaml:"current_ratio"`
	// TorqueRatio is N·m per mA.
	TorqueRatio float64   `yaml:"torque_ratio"`
	DefaultMode uint8     `yaml:"default_mode"`
	Registers   Registers `yaml:"registers"`
	Indirect    Indirect  `yaml:"indirect"`
}

var xSeries = Registers{
	TorqueEnable:    64,
	OperatingMode:   11,
	ReturnDelay:     9,
	GoalCurrent:     102,
	GoalPosition:    116,
	PresentCurrent:  126,
	PresentPosition: 132,
}

var (
	XC330 = Class{
		Name:          "XC330",
		PositionRatio: 0.087891,
		CurrentRatio:  1,
		TorqueRatio:   0.63 / 740,
		DefaultMode:   ModeCurrentPosition,
		Registers:     xSeries,
		Indirect: Indirect{
			ReadAddress:  168,
			ReadData:     208,
			WriteAddress: 190,
			WriteData:    219,
		},
	}

	XM430 = Class{
		Name:          "XM430",
		PositionRatio: 0.087891,
		CurrentRatio:  2.69,
		TorqueRatio:   4.1 / 2300,
		DefaultMode:   ModeCurrentPosition,
		Registers:     xSeries,
		Indirect: Indirect{
			ReadAddress:  168,
			ReadData:     224,
			WriteAddress: 190,
			WriteData:    235,
		},
	}
)

// Classes are the built-in device classes by name.
var Classes = map[string]Class{
	XC330.Name: XC330,
	XM430.Name: XM430,
}

// slot maps one indirect address slot to the register byte it mirrors.
type slot struct {
	addr   uint16
	target uint16
}

func window(slotStart, current, position uint16) []slot {
	targets := []uint16{current, current + 1, position, position + 1, position + 2, position + 3}
	out := make([]slot, len(targets))
	for i, t := range targets {
		out[i] = slot{addr: slotStart + 2*uint16(i), target: t}
	}
	return out
}

// remap returns the indirect address writes that expose present
// current+position as the read window and goal current+position as the
// write window.
func (c Class) remap() []slot {
	r := c.Registers
	return append(
		window(c.Indirect.ReadAddress, r.PresentCurrent, r.PresentPosition),
		window(c.Indirect.WriteAddress, r.GoalCurrent, r.GoalPosition)...,
	)
}
