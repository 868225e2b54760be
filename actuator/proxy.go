package actuator

import (
	"encoding/binary"
	"fmt"
	"log"
	"math"
)

// Transport is the bus as seen by the proxies and the scheduler. It is
// implemented by *dxl.Bus. Calls must only be made from the bus loop.
type Transport interface {
	Write1(id uint8, addr uint16, v uint8) error
	Write2(id uint8, addr uint16, v uint16) error

	ClearBulkWrite()
	AddBulkWrite(id uint8, addr uint16, data []byte) error
	BulkWrite() error

	AddBulkRead(id uint8, addr, length uint16) error
	BulkRead() error
	BulkReadData(id uint8, addr, length uint16) ([]byte, error)
}

// Present is one decoded telemetry sample.
type Present struct {
	// Current is in mA.
	Current float64
	// Torque is the torque equivalent of Current, in N·m.
	Torque float64
	// Position is in degrees relative to the startup position.
	Position float64
}

// Proxy mirrors one actuator on the bus. Goal and pending fields are only
// touched by the bus loop; commands reach them through Scheduler.Submit.
type Proxy struct {
	tr    Transport
	index int
	id    uint8
	class Class

	initialRawPosition int32
	presentRawCurrent  int16
	presentRawPosition int32

	goalRawPosition int32
	goalRawCurrent  int16

	pendingTorqueEnable Pending
	pendingMode         Pending
}

// NewProxy configures the device, registers its read window and captures
// its startup position with one bulk read.
func NewProxy(tr Transport, index int, id uint8, class Class) (*Proxy, error) {
	p := &Proxy{tr: tr, index: index, id: id, class: class}
	if err := p.configure(); err != nil {
		return nil, fmt.Errorf("configuring device %d: %w", id, err)
	}
	if err := tr.AddBulkRead(id, class.Indirect.ReadData, WindowSize); err != nil {
		return nil, fmt.Errorf("registering device %d: %w", id, err)
	}
	if err := tr.BulkRead(); err != nil {
		return nil, fmt.Errorf("reading device %d: %w", id, err)
	}
	if err := p.captureInitial(); err != nil {
		return nil, fmt.Errorf("reading device %d: %w", id, err)
	}
	return p, nil
}

func (p *Proxy) configure() error {
	r := p.class.Registers
	for _, w := range []struct {
		addr uint16
		v    uint8
	}{
		{r.TorqueEnable, 0},
		{r.ReturnDelay, 0},
		{r.OperatingMode, p.class.DefaultMode},
		{r.TorqueEnable, 1},
	} {
		if err := p.tr.Write1(p.id, w.addr, w.v); err != nil {
			return err
		}
	}
	if err := p.tr.Write2(p.id, r.GoalCurrent, 0); err != nil {
		return err
	}
	for _, s := range p.class.remap() {
		if err := p.tr.Write2(p.id, s.addr, s.target); err != nil {
			return err
		}
	}
	return nil
}

// captureInitial stores the position from the last bulk read as the zero
// reference for all later positions. It runs once, before any goal is sent.
func (p *Proxy) captureInitial() error {
	b, err := p.tr.BulkReadData(p.id, p.class.Indirect.ReadData+2, 4)
	if err != nil {
		return err
	}
	p.initialRawPosition = int32(binary.LittleEndian.Uint32(b))
	p.presentRawPosition = p.initialRawPosition
	return nil
}

func (p *Proxy) ID() uint8 {
	return p.id
}

func (p *Proxy) Index() int {
	return p.index
}

func (p *Proxy) Class() Class {
	return p.class
}

func (p *Proxy) InitialRawPosition() int32 {
	return p.initialRawPosition
}

// InitialPosition is the startup position in degrees from the device's
// absolute zero.
func (p *Proxy) InitialPosition() float64 {
	return ToPhysical(p.initialRawPosition, p.class.PositionRatio)
}

// UpdateGoalPosition sets the goal position in degrees relative to the
// startup position. On error the previous goal is kept.
func (p *Proxy) UpdateGoalPosition(degrees float64) error {
	raw, err := ToRaw(degrees, p.class.PositionRatio)
	if err != nil {
		log.Printf("device %d: goal position %v: %v", p.id, degrees, err)
		return err
	}
	p.goalRawPosition = raw
	return nil
}

// UpdateGoalCurrent sets the goal current in mA.
func (p *Proxy) UpdateGoalCurrent(current float64) error {
	raw, err := p.currentToRaw(current, p.class.CurrentRatio)
	if err != nil {
		log.Printf("device %d: goal current %v: %v", p.id, current, err)
		return err
	}
	p.goalRawCurrent = raw
	return nil
}

// UpdateGoalTorque sets the goal current from a torque in N·m.
func (p *Proxy) UpdateGoalTorque(torque float64) error {
	raw, err := p.currentToRaw(torque, p.class.TorqueRatio*p.class.CurrentRatio)
	if err != nil {
		log.Printf("device %d: goal torque %v: %v", p.id, torque, err)
		return err
	}
	p.goalRawCurrent = raw
	return nil
}

func (p *Proxy) currentToRaw(value, ratio float64) (int16, error) {
	raw, err := ToRaw(value, ratio)
	if err != nil {
		return 0, err
	}
	if raw > math.MaxInt16 || raw < math.MinInt16 {
		return 0, fmt.Errorf("%w: %d outside goal current register", ErrConversion, raw)
	}
	return int16(raw), nil
}

// EncodeWritePayload encodes the write window: goal current then absolute
// goal position, little endian.
func (p *Proxy) EncodeWritePayload() []byte {
	b := make([]byte, WindowSize)
	binary.LittleEndian.PutUint16(b[0:2], uint16(p.goalRawCurrent))
	binary.LittleEndian.PutUint32(b[2:6], uint32(p.goalRawPosition+p.initialRawPosition))
	return b
}

// DecodeReadResult decodes the read window and updates the present state.
func (p *Proxy) DecodeReadResult(b []byte) (Present, error) {
	if len(b) != WindowSize {
		return Present{}, fmt.Errorf("device %d: read window is %d bytes, want %d", p.id, len(b), WindowSize)
	}
	p.presentRawCurrent = int16(binary.LittleEndian.Uint16(b[0:2]))
	p.presentRawPosition = int32(binary.LittleEndian.Uint32(b[2:6]))
	return p.Present(), nil
}

// Present converts the last decoded state into physical units.
func (p *Proxy) Present() Present {
	c := p.class
	current := ToPhysical(int32(p.presentRawCurrent), c.CurrentRatio)
	return Present{
		Current:  current,
		Torque:   current * c.TorqueRatio,
		Position: ToPhysical(p.presentRawPosition-p.initialRawPosition, c.PositionRatio),
	}
}

// SetTorqueEnable writes the torque enable register immediately.
func (p *Proxy) SetTorqueEnable(enabled bool) error {
	var v uint8
	if enabled {
		v = 1
	}
	return p.tr.Write1(p.id, p.class.Registers.TorqueEnable, v)
}

// SetOperatingMode writes the operating mode register immediately. The
// device rejects it while torque is enabled.
func (p *Proxy) SetOperatingMode(mode uint8) error {
	return p.tr.Write1(p.id, p.class.Registers.OperatingMode, mode)
}
