// Package sim simulates a bank of X-series actuators on one bus.
package sim

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/w1xm/servo_bridge/actuator"
	"github.com/w1xm/servo_bridge/dxl"
)

const (
	// Control table size.
	memSize = 1024
	// Number of indirect address slots.
	indirectSlots = 20
	// Addresses below this are EEPROM and only writable with torque off.
	eepromEnd = 64
	// Maximum position change per step, in position units.
	maxStep = 40
	// Present current per position unit of error, capped by goal current.
	currentGain = 4
	// Discrete simulation step size
	stepSize = 10 * time.Millisecond
	// Time on the wire per byte at 1 Mbaud, 8N1.
	byteTime = 10 * time.Microsecond
)

// Status packet error codes.
const (
	errInstruction byte = 2
	errDataLength  byte = 5
	errAccess      byte = 7
)

// Device is one simulated actuator.
type Device struct {
	ID    uint8
	Class actuator.Class
	// Position is the raw present position at power on.
	Position int32
}

type device struct {
	class  actuator.Class
	mem    [memSize]byte
	online bool
}

// Simulator implements dxl.Conn.
type Simulator struct {
	mu      sync.Mutex
	devices map[byte]*device
}

func New(devices ...Device) *Simulator {
	s := &Simulator{devices: make(map[byte]*device, len(devices))}
	for _, d := range devices {
		dev := &device{class: d.Class, online: true}
		r := d.Class.Registers
		dev.put32(r.PresentPosition, d.Position)
		dev.put32(r.GoalPosition, d.Position)
		s.devices[d.ID] = dev
	}
	return s
}

// SetOnline connects or disconnects a device from the bus.
func (s *Simulator) SetOnline(id uint8, online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.devices[id]; ok {
		d.online = online
	}
}

// Peek returns raw control table memory, bypassing indirect mapping.
func (s *Simulator) Peek(id uint8, addr, length uint16) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[id]
	if !ok {
		return nil
	}
	return append([]byte(nil), d.mem[addr:addr+length]...)
}

func (s *Simulator) Run(ctx context.Context) error {
	t := time.NewTicker(stepSize)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		s.Step()
	}
}

// Step advances every torque-enabled device one step toward its goal
// position.
func (s *Simulator) Step() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.devices {
		d.step()
	}
}

func (d *device) step() {
	r := d.class.Registers
	if d.mem[r.TorqueEnable] == 0 {
		d.put16(r.PresentCurrent, 0)
		return
	}
	pos := d.get32(r.PresentPosition)
	delta := clamp(d.get32(r.GoalPosition)-pos, maxStep)
	d.put32(r.PresentPosition, pos+delta)

	limit := int32(d.get16(r.GoalCurrent))
	if limit < 0 {
		limit = -limit
	}
	d.put16(r.PresentCurrent, int16(clamp(delta*currentGain, limit)))
}

func clamp(v, limit int32) int32 {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}

// resolve maps an indirect data address to the register it mirrors.
func (d *device) resolve(addr uint16) uint16 {
	in := d.class.Indirect
	if addr >= in.ReadData && addr < in.ReadData+indirectSlots {
		slot := in.ReadAddress + 2*(addr-in.ReadData)
		return binary.LittleEndian.Uint16(d.mem[slot:])
	}
	return addr
}

func (d *device) read(addr, length uint16) ([]byte, byte) {
	if int(addr)+int(length) > memSize {
		return nil, errDataLength
	}
	out := make([]byte, length)
	for i := range out {
		out[i] = d.mem[d.resolve(addr+uint16(i))]
	}
	return out, 0
}

func (d *device) write(addr uint16, data []byte) byte {
	if int(addr)+len(data) > memSize {
		return errDataLength
	}
	torque := d.mem[d.class.Registers.TorqueEnable] != 0
	for i := range data {
		if torque && d.resolve(addr+uint16(i)) < eepromEnd {
			return errAccess
		}
	}
	for i, b := range data {
		d.mem[d.resolve(addr+uint16(i))] = b
	}
	return 0
}

func (d *device) get16(addr uint16) int16 {
	return int16(binary.LittleEndian.Uint16(d.mem[addr:]))
}

func (d *device) put16(addr uint16, v int16) {
	binary.LittleEndian.PutUint16(d.mem[addr:], uint16(v))
}

func (d *device) get32(addr uint16) int32 {
	return int32(binary.LittleEndian.Uint32(d.mem[addr:]))
}

func (d *device) put32(addr uint16, v int32) {
	binary.LittleEndian.PutUint32(d.mem[addr:], uint32(v))
}

func (s *Simulator) lookup(id byte) (*device, bool) {
	d, ok := s.devices[id]
	if !ok || !d.online {
		return nil, false
	}
	return d, true
}

func (s *Simulator) Transact(req []byte, responses int) ([][]byte, error) {
	pkt, err := dxl.Decode(req)
	if err != nil {
		// A garbled packet goes unanswered.
		return nil, dxl.ErrTimeout
	}
	s.mu.Lock()
	out := s.execute(pkt)
	s.mu.Unlock()
	n := len(req)
	for _, r := range out {
		n += len(r)
	}
	time.Sleep(time.Duration(n) * byteTime)
	if len(out) < responses {
		return out, dxl.ErrTimeout
	}
	return out[:responses], nil
}

func (s *Simulator) execute(pkt dxl.Packet) [][]byte {
	p := pkt.Params
	switch pkt.Instruction {
	case dxl.InstPing:
		if _, ok := s.lookup(pkt.ID); ok {
			return [][]byte{dxl.EncodeStatus(pkt.ID, 0, nil)}
		}
	case dxl.InstRead:
		d, ok := s.lookup(pkt.ID)
		if !ok {
			return nil
		}
		if len(p) != 4 {
			return [][]byte{dxl.EncodeStatus(pkt.ID, errDataLength, nil)}
		}
		data, code := d.read(le16(p[0:]), le16(p[2:]))
		return [][]byte{dxl.EncodeStatus(pkt.ID, code, data)}
	case dxl.InstWrite:
		d, ok := s.lookup(pkt.ID)
		if !ok {
			return nil
		}
		if len(p) < 2 {
			return [][]byte{dxl.EncodeStatus(pkt.ID, errDataLength, nil)}
		}
		return [][]byte{dxl.EncodeStatus(pkt.ID, d.write(le16(p[0:]), p[2:]), nil)}
	case dxl.InstBulkRead:
		var out [][]byte
		for ; len(p) >= 5; p = p[5:] {
			d, ok := s.lookup(p[0])
			if !ok {
				// Later devices wait for this one and time out too.
				break
			}
			data, code := d.read(le16(p[1:]), le16(p[3:]))
			out = append(out, dxl.EncodeStatus(p[0], code, data))
		}
		return out
	case dxl.InstBulkWrite:
		for len(p) >= 5 {
			n := int(le16(p[3:]))
			if len(p) < 5+n {
				break
			}
			if d, ok := s.lookup(p[0]); ok {
				d.write(le16(p[1:]), p[5:5+n])
			}
			p = p[5+n:]
		}
	default:
		if pkt.ID != dxl.BroadcastID {
			if _, ok := s.lookup(pkt.ID); ok {
				return [][]byte{dxl.EncodeStatus(pkt.ID, errInstruction, nil)}
			}
		}
	}
	return nil
}

func le16(b []byte) uint16 {
	return binary.LittleEndian.Uint16(b)
}

// Bank returns devices for the given actuators, all starting at position.
func Bank(actuators []actuator.Actuator, position int32) []Device {
	out := make([]Device, len(actuators))
	for i, a := range actuators {
		out[i] = Device{ID: a.ID, Class: a.Class, Position: position}
	}
	return out
}
