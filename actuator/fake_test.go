package actuator

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var errBus = errors.New("bus fault")

// fakeBus records every transport call in order and serves read windows
// from memory.
type fakeBus struct {
	calls   []string
	windows map[uint8][]byte
	reads   []uint8
	writes  map[uint8][]byte

	bulkWrites [][]string
	pending    []string

	readErr  error
	writeErr error
	failID   map[uint8]bool
	// failAddr fails single writes to these addresses on every device.
	failAddr map[uint16]bool
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		windows: make(map[uint8][]byte),
		writes:  make(map[uint8][]byte),
		failID:   make(map[uint8]bool),
		failAddr: make(map[uint16]bool),
	}
}

// setWindow sets the raw current and position a device reports.
func (f *fakeBus) setWindow(id uint8, current int16, position int32) {
	b := make([]byte, WindowSize)
	binary.LittleEndian.PutUint16(b[0:2], uint16(current))
	binary.LittleEndian.PutUint32(b[2:6], uint32(position))
	f.windows[id] = b
}

func (f *fakeBus) Write1(id uint8, addr uint16, v uint8) error {
	f.calls = append(f.calls, fmt.Sprintf("write1 %d %d %d", id, addr, v))
	if f.failID[id] || f.failAddr[addr] {
		return errBus
	}
	return nil
}

func (f *fakeBus) Write2(id uint8, addr uint16, v uint16) error {
	f.calls = append(f.calls, fmt.Sprintf("write2 %d %d %d", id, addr, v))
	if f.failID[id] || f.failAddr[addr] {
		return errBus
	}
	return nil
}

func (f *fakeBus) ClearBulkWrite() {
	f.calls = append(f.calls, "clear")
	f.pending = nil
}

func (f *fakeBus) AddBulkWrite(id uint8, addr uint16, data []byte) error {
	f.calls = append(f.calls, fmt.Sprintf("add %d %d", id, addr))
	f.pending = append(f.pending, fmt.Sprintf("%d % x", id, data))
	f.writes[id] = append([]byte(nil), data...)
	return nil
}

func (f *fakeBus) BulkWrite() error {
	f.calls = append(f.calls, "bulk write")
	if f.writeErr != nil {
		return f.writeErr
	}
	f.bulkWrites = append(f.bulkWrites, f.pending)
	return nil
}

func (f *fakeBus) AddBulkRead(id uint8, addr, length uint16) error {
	f.calls = append(f.calls, fmt.Sprintf("register %d %d %d", id, addr, length))
	f.reads = append(f.reads, id)
	return nil
}

func (f *fakeBus) BulkRead() error {
	f.calls = append(f.calls, "bulk read")
	return f.readErr
}

func (f *fakeBus) BulkReadData(id uint8, addr, length uint16) ([]byte, error) {
	w, ok := f.windows[id]
	if !ok {
		return nil, fmt.Errorf("device %d: no data", id)
	}
	base := XC330.Indirect.ReadData
	return append([]byte(nil), w[addr-base:addr-base+length]...), nil
}

// newTestRegistry builds XC330 proxies for ids, each starting at the
// given raw position.
func newTestRegistry(f *fakeBus, start int32, ids ...uint8) *Registry {
	var acts []Actuator
	for _, id := range ids {
		f.setWindow(id, 0, start)
		acts = append(acts, Actuator{ID: id, Class: XC330})
	}
	r, err := NewRegistry(f, acts)
	if err != nil {
		panic(err)
	}
	f.calls = nil
	return r
}
