package sim

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/w1xm/servo_bridge/actuator"
	"github.com/w1xm/servo_bridge/dxl"
)

func bank(ids ...uint8) []actuator.Actuator {
	var out []actuator.Actuator
	for _, id := range ids {
		out = append(out, actuator.Actuator{ID: id, Class: actuator.XC330})
	}
	return out
}

func TestRegistryOverSimulatedBus(t *testing.T) {
	acts := bank(0, 1, 2)
	s := New(Bank(acts, 2048)...)
	bus := dxl.NewBus(s)

	reg, err := actuator.NewRegistry(bus, acts)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	want := []float64{2048 * 0.087891, 2048 * 0.087891, 2048 * 0.087891}
	if diff := cmp.Diff(reg.InitialPositions(), want); diff != "" {
		t.Errorf("InitialPositions: got(-)/want(+):\n%s", diff)
	}
	// Construction leaves torque on in current-based position mode.
	if got := s.Peek(1, 64, 1)[0]; got != 1 {
		t.Errorf("torque enable = %d, want 1", got)
	}
	if got := s.Peek(1, 11, 1)[0]; got != actuator.ModeCurrentPosition {
		t.Errorf("operating mode = %d, want %d", got, actuator.ModeCurrentPosition)
	}

	var frames []actuator.Frame
	sched := actuator.NewScheduler(bus, reg, func(f actuator.Frame) { frames = append(frames, f) }, actuator.Options{})
	if err := sched.Submit(actuator.Command{Kind: actuator.KindPosition, Index: 1, Position: 8.79, Torque: 0.2}); err != nil {
		t.Fatal(err)
	}
	sched.Cycle()
	if got := binary.LittleEndian.Uint32(s.Peek(1, 116, 4)); got != 2148 {
		t.Errorf("goal position register = %d, want 2148", got)
	}
	// 0.2 N·m at 0.63/740 N·m per mA.
	if got := int16(binary.LittleEndian.Uint16(s.Peek(1, 102, 2))); got != 234 {
		t.Errorf("goal current register = %d, want 234", got)
	}

	for i := 0; i < 5; i++ {
		s.Step()
	}
	sched.Cycle()
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	d := frames[1].Devices[1]
	if math.Abs(d.Position-8.7891) > 1e-9 {
		t.Errorf("device 1 position = %v, want 8.7891", d.Position)
	}
	if p := frames[1].Devices[0].Position; p != 0 {
		t.Errorf("device 0 moved to %v", p)
	}
}

func TestModeChangeOverSimulatedBus(t *testing.T) {
	acts := bank(5)
	s := New(Bank(acts, 0)...)
	bus := dxl.NewBus(s)
	reg, err := actuator.NewRegistry(bus, acts)
	if err != nil {
		t.Fatal(err)
	}

	// The device refuses mode writes while torque is on.
	var se *dxl.StatusError
	if err := bus.Write1(5, 11, actuator.ModePosition); !errors.As(err, &se) || se.Code != errAccess {
		t.Errorf("direct mode write = %v, want access error", err)
	}

	sched := actuator.NewScheduler(bus, reg, nil, actuator.Options{})
	sched.Submit(actuator.Command{Kind: actuator.KindMode, ID: 5, Value: actuator.ModePosition})
	if err := sched.WriteCycle(); err != nil {
		t.Fatalf("WriteCycle: %v", err)
	}
	if got := s.Peek(5, 11, 1)[0]; got != actuator.ModePosition {
		t.Errorf("operating mode = %d, want %d", got, actuator.ModePosition)
	}
	if got := s.Peek(5, 64, 1)[0]; got != 1 {
		t.Errorf("torque enable = %d, want 1", got)
	}
}

func TestOfflineDevice(t *testing.T) {
	acts := bank(1, 2)
	s := New(Bank(acts, 0)...)
	s.SetOnline(2, false)
	if _, err := actuator.NewRegistry(dxl.NewBus(s), acts); !errors.Is(err, dxl.ErrTimeout) {
		t.Errorf("NewRegistry = %v, want timeout", err)
	}

	s.SetOnline(2, true)
	bus := dxl.NewBus(s)
	reg, err := actuator.NewRegistry(bus, acts)
	if err != nil {
		t.Fatal(err)
	}
	var frames int
	sched := actuator.NewScheduler(bus, reg, func(actuator.Frame) { frames++ }, actuator.Options{})
	s.SetOnline(1, false)
	sched.Cycle()
	if got := sched.Stats(); got.ReadErrors != 1 || frames != 0 {
		t.Errorf("stats = %+v after %d frames, want one read error", got, frames)
	}
	s.SetOnline(1, true)
	sched.Cycle()
	if frames != 1 {
		t.Errorf("got %d frames after recovery, want 1", frames)
	}
}

func TestUnknownInstruction(t *testing.T) {
	s := New(Device{ID: 1, Class: actuator.XM430})
	resp, err := s.Transact(dxl.Encode(1, 0x08, nil), 1)
	if err != nil {
		t.Fatal(err)
	}
	p, err := dxl.Decode(resp[0])
	if err != nil {
		t.Fatal(err)
	}
	if p.Error != errInstruction {
		t.Errorf("error = %d, want %d", p.Error, errInstruction)
	}
	if _, err := s.Transact(dxl.Encode(9, dxl.InstPing, nil), 1); !errors.Is(err, dxl.ErrTimeout) {
		t.Errorf("ping of missing device = %v, want timeout", err)
	}
}
