package actuator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// DeviceState is one device's entry in a telemetry frame.
type DeviceState struct {
	Index int
	ID    uint8
	Present
}

// Frame is the telemetry produced by one successful read cycle.
type Frame struct {
	At      time.Time
	Devices []DeviceState
	// Stats are the scheduler counters as of this frame.
	Stats Stats
}

// Stats counts cycles and failures since startup.
type Stats struct {
	Cycles      uint64
	WriteErrors uint64
	ReadErrors  uint64
	// Dropped counts commands rejected because the queue was full.
	Dropped uint64
}

type FrameCallback func(frame Frame)

type queued struct {
	cmd Command
	p   *Proxy
}

type Options struct {
	// QueueSize bounds the number of commands waiting for the next
	// write cycle. Defaults to 256.
	QueueSize int
	// LogEvery limits logging of a repeated cycle error to one line per
	// this many occurrences. Defaults to 100.
	LogEvery int
}

// Scheduler runs the bus loop. It is the only user of the transport and
// the only writer of proxy state once the registry is built.
type Scheduler struct {
	tr       Transport
	reg      *Registry
	queue    chan queued
	callback FrameCallback

	mu    sync.Mutex
	stats Stats

	logEvery int
	lastErr  string
	repeats  int
}

func NewScheduler(tr Transport, reg *Registry, callback FrameCallback, opts Options) *Scheduler {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.LogEvery <= 0 {
		opts.LogEvery = 100
	}
	if callback == nil {
		callback = func(Frame) {}
	}
	return &Scheduler{
		tr:       tr,
		reg:      reg,
		queue:    make(chan queued, opts.QueueSize),
		callback: callback,
		logEvery: opts.LogEvery,
	}
}

func (s *Scheduler) Registry() *Registry {
	return s.reg
}

func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Scheduler) count(f func(*Stats)) {
	s.mu.Lock()
	f(&s.stats)
	s.mu.Unlock()
}

// Submit validates cmd and queues it for the next write cycle. It never
// blocks and is safe to call from any goroutine.
func (s *Scheduler) Submit(cmd Command) error {
	p, err := cmd.check(s.reg)
	if err != nil {
		return err
	}
	select {
	case s.queue <- queued{cmd: cmd, p: p}:
		return nil
	default:
		s.count(func(st *Stats) { st.Dropped++ })
		return ErrQueueFull
	}
}

// drain applies queued commands in arrival order.
func (s *Scheduler) drain() {
	for {
		select {
		case q := <-s.queue:
			q.cmd.apply(q.p)
		default:
			return
		}
	}
}

func (s *Scheduler) discard() {
	for {
		select {
		case <-s.queue:
		default:
			return
		}
	}
}

// WriteCycle applies queued commands and pending torque and mode changes,
// then sends every proxy's goals in one bulk write.
func (s *Scheduler) WriteCycle() error {
	s.drain()
	return s.writeCycle()
}

func (s *Scheduler) writeCycle() error {
	s.tr.ClearBulkWrite()
	for _, p := range s.reg.proxies {
		v, ok := p.pendingTorqueEnable.take()
		if !ok {
			continue
		}
		if err := p.SetTorqueEnable(v == 1); err != nil {
			return &CycleError{Phase: "torque enable", Err: fmt.Errorf("device %d: %w", p.id, err)}
		}
	}
	for _, p := range s.reg.proxies {
		mode, ok := p.pendingMode.take()
		if !ok {
			continue
		}
		if err := s.changeMode(p, mode); err != nil {
			return &CycleError{Phase: "mode change", Err: fmt.Errorf("device %d: %w", p.id, err)}
		}
	}
	for _, p := range s.reg.proxies {
		if err := s.tr.AddBulkWrite(p.id, p.class.Indirect.WriteData, p.EncodeWritePayload()); err != nil {
			return &CycleError{Phase: "write cycle", Err: err}
		}
	}
	if err := s.tr.BulkWrite(); err != nil {
		return &CycleError{Phase: "write cycle", Err: err}
	}
	return nil
}

// changeMode disables torque, writes the mode and re-enables torque. The
// firmware rejects mode writes while torque is on. Torque is re-enabled
// even if the mode write fails; the first error is returned.
func (s *Scheduler) changeMode(p *Proxy, mode uint8) error {
	var first error
	for _, write := range []func() error{
		func() error { return p.SetTorqueEnable(false) },
		func() error { return p.SetOperatingMode(mode) },
		func() error { return p.SetTorqueEnable(true) },
	} {
		if err := write(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// ReadCycle reads every proxy's window in one bulk read. Present state is
// only updated if every device's data is available.
func (s *Scheduler) ReadCycle() (Frame, error) {
	if err := s.tr.BulkRead(); err != nil {
		return Frame{}, &CycleError{Phase: "read cycle", Err: err}
	}
	raw := make([][]byte, len(s.reg.proxies))
	for i, p := range s.reg.proxies {
		b, err := s.tr.BulkReadData(p.id, p.class.Indirect.ReadData, WindowSize)
		if err != nil {
			return Frame{}, &CycleError{Phase: "read cycle", Err: err}
		}
		raw[i] = b
	}
	frame := Frame{At: time.Now(), Devices: make([]DeviceState, len(raw))}
	for i, p := range s.reg.proxies {
		present, err := p.DecodeReadResult(raw[i])
		if err != nil {
			return Frame{}, &CycleError{Phase: "read cycle", Err: err}
		}
		frame.Devices[i] = DeviceState{Index: p.index, ID: p.id, Present: present}
	}
	return frame, nil
}

// Cycle runs one write cycle and one read cycle. A failed write cycle
// skips the read; a failed read skips telemetry.
func (s *Scheduler) Cycle() {
	s.count(func(st *Stats) { st.Cycles++ })
	if err := s.WriteCycle(); err != nil {
		s.count(func(st *Stats) { st.WriteErrors++ })
		s.logCycleError(err)
		return
	}
	frame, err := s.ReadCycle()
	if err != nil {
		s.count(func(st *Stats) { st.ReadErrors++ })
		s.logCycleError(err)
		return
	}
	if s.lastErr != "" {
		log.Printf("bus recovered after %d failed cycles", s.repeats)
		s.lastErr, s.repeats = "", 0
	}
	frame.Stats = s.Stats()
	s.callback(frame)
}

func (s *Scheduler) logCycleError(err error) {
	msg := err.Error()
	if msg != s.lastErr {
		s.lastErr, s.repeats = msg, 1
		log.Print(msg)
		return
	}
	s.repeats++
	if s.repeats%s.logEvery == 0 {
		log.Printf("%s (%d times)", msg, s.repeats)
	}
}

// Run cycles as fast as the bus allows until ctx is canceled, then runs
// the shutdown sequence.
func (s *Scheduler) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		s.Cycle()
	}
	log.Print("shutdown; sending safe goals")
	return s.Shutdown()
}

// Shutdown discards queued and pending commands, commands every proxy to
// its startup position with zero current and sends one final bulk write.
func (s *Scheduler) Shutdown() error {
	s.discard()
	for _, p := range s.reg.proxies {
		p.pendingTorqueEnable = NoChange
		p.pendingMode = NoChange
		p.UpdateGoalPosition(0)
		p.UpdateGoalCurrent(0)
	}
	return s.writeCycle()
}
