// Package telemetry encodes scheduler frames for the controller and fans
// them out to sinks and status subscribers.
package telemetry

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/w1xm/servo_bridge/actuator"
)

// Sink receives encoded telemetry messages, one per call.
type Sink interface {
	Send(msg string) error
}

type DeviceStatus struct {
	Index    int
	ID       uint8
	Position float64
	Current  float64
	Torque   float64
}

// Status is the JSON form of a frame served to status clients.
type Status struct {
	Time    time.Time
	Devices []DeviceStatus
	Stats   actuator.Stats
}

func NewStatus(frame actuator.Frame) Status {
	s := Status{
		Time:    frame.At,
		Devices: make([]DeviceStatus, len(frame.Devices)),
		Stats:   frame.Stats,
	}
	for i, d := range frame.Devices {
		s.Devices[i] = DeviceStatus{
			Index:    d.Index,
			ID:       d.ID,
			Position: d.Position,
			Current:  d.Current,
			Torque:   d.Torque,
		}
	}
	return s
}

// Encode formats one device's telemetry as "<index>,<position>,<torque>".
func Encode(d actuator.DeviceState) string {
	return strconv.Itoa(d.Index) + "," + formatFloat(d.Position) + "," + formatFloat(d.Torque)
}

// EncodeInitial formats startup positions in degrees, comma separated.
func EncodeInitial(positions []float64) string {
	parts := make([]string, len(positions))
	for i, p := range positions {
		parts[i] = fmt.Sprintf("%.2f", p)
	}
	return strings.Join(parts, ",")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

type Publisher struct {
	sinks   []Sink
	lastErr string

	mu     sync.RWMutex
	latest Status
	subs   map[chan Status]struct{}
}

func NewPublisher(sinks ...Sink) *Publisher {
	return &Publisher{
		sinks: sinks,
		subs:  make(map[chan Status]struct{}),
	}
}

// Publish sends one message per device to every sink and updates status
// subscribers. It is called from the bus loop only.
func (p *Publisher) Publish(frame actuator.Frame) {
	for _, d := range frame.Devices {
		p.send(Encode(d))
	}

	status := NewStatus(frame)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.latest = status
	for ch := range p.subs {
		// Subscribers only want the newest status.
		select {
		case <-ch:
		default:
		}
		ch <- status
	}
}

// PublishInitial sends the startup positions to every sink.
func (p *Publisher) PublishInitial(positions []float64) {
	p.send(EncodeInitial(positions))
}

func (p *Publisher) send(msg string) {
	for _, s := range p.sinks {
		err := s.Send(msg)
		if err == nil {
			continue
		}
		// An unreachable controller fails every send.
		if e := err.Error(); e != p.lastErr {
			log.Printf("sending telemetry: %v", err)
			p.lastErr = e
		}
	}
}

func (p *Publisher) Latest() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest
}

// Subscribe returns a channel that receives each new status, dropping any
// the reader has not yet consumed. cancel must be called when done.
func (p *Publisher) Subscribe() (updates <-chan Status, cancel func()) {
	ch := make(chan Status, 1)
	p.mu.Lock()
	p.subs[ch] = struct{}{}
	p.mu.Unlock()
	return ch, func() {
		p.mu.Lock()
		delete(p.subs, ch)
		p.mu.Unlock()
	}
}
