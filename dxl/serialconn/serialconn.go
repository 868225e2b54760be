// Package serialconn connects a dxl.Bus to a local serial adapter.
package serialconn

import (
	"fmt"
	"log"
	"time"

	"github.com/tarm/serial"
	"github.com/w1xm/servo_bridge/dxl"
)

// Port is a serial port carrying protocol 2.0 transactions.
type Port struct {
	*dxl.StreamConn
	s    *serial.Port
	name string
}

// Open opens the port. Timeout bounds each response packet.
func Open(name string, baud int, timeout time.Duration) (*Port, error) {
	c := &serial.Config{
		Name: name,
		Baud: baud,
		// Reads return after this long without data, so a missing device
		// surfaces as a transaction timeout instead of a hang.
		ReadTimeout: 5 * time.Millisecond,
	}
	s, err := serial.OpenPort(c)
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", name, err)
	}
	if err := s.Flush(); err != nil {
		log.Printf("flushing %q: %v", name, err)
	}
	log.Printf("opened %q at %d baud", name, baud)
	return &Port{
		StreamConn: dxl.NewStreamConn(s, timeout),
		s:          s,
		name:       name,
	}, nil
}

func (p *Port) Name() string {
	return p.name
}

func (p *Port) Close() error {
	return p.s.Close()
}
