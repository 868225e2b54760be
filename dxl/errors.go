package dxl

import (
	"errors"
	"fmt"
)

var (
	ErrTimeout   = errors.New("communication timeout")
	ErrBadPacket = errors.New("invalid packet format")
	ErrCRC       = errors.New("packet crc mismatch")
	ErrNoData    = errors.New("no bulk read data for device")
	ErrBusClosed = errors.New("bus is closed")
)

// CommError is a failure to complete a transaction on the wire.
type CommError struct {
	Op  string
	Err error
}

func (e *CommError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CommError) Unwrap() error {
	return e.Err
}

var statusErrors = map[byte]string{
	1: "result fail",
	2: "instruction error",
	3: "crc error",
	4: "data range error",
	5: "data length error",
	6: "data limit error",
	7: "access error",
}

// StatusError is an error reported by a device in its status packet.
type StatusError struct {
	ID   byte
	Code byte
}

func (e *StatusError) Error() string {
	msg, ok := statusErrors[e.Code]
	if !ok {
		msg = fmt.Sprintf("error %d", e.Code)
	}
	return fmt.Sprintf("device %d: %s", e.ID, msg)
}

// statusError returns nil unless the low seven bits of errByte are set.
// Bit 7 is the hardware alert flag and does not fail the instruction.
func statusError(id, errByte byte) error {
	if code := errByte & 0x7F; code != 0 {
		return &StatusError{ID: id, Code: code}
	}
	return nil
}
