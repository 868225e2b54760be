package actuator

import (
	"errors"
	"fmt"
)

var (
	ErrConversion    = errors.New("conversion failed")
	ErrUnknownDevice = errors.New("unknown device")
	ErrQueueFull     = errors.New("command queue full")
)

// CycleError is a failed write or read cycle. The scheduler logs it and
// moves on to the next cycle.
type CycleError struct {
	Phase string
	Err   error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

func (e *CycleError) Unwrap() error {
	return e.Err
}
