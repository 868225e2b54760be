// Package router decodes controller command messages and hands them to the
// bus scheduler.
//
// Messages are comma separated and start with a tag:
//
//	p,<index>,<degrees>,<torque>   goal position and goal torque
//	c,<index>,<torque>             goal torque only
//	t,<id>,<0|1>                   torque enable
//	co,<id>,<mode>                 operating mode change
package router

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/w1xm/servo_bridge/actuator"
)

var ErrInvalidCommand = errors.New("invalid command")

// ParseError is a command field that could not be decoded.
type ParseError struct {
	Field string
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing %s %q: %v", e.Field, e.Input, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

var arity = map[string]int{
	"p":  4,
	"c":  3,
	"t":  3,
	"co": 3,
}

// Parse decodes one command message. It does not check that the addressed
// device exists.
func Parse(msg string) (actuator.Command, error) {
	fields := strings.Split(strings.TrimSpace(msg), ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	tag := fields[0]
	n, ok := arity[tag]
	if !ok {
		return actuator.Command{}, fmt.Errorf("%w: unknown tag %q", ErrInvalidCommand, tag)
	}
	if len(fields) != n {
		return actuator.Command{}, fmt.Errorf("%w: %q takes %d fields, got %d", ErrInvalidCommand, tag, n, len(fields))
	}

	var (
		cmd actuator.Command
		err error
	)
	switch tag {
	case "p":
		cmd.Kind = actuator.KindPosition
		if cmd.Index, err = parseIndex(fields[1]); err != nil {
			return actuator.Command{}, err
		}
		if cmd.Position, err = parseFloat("position", fields[2]); err != nil {
			return actuator.Command{}, err
		}
		if cmd.Torque, err = parseFloat("torque", fields[3]); err != nil {
			return actuator.Command{}, err
		}
	case "c":
		cmd.Kind = actuator.KindCurrent
		if cmd.Index, err = parseIndex(fields[1]); err != nil {
			return actuator.Command{}, err
		}
		if cmd.Torque, err = parseFloat("torque", fields[2]); err != nil {
			return actuator.Command{}, err
		}
	case "t":
		cmd.Kind = actuator.KindTorqueEnable
		if cmd.ID, err = parseByte("id", fields[1]); err != nil {
			return actuator.Command{}, err
		}
		if cmd.Value, err = parseByte("torque enable", fields[2]); err != nil {
			return actuator.Command{}, err
		}
	case "co":
		cmd.Kind = actuator.KindMode
		if cmd.ID, err = parseByte("id", fields[1]); err != nil {
			return actuator.Command{}, err
		}
		if cmd.Value, err = parseByte("mode", fields[2]); err != nil {
			return actuator.Command{}, err
		}
	}
	return cmd, nil
}

func parseIndex(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, &ParseError{Field: "index", Input: s, Err: err}
	}
	return v, nil
}

func parseFloat(field, s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &ParseError{Field: field, Input: s, Err: err}
	}
	return v, nil
}

func parseByte(field, s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, &ParseError{Field: field, Input: s, Err: err}
	}
	return uint8(v), nil
}
