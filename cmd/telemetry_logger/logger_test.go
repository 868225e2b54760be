package main

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/w1xm/servo_bridge/actuator"
	"github.com/w1xm/servo_bridge/telemetry"
)

func TestPoints(t *testing.T) {
	at := time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)
	ps := points(telemetry.Status{
		Time: at,
		Devices: []telemetry.DeviceStatus{
			{Index: 0, ID: 3, Position: 1},
			{Index: 1, ID: 4, Position: 2},
		},
		Stats: actuator.Stats{Cycles: 10},
	})
	var names []string
	for _, p := range ps {
		names = append(names, p.Name())
		if !p.Time().Equal(at) {
			t.Errorf("%s at %v, want %v", p.Name(), p.Time(), at)
		}
	}
	want := []string{"servo.device", "servo.device", "servo.bus"}
	if diff := cmp.Diff(names, want); diff != "" {
		t.Errorf("measurements: got(-)/want(+):\n%s", diff)
	}
}
