package actuator

import (
	"errors"
	"math"
	"testing"
)

func TestToRaw(t *testing.T) {
	for _, test := range []struct {
		value, ratio float64
		want         int32
	}{
		{8.79, 0.087891, 100},
		{-8.79, 0.087891, -100},
		{1.9, 1, 1},
		{-1.9, 1, -1},
		{0, 0.087891, 0},
		{0.5, 0.63 / 740, 587},
	} {
		got, err := ToRaw(test.value, test.ratio)
		if err != nil {
			t.Errorf("ToRaw(%v, %v): %v", test.value, test.ratio, err)
			continue
		}
		if got != test.want {
			t.Errorf("ToRaw(%v, %v) = %d, want %d", test.value, test.ratio, got, test.want)
		}
	}
}

func TestToRawErrors(t *testing.T) {
	for _, test := range []struct {
		name         string
		value, ratio float64
	}{
		{"nan", math.NaN(), 1},
		{"inf", math.Inf(1), 1},
		{"zero ratio", 1, 0},
		{"overflow", 1e12, 0.001},
	} {
		t.Run(test.name, func(t *testing.T) {
			if _, err := ToRaw(test.value, test.ratio); !errors.Is(err, ErrConversion) {
				t.Errorf("got %v, want ErrConversion", err)
			}
		})
	}
}

func TestRoundTripWithinOneUnit(t *testing.T) {
	for _, ratio := range []float64{0.087891, 1, 2.69, 0.63 / 740 * 2.69} {
		for _, p := range []float64{-720, -33.3, -0.01, 0, 0.04, 1, 12.345, 90, 359.99, 1000} {
			raw, err := ToRaw(p, ratio)
			if err != nil {
				t.Fatalf("ToRaw(%v, %v): %v", p, ratio, err)
			}
			if d := math.Abs(ToPhysical(raw, ratio) - p); d >= ratio {
				t.Errorf("round trip of %v with ratio %v off by %v", p, ratio, d)
			}
		}
	}
}

func TestTorqueToRaw(t *testing.T) {
	got, err := TorqueToRaw(0.63, 0.63/740, 1)
	if err != nil {
		t.Fatal(err)
	}
	// 0.63 / (0.63/740) is 739.999... in floating point and truncates.
	if got != 739 && got != 740 {
		t.Errorf("TorqueToRaw = %d, want 739 or 740", got)
	}
	want, _ := ToRaw(0.2, 0.63/740*2.69)
	if got, _ := TorqueToRaw(0.2, 0.63/740, 2.69); got != want {
		t.Errorf("TorqueToRaw(0.2) = %d, want %d", got, want)
	}
}
