package actuator

import (
	"fmt"
	"math"
)

// ToRaw converts a physical quantity into register units, truncating
// toward zero.
func ToRaw(value, ratio float64) (int32, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("%w: value %v", ErrConversion, value)
	}
	if ratio == 0 || math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return 0, fmt.Errorf("%w: ratio %v", ErrConversion, ratio)
	}
	raw := math.Trunc(value / ratio)
	if raw > math.MaxInt32 || raw < math.MinInt32 {
		return 0, fmt.Errorf("%w: %v / %v overflows", ErrConversion, value, ratio)
	}
	return int32(raw), nil
}

// ToPhysical converts register units into a physical quantity.
func ToPhysical(raw int32, ratio float64) float64 {
	return float64(raw) * ratio
}

// TorqueToRaw converts a torque into a raw goal current through the
// torque-per-current and current-per-unit ratios.
func TorqueToRaw(torque, torqueRatio, currentRatio float64) (int32, error) {
	return ToRaw(torque, torqueRatio*currentRatio)
}
