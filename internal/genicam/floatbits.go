package genicam

import "math"

func int32ToFloat32(i int32) float32 { return math.Float32frombits(uint32(i)) }
func float32ToInt32(f float32) int32 { return int32(math.Float32bits(f)) }
func int64ToFloat64(i int64) float64 { return math.Float64frombits(uint64(i)) }
func float64ToInt64(f float64) int64 { return int64(math.Float64bits(f)) }

// clamp snaps value into [min,max] and, if inc > 0, to the nearest
// min + k*inc, per the Integer/Float wrapping-node rule (§4.3 step 3).
func clamp(value, min, max, inc float64) float64 {
	if value < min {
		value = min
	}
	if value > max {
		value = max
	}
	if inc > 0 {
		k := math.Round((value - min) / inc)
		value = min + k*inc
	}
	return value
}
