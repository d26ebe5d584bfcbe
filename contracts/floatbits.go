package contracts

import "math"

func float64ToBits(f float64) uint64 { return math.Float64bits(f) }
func bitsToFloat64(b uint64) float64 { return math.Float64frombits(b) }
