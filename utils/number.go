package utils

import (
	"math"

	"golang.org/x/exp/constraints"
)

// PositiveFinite reports whether v is greater than zero and neither NaN nor infinite.
func PositiveFinite[T constraints.Float](v T) bool {
	f := float64(v)
	return f > 0 && !math.IsInf(f, 1)
}
