package utils

import (
	"math"
	"testing"

	"go.viam.com/test"
)

func TestPositiveFinite(t *testing.T) {
	test.That(t, PositiveFinite(0.005), test.ShouldBeTrue)
	test.That(t, PositiveFinite(float32(2)), test.ShouldBeTrue)
	test.That(t, PositiveFinite(math.SmallestNonzeroFloat64), test.ShouldBeTrue)
	test.That(t, PositiveFinite(0.0), test.ShouldBeFalse)
	test.That(t, PositiveFinite(-1.0), test.ShouldBeFalse)
	test.That(t, PositiveFinite(math.NaN()), test.ShouldBeFalse)
	test.That(t, PositiveFinite(math.Inf(1)), test.ShouldBeFalse)
	test.That(t, PositiveFinite(float32(math.Inf(1))), test.ShouldBeFalse)
}
