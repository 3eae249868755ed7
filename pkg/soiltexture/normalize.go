package soiltexture

import "math"

// Tolerance is how far, in percentage points, the total may drift from 100
// before the fractions are rescaled.
const Tolerance = 5.0

// Normalize rescales c to sum to 100 when its total is off by more than
// Tolerance. ok is false when the total is exactly zero.
func Normalize(c Composition) (Composition, bool) {
	total := c.Total()
	if total == 0 {
		return c, false
	}
	if math.Abs(100-total) > Tolerance {
		return Composition{
			Sand: c.Sand / total * 100,
			Silt: c.Silt / total * 100,
			Clay: c.Clay / total * 100,
		}, true
	}
	return c, true
}
