package libio_test

import (
	"math/rand"

	"github.com/chewxy/math32"
)

func randomFloats(count int, min, max float32) []float32 {
	rand.Seed(0)
	result := make([]float32, count)
	for i := range result {
		result[i] = min + rand.Float32()*(max-min)
	}
	return result
}

// rgbeError returns the largest error of a against b relative to the
// brightest channel of each texel.
func rgbeError(a, b []float32, channels int) float32 {
	var worst float32
	for i := 0; i+2 < len(a); i += channels {
		max := math32.Max(b[i], math32.Max(b[i+1], b[i+2]))
		if max == 0 {
			continue
		}
		for c := 0; c < 3; c++ {
			worst = math32.Max(worst, math32.Abs(a[i+c]-b[i+c])/max)
		}
	}
	return worst
}
