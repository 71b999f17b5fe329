// Package observe implements the Observation Cache (component F): a
// perceptual-hash/pixel-match fast path that avoids re-dumping the view
// tree when the screen has not meaningfully changed, grounded on the
// teacher's device_monitor.go polling discipline and pkg/cache/service.go
// in-memory cache shape, generalised to the two-stage
// hash-then-pixelmatch filter §4.6 specifies.
package observe

import (
	"image"
	"math/bits"
)

// Hash is a 64-bit perceptual hash: resize to 8x8 grayscale, compute the
// mean pixel value, emit one bit per pixel for (pixel > mean).
type Hash uint64

// ComputeHash implements the average-hash algorithm from §4.6 step 1.
func ComputeHash(img image.Image) Hash {
	const n = 8
	gray := make([]uint32, n*n)
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	var sum uint64
	for y := 0; y < n; y++ {
		sy := bounds.Min.Y + y*h/n
		for x := 0; x < n; x++ {
			sx := bounds.Min.X + x*w/n
			r, g, b, _ := img.At(sx, sy).RGBA()
			lum := (r*299 + g*587 + b*114) / 1000 >> 8
			gray[y*n+x] = lum
			sum += uint64(lum)
		}
	}
	mean := sum / uint64(n*n)

	var h64 Hash
	for i, v := range gray {
		if uint64(v) > mean {
			h64 |= 1 << uint(i)
		}
	}
	return h64
}

// Similarity returns the percentage (0-100) of matching bits between two
// hashes, via Hamming distance normalised against the 64-bit width.
func Similarity(a, b Hash) float64 {
	dist := bits.OnesCount64(uint64(a ^ b))
	return 100.0 * float64(64-dist) / 64.0
}
