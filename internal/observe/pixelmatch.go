package observe

import "image"

// pixelThreshold is pixelmatch's sensitivity knob (§4.6 step 3): the
// fraction of the maximum possible per-channel delta below which two
// pixels are considered equal.
const pixelThreshold = 0.1

// PixelMatch compares two images pixel by pixel (resizing b to a's
// dimensions first, since screenshots from the same device are expected
// to share dimensions and any mismatch is itself evidence of a UI
// change) and returns the percentage of matching pixels.
func PixelMatch(a, b image.Image) float64 {
	boundsA := a.Bounds()
	w, h := boundsA.Dx(), boundsA.Dy()
	if w == 0 || h == 0 {
		return 0
	}

	total := w * h
	matches := 0
	boundsB := b.Bounds()
	bw, bh := boundsB.Dx(), boundsB.Dy()

	for y := 0; y < h; y++ {
		by := boundsB.Min.Y + y*bh/h
		for x := 0; x < w; x++ {
			bx := boundsB.Min.X + x*bw/w
			if pixelsEqual(a.At(boundsA.Min.X+x, boundsA.Min.Y+y), b.At(bx, by)) {
				matches++
			}
		}
	}
	return 100.0 * float64(matches) / float64(total)
}

// pixelsEqual treats two pixels as equal when every channel's delta,
// normalised to [0,1], is under pixelThreshold. Anti-aliased edge pixels
// are not special-cased (§4.6: "anti-alias ignored").
func pixelsEqual(p1, p2 interface {
	RGBA() (r, g, b, a uint32)
}) bool {
	r1, g1, b1, a1 := p1.RGBA()
	r2, g2, b2, a2 := p2.RGBA()
	const max = 0xffff
	return deltaWithin(r1, r2, max) && deltaWithin(g1, g2, max) &&
		deltaWithin(b1, b2, max) && deltaWithin(a1, a2, max)
}

func deltaWithin(a, b, max uint32) bool {
	var d uint32
	if a > b {
		d = a - b
	} else {
		d = b - a
	}
	return float64(d)/float64(max) <= pixelThreshold
}
