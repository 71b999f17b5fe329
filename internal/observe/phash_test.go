package observe

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"
)

func solidImage(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestComputeHash_IdenticalImagesMatch(t *testing.T) {
	a := solidImage(64, 64, color.White)
	b := solidImage(64, 64, color.White)
	require.Equal(t, ComputeHash(a), ComputeHash(b))
}

func TestSimilarity_IdenticalIsHundred(t *testing.T) {
	a := solidImage(64, 64, color.Black)
	h := ComputeHash(a)
	require.Equal(t, 100.0, Similarity(h, h))
}

func TestSimilarity_DifferentImagesLower(t *testing.T) {
	// A solid image hashes to zero whatever its colour (no pixel is above
	// the mean), so the two inputs differ in layout: left half dark versus
	// right half dark.
	leftDark := image.NewRGBA(image.Rect(0, 0, 64, 64))
	rightDark := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			if x < 32 {
				leftDark.Set(x, y, color.Black)
				rightDark.Set(x, y, color.White)
			} else {
				leftDark.Set(x, y, color.White)
				rightDark.Set(x, y, color.Black)
			}
		}
	}
	require.Less(t, Similarity(ComputeHash(leftDark), ComputeHash(rightDark)), 100.0)
}

func TestPixelMatch_IdenticalImages(t *testing.T) {
	a := solidImage(32, 32, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	b := solidImage(32, 32, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	require.Equal(t, 100.0, PixelMatch(a, b))
}

func TestPixelMatch_CompletelyDifferent(t *testing.T) {
	a := solidImage(32, 32, color.White)
	b := solidImage(32, 32, color.Black)
	require.Less(t, PixelMatch(a, b), 1.0)
}
