package screenshot

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
)

func makePNG(w, h int, c color.Color) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

func TestLooksLikePNG(t *testing.T) {
	require.True(t, looksLikePNG(string(makePNG(2, 2, color.White))))
	require.False(t, looksLikePNG("not a png"))
}

func TestTrimBase64Noise(t *testing.T) {
	require.Equal(t, "abcdef", trimBase64Noise("ab\r\ncd\nef\n"))
}

func TestPipelineResizeAndEncode(t *testing.T) {
	src := makePNG(100, 50, color.RGBA{R: 255, A: 255})
	p, err := Decode(src)
	require.NoError(t, err)

	out, err := p.Apply(Op{Kind: "resize", Width: 10, Height: 5}).ToBuffer(FormatJPEG)
	require.NoError(t, err)
	require.NotEmpty(t, out)

	decoded, _, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	require.Equal(t, 10, decoded.Bounds().Dx())
	require.Equal(t, 5, decoded.Bounds().Dy())
}

func TestPipelineRotate90(t *testing.T) {
	src := makePNG(20, 10, color.RGBA{G: 255, A: 255})
	p, err := Decode(src)
	require.NoError(t, err)
	out, err := p.Apply(Op{Kind: "rotate", Angle: 90}).ToBuffer(FormatPNG)
	require.NoError(t, err)
	decoded, _, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	require.Equal(t, 10, decoded.Bounds().Dx())
	require.Equal(t, 20, decoded.Bounds().Dy())
}

func TestFingerprintStable(t *testing.T) {
	data := []byte("identical bytes")
	require.Equal(t, Fingerprint(data), Fingerprint(data))
	require.NotEqual(t, Fingerprint(data), Fingerprint([]byte("different")))
}

func TestBufferCache_EvictsOldest(t *testing.T) {
	c := NewBufferCache(10)
	c.Put("a", []byte("12345"))
	c.Put("b", []byte("12345"))
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Put("c", []byte("12345"))
	_, bOk := c.Get("b")
	require.False(t, bOk, "b should have been evicted as least-recently-used")
	_, aOk := c.Get("a")
	require.True(t, aOk, "a was touched by Get and should survive")
}

func TestBufferCache_Overwrite(t *testing.T) {
	c := NewBufferCache(1 << 20)
	c.Put("k", []byte("first"))
	c.Put("k", []byte("second-value"))
	v, ok := c.Get("k")
	require.True(t, ok)
	require.Equal(t, "second-value", string(v))
	require.Equal(t, 1, c.Len())
}
