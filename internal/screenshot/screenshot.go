// Package screenshot implements the Screenshot Pipeline (component G):
// device capture plus a small re-encoding pipeline with its own LRU
// buffer cache, grounded on the teacher's files.go generateImageThumbnail
// (manual nearest-neighbor resize + jpeg.Encode) generalised into a
// reusable op chain, and app.go TakeScreenshot's capture-then-pull
// fallback.
package screenshot

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/automobile-core/server/internal/runner"
	"github.com/automobile-core/server/internal/toolpath"
)

// Capture obtains a raw PNG screenshot from an Android device: it tries
// `exec-out screencap -p` first, then `screencap -p | base64`, and finally
// falls back to capture-to-file, read back via `exec-out cat`, then delete
// (§4.7).
type Capture struct {
	discover *toolpath.Discovery
	run      *runner.Runner
}

// NewCapture constructs a Capture.
func NewCapture(discover *toolpath.Discovery, run *runner.Runner) *Capture {
	return &Capture{discover: discover, run: run}
}

// Shoot returns the raw PNG bytes captured from deviceID.
func (c *Capture) Shoot(ctx context.Context, deviceID string) ([]byte, error) {
	adb, err := c.discover.Locate(ctx, "adb")
	if err != nil {
		return nil, err
	}

	res, err := c.run.Execute(ctx, runner.Command{
		Path:      adb.Path,
		Args:      []string{"-s", deviceID, "exec-out", "screencap", "-p"},
		Timeout:   10 * time.Second,
		MaxBuffer: 32 << 20,
	})
	if err == nil && looksLikePNG(res.Stdout) {
		return []byte(res.Stdout), nil
	}

	return c.captureViaBase64(ctx, adb.Path, deviceID)
}

func (c *Capture) captureViaBase64(ctx context.Context, adbPath, deviceID string) ([]byte, error) {
	res, err := c.run.Execute(ctx, runner.Command{
		Path:      adbPath,
		Args:      []string{"-s", deviceID, "shell", "screencap -p | base64"},
		Timeout:   10 * time.Second,
		MaxBuffer: 48 << 20,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	decoded, decErr := base64.StdEncoding.DecodeString(trimBase64Noise(res.Stdout))
	if decErr == nil && looksLikePNG(string(decoded)) {
		return decoded, nil
	}

	return c.captureViaPull(ctx, adbPath, deviceID)
}

const remoteScreenshotPath = "/sdcard/screenshot_tmp.png"

func (c *Capture) captureViaPull(ctx context.Context, adbPath, deviceID string) ([]byte, error) {
	if _, err := c.run.Execute(ctx, runner.Command{
		Path:    adbPath,
		Args:    []string{"-s", deviceID, "shell", "screencap", "-p", remoteScreenshotPath},
		Timeout: 10 * time.Second,
	}); err != nil {
		return nil, fmt.Errorf("failed to capture screenshot on device: %w", err)
	}
	defer func() {
		_, _ = c.run.Execute(ctx, runner.Command{
			Path:    adbPath,
			Args:    []string{"-s", deviceID, "shell", "rm", remoteScreenshotPath},
			Timeout: 5 * time.Second,
		})
	}()

	res, err := c.run.Execute(ctx, runner.Command{
		Path:      adbPath,
		Args:      []string{"-s", deviceID, "exec-out", "cat", remoteScreenshotPath},
		Timeout:   10 * time.Second,
		MaxBuffer: 48 << 20,
	})
	if err != nil || !looksLikePNG(res.Stdout) {
		return nil, fmt.Errorf("failed to pull screenshot: %w", err)
	}
	return []byte(res.Stdout), nil
}

// ShootIOS captures a screenshot from a booted simulator via `xcrun
// simctl io <udid> screenshot <path>` (§4.7); WebDriverAgent's own
// screenshot endpoint is not used here since simctl is available
// unconditionally for any booted simulator regardless of WDA state.
func (c *Capture) ShootIOS(ctx context.Context, udid string) ([]byte, error) {
	xcrun, err := c.discover.Locate(ctx, "xcrun")
	if err != nil {
		return nil, err
	}
	tmp := filepath.Join(os.TempDir(), "automobile-screenshot-"+udid+".png")
	defer os.Remove(tmp)

	if _, err := c.run.Execute(ctx, runner.Command{
		Path:    xcrun.Path,
		Args:    []string{"simctl", "io", udid, "screenshot", tmp},
		Timeout: 10 * time.Second,
	}); err != nil {
		return nil, fmt.Errorf("failed to capture simulator screenshot: %w", err)
	}
	data, err := os.ReadFile(tmp)
	if err != nil {
		return nil, fmt.Errorf("failed to read captured screenshot: %w", err)
	}
	return data, nil
}

var pngMagic = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func looksLikePNG(s string) bool {
	return len(s) >= 8 && bytes.Equal([]byte(s[:8]), pngMagic)
}

// trimBase64Noise strips the line wrapping and trailing CR/LF adb shell
// appends to base64 output.
func trimBase64Noise(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	return strings.TrimSpace(s)
}

// Fingerprint returns a content hash suitable for keying the re-encoding
// cache's (inputHash, operations) entries.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Format is an output encoding for the re-encoding pipeline.
type Format int

const (
	FormatPNG Format = iota
	FormatJPEG
)

// Op is one re-encoding pipeline step; ops compose left to right exactly
// as submitted, each producing a new in-memory image the next op reads.
type Op struct {
	Kind   string // "resize", "crop", "rotate", "flip", "blur"
	Width  int
	Height int
	X, Y   int // crop origin
	Angle  int // rotate: 90, 180, 270
	Axis   string // flip: "h" or "v"
	Radius int    // blur: box radius in pixels
}

// Pipeline applies a chain of Ops to a decoded image and flushes to a
// buffer in the requested format, the Sharp-equivalent transform chain
// §4.7 describes generalised from the teacher's single hardcoded resize.
type Pipeline struct {
	img image.Image
}

// Decode loads a PNG or JPEG source image.
func Decode(data []byte) (*Pipeline, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return &Pipeline{img: img}, nil
}

// Apply runs every Op in order, mutating the pipeline's current image.
func (p *Pipeline) Apply(ops ...Op) *Pipeline {
	for _, op := range ops {
		switch op.Kind {
		case "resize":
			p.img = resize(p.img, op.Width, op.Height)
		case "crop":
			p.img = crop(p.img, op.X, op.Y, op.Width, op.Height)
		case "rotate":
			p.img = rotate(p.img, op.Angle)
		case "flip":
			p.img = flip(p.img, op.Axis)
		case "blur":
			p.img = boxBlur(p.img, op.Radius)
		}
	}
	return p
}

// ToBuffer flushes the pipeline's current image to bytes in the given
// format, mirroring Sharp's toBuffer() terminal call.
func (p *Pipeline) ToBuffer(format Format) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch format {
	case FormatJPEG:
		err = jpeg.Encode(&buf, p.img, &jpeg.Options{Quality: 85})
	default:
		err = png.Encode(&buf, p.img)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func resize(src image.Image, w, h int) image.Image {
	if w <= 0 || h <= 0 {
		return src
	}
	bounds := src.Bounds()
	sw, sh := bounds.Dx(), bounds.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		sy := bounds.Min.Y + y*sh/h
		for x := 0; x < w; x++ {
			sx := bounds.Min.X + x*sw/w
			dst.Set(x, y, src.At(sx, sy))
		}
	}
	return dst
}

func crop(src image.Image, x, y, w, h int) image.Image {
	bounds := src.Bounds()
	rect := image.Rect(bounds.Min.X+x, bounds.Min.Y+y, bounds.Min.X+x+w, bounds.Min.Y+y+h).Intersect(bounds)
	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	for dy := 0; dy < rect.Dy(); dy++ {
		for dx := 0; dx < rect.Dx(); dx++ {
			dst.Set(dx, dy, src.At(rect.Min.X+dx, rect.Min.Y+dy))
		}
	}
	return dst
}

func rotate(src image.Image, angle int) image.Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	switch angle % 360 {
	case 90:
		dst := image.NewRGBA(image.Rect(0, 0, h, w))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				dst.Set(h-1-y, x, src.At(bounds.Min.X+x, bounds.Min.Y+y))
			}
		}
		return dst
	case 180:
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				dst.Set(w-1-x, h-1-y, src.At(bounds.Min.X+x, bounds.Min.Y+y))
			}
		}
		return dst
	case 270:
		dst := image.NewRGBA(image.Rect(0, 0, h, w))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				dst.Set(y, w-1-x, src.At(bounds.Min.X+x, bounds.Min.Y+y))
			}
		}
		return dst
	default:
		return src
	}
}

func flip(src image.Image, axis string) image.Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sx, sy := x, y
			if axis == "h" {
				sx = w - 1 - x
			} else {
				sy = h - 1 - y
			}
			dst.Set(x, y, src.At(bounds.Min.X+sx, bounds.Min.Y+sy))
		}
	}
	return dst
}

// boxBlur applies a simple box blur of the given radius; radius 0 is a
// no-op, matching Sharp's blur(sigma) semantics loosely.
func boxBlur(src image.Image, radius int) image.Image {
	if radius <= 0 {
		return src
	}
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var rSum, gSum, bSum, aSum, n uint32
			for dy := -radius; dy <= radius; dy++ {
				for dx := -radius; dx <= radius; dx++ {
					px := x + dx
					py := y + dy
					if px < 0 || py < 0 || px >= w || py >= h {
						continue
					}
					r, g, b, a := src.At(bounds.Min.X+px, bounds.Min.Y+py).RGBA()
					rSum += r
					gSum += g
					bSum += b
					aSum += a
					n++
				}
			}
			if n == 0 {
				n = 1
			}
			dst.Set(x, y, color.RGBA64{
				R: uint16(rSum / n), G: uint16(gSum / n), B: uint16(bSum / n), A: uint16(aSum / n),
			})
		}
	}
	return dst
}
