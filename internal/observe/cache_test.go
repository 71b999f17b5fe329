package observe

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/automobile-core/server/internal/hierarchy"
	"github.com/automobile-core/server/internal/probe"
	"github.com/automobile-core/server/internal/registry"
)

func encodePNG(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type fakeProber struct {
	active *probe.Active
}

func (f *fakeProber) GetActive(ctx context.Context, d registry.Device) (*probe.Active, error) {
	return f.active, nil
}

type fakeShooter struct {
	data []byte
}

func (f *fakeShooter) Shoot(ctx context.Context, id string) ([]byte, error)    { return f.data, nil }
func (f *fakeShooter) ShootIOS(ctx context.Context, id string) ([]byte, error) { return f.data, nil }

type fakeDumper struct {
	calls int32
	tree  *hierarchy.Tree
}

func (f *fakeDumper) Dump(ctx context.Context, id string) (*hierarchy.Tree, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.tree, nil
}

func TestCache_MissThenHit(t *testing.T) {
	shot := encodePNG(t, color.White)
	shooter := &fakeShooter{data: shot}
	prober := &fakeProber{active: &probe.Active{AppID: "com.example", ActivityName: ".Main"}}
	dumper := &fakeDumper{tree: &hierarchy.Tree{Root: &hierarchy.Node{Text: "root"}}}

	c := New(shooter, prober, dumper, dumper, "")
	d := registry.Device{ID: "emulator-5554", Platform: registry.Android}

	obs1, err := c.Observe(context.Background(), d)
	require.NoError(t, err)
	require.Equal(t, "root", obs1.Tree.Root.Text)
	require.EqualValues(t, 1, dumper.calls)

	obs2, err := c.Observe(context.Background(), d)
	require.NoError(t, err)
	require.Equal(t, obs1.Tree, obs2.Tree)
	require.EqualValues(t, 1, dumper.calls, "identical screenshot must not trigger a second dump")
}

func TestCache_ChangedScreenTriggersRebuild(t *testing.T) {
	prober := &fakeProber{active: &probe.Active{AppID: "com.example", ActivityName: ".Main"}}
	dumper := &fakeDumper{tree: &hierarchy.Tree{Root: &hierarchy.Node{Text: "root"}}}

	whiteShot := &fakeShooter{data: encodePNG(t, color.White)}
	c := New(whiteShot, prober, dumper, dumper, "")
	d := registry.Device{ID: "emulator-5554", Platform: registry.Android}

	_, err := c.Observe(context.Background(), d)
	require.NoError(t, err)
	require.EqualValues(t, 1, dumper.calls)

	c.shooter = &fakeShooter{data: encodePNG(t, color.Black)}
	_, err = c.Observe(context.Background(), d)
	require.NoError(t, err)
	require.EqualValues(t, 2, dumper.calls, "a different screenshot must trigger a fresh dump")
}

func TestFingerprint_DiffersByActivity(t *testing.T) {
	require.NotEqual(t, Fingerprint("com.example", "A"), Fingerprint("com.example", "B"))
	require.Equal(t, Fingerprint("com.example", "A"), Fingerprint("com.example", "A"))
}
