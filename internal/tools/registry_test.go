package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCall_UnknownTool(t *testing.T) {
	r := New()
	resp := r.Call(context.Background(), "nope", nil)
	require.False(t, resp.Success)
	require.Contains(t, resp.Error, "unknown tool")
}

func TestCall_MissingRequiredField(t *testing.T) {
	r := New()
	r.Register("tap", []ParamSpec{{Name: "deviceId", Type: TypeString, Required: true}}, func(ctx context.Context, params map[string]any) (any, error) {
		return "ok", nil
	})
	resp := r.Call(context.Background(), "tap", map[string]any{})
	require.False(t, resp.Success)
	require.Contains(t, resp.Error, "field error")
}

func TestCall_WrongType(t *testing.T) {
	r := New()
	r.Register("tap", []ParamSpec{{Name: "x", Type: TypeNumber, Required: true}}, func(ctx context.Context, params map[string]any) (any, error) {
		return "ok", nil
	})
	resp := r.Call(context.Background(), "tap", map[string]any{"x": "not a number"})
	require.False(t, resp.Success)
}

func TestCall_Success(t *testing.T) {
	r := New()
	r.Register("echo", nil, func(ctx context.Context, params map[string]any) (any, error) {
		return params["msg"], nil
	})
	resp := r.Call(context.Background(), "echo", map[string]any{"msg": "hi"})
	require.True(t, resp.Success)
	require.Equal(t, "hi", resp.Data)
}

func TestCall_HandlerErrorWrappedAsToolFailure(t *testing.T) {
	r := New()
	r.Register("boom", nil, func(ctx context.Context, params map[string]any) (any, error) {
		return nil, errors.New("disk full")
	})
	resp := r.Call(context.Background(), "boom", nil)
	require.False(t, resp.Success)
	require.Contains(t, resp.Error, "boom")
	require.Contains(t, resp.Error, "disk full")
}

func TestCall_HandlerPanicRecovered(t *testing.T) {
	r := New()
	r.Register("panicky", nil, func(ctx context.Context, params map[string]any) (any, error) {
		panic("unexpected")
	})
	resp := r.Call(context.Background(), "panicky", nil)
	require.False(t, resp.Success)
}

type recordingRecorder struct {
	calls []string
}

func (rr *recordingRecorder) Record(tool string, params map[string]any, resp Response) {
	rr.calls = append(rr.calls, tool)
}

type fakeChecker struct {
	checkedDevice string
}

func (f *fakeChecker) CheckForChanges(ctx context.Context, deviceID string) {
	f.checkedDevice = deviceID
}

func TestCall_RecordsAndChecksLifecycle(t *testing.T) {
	r := New()
	rec := &recordingRecorder{}
	checker := &fakeChecker{}
	r.SetRecorder(rec)
	r.SetLifecycle(checker)
	r.Register("tap", nil, func(ctx context.Context, params map[string]any) (any, error) {
		return nil, nil
	})

	r.Call(context.Background(), "tap", map[string]any{"deviceId": "emulator-5554"})
	require.Equal(t, []string{"tap"}, rec.calls)
	require.Equal(t, "emulator-5554", checker.checkedDevice)
}
