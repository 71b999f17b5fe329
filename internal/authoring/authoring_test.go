package authoring

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/automobile-core/server/internal/runner"
	"github.com/automobile-core/server/internal/tools"
)

func TestStart_RejectsSecondSession(t *testing.T) {
	m := New(runner.New(), t.TempDir(), nil)
	_, err := m.Start("dev1", "com.example", "desc")
	require.NoError(t, err)

	_, err = m.Start("dev1", "com.example", "desc2")
	require.Error(t, err)
}

func TestRecord_ExcludesListedTools(t *testing.T) {
	m := New(runner.New(), t.TempDir(), nil)
	_, err := m.Start("dev1", "com.example", "desc")
	require.NoError(t, err)

	m.Record("listDevices", nil, tools.Response{Success: true})
	m.Record("tap", map[string]any{"x": 1}, tools.Response{Success: true})

	sess := m.Active()
	require.Len(t, sess.calls, 1)
	require.Equal(t, "tap", sess.calls[0].tool)
}

func TestRecord_KeepsOnlyLastObserve(t *testing.T) {
	m := New(runner.New(), t.TempDir(), nil)
	_, err := m.Start("dev1", "com.example", "desc")
	require.NoError(t, err)

	m.Record("tap", nil, tools.Response{Success: true})
	m.Record("observe", map[string]any{"n": 1}, tools.Response{Success: true})
	m.Record("swipe", nil, tools.Response{Success: true})
	m.Record("observe", map[string]any{"n": 2}, tools.Response{Success: true})

	sess := m.Active()
	require.Len(t, sess.calls, 3)
	require.Equal(t, "tap", sess.calls[0].tool)
	require.Equal(t, "swipe", sess.calls[1].tool)
	require.Equal(t, "observe", sess.calls[2].tool)
	require.Equal(t, 2, sess.calls[2].params["n"])
}

func TestRecord_IgnoresFailedCalls(t *testing.T) {
	m := New(runner.New(), t.TempDir(), nil)
	_, err := m.Start("dev1", "com.example", "desc")
	require.NoError(t, err)

	m.Record("tap", nil, tools.Response{Success: false, Error: "boom"})
	require.Empty(t, m.Active().calls)
}

func TestStop_WritesYAMLPlan(t *testing.T) {
	dir := t.TempDir()
	m := New(runner.New(), dir, nil)
	sessID, err := m.Start("dev1", "com.example", "a test")
	require.NoError(t, err)
	m.Record("tap", map[string]any{"x": 5}, tools.Response{Success: true})

	path, err := m.Stop(context.Background())
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, sessID+".yaml"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "tap")
	require.Nil(t, m.Active())
}

func TestStop_NoActiveSessionErrors(t *testing.T) {
	m := New(runner.New(), t.TempDir(), nil)
	_, err := m.Stop(context.Background())
	require.Error(t, err)
}
