package session

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/automobile-core/server/internal/registry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestResolvePlatform_PreferenceWins(t *testing.T) {
	m := &Manager{}
	android := []registry.Device{{ID: "a", Platform: registry.Android}}
	ios := []registry.Device{{ID: "b", Platform: registry.IOS}}
	require.Equal(t, registry.IOS, m.resolvePlatform("ios", android, ios))
}

func TestResolvePlatform_EitherPrefersAndroidOnTie(t *testing.T) {
	m := &Manager{}
	android := []registry.Device{{ID: "a", Platform: registry.Android}}
	ios := []registry.Device{{ID: "b", Platform: registry.IOS}}
	require.Equal(t, registry.Android, m.resolvePlatform("", android, ios))
}

func TestResolvePlatform_EitherFallsBackToWhicheverHasDevices(t *testing.T) {
	m := &Manager{}
	var android []registry.Device
	ios := []registry.Device{{ID: "b", Platform: registry.IOS}}
	require.Equal(t, registry.IOS, m.resolvePlatform("", android, ios))
}

func TestFindByID(t *testing.T) {
	devices := []registry.Device{{ID: "x"}, {ID: "y"}}
	d, ok := findByID(devices, "y")
	require.True(t, ok)
	require.Equal(t, "y", d.ID)

	_, ok = findByID(devices, "z")
	require.False(t, ok)
}

func TestDeviceIDs(t *testing.T) {
	devices := []registry.Device{{ID: "a"}, {ID: "b"}}
	require.Equal(t, []string{"a", "b"}, deviceIDs(devices))
}

func TestReuseCurrent_WrongPlatformRejected(t *testing.T) {
	m := &Manager{}
	cur := registry.Device{ID: "x", Platform: registry.Android}
	m.current = &cur
	pool := []registry.Device{{ID: "x", Platform: registry.Android}}
	_, ok := m.reuseCurrent(registry.IOS, pool)
	require.False(t, ok)
}

func TestReuseCurrent_NotInPoolRejected(t *testing.T) {
	m := &Manager{}
	cur := registry.Device{ID: "x", Platform: registry.Android}
	m.current = &cur
	_, ok := m.reuseCurrent(registry.Android, nil)
	require.False(t, ok)
}
