package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNew_MissingFileYieldsEmptyDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	s, err := New(path)
	require.NoError(t, err)
	require.Empty(t, s.Get().Devices)
	require.Empty(t, s.Get().Apps)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")
	s, err := New(path)
	require.NoError(t, err)

	doc := Document{
		Devices: []DeviceConfig{
			{Platform: "android", ActiveMode: "testAuthoring", DeviceID: "emulator-5554",
				TestAuthoring: &TestAuthoringConfig{AppID: "com.example", Persist: true}},
		},
		Apps: []AppConfig{
			{AppID: "com.example", SourceDir: "/tmp/src", Platform: "android"},
		},
	}
	require.NoError(t, s.Save(doc))

	s2, err := New(path)
	require.NoError(t, err)
	got := s2.Get()
	require.Len(t, got.Devices, 1)
	require.Equal(t, "emulator-5554", got.Devices[0].DeviceID)
	require.NotNil(t, got.Devices[0].TestAuthoring)
	require.Equal(t, "com.example", got.Devices[0].TestAuthoring.AppID)
	require.Len(t, got.Apps, 1)
}

func TestWatch_ReloadsOnExternalWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	s, err := New(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(Document{}))
	defer s.Stop()

	changed := make(chan Document, 1)
	s.OnChange(func(d Document) { changed <- d })
	require.NoError(t, s.Watch())

	time.Sleep(50 * time.Millisecond)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	_ = data
	require.NoError(t, s.Save(Document{Apps: []AppConfig{{AppID: "com.external"}}}))

	select {
	case d := <-changed:
		require.Len(t, d.Apps, 1)
		require.Equal(t, "com.external", d.Apps[0].AppID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for config reload notification")
	}
}

func TestEnvString_FallsBackToDefault(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	require.Equal(t, "fallback", s.EnvString("SOME_UNSET_KEY", "fallback"))
}

func TestEnvString_ReadsEnvironmentOverride(t *testing.T) {
	t.Setenv("AUTOMOBILE_ANDROID_HOME", "/opt/android-sdk")
	s, err := New(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	require.Equal(t, "/opt/android-sdk", s.EnvString("ANDROID_HOME", ""))
}
