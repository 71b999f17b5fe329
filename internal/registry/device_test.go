package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAdbDevices(t *testing.T) {
	output := "List of devices attached\nemulator-5554\tdevice\n192.168.1.5:5555\toffline\n\n"
	devices := parseAdbDevices(output)
	require.Len(t, devices, 1)
	require.Equal(t, "emulator-5554", devices[0].ID)
	require.Equal(t, Android, devices[0].Platform)
	require.Equal(t, StateBooted, devices[0].State)
}

func TestParseSimctlJSON(t *testing.T) {
	output := `{
		"devices": {
			"com.apple.CoreSimulator.SimRuntime.iOS-17-0": [
				{"udid": "11111111-2222-3333-4444-555555555555", "name": "iPhone 15", "state": "Booted", "isAvailable": true},
				{"udid": "66666666-7777-8888-9999-000000000000", "name": "iPhone 14", "state": "Shutdown", "isAvailable": true},
				{"udid": "unavailable-one", "name": "Old Sim", "state": "Shutdown", "isAvailable": false}
			]
		}
	}`
	devices, images, err := parseSimctlJSON(output)
	require.NoError(t, err)
	require.Len(t, devices, 2)
	require.Len(t, images, 1)

	var bootedCount int
	for _, d := range devices {
		if d.State == StateBooted {
			bootedCount++
			require.Equal(t, "iPhone 15", d.Name)
		}
	}
	require.Equal(t, 1, bootedCount)
}

func TestParseSimctlJSON_Invalid(t *testing.T) {
	_, _, err := parseSimctlJSON("not json")
	require.Error(t, err)
}

func TestLooksLikeIOSIdentifier(t *testing.T) {
	require.True(t, LooksLikeIOSIdentifier("11111111-2222-3333-4444-555555555555"))
	require.False(t, LooksLikeIOSIdentifier("emulator-5554"))
}
