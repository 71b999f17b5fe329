package app

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/automobile-core/server/internal/registry"
)

func TestDeviceArg_UUIDShapeInfersIOS(t *testing.T) {
	d := deviceArg(map[string]any{"deviceId": "12345678-1234-1234-1234-123456789ABC"})
	require.Equal(t, registry.IOS, d.Platform)
}

func TestDeviceArg_NonUUIDInfersAndroid(t *testing.T) {
	d := deviceArg(map[string]any{"deviceId": "emulator-5554"})
	require.Equal(t, registry.Android, d.Platform)
}

func TestIntArg_AcceptsFloat64AndInt(t *testing.T) {
	require.Equal(t, 42, intArg(map[string]any{"x": float64(42)}, "x"))
	require.Equal(t, 7, intArg(map[string]any{"x": 7}, "x"))
	require.Equal(t, 0, intArg(map[string]any{}, "x"))
}
