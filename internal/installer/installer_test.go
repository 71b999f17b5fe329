package installer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStageString(t *testing.T) {
	require.Equal(t, "not_installed", NotInstalled.String())
	require.Equal(t, "installed", Installed.String())
	require.Equal(t, "enabled", Enabled.String())
	require.Equal(t, "active", Active.String())
}

func TestContainsPackage(t *testing.T) {
	require.True(t, containsPackage("package:com.android.adbkeyboard\n", "com.android.adbkeyboard"))
	require.False(t, containsPackage("", "com.android.adbkeyboard"))
	require.False(t, containsPackage("package:com.other.app\n", "com.android.adbkeyboard"))
}

func TestEnableSequenceFixedOrder(t *testing.T) {
	require.Equal(t, []string{
		"Open Accessibility Settings",
		"AutoMobile A11Y Service",
		"Use AutoMobile A11Y Service",
		"Allow",
	}, EnableSequence)
}
