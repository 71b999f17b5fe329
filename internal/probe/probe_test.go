package probe

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseWindowDump(t *testing.T) {
	dump := `
  mCurrentFocus=Window{a1b2c3 u0 com.example.app/com.example.app.MainActivity}
  mFocusedApp=ActivityRecord{d4e5f6 u0 com.example.app/com.example.app.MainActivity t12}
`
	active := ParseWindowDump(dump)
	require.NotNil(t, active)
	require.Equal(t, "com.example.app", active.AppID)
	require.Equal(t, "com.example.app.MainActivity", active.ActivityName)
	require.Equal(t, "a1b2c3", active.WindowID)
}

func TestParseWindowDump_NoFocus(t *testing.T) {
	require.Nil(t, ParseWindowDump("nothing useful here"))
}

func TestParseWindowDump_FocusedAppWinsOverCurrentFocus(t *testing.T) {
	dump := `
  mCurrentFocus=Window{aaa111 u0 com.other.app/com.other.app.OtherActivity}
  mFocusedApp=ActivityRecord{bbb222 u0 com.example.app/com.example.app.MainActivity t1}
`
	active := ParseWindowDump(dump)
	require.NotNil(t, active)
	require.Equal(t, "com.example.app", active.AppID)
	require.Equal(t, "aaa111", active.WindowID)
}
