package toolpath

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocate_PrefersSDKRootOverPath(t *testing.T) {
	dir := t.TempDir()
	platformTools := filepath.Join(dir, "platform-tools")
	require.NoError(t, os.MkdirAll(platformTools, 0755))
	adbPath := filepath.Join(platformTools, "adb")
	require.NoError(t, os.WriteFile(adbPath, []byte("#!/bin/sh\n"), 0755))

	d := New(nil).WithEnv(func(k string) string {
		if k == "ANDROID_HOME" {
			return dir
		}
		return ""
	})

	res, err := d.Locate(context.Background(), "adb")
	require.NoError(t, err)
	require.Equal(t, adbPath, res.Path)
	require.Equal(t, SourceSDKRoot, res.Source)
}

func TestLocate_CachesResolution(t *testing.T) {
	dir := t.TempDir()
	platformTools := filepath.Join(dir, "platform-tools")
	require.NoError(t, os.MkdirAll(platformTools, 0755))
	adbPath := filepath.Join(platformTools, "adb")
	require.NoError(t, os.WriteFile(adbPath, []byte("#!/bin/sh\n"), 0755))

	calls := 0
	d := New(nil).WithEnv(func(k string) string {
		calls++
		if k == "ANDROID_HOME" {
			return dir
		}
		return ""
	})

	_, err := d.Locate(context.Background(), "adb")
	require.NoError(t, err)
	first := calls

	_, err = d.Locate(context.Background(), "adb")
	require.NoError(t, err)
	require.Equal(t, first, calls, "second Locate call should hit the cache, not re-query env")
}

func TestLocate_NotFound(t *testing.T) {
	d := New(nil).WithEnv(func(string) string { return "" })
	_, err := d.Locate(context.Background(), "xcrun")
	require.Error(t, err)
}
