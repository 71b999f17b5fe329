// Package exec implements the Command Execution Layer:
// platform-dispatched tap/swipe/type-text/key-event primitives, grounded
// on the teacher's automation.go `adb shell input` command strings for
// Android and the wda.Host session client for iOS.
package exec

import (
	"context"
	"fmt"
	"time"

	"github.com/automobile-core/server/internal/registry"
	"github.com/automobile-core/server/internal/runner"
	"github.com/automobile-core/server/internal/toolpath"
	"github.com/automobile-core/server/internal/wda"
)

// AndroidKeyEvent names the subset of Android keycodes §4.4 exposes by
// name instead of raw integer, mirroring the teacher's named gesture
// switch in PerformNodeAction/automation.go.
var AndroidKeyEvent = map[string]int{
	"back":        4,
	"home":        3,
	"appSwitch":   187,
	"enter":       66,
	"del":         67,
	"volumeUp":    24,
	"volumeDown":  25,
	"power":       26,
}

// Executor dispatches gesture/text/key commands to the right platform
// transport for a device (adb shell input for Android, a WDA session
// for iOS).
type Executor struct {
	discover *toolpath.Discovery
	run      *runner.Runner
	wda      *wda.Pool
}

// New constructs an Executor.
func New(discover *toolpath.Discovery, run *runner.Runner, pool *wda.Pool) *Executor {
	return &Executor{discover: discover, run: run, wda: pool}
}

// Tap performs a single tap at (x, y) on d (§4.4 step 1).
func (e *Executor) Tap(ctx context.Context, d registry.Device, x, y int) error {
	if d.Platform == registry.IOS {
		host, err := e.wda.Get(ctx, d.ID)
		if err != nil {
			return err
		}
		return host.Tap(ctx, x, y)
	}
	return e.adbShell(ctx, d.ID, fmt.Sprintf("input tap %d %d", x, y))
}

// Swipe drags from (x1, y1) to (x2, y2) over durationMs (§4.4 step 2).
func (e *Executor) Swipe(ctx context.Context, d registry.Device, x1, y1, x2, y2, durationMs int) error {
	if d.Platform == registry.IOS {
		host, err := e.wda.Get(ctx, d.ID)
		if err != nil {
			return err
		}
		return host.Swipe(ctx, x1, y1, x2, y2, durationMs)
	}
	return e.adbShell(ctx, d.ID, fmt.Sprintf("input swipe %d %d %d %d %d", x1, y1, x2, y2, durationMs))
}

// LongPress is a Swipe-in-place holding durationMs (§4.4 step 2 variant).
func (e *Executor) LongPress(ctx context.Context, d registry.Device, x, y, durationMs int) error {
	return e.Swipe(ctx, d, x, y, x, y, durationMs)
}

// TypeText injects text into the currently-focused field (§4.4 step 3).
// Android requires the ADB Keyboard IME to be the active input method
// for anything beyond ASCII; the caller is expected to have driven the
// Keyboard Installer (component I) first.
func (e *Executor) TypeText(ctx context.Context, d registry.Device, text string) error {
	if d.Platform == registry.IOS {
		host, err := e.wda.Get(ctx, d.ID)
		if err != nil {
			return err
		}
		return host.TypeText(ctx, text)
	}
	escaped := escapeAndroidText(text)
	return e.adbShell(ctx, d.ID, fmt.Sprintf("input text \"%s\"", escaped))
}

// KeyEvent sends a named key (§4.4 step 4): Android dispatches the
// numeric keycode via `input keyevent`; iOS passes the name unchanged to
// WDA's pressButton endpoint.
func (e *Executor) KeyEvent(ctx context.Context, d registry.Device, name string) error {
	if d.Platform == registry.IOS {
		host, err := e.wda.Get(ctx, d.ID)
		if err != nil {
			return err
		}
		return host.PressButton(ctx, name)
	}
	code, ok := AndroidKeyEvent[name]
	if !ok {
		return fmt.Errorf("unknown key event %q", name)
	}
	return e.adbShell(ctx, d.ID, fmt.Sprintf("input keyevent %d", code))
}

func (e *Executor) adbShell(ctx context.Context, deviceID, shellArgs string) error {
	res, err := e.discover.Locate(ctx, "adb")
	if err != nil {
		return err
	}
	args := append([]string{"-s", deviceID, "shell"}, splitShellArgs(shellArgs)...)
	_, err = e.run.Execute(ctx, runner.Command{Path: res.Path, Args: args, Timeout: 10 * time.Second})
	return err
}

func splitShellArgs(s string) []string {
	var out []string
	var cur []rune
	inQuotes := false
	for _, r := range s {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == ' ' && !inQuotes:
			if len(cur) > 0 {
				out = append(out, string(cur))
				cur = cur[:0]
			}
		default:
			cur = append(cur, r)
		}
	}
	if len(cur) > 0 {
		out = append(out, string(cur))
	}
	return out
}

func escapeAndroidText(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch r {
		case ' ':
			out = append(out, '%', 's')
		case '"':
			continue
		default:
			out = append(out, r)
		}
	}
	return string(out)
}
