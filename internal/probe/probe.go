// Package probe implements the Window/Active-App Probe (component D):
// extracting the focused app, activity and window id from the platform,
// in the style of the teacher's device_monitor.go activity-parsing
// goroutine (regex over dumpsys output, single retry on empty focus).
package probe

import (
	"context"
	"regexp"
	"time"

	"github.com/automobile-core/server/internal/coreerrors"
	"github.com/automobile-core/server/internal/registry"
	"github.com/automobile-core/server/internal/runner"
	"github.com/automobile-core/server/internal/toolpath"
	"github.com/automobile-core/server/internal/wda"
)

// Active is the currently focused app/activity/window.
type Active struct {
	AppID        string
	ActivityName string
	WindowID     string
}

// focusedAppRe matches mFocusedApp=...ActivityRecord{... <pkg>/<activity>}.
var focusedAppRe = regexp.MustCompile(`mFocusedApp=.*ActivityRecord\{[^}]*\s([\w.]+)/([\w.$]+)\s*[^}]*\}`)

// currentFocusRe matches mCurrentFocus=Window{<id> ... <pkg>/<activity>}.
var currentFocusRe = regexp.MustCompile(`mCurrentFocus=Window\{(\S+)\s+[^}]*?([\w.]+)/([\w.$]+)\}`)

// Prober extracts the focused window from a device.
type Prober struct {
	discover *toolpath.Discovery
	run      *runner.Runner
	wdaHosts *wda.Pool
}

// New constructs a Prober. wdaHosts may be nil if iOS is not in use.
func New(discover *toolpath.Discovery, run *runner.Runner, wdaHosts *wda.Pool) *Prober {
	return &Prober{discover: discover, run: run, wdaHosts: wdaHosts}
}

// GetActive resolves the focused app for the device. Retries once with a
// 250ms pause if no focus is available, per §4.4.
func (p *Prober) GetActive(ctx context.Context, d registry.Device) (*Active, error) {
	active, err := p.getActiveOnce(ctx, d)
	if err == nil && active != nil {
		return active, nil
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(250 * time.Millisecond):
	}

	active, err = p.getActiveOnce(ctx, d)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, &coreerrors.DeviceNotReady{DeviceID: d.ID, Reason: "no focused window"}
	}
	return active, nil
}

func (p *Prober) getActiveOnce(ctx context.Context, d registry.Device) (*Active, error) {
	switch d.Platform {
	case registry.Android:
		return p.androidActive(ctx, d)
	case registry.IOS:
		return p.iosActive(ctx, d)
	default:
		return nil, &coreerrors.DeviceNotReady{DeviceID: d.ID, Reason: "unknown platform"}
	}
}

func (p *Prober) androidActive(ctx context.Context, d registry.Device) (*Active, error) {
	adb, err := p.discover.Locate(ctx, "adb")
	if err != nil {
		return nil, err
	}
	res, err := p.run.Execute(ctx, runner.Command{
		Path:    adb.Path,
		Args:    []string{"-s", d.ID, "shell", "dumpsys window windows"},
		Timeout: 10 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	return ParseWindowDump(res.Stdout), nil
}

// ParseWindowDump extracts the Active window from `dumpsys window
// windows` output using the two regexes specified in §4.4. The first
// match wins for app id; window id comes from mCurrentFocus.
func ParseWindowDump(dump string) *Active {
	var appID, activity, windowID string

	if m := focusedAppRe.FindStringSubmatch(dump); m != nil {
		appID = m[1]
		activity = m[2]
	}

	if m := currentFocusRe.FindStringSubmatch(dump); m != nil {
		windowID = m[1]
		if appID == "" {
			appID = m[2]
			activity = m[3]
		}
	}

	if appID == "" {
		return nil
	}
	return &Active{AppID: appID, ActivityName: activity, WindowID: windowID}
}

func (p *Prober) iosActive(ctx context.Context, d registry.Device) (*Active, error) {
	if p.wdaHosts == nil {
		return nil, &coreerrors.DeviceNotReady{DeviceID: d.ID, Reason: "no WebDriverAgent host configured"}
	}
	host, err := p.wdaHosts.Get(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	status, err := host.Status(ctx)
	if err != nil {
		return nil, err
	}
	source, err := host.Source(ctx)
	if err != nil {
		return nil, err
	}
	return &Active{
		AppID:        status.BundleID,
		ActivityName: source.SceneName,
		WindowID:     status.SessionID,
	}, nil
}
