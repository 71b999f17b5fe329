// Package registry implements the Device Registry (component C):
// enumerating booted Android emulators and iOS simulators, booting images
// on demand, and waiting for readiness. Android parsing follows the
// teacher's GetDevices (device.go); iOS parsing follows the simctl --json
// shape used by vburojevic-xcw's internal/simulator.Manager.
package registry

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/automobile-core/server/internal/coreerrors"
	"github.com/automobile-core/server/internal/runner"
	"github.com/automobile-core/server/internal/toolpath"
)

// Platform identifies which vendor toolchain a device belongs to.
type Platform string

const (
	Android Platform = "android"
	IOS     Platform = "ios"
)

// State is a device's lifecycle state.
type State string

const (
	StateShutdown     State = "shutdown"
	StateBooting      State = "booting"
	StateBooted       State = "booted"
	StateUnresponsive State = "unresponsive"
)

// Device is a platform-tagged endpoint, per the §3 data model.
type Device struct {
	ID       string
	Name     string
	Platform Platform
	State    State
}

// uuidShape matches the canonical hex-hyphen UUID string — the one
// heuristic the core applies to an opaque device identifier (§4.3): a
// match is tentatively treated as iOS.
var uuidShape = regexp.MustCompile(`^[0-9A-Fa-f]{8}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{12}$`)

// LooksLikeIOSIdentifier applies the UUID-shape heuristic from §4.3.
func LooksLikeIOSIdentifier(id string) bool {
	return uuidShape.MatchString(id)
}

// DeviceInfo describes a bootable image (AVD or simulator) not currently
// running.
type DeviceInfo struct {
	Name     string
	Platform Platform
	// RuntimeOrAPI carries the iOS runtime identifier or Android API
	// level, informational only.
	RuntimeOrAPI string
}

// bootedCacheTTL is the 5s cache for the `adb devices` result, per §4.3.
const bootedCacheTTL = 5 * time.Second

// Registry enumerates and boots devices.
type Registry struct {
	discover *toolpath.Discovery
	run      *runner.Runner

	mu          sync.Mutex
	bootedCache []Device
	bootedAt    time.Time
}

// New constructs a Registry.
func New(discover *toolpath.Discovery, run *runner.Runner) *Registry {
	return &Registry{discover: discover, run: run}
}

// ListBooted returns booted devices for the given platform (or both
// platforms when platform is empty).
func (r *Registry) ListBooted(ctx context.Context, platform Platform) ([]Device, error) {
	r.mu.Lock()
	if r.bootedCache != nil && time.Since(r.bootedAt) < bootedCacheTTL {
		cached := append([]Device(nil), r.bootedCache...)
		r.mu.Unlock()
		return filterPlatform(cached, platform), nil
	}
	r.mu.Unlock()

	var all []Device
	android, err := r.listBootedAndroid(ctx)
	if err == nil {
		all = append(all, android...)
	}
	ios, err := r.listBootedIOS(ctx)
	if err == nil {
		all = append(all, ios...)
	}

	r.mu.Lock()
	r.bootedCache = all
	r.bootedAt = time.Now()
	r.mu.Unlock()

	return filterPlatform(all, platform), nil
}

func filterPlatform(devices []Device, platform Platform) []Device {
	if platform == "" {
		return devices
	}
	var out []Device
	for _, d := range devices {
		if d.Platform == platform {
			out = append(out, d)
		}
	}
	return out
}

// listBootedAndroid parses `adb devices` skipping the header line; each
// "<id>\t<state>" maps to a Device, per §4.3.
func (r *Registry) listBootedAndroid(ctx context.Context) ([]Device, error) {
	adb, err := r.discover.Locate(ctx, "adb")
	if err != nil {
		return nil, err
	}
	res, err := r.run.Execute(ctx, runner.Command{
		Path:    adb.Path,
		Args:    []string{"devices"},
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	return parseAdbDevices(res.Stdout), nil
}

// parseAdbDevices parses `adb devices` output, skipping the header line;
// each "<id>\t<state>" maps to a booted Device, per §4.3.
func parseAdbDevices(output string) []Device {
	var out []Device
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of devices attached") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		id, state := fields[0], fields[1]
		if state != "device" {
			continue
		}
		out = append(out, Device{ID: id, Name: id, Platform: Android, State: StateBooted})
	}
	return out
}

// listBootedIOS parses `xcrun simctl list devices --json`; a device with
// state == "Booted" is booted, per §4.3.
func (r *Registry) listBootedIOS(ctx context.Context) ([]Device, error) {
	devices, _, err := r.listAllIOS(ctx)
	if err != nil {
		return nil, err
	}
	var out []Device
	for _, d := range devices {
		if d.State == StateBooted {
			out = append(out, d)
		}
	}
	return out, nil
}

// listAllIOS returns every simulator instance (booted or not) plus the
// bootable image list derived from the same JSON payload.
func (r *Registry) listAllIOS(ctx context.Context) ([]Device, []DeviceInfo, error) {
	xcrun, err := r.discover.Locate(ctx, "xcrun")
	if err != nil {
		return nil, nil, err
	}
	res, err := r.run.Execute(ctx, runner.Command{
		Path:    xcrun.Path,
		Args:    []string{"simctl", "list", "devices", "--json"},
		Timeout: 10 * time.Second,
	})
	if err != nil {
		return nil, nil, err
	}
	return parseSimctlJSON(res.Stdout)
}

// parseSimctlJSON parses `xcrun simctl list devices --json` output into
// booted/shutdown Device entries and bootable image DeviceInfo entries.
func parseSimctlJSON(output string) ([]Device, []DeviceInfo, error) {
	if !gjson.Valid(output) {
		return nil, nil, fmt.Errorf("invalid simctl JSON output")
	}

	var devices []Device
	var images []DeviceInfo
	runtimes := gjson.Get(output, "devices").Map()
	for runtimeID, list := range runtimes {
		list.ForEach(func(_, dev gjson.Result) bool {
			udid := dev.Get("udid").String()
			name := dev.Get("name").String()
			state := dev.Get("state").String()
			available := dev.Get("isAvailable").Bool()
			if !available {
				return true
			}
			if state == "Booted" {
				devices = append(devices, Device{ID: udid, Name: name, Platform: IOS, State: StateBooted})
			} else {
				images = append(images, DeviceInfo{Name: name, Platform: IOS, RuntimeOrAPI: runtimeID})
				devices = append(devices, Device{ID: udid, Name: name, Platform: IOS, State: StateShutdown})
			}
			return true
		})
	}
	return devices, images, nil
}

// ListImages returns bootable images (AVDs for Android, simulators for
// iOS) for the given platform.
func (r *Registry) ListImages(ctx context.Context, platform Platform) ([]DeviceInfo, error) {
	switch platform {
	case Android:
		return r.listAndroidAVDs(ctx)
	case IOS:
		_, images, err := r.listAllIOS(ctx)
		return images, err
	default:
		return nil, fmt.Errorf("unknown platform %q", platform)
	}
}

// listAndroidAVDs parses `emulator -list-avds`, one name per line.
func (r *Registry) listAndroidAVDs(ctx context.Context) ([]DeviceInfo, error) {
	emulator, err := r.discover.Locate(ctx, "emulator")
	if err != nil {
		return nil, err
	}
	res, err := r.run.Execute(ctx, runner.Command{
		Path:    emulator.Path,
		Args:    []string{"-list-avds"},
		Timeout: 10 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	var out []DeviceInfo
	for _, line := range strings.Split(res.Stdout, "\n") {
		name := strings.TrimSpace(line)
		if name == "" {
			continue
		}
		out = append(out, DeviceInfo{Name: name, Platform: Android})
	}
	return out, nil
}

// Boot starts the given image. Android boots are fire-and-forget
// (detached `emulator -avd <name>`); iOS boots block on `simctl boot`.
func (r *Registry) Boot(ctx context.Context, image DeviceInfo) error {
	switch image.Platform {
	case Android:
		emulator, err := r.discover.Locate(ctx, "emulator")
		if err != nil {
			return err
		}
		_, err = r.run.Spawn(ctx, emulator.Path, "-avd", image.Name)
		return err
	case IOS:
		xcrun, err := r.discover.Locate(ctx, "xcrun")
		if err != nil {
			return err
		}
		_, err = r.run.Execute(ctx, runner.Command{
			Path:    xcrun.Path,
			Args:    []string{"simctl", "boot", image.Name},
			Timeout: 30 * time.Second,
		})
		return err
	default:
		return fmt.Errorf("unknown platform %q", image.Platform)
	}
}

// Kill shuts down a running device.
func (r *Registry) Kill(ctx context.Context, d Device) error {
	switch d.Platform {
	case Android:
		adb, err := r.discover.Locate(ctx, "adb")
		if err != nil {
			return err
		}
		_, err = r.run.Execute(ctx, runner.Command{
			Path:    adb.Path,
			Args:    []string{"-s", d.ID, "emu", "kill"},
			Timeout: 10 * time.Second,
		})
		return err
	case IOS:
		xcrun, err := r.discover.Locate(ctx, "xcrun")
		if err != nil {
			return err
		}
		_, err = r.run.Execute(ctx, runner.Command{
			Path:    xcrun.Path,
			Args:    []string{"simctl", "shutdown", d.ID},
			Timeout: 30 * time.Second,
		})
		return err
	default:
		return fmt.Errorf("unknown platform %q", d.Platform)
	}
}

// WaitReady polls platform-specific readiness (§4.3): for Android,
// sys.boot_completed == 1; for iOS, the JSON state transitioning to
// Booted.
func (r *Registry) WaitReady(ctx context.Context, image DeviceInfo, timeout time.Duration) (Device, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		switch image.Platform {
		case Android:
			devices, err := r.listBootedAndroid(ctx)
			if err == nil {
				for _, d := range devices {
					if ready, _ := r.androidBootCompleted(ctx, d.ID); ready {
						return d, nil
					}
				}
			}
		case IOS:
			devices, _, err := r.listAllIOS(ctx)
			if err == nil {
				for _, d := range devices {
					if d.State == StateBooted && (d.Name == image.Name || d.ID == image.Name) {
						return d, nil
					}
				}
			}
		}
		select {
		case <-ctx.Done():
			return Device{}, ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return Device{}, &coreerrors.TimeoutErr{Op: "waitReady(" + image.Name + ")", Timeout: timeout.String()}
}

func (r *Registry) androidBootCompleted(ctx context.Context, deviceID string) (bool, error) {
	adb, err := r.discover.Locate(ctx, "adb")
	if err != nil {
		return false, err
	}
	res, err := r.run.Execute(ctx, runner.Command{
		Path:    adb.Path,
		Args:    []string{"-s", deviceID, "shell", "getprop sys.boot_completed"},
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(res.Stdout) == "1", nil
}
