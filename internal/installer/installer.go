// Package installer implements the Accessibility-Service and
// Virtual-Keyboard Installers (components H, I): a shared four-stage
// state machine (NotInstalled -> Installed -> Enabled -> Active),
// grounded on the teacher's adb_keyboard.go EnsureADBKeyboard (install,
// then ime enable/set, with a settle delay after each step).
package installer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/automobile-core/server/internal/coreerrors"
	"github.com/automobile-core/server/internal/runner"
	"github.com/automobile-core/server/internal/toolpath"
)

// Stage is a point in the installer state machine.
type Stage int

const (
	NotInstalled Stage = iota
	Installed
	Enabled
	Active
)

func (s Stage) String() string {
	switch s {
	case Installed:
		return "installed"
	case Enabled:
		return "enabled"
	case Active:
		return "active"
	default:
		return "not_installed"
	}
}

// Package ttl values (§4.9): each status dimension is cached
// independently and invalidated on setup completion or any ActionableError.
const (
	installedTTL = 30 * time.Minute
	enabledTTL   = 30 * time.Minute
	activeTTL    = 60 * time.Minute
)

// Spec describes one installable component's APK source, checksum and
// enable/activate commands.
type Spec struct {
	Name           string
	DownloadURL    string
	SHA256         string
	PackageName    string
	IMEIdentifier  string // non-empty for the keyboard installer
	IsAccessibility bool
}

type statusCache struct {
	mu        sync.Mutex
	installed bool
	installedAt time.Time
	enabled   bool
	enabledAt time.Time
	active    bool
	activeAt  time.Time
}

// Installer drives one Spec's state machine for a device.
type Installer struct {
	spec     Spec
	discover *toolpath.Discovery
	run      *runner.Runner

	mu     sync.Mutex
	status map[string]*statusCache // keyed by deviceID
}

// New constructs an Installer for the given spec.
func New(spec Spec, discover *toolpath.Discovery, run *runner.Runner) *Installer {
	return &Installer{spec: spec, discover: discover, run: run, status: make(map[string]*statusCache)}
}

func (in *Installer) statusFor(deviceID string) *statusCache {
	in.mu.Lock()
	defer in.mu.Unlock()
	sc, ok := in.status[deviceID]
	if !ok {
		sc = &statusCache{}
		in.status[deviceID] = sc
	}
	return sc
}

// EnsureActive drives the device through whatever stages remain to reach
// Active, per §4.9's three-transition sequence.
func (in *Installer) EnsureActive(ctx context.Context, deviceID string) (Stage, error) {
	stage, err := in.currentStage(ctx, deviceID)
	if err != nil {
		return NotInstalled, err
	}
	initial := stage

	if stage == NotInstalled {
		if err := in.install(ctx, deviceID); err != nil {
			in.invalidate(deviceID)
			return NotInstalled, err
		}
		stage = Installed
	}
	if stage == Installed {
		if err := in.enable(ctx, deviceID); err != nil {
			in.invalidate(deviceID)
			return Installed, err
		}
		stage = Enabled
	}
	if stage == Enabled {
		if err := in.activate(ctx, deviceID); err != nil {
			in.invalidate(deviceID)
			return Enabled, err
		}
		stage = Active
	}
	if initial != Active {
		// Setup ran to completion; drop the cached status so the next
		// call re-probes the device.
		in.invalidate(deviceID)
	}
	return stage, nil
}

// currentStage consults the TTL-cached status, falling back to a fresh
// device probe for any dimension whose cache entry has expired.
func (in *Installer) currentStage(ctx context.Context, deviceID string) (Stage, error) {
	sc := in.statusFor(deviceID)
	sc.mu.Lock()
	now := time.Now()
	needInstalled := now.Sub(sc.installedAt) > installedTTL
	needEnabled := now.Sub(sc.enabledAt) > enabledTTL
	needActive := now.Sub(sc.activeAt) > activeTTL
	sc.mu.Unlock()

	if needInstalled {
		installed, err := in.checkInstalled(ctx, deviceID)
		if err != nil {
			return NotInstalled, err
		}
		sc.mu.Lock()
		sc.installed, sc.installedAt = installed, now
		sc.mu.Unlock()
	}
	sc.mu.Lock()
	if !sc.installed {
		sc.mu.Unlock()
		return NotInstalled, nil
	}
	sc.mu.Unlock()

	if needEnabled {
		enabled, err := in.checkEnabled(ctx, deviceID)
		if err != nil {
			return Installed, err
		}
		sc.mu.Lock()
		sc.enabled, sc.enabledAt = enabled, now
		sc.mu.Unlock()
	}
	sc.mu.Lock()
	if !sc.enabled {
		sc.mu.Unlock()
		return Installed, nil
	}
	sc.mu.Unlock()

	if needActive {
		active, err := in.checkActive(ctx, deviceID)
		if err != nil {
			return Enabled, err
		}
		sc.mu.Lock()
		sc.active, sc.activeAt = active, now
		sc.mu.Unlock()
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.active {
		return Active, nil
	}
	return Enabled, nil
}

func (in *Installer) invalidate(deviceID string) {
	sc := in.statusFor(deviceID)
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.installed, sc.installedAt = false, time.Time{}
	sc.enabled, sc.enabledAt = false, time.Time{}
	sc.active, sc.activeAt = false, time.Time{}
}

func (in *Installer) checkInstalled(ctx context.Context, deviceID string) (bool, error) {
	adb, err := in.discover.Locate(ctx, "adb")
	if err != nil {
		return false, err
	}
	res, err := in.run.Execute(ctx, runner.Command{
		Path:    adb.Path,
		Args:    []string{"-s", deviceID, "shell", "pm", "list", "packages", in.spec.PackageName},
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return false, err
	}
	return containsPackage(res.Stdout, in.spec.PackageName), nil
}

func containsPackage(output, pkg string) bool {
	return strings.Contains(output, "package:"+pkg)
}

func (in *Installer) checkEnabled(ctx context.Context, deviceID string) (bool, error) {
	if in.spec.IMEIdentifier != "" {
		adb, err := in.discover.Locate(ctx, "adb")
		if err != nil {
			return false, err
		}
		res, err := in.run.Execute(ctx, runner.Command{
			Path:    adb.Path,
			Args:    []string{"-s", deviceID, "shell", "ime", "list", "-a"},
			Timeout: 5 * time.Second,
		})
		if err != nil {
			return false, err
		}
		return strings.Contains(res.Stdout, in.spec.IMEIdentifier), nil
	}
	return in.checkActive(ctx, deviceID)
}

func (in *Installer) checkActive(ctx context.Context, deviceID string) (bool, error) {
	adb, err := in.discover.Locate(ctx, "adb")
	if err != nil {
		return false, err
	}
	if in.spec.IMEIdentifier != "" {
		res, err := in.run.Execute(ctx, runner.Command{
			Path:    adb.Path,
			Args:    []string{"-s", deviceID, "shell", "settings", "get", "secure", "default_input_method"},
			Timeout: 5 * time.Second,
		})
		if err != nil {
			return false, err
		}
		return strings.TrimSpace(res.Stdout) == in.spec.IMEIdentifier, nil
	}
	res, err := in.run.Execute(ctx, runner.Command{
		Path:    adb.Path,
		Args:    []string{"-s", deviceID, "shell", "settings", "get", "secure", "enabled_accessibility_services"},
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return false, err
	}
	return strings.Contains(res.Stdout, in.spec.PackageName), nil
}

// install downloads the APK (verifying its SHA-256 against the compiled-in
// digest), then `adb install`s it, per §4.9.
func (in *Installer) install(ctx context.Context, deviceID string) error {
	apkPath, err := in.download(ctx)
	if err != nil {
		return err
	}
	defer os.Remove(apkPath)

	adb, err := in.discover.Locate(ctx, "adb")
	if err != nil {
		return err
	}
	res, err := in.run.Execute(ctx, runner.Command{
		Path:    adb.Path,
		Args:    []string{"-s", deviceID, "install", "-r", apkPath},
		Timeout: 60 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to install %s: %w", in.spec.Name, err)
	}
	if !strings.Contains(res.Stdout, "Success") {
		return fmt.Errorf("%s install did not succeed: %s", in.spec.Name, res.Stdout)
	}
	return nil
}

// download fetches the APK via `curl -L` to /tmp/<name>/<file>.apk,
// verifies size > 10 KiB and SHA-256, and deletes the file on mismatch
// per §4.9.
func (in *Installer) download(ctx context.Context) (string, error) {
	curl, err := in.discover.Locate(ctx, "curl")
	if err != nil {
		return "", err
	}
	dir := filepath.Join(os.TempDir(), in.spec.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	apkPath := filepath.Join(dir, in.spec.Name+".apk")

	if _, err := in.run.Execute(ctx, runner.Command{
		Path:    curl.Path,
		Args:    []string{"-L", "-o", apkPath, in.spec.DownloadURL},
		Timeout: 60 * time.Second,
	}); err != nil {
		return "", fmt.Errorf("failed to download %s: %w", in.spec.Name, err)
	}

	info, err := os.Stat(apkPath)
	if err != nil {
		return "", err
	}
	if info.Size() <= 10<<10 {
		os.Remove(apkPath)
		return "", fmt.Errorf("%s download too small (%d bytes)", in.spec.Name, info.Size())
	}

	digest, err := sha256File(apkPath)
	if err != nil {
		os.Remove(apkPath)
		return "", err
	}
	if digest != in.spec.SHA256 {
		os.Remove(apkPath)
		return "", &coreerrors.IntegrityError{Path: apkPath, Expected: in.spec.SHA256, Actual: digest}
	}
	return apkPath, nil
}

func sha256File(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// enable turns the installed component on: `ime enable` for the
// keyboard, or the start of the accessibility settings-UI script for the
// service (the actual tap sequence lives in the tap-driving caller since
// it depends on the Command Execution Layer's element selectors, which
// this package does not own).
func (in *Installer) enable(ctx context.Context, deviceID string) error {
	if in.spec.IMEIdentifier == "" {
		return nil // accessibility enable is driven externally via EnableSequence
	}
	adb, err := in.discover.Locate(ctx, "adb")
	if err != nil {
		return err
	}
	_, err = in.run.Execute(ctx, runner.Command{
		Path:    adb.Path,
		Args:    []string{"-s", deviceID, "shell", "ime", "enable", in.spec.IMEIdentifier},
		Timeout: 5 * time.Second,
	})
	return err
}

// activate runs `ime set` for the keyboard (the previously active input
// method is not read or recorded, so it cannot be restored) or is a no-op
// for the accessibility service, whose Active stage is reached entirely
// through the Settings UI script.
func (in *Installer) activate(ctx context.Context, deviceID string) error {
	if in.spec.IMEIdentifier == "" {
		return nil
	}
	adb, err := in.discover.Locate(ctx, "adb")
	if err != nil {
		return err
	}
	_, err = in.run.Execute(ctx, runner.Command{
		Path:    adb.Path,
		Args:    []string{"-s", deviceID, "shell", "ime", "set", in.spec.IMEIdentifier},
		Timeout: 5 * time.Second,
	})
	return err
}

// EnableSequence is the fixed tap-by-visible-text sequence the
// accessibility installer's Enable stage requires (§4.9): the caller
// (the Command Execution Layer, which owns element resolution) drives
// each step via tapByText, then three back-button presses.
var EnableSequence = []string{
	"Open Accessibility Settings",
	"AutoMobile A11Y Service",
	"Use AutoMobile A11Y Service",
	"Allow",
}
