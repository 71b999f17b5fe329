// Package toolpath implements Tool-Location Discovery (component B):
// resolving absolute paths to adb, emulator, xcrun, idb and axe, caching
// each resolution for the life of the process. Ground rule taken from the
// teacher's per-platform binary resolution (app.go's exec.LookPath probe
// chain) generalised to the multi-source ranking §4.2 describes.
package toolpath

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/automobile-core/server/internal/coreerrors"
	"github.com/automobile-core/server/internal/runner"
)

// Source ranks where a tool was found; higher-ranked sources win ties.
type Source int

const (
	SourcePath Source = iota
	SourceSDKRoot
	SourceHomebrew
)

func (s Source) rank() int {
	switch s {
	case SourceHomebrew:
		return 2
	case SourceSDKRoot:
		return 1
	default:
		return 0
	}
}

func (s Source) String() string {
	switch s {
	case SourceHomebrew:
		return "homebrew"
	case SourceSDKRoot:
		return "sdk-root"
	default:
		return "path"
	}
}

// Resolution is a discovered tool's location.
type Resolution struct {
	Tool    string
	Path    string
	Source  Source
	Version string
}

// Discovery resolves and caches tool paths for the process lifetime.
type Discovery struct {
	mu    sync.Mutex
	cache map[string]Resolution
	env   func(string) string
	run   *runner.Runner
}

// New constructs a Discovery using the real process environment.
func New(r *runner.Runner) *Discovery {
	return &Discovery{
		cache: make(map[string]Resolution),
		env:   os.Getenv,
		run:   r,
	}
}

// WithEnv overrides the environment lookup, used by tests.
func (d *Discovery) WithEnv(env func(string) string) *Discovery {
	d.env = env
	return d
}

// Locate resolves tool to an absolute path, consulting the cache first.
func (d *Discovery) Locate(ctx context.Context, tool string) (Resolution, error) {
	d.mu.Lock()
	if r, ok := d.cache[tool]; ok {
		d.mu.Unlock()
		return r, nil
	}
	d.mu.Unlock()

	var candidates []Resolution
	switch tool {
	case "adb", "emulator":
		candidates = d.androidCandidates(tool)
	case "xcrun":
		candidates = []Resolution{}
		if p, err := exec.LookPath("xcrun"); err == nil {
			candidates = append(candidates, Resolution{Tool: tool, Path: p, Source: SourcePath})
		}
	case "axe", "idb":
		candidates = d.iosToolCandidates(tool)
	default:
		if p, err := exec.LookPath(tool); err == nil {
			candidates = append(candidates, Resolution{Tool: tool, Path: p, Source: SourcePath})
		}
	}

	best, ok := rankBest(candidates)
	if !ok {
		if tool == "xcrun" {
			// xcrun absence is terminal per §4.2.
			return Resolution{}, &coreerrors.NotFoundErr{Tool: tool}
		}
		return Resolution{}, &coreerrors.NotFoundErr{Tool: tool}
	}

	if d.run != nil && (tool == "axe" || tool == "idb") {
		best.Version = d.probeVersion(ctx, best.Path)
	}

	d.mu.Lock()
	d.cache[tool] = best
	d.mu.Unlock()
	return best, nil
}

func rankBest(candidates []Resolution) (Resolution, bool) {
	if len(candidates) == 0 {
		return Resolution{}, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Source.rank() > best.Source.rank() {
			best = c
		}
	}
	return best, true
}

// androidCandidates implements the §4.2 Android resolution order:
// ANDROID_HOME | ANDROID_SDK_ROOT | ANDROID_SDK_HOME env vars, then a
// platform-specific SDK search, finally bare tool name on PATH.
func (d *Discovery) androidCandidates(tool string) []Resolution {
	var out []Resolution

	for _, envVar := range []string{"ANDROID_HOME", "ANDROID_SDK_ROOT", "ANDROID_SDK_HOME"} {
		root := d.env(envVar)
		if root == "" {
			continue
		}
		if p := findInSDK(root, tool); p != "" {
			out = append(out, Resolution{Tool: tool, Path: p, Source: SourceSDKRoot})
		}
	}

	for _, root := range homebrewSDKRoots(d.env) {
		if p := findInSDK(root, tool); p != "" {
			out = append(out, Resolution{Tool: tool, Path: p, Source: SourceHomebrew})
		}
	}

	for _, root := range defaultSDKRoots(d.env) {
		if p := findInSDK(root, tool); p != "" {
			out = append(out, Resolution{Tool: tool, Path: p, Source: SourceSDKRoot})
		}
	}

	if p, err := exec.LookPath(tool); err == nil {
		out = append(out, Resolution{Tool: tool, Path: p, Source: SourcePath})
	}
	return out
}

func (d *Discovery) iosToolCandidates(tool string) []Resolution {
	var out []Resolution
	if p, err := exec.LookPath(tool); err == nil {
		out = append(out, Resolution{Tool: tool, Path: p, Source: SourcePath})
	}
	return out
}

func findInSDK(root, tool string) string {
	candidates := []string{
		filepath.Join(root, "platform-tools", tool),
		filepath.Join(root, "emulator", tool),
		filepath.Join(root, "cmdline-tools", "latest", "bin", tool),
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c
		}
	}
	return ""
}

// homebrewSDKRoots returns the Homebrew `share/android-commandlinetools`
// location, which §4.2 ranks above a bare SDK-root guess.
func homebrewSDKRoots(env func(string) string) []string {
	if runtime.GOOS != "darwin" {
		return nil
	}
	prefixes := []string{"/opt/homebrew", "/usr/local"}
	var out []string
	for _, p := range prefixes {
		out = append(out, filepath.Join(p, "share", "android-commandlinetools"))
	}
	return out
}

// defaultSDKRoots returns the per-OS default SDK install location used
// when no environment variable is set.
func defaultSDKRoots(env func(string) string) []string {
	home := env("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	if home == "" {
		return nil
	}
	switch runtime.GOOS {
	case "darwin":
		return []string{filepath.Join(home, "Library", "Android", "sdk")}
	case "linux":
		return []string{filepath.Join(home, "Android", "Sdk")}
	default:
		return nil
	}
}

func (d *Discovery) probeVersion(ctx context.Context, path string) string {
	res, err := d.run.Execute(ctx, runner.Command{
		Path:    path,
		Args:    []string{"--version"},
		Timeout: 0,
	})
	if err != nil {
		return ""
	}
	return strings.TrimSpace(res.Stdout)
}
